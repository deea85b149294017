package main

import (
	"github.com/spf13/cobra"

	"viewsync/internal/adapters/output"
)

func forgetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <video-id>",
		Short: "Drop the cached session state for a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			if err := app.cache.Forget(args[0]); err != nil {
				return err
			}
			return app.printer.Print(output.ForgetResult{VideoID: args[0]})
		},
	}
}
