package main

import (
	"sort"

	"github.com/spf13/cobra"

	"viewsync/internal/adapters/output"
)

func sessionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List cached playback sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)

			all, err := app.cache.All()
			if err != nil {
				return err
			}

			ids := make([]string, 0, len(all))
			for id := range all {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			result := output.SessionsResult{Sessions: []output.SessionRow{}}
			for _, id := range ids {
				state := all[id]
				result.Sessions = append(result.Sessions, output.SessionRow{
					VideoID:  id,
					Position: state.CurrentTime,
					Speed:    state.PlaybackSpeed,
					Volume:   state.Volume,
					Version:  state.Version,
				})
			}
			return app.printer.Print(result)
		},
	}
}
