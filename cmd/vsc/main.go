package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"viewsync/internal/adapters/config"
	"viewsync/internal/adapters/output"
	"viewsync/internal/adapters/statecache"
)

type app struct {
	cache   *statecache.Store
	printer output.Printer
	server  string
	token   string
	json    bool
}

func main() {
	root := &cobra.Command{
		Use:   "vsc",
		Short: "ViewSync CLI",
	}

	var (
		server  string
		token   string
		jsonOut bool
	)

	root.PersistentFlags().StringVarP(&server, "server", "s", "", "session server URL")
	root.PersistentFlags().StringVar(&token, "token", "", "bearer token")
	root.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output json")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if server == "" {
			server = cfg.Server
		}
		if server == "" {
			server = "ws://127.0.0.1:8900"
		}
		if token == "" {
			token = cfg.Token
		}

		cache, err := statecache.NewStore()
		if err != nil {
			return err
		}

		var printer output.Printer
		if jsonOut {
			printer = output.JSONPrinter{}
		} else {
			printer = output.HumanPrinter{}
		}

		cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, &app{
			cache:   cache,
			printer: printer,
			server:  server,
			token:   token,
			json:    jsonOut,
		}))
		return nil
	}

	root.AddCommand(watchCommand())
	root.AddCommand(sessionsCommand())
	root.AddCommand(forgetCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

type appKey struct{}

func fromContext(cmd *cobra.Command) *app {
	val := cmd.Context().Value(appKey{})
	if val == nil {
		return nil
	}
	return val.(*app)
}
