package commands

import (
	"github.com/camlf/academic-hub/internal/app"
	"github.com/camlf/academic-hub/internal/server"
	"github.com/camlf/academic-hub/pkg/logging"
	"github.com/spf13/cobra"
)

func newServeCommand(state *rootState) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve data views, health, readiness and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), state.config)
			if err != nil {
				return err
			}
			defer a.Close()

			return server.Run(cmd.Context(), addr, server.New(a).Router(), logging.NewLogger("serve"))
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}
