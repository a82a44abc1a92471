// Package commands implements the hubfetch command tree.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/camlf/academic-hub/pkg/config"
	"github.com/camlf/academic-hub/pkg/logging"
	"github.com/camlf/academic-hub/pkg/telemetry"
	"github.com/spf13/cobra"
)

// rootState is shared by all subcommands.
type rootState struct {
	configPath string
	logLevel   string
	pretty     bool

	version  string
	config   *config.Config
	provider *telemetry.Provider
}

// Execute runs the root command.
func Execute(ctx context.Context, version, commit string) error {
	return newRootCommand(version, commit).ExecuteContext(ctx)
}

func newRootCommand(version, commit string) *cobra.Command {
	state := &rootState{version: version}

	rootCmd := &cobra.Command{
		Use:   "hubfetch",
		Short: "Fetch time-indexed data views from the data hub",
		Long: `hubfetch retrieves interpolated or stored data from hub data views.

Pages are followed until the cursor chain ends. Timeouts shrink the page
size and restart the fetch; conflicts and bad gateways are retried.
Stored fetches stop at a row ceiling and can be resumed later.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return state.shutdown(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&state.configPath, "config", "c", os.Getenv("HUB_CONFIG"), "config file path")
	rootCmd.PersistentFlags().StringVar(&state.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&state.pretty, "pretty", false, "human-readable logs")

	rootCmd.AddCommand(newFetchCommand(state, modeInterpolated))
	rootCmd.AddCommand(newFetchCommand(state, modeStored))
	rootCmd.AddCommand(newServeCommand(state))

	return rootCmd
}

// setup loads the configuration and configures logging and tracing.
func (s *rootState) setup(ctx context.Context) error {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return err
	}
	if s.logLevel != "" {
		cfg.Logging.Level = s.logLevel
	}
	if s.pretty {
		cfg.Logging.Pretty = true
	}
	s.config = cfg

	logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.Logging.Level),
		Pretty:  cfg.Logging.Pretty,
		Output:  os.Stderr,
		Service: "hubfetch",
	})

	provider, err := telemetry.Setup(ctx, telemetry.Config{
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     s.version,
		Output:      os.Stderr,
	})
	if err != nil {
		return err
	}
	s.provider = provider
	return nil
}

func (s *rootState) shutdown(ctx context.Context) error {
	if s.provider == nil {
		return nil
	}
	return s.provider.Shutdown(context.WithoutCancel(ctx))
}
