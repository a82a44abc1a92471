// Command hubfetch fetches hub data views to CSV and serves the engine
// over HTTP.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/camlf/academic-hub/cmd/hubfetch/commands"
	"github.com/rs/zerolog/log"
)

// Version information (set via ldflags during build)
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx, Version, Commit); err != nil {
		log.Error().Err(err).Msg("Command execution failed")
		os.Exit(1)
	}
}
