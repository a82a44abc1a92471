// Command hub-proxy serves the hub retrieval engine over HTTP. It is
// configured from HUB_CONFIG (optional YAML file) and the environment.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/camlf/academic-hub/internal/app"
	"github.com/camlf/academic-hub/internal/server"
	"github.com/camlf/academic-hub/pkg/config"
	"github.com/camlf/academic-hub/pkg/logging"
	"github.com/camlf/academic-hub/pkg/telemetry"
	"github.com/rs/zerolog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger("hub-proxy")
	if err := run(ctx, getEnv("HUB_CONFIG", ""), ":"+getEnv("PORT", "8080")); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func run(ctx context.Context, configPath, addr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogging(cfg)

	provider, err := telemetry.Setup(ctx, telemetry.Config{
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: "hub-proxy",
	})
	if err != nil {
		return err
	}
	defer provider.Shutdown(context.WithoutCancel(ctx))

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info().Str("base_url", cfg.Hub.BaseURL).Msg("Hub proxy configured")
	return server.Run(ctx, addr, server.New(a).Router(), logger)
}

func setupLogging(cfg *config.Config) zerolog.Logger {
	logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.Logging.Level),
		Pretty:  cfg.Logging.Pretty,
		Output:  os.Stderr,
		Service: "hub-proxy",
	})
	return logging.NewLogger("hub-proxy")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
