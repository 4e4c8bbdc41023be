package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantpulse/stratrun/internal/config"
	"github.com/quantpulse/stratrun/internal/httpapi"
	"github.com/quantpulse/stratrun/internal/persistence/postgres"
	"github.com/quantpulse/stratrun/internal/telemetry"
	"github.com/quantpulse/stratrun/internal/telemetry/stream"
)

func runMonitor(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	dsn := resolveDSN(cmd)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverCfg := httpapi.DefaultConfig()
	serverCfg.Addr = addr

	deps := httpapi.Deps{Metrics: telemetry.New()}

	if dsn != "" {
		store, err := postgres.New(ctx, dsn)
		if err != nil {
			return fmt.Errorf("failed to connect run archive: %w", err)
		}
		defer store.Close()
		deps.Repo = store.Repository()
		deps.Health = store
		log.Info().Msg("Run archive connected")
	} else {
		log.Warn().Msg("No database configured, archive endpoints will report 503")
	}

	hub := stream.NewHub()
	go hub.Run(ctx)
	deps.Hub = hub

	server, err := httpapi.NewServer(serverCfg, deps)
	if err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	fmt.Printf("Monitor running at http://%s (health: /health, metrics: /metrics, stream: /ws)\n", server.Address())

	select {
	case <-quit:
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	return nil
}

// resolveDSN prefers the --dsn flag, then the config file's database section
func resolveDSN(cmd *cobra.Command) string {
	if dsn, _ := cmd.Flags().GetString("dsn"); dsn != "" {
		return dsn
	}
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Could not read config for DSN")
		return ""
	}
	return cfg.Database.DSN
}
