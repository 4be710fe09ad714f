package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomyedwab/d1lite/audit"
	"github.com/tomyedwab/d1lite/auth"
	"github.com/tomyedwab/d1lite/config"
	"github.com/tomyedwab/d1lite/database"
	"github.com/tomyedwab/d1lite/server"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "d1lite",
		Short:         "Serve a local SQLite file over the D1 query API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port, _ = cmd.Flags().GetString("port")
			}
			if cmd.Flags().Changed("database") {
				cfg.DatabasePath, _ = cmd.Flags().GetString("database")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	cmd.Flags().String("port", "", "Port to listen on (overrides PORT)")
	cmd.Flags().String("database", "", "Path to the SQLite file (overrides DATABASE_PATH)")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	opener := database.FileOpener{Path: cfg.DatabasePath, BusyTimeout: cfg.BusyTimeout()}
	if err := database.Connect(ctx, opener); err != nil {
		return err
	}
	logger.Info("Database ready", "path", cfg.DatabasePath)

	opts := server.Options{
		Gate:              auth.NewGate(cfg.Token),
		Executor:          database.NewExecutor(opener),
		EnableCrossOrigin: cfg.EnableCrossOrigin,
		CompressResponses: cfg.CompressResponses,
	}

	if cfg.AuditDatabasePath != "" {
		auditLogger, err := audit.Open(cfg.AuditDatabasePath)
		if err != nil {
			return err
		}
		defer auditLogger.Close()
		opts.Audit = auditLogger
		logger.Info("Audit logger initialized", "path", cfg.AuditDatabasePath)

		// Once an hour, drop events past the retention period
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				deleted, err := auditLogger.DeleteOldEvents(cfg.AuditRetention)
				if err != nil {
					logger.Error("Failed to delete old audit events", "error", err)
				} else if deleted > 0 {
					logger.Info("Deleted old audit events", "count", deleted)
				}
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}

	srv := server.NewServer(cfg.ListenAddr(), opts)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	logger.Info("Server listening", "port", cfg.Port)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("error stopping HTTP server: %w", err)
		}
		logger.Info("HTTP server stopped gracefully")
		return nil
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("d1lite exited", "error", err)
		os.Exit(1)
	}
}
