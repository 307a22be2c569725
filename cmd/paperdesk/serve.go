package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newthinker/paperdesk/internal/api"
	"github.com/newthinker/paperdesk/internal/app"
	"github.com/newthinker/paperdesk/internal/logger"
	"github.com/newthinker/paperdesk/internal/metrics"
	"github.com/newthinker/paperdesk/internal/notifier/zaplog"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the paperdesk server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Initialize logger
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	sources := newSourceRegistry(cfg)
	source, err := sources.MustGet(cfg.Source.Provider)
	if err != nil {
		return err
	}

	persister, err := openPersister(cfg, log)
	if err != nil {
		return err
	}

	a, err := app.New(cfg, source, persister, log)
	if err != nil {
		persister.Close()
		return fmt.Errorf("creating app: %w", err)
	}
	defer a.Close()

	if err := a.RegisterNotifier(zaplog.New(log.Named("alerts"))); err != nil {
		return err
	}
	notifiers, err := newNotifiers(cfg)
	if err != nil {
		return err
	}
	for _, n := range notifiers {
		if err := a.RegisterNotifier(n); err != nil {
			return err
		}
		log.Info("notifier enabled", zap.String("notifier", n.Name()))
	}

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry()
		a.SetMetrics(reg)
	}

	ctx := context.Background()
	if err := a.Load(ctx); err != nil {
		return fmt.Errorf("loading state: %w", err)
	}

	log.Info("starting paperdesk server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("source", source.Name()),
		zap.String("storage", cfg.Storage.Type),
	)

	server, err := api.NewServer(api.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		APIKey:      cfg.Server.APIKey,
		MetricsPath: cfg.Metrics.Path,
		Metrics:     reg,
	}, a, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	if err := a.Start(); err != nil {
		return fmt.Errorf("starting refresh: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			log.Error("server error", zap.Error(err))
		}
	}

	log.Info("shutting down paperdesk server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = server.Shutdown(shutdownCtx)
	a.Stop()
	return err
}
