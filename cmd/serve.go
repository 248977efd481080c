package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phonescreen-ai/phonescreen/internal/api"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the call webhook receiver",
	Run: func(cmd *cobra.Command, _ []string) {
		serve(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Bool("migrate", false, "apply the database schema before serving")
}

func serve(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger()
	defer logger.Sync() //nolint:errcheck

	config := mustConfig(logger)

	logger.Info("starting phonescreen", zap.String("version", version))

	app, err := newApplication(ctx, config, logger)
	if err != nil {
		logger.Fatal("building application", zap.Error(err))
	}
	defer app.Close()

	migrate, _ := cmd.Flags().GetBool("migrate")
	if migrate || config.Database.Migrate {
		if err := app.store.Migrate(ctx); err != nil {
			logger.Fatal("migrating database", zap.Error(err))
		}
		logger.Info("database schema applied")
	}

	secret, err := webhookSecret(config.Bland)
	if err != nil {
		logger.Fatal("loading webhook secret", zap.Error(err))
	}
	if secret == "" {
		logger.Warn("call webhooks are not verified", zap.String("hint", "set bland.webhook-secret-file"))
	}

	serverCfg := config.Server
	serverCfg.WebhookSecret = secret

	srv, err := api.NewServer(api.Deps{
		Store:     app.store,
		Screening: app.screening,
		Questions: app.questions,
		Tracker:   app.tracker,
		Metrics:   app.metrics,
	}, logger.Named("api"), &serverCfg)
	if err != nil {
		logger.Fatal("creating http server", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("http server stopped", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", zap.Error(err))
	}
}
