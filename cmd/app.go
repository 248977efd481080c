package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/phonescreen-ai/phonescreen/internal/ai"
	"github.com/phonescreen-ai/phonescreen/internal/ai/analysis"
	"github.com/phonescreen-ai/phonescreen/internal/ai/gemini"
	"github.com/phonescreen-ai/phonescreen/internal/ai/langchain"
	"github.com/phonescreen-ai/phonescreen/internal/analytics"
	"github.com/phonescreen-ai/phonescreen/internal/bland"
	"github.com/phonescreen-ai/phonescreen/internal/metrics"
	"github.com/phonescreen-ai/phonescreen/internal/notify"
	"github.com/phonescreen-ai/phonescreen/internal/screening"
	"github.com/phonescreen-ai/phonescreen/internal/secrets"
	"github.com/phonescreen-ai/phonescreen/internal/store"
)

// application is the wired service graph shared by the commands.
type application struct {
	db        *sql.DB
	store     *store.Store
	screening *screening.Service
	questions *analysis.QuestionWriter
	tracker   *analytics.Client
	metrics   *metrics.Metrics
}

func (a *application) Close() error {
	return a.db.Close()
}

func openStore(ctx context.Context, cfg DatabaseConfig) (*sql.DB, *store.Store, error) {
	dsn, err := secrets.Load(secrets.Source{
		Name:  "database dsn",
		Value: cfg.DSN,
		File:  cfg.DSNFile,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w (set database.dsn, database.dsn-file or DATABASE_URL)", err)
	}

	dbCfg := cfg.Config
	dbCfg.DSN = dsn
	db, err := store.Open(ctx, dbCfg)
	if err != nil {
		return nil, nil, err
	}

	return db, store.New(db), nil
}

func newApplication(ctx context.Context, config *Config, log *zap.Logger) (*application, error) {
	db, st, err := openStore(ctx, config.Database)
	if err != nil {
		return nil, err
	}

	app, err := wire(ctx, config, log, db, st)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func wire(ctx context.Context, config *Config, log *zap.Logger, db *sql.DB, st *store.Store) (*application, error) {
	blandKey, err := secrets.Load(secrets.Source{
		Name:  "bland api key",
		Value: config.Bland.APIKey,
		File:  config.Bland.APIKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set bland.api-key-file or BLAND_API_KEY)", err)
	}
	caller := bland.New(log.Named("bland"), blandKey)

	generator, err := newGenerator(ctx, config.AI, log)
	if err != nil {
		return nil, fmt.Errorf("building ai generator: %w", err)
	}

	mailer, err := newMailer(config.Email, log)
	if err != nil {
		return nil, err
	}
	tracker, err := newTracker(config.Analytics, log)
	if err != nil {
		return nil, err
	}

	m := metrics.New()

	checks := screening.DefaultChecks(config.Screening.AllowedPrefixes)
	for name, reason := range config.DisabledChecks {
		screening.DisableByName(checks, name, reason)
	}

	svc, err := screening.New(config.Screening, screening.Deps{
		Store:    st,
		Caller:   caller,
		Analyzer: analysis.NewAnalyzer(generator, log.Named("analysis"), config.AI.MaxLogLength),
		Mailer:   mailer,
		Tracker:  tracker,
		Recorder: m,
		Logger:   log.Named("screening"),
		Checks:   checks,
	})
	if err != nil {
		return nil, err
	}

	return &application{
		db:        db,
		store:     st,
		screening: svc,
		questions: analysis.NewQuestionWriter(generator, log.Named("questions")),
		tracker:   tracker,
		metrics:   m,
	}, nil
}

// newGenerator builds Gemini as the primary model and the langchain provider as the backup.
func newGenerator(ctx context.Context, cfg AIConfig, log *zap.Logger) (ai.Generator, error) {
	var generators []ai.Generator

	geminiKey, err := secrets.Optional(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.Gemini.APIKey,
		File:  cfg.Gemini.APIKeyFile,
	})
	if err != nil {
		return nil, err
	}
	if geminiKey != "" {
		g, err := gemini.NewGenerator(ctx, log, gemini.Config{
			APIKey:     geminiKey,
			Model:      cfg.Gemini.Model,
			MaxRetries: cfg.Gemini.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		generators = append(generators, g)
	}

	if provider := strings.TrimSpace(cfg.Fallback.Provider); provider != "" {
		key, err := secrets.Load(secrets.Source{
			Name:  provider + " api key",
			Value: cfg.Fallback.APIKey,
			File:  cfg.Fallback.APIKeyFile,
			Env:   strings.ToUpper(provider) + "_API_KEY",
		})
		if err != nil {
			return nil, err
		}
		g, err := langchain.New(log, langchain.Config{
			Provider: provider,
			APIKey:   key,
			Model:    cfg.Fallback.Model,
			BaseURL:  cfg.Fallback.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		generators = append(generators, g)
	}

	if len(generators) == 0 {
		return nil, fmt.Errorf("no ai provider configured (set ai.gemini.api-key-file, GEMINI_API_KEY or ai.fallback)")
	}
	if len(generators) == 1 {
		return generators[0], nil
	}
	fallback, err := ai.NewFallback(log.Named("ai"), generators...)
	if err != nil {
		return nil, err
	}
	return fallback, nil
}

func newMailer(cfg EmailConfig, log *zap.Logger) (*notify.Client, error) {
	key, err := secrets.Optional(secrets.Source{
		Name:  "resend api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
	})
	if err != nil {
		return nil, err
	}

	notifyCfg := cfg.Config
	notifyCfg.APIKey = key
	client := notify.New(log.Named("notify"), notifyCfg)
	if !client.Enabled() {
		log.Warn("email notifications are disabled", zap.String("hint", "set email.api-key-file or RESEND_API_KEY"))
	}
	return client, nil
}

func newTracker(cfg AnalyticsConfig, log *zap.Logger) (*analytics.Client, error) {
	key, err := secrets.Optional(secrets.Source{
		Name:  "posthog api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
	})
	if err != nil {
		return nil, err
	}

	analyticsCfg := cfg.Config
	analyticsCfg.APIKey = key
	return analytics.New(log.Named("analytics"), analyticsCfg), nil
}

func webhookSecret(cfg BlandConfig) (string, error) {
	return secrets.Optional(secrets.Source{
		Name:  "webhook secret",
		Value: cfg.WebhookSecret,
		File:  cfg.WebhookSecretFile,
	})
}
