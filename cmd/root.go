package cmd

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/phonescreen-ai/phonescreen/internal/analytics"
	"github.com/phonescreen-ai/phonescreen/internal/api"
	"github.com/phonescreen-ai/phonescreen/internal/logger"
	"github.com/phonescreen-ai/phonescreen/internal/notify"
	"github.com/phonescreen-ai/phonescreen/internal/screening"
	"github.com/phonescreen-ai/phonescreen/internal/store"
)

const (
	app       = "phonescreen"
	envPrefix = "PHONESCREEN"
)

type Config struct {
	Server    api.Config       `mapstructure:"server"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Bland     BlandConfig      `mapstructure:"bland"`
	Screening screening.Config `mapstructure:"screening"`
	// DisabledChecks maps a pre-call check name to the reason it is disabled.
	DisabledChecks map[string]string `mapstructure:"disabled-checks"`
	AI             AIConfig          `mapstructure:"ai"`
	Email          EmailConfig       `mapstructure:"email"`
	Analytics      AnalyticsConfig   `mapstructure:"analytics"`
}

type DatabaseConfig struct {
	store.Config `mapstructure:",squash"`
	DSNFile      string `mapstructure:"dsn-file"`
	// Migrate applies the schema on serve start.
	Migrate bool `mapstructure:"migrate"`
}

type BlandConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	// WebhookSecret verifies the signature of call webhooks.
	WebhookSecret     string `mapstructure:"webhook-secret"`
	WebhookSecretFile string `mapstructure:"webhook-secret-file"`
}

type AIConfig struct {
	MaxLogLength int             `mapstructure:"max-log-length"`
	Gemini       GeminiConfig    `mapstructure:"gemini"`
	Fallback     LangchainConfig `mapstructure:"fallback"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max-retries"`
}

type LangchainConfig struct {
	Provider   string `mapstructure:"provider"`
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base-url"`
}

type EmailConfig struct {
	notify.Config `mapstructure:",squash"`
	APIKeyFile    string `mapstructure:"api-key-file"`
}

type AnalyticsConfig struct {
	analytics.Config `mapstructure:",squash"`
	APIKeyFile       string `mapstructure:"api-key-file"`
}

var (
	// Used for flags.
	cfgFile string
	envFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "phonescreen runs automated first-round phone screens for job applicants",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is phonescreen.yaml in current directory)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "a dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if envFile != "" {
		// A missing dotenv file is fine, the environment may be set elsewhere.
		_ = godotenv.Load(envFile)
	}

	setDefaults(viper.GetViper())

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	for key, env := range map[string]string{
		"database.dsn":      "DATABASE_URL",
		"bland.api-key":     "BLAND_API_KEY",
		"ai.gemini.api-key": "GEMINI_API_KEY",
		"email.api-key":     "RESEND_API_KEY",
		"analytics.api-key": "POSTHOG_API_KEY",
	} {
		if err := viper.BindEnv(key, envPrefix+"_"+envKey(key), env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Without an explicit --config the file is optional and the environment is enough.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func envKey(key string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

// setDefaults registers every configurable key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper) {
	server := api.DefaultConfig()
	v.SetDefault("server.host", server.Host)
	v.SetDefault("server.port", server.Port)
	v.SetDefault("server.apply-rate", server.ApplyRate)
	v.SetDefault("server.apply-burst", server.ApplyBurst)
	v.SetDefault("server.trial-plan", server.TrialPlan)
	v.SetDefault("server.trial-calls", server.TrialCalls)
	v.SetDefault("server.trial-days", server.TrialDays)
	v.SetDefault("server.body-limit", server.BodyLimit)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.dsn-file", "")
	v.SetDefault("database.max-open-conns", 10)
	v.SetDefault("database.max-idle-conns", 5)
	v.SetDefault("database.conn-max-lifetime", "30m")
	v.SetDefault("database.migrate", false)

	v.SetDefault("bland.api-key", "")
	v.SetDefault("bland.api-key-file", "")
	v.SetDefault("bland.webhook-secret", "")
	v.SetDefault("bland.webhook-secret-file", "")

	v.SetDefault("screening.call.max-duration-minutes", 12)
	v.SetDefault("screening.call.record", true)
	v.SetDefault("screening.call.webhook-url", "")
	v.SetDefault("screening.dashboard-url", "")

	v.SetDefault("ai.max-log-length", 500)
	v.SetDefault("ai.gemini.api-key", "")
	v.SetDefault("ai.gemini.api-key-file", "")
	v.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	v.SetDefault("ai.gemini.max-retries", 3)
	v.SetDefault("ai.fallback.provider", "")
	v.SetDefault("ai.fallback.api-key", "")
	v.SetDefault("ai.fallback.api-key-file", "")
	v.SetDefault("ai.fallback.model", "")

	v.SetDefault("email.api-key", "")
	v.SetDefault("email.api-key-file", "")
	v.SetDefault("email.from", "")
	v.SetDefault("analytics.api-key", "")
	v.SetDefault("analytics.api-key-file", "")
	v.SetDefault("analytics.host", "")
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}
	if config == nil {
		return nil, errors.New("config is empty")
	}

	return config, nil
}

func newLogger() *zap.Logger {
	l, err := logger.New(logger.Options{
		JSON:    viper.GetBool("json"),
		Debug:   viper.GetBool("debug"),
		Service: app,
	})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	return l
}

// mustConfig loads the config or exits, the way every command starts.
func mustConfig(log *zap.Logger) *Config {
	config, err := getConfig()
	if err != nil {
		log.Fatal("getting a config", zap.Error(err))
	}
	return config
}

func requiredArgs(names ...string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != len(names) {
			return fmt.Errorf("expected arguments: %s", strings.Join(names, " "))
		}
		return nil
	}
}
