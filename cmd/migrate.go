package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Run: func(_ *cobra.Command, _ []string) {
		ctx := context.Background()

		logger := newLogger()
		config := mustConfig(logger)

		db, st, err := openStore(ctx, config.Database)
		if err != nil {
			logger.Fatal("opening database", zap.Error(err))
		}
		defer db.Close()

		if err := st.Migrate(ctx); err != nil {
			logger.Fatal("migrating database", zap.Error(err))
		}
		logger.Info("database schema applied")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
