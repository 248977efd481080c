package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phonescreen-ai/phonescreen/internal/domain"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <company-id> <phone-screen-id>",
	Short: "Score the transcript of a phone screen again",
	Args:  requiredArgs("<company-id>", "<phone-screen-id>"),
	Run: func(cmd *cobra.Command, args []string) {
		analyze(cmd, args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().BoolP("refresh", "r", false, "pull the call from the voice vendor first, for screens whose webhook never arrived")
}

func analyze(cmd *cobra.Command, companyID, screenID string) {
	ctx := context.Background()

	logger := newLogger()
	config := mustConfig(logger)

	app, err := newApplication(ctx, config, logger)
	if err != nil {
		logger.Fatal("building application", zap.Error(err))
	}
	defer app.Close()

	var screen *domain.PhoneScreen
	if refresh, _ := cmd.Flags().GetBool("refresh"); refresh {
		screen, err = app.screening.Refresh(ctx, companyID, screenID)
		if err != nil {
			logger.Fatal("refreshing phone screen", zap.Error(err))
		}
	}

	// Refresh already analyzes completed calls.
	if screen == nil || screen.Status != domain.ScreenAnalyzed {
		screen, err = app.screening.Reanalyze(ctx, companyID, screenID)
		if err != nil {
			logger.Fatal("analyzing phone screen", zap.Error(err))
		}
	}

	// do not bother error since the screen was just decoded from the database
	pretty, _ := json.MarshalIndent(screen, "", "  ")
	logger.Info(string(pretty), zap.String("status", string(screen.Status)))
}
