package cmd

import (
	"context"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phonescreen-ai/phonescreen/internal/utils"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var callCmd = &cobra.Command{
	Use:   "call <company-id> <candidate-id>",
	Short: "Place a phone screen call to an existing candidate",
	Args:  requiredArgs("<company-id>", "<candidate-id>"),
	Run: func(cmd *cobra.Command, args []string) {
		call(cmd, args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation before calling")
}

func call(cmd *cobra.Command, companyID, candidateID string) {
	ctx := context.Background()

	logger := newLogger()
	config := mustConfig(logger)

	app, err := newApplication(ctx, config, logger)
	if err != nil {
		logger.Fatal("building application", zap.Error(err))
	}
	defer app.Close()

	candidate, err := app.store.GetCandidate(ctx, companyID, candidateID)
	if err != nil {
		logger.Fatal("getting candidate", zap.Error(err))
	}

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		prompt := promptui.Select{
			Label: fmt.Sprintf("Call %s at %s?", candidate.Name, utils.MaskPhone(candidate.Phone)),
			Items: []string{PromptYes, PromptNo},
		}
		_, answer, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
		if answer != PromptYes {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
	}

	result, err := app.screening.Rescreen(ctx, companyID, candidateID)
	if err != nil {
		logger.Fatal("placing phone screen call", zap.Error(err))
	}

	logger.Info("phone screen call placed",
		zap.String("candidate_id", result.Candidate.ID),
		zap.String("phone_screen_id", result.Screen.ID),
		zap.String("call_id", result.Screen.CallID),
	)
}
