// Package ai defines the text generation contract shared by the LLM providers.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/phonescreen-ai/phonescreen/internal/logger"
)

// Generator produces a single text answer for a system instruction and a user message.
type Generator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
	Model() string
}

// Fallback tries each generator in order and returns the first successful answer.
type Fallback struct {
	generators []Generator
	logger     *zap.Logger
}

// NewFallback drops nil generators. At least one generator is required.
func NewFallback(logger *zap.Logger, generators ...Generator) (*Fallback, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	list := make([]Generator, 0, len(generators))
	for _, g := range generators {
		if g != nil {
			list = append(list, g)
		}
	}
	if len(list) == 0 {
		return nil, errors.New("at least one ai generator is required")
	}

	return &Fallback{generators: list, logger: logger}, nil
}

func (f *Fallback) GenerateContent(ctx context.Context, system, message string) (string, error) {
	var errs []error
	for i, g := range f.generators {
		out, err := g.GenerateContent(ctx, system, message)
		if err == nil {
			if i > 0 {
				f.logger.Info("served by fallback generator", logger.AIFields("", g.Model())...)
			}
			return out, nil
		}

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		f.logger.Warn("generator failed", append(logger.AIFields("", g.Model()), zap.Error(err))...)
		errs = append(errs, fmt.Errorf("%s: %w", g.Model(), err))
	}

	return "", errors.Join(errs...)
}

// Model reports the models in fallback order, joined by a comma.
func (f *Fallback) Model() string {
	names := make([]string, 0, len(f.generators))
	for _, g := range f.generators {
		names = append(names, g.Model())
	}
	return strings.Join(names, ",")
}
