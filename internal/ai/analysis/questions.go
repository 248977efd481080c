package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	_ "embed"

	"go.uber.org/zap"

	"github.com/phonescreen-ai/phonescreen/internal/ai"
	"github.com/phonescreen-ai/phonescreen/internal/domain"
)

//go:embed questions_prompt.md
var questionsPrompt string

const (
	DefaultQuestionCount = 5
	MaxQuestionCount     = 20
)

// QuestionWriter drafts screening questions from a job description.
type QuestionWriter struct {
	generator ai.Generator
	logger    *zap.Logger
}

func NewQuestionWriter(generator ai.Generator, logger *zap.Logger) *QuestionWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestionWriter{generator: generator, logger: logger}
}

// Generate returns at most n questions. n outside 1..MaxQuestionCount falls back to DefaultQuestionCount.
func (w *QuestionWriter) Generate(ctx context.Context, job *domain.Job, n int) ([]domain.Question, error) {
	if job == nil || strings.TrimSpace(job.Title) == "" {
		return nil, errors.New("job title is required")
	}
	if n <= 0 || n > MaxQuestionCount {
		n = DefaultQuestionCount
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Job title: %s\n", job.Title)
	if job.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", job.Location)
	}
	if desc := strings.TrimSpace(job.Description); desc != "" {
		fmt.Fprintf(&b, "Job description:\n%s\n", desc)
	}
	fmt.Fprintf(&b, "\nWrite exactly %d questions.\n\nJSON Response:", n)

	raw, err := w.generator.GenerateContent(ctx, questionsPrompt, b.String())
	if err != nil {
		return nil, fmt.Errorf("generate questions: %w", err)
	}

	data, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	questions := make([]domain.Question, 0, n)
	for _, item := range coerceList(data["questions"]) {
		text := coerceString(item["text"])
		if text == "" {
			continue
		}
		questions = append(questions, domain.Question{Text: text, Guidance: coerceString(item["guidance"])})
		if len(questions) == n {
			break
		}
	}

	if len(questions) == 0 {
		return nil, errors.New("model returned no questions")
	}

	w.logger.Info("questions drafted", zap.String("job_id", job.ID), zap.Int("count", len(questions)))
	return questions, nil
}
