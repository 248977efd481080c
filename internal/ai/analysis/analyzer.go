// Package analysis scores screening call transcripts and drafts screening questions with an LLM.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/phonescreen-ai/phonescreen/internal/ai"
	"github.com/phonescreen-ai/phonescreen/internal/domain"
	"github.com/phonescreen-ai/phonescreen/internal/utils"
)

//go:embed prompt.md
var systemPrompt string

const (
	defaultMaxLogLength = 200
	// maxTranscriptRunes keeps very long calls inside the model context window.
	maxTranscriptRunes = 60000
	unansweredReason   = "The model returned no score for this question."
)

var ErrEmptyTranscript = errors.New("transcript is empty")

// Result is the scored outcome of one transcript.
type Result struct {
	Scores    []domain.QuestionScore
	Score     float64
	Qualified bool
	Summary   string
	Model     string
	Raw       string
}

type Analyzer struct {
	generator ai.Generator
	logger    *zap.Logger
	maxLogLen int
}

func NewAnalyzer(generator ai.Generator, logger *zap.Logger, maxLogLength int) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Analyzer{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

// Analyze scores every job question against the transcript. The qualification score is the mean over
// all job questions, so questions the model skipped pull the average down.
func (a *Analyzer) Analyze(ctx context.Context, job *domain.Job, transcript string) (*Result, error) {
	if job == nil {
		return nil, errors.New("job is required")
	}
	if len(job.Questions) == 0 {
		return nil, fmt.Errorf("job %s has no screening questions", job.ID)
	}

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, ErrEmptyTranscript
	}

	message := buildMessage(job, transcript)

	a.logger.Debug("analysis request",
		zap.String("job_id", job.ID),
		zap.Int("questions", len(job.Questions)),
		zap.Int("message_length", utf8.RuneCountInString(message)),
		zap.String("message_preview", utils.TruncateForLog(message, a.maxLogLen)),
	)

	raw, err := a.generator.GenerateContent(ctx, systemPrompt, message)
	if err != nil {
		return nil, fmt.Errorf("score transcript: %w", err)
	}

	a.logger.Debug("analysis response",
		zap.String("job_id", job.ID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, a.maxLogLen)),
	)

	result, err := parseResult(raw, job)
	if err != nil {
		return nil, err
	}

	result.Qualified = result.Score >= float64(job.QualifyingScore)
	result.Model = a.generator.Model()
	result.Raw = raw

	a.logger.Info("transcript scored",
		zap.String("job_id", job.ID),
		zap.Float64("score", result.Score),
		zap.Int("threshold", job.QualifyingScore),
		zap.Bool("qualified", result.Qualified),
	)

	return result, nil
}

func buildMessage(job *domain.Job, transcript string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Job title: %s\n", job.Title)
	if desc := strings.TrimSpace(job.Description); desc != "" {
		fmt.Fprintf(&b, "Job description:\n%s\n", desc)
	}

	b.WriteString("\nScreening questions:\n")
	for i, q := range job.Questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q.Text)
		if q.Guidance != "" {
			fmt.Fprintf(&b, "   Guidance: %s\n", q.Guidance)
		}
	}

	if utf8.RuneCountInString(transcript) > maxTranscriptRunes {
		transcript = string([]rune(transcript)[:maxTranscriptRunes])
	}
	fmt.Fprintf(&b, "\nTranscript:\n%s\n\nJSON Response:", transcript)

	return b.String()
}

func parseResult(raw string, job *domain.Job) (*Result, error) {
	data, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	items := coerceList(data["scores"])
	if items == nil {
		return nil, errors.New("parse model response: scores list is missing")
	}

	scores := make([]domain.QuestionScore, len(job.Questions))
	seen := make([]bool, len(job.Questions))
	for i, q := range job.Questions {
		scores[i] = domain.QuestionScore{Question: q.Text, Reasoning: unansweredReason}
	}

	for pos, item := range items {
		idx := matchQuestion(item, job, pos)
		if idx < 0 || seen[idx] {
			continue
		}
		seen[idx] = true
		scores[idx].Score = clampScore(coerceFloat(item["score"]))
		scores[idx].Reasoning = coerceString(item["reasoning"])
	}

	var total float64
	for _, s := range scores {
		total += s.Score
	}
	avg := math.Round(total/float64(len(scores))*100) / 100

	return &Result{
		Scores:  scores,
		Score:   avg,
		Summary: coerceString(data["summary"]),
	}, nil
}

// matchQuestion resolves an answer entry to a job question by index, then by text,
// then by position when the model echoed neither.
func matchQuestion(item map[string]any, job *domain.Job, pos int) int {
	if v, ok := item["question_index"]; ok {
		idx := coerceFloat(v)
		if !math.IsNaN(idx) && idx >= 1 && int(idx) <= len(job.Questions) && idx == math.Trunc(idx) {
			return int(idx) - 1
		}
		return -1
	}

	if text := normalizeText(coerceString(item["question"])); text != "" {
		for i, q := range job.Questions {
			if normalizeText(q.Text) == text {
				return i
			}
		}
		return -1
	}

	if pos < len(job.Questions) {
		return pos
	}
	return -1
}
