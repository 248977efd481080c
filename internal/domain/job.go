package domain

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

type JobStatus string

const (
	JobDraft  JobStatus = "draft"
	JobActive JobStatus = "active"
	JobClosed JobStatus = "closed"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobDraft, JobActive, JobClosed:
		return true
	default:
		return false
	}
}

const (
	DefaultQualifyingScore = 70
	maxQuestions           = 20
)

// Question is asked verbatim during the call. Guidance tells the scorer what a good answer contains.
type Question struct {
	Text     string `json:"text"`
	Guidance string `json:"guidance,omitempty"`
}

type Job struct {
	ID          string     `json:"id"`
	CompanyID   string     `json:"company_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location,omitempty"`
	Status      JobStatus  `json:"status"`
	Questions   []Question `json:"questions"`
	// QualifyingScore is the qualification score a candidate needs to be marked qualified. Zero
	// qualifies every analyzed candidate.
	QualifyingScore int `json:"qualifying_score"`
	// PathwayID is the voice vendor pathway built from the questions.
	PathwayID string `json:"pathway_id,omitempty"`
	// PathwayVersion is the questions hash the pathway was last built from.
	PathwayVersion string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Validate checks required fields and normalizes defaults.
func (j *Job) Validate() error {
	j.Title = strings.TrimSpace(j.Title)
	if j.Title == "" {
		return Invalid("title", "is required")
	}
	if strings.TrimSpace(j.CompanyID) == "" {
		return Invalid("company_id", "is required")
	}
	if j.Status == "" {
		j.Status = JobDraft
	}
	if !j.Status.Valid() {
		return Invalid("status", "must be one of draft, active, closed")
	}
	if j.QualifyingScore < 0 || j.QualifyingScore > 100 {
		return Invalid("qualifying_score", "must be between 0 and 100")
	}

	questions := make([]Question, 0, len(j.Questions))
	for _, q := range j.Questions {
		q.Text = strings.TrimSpace(q.Text)
		q.Guidance = strings.TrimSpace(q.Guidance)
		if q.Text == "" {
			continue
		}
		questions = append(questions, q)
	}
	j.Questions = questions

	if len(j.Questions) > maxQuestions {
		return Invalid("questions", "must not exceed 20 entries")
	}

	if j.Status == JobActive && len(j.Questions) == 0 {
		return Invalid("questions", "at least one question is required for an active job")
	}
	return nil
}

// QuestionTexts returns the question texts in order.
func (j *Job) QuestionTexts() []string {
	texts := make([]string, 0, len(j.Questions))
	for _, q := range j.Questions {
		texts = append(texts, q.Text)
	}
	return texts
}

// QuestionsDigest fingerprints the title and questions a pathway is built from.
func (j *Job) QuestionsDigest() string {
	h := sha256.New()
	h.Write([]byte(j.Title))
	for _, q := range j.Questions {
		h.Write([]byte{0})
		h.Write([]byte(q.Text))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
