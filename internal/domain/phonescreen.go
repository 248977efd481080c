package domain

import "time"

type ScreenStatus string

const (
	ScreenQueued     ScreenStatus = "queued"
	ScreenInProgress ScreenStatus = "in_progress"
	ScreenCompleted  ScreenStatus = "completed"
	ScreenAnalyzed   ScreenStatus = "analyzed"
	ScreenNoAnswer   ScreenStatus = "no_answer"
	ScreenFailed     ScreenStatus = "failed"
)

func (s ScreenStatus) Valid() bool {
	switch s {
	case ScreenQueued, ScreenInProgress, ScreenCompleted, ScreenAnalyzed, ScreenNoAnswer, ScreenFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further webhook may change the screen.
func (s ScreenStatus) Terminal() bool {
	return s == ScreenAnalyzed || s == ScreenNoAnswer || s == ScreenFailed
}

// QuestionScore is the LLM judgement of a single answer.
type QuestionScore struct {
	Question  string  `json:"question"`
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning,omitempty"`
}

// PhoneScreen is one AI-conducted interview call against a candidate.
type PhoneScreen struct {
	ID              string          `json:"id"`
	CompanyID       string          `json:"company_id"`
	JobID           string          `json:"job_id"`
	CandidateID     string          `json:"candidate_id"`
	CallID          string          `json:"call_id,omitempty"`
	Status          ScreenStatus    `json:"status"`
	Transcript      string          `json:"transcript,omitempty"`
	RecordingURL    string          `json:"recording_url,omitempty"`
	DurationSeconds int             `json:"duration_seconds,omitempty"`
	Scores          []QuestionScore `json:"scores,omitempty"`
	Score           *float64        `json:"qualification_score,omitempty"`
	Summary         string          `json:"summary,omitempty"`
	Qualified       *bool           `json:"qualified,omitempty"`
	Error           string          `json:"error,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
