package domain

import (
	"net/mail"
	"regexp"
	"strings"
	"time"
)

type CandidateStatus string

const (
	CandidateApplied   CandidateStatus = "applied"
	CandidateScreening CandidateStatus = "screening"
	CandidateScreened  CandidateStatus = "screened"
	CandidateQualified CandidateStatus = "qualified"
	CandidateRejected  CandidateStatus = "rejected"
	CandidateFailed    CandidateStatus = "failed"
)

func (s CandidateStatus) Valid() bool {
	switch s {
	case CandidateApplied, CandidateScreening, CandidateScreened,
		CandidateQualified, CandidateRejected, CandidateFailed:
		return true
	default:
		return false
	}
}

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// NormalizePhone strips formatting characters and checks the E.164 shape.
func NormalizePhone(phone string) (string, bool) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(phone) {
		switch {
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", false
		}
	}
	normalized := b.String()
	return normalized, e164.MatchString(normalized)
}

type Candidate struct {
	ID        string          `json:"id"`
	CompanyID string          `json:"company_id"`
	JobID     string          `json:"job_id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Phone     string          `json:"phone"`
	ResumeURL string          `json:"resume_url,omitempty"`
	Status    CandidateStatus `json:"status"`
	Score     *float64        `json:"qualification_score,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (c *Candidate) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return Invalid("name", "is required")
	}
	if strings.TrimSpace(c.JobID) == "" {
		return Invalid("job_id", "is required")
	}

	phone, ok := NormalizePhone(c.Phone)
	if !ok {
		return Invalid("phone", "must be an E.164 number such as +14155550123")
	}
	c.Phone = phone

	c.Email = strings.TrimSpace(c.Email)
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			return Invalid("email", "is not a valid address")
		}
	}

	if c.Status == "" {
		c.Status = CandidateApplied
	}
	if !c.Status.Valid() {
		return Invalid("status", "is unknown")
	}
	return nil
}
