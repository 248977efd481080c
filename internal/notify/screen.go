package notify

import (
	"fmt"
	"strings"

	"github.com/phonescreen-ai/phonescreen/internal/domain"
)

// Report is what recruiters learn about a finished phone screen.
type Report struct {
	CompanyName   string
	JobTitle      string
	CandidateName string
	Screen        *domain.PhoneScreen
	// Link points to the screen in the dashboard. Optional.
	Link string
}

// ScreenCompleted renders the plain text notification for a finished phone screen.
func ScreenCompleted(to []string, r Report) Message {
	ps := r.Screen

	var b strings.Builder
	fmt.Fprintf(&b, "The phone screen with %s for %s has finished.\n\n", r.CandidateName, r.JobTitle)

	switch ps.Status {
	case domain.ScreenAnalyzed:
		verdict := "did not reach"
		if ps.Qualified != nil && *ps.Qualified {
			verdict = "reached"
		}
		if ps.Score != nil {
			fmt.Fprintf(&b, "Qualification score: %.0f/100 (%s the qualifying score)\n", *ps.Score, verdict)
		}
		if ps.Summary != "" {
			fmt.Fprintf(&b, "\nSummary:\n%s\n", ps.Summary)
		}
		if len(ps.Scores) > 0 {
			b.WriteString("\nPer question:\n")
			for i, qs := range ps.Scores {
				fmt.Fprintf(&b, "%d. %s: %.0f\n", i+1, qs.Question, qs.Score)
				if qs.Reasoning != "" {
					fmt.Fprintf(&b, "   %s\n", qs.Reasoning)
				}
			}
		}
	case domain.ScreenNoAnswer:
		b.WriteString("The candidate did not answer the call.\n")
	default:
		b.WriteString("The call could not be completed.\n")
		if ps.Error != "" {
			fmt.Fprintf(&b, "Reason: %s\n", ps.Error)
		}
	}

	if ps.RecordingURL != "" {
		fmt.Fprintf(&b, "\nRecording: %s\n", ps.RecordingURL)
	}
	if r.Link != "" {
		fmt.Fprintf(&b, "Details: %s\n", r.Link)
	}
	if r.CompanyName != "" {
		fmt.Fprintf(&b, "\n%s via PhoneScreen\n", r.CompanyName)
	}

	return Message{
		To:      to,
		Subject: subject(r),
		Text:    b.String(),
	}
}

func subject(r Report) string {
	switch r.Screen.Status {
	case domain.ScreenAnalyzed:
		if r.Screen.Score != nil {
			return fmt.Sprintf("Phone screen scored %.0f: %s for %s", *r.Screen.Score, r.CandidateName, r.JobTitle)
		}
		return fmt.Sprintf("Phone screen finished: %s for %s", r.CandidateName, r.JobTitle)
	case domain.ScreenNoAnswer:
		return fmt.Sprintf("No answer: %s for %s", r.CandidateName, r.JobTitle)
	default:
		return fmt.Sprintf("Phone screen failed: %s for %s", r.CandidateName, r.JobTitle)
	}
}
