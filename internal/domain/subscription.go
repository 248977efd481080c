package domain

import "time"

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Subscription tracks the phone screen allowance of a company for the current period.
type Subscription struct {
	CompanyID   string             `json:"company_id"`
	Plan        string             `json:"plan"`
	Status      SubscriptionStatus `json:"status"`
	CallsLimit  int                `json:"calls_limit"`
	CallsUsed   int                `json:"calls_used"`
	PeriodStart time.Time          `json:"period_start"`
	PeriodEnd   time.Time          `json:"period_end"`
}

func (s *Subscription) CanPlaceCall(now time.Time) bool {
	if s == nil {
		return false
	}
	if s.Status != SubscriptionActive && s.Status != SubscriptionTrialing {
		return false
	}
	if !s.PeriodEnd.IsZero() && now.After(s.PeriodEnd) {
		return false
	}
	return s.CallsUsed < s.CallsLimit
}

// Remaining returns the number of calls left in the period.
func (s *Subscription) Remaining() int {
	if s == nil || s.CallsUsed >= s.CallsLimit {
		return 0
	}
	return s.CallsLimit - s.CallsUsed
}
