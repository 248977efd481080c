package screening

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/phonescreen-ai/phonescreen/internal/domain"
)

// Check is a single pre-call step. A check either passes or rejects the application.
type Check interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Apply(ctx context.Context, deps CheckDeps, app *Application) (Step, error)
}

// CheckDeps aggregates the lookups shared across checks.
type CheckDeps struct {
	Store  Store
	Logger *zap.Logger
	Now    func() time.Time
}

// Step describes the outcome of one check.
type Step struct {
	Passed bool
	Reason string
}

// Status represents runtime information about a check.
type Status struct {
	Name    string            `json:"name"`
	Enabled bool              `json:"enabled"`
	Reason  string            `json:"reason,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// CheckError is returned when a check rejects an application. It unwraps to a domain error.
type CheckError struct {
	Check  string
	Reason string
	Err    error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("%s: %s", e.Check, e.Reason)
}

func (e *CheckError) Unwrap() error { return e.Err }

type statusProvider interface {
	Status() Status
}

// toggle implements Disable and IsEnabled for the built-in checks.
type toggle struct {
	disabled bool
	reason   string
}

func (t *toggle) Disable(reason string) {
	t.disabled = true
	t.reason = reason
}

func (t *toggle) IsEnabled() bool { return !t.disabled }

// DefaultChecks returns the pre-call checks in execution order.
func DefaultChecks(allowedPrefixes []string) []Check {
	return []Check{
		NewJobActive(),
		NewPhoneNumber(allowedPrefixes),
		NewCallQuota(),
		NewAlreadyScreened(),
	}
}

// DisableByName marks a check with the provided name as disabled while keeping it in the list.
func DisableByName(checks []Check, name, reason string) {
	for _, c := range checks {
		if c.Name() == name {
			c.Disable(reason)
		}
	}
}

// RunChecks executes the enabled checks in order and stops at the first rejection.
func RunChecks(ctx context.Context, deps CheckDeps, checks []Check, app *Application) error {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	for _, c := range checks {
		if !c.IsEnabled() {
			log.Debug("check disabled", zap.String("name", c.Name()))
			continue
		}

		step, err := c.Apply(ctx, deps, app)
		if err != nil {
			var rejected *CheckError
			if errors.As(err, &rejected) {
				log.Info("application rejected",
					zap.String("check", c.Name()),
					zap.String("reason", rejected.Reason),
					zap.String("job_id", app.Job.ID),
				)
				return err
			}
			return fmt.Errorf("%s: %w", c.Name(), err)
		}

		log.Debug("check step",
			zap.String("name", c.Name()),
			zap.Bool("passed", step.Passed),
			zap.String("reason", step.Reason),
		)
	}

	return nil
}

// Describe returns status entries for the provided checks.
func Describe(checks []Check) []Status {
	statuses := make([]Status, 0, len(checks))
	for _, c := range checks {
		if reporter, ok := c.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}
		statuses = append(statuses, Status{Name: c.Name(), Enabled: c.IsEnabled()})
	}
	return statuses
}

type jobActiveCheck struct {
	toggle
}

// NewJobActive creates a check that rejects applications to jobs that are not active.
func NewJobActive() Check {
	return &jobActiveCheck{}
}

func (c *jobActiveCheck) Name() string { return "job_active" }

func (c *jobActiveCheck) Apply(_ context.Context, _ CheckDeps, app *Application) (Step, error) {
	if app.Job.Status != domain.JobActive {
		return Step{}, &CheckError{Check: c.Name(), Reason: "job is not accepting applications", Err: domain.ErrInvalid}
	}
	if len(app.Job.Questions) == 0 {
		return Step{}, &CheckError{Check: c.Name(), Reason: "job has no screening questions", Err: domain.ErrInvalid}
	}
	return Step{Passed: true}, nil
}

type phoneNumberCheck struct {
	toggle
	prefixes []string
}

// NewPhoneNumber creates a check that requires an E.164 number, optionally limited to the given prefixes.
func NewPhoneNumber(prefixes []string) Check {
	cleaned := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			if !strings.HasPrefix(p, "+") {
				p = "+" + p
			}
			cleaned = append(cleaned, p)
		}
	}
	return &phoneNumberCheck{prefixes: cleaned}
}

func (c *phoneNumberCheck) Name() string { return "phone_number" }

func (c *phoneNumberCheck) Apply(_ context.Context, _ CheckDeps, app *Application) (Step, error) {
	phone, ok := domain.NormalizePhone(app.Candidate.Phone)
	if !ok {
		return Step{}, &CheckError{Check: c.Name(), Reason: "phone number is not in E.164 format", Err: domain.ErrInvalid}
	}
	app.Candidate.Phone = phone

	if len(c.prefixes) == 0 {
		return Step{Passed: true}, nil
	}
	for _, p := range c.prefixes {
		if strings.HasPrefix(phone, p) {
			return Step{Passed: true, Reason: "prefix " + p}, nil
		}
	}
	return Step{}, &CheckError{Check: c.Name(), Reason: "calls to this country are not supported", Err: domain.ErrInvalid}
}

func (c *phoneNumberCheck) Status() Status {
	details := map[string]string{}
	if len(c.prefixes) > 0 {
		details["allowed_prefixes"] = strings.Join(c.prefixes, ",")
	}
	return Status{Name: c.Name(), Enabled: c.IsEnabled(), Reason: c.reason, Details: details}
}

type callQuotaCheck struct {
	toggle
}

// NewCallQuota creates a check that rejects applications when the company has no calls left.
func NewCallQuota() Check {
	return &callQuotaCheck{}
}

func (c *callQuotaCheck) Name() string { return "call_quota" }

func (c *callQuotaCheck) Apply(ctx context.Context, deps CheckDeps, app *Application) (Step, error) {
	sub, err := deps.Store.GetSubscription(ctx, app.Job.CompanyID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Step{}, &CheckError{Check: c.Name(), Reason: "company has no subscription", Err: domain.ErrQuotaExceeded}
		}
		return Step{}, fmt.Errorf("get subscription: %w", err)
	}

	now := time.Now()
	if deps.Now != nil {
		now = deps.Now()
	}
	if !sub.CanPlaceCall(now) {
		return Step{}, &CheckError{Check: c.Name(), Reason: "no phone screens left on the current plan", Err: domain.ErrQuotaExceeded}
	}
	return Step{Passed: true, Reason: fmt.Sprintf("%d calls left", sub.Remaining())}, nil
}

type alreadyScreenedCheck struct {
	toggle
}

// NewAlreadyScreened creates a check that rejects a phone number already screened for the job.
func NewAlreadyScreened() Check {
	return &alreadyScreenedCheck{}
}

func (c *alreadyScreenedCheck) Name() string { return "already_screened" }

func (c *alreadyScreenedCheck) Apply(ctx context.Context, deps CheckDeps, app *Application) (Step, error) {
	exists, err := deps.Store.HasActiveScreen(ctx, app.Job.ID, app.Candidate.Phone)
	if err != nil {
		return Step{}, fmt.Errorf("look up previous screens: %w", err)
	}
	if exists {
		return Step{}, &CheckError{Check: c.Name(), Reason: "this phone number was already screened for the job", Err: domain.ErrConflict}
	}
	return Step{Passed: true}, nil
}
