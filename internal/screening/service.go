// Package screening runs the phone screen workflow: apply, place the call, receive the result, score it.
package screening

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/phonescreen-ai/phonescreen/internal/ai/analysis"
	"github.com/phonescreen-ai/phonescreen/internal/analytics"
	"github.com/phonescreen-ai/phonescreen/internal/bland"
	"github.com/phonescreen-ai/phonescreen/internal/domain"
	"github.com/phonescreen-ai/phonescreen/internal/notify"
)

// ErrCallFailed marks an application that was stored but whose call could not be placed.
var ErrCallFailed = errors.New("phone screen call could not be placed")

// Store is the persistence the workflow needs.
type Store interface {
	GetCompany(ctx context.Context, id string) (*domain.Company, error)
	ListNotifiedUsers(ctx context.Context, companyID string) ([]domain.User, error)
	GetSubscription(ctx context.Context, companyID string) (*domain.Subscription, error)
	IncrementCallsUsed(ctx context.Context, companyID string) error
	ReleaseCall(ctx context.Context, companyID string) error

	GetJob(ctx context.Context, companyID, id string) (*domain.Job, error)
	GetPublicJob(ctx context.Context, id string) (*domain.Job, error)
	SetJobPathway(ctx context.Context, jobID, pathwayID, version string) error

	CreateCandidate(ctx context.Context, c *domain.Candidate) error
	GetCandidate(ctx context.Context, companyID, id string) (*domain.Candidate, error)
	UpdateCandidateStatus(ctx context.Context, companyID, id string, status domain.CandidateStatus, score *float64) error
	HasActiveScreen(ctx context.Context, jobID, phone string) (bool, error)

	CreatePhoneScreen(ctx context.Context, ps *domain.PhoneScreen) error
	GetPhoneScreen(ctx context.Context, companyID, id string) (*domain.PhoneScreen, error)
	GetPhoneScreenByCallID(ctx context.Context, callID string) (*domain.PhoneScreen, error)
	UpdatePhoneScreen(ctx context.Context, ps *domain.PhoneScreen) error
	SetPhoneScreenCallID(ctx context.Context, companyID, id, callID string) (bool, error)
}

// Caller is the voice vendor.
type Caller interface {
	CreatePathway(ctx context.Context, name, description string) (string, error)
	UpdatePathway(ctx context.Context, id string, pathway bland.Pathway) error
	SendCall(ctx context.Context, call bland.CallRequest) (string, error)
	GetCall(ctx context.Context, callID string) (*bland.CallResult, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, job *domain.Job, transcript string) (*analysis.Result, error)
}

type Mailer interface {
	Send(ctx context.Context, msg notify.Message) (string, error)
}

type Tracker interface {
	Capture(ctx context.Context, e analytics.Event) error
}

// Recorder receives workflow metrics.
type Recorder interface {
	CallPlaced(success bool)
	WebhookReceived(status string)
	ScreenAnalyzed(outcome string, score float64)
}

// Config holds the workflow settings.
type Config struct {
	Call    bland.CallSettings  `mapstructure:"call"`
	Pathway bland.PathwayConfig `mapstructure:"pathway"`
	// AllowedPrefixes limits calls to numbers starting with one of the prefixes, e.g. "+1".
	AllowedPrefixes []string `mapstructure:"allowed-prefixes"`
	// DashboardURL is used to link notifications to the screen. Optional.
	DashboardURL string `mapstructure:"dashboard-url"`
}

// Deps are the collaborators of the Service. Mailer, Tracker and Recorder are optional.
type Deps struct {
	Store    Store
	Caller   Caller
	Analyzer Analyzer
	Mailer   Mailer
	Tracker  Tracker
	Recorder Recorder
	Logger   *zap.Logger
	Checks   []Check
}

type Service struct {
	cfg      Config
	store    Store
	caller   Caller
	analyzer Analyzer
	mailer   Mailer
	tracker  Tracker
	recorder Recorder
	logger   *zap.Logger
	checks   []Check
	now      func() time.Time

	// pathwayMu serializes pathway builds so concurrent applications do not create duplicates.
	pathwayMu sync.Mutex
}

func New(cfg Config, deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.Caller == nil {
		return nil, errors.New("voice caller is required")
	}
	if deps.Analyzer == nil {
		return nil, errors.New("analyzer is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	checks := deps.Checks
	if checks == nil {
		checks = DefaultChecks(cfg.AllowedPrefixes)
	}

	return &Service{
		cfg:      cfg,
		store:    deps.Store,
		caller:   deps.Caller,
		analyzer: deps.Analyzer,
		mailer:   deps.Mailer,
		tracker:  deps.Tracker,
		recorder: recorder,
		logger:   logger,
		checks:   checks,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Checks reports the configured pre-call checks.
func (s *Service) Checks() []Status {
	return Describe(s.checks)
}

func (s *Service) checkDeps() CheckDeps {
	return CheckDeps{Store: s.store, Logger: s.logger, Now: s.now}
}

// track captures an analytics event without failing the workflow.
func (s *Service) track(ctx context.Context, name, companyID string, props map[string]any) {
	if s.tracker == nil {
		return
	}
	if err := s.tracker.Capture(ctx, analytics.Event{Name: name, DistinctID: companyID, Properties: props}); err != nil {
		s.logger.Warn("capture analytics event failed", zap.String("event", name), zap.Error(err))
	}
}

type nopRecorder struct{}

func (nopRecorder) CallPlaced(bool)                {}
func (nopRecorder) WebhookReceived(string)         {}
func (nopRecorder) ScreenAnalyzed(string, float64) {}
