// Package api exposes the recruiter and public HTTP endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/phonescreen-ai/phonescreen/internal/analytics"
	"github.com/phonescreen-ai/phonescreen/internal/bland"
	"github.com/phonescreen-ai/phonescreen/internal/domain"
	"github.com/phonescreen-ai/phonescreen/internal/metrics"
	"github.com/phonescreen-ai/phonescreen/internal/screening"
	"github.com/phonescreen-ai/phonescreen/internal/store"
)

// Store is the persistence behind the CRUD endpoints.
type Store interface {
	CreateCompany(ctx context.Context, c *domain.Company, trial store.Trial) error
	GetCompany(ctx context.Context, id string) (*domain.Company, error)
	CreateUser(ctx context.Context, u *domain.User) error
	GetSubscription(ctx context.Context, companyID string) (*domain.Subscription, error)

	CreateJob(ctx context.Context, j *domain.Job) error
	GetJob(ctx context.Context, companyID, id string) (*domain.Job, error)
	ListJobs(ctx context.Context, companyID string) ([]*domain.Job, error)
	UpdateJob(ctx context.Context, j *domain.Job) error
	DeleteJob(ctx context.Context, companyID, id string) error

	GetCandidate(ctx context.Context, companyID, id string) (*domain.Candidate, error)
	ListCandidates(ctx context.Context, companyID, jobID string) ([]*domain.Candidate, error)
	UpdateCandidateStatus(ctx context.Context, companyID, id string, status domain.CandidateStatus, score *float64) error
	DeleteCandidate(ctx context.Context, companyID, id string) error

	GetPhoneScreen(ctx context.Context, companyID, id string) (*domain.PhoneScreen, error)
}

// Screening is the phone screen workflow.
type Screening interface {
	Apply(ctx context.Context, jobID string, candidate *domain.Candidate) (*screening.Application, error)
	Rescreen(ctx context.Context, companyID, candidateID string) (*screening.Application, error)
	HandleCallWebhook(ctx context.Context, result *bland.CallResult) (*domain.PhoneScreen, error)
	Reanalyze(ctx context.Context, companyID, screenID string) (*domain.PhoneScreen, error)
	Refresh(ctx context.Context, companyID, screenID string) (*domain.PhoneScreen, error)
	Checks() []screening.Status
}

// QuestionWriter drafts screening questions for a job.
type QuestionWriter interface {
	Generate(ctx context.Context, job *domain.Job, n int) ([]domain.Question, error)
}

// Tracker captures product analytics events.
type Tracker interface {
	Capture(ctx context.Context, e analytics.Event) error
}

// Config holds HTTP server configuration.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// WebhookSecret enables HMAC-SHA256 verification of call webhooks.
	WebhookSecret string `mapstructure:"-"`
	// ApplyRate is the number of public applications allowed per second and client IP.
	ApplyRate  float64 `mapstructure:"apply-rate"`
	ApplyBurst int     `mapstructure:"apply-burst"`
	// Trial is the subscription given to new companies.
	TrialPlan  string `mapstructure:"trial-plan"`
	TrialCalls int    `mapstructure:"trial-calls"`
	TrialDays  int    `mapstructure:"trial-days"`
	BodyLimit  string `mapstructure:"body-limit"`
}

func DefaultConfig() *Config {
	return &Config{
		Host:       "0.0.0.0",
		Port:       8080,
		ApplyRate:  0.2,
		ApplyBurst: 3,
		TrialPlan:  "trial",
		TrialCalls: 25,
		TrialDays:  14,
		BodyLimit:  "1M",
	}
}

// Deps are the collaborators of the server. Questions, Tracker and Metrics are optional.
type Deps struct {
	Store     Store
	Screening Screening
	Questions QuestionWriter
	Tracker   Tracker
	Metrics   *metrics.Metrics
}

type Server struct {
	echo    *echo.Echo
	deps    Deps
	logger  *zap.Logger
	config  *Config
	limiter *rateLimiter
}

func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if deps.Screening == nil {
		return nil, fmt.Errorf("screening service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
	if deps.Metrics != nil {
		e.Use(metricsMiddleware(deps.Metrics))
	}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", responseStatus(c, err)),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		deps:    deps,
		logger:  logger,
		config:  cfg,
		limiter: newRateLimiter(cfg.ApplyRate, cfg.ApplyBurst),
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))
	}

	v1 := s.echo.Group("/api/v1")

	v1.POST("/companies", s.handleCreateCompany)
	v1.GET("/companies/:companyID", s.handleGetCompany)
	v1.POST("/companies/:companyID/users", s.handleCreateUser)

	v1.POST("/companies/:companyID/jobs", s.handleCreateJob)
	v1.GET("/companies/:companyID/jobs", s.handleListJobs)
	v1.GET("/companies/:companyID/jobs/:jobID", s.handleGetJob)
	v1.PUT("/companies/:companyID/jobs/:jobID", s.handleUpdateJob)
	v1.DELETE("/companies/:companyID/jobs/:jobID", s.handleDeleteJob)
	v1.POST("/companies/:companyID/jobs/:jobID/questions/generate", s.handleGenerateQuestions)
	v1.GET("/companies/:companyID/jobs/:jobID/candidates", s.handleListCandidates)

	v1.GET("/companies/:companyID/candidates/:candidateID", s.handleGetCandidate)
	v1.DELETE("/companies/:companyID/candidates/:candidateID", s.handleDeleteCandidate)
	v1.PATCH("/companies/:companyID/candidates/:candidateID/status", s.handleUpdateCandidateStatus)
	v1.POST("/companies/:companyID/candidates/:candidateID/screen", s.handleRescreen)

	v1.GET("/companies/:companyID/phone-screens/:screenID", s.handleGetPhoneScreen)
	v1.POST("/companies/:companyID/phone-screens/:screenID/analyze", s.handleAnalyzePhoneScreen)
	v1.POST("/companies/:companyID/phone-screens/:screenID/refresh", s.handleRefreshPhoneScreen)

	v1.GET("/checks", s.handleChecks)
	v1.POST("/jobs/:jobID/apply", s.handleApply, s.limiter.middleware(s.logger))
	v1.POST("/webhooks/calls", s.handleCallWebhook)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleChecks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Screening.Checks())
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

func metricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/metrics" {
				return next(c)
			}

			done := m.TrackInFlight()
			defer done()

			start := time.Now()
			err := next(c)
			m.ObserveHTTP(c.Request().Method, c.Path(), responseStatus(c, err), time.Since(start))
			return err
		}
	}
}

// responseStatus returns the status the error handler will write for err.
func responseStatus(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}
