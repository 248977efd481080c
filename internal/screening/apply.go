package screening

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/phonescreen-ai/phonescreen/internal/analytics"
	"github.com/phonescreen-ai/phonescreen/internal/bland"
	"github.com/phonescreen-ai/phonescreen/internal/domain"
	"github.com/phonescreen-ai/phonescreen/internal/logger"
)

// Application is a candidate applying to a job, together with the screen started for it.
type Application struct {
	Job       *domain.Job
	Candidate *domain.Candidate
	Screen    *domain.PhoneScreen
}

// Apply stores the candidate and starts the phone screen. Rejected applications are not stored
// and return a *CheckError. When the call cannot be placed the candidate and screen are kept with
// status failed and the returned error wraps ErrCallFailed.
func (s *Service) Apply(ctx context.Context, jobID string, candidate *domain.Candidate) (*Application, error) {
	job, err := s.store.GetPublicJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	candidate.ID = ""
	candidate.JobID = job.ID
	candidate.CompanyID = job.CompanyID
	candidate.Status = domain.CandidateApplied
	candidate.Score = nil
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	app := &Application{Job: job, Candidate: candidate}
	if err := RunChecks(ctx, s.checkDeps(), s.checks, app); err != nil {
		var rejected *CheckError
		if errors.As(err, &rejected) {
			s.track(ctx, analytics.EventApplicationRejected, job.CompanyID, map[string]any{
				"job_id": job.ID,
				"check":  rejected.Check,
			})
		}
		return nil, err
	}

	if err := s.store.CreateCandidate(ctx, candidate); err != nil {
		return nil, fmt.Errorf("store candidate: %w", err)
	}

	s.track(ctx, analytics.EventApplicationReceived, job.CompanyID, map[string]any{"job_id": job.ID})

	if err := s.startScreen(ctx, app); err != nil {
		return app, err
	}
	return app, nil
}

// Rescreen places a new call for a stored candidate, e.g. after a missed call.
func (s *Service) Rescreen(ctx context.Context, companyID, candidateID string) (*Application, error) {
	candidate, err := s.store.GetCandidate(ctx, companyID, candidateID)
	if err != nil {
		return nil, err
	}
	job, err := s.store.GetJob(ctx, companyID, candidate.JobID)
	if err != nil {
		return nil, err
	}

	app := &Application{Job: job, Candidate: candidate}
	if err := RunChecks(ctx, s.checkDeps(), s.checks, app); err != nil {
		return nil, err
	}

	if err := s.startScreen(ctx, app); err != nil {
		return app, err
	}
	return app, nil
}

// startScreen creates the screen record and places the call. Any failure after the record exists
// leaves it, and the candidate, in status failed with the error stored.
func (s *Service) startScreen(ctx context.Context, app *Application) error {
	job, candidate := app.Job, app.Candidate

	screen := &domain.PhoneScreen{
		CompanyID:   job.CompanyID,
		JobID:       job.ID,
		CandidateID: candidate.ID,
		Status:      domain.ScreenQueued,
	}
	if err := s.store.CreatePhoneScreen(ctx, screen); err != nil {
		s.failCandidate(ctx, candidate)
		return fmt.Errorf("%w: store phone screen: %v", ErrCallFailed, err)
	}
	app.Screen = screen

	log := logger.WithFields(s.logger, logger.ScreenFields(job.CompanyID, job.ID, candidate.ID, screen.ID)...)

	if err := s.store.IncrementCallsUsed(ctx, job.CompanyID); err != nil {
		s.failScreen(ctx, app, err)
		if errors.Is(err, domain.ErrQuotaExceeded) {
			return err
		}
		return fmt.Errorf("%w: reserve call: %v", ErrCallFailed, err)
	}

	callID, err := s.placeCall(ctx, app)
	if err != nil {
		if releaseErr := s.store.ReleaseCall(ctx, job.CompanyID); releaseErr != nil {
			log.Warn("release reserved call failed", zap.Error(releaseErr))
		}
		s.recorder.CallPlaced(false)
		s.failScreen(ctx, app, err)
		return fmt.Errorf("%w: %v", ErrCallFailed, err)
	}
	s.recorder.CallPlaced(true)

	screen.CallID = callID
	stored, err := s.store.SetPhoneScreenCallID(ctx, job.CompanyID, screen.ID, callID)
	if err != nil {
		// The call is live; the webhook still finds the screen through its metadata.
		log.Error("store call id failed", zap.String(logger.FieldCall, callID), zap.Error(err))
	}
	if !stored {
		// A webhook may have resolved the screen through its metadata in the meantime.
		if current, err := s.store.GetPhoneScreen(ctx, job.CompanyID, screen.ID); err == nil {
			screen = current
			app.Screen = current
		}
	}

	if !screen.Status.Terminal() {
		candidate.Status = domain.CandidateScreening
		if err := s.store.UpdateCandidateStatus(ctx, job.CompanyID, candidate.ID, domain.CandidateScreening, nil); err != nil {
			log.Warn("update candidate status failed", zap.Error(err))
		}
	}

	log.Info("phone screen started", zap.String(logger.FieldCall, callID))
	s.track(ctx, analytics.EventScreenStarted, job.CompanyID, map[string]any{
		"job_id":          job.ID,
		"phone_screen_id": screen.ID,
		"questions":       len(job.Questions),
	})
	return nil
}

func (s *Service) placeCall(ctx context.Context, app *Application) (string, error) {
	pathwayID, err := s.ensurePathway(ctx, app.Job)
	if err != nil {
		return "", err
	}

	req := bland.NewCallRequest(s.cfg.Call, app.Candidate.Phone, pathwayID)
	req.Metadata[bland.MetadataScreenID] = app.Screen.ID
	req.Metadata[logger.FieldCompany] = app.Job.CompanyID
	req.Metadata[logger.FieldCandidate] = app.Candidate.ID
	req.RequestData["candidate_name"] = app.Candidate.Name
	req.RequestData["job_title"] = app.Job.Title

	if company, err := s.store.GetCompany(ctx, app.Job.CompanyID); err == nil {
		req.RequestData["company_name"] = company.Name
	} else {
		s.logger.Warn("load company for call failed", zap.String(logger.FieldCompany, app.Job.CompanyID), zap.Error(err))
	}

	return s.caller.SendCall(ctx, req)
}

// ensurePathway returns the vendor pathway for the job, creating it on first use and rebuilding it
// when the title or questions changed since the last build.
func (s *Service) ensurePathway(ctx context.Context, job *domain.Job) (string, error) {
	s.pathwayMu.Lock()
	defer s.pathwayMu.Unlock()

	// Another application may have built the pathway while this one waited.
	if fresh, err := s.store.GetJob(ctx, job.CompanyID, job.ID); err == nil {
		job.PathwayID = fresh.PathwayID
		job.PathwayVersion = fresh.PathwayVersion
	}

	digest := job.QuestionsDigest()
	if job.PathwayID != "" && job.PathwayVersion == digest {
		return job.PathwayID, nil
	}

	log := s.logger.With(zap.String(logger.FieldJob, job.ID))

	pathwayID := job.PathwayID
	if pathwayID == "" {
		id, err := s.caller.CreatePathway(ctx, bland.PathwayName(job), fmt.Sprintf("Phone screen for %s", job.Title))
		if err != nil {
			return "", err
		}
		pathwayID = id

		// Keep the id even if the update below fails so the next attempt reuses it.
		if err := s.store.SetJobPathway(ctx, job.ID, pathwayID, ""); err != nil {
			return "", fmt.Errorf("store pathway id: %w", err)
		}
		job.PathwayID = pathwayID
		job.PathwayVersion = ""
	}

	if err := s.caller.UpdatePathway(ctx, pathwayID, bland.BuildPathway(s.cfg.Pathway, job)); err != nil {
		return "", err
	}

	if err := s.store.SetJobPathway(ctx, job.ID, pathwayID, digest); err != nil {
		return "", fmt.Errorf("store pathway version: %w", err)
	}
	job.PathwayVersion = digest

	log.Info("pathway built", zap.String("pathway_id", pathwayID), zap.Int("questions", len(job.Questions)))
	return pathwayID, nil
}

func (s *Service) failScreen(ctx context.Context, app *Application, cause error) {
	app.Screen.Status = domain.ScreenFailed
	app.Screen.Error = cause.Error()
	if err := s.store.UpdatePhoneScreen(ctx, app.Screen); err != nil {
		s.logger.Error("mark phone screen failed",
			append(logger.ScreenFields(app.Job.CompanyID, app.Job.ID, app.Candidate.ID, app.Screen.ID), zap.Error(err))...)
	}
	s.failCandidate(ctx, app.Candidate)
}

func (s *Service) failCandidate(ctx context.Context, c *domain.Candidate) {
	c.Status = domain.CandidateFailed
	if err := s.store.UpdateCandidateStatus(ctx, c.CompanyID, c.ID, domain.CandidateFailed, nil); err != nil {
		s.logger.Error("mark candidate failed", zap.String(logger.FieldCandidate, c.ID), zap.Error(err))
	}
}
