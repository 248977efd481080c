package screening

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/phonescreen-ai/phonescreen/internal/analytics"
	"github.com/phonescreen-ai/phonescreen/internal/bland"
	"github.com/phonescreen-ai/phonescreen/internal/domain"
	"github.com/phonescreen-ai/phonescreen/internal/logger"
	"github.com/phonescreen-ai/phonescreen/internal/notify"
)

const noAnswerReason = "the call ended without a conversation"

// HandleCallWebhook applies a vendor call result to its phone screen. Results for screens that
// already reached a terminal status are acknowledged without changes. A failed analysis is
// recorded on the screen and does not return an error.
func (s *Service) HandleCallWebhook(ctx context.Context, result *bland.CallResult) (*domain.PhoneScreen, error) {
	screen, err := s.findScreen(ctx, result)
	if err != nil {
		return nil, err
	}

	log := logger.WithFields(s.logger,
		append(logger.ScreenFields(screen.CompanyID, screen.JobID, screen.CandidateID, screen.ID),
			zap.String(logger.FieldCall, result.CallID))...)

	if screen.Status.Terminal() {
		log.Info("call webhook ignored, phone screen already finished", zap.String("status", string(screen.Status)))
		s.recorder.WebhookReceived("duplicate")
		return screen, nil
	}

	outcome := result.Outcome()
	s.recorder.WebhookReceived(string(outcome))

	if screen.CallID == "" {
		screen.CallID = result.CallID
	}
	screen.Transcript = result.Transcript
	screen.RecordingURL = result.RecordingURL
	screen.DurationSeconds = int(result.Duration.Seconds())

	switch outcome {
	case domain.ScreenInProgress:
		screen.Status = domain.ScreenInProgress
		if err := s.store.UpdatePhoneScreen(ctx, screen); err != nil {
			return nil, fmt.Errorf("store phone screen: %w", err)
		}
		return screen, nil

	case domain.ScreenNoAnswer, domain.ScreenFailed:
		screen.Status = outcome
		screen.Error = result.ErrorMessage
		if screen.Error == "" {
			screen.Error = noAnswerReason
		}
		if err := s.store.UpdatePhoneScreen(ctx, screen); err != nil {
			return nil, fmt.Errorf("store phone screen: %w", err)
		}
		if err := s.store.UpdateCandidateStatus(ctx, screen.CompanyID, screen.CandidateID, domain.CandidateFailed, nil); err != nil {
			log.Warn("update candidate status failed", zap.Error(err))
		}
		log.Info("phone screen ended without transcript", zap.String("status", string(outcome)))
		s.finish(ctx, screen, nil)
		return screen, nil
	}

	screen.Status = domain.ScreenCompleted
	screen.Error = ""
	if err := s.store.UpdatePhoneScreen(ctx, screen); err != nil {
		return nil, fmt.Errorf("store phone screen: %w", err)
	}
	if err := s.store.UpdateCandidateStatus(ctx, screen.CompanyID, screen.CandidateID, domain.CandidateScreened, nil); err != nil {
		log.Warn("update candidate status failed", zap.Error(err))
	}

	if err := s.analyze(ctx, screen); err != nil {
		log.Warn("phone screen analysis failed", zap.Error(err))
	}
	return screen, nil
}

// Reanalyze scores the stored transcript of a screen again, e.g. after a failed analysis.
func (s *Service) Reanalyze(ctx context.Context, companyID, screenID string) (*domain.PhoneScreen, error) {
	screen, err := s.store.GetPhoneScreen(ctx, companyID, screenID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(screen.Transcript) == "" {
		return nil, domain.Invalid("transcript", "is empty, nothing to analyze")
	}

	if err := s.analyze(ctx, screen); err != nil {
		return screen, err
	}
	return screen, nil
}

// Refresh pulls the call state from the vendor and applies it like a webhook. It recovers screens
// whose webhook never arrived.
func (s *Service) Refresh(ctx context.Context, companyID, screenID string) (*domain.PhoneScreen, error) {
	screen, err := s.store.GetPhoneScreen(ctx, companyID, screenID)
	if err != nil {
		return nil, err
	}
	if screen.CallID == "" {
		return nil, domain.Invalid("call_id", "is not set, the call was never placed")
	}
	if screen.Status.Terminal() {
		return screen, nil
	}

	result, err := s.caller.GetCall(ctx, screen.CallID)
	if err != nil {
		return nil, fmt.Errorf("get call: %w", err)
	}
	return s.HandleCallWebhook(ctx, result)
}

func (s *Service) findScreen(ctx context.Context, result *bland.CallResult) (*domain.PhoneScreen, error) {
	screen, err := s.store.GetPhoneScreenByCallID(ctx, result.CallID)
	if err == nil {
		return screen, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	// The webhook may arrive before the call id was stored.
	screenID := result.ScreenID()
	companyID := strings.TrimSpace(result.Metadata[logger.FieldCompany])
	if screenID == "" || companyID == "" {
		return nil, err
	}
	return s.store.GetPhoneScreen(ctx, companyID, screenID)
}

// analyze scores the transcript and stores the result. On failure the screen is marked failed with
// the error stored, and the error is returned.
func (s *Service) analyze(ctx context.Context, screen *domain.PhoneScreen) error {
	log := logger.WithFields(s.logger, logger.ScreenFields(screen.CompanyID, screen.JobID, screen.CandidateID, screen.ID)...)

	job, err := s.store.GetJob(ctx, screen.CompanyID, screen.JobID)
	if err != nil {
		return s.analysisFailed(ctx, screen, fmt.Errorf("load job: %w", err))
	}

	res, err := s.analyzer.Analyze(ctx, job, screen.Transcript)
	if err != nil {
		return s.analysisFailed(ctx, screen, err)
	}

	score := res.Score
	qualified := res.Qualified
	screen.Scores = res.Scores
	screen.Score = &score
	screen.Qualified = &qualified
	screen.Summary = res.Summary
	screen.Status = domain.ScreenAnalyzed
	screen.Error = ""

	if err := s.store.UpdatePhoneScreen(ctx, screen); err != nil {
		return fmt.Errorf("store analysis: %w", err)
	}

	status := domain.CandidateRejected
	outcome := "rejected"
	if qualified {
		status = domain.CandidateQualified
		outcome = "qualified"
	}
	if err := s.store.UpdateCandidateStatus(ctx, screen.CompanyID, screen.CandidateID, status, &score); err != nil {
		log.Warn("update candidate status failed", zap.Error(err))
	}

	s.recorder.ScreenAnalyzed(outcome, score)
	log.Info("phone screen analyzed",
		zap.Float64("score", score),
		zap.Bool("qualified", qualified),
		zap.String("model", res.Model),
	)

	s.finish(ctx, screen, job)
	return nil
}

func (s *Service) analysisFailed(ctx context.Context, screen *domain.PhoneScreen, cause error) error {
	s.recorder.ScreenAnalyzed("error", 0)

	screen.Status = domain.ScreenFailed
	screen.Error = "analysis failed: " + cause.Error()
	if err := s.store.UpdatePhoneScreen(ctx, screen); err != nil {
		s.logger.Error("mark phone screen failed", zap.String(logger.FieldScreen, screen.ID), zap.Error(err))
	}
	if err := s.store.UpdateCandidateStatus(ctx, screen.CompanyID, screen.CandidateID, domain.CandidateFailed, nil); err != nil {
		s.logger.Warn("update candidate status failed", zap.String(logger.FieldCandidate, screen.CandidateID), zap.Error(err))
	}
	return fmt.Errorf("analyze phone screen %s: %w", screen.ID, cause)
}

// finish notifies recruiters and captures the analytics event of a finished screen. job may be nil.
func (s *Service) finish(ctx context.Context, screen *domain.PhoneScreen, job *domain.Job) {
	props := map[string]any{
		"job_id":           screen.JobID,
		"phone_screen_id":  screen.ID,
		"status":           string(screen.Status),
		"duration_seconds": screen.DurationSeconds,
	}
	if screen.Score != nil {
		props["score"] = *screen.Score
	}
	if screen.Qualified != nil {
		props["qualified"] = *screen.Qualified
	}
	s.track(ctx, analytics.EventScreenFinished, screen.CompanyID, props)

	if s.mailer == nil {
		return
	}
	if err := s.notifyRecruiters(ctx, screen, job); err != nil {
		s.logger.Warn("notify recruiters failed", zap.String(logger.FieldScreen, screen.ID), zap.Error(err))
	}
}

func (s *Service) notifyRecruiters(ctx context.Context, screen *domain.PhoneScreen, job *domain.Job) error {
	users, err := s.store.ListNotifiedUsers(ctx, screen.CompanyID)
	if err != nil {
		return fmt.Errorf("list recruiters: %w", err)
	}
	if len(users) == 0 {
		return nil
	}

	to := make([]string, 0, len(users))
	for _, u := range users {
		to = append(to, u.Email)
	}

	if job == nil {
		if job, err = s.store.GetJob(ctx, screen.CompanyID, screen.JobID); err != nil {
			return fmt.Errorf("load job: %w", err)
		}
	}

	report := notify.Report{JobTitle: job.Title, Screen: screen}
	if candidate, err := s.store.GetCandidate(ctx, screen.CompanyID, screen.CandidateID); err == nil {
		report.CandidateName = candidate.Name
	}
	if company, err := s.store.GetCompany(ctx, screen.CompanyID); err == nil {
		report.CompanyName = company.Name
	}
	if base := strings.TrimRight(s.cfg.DashboardURL, "/"); base != "" {
		report.Link = fmt.Sprintf("%s/phone-screens/%s", base, screen.ID)
	}

	_, err = s.mailer.Send(ctx, notify.ScreenCompleted(to, report))
	return err
}
