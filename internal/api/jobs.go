package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/phonescreen-ai/phonescreen/internal/analytics"
	"github.com/phonescreen-ai/phonescreen/internal/domain"
)

type JobRequest struct {
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Location        string            `json:"location"`
	Status          domain.JobStatus  `json:"status"`
	Questions       []domain.Question `json:"questions"`
	// QualifyingScore keeps the current threshold when omitted, the default one on create.
	QualifyingScore *int              `json:"qualifying_score"`
}

func (r JobRequest) apply(j *domain.Job) {
	j.Title = r.Title
	j.Description = r.Description
	j.Location = r.Location
	j.Status = r.Status
	j.Questions = r.Questions
	if r.QualifyingScore != nil {
		j.QualifyingScore = *r.QualifyingScore
	}
}

type GenerateQuestionsResponse struct {
	Questions []domain.Question `json:"questions"`
}

func (s *Server) handleCreateJob(c echo.Context) error {
	var req JobRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}

	ctx := c.Request().Context()
	companyID := c.Param("companyID")
	if _, err := s.deps.Store.GetCompany(ctx, companyID); err != nil {
		return s.fail(c, err)
	}

	job := &domain.Job{CompanyID: companyID, QualifyingScore: domain.DefaultQualifyingScore}
	req.apply(job)
	if err := job.Validate(); err != nil {
		return s.fail(c, err)
	}

	if err := s.deps.Store.CreateJob(ctx, job); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, job)
}

func (s *Server) handleListJobs(c echo.Context) error {
	jobs, err := s.deps.Store.ListJobs(c.Request().Context(), c.Param("companyID"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, jobs)
}

func (s *Server) handleGetJob(c echo.Context) error {
	job, err := s.deps.Store.GetJob(c.Request().Context(), c.Param("companyID"), c.Param("jobID"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

// handleUpdateJob replaces the editable fields. The pathway is rebuilt on the next application.
func (s *Server) handleUpdateJob(c echo.Context) error {
	var req JobRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}

	ctx := c.Request().Context()
	job, err := s.deps.Store.GetJob(ctx, c.Param("companyID"), c.Param("jobID"))
	if err != nil {
		return s.fail(c, err)
	}

	req.apply(job)
	if err := job.Validate(); err != nil {
		return s.fail(c, err)
	}

	if err := s.deps.Store.UpdateJob(ctx, job); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

func (s *Server) handleDeleteJob(c echo.Context) error {
	if err := s.deps.Store.DeleteJob(c.Request().Context(), c.Param("companyID"), c.Param("jobID")); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleGenerateQuestions drafts questions for the job without saving them.
func (s *Server) handleGenerateQuestions(c echo.Context) error {
	if s.deps.Questions == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "question generation is not configured")
	}

	count := 0
	if raw := c.QueryParam("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return badRequest("count must be a positive integer")
		}
		count = n
	}

	ctx := c.Request().Context()
	job, err := s.deps.Store.GetJob(ctx, c.Param("companyID"), c.Param("jobID"))
	if err != nil {
		return s.fail(c, err)
	}

	questions, err := s.deps.Questions.Generate(ctx, job, count)
	if err != nil {
		s.logger.Warn("generate questions failed", zap.String("job_id", job.ID), zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "question generation failed")
	}

	if s.deps.Tracker != nil {
		err := s.deps.Tracker.Capture(ctx, analytics.Event{
			Name:       analytics.EventQuestionsGenerated,
			DistinctID: job.CompanyID,
			Properties: map[string]any{"job_id": job.ID, "count": len(questions)},
		})
		if err != nil {
			s.logger.Debug("analytics capture failed", zap.Error(err))
		}
	}
	return c.JSON(http.StatusOK, GenerateQuestionsResponse{Questions: questions})
}
