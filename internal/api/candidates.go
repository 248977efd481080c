package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/phonescreen-ai/phonescreen/internal/domain"
)

type UpdateCandidateStatusRequest struct {
	Status domain.CandidateStatus `json:"status"`
}

// ApplyRequest is the public application form.
type ApplyRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	ResumeURL string `json:"resume_url"`
}

type ApplyResponse struct {
	CandidateID   string              `json:"candidate_id"`
	PhoneScreenID string              `json:"phone_screen_id,omitempty"`
	Status        domain.ScreenStatus `json:"status,omitempty"`
}

func (s *Server) handleListCandidates(c echo.Context) error {
	ctx := c.Request().Context()
	companyID, jobID := c.Param("companyID"), c.Param("jobID")

	if _, err := s.deps.Store.GetJob(ctx, companyID, jobID); err != nil {
		return s.fail(c, err)
	}

	candidates, err := s.deps.Store.ListCandidates(ctx, companyID, jobID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, candidates)
}

func (s *Server) handleGetCandidate(c echo.Context) error {
	candidate, err := s.deps.Store.GetCandidate(c.Request().Context(), c.Param("companyID"), c.Param("candidateID"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, candidate)
}

func (s *Server) handleDeleteCandidate(c echo.Context) error {
	if err := s.deps.Store.DeleteCandidate(c.Request().Context(), c.Param("companyID"), c.Param("candidateID")); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleUpdateCandidateStatus lets recruiters override the status, e.g. advance a rejected candidate.
func (s *Server) handleUpdateCandidateStatus(c echo.Context) error {
	var req UpdateCandidateStatusRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	if !req.Status.Valid() {
		return badRequest("status is unknown")
	}

	ctx := c.Request().Context()
	companyID, id := c.Param("companyID"), c.Param("candidateID")
	if err := s.deps.Store.UpdateCandidateStatus(ctx, companyID, id, req.Status, nil); err != nil {
		return s.fail(c, err)
	}

	candidate, err := s.deps.Store.GetCandidate(ctx, companyID, id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, candidate)
}

func (s *Server) handleRescreen(c echo.Context) error {
	app, err := s.deps.Screening.Rescreen(c.Request().Context(), c.Param("companyID"), c.Param("candidateID"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusAccepted, applyResponse(app.Candidate, app.Screen))
}

func (s *Server) handleApply(c echo.Context) error {
	var req ApplyRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}

	candidate := &domain.Candidate{
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		ResumeURL: req.ResumeURL,
	}

	app, err := s.deps.Screening.Apply(c.Request().Context(), c.Param("jobID"), candidate)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusAccepted, applyResponse(app.Candidate, app.Screen))
}

func applyResponse(candidate *domain.Candidate, screen *domain.PhoneScreen) ApplyResponse {
	resp := ApplyResponse{CandidateID: candidate.ID}
	if screen != nil {
		resp.PhoneScreenID = screen.ID
		resp.Status = screen.Status
	}
	return resp
}
