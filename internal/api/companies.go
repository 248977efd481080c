package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/phonescreen-ai/phonescreen/internal/domain"
	"github.com/phonescreen-ai/phonescreen/internal/store"
)

type CreateCompanyRequest struct {
	Name string `json:"name"`
}

type CompanyResponse struct {
	*domain.Company
	Subscription *domain.Subscription `json:"subscription,omitempty"`
}

type CreateUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	// Notify defaults to true.
	Notify *bool `json:"notify"`
}

func (s *Server) trial() store.Trial {
	days := s.config.TrialDays
	if days <= 0 {
		days = 14
	}
	return store.Trial{
		Plan:   s.config.TrialPlan,
		Calls:  s.config.TrialCalls,
		Length: time.Duration(days) * 24 * time.Hour,
	}
}

func (s *Server) handleCreateCompany(c echo.Context) error {
	var req CreateCompanyRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}

	company := &domain.Company{Name: req.Name}
	if err := company.Validate(); err != nil {
		return s.fail(c, err)
	}

	ctx := c.Request().Context()
	if err := s.deps.Store.CreateCompany(ctx, company, s.trial()); err != nil {
		return s.fail(c, err)
	}

	resp := CompanyResponse{Company: company}
	if sub, err := s.deps.Store.GetSubscription(ctx, company.ID); err == nil {
		resp.Subscription = sub
	}
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleGetCompany(c echo.Context) error {
	ctx := c.Request().Context()
	company, err := s.deps.Store.GetCompany(ctx, c.Param("companyID"))
	if err != nil {
		return s.fail(c, err)
	}

	resp := CompanyResponse{Company: company}
	if sub, err := s.deps.Store.GetSubscription(ctx, company.ID); err == nil {
		resp.Subscription = sub
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCreateUser(c echo.Context) error {
	var req CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}

	ctx := c.Request().Context()
	companyID := c.Param("companyID")
	if _, err := s.deps.Store.GetCompany(ctx, companyID); err != nil {
		return s.fail(c, err)
	}

	notify := true
	if req.Notify != nil {
		notify = *req.Notify
	}
	user := &domain.User{CompanyID: companyID, Email: req.Email, Name: req.Name, Notify: notify}
	if err := user.Validate(); err != nil {
		return s.fail(c, err)
	}

	if err := s.deps.Store.CreateUser(ctx, user); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, user)
}
