package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/phonescreen-ai/phonescreen/internal/bland"
	"github.com/phonescreen-ai/phonescreen/internal/domain"
)

// SignatureHeader carries the hex HMAC-SHA256 of the webhook body.
const SignatureHeader = "X-Webhook-Signature"

type WebhookResponse struct {
	Status        string              `json:"status"`
	PhoneScreenID string              `json:"phone_screen_id,omitempty"`
	ScreenStatus  domain.ScreenStatus `json:"screen_status,omitempty"`
}

func (s *Server) handleGetPhoneScreen(c echo.Context) error {
	screen, err := s.deps.Store.GetPhoneScreen(c.Request().Context(), c.Param("companyID"), c.Param("screenID"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, screen)
}

func (s *Server) handleAnalyzePhoneScreen(c echo.Context) error {
	screen, err := s.deps.Screening.Reanalyze(c.Request().Context(), c.Param("companyID"), c.Param("screenID"))
	if err != nil {
		if screen != nil {
			s.logger.Warn("reanalysis failed", zap.String("phone_screen_id", screen.ID), zap.Error(err))
			return c.JSON(http.StatusBadGateway, screen)
		}
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, screen)
}

func (s *Server) handleRefreshPhoneScreen(c echo.Context) error {
	screen, err := s.deps.Screening.Refresh(c.Request().Context(), c.Param("companyID"), c.Param("screenID"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, screen)
}

func (s *Server) handleCallWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return badRequest("unreadable body")
	}

	if secret := s.config.WebhookSecret; secret != "" {
		if !validSignature(secret, body, c.Request().Header.Get(SignatureHeader)) {
			s.logger.Warn("call webhook rejected, bad signature", zap.String("remote", c.RealIP()))
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
		}
	}

	result, err := bland.ParseWebhook(body)
	if err != nil {
		s.logger.Warn("call webhook rejected", zap.Error(err))
		return badRequest("invalid call payload")
	}

	screen, err := s.deps.Screening.HandleCallWebhook(c.Request().Context(), result)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("call webhook for unknown call", zap.String("call_id", result.CallID))
			return c.JSON(http.StatusOK, WebhookResponse{Status: "ignored"})
		}
		return s.fail(c, err)
	}

	return c.JSON(http.StatusOK, WebhookResponse{
		Status:        "ok",
		PhoneScreenID: screen.ID,
		ScreenStatus:  screen.Status,
	})
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func validSignature(secret string, body []byte, header string) bool {
	header = strings.TrimPrefix(strings.TrimSpace(header), "sha256=")
	got, err := hex.DecodeString(header)
	if err != nil || len(got) == 0 {
		return false
	}
	want, _ := hex.DecodeString(Sign(secret, body))
	return hmac.Equal(got, want)
}
