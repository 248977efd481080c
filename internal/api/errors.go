package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/phonescreen-ai/phonescreen/internal/domain"
	"github.com/phonescreen-ai/phonescreen/internal/screening"
)

// fail maps workflow and domain errors to HTTP errors. Unknown errors are logged and hidden.
func (s *Server) fail(c echo.Context, err error) error {
	var rejected *screening.CheckError
	switch {
	case errors.As(err, &rejected):
		return echo.NewHTTPError(checkStatus(rejected), rejected.Reason)
	case errors.Is(err, domain.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, invalidMessage(err))
	case errors.Is(err, domain.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "already exists")
	case errors.Is(err, domain.ErrQuotaExceeded):
		return echo.NewHTTPError(http.StatusPaymentRequired, domain.ErrQuotaExceeded.Error())
	case errors.Is(err, screening.ErrCallFailed):
		s.logger.Warn("phone screen call failed", zap.String("uri", c.Request().RequestURI), zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, screening.ErrCallFailed.Error())
	}

	s.logger.Error("request failed",
		zap.String("method", c.Request().Method),
		zap.String("uri", c.Request().RequestURI),
		zap.Error(err),
	)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

func checkStatus(e *screening.CheckError) int {
	switch {
	case errors.Is(e, domain.ErrQuotaExceeded):
		return http.StatusPaymentRequired
	case errors.Is(e, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

// invalidMessage strips the sentinel prefix so clients see "title is required".
func invalidMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, domain.ErrInvalid.Error()+": "); i >= 0 {
		return msg[i+len(domain.ErrInvalid.Error())+2:]
	}
	return msg
}

func badRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}
