package httpapi

import (
	"errors"
	"net/http"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// statusOf maps an engine error to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, goIdentity.ErrVerificationExpired):
		return http.StatusGone
	case errors.Is(err, goIdentity.ErrPinAttemptsExceeded):
		return http.StatusTooManyRequests
	}
	switch goIdentity.KindOf(err) {
	case goIdentity.KindValidation:
		return http.StatusBadRequest
	case goIdentity.KindConflict:
		return http.StatusConflict
	case goIdentity.KindUnauthorized:
		return http.StatusUnauthorized
	case goIdentity.KindForbidden:
		return http.StatusForbidden
	case goIdentity.KindNotFound:
		return http.StatusNotFound
	case goIdentity.KindRateLimited:
		return http.StatusTooManyRequests
	case goIdentity.KindNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {"error": ...}. Internal failures are logged and
// answered with a generic message.
func (h *Handler) fail(c echo.Context, err error) error {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.JSON(status, echo.Map{"error": "internal error"})
	}

	body := echo.Map{"error": err.Error()}
	var locked *goIdentity.LockedError
	if errors.As(err, &locked) {
		body["error"] = goIdentity.ErrAccountLocked.Error()
		body["lockedUntil"] = locked.Until.UTC().Format(time.RFC3339)
	}
	return c.JSON(status, body)
}

func badBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
}
