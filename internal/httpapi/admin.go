package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// LockoutStatus reports ?email= lock state.
func (h *Handler) LockoutStatus(c echo.Context) error {
	email := strings.TrimSpace(c.QueryParam("email"))
	if email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	status, err := h.engine.CheckLockoutStatus(ctx, email)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

func (h *Handler) UnlockAccount(c echo.Context) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.engine.UnlockAccount(ctx, c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
