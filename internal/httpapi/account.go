package httpapi

import (
	"net/http"
	"strings"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/labstack/echo/v4"
)

type codeReq struct {
	Code string `json:"code"`
}

type mfaVerifyReq struct {
	Method string `json:"method"`
	Code   string `json:"code"`
}

type pinReq struct {
	Identifier string `json:"identifier"`
	Type       string `json:"type"`
}

type pinVerifyReq struct {
	Identifier string `json:"identifier"`
	Pin        string `json:"pin"`
}

type tokenReq struct {
	Token string `json:"token"`
}

type meResp struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	SessionID string    `json:"sessionId,omitempty"`
	Roles     []string  `json:"roles"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Me echoes the caller's access token claims.
func (h *Handler) Me(c echo.Context) error {
	cl := claims(c)
	roles := cl.Roles
	if roles == nil {
		roles = []string{}
	}
	resp := meResp{UserID: cl.Subject, Email: cl.Email, SessionID: cl.SessionID, Roles: roles}
	if cl.ExpiresAt != nil {
		resp.ExpiresAt = cl.ExpiresAt.Time
	}
	return c.JSON(http.StatusOK, resp)
}

/* ==== MFA ==== */

// SetupTOTP returns the secret, QR code and backup codes exactly once.
func (h *Handler) SetupTOTP(c echo.Context) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	setup, err := h.engine.SetupTOTP(ctx, claims(c).Subject)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, setup)
}

func (h *Handler) EnableTOTP(c echo.Context) error {
	var req codeReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.engine.EnableTOTP(ctx, claims(c).Subject, req.Code); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DisableMFA(c echo.Context) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.engine.DisableMFA(ctx, claims(c).Subject); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) VerifyMFA(c echo.Context) error {
	var req mfaVerifyReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.engine.VerifyMFA(ctx, claims(c).Subject, method(req.Method), req.Code); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RegenerateBackupCodes(c echo.Context) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	codes, err := h.engine.RegenerateBackupCodes(ctx, claims(c).Subject)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"backupCodes": codes})
}

func (h *Handler) RequestMFAEmailCode(c echo.Context) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.engine.RequestMFAEmailCode(ctx, claims(c).Subject); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

/* ==== PINs ==== */

// RequestPin issues a PIN to one of the caller's own identifiers.
func (h *Handler) RequestPin(c echo.Context) error {
	var req pinReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	typ := goIdentity.VerificationType(strings.ToUpper(strings.TrimSpace(req.Type)))
	if err := h.engine.RequestUserPin(ctx, claims(c).Subject, req.Identifier, typ); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

// VerifyPin answers with the record's link-token.
func (h *Handler) VerifyPin(c echo.Context) error {
	var req pinVerifyReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	token, err := h.engine.VerifyUserPin(ctx, claims(c).Subject, req.Identifier, req.Pin)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"token": token})
}

func (h *Handler) VerifyToken(c echo.Context) error {
	var req tokenReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token required"})
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	v, err := h.engine.VerifyToken(ctx, strings.TrimSpace(req.Token))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, viewVerification(v))
}
