package httpapi

import (
	"net/http"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/labstack/echo/v4"
)

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type mfaLoginReq struct {
	MFAToken string `json:"mfaToken"`
	Method   string `json:"method"`
	Code     string `json:"code"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

type emailReq struct {
	Email string `json:"email"`
}

type resetReq struct {
	Email       string `json:"email"`
	Pin         string `json:"pin"`
	NewPassword string `json:"newPassword"`
}

type verifyEmailReq struct {
	Email string `json:"email"`
	Pin   string `json:"pin"`
}

type logoutReq struct {
	All bool `json:"all"`
}

// Signup: create the account and send the verification PIN.
func (h *Handler) Signup(c echo.Context) error {
	var req goIdentity.SignupRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	u, err := h.engine.Signup(ctx, req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"user": viewUser(u)})
}

// Login answers with tokens or, when MFA is required, a challenge.
func (h *Handler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	res, err := h.engine.Login(ctx, req.Email, req.Password)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, viewLogin(res))
}

func (h *Handler) CompleteMFALogin(c echo.Context) error {
	var req mfaLoginReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	res, err := h.engine.CompleteMFALogin(ctx, req.MFAToken, method(req.Method), req.Code)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, viewLogin(res))
}

// RequestMFALoginEmailCode mails the EMAIL second factor to the holder of
// an MFA challenge.
func (h *Handler) RequestMFALoginEmailCode(c echo.Context) error {
	var req mfaLoginReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.MFAToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "mfaToken required"})
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.engine.RequestMFALoginEmailCode(ctx, strings.TrimSpace(req.MFAToken)); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

// Refresh rotates the presented refresh token.
func (h *Handler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refreshToken required"})
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	pair, err := h.engine.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, pair)
}

// Logout ends the token's session, or every session when all is set.
func (h *Handler) Logout(c echo.Context) error {
	var req logoutReq
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return badBody(c)
		}
	}
	cl := claims(c)
	sessionID := cl.SessionID
	if req.All {
		sessionID = ""
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.engine.Logout(ctx, cl.Subject, sessionID); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ForgotPassword always answers 202 so callers cannot enumerate accounts.
func (h *Handler) ForgotPassword(c echo.Context) error {
	var req emailReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.engine.ForgotPassword(ctx, req.Email); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.engine.ResetPassword(ctx, req.Email, req.Pin, req.NewPassword); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) VerifyEmail(c echo.Context) error {
	var req verifyEmailReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.engine.VerifyEmail(ctx, req.Email, req.Pin); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// VerifyEmailLink consumes ?token= from the emailed link.
func (h *Handler) VerifyEmailLink(c echo.Context) error {
	token := strings.TrimSpace(c.QueryParam("token"))
	if token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token required"})
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.engine.VerifyEmailLink(ctx, token); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"verified": true})
}

func method(s string) goIdentity.MFAMethod {
	return goIdentity.MFAMethod(strings.ToUpper(strings.TrimSpace(s)))
}
