// Package httpapi exposes the identity engine over HTTP with echo.
//
// Routes live under /v1. Public auth endpoints are mounted on /v1/auth,
// bearer-protected account endpoints on /v1/me and operator endpoints on
// /v1/admin. Guards are the net/http middleware from the middleware
// package, adapted with echo.WrapMiddleware.
package httpapi

import (
	"context"
	"net/http"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/middleware"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Options tunes the HTTP surface.
type Options struct {
	// RequestTimeout bounds each engine call. Zero means 5s.
	RequestTimeout time.Duration
	// AdminRoles may call /v1/admin. Without roles the admin group is not
	// registered.
	AdminRoles []string
}

// Handler bundles the engine with the HTTP glue.
type Handler struct {
	engine  *goIdentity.Engine
	log     *zap.Logger
	timeout time.Duration
	admins  []string
}

func New(engine *goIdentity.Engine, log *zap.Logger, opts Options) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Handler{
		engine:  engine,
		log:     log.Named("http"),
		timeout: timeout,
		admins:  append([]string(nil), opts.AdminRoles...),
	}
}

// Register mounts every route on e.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/healthz", Health)
	// Target of the link sent with every PIN.
	e.GET("/verify", h.VerifyEmailLink)

	auth := e.Group("/v1/auth")
	auth.POST("/signup", h.Signup)
	auth.POST("/login", h.Login)
	auth.POST("/login/mfa", h.CompleteMFALogin)
	auth.POST("/login/mfa/email-code", h.RequestMFALoginEmailCode)
	auth.POST("/refresh", h.Refresh)
	auth.POST("/forgot-password", h.ForgotPassword)
	auth.POST("/reset-password", h.ResetPassword)
	auth.POST("/verify-email", h.VerifyEmail)
	auth.GET("/verify-email", h.VerifyEmailLink)
	auth.POST("/logout", h.Logout, echo.WrapMiddleware(middleware.Guard(h.engine)))

	me := e.Group("/v1/me", echo.WrapMiddleware(middleware.Guard(h.engine)))
	me.GET("", h.Me)
	me.POST("/mfa/totp", h.SetupTOTP)
	me.POST("/mfa/totp/enable", h.EnableTOTP)
	me.POST("/mfa/verify", h.VerifyMFA)
	me.POST("/mfa/email-code", h.RequestMFAEmailCode)
	me.POST("/mfa/backup-codes", h.RegenerateBackupCodes)
	me.DELETE("/mfa", h.DisableMFA)
	me.POST("/pins", h.RequestPin)
	me.POST("/pins/verify", h.VerifyPin)
	me.POST("/pins/token", h.VerifyToken)

	if len(h.admins) == 0 {
		return
	}
	admin := e.Group("/v1/admin",
		echo.WrapMiddleware(middleware.RequireStrict(h.engine)),
		echo.WrapMiddleware(middleware.Require(h.engine, goIdentity.RequireRoles(h.admins...))),
	)
	admin.GET("/lockout", h.LockoutStatus)
	admin.POST("/users/:id/unlock", h.UnlockAccount)
}

// Health is the liveness check.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// requestContext bounds the engine call and carries the caller's address
// and user agent into sessions and audit events.
func (h *Handler) requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	ctx := goIdentity.WithClientIP(c.Request().Context(), c.RealIP())
	ctx = goIdentity.WithUserAgent(ctx, c.Request().UserAgent())
	return context.WithTimeout(ctx, h.timeout)
}

// claims returns the guard's claims. Routes without a guard never call it.
func claims(c echo.Context) *goIdentity.AccessClaims {
	cl, _ := middleware.ClaimsFromContext(c.Request().Context())
	return cl
}
