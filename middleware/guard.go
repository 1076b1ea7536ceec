package middleware

import (
	"context"
	"net/http"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by a guard.
func ClaimsFromContext(ctx context.Context) (*goIdentity.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*goIdentity.AccessClaims)
	return claims, ok
}

// WithClaims stores claims the way a guard does. Useful in handler tests.
func WithClaims(ctx context.Context, claims *goIdentity.AccessClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// Guard validates the Bearer token in the engine's configured mode.
func Guard(engine *goIdentity.Engine) func(http.Handler) http.Handler {
	return guard(engine, func(ctx context.Context, token string) (*goIdentity.AccessClaims, error) {
		return engine.ValidateAccess(ctx, token)
	})
}

// RequireJWTOnly validates signature and expiry only.
func RequireJWTOnly(engine *goIdentity.Engine) func(http.Handler) http.Handler {
	return withMode(engine, goIdentity.ModeJWTOnly)
}

// RequireStrict also requires the token's session to be live.
func RequireStrict(engine *goIdentity.Engine) func(http.Handler) http.Handler {
	return withMode(engine, goIdentity.ModeStrict)
}

func withMode(engine *goIdentity.Engine, mode goIdentity.ValidationMode) func(http.Handler) http.Handler {
	return guard(engine, func(ctx context.Context, token string) (*goIdentity.AccessClaims, error) {
		return engine.ValidateAccessWithMode(ctx, token, mode)
	})
}

type validateFunc func(ctx context.Context, token string) (*goIdentity.AccessClaims, error)

func guard(engine *goIdentity.Engine, validate validateFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := validate(r.Context(), token)
			if err != nil {
				status := http.StatusUnauthorized
				if goIdentity.KindOf(err) == goIdentity.KindInternal {
					status = http.StatusServiceUnavailable
				}
				http.Error(w, http.StatusText(status), status)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// Require rejects requests whose claims fail any of reqs. It must be
// chained after a guard.
func Require(engine *goIdentity.Engine, reqs ...goIdentity.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok || engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if err := engine.Authorize(claims, reqs...); err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
