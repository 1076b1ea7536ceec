// Package middleware adapts Engine.ValidateAccess and Engine.Authorize to
// net/http handlers.
//
// [Guard] reads the Bearer token from the Authorization header, validates it
// in the engine's configured mode and stores the claims in the request
// context. [RequireJWTOnly] and [RequireStrict] override the mode per route.
// [Require] must run behind a guard and rejects requests whose claims fail
// the given role or permission requirements.
//
// Handlers from other routers can use these through their net/http bridges,
// for example echo.WrapMiddleware.
package middleware
