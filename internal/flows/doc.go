// Package flows contains the orchestrators behind every Engine operation.
//
// Each flow function (RunLogin, RunRefresh, RunVerifyPin, ...) takes the
// shared *Deps and performs all I/O through it. The Engine builds Deps once
// and owns every resource it references.
//
// # Architecture boundaries
//
// Flows coordinate the store, the JWT manager, the TOTP authenticator, the
// rate limiter, the notification queue, the audit sink and metrics.
// Atomicity comes from conditional store updates, never from locks here.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goIdentity (to avoid import cycles).
//   - Convert store failures into domain errors.
package flows
