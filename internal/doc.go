// Package internal holds secret generation helpers shared by the engine.
//
// Every generator reads from a caller-supplied io.Reader so tests can inject
// deterministic randomness; production callers pass crypto/rand.Reader.
//
// Sub-packages:
//
//   - audit: async security-event dispatch
//   - flows: the verification, MFA, lockout, token and account flows
//   - httpapi: echo handlers for the identityd JSON API
//   - logging: zap logger construction
//   - metrics: lock-free counters and latency histograms
//   - rate: Redis fixed-window throttles
//   - security: configuration posture report
package internal
