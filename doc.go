// Package goIdentity is the core of an identity provider: account signup,
// password login with lockout, JWT access tokens with rotating refresh
// tokens, PIN and link-token verification, TOTP and backup-code MFA,
// OAuth sign-in and role/permission checks.
//
// An [Engine] is assembled with [New] and [Builder.Build]. The store and the
// message sender are required collaborators; the clock, random source,
// logger, audit sink and Redis client are optional. Engine methods are safe
// to call from multiple goroutines. The store is the only shared state, and
// every single-use or bounded operation relies on its conditional updates
// rather than on in-process locks.
//
// # Package layout
//
//   - store: persistence contracts, with memory, sqlstore and redisstore backends
//   - password, totp, jwt: credential hashing, one-time codes and token signing
//   - notify: outbound email/SMS messages and the retrying dispatcher
//   - permission: role to permission registry and authorization requirements
//   - middleware: net/http guards built on Engine.ValidateAccess and Engine.Authorize
//   - metrics/export: Prometheus text and OpenTelemetry exporters
//   - internal/flows: the state machines behind every Engine method
//   - internal/httpapi, cmd/identityd: the JSON API server over echo
package goIdentity
