// Package jwt signs and parses the identity engine's tokens: access tokens
// (HS256 or Ed25519), refresh tokens and MFA login challenges (HS256 with a
// separate refresh secret). Parsing is strict: algorithm pinning, required
// expiry and iat, issuer and audience checks, and an injectable clock.
package jwt
