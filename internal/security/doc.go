// Package security summarizes an engine's configured security posture for
// startup logs and health endpoints. It reads configuration only and never
// reports secrets.
package security
