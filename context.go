package goIdentity

import (
	"context"

	"github.com/MrEthical07/goIdentity/internal/flows"
)

// WithClientIP attaches the caller's IP address to ctx. It is recorded on
// new sessions and audit events and drives the per-IP login throttle.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return flows.WithClientIP(ctx, ip)
}

// WithUserAgent attaches the HTTP User-Agent to ctx for sessions and audit.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return flows.WithUserAgent(ctx, userAgent)
}
