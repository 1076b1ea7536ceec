// Package permission maps roles to permission sets and evaluates
// authorization requirements against the roles carried by an access token.
//
// Permissions are registered once at startup, each receiving a bit in a
// fixed 256-bit Mask. Roles are composed from registered permissions. After
// Freeze both registries are read-only and safe for concurrent checks.
//
// This package performs no I/O and does not import the engine.
package permission
