// Package rate implements Redis fixed-window throttles for PIN requests and
// login attempts.
//
// A window is one key: INCR plus PEXPIRE on the first hit, executed as a
// single script. Keys are `<prefix>rl:pin:<identifier>` and
// `<prefix>rl:login:<ip>`. A nil *Limiter allows everything.
package rate
