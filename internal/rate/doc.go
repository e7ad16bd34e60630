// Package rate throttles login attempts per client IP with Redis fixed-window
// counters (INCR, then EXPIRE on the first hit of a window).
//
// Keys live under the "sa:login:ip:" prefix. Per-account brute force is
// handled by the lockout policy in internal/limiters, not here.
package rate
