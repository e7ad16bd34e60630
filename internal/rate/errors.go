package rate

import "errors"

var (
	// ErrRateLimited is returned once the window budget of a client is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
