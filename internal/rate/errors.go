package rate

import "errors"

var (
	// ErrRateLimited is an exported constant or variable used by the two-factor engine.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable is an exported constant or variable used by the two-factor engine.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
