package session

// Session defines a public type used by twofa APIs.
//
// Timestamps are Unix seconds. LastActiveAt scores the per-account index,
// so listings come back most-recently-active first.
type Session struct {
	SessionID    string
	AccountID    string
	Device       string
	Origin       string
	CreatedAt    int64
	LastActiveAt int64
	ExpiresAt    int64
}
