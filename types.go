package twofa

import (
	"context"
	"time"
)

// AccountProvider is the caller-supplied bridge to the primary account
// database. The engine never stores passwords; it asks the provider to
// verify them and to resolve account records by ID.
//
// Implementations must be safe for concurrent use. VerifyPassword returns
// (false, nil) for a wrong password and a non-nil error only for backend
// failures.
//
//	Docs: docs/provider.md
type AccountProvider interface {
	GetAccountByID(ctx context.Context, accountID string) (*AccountRecord, error)
	VerifyPassword(ctx context.Context, accountID, password string) (bool, error)
}

// AccountRecord defines a public type used by twofa APIs.
//
// AccountRecord instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AccountRecord struct {
	AccountID  string
	Identifier string
}

// EnrollmentSetup defines a public type used by twofa APIs.
//
// EnrollmentSetup instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EnrollmentSetup struct {
	Secret string
	URI    string
}

// EnrollmentStatus defines a public type used by twofa APIs.
//
// EnrollmentStatus instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EnrollmentStatus struct {
	Enabled              bool
	PendingSetup         bool
	BackupCodesRemaining int
}

// AuthRequest defines a public type used by twofa APIs.
//
// AuthRequest instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuthRequest struct {
	AccountID    string
	Password     string
	SecondFactor string
	Device       string
}

// AuthResult defines a public type used by twofa APIs.
//
// AuthResult instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuthResult struct {
	AccountID      string
	SessionID      string
	UsedBackupCode bool
}

// SessionInfo defines a public type used by twofa APIs.
//
// SessionInfo instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionInfo struct {
	SessionID    string
	Device       string
	Origin       string
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// LoginAttempt defines a public type used by twofa APIs.
//
// LoginAttempt instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LoginAttempt struct {
	Timestamp time.Time
	Origin    string
	Success   bool
}
