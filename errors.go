package twofa

import "errors"

var (
	// ErrInvalidCredentials is an exported constant or variable used by the two-factor engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidCode is an exported constant or variable used by the two-factor engine.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrAuthenticationFailed is an exported constant or variable used by the two-factor engine.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrTwoFactorAlreadyEnabled is an exported constant or variable used by the two-factor engine.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")
	// ErrTwoFactorNotEnabled is an exported constant or variable used by the two-factor engine.
	ErrTwoFactorNotEnabled = errors.New("two-factor not enabled")
	// ErrEnrollmentNotPending is an exported constant or variable used by the two-factor engine.
	ErrEnrollmentNotPending = errors.New("no pending two-factor setup")
	// ErrEnrollmentConflict is an exported constant or variable used by the two-factor engine.
	ErrEnrollmentConflict = errors.New("concurrent enrollment update")
	// ErrLoginRateLimited is an exported constant or variable used by the two-factor engine.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrSecondFactorRateLimited is an exported constant or variable used by the two-factor engine.
	ErrSecondFactorRateLimited = errors.New("second factor rate limited")
	// ErrAccountNotFound is an exported constant or variable used by the two-factor engine.
	ErrAccountNotFound = errors.New("account not found")
	// ErrSessionNotFound is an exported constant or variable used by the two-factor engine.
	ErrSessionNotFound = errors.New("session not found")
	// ErrProfileUnavailable is an exported constant or variable used by the two-factor engine.
	ErrProfileUnavailable = errors.New("two-factor profile backend unavailable")
	// ErrSessionUnavailable is an exported constant or variable used by the two-factor engine.
	ErrSessionUnavailable = errors.New("session backend unavailable")
	// ErrHistoryUnavailable is an exported constant or variable used by the two-factor engine.
	ErrHistoryUnavailable = errors.New("login history backend unavailable")
	// ErrBackupCodeUnavailable is an exported constant or variable used by the two-factor engine.
	ErrBackupCodeUnavailable = errors.New("backup code backend unavailable")
	// ErrEngineNotReady is an exported constant or variable used by the two-factor engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
