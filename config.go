package twofa

import (
	"errors"
	"strings"
	"time"
)

// Config defines a public type used by twofa APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	TOTP        TOTPConfig
	BackupCodes BackupCodeConfig
	Enrollment  EnrollmentConfig
	Session     SessionConfig
	History     HistoryConfig
	Security    SecurityConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig defines a public type used by twofa APIs.
//
// TOTPConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TOTPConfig struct {
	Issuer                  string
	Digits                  int
	Period                  int
	Algorithm               string // "SHA1" (default), "SHA256", "SHA512"
	Skew                    int
	EnforceReplayProtection bool
}

/*
====================================
BACKUP CODE CONFIG
====================================
*/

// BackupCodeConfig defines a public type used by twofa APIs.
//
// BackupCodeConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type BackupCodeConfig struct {
	Count  int
	Length int
}

/*
====================================
ENROLLMENT CONFIG
====================================
*/

// EnrollmentConfig defines a public type used by twofa APIs.
//
// EnrollmentConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EnrollmentConfig struct {
	// PendingSetupTTL bounds how long a staged secret stays confirmable.
	// Expired setups are lazily discarded on the next transition.
	PendingSetupTTL time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by twofa APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	RedisPrefix       string
	TTL               time.Duration
	SlidingExpiration bool
	JitterEnabled     bool
	JitterRange       time.Duration
	MaxDeviceLength   int
}

/*
====================================
HISTORY CONFIG
====================================
*/

// HistoryConfig defines a public type used by twofa APIs.
//
// HistoryConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistoryConfig struct {
	MaxEntries        int
	Retention         time.Duration
	DefaultQueryLimit int
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig defines a public type used by twofa APIs.
//
// SecurityConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SecurityConfig struct {
	ProductionMode          bool
	EnableIPThrottle        bool
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
	SecondFactorMaxAttempts int
	SecondFactorCooldown    time.Duration
}

// AuditConfig defines a public type used by twofa APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by twofa APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig describes the defaultconfig operation and its observable behavior.
//
// DefaultConfig may return an error when input validation, dependency calls, or security checks fail.
// DefaultConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		TOTP: TOTPConfig{
			Issuer:                  "twofa",
			Digits:                  6,
			Period:                  30,
			Algorithm:               "SHA1",
			Skew:                    1,
			EnforceReplayProtection: true,
		},
		BackupCodes: BackupCodeConfig{
			Count:  10,
			Length: 10,
		},
		Enrollment: EnrollmentConfig{
			PendingSetupTTL: 15 * time.Minute,
		},
		Session: SessionConfig{
			RedisPrefix:       "ss",
			TTL:               7 * 24 * time.Hour,
			SlidingExpiration: true,
			JitterEnabled:     true,
			JitterRange:       30 * time.Second,
			MaxDeviceLength:   128,
		},
		History: HistoryConfig{
			MaxEntries:        10,
			Retention:         90 * 24 * time.Hour,
			DefaultQueryLimit: 10,
		},
		Security: SecurityConfig{
			ProductionMode:          false,
			EnableIPThrottle:        true,
			MaxLoginAttempts:        5,
			LoginCooldownDuration:   15 * time.Minute,
			SecondFactorMaxAttempts: 5,
			SecondFactorCooldown:    time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	if c.TOTP.Issuer == "" {
		return errors.New("TOTP Issuer must be set")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 10 {
		return errors.New("TOTP Digits must be between 6 and 10")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP Period must be positive")
	}
	if c.TOTP.Skew < 0 {
		return errors.New("TOTP Skew must not be negative")
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "", "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("TOTP Algorithm must be SHA1, SHA256, or SHA512")
	}

	if c.BackupCodes.Count <= 0 {
		return errors.New("BackupCodes Count must be positive")
	}
	if c.BackupCodes.Length < 8 {
		return errors.New("BackupCodes Length must be at least 8")
	}

	if c.Enrollment.PendingSetupTTL <= 0 {
		return errors.New("Enrollment PendingSetupTTL must be positive")
	}

	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must be set")
	}
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be positive")
	}
	if c.Session.JitterEnabled && c.Session.JitterRange <= 0 {
		return errors.New("Session JitterRange must be positive when jitter is enabled")
	}
	if c.Session.MaxDeviceLength < 0 || c.Session.MaxDeviceLength > 255 {
		return errors.New("Session MaxDeviceLength must be between 0 and 255")
	}

	if c.History.MaxEntries <= 0 {
		return errors.New("History MaxEntries must be positive")
	}
	if c.History.DefaultQueryLimit <= 0 {
		return errors.New("History DefaultQueryLimit must be positive")
	}

	if c.Security.MaxLoginAttempts <= 0 {
		return errors.New("Security MaxLoginAttempts must be positive")
	}
	if c.Security.LoginCooldownDuration <= 0 {
		return errors.New("Security LoginCooldownDuration must be positive")
	}
	if c.Security.SecondFactorMaxAttempts <= 0 {
		return errors.New("Security SecondFactorMaxAttempts must be positive")
	}
	if c.Security.SecondFactorCooldown <= 0 {
		return errors.New("Security SecondFactorCooldown must be positive")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be positive when audit is enabled")
	}

	if c.Security.ProductionMode {
		if !c.TOTP.EnforceReplayProtection {
			return errors.New("ProductionMode requires TOTP replay protection")
		}
		if c.TOTP.Skew > 1 {
			return errors.New("ProductionMode requires TOTP Skew of at most 1")
		}
		if c.BackupCodes.Length < 10 {
			return errors.New("ProductionMode requires BackupCodes Length of at least 10")
		}
		if c.Enrollment.PendingSetupTTL > time.Hour {
			return errors.New("ProductionMode requires Enrollment PendingSetupTTL of at most one hour")
		}
		if !c.Audit.Enabled {
			return errors.New("ProductionMode requires audit to be enabled")
		}
		if !c.Security.EnableIPThrottle {
			return errors.New("ProductionMode requires IP throttling")
		}
	}

	return nil
}

func cloneConfig(cfg Config) Config {
	// Config holds no reference types today; a value copy is a deep copy.
	return cfg
}
