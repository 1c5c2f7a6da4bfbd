package twofa

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess        = "login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventLoginRateLimited    = "login_rate_limited"
	auditEventSecondFactorSuccess = "second_factor_success"
	auditEventSecondFactorFailure = "second_factor_failure"
	auditEventSetupStarted        = "twofactor_setup_started"
	auditEventSetupConfirmed      = "twofactor_setup_confirmed"
	auditEventSetupAbandoned      = "twofactor_setup_abandoned"
	auditEventTwoFactorDisabled   = "twofactor_disabled"
	auditEventBackupCodesIssued   = "backup_codes_issued"
	auditEventBackupCodeUsed      = "backup_code_used"
	auditEventBackupCodeFailed    = "backup_code_failed"
	auditEventSessionRevoked      = "session_revoked"
	auditEventSessionsRevokedAll  = "sessions_revoked_all"
	auditEventRateLimitTriggered  = "rate_limit_triggered"
)

// AuditErrorCode defines a public type used by twofa APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrInvalidCredentials   AuditErrorCode = "invalid_credentials"
	auditErrInvalidCode          AuditErrorCode = "invalid_code"
	auditErrAuthenticationFailed AuditErrorCode = "authentication_failed"
	auditErrRateLimited          AuditErrorCode = "rate_limited"
	auditErrAlreadyEnabled       AuditErrorCode = "already_enabled"
	auditErrNotEnabled           AuditErrorCode = "not_enabled"
	auditErrSetupNotPending      AuditErrorCode = "setup_not_pending"
	auditErrConflict             AuditErrorCode = "conflict"
	auditErrAccountNotFound      AuditErrorCode = "account_not_found"
	auditErrSessionNotFound      AuditErrorCode = "session_not_found"
	auditErrUnavailable          AuditErrorCode = "backend_unavailable"
	auditErrInternal             AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	scope string,
	metadataBuilder func() map[string]string,
) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", nil, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrInvalidCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrAuthenticationFailed):
		return auditErrAuthenticationFailed
	case errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrSecondFactorRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrTwoFactorAlreadyEnabled):
		return auditErrAlreadyEnabled
	case errors.Is(err, ErrTwoFactorNotEnabled):
		return auditErrNotEnabled
	case errors.Is(err, ErrEnrollmentNotPending):
		return auditErrSetupNotPending
	case errors.Is(err, ErrEnrollmentConflict):
		return auditErrConflict
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrProfileUnavailable),
		errors.Is(err, ErrSessionUnavailable),
		errors.Is(err, ErrHistoryUnavailable),
		errors.Is(err, ErrBackupCodeUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
