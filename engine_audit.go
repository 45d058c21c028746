package goAccount

import (
	"context"
	"errors"
)

// AuditErrorCode is the stable error label written into audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials    AuditErrorCode = "invalid_credentials"
	auditErrAccountNotFound       AuditErrorCode = "account_not_found"
	auditErrAccountLocked         AuditErrorCode = "account_locked"
	auditErrAccountNotRecoverable AuditErrorCode = "account_not_recoverable"
	auditErrRecoveryExpired       AuditErrorCode = "recovery_window_expired"
	auditErrNotEligible           AuditErrorCode = "not_eligible_for_erasure"
	auditErrInvalidCode           AuditErrorCode = "invalid_code"
	auditErrCodeExpired           AuditErrorCode = "code_expired"
	auditErrStepUpRequired        AuditErrorCode = "step_up_required"
	auditErrRateLimited           AuditErrorCode = "rate_limited"
	auditErrDeliveryFailed        AuditErrorCode = "delivery_failed"
	auditErrInvalidRequest        AuditErrorCode = "invalid_request"
	auditErrSessionInvalid        AuditErrorCode = "session_invalid"
	auditErrUnavailable           AuditErrorCode = "backend_unavailable"
	auditErrInternal              AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	purpose string,
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

	meta := metaFrom(ctx)
	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		SessionID: meta.sessionID,
		Purpose:   purpose,
		IP:        meta.clientIP,
		UserAgent: meta.userAgent,
		Success:   success,
		Metadata:  metadata,
	}
	if sid := metadata["session_id"]; sid != "" {
		event.SessionID = sid
		delete(metadata, "session_id")
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountNotRecoverable):
		return auditErrAccountNotRecoverable
	case errors.Is(err, ErrRecoveryWindowExpired):
		return auditErrRecoveryExpired
	case errors.Is(err, ErrNotEligibleForErasure):
		return auditErrNotEligible
	case errors.Is(err, ErrInvalidCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrCodeExpired):
		return auditErrCodeExpired
	case errors.Is(err, ErrStepUpRequired):
		return auditErrStepUpRequired
	case errors.Is(err, ErrStepUpRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrCodeDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrInvalidPurpose),
		errors.Is(err, ErrInvalidRetention):
		return auditErrInvalidRequest
	case errors.Is(err, ErrSessionInvalid):
		return auditErrSessionInvalid
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrEngineNotReady):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
