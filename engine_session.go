package goAccount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goAccount/internal"
	"github.com/MrEthical07/goAccount/internal/audit"
	"github.com/MrEthical07/goAccount/session"
)

// ValidateSession parses an access token and confirms its session is still
// live in Redis. Unknown, expired, revoked or malformed sessions return
// ErrSessionInvalid.
func (e *Engine) ValidateSession(ctx context.Context, accessToken string) (*Session, error) {
	if e == nil || e.jwtManager == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		return nil, ErrSessionInvalid
	}
	if _, err := internal.ParseSessionID(claims.SID); err != nil {
		return nil, ErrSessionInvalid
	}

	now := e.now()
	sess, err := e.sessionStore.Get(ctx, claims.SID, now)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if sess.AccountID != claims.UID {
		return nil, ErrSessionInvalid
	}

	return &Session{
		SessionID:   sess.SessionID,
		AccountID:   sess.AccountID,
		AccessToken: accessToken,
		IssuedAt:    time.UnixMilli(sess.CreatedAt),
		ExpiresAt:   time.UnixMilli(sess.ExpiresAt),
	}, nil
}

// Logout revokes one session. Logging out an unknown session is not an
// error.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}
	if _, err := internal.ParseSessionID(sessionID); err != nil {
		return nil
	}

	sess, err := e.sessionStore.Get(ctx, sessionID, e.now())
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.sessionStore.Delete(ctx, sess.AccountID, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, audit.EventSessionRevoked, true, sess.AccountID, "", nil, func() map[string]string {
		return map[string]string{"session_id": sessionID, "reason": "logout"}
	})
	return nil
}
