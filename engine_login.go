package goAccount

import (
	"context"
	"time"

	"github.com/MrEthical07/goAccount/internal"
	"github.com/MrEthical07/goAccount/internal/flows"
	"github.com/MrEthical07/goAccount/session"
)

// Login runs the login guard for identifier and secret.
//
// Failures are typed: *LockedError (matches ErrAccountLocked),
// *InvalidCredentialsError (matches ErrInvalidCredentials),
// ErrAccountNotFound, ErrAccountNotRecoverable and ErrStoreUnavailable. A
// correct secret on a deactivated account inside its recovery window
// reactivates it before the session is issued.
//
// Lost compare-and-set races are re-decided up to
// Config.Lockout.MaxStateRetries times. Exhausting that budget is reported as
// ErrStoreUnavailable, the same backend-class failure as an unreachable store.
func (e *Engine) Login(ctx context.Context, identifier, secret string) (*Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	res, err := flows.RunLogin(ctx, identifier, secret, e.flowDeps.Login)
	if e.metrics != nil {
		e.metrics.Observe(MetricLoginLatency, time.Since(start))
	}
	if err != nil {
		return nil, err
	}

	return &Session{
		SessionID:   res.SessionID,
		AccountID:   res.AccountID,
		AccessToken: res.AccessToken,
		IssuedAt:    res.IssuedAt,
		ExpiresAt:   res.ExpiresAt,
	}, nil
}

func (e *Engine) issueSession(ctx context.Context, accountID string, now time.Time) (*flows.LoginSession, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}

	ttl := e.config.Session.TTL
	sess := &session.Session{
		SessionID: sid.String(),
		AccountID: accountID,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(ttl).UnixMilli(),
	}
	meta := metaFrom(ctx)
	if meta.clientIP != "" {
		sess.IPHash = internal.HashClientValue(meta.clientIP)
	}
	if meta.userAgent != "" {
		sess.UserAgentHash = internal.HashClientValue(meta.userAgent)
	}

	if err := e.sessionStore.Save(ctx, sess, ttl); err != nil {
		return nil, err
	}

	token, expiresAt, err := e.jwtManager.CreateAccess(accountID, sess.SessionID, now)
	if err != nil {
		if delErr := e.sessionStore.Delete(ctx, accountID, sess.SessionID); delErr != nil {
			e.warn("orphan session cleanup failed", "account_id", accountID, "error", delErr)
		}
		return nil, err
	}

	return &flows.LoginSession{
		SessionID:   sess.SessionID,
		AccountID:   accountID,
		AccessToken: token,
		IssuedAt:    now,
		ExpiresAt:   expiresAt,
	}, nil
}
