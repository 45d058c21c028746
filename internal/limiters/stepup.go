package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goAccount/internal/rate"
	"github.com/redis/go-redis/v9"
)

const (
	defaultStepUpMaxPasswordFailures = 5
	defaultStepUpPasswordWindow      = 15 * time.Minute
	defaultStepUpMaxCodeFailures     = 5
	defaultStepUpCodeWindow          = 10 * time.Minute
)

var (
	ErrStepUpRateLimited = errors.New("step-up rate limited")
	ErrStepUpUnavailable = errors.New("step-up limiter unavailable")
)

// StepUpLimiterConfig holds thresholds for the step-up limiter. Zero-value
// fields fall back to defaults.
type StepUpLimiterConfig struct {
	MaxPasswordFailures int
	PasswordWindow      time.Duration
	MaxCodeFailures     int
	CodeWindow          time.Duration
}

// StepUpLimiter throttles the two step-up steps independently: password
// re-entry failures per account, and wrong codes per (account, purpose).
// Counting never touches the stored code, so a throttled caller can resume
// with the same code once the window lapses if it is still live.
type StepUpLimiter struct {
	password *rate.Window
	code     *rate.Window
}

func NewStepUpLimiter(redisClient redis.UniversalClient, cfg StepUpLimiterConfig) *StepUpLimiter {
	if cfg.MaxPasswordFailures <= 0 {
		cfg.MaxPasswordFailures = defaultStepUpMaxPasswordFailures
	}
	if cfg.PasswordWindow <= 0 {
		cfg.PasswordWindow = defaultStepUpPasswordWindow
	}
	if cfg.MaxCodeFailures <= 0 {
		cfg.MaxCodeFailures = defaultStepUpMaxCodeFailures
	}
	if cfg.CodeWindow <= 0 {
		cfg.CodeWindow = defaultStepUpCodeWindow
	}

	return &StepUpLimiter{
		password: rate.NewWindow(redisClient, "asp", cfg.MaxPasswordFailures, cfg.PasswordWindow),
		code:     rate.NewWindow(redisClient, "asc", cfg.MaxCodeFailures, cfg.CodeWindow),
	}
}

func (l *StepUpLimiter) CheckPassword(ctx context.Context, accountID string) error {
	if l == nil {
		return nil
	}
	return mapRateErr(l.password.Check(ctx, accountID))
}

func (l *StepUpLimiter) RecordPasswordFailure(ctx context.Context, accountID string) error {
	if l == nil {
		return nil
	}
	_, err := l.password.Hit(ctx, accountID)
	return mapRateErr(err)
}

func (l *StepUpLimiter) ResetPassword(ctx context.Context, accountID string) error {
	if l == nil {
		return nil
	}
	return mapRateErr(l.password.Reset(ctx, accountID))
}

func (l *StepUpLimiter) CheckCode(ctx context.Context, accountID, purpose string) error {
	if l == nil {
		return nil
	}
	return mapRateErr(l.code.Check(ctx, codeKey(accountID, purpose)))
}

func (l *StepUpLimiter) RecordCodeFailure(ctx context.Context, accountID, purpose string) error {
	if l == nil {
		return nil
	}
	_, err := l.code.Hit(ctx, codeKey(accountID, purpose))
	return mapRateErr(err)
}

func (l *StepUpLimiter) ResetCode(ctx context.Context, accountID, purpose string) error {
	if l == nil {
		return nil
	}
	return mapRateErr(l.code.Reset(ctx, codeKey(accountID, purpose)))
}

func codeKey(accountID, purpose string) string {
	return accountID + ":" + purpose
}

func mapRateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrStepUpRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrStepUpUnavailable, err)
	}
}
