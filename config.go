package goAccount

import (
	"errors"
	"strings"
	"time"
)

// Config holds every engine policy. Zero-valued configs are not valid; start
// from DefaultConfig.
type Config struct {
	Lockout     LockoutConfig
	OneTimeCode OneTimeCodeConfig
	StepUp      StepUpConfig
	Lifecycle   LifecycleConfig
	Password    PasswordConfig
	Session     SessionConfig
	JWT         JWTConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
LOGIN GUARD
====================================
*/

// LockoutConfig controls failure counting on login.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
	// MaxStateRetries bounds re-decisions after a lost compare-and-set.
	MaxStateRetries int
}

/*
====================================
STEP-UP
====================================
*/

// OneTimeCodeConfig controls step-up codes.
type OneTimeCodeConfig struct {
	Digits      int
	TTL         time.Duration
	RedisPrefix string
	// ExpiredGrace keeps expired records long enough to report "expired"
	// instead of "unknown".
	ExpiredGrace time.Duration
}

// StepUpConfig controls elevated tickets and step-up throttling.
type StepUpConfig struct {
	TicketTTL             time.Duration
	TicketRedisPrefix     string
	MaxPasswordFailures   int
	PasswordFailureWindow time.Duration
	MaxConfirmFailures    int
}

/*
====================================
LIFECYCLE
====================================
*/

// LifecycleConfig controls deactivation.
type LifecycleConfig struct {
	// DefaultRetention applies when Deactivate is called with zero.
	DefaultRetention time.Duration
}

/*
====================================
CREDENTIALS, SESSIONS, TOKENS
====================================
*/

// PasswordConfig holds argon2id parameters.
type PasswordConfig struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	UpgradeOnLogin   bool
}

// SessionConfig controls login sessions. TTL also bounds the access token.
type SessionConfig struct {
	TTL         time.Duration
	RedisPrefix string
}

// JWTConfig controls access token signing.
type JWTConfig struct {
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
OBSERVABILITY
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the documented defaults: lockout after 5 failures
// for 15 minutes, 6 digit codes valid 10 minutes, 5 minute tickets and a
// 30 day retention window. JWT keys must still be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Lockout: LockoutConfig{
			Threshold:       5,
			Duration:        15 * time.Minute,
			MaxStateRetries: 4,
		},
		OneTimeCode: OneTimeCodeConfig{
			Digits:       6,
			TTL:          10 * time.Minute,
			RedisPrefix:  "aoc",
			ExpiredGrace: 10 * time.Minute,
		},
		StepUp: StepUpConfig{
			TicketTTL:             5 * time.Minute,
			TicketRedisPrefix:     "atk",
			MaxPasswordFailures:   5,
			PasswordFailureWindow: 15 * time.Minute,
			MaxConfirmFailures:    5,
		},
		Lifecycle: LifecycleConfig{
			DefaultRetention: 30 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Session: SessionConfig{
			TTL:         time.Hour,
			RedisPrefix: "as",
		},
		JWT: JWTConfig{
			SigningMethod: "ed25519",
			Issuer:        "goaccount",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Lockout
	if c.Lockout.Threshold < 1 {
		return errors.New("Lockout Threshold must be >= 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}
	if c.Lockout.MaxStateRetries < 1 || c.Lockout.MaxStateRetries > 32 {
		return errors.New("Lockout MaxStateRetries must be between 1 and 32")
	}

	// One-time codes
	if c.OneTimeCode.Digits < 6 || c.OneTimeCode.Digits > 10 {
		return errors.New("OneTimeCode Digits must be between 6 and 10")
	}
	if c.OneTimeCode.TTL <= 0 {
		return errors.New("OneTimeCode TTL must be > 0")
	}
	if c.OneTimeCode.ExpiredGrace < 0 {
		return errors.New("OneTimeCode ExpiredGrace must be >= 0")
	}
	if strings.TrimSpace(c.OneTimeCode.RedisPrefix) == "" {
		return errors.New("OneTimeCode RedisPrefix must be set")
	}

	// Step-up
	if c.StepUp.TicketTTL <= 0 {
		return errors.New("StepUp TicketTTL must be > 0")
	}
	if c.StepUp.TicketTTL > time.Hour {
		return errors.New("StepUp TicketTTL must be <= 1h")
	}
	if strings.TrimSpace(c.StepUp.TicketRedisPrefix) == "" {
		return errors.New("StepUp TicketRedisPrefix must be set")
	}
	if c.StepUp.MaxPasswordFailures < 1 {
		return errors.New("StepUp MaxPasswordFailures must be >= 1")
	}
	if c.StepUp.PasswordFailureWindow <= 0 {
		return errors.New("StepUp PasswordFailureWindow must be > 0")
	}
	if c.StepUp.MaxConfirmFailures < 1 {
		return errors.New("StepUp MaxConfirmFailures must be >= 1")
	}

	// Lifecycle
	if c.Lifecycle.DefaultRetention <= 0 {
		return errors.New("Lifecycle DefaultRetention must be > 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MaxPasswordBytes < 0 {
		return errors.New("Password MaxPasswordBytes must be >= 0")
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must be set")
	}
	if prefixesCollide(c.Session.RedisPrefix, c.OneTimeCode.RedisPrefix, c.StepUp.TicketRedisPrefix) {
		return errors.New("Session, OneTimeCode and StepUp Redis prefixes must differ")
	}

	// JWT
	switch c.JWT.SigningMethod {
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.Audience != "" && strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience must not be blank")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func prefixesCollide(prefixes ...string) bool {
	seen := make(map[string]struct{}, len(prefixes))
	for _, p := range prefixes {
		if _, ok := seen[p]; ok {
			return true
		}
		seen[p] = struct{}{}
	}
	return false
}
