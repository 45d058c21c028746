package test

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	goAccount "github.com/MrEthical07/goAccount"
)

func TestDefaultConfigMatchesDocumentedPolicy(t *testing.T) {
	cfg := goAccount.DefaultConfig()

	if cfg.Lockout.Threshold != 5 || cfg.Lockout.Duration != 15*time.Minute {
		t.Fatalf("unexpected lockout policy %+v", cfg.Lockout)
	}
	if cfg.OneTimeCode.Digits != 6 || cfg.OneTimeCode.TTL != 10*time.Minute {
		t.Fatalf("unexpected code policy %+v", cfg.OneTimeCode)
	}
	if cfg.StepUp.TicketTTL != 5*time.Minute {
		t.Fatalf("unexpected ticket ttl %v", cfg.StepUp.TicketTTL)
	}
	if cfg.Lifecycle.DefaultRetention != 30*24*time.Hour {
		t.Fatalf("unexpected retention %v", cfg.Lifecycle.DefaultRetention)
	}
	if cfg.JWT.SigningMethod != "ed25519" {
		t.Fatalf("expected ed25519 default, got %q", cfg.JWT.SigningMethod)
	}
}

func TestDefaultConfigNeedsKeys(t *testing.T) {
	cfg := goAccount.DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected defaults without keys to be rejected")
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults with keys to validate, got %v", err)
	}
}

func TestConfigRejectsSharedRedisPrefixes(t *testing.T) {
	cfg := goAccount.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.StepUp.TicketRedisPrefix = cfg.Session.RedisPrefix

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected colliding prefixes to be rejected")
	}
}
