package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	goAccount "github.com/MrEthical07/goAccount"
)

type serverConfig struct {
	Addr         string
	InternalAddr string

	RedisAddr   string
	Store       string
	DatabaseDSN string

	JWTSecret        string
	SessionTTL       time.Duration
	LockoutThreshold int
	LockoutDuration  time.Duration
	Retention        time.Duration
	Audit            bool

	SeedIdentifier string
	SeedSecret     string

	LogLevel  string
	LogFormat string
}

func newServerConfig(cmd *cli.Command) serverConfig {
	return serverConfig{
		Addr:             cmd.String("addr"),
		InternalAddr:     cmd.String("internal-addr"),
		RedisAddr:        cmd.String("redis-addr"),
		Store:            cmd.String("store"),
		DatabaseDSN:      cmd.String("database-dsn"),
		JWTSecret:        cmd.String("jwt-secret"),
		SessionTTL:       cmd.Duration("session-ttl"),
		LockoutThreshold: int(cmd.Int("lockout-threshold")),
		LockoutDuration:  cmd.Duration("lockout-duration"),
		Retention:        cmd.Duration("retention"),
		Audit:            cmd.Bool("audit"),
		SeedIdentifier:   cmd.String("seed-identifier"),
		SeedSecret:       cmd.String("seed-secret"),
		LogLevel:         cmd.String("log-level"),
		LogFormat:        cmd.String("log-format"),
	}
}

// engineConfig maps server settings onto the engine defaults. ephemeral
// reports whether a throwaway signing key was generated.
func (c serverConfig) engineConfig() (cfg goAccount.Config, ephemeral bool, err error) {
	cfg = goAccount.DefaultConfig()
	cfg.Session.TTL = c.SessionTTL
	cfg.Lockout.Threshold = c.LockoutThreshold
	cfg.Lockout.Duration = c.LockoutDuration
	cfg.Lifecycle.DefaultRetention = c.Retention
	cfg.Audit.Enabled = c.Audit
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	if c.JWTSecret != "" {
		cfg.JWT.SigningMethod = "hs256"
		cfg.JWT.PrivateKey = []byte(c.JWTSecret)
	} else {
		pub, priv, genErr := ed25519.GenerateKey(rand.Reader)
		if genErr != nil {
			return cfg, false, fmt.Errorf("generate signing key: %w", genErr)
		}
		cfg.JWT.SigningMethod = "ed25519"
		cfg.JWT.PrivateKey = priv
		cfg.JWT.PublicKey = pub
		ephemeral = true
	}

	if err := cfg.Validate(); err != nil {
		return cfg, ephemeral, err
	}
	return cfg, ephemeral, nil
}
