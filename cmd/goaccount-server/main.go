package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// sources chains an environment variable with a key from the TOML config file.
func sources(envKey, tomlKey string, tomlSrc altsrc.Sourcer) cli.ValueSourceChain {
	chain := cli.EnvVars(envKey)
	chain.Chain = append(chain.Chain, toml.TOML(tomlKey, tomlSrc))
	return chain
}

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	var configFile string
	tomlSrc := altsrc.NewStringPtrSourcer(&configFile)

	cmd := &cli.Command{
		Name:    "goaccount-server",
		Usage:   "HTTP front for the goAccount login guard, lifecycle and step-up engine",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Value:       "goaccount.toml",
				Usage:       "Path to configuration file",
				Destination: &configFile,
				Sources:     cli.EnvVars("GOACCOUNT_CONFIG"),
			},

			// Listeners
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":8080",
				Usage:   "Public API listen address",
				Sources: sources("GOACCOUNT_ADDR", "server.addr", tomlSrc),
			},
			&cli.StringFlag{
				Name:    "internal-addr",
				Value:   "127.0.0.1:8081",
				Usage:   "Listen address for /internal and /metrics",
				Sources: sources("GOACCOUNT_INTERNAL_ADDR", "server.internal_addr", tomlSrc),
			},

			// Backends
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address; empty starts an in-process miniredis (demo only)",
				Sources: sources("GOACCOUNT_REDIS_ADDR", "redis.addr", tomlSrc),
			},
			&cli.StringFlag{
				Name:    "store",
				Value:   "memory",
				Usage:   "Account store: memory, sqlite, postgres",
				Sources: sources("GOACCOUNT_STORE", "store.driver", tomlSrc),
			},
			&cli.StringFlag{
				Name:    "database-dsn",
				Value:   "./data/goaccount.db",
				Usage:   "SQLite path or Postgres DSN",
				Sources: sources("GOACCOUNT_DATABASE_DSN", "store.dsn", tomlSrc),
			},

			// Policy
			&cli.StringFlag{
				Name:    "jwt-secret",
				Usage:   "HS256 signing secret (>= 32 bytes); empty uses an ephemeral ed25519 key",
				Sources: sources("GOACCOUNT_JWT_SECRET", "auth.jwt_secret", tomlSrc),
			},
			&cli.DurationFlag{
				Name:    "session-ttl",
				Value:   time.Hour,
				Usage:   "Session and access token lifetime",
				Sources: sources("GOACCOUNT_SESSION_TTL", "auth.session_ttl", tomlSrc),
			},
			&cli.IntFlag{
				Name:    "lockout-threshold",
				Value:   5,
				Usage:   "Consecutive failures before an account locks",
				Sources: sources("GOACCOUNT_LOCKOUT_THRESHOLD", "auth.lockout_threshold", tomlSrc),
			},
			&cli.DurationFlag{
				Name:    "lockout-duration",
				Value:   15 * time.Minute,
				Usage:   "How long a lock lasts",
				Sources: sources("GOACCOUNT_LOCKOUT_DURATION", "auth.lockout_duration", tomlSrc),
			},
			&cli.DurationFlag{
				Name:    "retention",
				Value:   30 * 24 * time.Hour,
				Usage:   "Default recovery window after deactivation",
				Sources: sources("GOACCOUNT_RETENTION", "lifecycle.retention", tomlSrc),
			},
			&cli.BoolFlag{
				Name:    "audit",
				Usage:   "Log audit events",
				Sources: sources("GOACCOUNT_AUDIT", "audit.enabled", tomlSrc),
			},

			// Demo seed account
			&cli.StringFlag{
				Name:    "seed-identifier",
				Usage:   "Create an account with this identifier at startup",
				Sources: sources("GOACCOUNT_SEED_IDENTIFIER", "seed.identifier", tomlSrc),
			},
			&cli.StringFlag{
				Name:    "seed-secret",
				Usage:   "Secret for the seeded account",
				Sources: sources("GOACCOUNT_SEED_SECRET", "seed.secret", tomlSrc),
			},

			// Logging
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level: debug, info, warn, error",
				Sources: sources("LOG_LEVEL", "log.level", tomlSrc),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "json",
				Usage:   "Log format: console, json",
				Sources: sources("LOG_FORMAT", "log.format", tomlSrc),
			},
		},
		Action: runServer,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
