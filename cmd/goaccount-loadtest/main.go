package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	goAccount "github.com/MrEthical07/goAccount"
	"github.com/MrEthical07/goAccount/store/memory"
)

const loadSecret = "load-test-secret"

func main() {
	cmd := &cli.Command{
		Name:  "goaccount-loadtest",
		Usage: "Drive login, session validation and lockout contention through the engine",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "accounts", Value: 2000, Usage: "number of accounts to seed"},
			&cli.IntFlag{Name: "concurrency", Value: 64, Usage: "number of concurrent workers"},
			&cli.IntFlag{Name: "ops", Value: 20000, Usage: "operations per phase"},
			&cli.IntFlag{Name: "contended", Value: 50, Usage: "accounts hammered with wrong secrets in the lockout phase"},
			&cli.StringFlag{Name: "redis-addr", Usage: "redis address; empty uses miniredis", Sources: cli.EnvVars("REDIS_ADDR")},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	accounts := int(cmd.Int("accounts"))
	concurrency := int(cmd.Int("concurrency"))
	ops := int(cmd.Int("ops"))
	contended := int(cmd.Int("contended"))
	if accounts <= 0 || concurrency <= 0 || ops <= 0 || contended <= 0 || contended > accounts {
		return errors.New("accounts, concurrency, ops and contended must be > 0 and contended <= accounts")
	}

	client, cleanup, err := openRedis(cmd.String("redis-addr"))
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := goAccount.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("loadtest-loadtest-loadtest-loadtest")
	// cheap hashing keeps the run about the state machine, not argon2
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true

	store := memory.New()
	engine, err := goAccount.New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountStore(store).
		WithCodeNotifier(goAccount.CodeNotifierFunc(func(context.Context, string, string, string) error { return nil })).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	hash, err := engine.HashCredential(loadSecret)
	if err != nil {
		return err
	}
	identifiers := make([]string, accounts)
	fmt.Printf("seeding %d accounts...\n", accounts)
	startSeed := time.Now()
	for i := range identifiers {
		identifiers[i] = fmt.Sprintf("user-%d@load.test", i)
		if _, err := store.CreateAccount(ctx, hash, identifiers[i]); err != nil {
			return fmt.Errorf("seed account: %w", err)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	// the first contended accounts are reserved for the lockout phase
	loginPool := identifiers[contended:]
	if len(loginPool) == 0 {
		loginPool = identifiers
	}

	var (
		tokensMu sync.Mutex
		tokens   []string
	)
	loginStats := runPhase(ops, concurrency, func(r *rand.Rand) error {
		sess, err := engine.Login(ctx, loginPool[r.Intn(len(loginPool))], loadSecret)
		if err != nil {
			return err
		}
		tokensMu.Lock()
		tokens = append(tokens, sess.AccessToken)
		tokensMu.Unlock()
		return nil
	})
	if len(tokens) == 0 {
		return errors.New("no sessions issued")
	}

	validateStats := runPhase(ops, concurrency, func(r *rand.Rand) error {
		_, err := engine.ValidateSession(ctx, tokens[r.Intn(len(tokens))])
		return err
	})

	lockoutStats := runPhase(ops, concurrency, func(r *rand.Rand) error {
		_, err := engine.Login(ctx, identifiers[r.Intn(contended)], "wrong")
		if errors.Is(err, goAccount.ErrInvalidCredentials) || errors.Is(err, goAccount.ErrAccountLocked) {
			return nil
		}
		return err
	})

	violations := 0
	for _, id := range identifiers[:contended] {
		acct, err := store.GetAccountByLookup(ctx, id)
		if err != nil {
			return err
		}
		if acct.FailedAttempts > cfg.Lockout.Threshold {
			violations++
		}
	}

	snapshot := engine.MetricsSnapshot()
	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("validate", validateStats)
	printStats("lockout", lockoutStats)
	fmt.Printf("lockouts triggered=%d counter violations=%d\n",
		snapshot.Counters[goAccount.MetricLockoutTriggered], violations)
	if violations > 0 {
		return fmt.Errorf("%d accounts exceeded the failure threshold", violations)
	}
	return nil
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		fmt.Printf("using miniredis at %s\n", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	fmt.Printf("using redis at %s\n", addr)
	return client, func() { _ = client.Close() }, nil
}

func runPhase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
