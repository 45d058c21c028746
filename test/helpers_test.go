//go:build integration

package test

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goAccount "github.com/MrEthical07/goAccount"
	"github.com/MrEthical07/goAccount/session"
	"github.com/MrEthical07/goAccount/store/memory"
)

// redisMode describes which Redis backend a suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) (redis.UniversalClient, func())
}

// redisModes returns miniredis plus the real deployments configured through
// REDIS_ADDR or REDIS_SENTINEL_ADDRS. Cluster mode is not covered: session and
// ticket writes touch keys in different slots.
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				return rdb, func() { _ = rdb.Close(); mr.Close() }
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				return rdb, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}

	if addrs := os.Getenv("REDIS_SENTINEL_ADDRS"); addrs != "" {
		master := os.Getenv("REDIS_SENTINEL_MASTER")
		if master == "" {
			master = "mymaster"
		}
		modes = append(modes, redisMode{
			name: "sentinel",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewFailoverClient(&redis.FailoverOptions{
					MasterName:    master,
					SentinelAddrs: splitAddrs(addrs),
				})
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis sentinel: %v", err)
				}
				rdb.FlushDB(context.Background())
				return rdb, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}

	return modes
}

func splitAddrs(s string) []string {
	var addrs []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

type codeSink struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *codeSink) DeliverCode(_ context.Context, accountID, purpose, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.codes == nil {
		c.codes = make(map[string]string)
	}
	c.codes[accountID+"|"+purpose] = code
	return nil
}

func (c *codeSink) code(accountID string, purpose goAccount.Purpose) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[accountID+"|"+string(purpose)]
}

const integrationSecret = "integration-secret"

// newIntegrationEngine builds an engine over rdb with one seeded account.
func newIntegrationEngine(t *testing.T, rdb redis.UniversalClient) (*goAccount.Engine, *codeSink, string) {
	t.Helper()

	cfg := goAccount.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("integration-integration-integration")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	store := memory.New()
	codes := &codeSink{}
	engine, err := goAccount.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(store).
		WithCodeNotifier(codes).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	hash, err := engine.HashCredential(integrationSecret)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	acct, err := store.CreateAccount(context.Background(), hash, "it@example.com")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return engine, codes, acct.ID
}

func newIntegrationStore(t *testing.T) (*session.Store, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := session.NewStore(rdb, "as")

	return store, rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func makeSession(accountID, sessionID string) *session.Session {
	now := time.Now()
	return &session.Session{
		SessionID:     sessionID,
		AccountID:     accountID,
		IPHash:        hashByte(1),
		UserAgentHash: hashByte(2),
		CreatedAt:     now.UnixMilli(),
		ExpiresAt:     now.Add(time.Hour).UnixMilli(),
	}
}

func hashByte(b byte) [32]byte {
	var out [32]byte
	for i := 0; i < len(out); i++ {
		out[i] = b
	}
	return out
}
