package goAccount_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goAccount "github.com/MrEthical07/goAccount"
	"github.com/MrEthical07/goAccount/store/memory"
)

// testClock starts at wall time: access tokens are checked against the real
// clock by the JWT parser.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().Truncate(time.Millisecond)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type capturedCode struct {
	accountID string
	purpose   string
	code      string
}

type codeOutbox struct {
	mu    sync.Mutex
	codes []capturedCode
	fail  error
}

func (o *codeOutbox) DeliverCode(_ context.Context, accountID, purpose, code string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return o.fail
	}
	o.codes = append(o.codes, capturedCode{accountID: accountID, purpose: purpose, code: code})
	return nil
}

func (o *codeOutbox) last(t *testing.T) capturedCode {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.codes) == 0 {
		t.Fatal("no code delivered")
	}
	return o.codes[len(o.codes)-1]
}

func (o *codeOutbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.codes)
}

type harness struct {
	engine   *goAccount.Engine
	store    *memory.Store
	clock    *testClock
	outbox   *codeOutbox
	redis    *miniredis.Miniredis
	auditLog *goAccount.ChannelSink
}

func testConfig() goAccount.Config {
	cfg := goAccount.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	return cfg
}

func newHarness(t *testing.T, mutate func(*goAccount.Config)) *harness {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		store:    memory.New(),
		clock:    newTestClock(),
		outbox:   &codeOutbox{},
		redis:    mr,
		auditLog: goAccount.NewChannelSink(256),
	}
	engine, err := goAccount.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(h.store).
		WithCodeNotifier(h.outbox).
		WithAuditSink(h.auditLog).
		WithClock(h.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

func (h *harness) createAccount(t *testing.T, secret string, identifiers ...string) *goAccount.Account {
	t.Helper()
	hash, err := h.engine.HashCredential(secret)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	account, err := h.store.CreateAccount(context.Background(), hash, identifiers...)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return account
}

func (h *harness) account(t *testing.T, id string) *goAccount.Account {
	t.Helper()
	a, err := h.store.GetAccountByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return a
}
