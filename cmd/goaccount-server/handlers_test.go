package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	goAccount "github.com/MrEthical07/goAccount"
	"github.com/MrEthical07/goAccount/middleware"
	"github.com/MrEthical07/goAccount/store/memory"
)

type capturedCodes struct {
	mu   sync.Mutex
	last string
}

func (c *capturedCodes) DeliverCode(_ context.Context, _, _, code string) error {
	c.mu.Lock()
	c.last = code
	c.mu.Unlock()
	return nil
}

func (c *capturedCodes) code() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

type testServer struct {
	public   http.Handler
	internal http.Handler
	store    *memory.Store
	codes    *capturedCodes
	account  string
}

const testSecret = "correct horse battery staple"

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := serverConfig{
		JWTSecret:        "0123456789abcdef0123456789abcdef",
		SessionTTL:       time.Hour,
		LockoutThreshold: 3,
		LockoutDuration:  15 * time.Minute,
		Retention:        24 * time.Hour,
	}
	engineCfg, ephemeral, err := cfg.engineConfig()
	require.NoError(t, err)
	require.False(t, ephemeral)
	engineCfg.Password.Memory = 8 * 1024
	engineCfg.Password.Time = 1
	engineCfg.Password.Parallelism = 1

	store := memory.New()
	codes := &capturedCodes{}
	engine, err := goAccount.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithAccountStore(store).
		WithCodeNotifier(codes).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	require.NoError(t, seedAccount(context.Background(), engine, store, "alice@example.com", testSecret))
	acct, err := store.GetAccountByLookup(context.Background(), "alice@example.com")
	require.NoError(t, err)

	a := newAPI(engine, zap.NewNop())
	return &testServer{
		public:   a.publicRoutes(),
		internal: a.internalRoutes(),
		store:    store,
		codes:    codes,
		account:  acct.ID,
	}
}

func (s *testServer) do(t *testing.T, h http.Handler, method, path, token, ticket, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if ticket != "" {
		req.Header.Set(middleware.TicketHeader, ticket)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T) string {
	t.Helper()
	rec := s.do(t, s.public, http.MethodPost, "/v1/login", "", "",
		`{"identifier":"alice@example.com","secret":"`+testSecret+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, s.account, resp.AccountID)
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func (s *testServer) ticket(t *testing.T, token string, purpose goAccount.Purpose) string {
	t.Helper()
	rec := s.do(t, s.public, http.MethodPost, "/v1/step-up", token, "",
		`{"purpose":"`+string(purpose)+`","secret":"`+testSecret+`"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = s.do(t, s.public, http.MethodPost, "/v1/step-up/confirm", token, "",
		`{"purpose":"`+string(purpose)+`","code":"`+s.codes.code()+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ticketResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(purpose), resp.Purpose)
	return resp.Ticket
}

func TestLoginFailuresShareOneResponse(t *testing.T) {
	s := newTestServer(t)

	unknown := s.do(t, s.public, http.MethodPost, "/v1/login", "", "",
		`{"identifier":"nobody@example.com","secret":"whatever"}`)
	wrong := s.do(t, s.public, http.MethodPost, "/v1/login", "", "",
		`{"identifier":"alice@example.com","secret":"wrong"}`)

	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, unknown.Code, wrong.Code)
	assert.Equal(t, unknown.Body.String(), wrong.Body.String())
	assert.JSONEq(t, `{"error":"invalid_credentials"}`, wrong.Body.String())
}

func TestLoginLockoutReturnsRetryAfter(t *testing.T) {
	s := newTestServer(t)
	body := `{"identifier":"alice@example.com","secret":"wrong"}`

	for i := 0; i < 2; i++ {
		rec := s.do(t, s.public, http.MethodPost, "/v1/login", "", "", body)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := s.do(t, s.public, http.MethodPost, "/v1/login", "", "", body)
	require.Equal(t, http.StatusLocked, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// correct secret is refused while locked
	rec = s.do(t, s.public, http.MethodPost, "/v1/login", "", "",
		`{"identifier":"alice@example.com","secret":"`+testSecret+`"}`)
	assert.Equal(t, http.StatusLocked, rec.Code)
}

func TestMalformedLoginBody(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, s.public, http.MethodPost, "/v1/login", "", "", `{"identifier":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, s.public, http.MethodPost, "/v1/login", "", "", `{"user":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)

	rec := s.do(t, s.public, http.MethodPost, "/v1/logout", token, "", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, s.public, http.MethodPost, "/v1/logout", token, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoutesRequireTicket(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)

	rec := s.do(t, s.public, http.MethodGet, "/v1/account/security", token, "", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"step_up_required"}`, rec.Body.String())

	deletion := s.ticket(t, token, goAccount.PurposeAccountDeletion)

	// a ticket for one purpose does not open another
	rec = s.do(t, s.public, http.MethodGet, "/v1/account/security", token, deletion, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	settings := s.ticket(t, token, goAccount.PurposeSecuritySettings)
	rec = s.do(t, s.public, http.MethodGet, "/v1/account/security", token, settings, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report securityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, s.account, report.AccountID)
	assert.Equal(t, 3, report.LockoutThreshold)
	assert.Equal(t, "hs256", report.SigningAlgorithm)
}

func TestStepUpErrors(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)

	rec := s.do(t, s.public, http.MethodPost, "/v1/step-up", token, "",
		`{"purpose":"account-deletion","secret":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, s.public, http.MethodPost, "/v1/step-up", token, "",
		`{"purpose":"billing","secret":"`+testSecret+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, s.public, http.MethodPost, "/v1/step-up", token, "",
		`{"purpose":"account-deletion","secret":"`+testSecret+`"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = s.do(t, s.public, http.MethodPost, "/v1/step-up/confirm", token, "",
		`{"purpose":"account-deletion","code":"not-a-code"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid_code"}`, rec.Body.String())
}

func TestDeleteAccountDeactivatesAndRevokes(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)
	ticket := s.ticket(t, token, goAccount.PurposeAccountDeletion)

	rec := s.do(t, s.public, http.MethodDelete, "/v1/account", token, ticket, "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	acct, err := s.store.GetAccountByID(context.Background(), s.account)
	require.NoError(t, err)
	assert.Equal(t, goAccount.AccountDeactivated, acct.Status)
	require.NotNil(t, acct.ScheduledDeletionAt)

	// the session died with the deactivation
	rec = s.do(t, s.public, http.MethodDelete, "/v1/account", token, ticket, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// still inside the window: not eligible, and cannot be claimed
	rec = s.do(t, s.internal, http.MethodGet, "/internal/accounts/"+s.account+"/erasure", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"account_id":"`+s.account+`","eligible":false}`, rec.Body.String())

	rec = s.do(t, s.internal, http.MethodPost, "/internal/accounts/"+s.account+"/erasure", "", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	// logging in again inside the window reactivates
	s.login(t)
	acct, err = s.store.GetAccountByID(context.Background(), s.account)
	require.NoError(t, err)
	assert.Equal(t, goAccount.AccountActive, acct.Status)
}

func TestDeleteAccountHonorsRequestedRetention(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)
	ticket := s.ticket(t, token, goAccount.PurposeAccountDeletion)

	for _, body := range []string{`{"retention":"soon"}`, `{"retention":"-1h"}`, `{"retention":"0s"}`} {
		rec := s.do(t, s.public, http.MethodDelete, "/v1/account", token, ticket, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.JSONEq(t, `{"error":"invalid_retention"}`, rec.Body.String(), body)
	}

	rec := s.do(t, s.public, http.MethodDelete, "/v1/account", token, ticket, `{"retention":"72h"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	acct, err := s.store.GetAccountByID(context.Background(), s.account)
	require.NoError(t, err)
	require.NotNil(t, acct.DeactivatedAt)
	require.NotNil(t, acct.ScheduledDeletionAt)
	assert.Equal(t, 72*time.Hour, acct.ScheduledDeletionAt.Sub(*acct.DeactivatedAt))
}

func TestInternalErasureUnknownAccount(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, s.internal, http.MethodGet, "/internal/accounts/missing/erasure", "", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.login(t)

	rec := s.do(t, s.internal, http.MethodGet, "/metrics", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "goaccount_login_success_total 1")
}
