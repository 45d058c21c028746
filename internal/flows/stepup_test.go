package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goAccount/internal/limiters"
	"github.com/MrEthical07/goAccount/internal/stores"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type stepUpHarness struct {
	deps      StepUpDeps
	accounts  *fakeAccounts
	clock     *fixedClock
	delivered map[string]string
	codes     *stores.OneTimeCodeStore
	tickets   *stores.TicketStore
}

func newStepUpHarness(t *testing.T) *stepUpHarness {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	h := &stepUpHarness{
		accounts:  newFakeAccounts(activeAccount("acct")),
		clock:     &fixedClock{now: time.Unix(1_700_000_000, 0)},
		delivered: map[string]string{},
		codes:     stores.NewOneTimeCodeStore(rdb, "aoc", time.Minute),
		tickets:   stores.NewTicketStore(rdb, "atk"),
	}
	h.deps = StepUpDeps{
		CodeDigits:   6,
		CodeTTL:      10 * time.Minute,
		TicketTTL:    5 * time.Minute,
		Now:          h.clock.Now,
		Accounts:     h.accounts.access(),
		VerifySecret: verifyPlain,
		IssueCode: func(ctx context.Context, accountID, purpose string, hash [32]byte, now time.Time, ttl time.Duration) error {
			_, err := h.codes.Issue(ctx, accountID, purpose, hash, now, ttl)
			return err
		},
		ConsumeCode: func(ctx context.Context, accountID, purpose string, hash [32]byte, now time.Time) error {
			_, err := h.codes.Consume(ctx, accountID, purpose, hash, now)
			return err
		},
		DeleteCode: h.codes.Delete,
		DeliverCode: func(_ context.Context, accountID, purpose, code string) error {
			h.delivered[accountID+"/"+purpose] = code
			return nil
		},
		Throttle: limiters.NewStepUpLimiter(rdb, limiters.StepUpLimiterConfig{
			MaxPasswordFailures: 3,
			MaxCodeFailures:     3,
		}),
		SaveTicket:   h.tickets.Save,
		LoadTicket:   h.tickets.Get,
		DeleteTicket: h.tickets.Delete,
		Errors: StepUpErrors{
			EngineNotReady:        errNotReady,
			AccountNotFound:       errNotFound,
			AccountNotRecoverable: errNotRecoverable,
			InvalidCredentials:    errInvalidCreds,
			InvalidPurpose:        errInvalidPurpose,
			InvalidCode:           errInvalidCode,
			CodeExpired:           errCodeExpired,
			StepUpRequired:        errStepUpRequired,
			RateLimited:           errRateLimited,
			CodeDelivery:          errDeliveryFailure,
			StoreUnavailable:      errUnavailable,
		},
	}
	return h
}

const purposeDeletion = "account-deletion"

func TestStepUpHappyPathAndTicketScope(t *testing.T) {
	h := newStepUpHarness(t)
	ctx := context.Background()

	if err := RunRequestStepUp(ctx, "acct", purposeDeletion, "correct", h.deps); err != nil {
		t.Fatalf("request step-up: %v", err)
	}
	code := h.delivered["acct/"+purposeDeletion]
	if len(code) != 6 {
		t.Fatalf("expected a 6 digit code, got %q", code)
	}

	ticket, err := RunConfirmStepUp(ctx, "acct", purposeDeletion, code, h.deps)
	if err != nil {
		t.Fatalf("confirm step-up: %v", err)
	}
	if !ticket.ExpiresAt.After(h.clock.Now()) || !ticket.ExpiresAt.Equal(h.clock.Now().Add(5*time.Minute)) {
		t.Fatalf("unexpected ticket expiry %v", ticket.ExpiresAt)
	}

	if _, err := RunVerifyTicket(ctx, "acct", purposeDeletion, ticket.ID, h.deps); err != nil {
		t.Fatalf("verify ticket: %v", err)
	}
	if _, err := RunVerifyTicket(ctx, "acct", "security-settings", ticket.ID, h.deps); !errors.Is(err, errStepUpRequired) {
		t.Fatalf("expected purpose mismatch to require step-up, got %v", err)
	}
	if _, err := RunVerifyTicket(ctx, "other", purposeDeletion, ticket.ID, h.deps); !errors.Is(err, errStepUpRequired) {
		t.Fatalf("expected account mismatch to require step-up, got %v", err)
	}

	h.clock.Advance(5 * time.Minute)
	if _, err := RunVerifyTicket(ctx, "acct", purposeDeletion, ticket.ID, h.deps); !errors.Is(err, errStepUpRequired) {
		t.Fatalf("expected expired ticket to require step-up, got %v", err)
	}
}

func TestConfirmStepUpCodeIsSingleUse(t *testing.T) {
	h := newStepUpHarness(t)
	ctx := context.Background()

	if err := RunRequestStepUp(ctx, "acct", purposeDeletion, "correct", h.deps); err != nil {
		t.Fatalf("request step-up: %v", err)
	}
	code := h.delivered["acct/"+purposeDeletion]
	if _, err := RunConfirmStepUp(ctx, "acct", purposeDeletion, code, h.deps); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if _, err := RunConfirmStepUp(ctx, "acct", purposeDeletion, code, h.deps); !errors.Is(err, errInvalidCode) {
		t.Fatalf("expected replayed code to fail, got %v", err)
	}
}

func TestConfirmStepUpWrongCodeKeepsCodeLive(t *testing.T) {
	h := newStepUpHarness(t)
	ctx := context.Background()

	if err := RunRequestStepUp(ctx, "acct", purposeDeletion, "correct", h.deps); err != nil {
		t.Fatalf("request step-up: %v", err)
	}
	code := h.delivered["acct/"+purposeDeletion]
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	if _, err := RunConfirmStepUp(ctx, "acct", purposeDeletion, wrong, h.deps); !errors.Is(err, errInvalidCode) {
		t.Fatalf("expected invalid code, got %v", err)
	}
	if _, err := RunConfirmStepUp(ctx, "acct", purposeDeletion, code, h.deps); err != nil {
		t.Fatalf("expected correct code to still work after a miss: %v", err)
	}
}

func TestConfirmStepUpExpiredCode(t *testing.T) {
	h := newStepUpHarness(t)
	ctx := context.Background()

	if err := RunRequestStepUp(ctx, "acct", purposeDeletion, "correct", h.deps); err != nil {
		t.Fatalf("request step-up: %v", err)
	}
	code := h.delivered["acct/"+purposeDeletion]

	h.clock.Advance(10 * time.Minute)
	if _, err := RunConfirmStepUp(ctx, "acct", purposeDeletion, code, h.deps); !errors.Is(err, errCodeExpired) {
		t.Fatalf("expected expired code, got %v", err)
	}
}

func TestRequestStepUpReplacesPreviousCode(t *testing.T) {
	h := newStepUpHarness(t)
	ctx := context.Background()

	if err := RunRequestStepUp(ctx, "acct", purposeDeletion, "correct", h.deps); err != nil {
		t.Fatalf("first request: %v", err)
	}
	first := h.delivered["acct/"+purposeDeletion]
	if err := RunRequestStepUp(ctx, "acct", purposeDeletion, "correct", h.deps); err != nil {
		t.Fatalf("second request: %v", err)
	}
	second := h.delivered["acct/"+purposeDeletion]
	if first == second {
		t.Skip("random codes collided")
	}
	if _, err := RunConfirmStepUp(ctx, "acct", purposeDeletion, first, h.deps); !errors.Is(err, errInvalidCode) {
		t.Fatalf("expected superseded code to fail, got %v", err)
	}
	if _, err := RunConfirmStepUp(ctx, "acct", purposeDeletion, second, h.deps); err != nil {
		t.Fatalf("expected latest code to work: %v", err)
	}
}

func TestRequestStepUpWrongPasswordIssuesNothing(t *testing.T) {
	h := newStepUpHarness(t)
	ctx := context.Background()

	if err := RunRequestStepUp(ctx, "acct", purposeDeletion, "wrong", h.deps); !errors.Is(err, errInvalidCreds) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if len(h.delivered) != 0 {
		t.Fatalf("no code may be delivered on a wrong password")
	}
	if _, err := h.codes.Get(ctx, "acct", purposeDeletion); !errors.Is(err, stores.ErrCodeNotFound) {
		t.Fatalf("expected no stored code, got %v", err)
	}
	if got := h.accounts.get("acct").FailedAttempts; got != 0 {
		t.Fatalf("step-up failures must not touch the login counter, got %d", got)
	}
}

func TestStepUpThrottles(t *testing.T) {
	h := newStepUpHarness(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := RunRequestStepUp(ctx, "acct", purposeDeletion, "wrong", h.deps); !errors.Is(err, errInvalidCreds) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i, err)
		}
	}
	if err := RunRequestStepUp(ctx, "acct", purposeDeletion, "correct", h.deps); !errors.Is(err, errRateLimited) {
		t.Fatalf("expected password throttle, got %v", err)
	}

	h2 := newStepUpHarness(t)
	if err := RunRequestStepUp(ctx, "acct", purposeDeletion, "correct", h2.deps); err != nil {
		t.Fatalf("request step-up: %v", err)
	}
	code := h2.delivered["acct/"+purposeDeletion]
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	for i := 0; i < 3; i++ {
		if _, err := RunConfirmStepUp(ctx, "acct", purposeDeletion, wrong, h2.deps); !errors.Is(err, errInvalidCode) {
			t.Fatalf("attempt %d: expected invalid code, got %v", i, err)
		}
	}
	if _, err := RunConfirmStepUp(ctx, "acct", purposeDeletion, code, h2.deps); !errors.Is(err, errRateLimited) {
		t.Fatalf("expected confirm throttle, got %v", err)
	}
	rec, err := h2.codes.Get(ctx, "acct", purposeDeletion)
	if err != nil || rec.Consumed {
		t.Fatalf("throttling must leave the code untouched, got %+v %v", rec, err)
	}
}

func TestStepUpRejectsInactiveAccountAndBadPurpose(t *testing.T) {
	h := newStepUpHarness(t)
	ctx := context.Background()

	if err := RunRequestStepUp(ctx, "acct", "", "correct", h.deps); !errors.Is(err, errInvalidPurpose) {
		t.Fatalf("expected invalid purpose, got %v", err)
	}
	if err := RunRequestStepUp(ctx, "missing", purposeDeletion, "correct", h.deps); !errors.Is(err, errNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	rec := h.accounts.get("acct")
	rec.Status = StatusDeactivated
	h.accounts.accounts["acct"] = rec
	if err := RunRequestStepUp(ctx, "acct", purposeDeletion, "correct", h.deps); !errors.Is(err, errNotRecoverable) {
		t.Fatalf("expected inactive account to be refused, got %v", err)
	}
}

func TestRequestStepUpDeliveryFailureDropsCode(t *testing.T) {
	h := newStepUpHarness(t)
	ctx := context.Background()
	h.deps.DeliverCode = func(context.Context, string, string, string) error {
		return errors.New("smtp down")
	}

	if err := RunRequestStepUp(ctx, "acct", purposeDeletion, "correct", h.deps); !errors.Is(err, errDeliveryFailure) {
		t.Fatalf("expected delivery failure, got %v", err)
	}
	if _, err := h.codes.Get(ctx, "acct", purposeDeletion); !errors.Is(err, stores.ErrCodeNotFound) {
		t.Fatalf("expected undelivered code removed, got %v", err)
	}
}

func TestRevokeTicket(t *testing.T) {
	h := newStepUpHarness(t)
	ctx := context.Background()

	if err := RunRequestStepUp(ctx, "acct", purposeDeletion, "correct", h.deps); err != nil {
		t.Fatalf("request: %v", err)
	}
	ticket, err := RunConfirmStepUp(ctx, "acct", purposeDeletion, h.delivered["acct/"+purposeDeletion], h.deps)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := RunRevokeTicket(ctx, ticket.ID, h.deps); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := RunVerifyTicket(ctx, "acct", purposeDeletion, ticket.ID, h.deps); !errors.Is(err, errStepUpRequired) {
		t.Fatalf("expected revoked ticket to be rejected, got %v", err)
	}
	if err := RunRevokeTicket(ctx, "not-a-ticket", h.deps); err != nil {
		t.Fatalf("revoking garbage should be a no-op: %v", err)
	}
}
