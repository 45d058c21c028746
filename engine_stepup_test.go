package goAccount_test

import (
	"context"
	"errors"
	"testing"
	"time"

	goAccount "github.com/MrEthical07/goAccount"
)

func TestStepUpIssuesTicketForPurpose(t *testing.T) {
	h := newHarness(t, nil)
	acct := h.createAccount(t, "s3cret-passphrase", "alice")
	ctx := context.Background()
	purpose := goAccount.PurposeAccountDeletion

	if err := h.engine.RequestStepUp(ctx, acct.ID, purpose, "s3cret-passphrase"); err != nil {
		t.Fatalf("request step-up: %v", err)
	}
	delivered := h.outbox.last(t)
	if delivered.accountID != acct.ID || delivered.purpose != string(purpose) || len(delivered.code) != 6 {
		t.Fatalf("unexpected delivery %+v", delivered)
	}

	wrong := "000000"
	if delivered.code == wrong {
		wrong = "111111"
	}
	if _, err := h.engine.ConfirmStepUp(ctx, acct.ID, purpose, wrong); !errors.Is(err, goAccount.ErrInvalidCode) {
		t.Fatalf("expected invalid code, got %v", err)
	}
	if _, err := h.engine.ConfirmStepUp(ctx, acct.ID, goAccount.PurposeSecuritySettings, delivered.code); !errors.Is(err, goAccount.ErrInvalidCode) {
		t.Fatalf("code must be scoped to its purpose, got %v", err)
	}

	ticket, err := h.engine.ConfirmStepUp(ctx, acct.ID, purpose, delivered.code)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if ticket.AccountID != acct.ID || ticket.Purpose != purpose {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
	if !ticket.ExpiresAt.Equal(h.clock.Now().Add(5 * time.Minute)) {
		t.Fatalf("unexpected ticket expiry %v", ticket.ExpiresAt)
	}
	if _, err := h.engine.ConfirmStepUp(ctx, acct.ID, purpose, delivered.code); !errors.Is(err, goAccount.ErrInvalidCode) {
		t.Fatalf("code must be single use, got %v", err)
	}

	if _, err := h.engine.VerifyTicket(ctx, acct.ID, purpose, ticket.ID); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := h.engine.VerifyTicket(ctx, acct.ID, goAccount.PurposeSecuritySettings, ticket.ID); !errors.Is(err, goAccount.ErrStepUpRequired) {
		t.Fatalf("expected purpose mismatch rejected, got %v", err)
	}
	if _, err := h.engine.VerifyTicket(ctx, "someone-else", purpose, ticket.ID); !errors.Is(err, goAccount.ErrStepUpRequired) {
		t.Fatalf("expected account mismatch rejected, got %v", err)
	}

	if err := h.engine.RevokeTicket(ctx, ticket.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := h.engine.VerifyTicket(ctx, acct.ID, purpose, ticket.ID); !errors.Is(err, goAccount.ErrStepUpRequired) {
		t.Fatalf("expected revoked ticket rejected, got %v", err)
	}
}

func TestStepUpWrongPasswordIssuesNothing(t *testing.T) {
	h := newHarness(t, nil)
	acct := h.createAccount(t, "s3cret-passphrase", "alice")

	err := h.engine.RequestStepUp(context.Background(), acct.ID, goAccount.PurposeSecuritySettings, "wrong")
	if !errors.Is(err, goAccount.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if h.outbox.count() != 0 {
		t.Fatal("no code may be delivered after a wrong password")
	}
	// step-up failures do not feed the login lockout
	if got := h.account(t, acct.ID).FailedAttempts; got != 0 {
		t.Fatalf("expected login counter untouched, got %d", got)
	}
}

func TestStepUpCodeExpires(t *testing.T) {
	h := newHarness(t, nil)
	acct := h.createAccount(t, "s3cret-passphrase", "alice")
	ctx := context.Background()

	if err := h.engine.RequestStepUp(ctx, acct.ID, goAccount.PurposeSecuritySettings, "s3cret-passphrase"); err != nil {
		t.Fatalf("request: %v", err)
	}
	code := h.outbox.last(t).code

	h.clock.Advance(10 * time.Minute)
	if _, err := h.engine.ConfirmStepUp(ctx, acct.ID, goAccount.PurposeSecuritySettings, code); !errors.Is(err, goAccount.ErrCodeExpired) {
		t.Fatalf("expected code expired, got %v", err)
	}
}

func TestStepUpReissueInvalidatesPreviousCode(t *testing.T) {
	h := newHarness(t, nil)
	acct := h.createAccount(t, "s3cret-passphrase", "alice")
	ctx := context.Background()
	purpose := goAccount.PurposeSecuritySettings

	if err := h.engine.RequestStepUp(ctx, acct.ID, purpose, "s3cret-passphrase"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	first := h.outbox.last(t).code
	if err := h.engine.RequestStepUp(ctx, acct.ID, purpose, "s3cret-passphrase"); err != nil {
		t.Fatalf("second request: %v", err)
	}
	second := h.outbox.last(t).code

	if first != second {
		if _, err := h.engine.ConfirmStepUp(ctx, acct.ID, purpose, first); !errors.Is(err, goAccount.ErrInvalidCode) {
			t.Fatalf("expected superseded code rejected, got %v", err)
		}
	}
	if _, err := h.engine.ConfirmStepUp(ctx, acct.ID, purpose, second); err != nil {
		t.Fatalf("confirm latest code: %v", err)
	}
}

func TestTicketExpires(t *testing.T) {
	h := newHarness(t, nil)
	acct := h.createAccount(t, "s3cret-passphrase", "alice")
	ctx := context.Background()
	purpose := goAccount.PurposeSecuritySettings

	if err := h.engine.RequestStepUp(ctx, acct.ID, purpose, "s3cret-passphrase"); err != nil {
		t.Fatalf("request: %v", err)
	}
	ticket, err := h.engine.ConfirmStepUp(ctx, acct.ID, purpose, h.outbox.last(t).code)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	h.clock.Advance(5 * time.Minute)
	if _, err := h.engine.VerifyTicket(ctx, acct.ID, purpose, ticket.ID); !errors.Is(err, goAccount.ErrStepUpRequired) {
		t.Fatalf("expected expired ticket rejected, got %v", err)
	}
}

func TestStepUpDeliveryFailureLeavesNoCode(t *testing.T) {
	h := newHarness(t, nil)
	acct := h.createAccount(t, "s3cret-passphrase", "alice")
	h.outbox.fail = errors.New("smtp down")

	err := h.engine.RequestStepUp(context.Background(), acct.ID, goAccount.PurposeSecuritySettings, "s3cret-passphrase")
	if !errors.Is(err, goAccount.ErrCodeDeliveryFailed) {
		t.Fatalf("expected delivery failure, got %v", err)
	}
}

func TestStepUpDeactivatedAccountRefused(t *testing.T) {
	h := newHarness(t, nil)
	acct := h.createAccount(t, "s3cret-passphrase", "alice")
	ctx := context.Background()

	if _, err := h.engine.Deactivate(ctx, acct.ID, time.Hour); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := h.engine.RequestStepUp(ctx, acct.ID, goAccount.PurposeSecuritySettings, "s3cret-passphrase"); !errors.Is(err, goAccount.ErrAccountNotRecoverable) {
		t.Fatalf("expected not recoverable, got %v", err)
	}
}

func TestStepUpInvalidPurpose(t *testing.T) {
	h := newHarness(t, nil)
	acct := h.createAccount(t, "s3cret-passphrase", "alice")

	if err := h.engine.RequestStepUp(context.Background(), acct.ID, "", "s3cret-passphrase"); !errors.Is(err, goAccount.ErrInvalidPurpose) {
		t.Fatalf("expected invalid purpose, got %v", err)
	}
}
