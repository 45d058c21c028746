package internal

import (
	"testing"
)

func TestNewOTPDigitsOnly(t *testing.T) {
	for _, digits := range []int{6, 8, 10} {
		code, err := NewOTP(digits)
		if err != nil {
			t.Fatalf("NewOTP(%d) failed: %v", digits, err)
		}
		if len(code) != digits {
			t.Fatalf("expected %d digits, got %q", digits, code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("non-digit %q in %q", r, code)
			}
		}
	}
}

func TestNewOTPRejectsBadLength(t *testing.T) {
	for _, digits := range []int{0, 5, 11} {
		if _, err := NewOTP(digits); err == nil {
			t.Fatalf("expected NewOTP(%d) to fail", digits)
		}
	}
}

func TestHashCodeBindsOwnerAndPurpose(t *testing.T) {
	base := HashCode("acct-1", "account-deletion", "123456")

	if base != HashCode("acct-1", "account-deletion", "123456") {
		t.Fatal("expected deterministic digest")
	}
	if base == HashCode("acct-2", "account-deletion", "123456") {
		t.Fatal("digest must differ per account")
	}
	if base == HashCode("acct-1", "security-settings", "123456") {
		t.Fatal("digest must differ per purpose")
	}
	if HashCode("ab", "c", "1") == HashCode("a", "bc", "1") {
		t.Fatal("field boundaries must be unambiguous")
	}
}

func TestTicketIDRoundTrip(t *testing.T) {
	tid, err := NewTicketID()
	if err != nil {
		t.Fatalf("NewTicketID failed: %v", err)
	}

	parsed, err := ParseTicketID(tid.String())
	if err != nil {
		t.Fatalf("ParseTicketID failed: %v", err)
	}
	if parsed != tid {
		t.Fatal("ticket id round trip mismatch")
	}

	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID failed: %v", err)
	}
	if _, err := ParseTicketID(sid.String()); err == nil {
		t.Fatal("session id must not parse as a ticket id")
	}
}
