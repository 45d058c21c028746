package goAccount

import (
	"context"

	"github.com/MrEthical07/goAccount/internal/flows"
)

// RequestStepUp re-checks the account secret and, on success, issues a
// one-time code for purpose through the CodeNotifier. Any code still live
// for the same account and purpose is invalidated.
func (e *Engine) RequestStepUp(ctx context.Context, accountID string, purpose Purpose, secret string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return flows.RunRequestStepUp(ctx, accountID, string(purpose), secret, e.flowDeps.StepUp)
}

// ConfirmStepUp consumes a one-time code and mints an elevated ticket bound
// to accountID and purpose. A wrong code leaves the live code usable.
func (e *Engine) ConfirmStepUp(ctx context.Context, accountID string, purpose Purpose, code string) (*ElevatedTicket, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	res, err := flows.RunConfirmStepUp(ctx, accountID, string(purpose), code, e.flowDeps.StepUp)
	if err != nil {
		return nil, err
	}
	return toElevatedTicket(res), nil
}

// VerifyTicket checks a ticket before a protected operation. Anything other
// than an unexpired ticket for the same account and purpose returns
// ErrStepUpRequired.
func (e *Engine) VerifyTicket(ctx context.Context, accountID string, purpose Purpose, ticketID string) (*ElevatedTicket, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	res, err := flows.RunVerifyTicket(ctx, accountID, string(purpose), ticketID, e.flowDeps.StepUp)
	if err != nil {
		return nil, err
	}
	return toElevatedTicket(res), nil
}

// RevokeTicket invalidates a ticket ahead of its expiry.
func (e *Engine) RevokeTicket(ctx context.Context, ticketID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return flows.RunRevokeTicket(ctx, ticketID, e.flowDeps.StepUp)
}

func toElevatedTicket(res *flows.TicketResult) *ElevatedTicket {
	return &ElevatedTicket{
		ID:        res.ID,
		AccountID: res.AccountID,
		Purpose:   Purpose(res.Purpose),
		IssuedAt:  res.IssuedAt,
		ExpiresAt: res.ExpiresAt,
	}
}
