package middleware

import (
	"context"
	"errors"
	"net/http"

	goAccount "github.com/MrEthical07/goAccount"
)

// TicketHeader carries the elevated ticket id on protected requests.
const TicketHeader = "X-Step-Up-Ticket"

type ticketContextKey struct{}

// TicketFromContext returns the ticket verified by RequireStepUp.
func TicketFromContext(ctx context.Context) (*goAccount.ElevatedTicket, bool) {
	t, ok := ctx.Value(ticketContextKey{}).(*goAccount.ElevatedTicket)
	return t, ok
}

// RequireStepUp admits requests that present a live ticket for purpose and
// the session's account. It must run after RequireSession.
func RequireStepUp(engine *goAccount.Engine, purpose goAccount.Purpose) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := SessionFromContext(r.Context())
			if engine == nil || !ok {
				writeError(w, http.StatusUnauthorized, "session_invalid")
				return
			}

			ticket, err := engine.VerifyTicket(r.Context(), sess.AccountID, purpose, r.Header.Get(TicketHeader))
			if err != nil {
				if errors.Is(err, goAccount.ErrStoreUnavailable) {
					writeError(w, http.StatusServiceUnavailable, "unavailable")
					return
				}
				writeError(w, http.StatusForbidden, "step_up_required")
				return
			}

			ctx := context.WithValue(r.Context(), ticketContextKey{}, ticket)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
