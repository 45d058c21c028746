package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goAccount "github.com/MrEthical07/goAccount"
)

type sessionContextKey struct{}

// SessionFromContext returns the session validated by RequireSession.
func SessionFromContext(ctx context.Context) (*goAccount.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*goAccount.Session)
	return sess, ok
}

// RequireSession admits requests carrying "Authorization: Bearer <token>"
// for a live session. The session is stored in the request context and its
// id is attached for audit correlation.
func RequireSession(engine *goAccount.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, _ := strings.Cut(r.Header.Get("Authorization"), " ")
			if engine == nil || !strings.EqualFold(scheme, "Bearer") || token == "" {
				writeError(w, http.StatusUnauthorized, "session_invalid")
				return
			}

			sess, err := engine.ValidateSession(r.Context(), token)
			switch {
			case errors.Is(err, goAccount.ErrStoreUnavailable):
				writeError(w, http.StatusServiceUnavailable, "unavailable")
				return
			case err != nil:
				writeError(w, http.StatusUnauthorized, "session_invalid")
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
			next.ServeHTTP(w, r.WithContext(goAccount.WithSessionID(ctx, sess.SessionID)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + code + `"}`))
}
