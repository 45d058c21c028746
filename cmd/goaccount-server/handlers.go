package main

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	goAccount "github.com/MrEthical07/goAccount"
	"github.com/MrEthical07/goAccount/metrics/export/prometheus"
	"github.com/MrEthical07/goAccount/middleware"
)

const maxBodyBytes = 64 << 10

type api struct {
	engine *goAccount.Engine
	logger *zap.Logger
}

func newAPI(engine *goAccount.Engine, logger *zap.Logger) *api {
	return &api{engine: engine, logger: logger.Named("http")}
}

func (a *api) publicRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(a.requestLogger)
	r.Use(middleware.ClientInfo)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/login", a.login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(a.engine))
			r.Post("/logout", a.logout)
			r.Post("/step-up", a.requestStepUp)
			r.Post("/step-up/confirm", a.confirmStepUp)

			r.With(middleware.RequireStepUp(a.engine, goAccount.PurposeSecuritySettings)).
				Get("/account/security", a.securitySettings)
			r.With(middleware.RequireStepUp(a.engine, goAccount.PurposeAccountDeletion)).
				Delete("/account", a.deleteAccount)
		})
	})
	return r
}

func (a *api) internalRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(a.requestLogger)

	r.Get("/internal/accounts/{id}/erasure", a.erasureStatus)
	r.Post("/internal/accounts/{id}/erasure", a.markErasure)
	r.Handle("/metrics", prometheus.NewPrometheusExporter(a.engine).Handler())
	return r
}

func (a *api) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

type sessionResponse struct {
	SessionID   string    `json:"session_id"`
	AccountID   string    `json:"account_id"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := a.engine.Login(r.Context(), req.Identifier, req.Secret)
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:   sess.SessionID,
		AccountID:   sess.AccountID,
		AccessToken: sess.AccessToken,
		ExpiresAt:   sess.ExpiresAt,
	})
}

func (a *api) logout(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	if err := a.engine.Logout(r.Context(), sess.SessionID); err != nil {
		a.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type stepUpRequest struct {
	Purpose string `json:"purpose"`
	Secret  string `json:"secret"`
}

func (a *api) requestStepUp(w http.ResponseWriter, r *http.Request) {
	var req stepUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, _ := middleware.SessionFromContext(r.Context())
	if err := a.engine.RequestStepUp(r.Context(), sess.AccountID, goAccount.Purpose(req.Purpose), req.Secret); err != nil {
		a.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "code_sent"})
}

type confirmRequest struct {
	Purpose string `json:"purpose"`
	Code    string `json:"code"`
}

type ticketResponse struct {
	Ticket    string    `json:"ticket"`
	Purpose   string    `json:"purpose"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *api) confirmStepUp(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, _ := middleware.SessionFromContext(r.Context())
	ticket, err := a.engine.ConfirmStepUp(r.Context(), sess.AccountID, goAccount.Purpose(req.Purpose), req.Code)
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticketResponse{
		Ticket:    ticket.ID,
		Purpose:   string(ticket.Purpose),
		ExpiresAt: ticket.ExpiresAt,
	})
}

type securityResponse struct {
	AccountID        string `json:"account_id"`
	SigningAlgorithm string `json:"signing_algorithm"`
	SessionTTL       string `json:"session_ttl"`
	LockoutThreshold int    `json:"lockout_threshold"`
	LockoutDuration  string `json:"lockout_duration"`
	CodeDigits       int    `json:"code_digits"`
	CodeTTL          string `json:"code_ttl"`
	TicketTTL        string `json:"ticket_ttl"`
	RecoveryWindow   string `json:"recovery_window"`
}

func (a *api) securitySettings(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	report := a.engine.SecurityReport()
	writeJSON(w, http.StatusOK, securityResponse{
		AccountID:        sess.AccountID,
		SigningAlgorithm: report.SigningAlgorithm,
		SessionTTL:       report.SessionTTL.String(),
		LockoutThreshold: report.LockoutThreshold,
		LockoutDuration:  report.LockoutDuration.String(),
		CodeDigits:       report.CodeDigits,
		CodeTTL:          report.CodeTTL.String(),
		TicketTTL:        report.TicketTTL.String(),
		RecoveryWindow:   report.DefaultRetention.String(),
	})
}

// deleteRequest is the optional body of DELETE /v1/account. Retention is a
// Go duration string; empty means the configured recovery window.
type deleteRequest struct {
	Retention string `json:"retention"`
}

func (a *api) deleteAccount(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())

	var retention time.Duration
	if r.ContentLength != 0 {
		var req deleteRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Retention != "" {
			d, err := time.ParseDuration(req.Retention)
			if err != nil || d <= 0 {
				writeError(w, http.StatusBadRequest, "invalid_retention")
				return
			}
			retention = d
		}
	}

	// Deactivation revokes every session and ticket of the account.
	scheduled, err := a.engine.Deactivate(r.Context(), sess.AccountID, retention)
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":                "deactivated",
		"scheduled_deletion_at": scheduled,
	})
}

func (a *api) erasureStatus(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	eligible, err := a.engine.IsEligibleForErasure(r.Context(), accountID)
	if err != nil {
		a.writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": accountID,
		"eligible":   eligible,
	})
}

func (a *api) markErasure(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.MarkPendingErasure(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeInternalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeInternalError differs from writeEngineError only in that internal
// callers may learn whether an account exists.
func (a *api) writeInternalError(w http.ResponseWriter, err error) {
	if errors.Is(err, goAccount.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, "account_not_found")
		return
	}
	a.writeEngineError(w, err)
}

// writeEngineError maps engine errors to responses. Unknown identifiers and
// wrong secrets share one body so callers cannot probe for accounts.
func (a *api) writeEngineError(w http.ResponseWriter, err error) {
	var locked *goAccount.LockedError
	switch {
	case errors.As(err, &locked):
		secs := int(math.Ceil(locked.Remaining.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeError(w, http.StatusLocked, "account_locked")
	case errors.Is(err, goAccount.ErrAccountNotFound), errors.Is(err, goAccount.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
	case errors.Is(err, goAccount.ErrAccountNotRecoverable):
		writeError(w, http.StatusForbidden, "account_not_recoverable")
	case errors.Is(err, goAccount.ErrRecoveryWindowExpired):
		writeError(w, http.StatusForbidden, "recovery_window_expired")
	case errors.Is(err, goAccount.ErrInvalidCode):
		writeError(w, http.StatusUnauthorized, "invalid_code")
	case errors.Is(err, goAccount.ErrCodeExpired):
		writeError(w, http.StatusGone, "code_expired")
	case errors.Is(err, goAccount.ErrStepUpRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited")
	case errors.Is(err, goAccount.ErrStepUpRequired):
		writeError(w, http.StatusForbidden, "step_up_required")
	case errors.Is(err, goAccount.ErrInvalidPurpose):
		writeError(w, http.StatusBadRequest, "invalid_purpose")
	case errors.Is(err, goAccount.ErrInvalidRetention):
		writeError(w, http.StatusBadRequest, "invalid_retention")
	case errors.Is(err, goAccount.ErrNotEligibleForErasure):
		writeError(w, http.StatusConflict, "not_eligible_for_erasure")
	case errors.Is(err, goAccount.ErrSessionInvalid):
		writeError(w, http.StatusUnauthorized, "session_invalid")
	case errors.Is(err, goAccount.ErrCodeDeliveryFailed):
		a.logger.Warn("code delivery failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "code_delivery_failed")
	case errors.Is(err, goAccount.ErrStoreUnavailable):
		a.logger.Error("backend unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "unavailable")
	default:
		a.logger.Error("unhandled engine error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
