package internaldefs

import (
	goAccount "github.com/MrEthical07/goAccount"
)

// Source is what both exporters read from. *goAccount.Engine satisfies it.
type Source interface {
	MetricsSnapshot() goAccount.MetricsSnapshot
	AuditDropped() uint64
}

// Kind tells an exporter how to publish a Def.
type Kind uint8

const (
	Counter Kind = iota
	Histogram
)

// Def names one exported series.
type Def struct {
	ID   goAccount.MetricID
	Name string
	Help string
	Kind Kind
}

// AuditDroppedName is not backed by a MetricID; it comes from Source.AuditDropped.
const AuditDroppedName = "goaccount_audit_dropped_total"

// Defs lists every exported series in export order. The audit drop counter
// is always last.
var Defs = []Def{
	{goAccount.MetricLoginSuccess, "goaccount_login_success_total", "Admitted login attempts.", Counter},
	{goAccount.MetricLoginFailure, "goaccount_login_failure_total", "Login attempts rejected for a wrong secret.", Counter},
	{goAccount.MetricLoginLocked, "goaccount_login_locked_total", "Login attempts refused while the account was locked.", Counter},
	{goAccount.MetricLockoutTriggered, "goaccount_lockout_triggered_total", "Lockouts started by reaching the failure threshold.", Counter},
	{goAccount.MetricLoginNotFound, "goaccount_login_not_found_total", "Login attempts for unknown identifiers.", Counter},
	{goAccount.MetricLoginNotRecoverable, "goaccount_login_not_recoverable_total", "Login attempts for accounts past recovery.", Counter},
	{goAccount.MetricStateRetry, "goaccount_state_retry_total", "Re-decisions after a lost compare-and-set.", Counter},
	{goAccount.MetricAccountReactivated, "goaccount_account_reactivated_total", "Accounts reactivated inside their recovery window.", Counter},
	{goAccount.MetricAccountDeactivated, "goaccount_account_deactivated_total", "Accounts deactivated.", Counter},
	{goAccount.MetricErasureMarked, "goaccount_erasure_marked_total", "Accounts claimed for permanent deletion.", Counter},
	{goAccount.MetricStepUpRequested, "goaccount_step_up_requested_total", "One-time codes issued after a password re-check.", Counter},
	{goAccount.MetricStepUpPasswordFailure, "goaccount_step_up_password_failure_total", "Step-up requests with a wrong password.", Counter},
	{goAccount.MetricStepUpRateLimited, "goaccount_step_up_rate_limited_total", "Step-up attempts refused by throttling.", Counter},
	{goAccount.MetricStepUpConfirmSuccess, "goaccount_step_up_confirm_success_total", "Elevated tickets minted.", Counter},
	{goAccount.MetricStepUpConfirmFailure, "goaccount_step_up_confirm_failure_total", "Step-up confirmations with an invalid code.", Counter},
	{goAccount.MetricStepUpCodeExpired, "goaccount_step_up_code_expired_total", "Step-up confirmations with an expired code.", Counter},
	{goAccount.MetricTicketRejected, "goaccount_ticket_rejected_total", "Protected operations refused for a missing or invalid ticket.", Counter},
	{goAccount.MetricSessionCreated, "goaccount_session_created_total", "Created sessions.", Counter},
	{goAccount.MetricSessionRevoked, "goaccount_session_revoked_total", "Revoked sessions.", Counter},
	{goAccount.MetricPasswordRehashed, "goaccount_password_rehashed_total", "Credentials upgraded to current argon2id parameters on login.", Counter},
	{goAccount.MetricLoginLatency, "goaccount_login_latency_seconds", "Login latency.", Histogram},
	{0, AuditDroppedName, "Audit events dropped under dispatcher backpressure.", Counter},
}

// BucketBounds are the upper bucket bounds in seconds, as label values.
var BucketBounds = [goAccount.HistBucketCount]string{
	"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf",
}

// Sample is the value of one Def at collection time. Buckets are
// cumulative and only set for histograms.
type Sample struct {
	Def
	Value   uint64
	Buckets [goAccount.HistBucketCount]uint64
}

// Collect reads one snapshot from src and returns a Sample per Def, in Defs
// order. empty is true when every value is zero, which is the case when the
// engine runs with metrics disabled.
func Collect(src Source) (samples []Sample, empty bool) {
	snap := src.MetricsSnapshot()
	dropped := src.AuditDropped()
	empty = len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0

	samples = make([]Sample, len(Defs))
	for i, def := range Defs {
		s := Sample{Def: def}
		switch {
		case def.Name == AuditDroppedName:
			s.Value = dropped
		case def.Kind == Histogram:
			var running uint64
			raw := snap.Histograms[def.ID]
			for b := range s.Buckets {
				if b < len(raw) {
					running += raw[b]
				}
				s.Buckets[b] = running
			}
			s.Value = running
		default:
			s.Value = snap.Counters[def.ID]
		}
		samples[i] = s
	}
	return samples, empty
}
