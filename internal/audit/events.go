package audit

// Event types emitted by the engine.
const (
	EventLoginSuccess          = "login_success"
	EventLoginFailure          = "login_failure"
	EventLoginLocked           = "login_locked"
	EventAccountReactivated    = "account_reactivated"
	EventAccountDeactivated    = "account_deactivated"
	EventAccountPendingErasure = "account_pending_erasure"
	EventStepUpRequested       = "step_up_requested"
	EventStepUpPasswordFailure = "step_up_password_failure"
	EventStepUpConfirmed       = "step_up_confirmed"
	EventStepUpCodeFailure     = "step_up_code_failure"
	EventTicketRejected        = "ticket_rejected"
	EventSessionRevoked        = "session_revoked"
)
