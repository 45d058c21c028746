package security

import (
	"math"
	"time"
)

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Report summarizes the effective policy of an engine together with a few
// derived properties hosts tend to ask about.
type Report struct {
	SigningAlgorithm    string
	SessionTTL          time.Duration
	LockoutThreshold    int
	LockoutDuration     time.Duration
	CodeDigits          int
	CodeTTL             time.Duration
	TicketTTL           time.Duration
	DefaultRetention    time.Duration
	StepUpPasswordLimit int
	StepUpConfirmLimit  int
	RehashOnLogin       bool
	AuditEnabled        bool
	MetricsEnabled      bool
	Argon2              PasswordReport

	// CodeGuessOdds is the chance that blind guessing hits a live code
	// before the confirm throttle closes: limit / 10^digits.
	CodeGuessOdds float64
	// TicketOutlivesSession is set when a ticket can stay valid after the
	// session that requested it has expired.
	TicketOutlivesSession bool
	// Warnings lists settings that are valid but weaker than the defaults.
	Warnings []string
}

type ReportInput struct {
	SigningAlgorithm    string
	SessionTTL          time.Duration
	LockoutThreshold    int
	LockoutDuration     time.Duration
	CodeDigits          int
	CodeTTL             time.Duration
	TicketTTL           time.Duration
	DefaultRetention    time.Duration
	StepUpPasswordLimit int
	StepUpConfirmLimit  int
	RehashOnLogin       bool
	AuditEnabled        bool
	MetricsEnabled      bool
	Password            PasswordReport
}

func BuildReport(input ReportInput) Report {
	var odds float64
	if input.CodeDigits > 0 {
		odds = float64(input.StepUpConfirmLimit) / math.Pow10(input.CodeDigits)
	}

	var warnings []string
	if input.SigningAlgorithm == "hs256" {
		warnings = append(warnings, "access tokens use a shared hs256 secret")
	}
	if input.LockoutThreshold > 10 {
		warnings = append(warnings, "lockout threshold above 10 attempts")
	}
	if input.Password.Memory < 64*1024 {
		warnings = append(warnings, "argon2id memory below 64 MiB")
	}
	if !input.AuditEnabled {
		warnings = append(warnings, "audit events disabled")
	}

	return Report{
		SigningAlgorithm:      input.SigningAlgorithm,
		SessionTTL:            input.SessionTTL,
		LockoutThreshold:      input.LockoutThreshold,
		LockoutDuration:       input.LockoutDuration,
		CodeDigits:            input.CodeDigits,
		CodeTTL:               input.CodeTTL,
		TicketTTL:             input.TicketTTL,
		DefaultRetention:      input.DefaultRetention,
		StepUpPasswordLimit:   input.StepUpPasswordLimit,
		StepUpConfirmLimit:    input.StepUpConfirmLimit,
		RehashOnLogin:         input.RehashOnLogin,
		AuditEnabled:          input.AuditEnabled,
		MetricsEnabled:        input.MetricsEnabled,
		Argon2:                input.Password,
		CodeGuessOdds:         odds,
		TicketOutlivesSession: input.TicketTTL > input.SessionTTL,
		Warnings:              warnings,
	}
}
