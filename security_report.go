package goAccount

import internalsecurity "github.com/MrEthical07/goAccount/internal/security"

// SecurityReport summarizes the effective policy of a built engine.
type SecurityReport = internalsecurity.Report

type PasswordConfigReport = internalsecurity.PasswordReport

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return internalsecurity.BuildReport(internalsecurity.ReportInput{
		SigningAlgorithm:    e.config.JWT.SigningMethod,
		SessionTTL:          e.config.Session.TTL,
		LockoutThreshold:    e.config.Lockout.Threshold,
		LockoutDuration:     e.config.Lockout.Duration,
		CodeDigits:          e.config.OneTimeCode.Digits,
		CodeTTL:             e.config.OneTimeCode.TTL,
		TicketTTL:           e.config.StepUp.TicketTTL,
		DefaultRetention:    e.config.Lifecycle.DefaultRetention,
		StepUpPasswordLimit: e.config.StepUp.MaxPasswordFailures,
		StepUpConfirmLimit:  e.config.StepUp.MaxConfirmFailures,
		RehashOnLogin:       e.config.Password.UpgradeOnLogin,
		AuditEnabled:        e.config.Audit.Enabled,
		MetricsEnabled:      e.config.Metrics.Enabled,
		Password: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
	})
}
