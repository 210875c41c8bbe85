package edgeauth

import "time"

// SecurityReport summarizes the security-relevant settings an Engine runs
// with. It never includes the signing secret.
type SecurityReport struct {
	SigningAlgorithm    string
	AccessTTL           time.Duration
	Leeway              time.Duration
	IssuerPinned        bool
	Argon2              PasswordConfigReport
	MinPasswordLength   int
	LoginThrottleActive bool
	IPThrottleActive    bool
	AuditEnabled        bool
	AuditMayDrop        bool
	PurgeInterval       time.Duration
	LatencyHistograms   bool
	SingleActiveSession bool
	RoleChangeRevokes   bool
}

// PasswordConfigReport is the argon2id cost part of [SecurityReport].
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	cfg := e.config

	throttle := cfg.Security.EnableLoginThrottle &&
		cfg.Security.MaxLoginAttempts > 0 &&
		cfg.Security.LoginCooldownDuration > 0

	return SecurityReport{
		SigningAlgorithm: cfg.JWT.SigningMethod,
		AccessTTL:        cfg.JWT.AccessTTL,
		Leeway:           cfg.JWT.Leeway,
		IssuerPinned:     cfg.JWT.Issuer != "",
		Argon2: PasswordConfigReport{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		},
		MinPasswordLength:   cfg.Password.MinLength,
		LoginThrottleActive: throttle,
		IPThrottleActive:    throttle && cfg.Security.EnableIPThrottle,
		AuditEnabled:        cfg.Audit.Enabled,
		AuditMayDrop:        cfg.Audit.Enabled && cfg.Audit.DropIfFull,
		PurgeInterval:       cfg.Session.PurgeInterval,
		LatencyHistograms:   cfg.Metrics.Enabled && cfg.Metrics.EnableLatencyHistograms,
		SingleActiveSession: true,
		RoleChangeRevokes:   true,
	}
}
