package recovery

import "time"

// SecurityReport summarizes the hardening posture of a built Engine. It
// carries no secrets and is safe to log at startup.
type SecurityReport struct {
	ProductionMode     bool
	Hasher             HasherKind
	BcryptCost         int
	Argon2             PasswordConfigReport
	PasswordMinLength  int
	SessionTTL         time.Duration
	CodeTTL            time.Duration
	VerifiedTTL        time.Duration
	MaxVerifyAttempts  int
	EnumerationDelay   bool
	RateLimitingActive bool
	RateLimitWindow    time.Duration
	RateLimitMax       int
	StoreBackend       StoreBackend
	SharedStore        bool
	AuditEnabled       bool
}

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

	report := SecurityReport{
		ProductionMode:     cfg.Security.ProductionMode,
		Hasher:             cfg.Password.Hasher,
		PasswordMinLength:  cfg.Password.MinLength,
		SessionTTL:         cfg.Reset.SessionTTL,
		CodeTTL:            cfg.Reset.CodeTTL,
		VerifiedTTL:        cfg.Reset.VerifiedTTL,
		MaxVerifyAttempts:  cfg.Reset.MaxVerifyAttempts,
		EnumerationDelay:   cfg.Reset.EnumerationDelay,
		RateLimitingActive: e.limiter != nil,
		StoreBackend:       cfg.Store.Backend,
		SharedStore:        cfg.Store.Backend == StoreRedis,
		AuditEnabled:       e.audit != nil,
	}
	if report.RateLimitingActive {
		report.RateLimitWindow = cfg.RateLimit.Window
		report.RateLimitMax = cfg.RateLimit.MaxAttempts
	}

	switch cfg.Password.Hasher {
	case HasherArgon2:
		report.Argon2 = PasswordConfigReport{
			Memory:      cfg.Password.Argon2.Memory,
			Time:        cfg.Password.Argon2.Time,
			Parallelism: cfg.Password.Argon2.Parallelism,
			SaltLength:  cfg.Password.Argon2.SaltLength,
			KeyLength:   cfg.Password.Argon2.KeyLength,
		}
	default:
		report.BcryptCost = cfg.Password.BcryptCost
	}
	return report
}
