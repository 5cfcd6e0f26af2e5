package recovery

import (
	"errors"
	"strings"
	"time"

	"github.com/pensionportal/recovery/password"
)

// Config holds every engine setting. Start from DefaultConfig and override.
type Config struct {
	Reset     ResetConfig
	RateLimit RateLimitConfig
	Password  PasswordConfig
	Store     StoreConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Security  SecurityConfig
}

/*
====================================
RESET FLOW CONFIG
====================================
*/

// ResetConfig controls the session lifecycle.
//
// A session lives SessionTTL after Initiate. SendCode narrows the deadline to
// CodeTTL; a successful VerifyCode extends it to VerifiedTTL.
type ResetConfig struct {
	IdentifierPrefixes []string
	SessionTTL         time.Duration
	CodeTTL            time.Duration
	VerifiedTTL        time.Duration
	MaxVerifyAttempts  int
	// EnumerationDelay pads Initiate for unknown identifiers with 20-40ms.
	EnumerationDelay bool
}

// RateLimitConfig bounds Initiate per client and identifier.
type RateLimitConfig struct {
	Enabled     bool
	Window      time.Duration
	MaxAttempts int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type HasherKind string

const (
	HasherBcrypt HasherKind = "bcrypt"
	HasherArgon2 HasherKind = "argon2"
)

type PasswordConfig struct {
	MinLength  int
	MaxLength  int
	Symbols    string
	Hasher     HasherKind
	BcryptCost int
	Argon2     password.Argon2Config
}

/*
====================================
STORE CONFIG
====================================
*/

type StoreBackend string

const (
	StoreMemory StoreBackend = "memory"
	StoreRedis  StoreBackend = "redis"
)

// StoreConfig selects where sessions and limiter counters live. The memory
// backend is process-local; run the redis backend behind a load balancer.
type StoreConfig struct {
	Backend       StoreBackend
	SessionPrefix string
	LimiterPrefix string
	// SweepInterval drives the background cleanup of the memory backend.
	// Zero disables the sweeper.
	SweepInterval time.Duration
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

type SecurityConfig struct {
	// ProductionMode rejects configurations that weaken the flow.
	ProductionMode bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func DefaultConfig() Config {
	return Config{
		Reset: ResetConfig{
			IdentifierPrefixes: []string{"NSS"},
			SessionTTL:         30 * time.Minute,
			CodeTTL:            10 * time.Minute,
			VerifiedTTL:        30 * time.Minute,
			MaxVerifyAttempts:  3,
			EnumerationDelay:   true,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			Window:      15 * time.Minute,
			MaxAttempts: 3,
		},
		Password: PasswordConfig{
			MinLength:  8,
			MaxLength:  72,
			Symbols:    password.DefaultSymbols,
			Hasher:     HasherBcrypt,
			BcryptCost: password.DefaultBcryptCost,
			Argon2:     password.DefaultArgon2Config(),
		},
		Store: StoreConfig{
			Backend:       StoreMemory,
			SessionPrefix: "rrs",
			LimiterPrefix: "rrl",
			SweepInterval: 5 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Reset.IdentifierPrefixes = append([]string(nil), cfg.Reset.IdentifierPrefixes...)
	return out
}

/*
====================================
VALIDATION
====================================
*/

func (c *Config) Validate() error {
	// Reset
	if c.Reset.SessionTTL <= 0 {
		return errors.New("Reset SessionTTL must be > 0")
	}
	if c.Reset.CodeTTL <= 0 {
		return errors.New("Reset CodeTTL must be > 0")
	}
	if c.Reset.VerifiedTTL <= 0 {
		return errors.New("Reset VerifiedTTL must be > 0")
	}
	if c.Reset.MaxVerifyAttempts <= 0 || c.Reset.MaxVerifyAttempts > 65535 {
		return errors.New("Reset MaxVerifyAttempts must be between 1 and 65535")
	}
	for _, p := range c.Reset.IdentifierPrefixes {
		if strings.TrimSpace(p) == "" {
			return errors.New("Reset IdentifierPrefixes must not contain empty entries")
		}
		for _, r := range p {
			if r >= '0' && r <= '9' {
				return errors.New("Reset IdentifierPrefixes must not contain digits")
			}
		}
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.Window <= 0 {
			return errors.New("RateLimit Window must be > 0")
		}
		if c.RateLimit.MaxAttempts <= 0 {
			return errors.New("RateLimit MaxAttempts must be > 0")
		}
	}

	// Password
	if c.Password.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}
	if c.Password.MaxLength != 0 && c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}
	switch c.Password.Hasher {
	case HasherBcrypt:
		if c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31 {
			return errors.New("Password BcryptCost must be between 4 and 31")
		}
		if c.Password.MaxLength == 0 || c.Password.MaxLength > 72 {
			return errors.New("Password MaxLength must be between MinLength and 72 with bcrypt")
		}
	case HasherArgon2:
		if c.Password.Argon2.Memory < 8*1024 {
			return errors.New("Password Argon2 Memory must be >= 8192 KB")
		}
		if c.Password.Argon2.Time < 1 {
			return errors.New("Password Argon2 Time must be >= 1")
		}
		if c.Password.Argon2.Parallelism < 1 {
			return errors.New("Password Argon2 Parallelism must be >= 1")
		}
		if c.Password.Argon2.SaltLength < 16 || c.Password.Argon2.KeyLength < 16 {
			return errors.New("Password Argon2 SaltLength and KeyLength must be >= 16")
		}
	default:
		return errors.New("Password Hasher must be 'bcrypt' or 'argon2'")
	}

	// Store
	switch c.Store.Backend {
	case StoreMemory, StoreRedis:
	default:
		return errors.New("Store Backend must be 'memory' or 'redis'")
	}
	if c.Store.SweepInterval < 0 {
		return errors.New("Store SweepInterval must be >= 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if c.Security.ProductionMode {
		if c.Password.Hasher == HasherBcrypt && c.Password.BcryptCost < 12 {
			return errors.New("ProductionMode requires Password BcryptCost >= 12")
		}
		if c.Password.Hasher == HasherArgon2 && (c.Password.Argon2.Memory < 64*1024 || c.Password.Argon2.Time < 2) {
			return errors.New("ProductionMode requires Argon2 Memory >= 65536 KB and Time >= 2")
		}
		if c.Reset.CodeTTL > 15*time.Minute {
			return errors.New("ProductionMode requires Reset CodeTTL <= 15m")
		}
		if c.Reset.MaxVerifyAttempts > 5 {
			return errors.New("ProductionMode requires Reset MaxVerifyAttempts <= 5")
		}
		if !c.RateLimit.Enabled {
			return errors.New("ProductionMode requires RateLimit Enabled")
		}
		if !c.Reset.EnumerationDelay {
			return errors.New("ProductionMode requires Reset EnumerationDelay")
		}
	}

	return nil
}
