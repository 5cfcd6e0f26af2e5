// Package settings reads the service configuration from the environment.
package settings

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/pensionportal/recovery"
	"github.com/pensionportal/recovery/accounts"
	"github.com/pensionportal/recovery/notify"
)

// Settings is the flat environment view of a recovery server.
type Settings struct {
	Addr           string `env:"RECOVERY_ADDR" envDefault:":8080"`
	LogLevel       string `env:"RECOVERY_LOG_LEVEL" envDefault:"info"`
	LogFormat      string `env:"RECOVERY_LOG_FORMAT" envDefault:"json"`
	ProductionMode bool   `env:"RECOVERY_PRODUCTION_MODE" envDefault:"false"`

	// TrustedProxies holds IPs or CIDR ranges allowed to set
	// X-Forwarded-For. Empty means the TCP peer is always the client.
	TrustedProxies []string `env:"RECOVERY_TRUSTED_PROXIES" envSeparator:","`

	IdentifierPrefixes      []string `env:"RECOVERY_IDENTIFIER_PREFIXES" envSeparator:"," envDefault:"NSS"`
	SessionValidityMinutes  int      `env:"RECOVERY_SESSION_VALIDITY_MINUTES" envDefault:"30"`
	CodeValidityMinutes     int      `env:"RECOVERY_CODE_VALIDITY_MINUTES" envDefault:"10"`
	VerifiedValidityMinutes int      `env:"RECOVERY_VERIFIED_VALIDITY_MINUTES" envDefault:"30"`
	MaxVerifyAttempts       int      `env:"RECOVERY_MAX_VERIFY_ATTEMPTS" envDefault:"3"`
	EnumerationDelay        bool     `env:"RECOVERY_ENUMERATION_DELAY" envDefault:"true"`

	RateLimitEnabled bool          `env:"RECOVERY_RATE_LIMIT_ENABLED" envDefault:"true"`
	RateWindow       time.Duration `env:"RECOVERY_RATE_WINDOW" envDefault:"15m"`
	RateMaxAttempts  int           `env:"RECOVERY_RATE_MAX_ATTEMPTS" envDefault:"3"`

	PasswordHasher string `env:"RECOVERY_PASSWORD_HASHER" envDefault:"bcrypt"`
	BcryptCost     int    `env:"RECOVERY_BCRYPT_COST" envDefault:"12"`

	StoreBackend  string        `env:"RECOVERY_STORE_BACKEND" envDefault:"memory"`
	SweepInterval time.Duration `env:"RECOVERY_SWEEP_INTERVAL" envDefault:"5m"`
	RedisAddr     string        `env:"RECOVERY_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"RECOVERY_REDIS_PASSWORD"`
	RedisDB       int           `env:"RECOVERY_REDIS_DB" envDefault:"0"`

	AuditEnabled bool `env:"RECOVERY_AUDIT_ENABLED" envDefault:"true"`

	DirectoryFile string `env:"RECOVERY_DIRECTORY_FILE"`
	SQLDriver     string `env:"RECOVERY_SQL_DRIVER" envDefault:"mysql"`
	SQLDSN        string `env:"RECOVERY_SQL_DSN"`
	SQLTable      string `env:"RECOVERY_SQL_TABLE" envDefault:"pensioners"`

	SMTPHost     string `env:"RECOVERY_SMTP_HOST"`
	SMTPPort     string `env:"RECOVERY_SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"RECOVERY_SMTP_USER"`
	SMTPPassword string `env:"RECOVERY_SMTP_PASSWORD"`
	SMTPFrom     string `env:"RECOVERY_SMTP_FROM"`
	SMTPFromName string `env:"RECOVERY_SMTP_FROM_NAME" envDefault:"Pension Portal"`

	SMSGatewayURL   string `env:"RECOVERY_SMS_GATEWAY_URL"`
	SMSGatewayToken string `env:"RECOVERY_SMS_GATEWAY_TOKEN"`
	SMSSender       string `env:"RECOVERY_SMS_SENDER"`
}

// Load reads envFile, when given, into the process environment and then
// parses Settings. Without envFile a ./.env file is loaded if present.
// Variables already set in the environment win over the file.
func Load(envFile string) (Settings, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Settings{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("load .env: %w", err)
	}

	var s Settings
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	if _, err := s.TrustedProxyPrefixes(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address is a single
// host prefix.
func (s Settings) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range s.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("RECOVERY_TRUSTED_PROXIES: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("RECOVERY_TRUSTED_PROXIES: %w", err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// EngineConfig maps s onto recovery.Config. The result still has to pass
// Config.Validate, which Builder.Build runs.
func (s Settings) EngineConfig() recovery.Config {
	cfg := recovery.DefaultConfig()

	cfg.Reset.IdentifierPrefixes = trimAll(s.IdentifierPrefixes)
	cfg.Reset.SessionTTL = minutes(s.SessionValidityMinutes)
	cfg.Reset.CodeTTL = minutes(s.CodeValidityMinutes)
	cfg.Reset.VerifiedTTL = minutes(s.VerifiedValidityMinutes)
	cfg.Reset.MaxVerifyAttempts = s.MaxVerifyAttempts
	cfg.Reset.EnumerationDelay = s.EnumerationDelay

	cfg.RateLimit.Enabled = s.RateLimitEnabled
	cfg.RateLimit.Window = s.RateWindow
	cfg.RateLimit.MaxAttempts = s.RateMaxAttempts

	cfg.Password.Hasher = recovery.HasherKind(strings.ToLower(s.PasswordHasher))
	cfg.Password.BcryptCost = s.BcryptCost

	cfg.Store.Backend = recovery.StoreBackend(strings.ToLower(s.StoreBackend))
	cfg.Store.SweepInterval = s.SweepInterval

	cfg.Audit.Enabled = s.AuditEnabled
	cfg.Security.ProductionMode = s.ProductionMode

	return cfg
}

func (s Settings) SQLConfig() accounts.SQLConfig {
	return accounts.SQLConfig{
		Driver:          s.SQLDriver,
		DSN:             s.SQLDSN,
		Table:           s.SQLTable,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// SMTPConfig reports false when no SMTP host is configured.
func (s Settings) SMTPConfig() (notify.SMTPConfig, bool) {
	if s.SMTPHost == "" {
		return notify.SMTPConfig{}, false
	}
	return notify.SMTPConfig{
		Host:     s.SMTPHost,
		Port:     s.SMTPPort,
		Username: s.SMTPUser,
		Password: s.SMTPPassword,
		From:     s.SMTPFrom,
		FromName: s.SMTPFromName,
	}, true
}

// SMSConfig reports false when no gateway URL is configured.
func (s Settings) SMSConfig() (notify.SMSConfig, bool) {
	if s.SMSGatewayURL == "" {
		return notify.SMSConfig{}, false
	}
	return notify.SMSConfig{
		URL:    s.SMSGatewayURL,
		Token:  s.SMSGatewayToken,
		Sender: s.SMSSender,
	}, true
}

// NewLogger builds the process logger. Console output is refused in
// production mode.
func (s Settings) NewLogger(out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	level, err := zerolog.ParseLevel(strings.ToLower(s.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if strings.EqualFold(s.LogFormat, "console") && !s.ProductionMode {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Str("app", "recovery").Logger()
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
