package recovery

import (
	"errors"
	"time"

	internalaudit "github.com/pensionportal/recovery/internal/audit"
	"github.com/pensionportal/recovery/internal/limiters"
	"github.com/pensionportal/recovery/internal/stores"
	"github.com/pensionportal/recovery/password"
	"github.com/redis/go-redis/v9"
)

// Builder collects configuration and collaborators for an Engine.
//
// A Builder is single-use: Build may succeed once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	clock  func() time.Time

	directory   SubjectDirectory
	notifier    Notifier
	credentials CredentialStore
	auditSink   AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
//
// WithConfig copies cfg, so later changes to the caller's value have no effect.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used by the redis store backend. It is required
// when Store.Backend is StoreRedis and ignored otherwise.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDirectory sets the collaborator that resolves subject identifiers.
func (b *Builder) WithDirectory(d SubjectDirectory) *Builder {
	b.directory = d
	return b
}

// WithNotifier sets the collaborator that delivers verification codes.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithCredentialStore sets the collaborator that persists new password hashes.
func (b *Builder) WithCredentialStore(c CredentialStore) *Builder {
	b.credentials = c
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the time source used for every expiry and window
// decision. Tests use it to advance time without sleeping.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires the stores and returns a ready
// Engine. For the memory backend it also starts the expiry sweeper; call
// Engine.Close to stop it.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.directory == nil {
		return nil, errors.New("subject directory required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}

	engine := &Engine{
		config:      cfg,
		clock:       b.clock,
		directory:   b.directory,
		notifier:    b.notifier,
		credentials: b.credentials,
		policy: password.Policy{
			MinLength: cfg.Password.MinLength,
			MaxLength: cfg.Password.MaxLength,
			Symbols:   cfg.Password.Symbols,
		},
	}
	if engine.clock == nil {
		engine.clock = time.Now
	}

	// -------- STORES --------
	limiterCfg := limiters.AttemptConfig{
		Window:      cfg.RateLimit.Window,
		MaxAttempts: cfg.RateLimit.MaxAttempts,
	}
	switch cfg.Store.Backend {
	case StoreRedis:
		if b.redis == nil {
			return nil, errors.New("redis store backend requires redis client")
		}
		engine.sessions = stores.NewRedisSessionStore(b.redis, cfg.Store.SessionPrefix)
		if cfg.RateLimit.Enabled {
			engine.limiter = limiters.NewRedisAttemptLimiter(b.redis, cfg.Store.LimiterPrefix, limiterCfg)
		}
	default:
		engine.sessions = stores.NewMemorySessionStore()
		if cfg.RateLimit.Enabled {
			engine.limiter = limiters.NewMemoryAttemptLimiter(limiterCfg)
		}
	}

	// -------- PASSWORD HASHER --------
	switch cfg.Password.Hasher {
	case HasherArgon2:
		h, err := password.NewArgon2(cfg.Password.Argon2)
		if err != nil {
			return nil, err
		}
		engine.hasher = h
	default:
		h, err := password.NewBcrypt(cfg.Password.BcryptCost)
		if err != nil {
			return nil, err
		}
		engine.hasher = h
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	if cfg.Store.Backend == StoreMemory && cfg.Store.SweepInterval > 0 {
		engine.startSweeper(cfg.Store.SweepInterval)
	}

	b.built = true

	return engine, nil
}
