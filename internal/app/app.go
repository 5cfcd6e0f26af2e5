// Package app assembles a recovery engine and its HTTP handler from
// settings. Both the server and the Lambda entry point use it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pensionportal/recovery"
	"github.com/pensionportal/recovery/accounts"
	"github.com/pensionportal/recovery/internal/settings"
	"github.com/pensionportal/recovery/metrics/export/prometheus"
	"github.com/pensionportal/recovery/notify"
	"github.com/pensionportal/recovery/transport/httpapi"
)

// App owns the engine and every connection opened for it.
type App struct {
	Engine  *recovery.Engine
	Handler http.Handler

	closers []func() error
	log     zerolog.Logger
}

type directory interface {
	recovery.SubjectDirectory
	recovery.CredentialStore
}

// New wires an App. On error everything opened so far is closed again.
func New(ctx context.Context, s settings.Settings, logger zerolog.Logger) (*App, error) {
	a := &App{log: logger}
	if err := a.init(ctx, s); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, s settings.Settings) error {
	cfg := s.EngineConfig()
	proxies, err := s.TrustedProxyPrefixes()
	if err != nil {
		return err
	}
	builder := recovery.New().WithConfig(cfg)

	var rdb *redis.Client
	if cfg.Store.Backend == recovery.StoreRedis {
		rdb = redis.NewClient(&redis.Options{
			Addr:     s.RedisAddr,
			Password: s.RedisPassword,
			DB:       s.RedisDB,
		})
		a.closers = append(a.closers, rdb.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", s.RedisAddr, err)
		}
		builder.WithRedis(rdb)
		a.log.Info().Str("addr", s.RedisAddr).Msg("redis store connected")
	}

	dir, err := a.openDirectory(ctx, s)
	if err != nil {
		return err
	}

	notifier, err := a.buildNotifier(s)
	if err != nil {
		return err
	}

	if cfg.Audit.Enabled {
		builder.WithAuditSink(recovery.NewZerologSink(a.log))
	}

	engine, err := builder.
		WithDirectory(dir).
		WithNotifier(notifier).
		WithCredentialStore(dir).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	a.Engine = engine
	a.closers = append(a.closers, func() error { engine.Close(); return nil })

	var health func(context.Context) error
	if rdb != nil {
		health = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	a.Handler = httpapi.NewRouter(engine, httpapi.Options{
		Logger:  a.log,
		Metrics: prometheus.NewPrometheusExporter(engine).Handler(),
		Health:  health,

		TrustedProxies: proxies,
	})
	return nil
}

func (a *App) openDirectory(ctx context.Context, s settings.Settings) (directory, error) {
	switch {
	case s.DirectoryFile != "":
		dir, err := accounts.LoadStaticDirectoryFile(s.DirectoryFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load directory %s: %w", s.DirectoryFile, err)
		}
		a.log.Info().Str("file", s.DirectoryFile).Int("subjects", dir.Len()).Msg("static directory loaded")
		return dir, nil

	case s.SQLDSN != "":
		dir, err := accounts.OpenSQLDirectory(ctx, s.SQLConfig())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, dir.Close)
		a.log.Info().Str("driver", s.SQLDriver).Str("table", s.SQLTable).Msg("sql directory connected")
		return dir, nil

	default:
		return nil, errors.New("no subject directory configured: set RECOVERY_DIRECTORY_FILE or RECOVERY_SQL_DSN")
	}
}

// buildNotifier routes email and SMS to their configured transports. Outside
// production an unconfigured channel falls back to the log notifier.
func (a *App) buildNotifier(s settings.Settings) (recovery.Notifier, error) {
	router := notify.NewRouter()
	fallback := notify.LogNotifier{Logger: a.log.With().Str("component", "notify").Logger()}

	if cfg, ok := s.SMTPConfig(); ok {
		mailer, err := notify.NewSMTPMailer(cfg)
		if err != nil {
			return nil, err
		}
		router.Handle(recovery.MethodEmail, mailer)
	} else if s.ProductionMode {
		return nil, errors.New("production mode requires RECOVERY_SMTP_HOST")
	} else {
		router.Handle(recovery.MethodEmail, fallback)
		a.log.Warn().Msg("smtp not configured, email codes are only logged")
	}

	if cfg, ok := s.SMSConfig(); ok {
		gw, err := notify.NewSMSGateway(cfg, nil)
		if err != nil {
			return nil, err
		}
		router.Handle(recovery.MethodSMS, gw)
	} else if !s.ProductionMode {
		router.Handle(recovery.MethodSMS, fallback)
		a.log.Warn().Msg("sms gateway not configured, sms codes are only logged")
	}

	return router, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}
