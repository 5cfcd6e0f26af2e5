package httpapi

import (
	"context"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/pensionportal/recovery"
)

const BasePath = "/api/v1"

// Resetter is the part of *recovery.Engine the handlers call.
type Resetter interface {
	Initiate(ctx context.Context, subjectIdentifier string) (recovery.InitiateResult, error)
	SendCode(ctx context.Context, token string, method recovery.ContactMethod) (recovery.SendCodeResult, error)
	VerifyCode(ctx context.Context, token, code string) error
	CompletePasswordReset(ctx context.Context, token, newPassword string) error
}

type Options struct {
	Logger zerolog.Logger
	// Metrics is served at GET /metrics when set.
	Metrics http.Handler
	// Health is consulted by GET /healthz when set.
	Health func(ctx context.Context) error
	// RequestTimeout bounds every API request. Zero means 15s.
	RequestTimeout time.Duration
	// TrustedProxies lists the peers whose X-Forwarded-For and X-Real-IP
	// headers are believed. Requests from anyone else are keyed by
	// RemoteAddr.
	TrustedProxies []netip.Prefix
}

type api struct {
	engine   Resetter
	log      zerolog.Logger
	validate *validator.Validate
}

// NewRouter builds the HTTP handler for engine.
func NewRouter(engine Resetter, opts Options) http.Handler {
	a := &api{
		engine:   engine,
		log:      opts.Logger,
		validate: newValidator(),
	}

	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(realIP(opts.TrustedProxies))
	r.Use(a.accessLog)
	r.Use(a.recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Message: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Message: "method not allowed"})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Health != nil {
			if err := opts.Health(r.Context()); err != nil {
				a.log.Error().Err(err).Msg("health check failed")
				writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, healthResponse{Success: true, Status: "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route(BasePath, func(r chi.Router) {
		r.Use(chimiddleware.NoCache)
		r.Use(chimiddleware.Timeout(timeout))
		r.Use(clientIP)

		r.Route("/auth/forgot-password", func(r chi.Router) {
			r.Post("/initiate", a.initiate)
			r.Post("/send-code", a.sendCode)
			r.Post("/verify-code", a.verifyCode)
			r.Post("/reset", a.reset)
		})
	})

	return r
}
