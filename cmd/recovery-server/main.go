// Command recovery-server serves the pensioner password reset API.
//
// Configuration comes from RECOVERY_* environment variables, optionally
// loaded from an env file:
//
//	recovery-server --config-env ./recovery.env --directory ./subjects.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/pensionportal/recovery/internal/app"
	"github.com/pensionportal/recovery/internal/settings"
)

var version = "dev"

func main() {
	var (
		envFile     = pflag.String("config-env", "", "env file to load before reading RECOVERY_* variables")
		addr        = pflag.String("addr", "", "listen address, overrides RECOVERY_ADDR")
		directory   = pflag.String("directory", "", "YAML subject directory, overrides RECOVERY_DIRECTORY_FILE")
		showVersion = pflag.Bool("version", false, "print version and exit")
	)
	pflag.Parse()

	if *showVersion {
		fmt.Printf("recovery-server %s\n", version)
		return
	}

	s, err := settings.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load settings: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		s.Addr = *addr
	}
	if *directory != "" {
		s.DirectoryFile = *directory
	}

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = s.NewLogger(os.Stdout)

	if err := run(s); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(s settings.Settings) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, s, log.Logger)
	if err != nil {
		return err
	}
	defer a.Close()

	report := a.Engine.SecurityReport()
	log.Info().
		Bool("production_mode", report.ProductionMode).
		Str("hasher", string(report.Hasher)).
		Str("store", string(report.StoreBackend)).
		Bool("rate_limiting", report.RateLimitingActive).
		Dur("code_ttl", report.CodeTTL).
		Int("max_verify_attempts", report.MaxVerifyAttempts).
		Bool("enumeration_delay", report.EnumerationDelay).
		Bool("audit", report.AuditEnabled).
		Msg("security posture")

	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           a.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", s.Addr).
			Str("version", version).
			Bool("production", s.ProductionMode).
			Msg("recovery server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
