// Command recovery-lambda serves the password reset API from AWS Lambda
// behind an API Gateway proxy integration. Settings are read from RECOVERY_*
// environment variables; use the redis store backend so sessions survive
// across instances.
package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/pensionportal/recovery"
	"github.com/pensionportal/recovery/internal/app"
	"github.com/pensionportal/recovery/internal/settings"
)

func main() {
	s, err := settings.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load settings")
	}
	log.Logger = s.NewLogger(os.Stdout)

	if s.EngineConfig().Store.Backend != recovery.StoreRedis {
		log.Warn().Msg("memory store backend keeps sessions per instance, use RECOVERY_STORE_BACKEND=redis")
	}

	a, err := app.New(context.Background(), s, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.Close()

	lambda.Start(proxyHandler{next: a.Handler}.Handle)
}
