package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/jun/notabl/backend/internal/app"
	"github.com/jun/notabl/backend/internal/config"
	"github.com/jun/notabl/backend/internal/logging"
)

func main() {
	cfg := config.Load()
	logging.Setup(logging.Options{Level: cfg.LogLevel})

	application, err := app.NewApp(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize app")
	}
	lambda.Start(application.HandleRequest)
}
