package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/wolfman30/healsmart/cmd/mainconfig"
	"github.com/wolfman30/healsmart/internal/app/bootstrap"
	appconfig "github.com/wolfman30/healsmart/internal/config"
	"github.com/wolfman30/healsmart/pkg/logging"
)

type deliverer interface {
	Deliver(ctx context.Context, body string) error
}

func main() {
	cfg := appconfig.Load()
	// Records arrive in the event; the dispatcher's own queue is never polled.
	cfg.UseMemoryQueue = true
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout).Component("notify-lambda")

	dispatcher, err := bootstrap.BuildDispatcher(context.Background(), cfg, func(ctx context.Context) (aws.Config, error) {
		return mainconfig.LoadAWSConfig(ctx, cfg)
	}, nil, logger)
	if err != nil {
		logger.Error("failed to build dispatcher", "error", err)
		os.Exit(1)
	}

	lambda.Start(func(ctx context.Context, evt events.SQSEvent) (events.SQSEventResponse, error) {
		return handle(ctx, dispatcher, logger, evt), nil
	})
}

// handle delivers each record once. Failed sends are logged and dropped
// rather than reported back to SQS, so a bad template or an open breaker
// never turns into a redelivery loop.
func handle(ctx context.Context, d deliverer, logger *logging.Logger, evt events.SQSEvent) events.SQSEventResponse {
	failed := 0
	for _, record := range evt.Records {
		if err := d.Deliver(ctx, record.Body); err != nil {
			failed++
			logger.Warn("notification dropped", "message_id", record.MessageId, "error", err)
		}
	}
	logger.Info("notification batch processed", "records", len(evt.Records), "failed", failed)
	return events.SQSEventResponse{}
}
