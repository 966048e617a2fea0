package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/healsmart/internal/config"
	"github.com/wolfman30/healsmart/internal/notify"
	"github.com/wolfman30/healsmart/internal/observability/metrics"
	"github.com/wolfman30/healsmart/pkg/logging"
)

// Supported NOTIFY_PROVIDER values.
const (
	ProviderStub     = "stub"
	ProviderSendGrid = "sendgrid"
	ProviderSES      = "ses"
)

// BuildEmailSender returns the configured template sender. Real providers
// are wrapped in a circuit breaker.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, aws AWSLoader, logger *logging.Logger) (notify.TemplateSender, error) {
	return buildEmailSender(ctx, cfg, newLazyAWS(aws), logger)
}

func buildEmailSender(ctx context.Context, cfg *appconfig.Config, aws *lazyAWS, logger *logging.Logger) (notify.TemplateSender, error) {
	if logger == nil {
		logger = logging.Default()
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.NotifyProvider))

	var sender notify.TemplateSender
	switch provider {
	case "", ProviderStub:
		return notify.NewStubSender(logger), nil

	case ProviderSendGrid:
		sg := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		if sg == nil {
			return nil, fmt.Errorf("bootstrap: SENDGRID_API_KEY required for sendgrid provider")
		}
		sender = sg

	case ProviderSES:
		if strings.TrimSpace(cfg.SESFromEmail) == "" {
			return nil, fmt.Errorf("bootstrap: SES_FROM_EMAIL required for ses provider")
		}
		awsCfg, err := aws.Config(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: aws config: %w", err)
		}
		sender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail:        cfg.SESFromEmail,
			FromName:         cfg.SendGridFromName,
			ConfigurationSet: cfg.SESConfigurationSet,
		}, logger)

	default:
		return nil, fmt.Errorf("bootstrap: unknown notify provider %q", cfg.NotifyProvider)
	}

	return notify.NewBreaker(sender, notify.BreakerConfig{
		Name:        provider,
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
	}, logger), nil
}

// BuildNotificationQueue returns the in-memory queue for local runs or the
// SQS queue named by NOTIFICATION_QUEUE_URL.
func BuildNotificationQueue(ctx context.Context, cfg *appconfig.Config, aws AWSLoader) (notify.Queue, error) {
	return buildNotificationQueue(ctx, cfg, newLazyAWS(aws))
}

func buildNotificationQueue(ctx context.Context, cfg *appconfig.Config, aws *lazyAWS) (notify.Queue, error) {
	if cfg.UseMemoryQueue {
		return notify.NewMemoryQueue(256), nil
	}
	if strings.TrimSpace(cfg.NotificationQueueURL) == "" {
		return nil, fmt.Errorf("bootstrap: NOTIFICATION_QUEUE_URL required when USE_MEMORY_QUEUE=false")
	}
	awsCfg, err := aws.Config(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: aws config: %w", err)
	}
	return notify.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.NotificationQueueURL), nil
}

// BuildDispatcher wires the queue and sender into a notification dispatcher.
func BuildDispatcher(ctx context.Context, cfg *appconfig.Config, aws AWSLoader, m *metrics.StorefrontMetrics, logger *logging.Logger) (*notify.Dispatcher, error) {
	return buildDispatcher(ctx, cfg, newLazyAWS(aws), m, logger)
}

func buildDispatcher(ctx context.Context, cfg *appconfig.Config, aws *lazyAWS, m *metrics.StorefrontMetrics, logger *logging.Logger) (*notify.Dispatcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	queue, err := buildNotificationQueue(ctx, cfg, aws)
	if err != nil {
		return nil, err
	}
	sender, err := buildEmailSender(ctx, cfg, aws, logger.Component("email"))
	if err != nil {
		return nil, err
	}
	provider := cfg.NotifyProvider
	if provider == "" {
		provider = ProviderStub
	}
	return notify.NewDispatcher(queue, sender, provider, m, logger.Component("notify")).
		WithWait(cfg.NotificationWorkerWait), nil
}
