package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/healsmart/internal/api/router"
	"github.com/wolfman30/healsmart/internal/appointments"
	"github.com/wolfman30/healsmart/internal/cart"
	"github.com/wolfman30/healsmart/internal/chat"
	appconfig "github.com/wolfman30/healsmart/internal/config"
	"github.com/wolfman30/healsmart/internal/dashboard"
	"github.com/wolfman30/healsmart/internal/docstore"
	"github.com/wolfman30/healsmart/internal/forms"
	"github.com/wolfman30/healsmart/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/healsmart/internal/http/middleware"
	"github.com/wolfman30/healsmart/internal/liveview"
	"github.com/wolfman30/healsmart/internal/notify"
	"github.com/wolfman30/healsmart/internal/observability/metrics"
	"github.com/wolfman30/healsmart/pkg/logging"
)

// Options configures New. Registry defaults to a fresh Prometheus registry
// so repeated construction in tests never collides.
type Options struct {
	Config   *appconfig.Config
	Logger   *logging.Logger
	AWS      AWSLoader
	Registry *prometheus.Registry
}

// App is the assembled storefront service.
type App struct {
	Config     *appconfig.Config
	Logger     *logging.Logger
	Store      docstore.Backend
	Dispatcher *notify.Dispatcher
	Sessions   *cart.Sessions
	Forms      *forms.Pipeline
	Bookings   *appointments.Service
	Chat       *chat.Service
	Dashboard  *dashboard.Service
	Feeds      *liveview.Registry
	Registry   *prometheus.Registry
	Handler    http.Handler
}

// New opens the document store, builds every service and mounts the router.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("bootstrap: config required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	aws := newLazyAWS(opts.AWS)

	storefrontMetrics := metrics.NewStorefrontMetrics(reg)
	docstoreMetrics := metrics.NewDocstoreMetrics(reg)

	backend, err := openBackend(ctx, cfg, aws, logger.Component("docstore"))
	if err != nil {
		return nil, err
	}
	store := docstore.Instrument(backend, docstoreMetrics)

	dispatcher, err := buildDispatcher(ctx, cfg, aws, storefrontMetrics, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	archiver, err := buildChatArchiver(ctx, cfg, aws, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	cartService := cart.NewService(store, storefrontMetrics, logger.Component("cart"))
	sessions := cart.NewSessions(cartService)
	pipeline := forms.NewPipeline(store, storefrontMetrics, logger.Component("forms"))
	bookings := appointments.NewService(pipeline, dispatcher, appointments.EmailConfig{
		ServiceID:  cfg.EmailServiceID,
		TemplateID: cfg.AppointmentTemplateID,
	}, logger.Component("appointments"))
	chatService := chat.NewService(store, chat.Options{
		ReplyDelay: cfg.ChatReplyDelay,
		Archiver:   archiver,
		Metrics:    storefrontMetrics,
		Logger:     logger.Component("chat"),
	})
	dashboardService := dashboard.NewService(store, logger.Component("dashboard"))

	feeds := liveview.NewRegistry(
		appointments.HistoryFeed(),
		chat.TranscriptFeed(),
		dashboard.HealthTipsFeed(),
		dashboard.NotificationsFeed(),
	)

	var limiter *httpmiddleware.RateLimiter
	if cfg.RateLimitPerSecond > 0 {
		limiter = httpmiddleware.NewRateLimiter(float64(cfg.RateLimitPerSecond), cfg.RateLimitBurst)
	}

	handler := router.New(&router.Config{
		Logger:             logger,
		Cart:               handlers.NewCartHandler(sessions, logger),
		Forms:              handlers.NewFormsHandler(pipeline, bookings, logger),
		Chat:               handlers.NewChatHandler(chatService, logger),
		Dashboard:          handlers.NewDashboardHandler(dashboardService, logger),
		Feeds:              liveview.NewFeedHandler(store, feeds, httpmiddleware.OriginAllowed(cfg.CORSAllowedOrigins), storefrontMetrics, logger.Component("liveview")),
		UserJWTSecret:      cfg.UserJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Gatherer:           reg,
		DocstoreBackend:    backend.Name(),
	})

	return &App{
		Config:     cfg,
		Logger:     logger,
		Store:      store,
		Dispatcher: dispatcher,
		Sessions:   sessions,
		Forms:      pipeline,
		Bookings:   bookings,
		Chat:       chatService,
		Dashboard:  dashboardService,
		Feeds:      feeds,
		Registry:   reg,
		Handler:    handler,
	}, nil
}

// Close stops pending chat replies and releases the document store.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	if a.Chat != nil {
		a.Chat.Close()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

// BuildChatArchiver returns the S3 transcript archiver, or nil when
// CHAT_ARCHIVE_BUCKET is unset.
func BuildChatArchiver(ctx context.Context, cfg *appconfig.Config, aws AWSLoader, logger *logging.Logger) (*chat.Archiver, error) {
	return buildChatArchiver(ctx, cfg, newLazyAWS(aws), logger)
}

func buildChatArchiver(ctx context.Context, cfg *appconfig.Config, aws *lazyAWS, logger *logging.Logger) (*chat.Archiver, error) {
	if strings.TrimSpace(cfg.ChatArchiveBucket) == "" {
		return nil, nil
	}
	awsCfg, err := aws.Config(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: aws config: %w", err)
	}
	pathStyle := cfg.AWSEndpointOverride != ""
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = pathStyle
	})
	return chat.NewArchiver(client, cfg.ChatArchiveBucket, cfg.ChatArchivePrefix, logger.Component("chat-archive")), nil
}
