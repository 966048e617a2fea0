package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/wolfman30/healsmart/internal/config"
	"github.com/wolfman30/healsmart/internal/docstore"
	"github.com/wolfman30/healsmart/internal/observability/metrics"
	"github.com/wolfman30/healsmart/pkg/logging"
)

// Supported DOCSTORE_BACKEND values.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendDynamo   = "dynamodb"
)

// OpenDocstore connects the configured document store backend and wraps it
// with tracing and metrics. The caller owns Close.
func OpenDocstore(ctx context.Context, cfg *appconfig.Config, aws AWSLoader, m *metrics.DocstoreMetrics, logger *logging.Logger) (docstore.Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	backend, err := openBackend(ctx, cfg, newLazyAWS(aws), logger.Component("docstore"))
	if err != nil {
		return nil, err
	}
	logger.Info("document store ready", "backend", backend.Name())
	return docstore.Instrument(backend, m), nil
}

func openBackend(ctx context.Context, cfg *appconfig.Config, aws *lazyAWS, logger *logging.Logger) (docstore.Backend, error) {
	poll := cfg.DocstorePollPeriod
	switch strings.ToLower(strings.TrimSpace(cfg.DocstoreBackend)) {
	case "", BackendMemory:
		return docstore.NewMemoryStore(logger), nil

	case BackendRedis:
		client := BuildRedisClient(ctx, cfg, logger, true)
		if client == nil {
			return nil, fmt.Errorf("bootstrap: redis docstore unavailable at %q", cfg.RedisAddr)
		}
		return docstore.NewRedisStore(client, poll, logger), nil

	case BackendMongo:
		if strings.TrimSpace(cfg.MongoURI) == "" {
			return nil, fmt.Errorf("bootstrap: MONGO_URI required for mongo docstore")
		}
		db, err := docstore.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: connect mongo: %w", err)
		}
		return docstore.NewMongoStore(db, poll, logger), nil

	case BackendPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, fmt.Errorf("bootstrap: DATABASE_URL required for postgres docstore")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
		}
		return docstore.NewPostgresStore(pool, poll, logger), nil

	case BackendDynamo:
		awsCfg, err := aws.Config(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: aws config: %w", err)
		}
		return docstore.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.DocumentsTable, poll, logger), nil

	default:
		return nil, fmt.Errorf("bootstrap: unknown docstore backend %q", cfg.DocstoreBackend)
	}
}
