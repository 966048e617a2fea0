package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/healsmart/pkg/logging"
)

const (
	redisDocKeyPrefix     = "docstore:"
	redisChangeKeyPrefix  = "docstore:changes:"
	redisSubscribeTimeout = 5 * time.Second
)

// RedisStore keeps each collection in one hash (id -> JSON) and publishes
// the collection name on every write.
type RedisStore struct {
	redis        *redis.Client
	logger       *logging.Logger
	pollInterval time.Duration
	newID        func() string
}

var _ Backend = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, pollInterval time.Duration, logger *logging.Logger) *RedisStore {
	if client == nil {
		panic("docstore: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisStore{
		redis:        client,
		logger:       logger,
		pollInterval: pollInterval,
		newID:        uuid.NewString,
	}
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) Close() error { return s.redis.Close() }

func (s *RedisStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := s.newID()
	if err := s.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *RedisStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}
	doc, err := normalize(data)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return invalidf("marshal document: %v", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, redisDocKey(collection), id, payload)
	pipe.Publish(ctx, redisChangeKey(collection), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("set", collection, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := validateCollection(collection); err != nil {
		return Document{}, err
	}
	raw, err := s.redis.HGet(ctx, redisDocKey(collection), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, storeErr("get", collection, err)
	}
	data, err := decodeObject(raw)
	if err != nil {
		return Document{}, storeErr("get", collection, err)
	}
	return Document{ID: id, Data: data}, nil
}

func (s *RedisStore) Delete(ctx context.Context, collection, id string) error {
	return s.BatchDelete(ctx, collection, []string{id})
}

func (s *RedisStore) List(ctx context.Context, collection string) ([]Document, error) {
	return s.Query(ctx, Query{Collection: collection})
}

// Query loads the whole hash and orders it client-side; ties fall back to
// document id.
func (s *RedisStore) Query(ctx context.Context, q Query) ([]Document, error) {
	q = q.normalized()
	if err := q.validate(); err != nil {
		return nil, err
	}
	entries, err := s.redis.HGetAll(ctx, redisDocKey(q.Collection)).Result()
	if err != nil {
		return nil, storeErr("query", q.Collection, err)
	}
	docs := make([]Document, 0, len(entries))
	for id, raw := range entries {
		data, err := decodeObject([]byte(raw))
		if err != nil {
			return nil, storeErr("query", q.Collection, fmt.Errorf("document %s: %w", id, err))
		}
		docs = append(docs, Document{ID: id, Data: data})
	}
	sortByID(docs)
	return sortDocuments(docs, q), nil
}

func (s *RedisStore) BatchDelete(ctx context.Context, collection string, ids []string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	pipe := s.redis.TxPipeline()
	pipe.HDel(ctx, redisDocKey(collection), ids...)
	pipe.Publish(ctx, redisChangeKey(collection), "batch")
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("batch_delete", collection, err)
	}
	return nil
}

func (s *RedisStore) Subscribe(ctx context.Context, q Query, h Handler) (Subscription, error) {
	q = q.normalized()
	if err := q.validate(); err != nil {
		return nil, err
	}
	cfg := watchConfig{backend: s.Name(), feed: s.feed, pollInterval: s.pollInterval, logger: s.logger}
	return startSubscription(ctx, cfg, q, func(ctx context.Context) ([]Document, error) {
		return s.Query(ctx, q)
	}, h)
}

// feed subscribes to the collection's change channel and waits for the
// server's confirmation before returning.
func (s *RedisStore) feed(ctx context.Context, collection string) (<-chan struct{}, error) {
	pubsub := s.redis.Subscribe(ctx, redisChangeKey(collection))

	confirmCtx, cancel := context.WithTimeout(ctx, redisSubscribeTimeout)
	defer cancel()
	if _, err := pubsub.Receive(confirmCtx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("docstore: redis subscribe: %w", err)
	}

	out, notify := signalChan()
	go func() {
		defer close(out)
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				notify()
			}
		}
	}()
	return out, nil
}

func redisDocKey(collection string) string {
	return redisDocKeyPrefix + collection
}

func redisChangeKey(collection string) string {
	return redisChangeKeyPrefix + collection
}
