package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfman30/healsmart/pkg/logging"
)

// postgresChangeChannel is notified by the documents trigger with the
// collection name as payload.
const postgresChangeChannel = "docstore_changes"

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps documents in one jsonb table. Live updates use
// LISTEN/NOTIFY when a pool is supplied for dedicated listener connections,
// and polling otherwise.
type PostgresStore struct {
	db           pgxQuerier
	listenPool   *pgxpool.Pool
	logger       *logging.Logger
	pollInterval time.Duration
	newID        func() string
}

var _ Backend = (*PostgresStore)(nil)

// NewPostgresStore builds a store over a pgx pool, which also serves
// LISTEN connections.
func NewPostgresStore(pool *pgxpool.Pool, pollInterval time.Duration, logger *logging.Logger) *PostgresStore {
	if pool == nil {
		panic("docstore: pgx pool required")
	}
	s := newPostgresStore(pool, pollInterval, logger)
	s.listenPool = pool
	return s
}

func newPostgresStore(db pgxQuerier, pollInterval time.Duration, logger *logging.Logger) *PostgresStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &PostgresStore{
		db:           db,
		logger:       logger,
		pollInterval: pollInterval,
		newID:        uuid.NewString,
	}
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) Close() error {
	if s.listenPool != nil {
		s.listenPool.Close()
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := s.newID()
	if err := s.write(ctx, "create", collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *PostgresStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	return s.write(ctx, "set", collection, id, data)
}

func (s *PostgresStore) write(ctx context.Context, op, collection, id string, data map[string]any) error {
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
	query := `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE
		SET data = EXCLUDED.data, updated_at = now()
	`
	if _, err := s.db.Exec(ctx, query, collection, id, payload); err != nil {
		return storeErr(op, collection, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := validateCollection(collection); err != nil {
		return Document{}, err
	}
	var payload []byte
	err := s.db.QueryRow(ctx, `SELECT data FROM documents WHERE collection = $1 AND id = $2`, collection, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, storeErr("get", collection, err)
	}
	data, err := decodeObject(payload)
	if err != nil {
		return Document{}, storeErr("get", collection, err)
	}
	return Document{ID: id, Data: data}, nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id); err != nil {
		return storeErr("delete", collection, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, collection string) ([]Document, error) {
	return s.Query(ctx, Query{Collection: collection})
}

func (s *PostgresStore) Query(ctx context.Context, q Query) ([]Document, error) {
	q = q.normalized()
	if err := q.validate(); err != nil {
		return nil, err
	}
	sql, args := buildPostgresQuery(q)
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, storeErr("query", q.Collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, storeErr("query", q.Collection, err)
		}
		data, err := decodeObject(payload)
		if err != nil {
			return nil, storeErr("query", q.Collection, fmt.Errorf("document %s: %w", id, err))
		}
		docs = append(docs, Document{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("query", q.Collection, err)
	}
	return docs, nil
}

// buildPostgresQuery orders by the jsonb field with missing values first in
// ascending order, matching the other backends, then by id.
func buildPostgresQuery(q Query) (string, []any) {
	var b strings.Builder
	args := []any{q.Collection}
	b.WriteString("SELECT id, data FROM documents WHERE collection = $1 ORDER BY ")
	if q.OrderBy != "" {
		args = append(args, q.OrderBy)
		if q.Direction == Descending {
			b.WriteString("data->$2 DESC NULLS LAST, id")
		} else {
			b.WriteString("data->$2 ASC NULLS FIRST, id")
		}
	} else {
		b.WriteString("id")
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

func (s *PostgresStore) BatchDelete(ctx context.Context, collection string, ids []string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = ANY($2)`, collection, ids); err != nil {
		return storeErr("batch_delete", collection, err)
	}
	return nil
}

func (s *PostgresStore) Subscribe(ctx context.Context, q Query, h Handler) (Subscription, error) {
	q = q.normalized()
	if err := q.validate(); err != nil {
		return nil, err
	}
	cfg := watchConfig{backend: s.Name(), pollInterval: s.pollInterval, logger: s.logger}
	if s.listenPool != nil {
		cfg.feed = s.feed
	}
	return startSubscription(ctx, cfg, q, func(ctx context.Context) ([]Document, error) {
		return s.Query(ctx, q)
	}, h)
}

// feed takes a connection out of the pool for LISTEN. The connection is
// hijacked and closed afterwards so it never returns to the pool still
// listening.
func (s *PostgresStore) feed(ctx context.Context, collection string) (<-chan struct{}, error) {
	pooled, err := s.listenPool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("docstore: acquire listen conn: %w", err)
	}
	conn := pooled.Hijack()
	if _, err := conn.Exec(ctx, "LISTEN "+postgresChangeChannel); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("docstore: listen: %w", err)
	}

	out, notify := signalChan()
	go func() {
		defer close(out)
		defer conn.Close(context.Background())
		for {
			n, err := conn.WaitForNotification(ctx)
			if err != nil {
				if !isContextErr(err) {
					s.logger.Warn("docstore: postgres listener stopped", "collection", collection, "error", err)
				}
				return
			}
			if n.Payload == collection {
				notify()
			}
		}
	}()
	return out, nil
}
