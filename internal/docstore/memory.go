package docstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfman30/healsmart/pkg/logging"
)

// MemoryStore is an in-process Backend. Ties in ordered queries keep
// insertion order.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
	listeners   map[string]map[*memListener]struct{}
	newID       func() string
	logger      *logging.Logger
}

type memCollection struct {
	order []string
	docs  map[string]map[string]any
}

type memListener struct {
	notify func()
}

var _ Backend = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *logging.Logger) *MemoryStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &MemoryStore{
		collections: make(map[string]*memCollection),
		listeners:   make(map[string]map[*memListener]struct{}),
		newID:       uuid.NewString,
		logger:      logger,
	}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := s.newID()
	if err := s.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
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
	if err := ctx.Err(); err != nil {
		return storeErr("set", collection, err)
	}

	s.mu.Lock()
	c := s.collection(collection)
	if _, exists := c.docs[id]; !exists {
		c.order = append(c.order, id)
	}
	c.docs[id] = doc
	s.mu.Unlock()

	s.broadcast(collection)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := validateCollection(collection); err != nil {
		return Document{}, err
	}
	if err := ctx.Err(); err != nil {
		return Document{}, storeErr("get", collection, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[collection]
	if !ok {
		return Document{}, ErrNotFound
	}
	data, ok := c.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Data: cloneMap(data)}, nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	return s.BatchDelete(ctx, collection, []string{id})
}

func (s *MemoryStore) List(ctx context.Context, collection string) ([]Document, error) {
	return s.Query(ctx, Query{Collection: collection})
}

func (s *MemoryStore) Query(ctx context.Context, q Query) ([]Document, error) {
	q = q.normalized()
	if err := q.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, storeErr("query", q.Collection, err)
	}

	s.mu.RLock()
	var docs []Document
	if c, ok := s.collections[q.Collection]; ok {
		docs = make([]Document, 0, len(c.order))
		for _, id := range c.order {
			docs = append(docs, Document{ID: id, Data: cloneMap(c.docs[id])})
		}
	}
	s.mu.RUnlock()

	return sortDocuments(docs, q), nil
}

// BatchDelete removes every listed id; missing ids are ignored.
func (s *MemoryStore) BatchDelete(ctx context.Context, collection string, ids []string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return storeErr("batch_delete", collection, err)
	}

	removed := false
	s.mu.Lock()
	if c, ok := s.collections[collection]; ok {
		drop := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			if _, exists := c.docs[id]; exists {
				drop[id] = struct{}{}
				delete(c.docs, id)
			}
		}
		if len(drop) > 0 {
			removed = true
			kept := c.order[:0]
			for _, id := range c.order {
				if _, gone := drop[id]; !gone {
					kept = append(kept, id)
				}
			}
			c.order = kept
		}
	}
	s.mu.Unlock()

	if removed {
		s.broadcast(collection)
	}
	return nil
}

// Subscribe implements Watcher with in-process push notifications.
func (s *MemoryStore) Subscribe(ctx context.Context, q Query, h Handler) (Subscription, error) {
	q = q.normalized()
	if err := q.validate(); err != nil {
		return nil, err
	}
	cfg := watchConfig{backend: s.Name(), feed: s.feed, logger: s.logger}
	return startSubscription(ctx, cfg, q, func(ctx context.Context) ([]Document, error) {
		return s.Query(ctx, q)
	}, h)
}

func (s *MemoryStore) feed(ctx context.Context, collection string) (<-chan struct{}, error) {
	ch, notify := signalChan()
	l := &memListener{notify: notify}

	s.mu.Lock()
	set, ok := s.listeners[collection]
	if !ok {
		set = make(map[*memListener]struct{})
		s.listeners[collection] = set
	}
	set[l] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.listeners[collection], l)
		s.mu.Unlock()
	}()
	return ch, nil
}

func (s *MemoryStore) broadcast(collection string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for l := range s.listeners[collection] {
		l.notify()
	}
}

// collection returns the named collection, creating it. Caller holds s.mu.
func (s *MemoryStore) collection(name string) *memCollection {
	c, ok := s.collections[name]
	if !ok {
		c = &memCollection{docs: make(map[string]map[string]any)}
		s.collections[name] = c
	}
	return c
}
