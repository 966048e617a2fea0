// Package docstore is the remote document store every storefront module
// persists to: per-document CRUD, ordered queries and live snapshots.
package docstore

import (
	"context"
	"strings"
)

// Direction orders query results.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// Document is one stored record. Data is JSON-shaped: numbers are float64,
// nested objects are map[string]any.
type Document struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// Snapshot is the full ordered result of a query at one point in time.
type Snapshot []Document

// Query selects a collection ordered by one top-level field. An empty
// OrderBy returns the collection in its natural order. Limit <= 0 means all.
type Query struct {
	Collection string
	OrderBy    string
	Direction  Direction
	Limit      int
}

// Store is the CRUD surface of the document store.
type Store interface {
	Create(ctx context.Context, collection string, data map[string]any) (string, error)
	Set(ctx context.Context, collection, id string, data map[string]any) error
	Get(ctx context.Context, collection, id string) (Document, error)
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection string) ([]Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	BatchDelete(ctx context.Context, collection string, ids []string) error
}

// Handler receives every snapshot of a subscription, or the error that
// prevented one. Handlers run serially on the subscription's goroutine.
type Handler func(Snapshot, error)

// Subscription is a live query. Unsubscribe is idempotent; once it returns no
// delivery is running and none will begin. It may be called from inside the
// handler, in which case it returns without waiting.
type Subscription interface {
	Unsubscribe()
}

// Watcher delivers the full ordered snapshot of a query immediately and again
// after every change to the collection.
type Watcher interface {
	Subscribe(ctx context.Context, q Query, h Handler) (Subscription, error)
}

// Backend is a complete document store implementation.
type Backend interface {
	Store
	Watcher
	Name() string
	Close() error
}

func (q Query) normalized() Query {
	q.Collection = strings.TrimSpace(q.Collection)
	q.OrderBy = strings.TrimSpace(q.OrderBy)
	if q.Direction != Descending {
		q.Direction = Ascending
	}
	if q.Limit < 0 {
		q.Limit = 0
	}
	return q
}

func (q Query) validate() error {
	if err := validateCollection(q.Collection); err != nil {
		return err
	}
	if q.OrderBy != "" && !validField(q.OrderBy) {
		return invalidf("order field %q", q.OrderBy)
	}
	return nil
}

func validateCollection(collection string) error {
	if collection == "" || strings.ContainsAny(collection, "/ \t\n") {
		return invalidf("collection %q", collection)
	}
	return nil
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" || strings.Contains(id, "/") {
		return invalidf("document id %q", id)
	}
	return nil
}

func validField(field string) bool {
	for _, r := range field {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return field != ""
}
