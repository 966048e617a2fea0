// Package liveview keeps a rendered list in step with a live document store
// query. Every snapshot replaces the previous render as a whole.
package liveview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/healsmart/internal/docstore"
	"github.com/wolfman30/healsmart/internal/observability/metrics"
	"github.com/wolfman30/healsmart/pkg/logging"
)

// ErrStopped is returned by Start on a renderer that was already stopped.
var ErrStopped = errors.New("liveview: renderer stopped")

// Item is one rendered record.
type Item struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	// Kind lets clients style items (e.g. "user" or "bot" in the chat).
	Kind string `json:"kind,omitempty"`
	// Image is an optional image reference shown with the item.
	Image string `json:"image,omitempty"`
}

// View is the full rendered state of a feed.
type View struct {
	Feed       string `json:"feed"`
	Items      []Item `json:"items"`
	Empty      string `json:"empty,omitempty"`
	RenderedAt int64  `json:"renderedAt"`
}

// Formatter renders one record. It must be pure.
type Formatter func(docstore.Document) Item

// Feed describes a live list: what to query and how to render it.
type Feed struct {
	Name      string
	Query     docstore.Query
	Format    Formatter
	EmptyText string
	// FailureText is shown when a snapshot cannot be delivered.
	FailureText string
}

// Sink displays views. Render receives a complete view; Fail receives a
// user-facing message and must leave the last view in place.
type Sink interface {
	Render(View)
	Fail(message string)
}

// Map renders snapshot through format in delivery order.
func Map(snapshot docstore.Snapshot, format Formatter) []Item {
	items := make([]Item, 0, len(snapshot))
	for _, doc := range snapshot {
		items = append(items, format(doc))
	}
	return items
}

// Renderer binds one feed subscription to one sink.
type Renderer struct {
	watcher docstore.Watcher
	feed    Feed
	sink    Sink
	logger  *logging.Logger
	metrics *metrics.StorefrontMetrics
	now     func() time.Time

	mu      sync.Mutex
	sub     docstore.Subscription
	stopped bool
}

func NewRenderer(watcher docstore.Watcher, feed Feed, sink Sink, m *metrics.StorefrontMetrics, logger *logging.Logger) *Renderer {
	if watcher == nil || sink == nil || feed.Format == nil {
		panic("liveview: renderer needs a watcher, a sink and a formatter")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if feed.FailureText == "" {
		feed.FailureText = "Error loading " + feed.Name + ". Please try again."
	}
	return &Renderer{
		watcher: watcher,
		feed:    feed,
		sink:    sink,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Start subscribes to the feed. The first render happens asynchronously.
// Calling Start twice is a no-op.
func (r *Renderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	if r.sub != nil {
		return nil
	}
	sub, err := r.watcher.Subscribe(ctx, r.feed.Query, r.handle)
	if err != nil {
		return fmt.Errorf("liveview: subscribe %s: %w", r.feed.Name, err)
	}
	r.sub = sub
	r.logger.Debug("liveview: feed started", "feed", r.feed.Name)
	return nil
}

// Stop ends the subscription. It is idempotent and no render begins after it
// returns.
func (r *Renderer) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	r.logger.Debug("liveview: feed stopped", "feed", r.feed.Name)
}

func (r *Renderer) handle(snapshot docstore.Snapshot, err error) {
	if r.isStopped() {
		return
	}
	if err != nil {
		r.metrics.ObserveRender(r.feed.Name, "error")
		r.logger.Warn("liveview: snapshot failed", "feed", r.feed.Name, "error", err)
		r.sink.Fail(r.feed.FailureText)
		return
	}
	view := View{
		Feed:       r.feed.Name,
		Items:      Map(snapshot, r.feed.Format),
		RenderedAt: r.now().UnixMilli(),
	}
	if len(view.Items) == 0 {
		view.Empty = r.feed.EmptyText
	}
	if r.isStopped() {
		return
	}
	r.sink.Render(view)
	r.metrics.ObserveRender(r.feed.Name, "ok")
}

func (r *Renderer) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// Registry looks feeds up by name.
type Registry struct {
	feeds map[string]Feed
}

func NewRegistry(feeds ...Feed) *Registry {
	reg := &Registry{feeds: make(map[string]Feed, len(feeds))}
	for _, f := range feeds {
		reg.feeds[f.Name] = f
	}
	return reg
}

func (r *Registry) Lookup(name string) (Feed, bool) {
	f, ok := r.feeds[name]
	return f, ok
}

// Names lists registered feeds.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.feeds))
	for name := range r.feeds {
		names = append(names, name)
	}
	return names
}
