package liveview

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/wolfman30/healsmart/internal/docstore"
	"github.com/wolfman30/healsmart/internal/observability/metrics"
	"github.com/wolfman30/healsmart/pkg/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxClientFrame = 512
)

// Message is what a feed socket sends: either a full view or a failure.
type Message struct {
	Type    string `json:"type"`
	View    *View  `json:"view,omitempty"`
	Message string `json:"message,omitempty"`
}

// SocketSink writes views to a WebSocket connection as JSON messages.
type SocketSink struct {
	conn   *websocket.Conn
	logger *logging.Logger

	mu     sync.Mutex
	closed bool
}

func NewSocketSink(conn *websocket.Conn, logger *logging.Logger) *SocketSink {
	if logger == nil {
		logger = logging.Default()
	}
	return &SocketSink{conn: conn, logger: logger}
}

func (s *SocketSink) Render(v View) {
	s.write(Message{Type: "view", View: &v})
}

func (s *SocketSink) Fail(message string) {
	s.write(Message{Type: "error", Message: message})
}

func (s *SocketSink) write(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(msg); err != nil {
		s.logger.Debug("liveview: socket write failed", "error", err)
		s.closed = true
	}
}

func (s *SocketSink) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return websocket.ErrCloseSent
	}
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// FeedHandler serves /ws/feeds/{feed}: each connection gets its own renderer
// that lives until the socket closes.
type FeedHandler struct {
	watcher  docstore.Watcher
	registry *Registry
	upgrader websocket.Upgrader
	metrics  *metrics.StorefrontMetrics
	logger   *logging.Logger
}

// NewFeedHandler builds the socket endpoint. checkOrigin may be nil to accept
// any origin.
func NewFeedHandler(watcher docstore.Watcher, registry *Registry, checkOrigin func(origin string) bool, m *metrics.StorefrontMetrics, logger *logging.Logger) *FeedHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &FeedHandler{
		watcher:  watcher,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || checkOrigin == nil {
					return true
				}
				return checkOrigin(origin)
			},
		},
		metrics: m,
		logger:  logger,
	}
}

func (h *FeedHandler) ServeFeed(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "feed")
	feed, ok := h.registry.Lookup(name)
	if !ok {
		http.Error(w, "unknown feed", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("liveview: upgrade failed", "feed", name, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sink := NewSocketSink(conn, h.logger)
	renderer := NewRenderer(h.watcher, feed, sink, h.metrics, h.logger)
	if err := renderer.Start(ctx); err != nil {
		h.logger.Error("liveview: feed start failed", "feed", name, "error", err)
		sink.Fail(feed.FailureText)
		return
	}
	defer renderer.Stop()

	go h.keepAlive(ctx, sink)

	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("liveview: socket closed", "feed", name, "error", err)
			}
			return
		}
	}
}

func (h *FeedHandler) keepAlive(ctx context.Context, sink *SocketSink) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sink.ping(); err != nil {
				return
			}
		}
	}
}
