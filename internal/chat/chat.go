// Package chat stores the symptom-chat transcript and schedules the bot's
// replies.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/healsmart/internal/docstore"
	"github.com/wolfman30/healsmart/internal/liveview"
	"github.com/wolfman30/healsmart/internal/observability/metrics"
	"github.com/wolfman30/healsmart/internal/responder"
	"github.com/wolfman30/healsmart/pkg/logging"
)

const (
	collection = "chats"

	// Greeting is shown after the transcript is cleared.
	Greeting = "Hello! I'm your AI doctor. How can I help you today?"

	replyWriteTimeout = 10 * time.Second
)

var (
	// ErrEmptyMessage is returned for a message that is blank after trimming.
	ErrEmptyMessage = errors.New("chat: empty message")
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("chat: service closed")
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is one transcript entry. Timestamp is unix milliseconds.
type Message struct {
	Text      string `json:"text"`
	Sender    Sender `json:"sender"`
	Timestamp int64  `json:"timestamp"`
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.Text) == "" {
		return ErrEmptyMessage
	}
	if m.Sender != SenderUser && m.Sender != SenderBot {
		return fmt.Errorf("chat: unknown sender %q", m.Sender)
	}
	return nil
}

type pendingReply struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Service appends user messages and, after a delay, the bot's reply.
type Service struct {
	store    docstore.Store
	respond  func(string) string
	delay    time.Duration
	archiver *Archiver
	metrics  *metrics.StorefrontMetrics
	logger   *logging.Logger
	now      func() time.Time

	// clearing is held shared by Send and exclusively by Clear, so a message
	// and its scheduled reply land either wholly before a clear or wholly
	// after it.
	clearing sync.RWMutex

	mu      sync.Mutex
	closed  bool
	nextID  uint64
	pending map[uint64]*pendingReply
}

// Options configures a Service. Archiver may be nil to clear without
// archiving.
type Options struct {
	ReplyDelay time.Duration
	Archiver   *Archiver
	Metrics    *metrics.StorefrontMetrics
	Logger     *logging.Logger
}

func NewService(store docstore.Store, opts Options) *Service {
	if store == nil {
		panic("chat: store cannot be nil")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.ReplyDelay < 0 {
		opts.ReplyDelay = 0
	}
	return &Service{
		store:    store,
		respond:  responder.Respond,
		delay:    opts.ReplyDelay,
		archiver: opts.Archiver,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      time.Now,
		pending:  make(map[uint64]*pendingReply),
	}
}

// Send appends the user's message and schedules the bot reply. Dictated input
// goes through the same path.
func (s *Service) Send(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	s.clearing.RLock()
	defer s.clearing.RUnlock()
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return "", ErrClosed
	}

	id, err := s.append(ctx, Message{Text: text, Sender: SenderUser, Timestamp: s.now().UnixMilli()})
	if err != nil {
		return "", err
	}
	if err := s.scheduleReply(text); err != nil {
		return id, err
	}
	return id, nil
}

func (s *Service) append(ctx context.Context, msg Message) (string, error) {
	data, err := docstore.Encode(msg)
	if err != nil {
		return "", err
	}
	id, err := s.store.Create(ctx, collection, data)
	if err != nil {
		return "", fmt.Errorf("chat: append %s message: %w", msg.Sender, err)
	}
	return id, nil
}

func (s *Service) scheduleReply(text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	ctx, cancel := context.WithCancel(context.Background())
	key := s.nextID
	s.nextID++
	p := &pendingReply{cancel: cancel, done: make(chan struct{})}
	s.pending[key] = p
	s.mu.Unlock()

	go func() {
		defer close(p.done)
		defer s.forget(key)
		defer cancel()

		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			s.metrics.ObserveChatReply("cancelled")
			return
		case <-timer.C:
		}

		writeCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), replyWriteTimeout)
		defer stop()
		reply := Message{Text: s.respond(text), Sender: SenderBot, Timestamp: s.now().UnixMilli()}
		if _, err := s.append(writeCtx, reply); err != nil {
			s.metrics.ObserveChatReply("error")
			s.logger.Error("chat: bot reply failed", "error", err)
			return
		}
		s.metrics.ObserveChatReply("ok")
	}()
	return nil
}

func (s *Service) forget(key uint64) {
	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()
}

// cancelPending cancels every scheduled reply and waits for them to finish. A
// reply whose write already started is allowed to complete.
func (s *Service) cancelPending() {
	s.mu.Lock()
	replies := make([]*pendingReply, 0, len(s.pending))
	for _, p := range s.pending {
		replies = append(replies, p)
	}
	s.mu.Unlock()

	for _, p := range replies {
		p.cancel()
	}
	for _, p := range replies {
		<-p.done
	}
}

// Pending reports scheduled replies that have not finished.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close cancels pending replies and waits for them. Send fails afterwards.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancelPending()
}

// Clear archives the transcript when an archiver is configured, deletes it,
// and returns the greeting. Sends wait until the clear is done, and pending
// replies are cancelled first so none lands in the cleared transcript.
func (s *Service) Clear(ctx context.Context) (string, error) {
	s.clearing.Lock()
	defer s.clearing.Unlock()
	s.cancelPending()

	docs, err := s.store.Query(ctx, docstore.Query{Collection: collection, OrderBy: "timestamp", Direction: docstore.Ascending})
	if err != nil {
		return "", fmt.Errorf("chat: read transcript: %w", err)
	}
	if len(docs) == 0 {
		return Greeting, nil
	}

	if s.archiver != nil {
		messages := make([]Message, 0, len(docs))
		for _, doc := range docs {
			var m Message
			if err := docstore.Decode(doc.Data, &m); err != nil {
				s.logger.Warn("chat: skipping undecodable message", "id", doc.ID, "error", err)
				continue
			}
			messages = append(messages, m)
		}
		if _, err := s.archiver.Archive(ctx, messages); err != nil {
			return "", err
		}
	}

	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	if err := s.store.BatchDelete(ctx, collection, ids); err != nil {
		return "", fmt.Errorf("chat: clear transcript: %w", err)
	}
	s.logger.Info("chat transcript cleared", "messages", len(ids))
	return Greeting, nil
}

// TranscriptFeed renders the chat oldest first.
func TranscriptFeed() liveview.Feed {
	return liveview.Feed{
		Name:        "chats",
		Query:       docstore.Query{Collection: collection, OrderBy: "timestamp", Direction: docstore.Ascending},
		EmptyText:   "🤖: " + Greeting,
		FailureText: "Error loading chat. Please try again.",
		Format:      formatMessage,
	}
}

func formatMessage(doc docstore.Document) liveview.Item {
	text, _ := doc.Data["text"].(string)
	sender, _ := doc.Data["sender"].(string)
	icon := "🤖"
	if Sender(sender) == SenderUser {
		icon = "👤"
	} else {
		sender = string(SenderBot)
	}
	return liveview.Item{ID: doc.ID, Text: icon + ": " + text, Kind: sender}
}
