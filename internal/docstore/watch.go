package docstore

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wolfman30/healsmart/pkg/logging"
)

const defaultPollInterval = 2 * time.Second

// changeFeed opens a stream of change signals for one collection. The feed
// must be live when it returns so no write between opening and the initial
// read is missed. The channel is closed when the feed ends.
type changeFeed func(ctx context.Context, collection string) (<-chan struct{}, error)

type fetchFunc func(ctx context.Context) ([]Document, error)

type watchConfig struct {
	backend      string
	feed         changeFeed
	pollInterval time.Duration
	logger       *logging.Logger
}

// subscription re-reads its query after every coalesced change signal and
// hands the complete result to the handler. When the backend has no feed, or
// the feed fails, it polls and delivers only when the result changed.
type subscription struct {
	cfg     watchConfig
	query   Query
	fetch   fetchFunc
	handler Handler

	cancel context.CancelFunc
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
	// runner is the id of the goroutine that calls the handler.
	runner atomic.Uint64

	lastPrint uint64
	havePrint bool
}

func startSubscription(ctx context.Context, cfg watchConfig, q Query, fetch fetchFunc, h Handler) (*subscription, error) {
	if h == nil {
		return nil, invalidf("subscription handler is nil")
	}
	if cfg.logger == nil {
		cfg.logger = logging.Default()
	}
	if cfg.pollInterval <= 0 {
		cfg.pollInterval = defaultPollInterval
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &subscription{
		cfg:     cfg,
		query:   q,
		fetch:   fetch,
		handler: h,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	var signals <-chan struct{}
	if cfg.feed != nil {
		ch, err := cfg.feed(subCtx, q.Collection)
		if err != nil {
			cfg.logger.Warn("docstore: change feed unavailable, polling instead",
				"backend", cfg.backend, "collection", q.Collection, "error", err)
		} else {
			signals = ch
		}
	}

	go s.run(subCtx, signals)
	return s, nil
}

func (s *subscription) run(ctx context.Context, signals <-chan struct{}) {
	s.runner.Store(goroutineID())
	defer close(s.done)

	var ticker *time.Ticker
	var tick <-chan time.Time
	startPolling := func() {
		if ticker == nil {
			ticker = time.NewTicker(s.cfg.pollInterval)
			tick = ticker.C
		}
	}
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()
	if signals == nil {
		startPolling()
	}

	s.deliver(ctx, false)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-signals:
			if !ok {
				signals = nil
				if ctx.Err() == nil {
					s.cfg.logger.Warn("docstore: change feed closed, polling instead",
						"backend", s.cfg.backend, "collection", s.query.Collection)
					startPolling()
				}
				continue
			}
			s.deliver(ctx, true)
		case <-tick:
			s.deliver(ctx, true)
		}
	}
}

// deliver fetches the query and hands the result to the handler unless the
// subscription has been closed. When skipSame is set an unchanged result is
// dropped.
func (s *subscription) deliver(ctx context.Context, skipSame bool) {
	docs, err := s.fetch(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.havePrint = false
		s.invoke(nil, err)
		return
	}

	sum := fingerprint(docs)
	if skipSame && s.havePrint && sum == s.lastPrint {
		return
	}
	s.lastPrint, s.havePrint = sum, true
	if docs == nil {
		docs = []Document{}
	}
	s.invoke(Snapshot(docs), nil)
}

func (s *subscription) invoke(snap Snapshot, err error) {
	if s.closed.Load() {
		return
	}
	s.handler(snap, err)
}

// Unsubscribe stops the subscription. Called from any goroutine other than
// the handler's, it waits for an in-flight delivery to return. Called from
// inside the handler it only marks the subscription closed.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
	})
	if s.runner.Load() == goroutineID() {
		return
	}
	<-s.done
}

// goroutineID parses the current goroutine's id from its stack header
// ("goroutine 42 [running]:").
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(field, ' '); i >= 0 {
		field = field[:i]
	}
	id, _ := strconv.ParseUint(string(field), 10, 64)
	return id
}

// isContextErr reports whether err came from cancellation rather than the
// backend.
func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// signalChan returns a coalescing signal channel and its non-blocking sender.
func signalChan() (chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	return ch, func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
