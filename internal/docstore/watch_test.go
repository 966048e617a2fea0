package docstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/healsmart/pkg/logging"
)

type scriptedFetch struct {
	mu      sync.Mutex
	results [][]Document
	errs    []error
	calls   int
}

func (f *scriptedFetch) fetch(context.Context) ([]Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	return f.results[i], f.errs[i]
}

type delivery struct {
	snap Snapshot
	err  error
}

func TestPollingSkipsUnchangedSnapshots(t *testing.T) {
	same := []Document{{ID: "a", Data: map[string]any{"n": 1.0}}}
	changed := []Document{{ID: "a", Data: map[string]any{"n": 2.0}}}
	f := &scriptedFetch{
		results: [][]Document{same, same, same, changed},
		errs:    []error{nil, nil, nil, nil},
	}

	out := make(chan delivery, 10)
	cfg := watchConfig{backend: "test", pollInterval: 5 * time.Millisecond, logger: logging.Default()}
	sub, err := startSubscription(context.Background(), cfg, Query{Collection: "chats"}, f.fetch, func(s Snapshot, err error) {
		out <- delivery{s, err}
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	first := <-out
	assert.Equal(t, 1.0, first.snap[0].Data["n"])
	select {
	case second := <-out:
		assert.Equal(t, 2.0, second.snap[0].Data["n"], "unchanged polls are not delivered")
	case <-time.After(time.Second):
		t.Fatal("expected changed snapshot")
	}
}

func TestSubscriptionReportsErrorsAndRecovers(t *testing.T) {
	good := []Document{{ID: "a", Data: map[string]any{}}}
	boom := errors.New("permission denied")
	f := &scriptedFetch{
		results: [][]Document{good, nil, good},
		errs:    []error{nil, boom, nil},
	}

	out := make(chan delivery, 10)
	cfg := watchConfig{backend: "test", pollInterval: 5 * time.Millisecond}
	sub, err := startSubscription(context.Background(), cfg, Query{Collection: "chats"}, f.fetch, func(s Snapshot, err error) {
		out <- delivery{s, err}
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	assert.NoError(t, (<-out).err)
	failed := <-out
	assert.ErrorIs(t, failed.err, boom)
	assert.Nil(t, failed.snap)
	recovered := <-out
	assert.NoError(t, recovered.err, "the same result is redelivered after an error")
	assert.Len(t, recovered.snap, 1)
}

func TestFeedFailureFallsBackToPolling(t *testing.T) {
	f := &scriptedFetch{
		results: [][]Document{{}, {{ID: "new", Data: map[string]any{}}}},
		errs:    []error{nil, nil},
	}
	cfg := watchConfig{
		backend:      "test",
		pollInterval: 5 * time.Millisecond,
		feed: func(context.Context, string) (<-chan struct{}, error) {
			return nil, errors.New("change streams unsupported")
		},
	}

	out := make(chan delivery, 10)
	sub, err := startSubscription(context.Background(), cfg, Query{Collection: "chats"}, f.fetch, func(s Snapshot, err error) {
		out <- delivery{s, err}
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	assert.Empty(t, (<-out).snap)
	select {
	case d := <-out:
		assert.Len(t, d.snap, 1)
	case <-time.After(time.Second):
		t.Fatal("expected polling to pick up the change")
	}
}

func TestClosedFeedFallsBackToPolling(t *testing.T) {
	f := &scriptedFetch{
		results: [][]Document{{}, {{ID: "new", Data: map[string]any{}}}},
		errs:    []error{nil, nil},
	}
	feedCh := make(chan struct{})
	close(feedCh)
	cfg := watchConfig{
		backend:      "test",
		pollInterval: 5 * time.Millisecond,
		feed: func(context.Context, string) (<-chan struct{}, error) {
			return feedCh, nil
		},
	}

	out := make(chan delivery, 10)
	sub, err := startSubscription(context.Background(), cfg, Query{Collection: "chats"}, f.fetch, func(s Snapshot, err error) {
		out <- delivery{s, err}
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	<-out
	select {
	case d := <-out:
		assert.Len(t, d.snap, 1)
	case <-time.After(time.Second):
		t.Fatal("expected polling after the feed closed")
	}
}

func TestSignalChanCoalesces(t *testing.T) {
	ch, notify := signalChan()
	notify()
	notify()
	notify()
	assert.Len(t, ch, 1)
}
