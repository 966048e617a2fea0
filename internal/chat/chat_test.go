package chat

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/healsmart/internal/docstore"
	"github.com/wolfman30/healsmart/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.NewWithFormat("error", "json", io.Discard)
}

func transcript(t *testing.T, store docstore.Store) []Message {
	t.Helper()
	docs, err := store.Query(context.Background(), docstore.Query{Collection: "chats", OrderBy: "timestamp"})
	require.NoError(t, err)
	out := make([]Message, 0, len(docs))
	for _, doc := range docs {
		var m Message
		require.NoError(t, docstore.Decode(doc.Data, &m))
		out = append(out, m)
	}
	return out
}

func TestSendAppendsUserMessageAndBotReply(t *testing.T) {
	store := docstore.NewMemoryStore(testLogger())
	svc := NewService(store, Options{ReplyDelay: 10 * time.Millisecond, Logger: testLogger()})
	defer svc.Close()

	id, err := svc.Send(context.Background(), "  I have a headache ")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := transcript(t, store)
	require.Len(t, msgs, 1)
	assert.Equal(t, "I have a headache", msgs[0].Text)
	assert.Equal(t, SenderUser, msgs[0].Sender)

	require.Eventually(t, func() bool { return len(transcript(t, store)) == 2 }, time.Second, 5*time.Millisecond)
	reply := transcript(t, store)[1]
	assert.Equal(t, SenderBot, reply.Sender)
	assert.Contains(t, reply.Text, "quiet dark room")
	assert.Zero(t, svc.Pending())
}

func TestSendIgnoresBlankInput(t *testing.T) {
	store := docstore.NewMemoryStore(testLogger())
	svc := NewService(store, Options{Logger: testLogger()})
	defer svc.Close()

	_, err := svc.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, transcript(t, store))
}

func TestCloseCancelsPendingReplies(t *testing.T) {
	store := docstore.NewMemoryStore(testLogger())
	svc := NewService(store, Options{ReplyDelay: time.Hour, Logger: testLogger()})

	_, err := svc.Send(context.Background(), "fever")
	require.NoError(t, err)
	_, err = svc.Send(context.Background(), "cold")
	require.NoError(t, err)
	assert.Equal(t, 2, svc.Pending())

	svc.Close()
	assert.Zero(t, svc.Pending())
	assert.Len(t, transcript(t, store), 2, "cancelled replies are never written")

	_, err = svc.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrClosed)
}

type fakeS3 struct {
	err  error
	keys []string
	body []string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.keys = append(f.keys, *in.Key)
	f.body = append(f.body, string(raw))
	return &s3.PutObjectOutput{}, nil
}

func TestClearDeletesTranscriptAndReturnsGreeting(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore(testLogger())
	svc := NewService(store, Options{ReplyDelay: time.Hour, Logger: testLogger()})
	defer svc.Close()

	_, err := svc.Send(ctx, "fever")
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "chats", "other", map[string]any{"text": "hi", "sender": "bot", "timestamp": 1}))

	greeting, err := svc.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, Greeting, greeting)
	assert.Empty(t, transcript(t, store))
	assert.Zero(t, svc.Pending(), "clear cancels scheduled replies")

	greeting, err = svc.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, Greeting, greeting)
}

// pausingStore blocks the first chat query until released.
type pausingStore struct {
	*docstore.MemoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *pausingStore) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.MemoryStore.Query(ctx, q)
}

func TestSendDuringClearLandsAfterIt(t *testing.T) {
	ctx := context.Background()
	store := &pausingStore{
		MemoryStore: docstore.NewMemoryStore(testLogger()),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	svc := NewService(store, Options{ReplyDelay: 10 * time.Millisecond, Logger: testLogger()})
	defer svc.Close()

	cleared := make(chan error, 1)
	go func() {
		_, err := svc.Clear(ctx)
		cleared <- err
	}()
	select {
	case <-store.entered:
	case <-time.After(time.Second):
		t.Fatal("clear never read the transcript")
	}

	sent := make(chan error, 1)
	go func() {
		_, err := svc.Send(ctx, "I have a headache")
		sent <- err
	}()
	select {
	case <-sent:
		t.Fatal("send completed while the clear was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	require.NoError(t, <-cleared)
	require.NoError(t, <-sent)

	require.Eventually(t, func() bool { return svc.Pending() == 0 }, time.Second, 5*time.Millisecond)
	msgs := transcript(t, store)
	require.Len(t, msgs, 2, "the message and its reply both follow the clear")
	assert.Equal(t, SenderUser, msgs[0].Sender)
	assert.Equal(t, "I have a headache", msgs[0].Text)
	assert.Equal(t, SenderBot, msgs[1].Sender)
}

func TestClearArchivesScrubbedTranscript(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore(testLogger())
	uploads := &fakeS3{}
	archiver := NewArchiver(uploads, "healsmart-archive", "chat-archive/", testLogger())
	archiver.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	svc := NewService(store, Options{ReplyDelay: time.Hour, Archiver: archiver, Logger: testLogger()})
	defer svc.Close()

	_, err := svc.Send(ctx, "email me at asha@example.com")
	require.NoError(t, err)

	_, err = svc.Clear(ctx)
	require.NoError(t, err)
	require.Len(t, uploads.keys, 1)
	assert.Equal(t, "chat-archive/2026/03/04/chat_20260304T050607.000Z.jsonl", uploads.keys[0])
	assert.Contains(t, uploads.body[0], "[EMAIL]")
	assert.NotContains(t, uploads.body[0], "asha@example.com")
}

func TestClearKeepsTranscriptWhenArchiveFails(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore(testLogger())
	archiver := NewArchiver(&fakeS3{err: errors.New("access denied")}, "bucket", "", testLogger())
	svc := NewService(store, Options{ReplyDelay: time.Hour, Archiver: archiver, Logger: testLogger()})
	defer svc.Close()

	_, err := svc.Send(ctx, "fever")
	require.NoError(t, err)
	_, err = svc.Clear(ctx)
	assert.ErrorContains(t, err, "access denied")
	assert.Len(t, transcript(t, store), 1)
}

func TestNewArchiverRequiresBucket(t *testing.T) {
	assert.Nil(t, NewArchiver(&fakeS3{}, "", "x", testLogger()))
	assert.Nil(t, NewArchiver(nil, "bucket", "x", testLogger()))
}

func TestScrubPII(t *testing.T) {
	out := ScrubPII("reach me: ravi@example.com or 555-123-4567")
	assert.Contains(t, out, "[EMAIL]")
	assert.Contains(t, out, "[PHONE]")
	assert.NotContains(t, out, "4567")
}

func TestTranscriptFeedFormat(t *testing.T) {
	feed := TranscriptFeed()
	assert.Equal(t, docstore.Ascending, feed.Query.Direction)

	user := feed.Format(docstore.Document{ID: "1", Data: map[string]any{"text": "hi", "sender": "user"}})
	bot := feed.Format(docstore.Document{ID: "2", Data: map[string]any{"text": "hello", "sender": "bot"}})
	assert.Equal(t, "👤: hi", user.Text)
	assert.Equal(t, "user", user.Kind)
	assert.Equal(t, "🤖: hello", bot.Text)
	assert.Equal(t, "bot", bot.Kind)
}
