package forms

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/healsmart/internal/docstore"
	"github.com/wolfman30/healsmart/pkg/logging"
)

type failingStore struct{ *docstore.MemoryStore }

func (failingStore) Create(_ context.Context, collection string, _ map[string]any) (string, error) {
	return "", &docstore.StoreError{Op: "create", Collection: collection, Err: errors.New("permission denied")}
}

func newPipeline(store docstore.Store) *Pipeline {
	p := NewPipeline(store, nil, logging.NewWithFormat("error", "json", io.Discard))
	p.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return p
}

func TestSubmitAppendsRecord(t *testing.T) {
	tests := []struct {
		name       string
		form       Form
		collection string
		want       map[string]any
	}{
		{
			name:       "query",
			form:       Form{Kind: KindQuery, Values: map[string]string{"query": "  Do you deliver?  "}},
			collection: "queries",
			want:       map[string]any{"query": "Do you deliver?", "status": "pending"},
		},
		{
			name: "contact",
			form: Form{Kind: KindContact, Values: map[string]string{
				"name": "Asha", "email": "asha@example.com", "message": "Hi",
			}},
			collection: "contacts",
			want:       map[string]any{"name": "Asha", "email": "asha@example.com", "message": "Hi", "status": "unread"},
		},
		{
			name: "appointment drops unknown fields",
			form: Form{Kind: KindAppointment, Values: map[string]string{
				"doctor": "Dr. Balbir Singh", "name": "Ravi", "email": "ravi@example.com", "date": "2026-11-02", "extra": "x",
			}},
			collection: "appointments",
			want: map[string]any{
				"doctor": "Dr. Balbir Singh", "name": "Ravi", "email": "ravi@example.com", "date": "2026-11-02", "status": "booked",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := docstore.NewMemoryStore(logging.NewWithFormat("error", "json", io.Discard))
			form := tt.form

			id, err := newPipeline(store).Submit(ctx, &form)
			require.NoError(t, err)
			assert.NotEmpty(t, id)
			assert.Empty(t, form.Values, "values are cleared after success")

			docs, err := store.List(ctx, tt.collection)
			require.NoError(t, err)
			require.Len(t, docs, 1)
			assert.Equal(t, id, docs[0].ID)
			want := tt.want
			want["timestamp"] = float64(1_700_000_000_000)
			assert.Equal(t, want, docs[0].Data)
		})
	}
}

func TestSubmitMissingFields(t *testing.T) {
	store := docstore.NewMemoryStore(logging.NewWithFormat("error", "json", io.Discard))
	form := Form{Kind: KindContact, Values: map[string]string{"name": "  ", "message": "Hi"}}

	_, err := newPipeline(store).Submit(context.Background(), &form)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"name", "email"}, verr.Missing)
	assert.Contains(t, err.Error(), "name, email")
	assert.Equal(t, map[string]string{"name": "  ", "message": "Hi"}, form.Values)

	docs, err := store.List(context.Background(), "contacts")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestSubmitInvalidEmail(t *testing.T) {
	store := docstore.NewMemoryStore(logging.NewWithFormat("error", "json", io.Discard))
	for _, email := range []string{"not-an-email", "Asha <asha@example.com>"} {
		form := Form{Kind: KindContact, Values: map[string]string{"name": "Asha", "email": email, "message": "Hi"}}
		_, err := newPipeline(store).Submit(context.Background(), &form)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, email)
		assert.Equal(t, []string{"email"}, verr.Invalid)
		assert.Empty(t, verr.Missing)
	}
}

func TestSubmitStoreFailureKeepsValues(t *testing.T) {
	store := failingStore{docstore.NewMemoryStore(logging.NewWithFormat("error", "json", io.Discard))}
	form := Form{Kind: KindQuery, Values: map[string]string{"query": "hello"}}

	_, err := newPipeline(store).Submit(context.Background(), &form)
	var se *docstore.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "hello", form.Values["query"])
}

func TestSubmitUnknownKind(t *testing.T) {
	store := docstore.NewMemoryStore(logging.NewWithFormat("error", "json", io.Discard))
	_, err := newPipeline(store).Submit(context.Background(), &Form{Kind: "survey"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestCollection(t *testing.T) {
	c, ok := Collection(KindAppointment)
	assert.True(t, ok)
	assert.Equal(t, "appointments", c)
	_, ok = Collection("nope")
	assert.False(t, ok)
}
