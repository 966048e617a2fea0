package appointments

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/healsmart/internal/docstore"
	"github.com/wolfman30/healsmart/internal/forms"
	"github.com/wolfman30/healsmart/internal/notify"
	"github.com/wolfman30/healsmart/pkg/logging"
)

type recordingNotifier struct {
	mu     sync.Mutex
	emails []notify.TemplateEmail
}

func (n *recordingNotifier) Notify(_ context.Context, email notify.TemplateEmail) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emails = append(n.emails, email)
}

func setup(t *testing.T) (*Service, *docstore.MemoryStore, *recordingNotifier) {
	t.Helper()
	logger := logging.NewWithFormat("error", "json", io.Discard)
	store := docstore.NewMemoryStore(logger)
	n := &recordingNotifier{}
	svc := NewService(forms.NewPipeline(store, nil, logger), n,
		EmailConfig{ServiceID: "service_healsmart", TemplateID: "template_appointment"}, logger)
	return svc, store, n
}

func TestDoctorName(t *testing.T) {
	name, err := DoctorName("Pankaj")
	require.NoError(t, err)
	assert.Equal(t, "Dr. Pankaj Aneja", name)

	_, err = DoctorName("House")
	assert.ErrorIs(t, err, ErrUnknownDoctor)
	assert.Len(t, Doctors(), 4)
	assert.Equal(t, "Balbir", Doctors()[0].Key)
}

func TestBookStoresAndNotifies(t *testing.T) {
	svc, store, n := setup(t)
	ctx := context.Background()

	conf, err := svc.Book(ctx, Request{Doctor: "Naresh", Name: " Asha ", Email: "asha@example.com", Date: "2026-11-02"})
	require.NoError(t, err)
	assert.Equal(t, "Your appointment with Dr. Naresh Trehan has been booked!", conf.Message)

	doc, err := store.Get(ctx, "appointments", conf.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Naresh Trehan", doc.Data["doctor"])
	assert.Equal(t, "Asha", doc.Data["name"])
	assert.Equal(t, "booked", doc.Data["status"])

	require.Len(t, n.emails, 1)
	email := n.emails[0]
	assert.Equal(t, "service_healsmart", email.ServiceID)
	assert.Equal(t, "template_appointment", email.TemplateID)
	assert.Equal(t, "asha@example.com", email.To)
	assert.Equal(t, map[string]string{
		"user_name":        "Asha",
		"doctor_name":      "Dr. Naresh Trehan",
		"appointment_date": "2026-11-02",
		"to_email":         "asha@example.com",
	}, email.Params)
}

func TestBookRejectsUnknownDoctor(t *testing.T) {
	svc, store, n := setup(t)
	_, err := svc.Book(context.Background(), Request{Doctor: "Who", Name: "A", Email: "a@example.com", Date: "2026-11-02"})
	assert.ErrorIs(t, err, ErrUnknownDoctor)
	assert.Empty(t, n.emails)

	docs, err := store.List(context.Background(), "appointments")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestBookValidationSkipsEmail(t *testing.T) {
	svc, _, n := setup(t)
	_, err := svc.Book(context.Background(), Request{Doctor: "Rakesh", Name: "A"})
	var verr *forms.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ElementsMatch(t, []string{"email", "date"}, verr.Missing)
	assert.Empty(t, n.emails)
}

func TestHistoryFeedFormat(t *testing.T) {
	feed := HistoryFeed()
	assert.Equal(t, docstore.Descending, feed.Query.Direction)
	assert.Equal(t, "No past appointments found.", feed.EmptyText)

	item := feed.Format(docstore.Document{ID: "a1", Data: map[string]any{
		"doctor": "Dr. Balbir Singh", "name": "Ravi", "email": "ravi@example.com", "date": "2026-11-02",
	}})
	assert.Equal(t, "Dr. Balbir Singh | Name: Ravi | Email: ravi@example.com | Date: 2026-11-02", item.Text)
}
