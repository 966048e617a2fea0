package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/healsmart/internal/appointments"
	"github.com/wolfman30/healsmart/internal/cart"
	"github.com/wolfman30/healsmart/internal/chat"
	"github.com/wolfman30/healsmart/internal/dashboard"
	"github.com/wolfman30/healsmart/internal/docstore"
	"github.com/wolfman30/healsmart/internal/forms"
	"github.com/wolfman30/healsmart/internal/identity"
	"github.com/wolfman30/healsmart/internal/notify"
)

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, notify.TemplateEmail) {}

type fixture struct {
	store  *docstore.MemoryStore
	router chi.Router
}

// asUser stands in for the auth middleware: the X-Test-User header becomes the
// request identity.
func asUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Test-User"); id != "" {
			r = r.WithContext(identity.WithUserID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger := testLogger()
	store := docstore.NewMemoryStore(logger)
	pipeline := forms.NewPipeline(store, nil, logger)
	chatSvc := chat.NewService(store, chat.Options{ReplyDelay: time.Hour, Logger: logger})
	t.Cleanup(chatSvc.Close)

	cartH := NewCartHandler(cart.NewSessions(cart.NewService(store, nil, logger)), logger)
	formsH := NewFormsHandler(pipeline, appointments.NewService(pipeline, nopNotifier{}, appointments.EmailConfig{}, logger), logger)
	chatH := NewChatHandler(chatSvc, logger)
	dashH := NewDashboardHandler(dashboard.NewService(store, logger), logger)

	r := chi.NewRouter()
	r.Use(asUser)
	r.Get("/api/cart", cartH.GetCart)
	r.Post("/api/cart/items", cartH.AddItem)
	r.Delete("/api/cart/items/{id}", cartH.RemoveItem)
	r.Post("/api/cart/checkout", cartH.Checkout)
	r.Post("/api/forms/query", formsH.SubmitQuery)
	r.Post("/api/forms/contact", formsH.SubmitContact)
	r.Post("/api/appointments", formsH.BookAppointment)
	r.Get("/api/doctors", formsH.ListDoctors)
	r.Post("/api/chat/messages", chatH.SendMessage)
	r.Delete("/api/chat", chatH.Clear)
	r.Post("/api/user-data", dashH.UpdateUserData)
	return fixture{store: store, router: r}
}

func (f fixture) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestCartFlow(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/cart/items", "", `{"id":"med-1","name":"Paracetamol","price":2.5}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please sign in to add items to cart")

	rec = f.do(t, http.MethodGet, "/api/cart", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Your cart is empty.")

	rec = f.do(t, http.MethodPost, "/api/cart/checkout", "u1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.do(t, http.MethodPost, "/api/cart/items", "u1", `{"id":"med-1","name":"Paracetamol","price":2.5}`)
	f.do(t, http.MethodPost, "/api/cart/items", "u1", `{"id":"med-1","name":"Paracetamol","price":2.5}`)
	rec = f.do(t, http.MethodPost, "/api/cart/items", "u1", `{"id":"med-2","name":"Vitamin C","price":4}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var c cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, 3, c.Count)
	assert.InDelta(t, 9.0, c.Total, 1e-9)

	rec = f.do(t, http.MethodDelete, "/api/cart/items/med-2", "u1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, 2, c.Count)

	rec = f.do(t, http.MethodPost, "/api/cart/checkout", "u1", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var out checkoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.InDelta(t, 5.0, out.Total, 1e-9)
	assert.Contains(t, out.Message, out.OrderID)

	_, err := f.store.Get(context.Background(), "orders", out.OrderID)
	assert.NoError(t, err)
}

func TestAddItemRejectsBadBody(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/cart/items", "u1", `{"id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/cart/items", "u1", `{"name":"no id","price":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFormsEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/forms/query", "", `{"query":"Do you deliver?"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "Your query has been submitted successfully!")

	rec = f.do(t, http.MethodPost, "/api/forms/contact", "", `{"name":"Asha","email":"","message":"hi"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"missing":["email"]`)

	rec = f.do(t, http.MethodPost, "/api/appointments", "", `{"doctor":"Balbir","name":"Ravi","email":"ravi@example.com","date":"2026-11-02"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "Your appointment with Dr. Balbir Singh has been booked!")

	rec = f.do(t, http.MethodPost, "/api/appointments", "", `{"doctor":"Nobody","name":"Ravi","email":"ravi@example.com","date":"2026-11-02"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/doctors", "", "")
	assert.Contains(t, rec.Body.String(), "Dr. Naresh Trehan")
}

func TestChatEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/chat/messages", "", `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/chat/messages", "", `{"text":"I have a fever","dictated":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/chat", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), chat.Greeting)

	docs, err := f.store.List(context.Background(), "chats")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestUpdateUserData(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/user-data", "u1", `{"steps":8000}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))

	doc, err := f.store.Get(context.Background(), "userData", out["id"])
	require.NoError(t, err)
	assert.Equal(t, "u1", doc.Data["userId"])

	rec = f.do(t, http.MethodPost, "/api/user-data", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
