package bootstrap

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/healsmart/internal/config"
	"github.com/wolfman30/healsmart/internal/docstore"
	"github.com/wolfman30/healsmart/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.NewWithFormat("error", "json", io.Discard)
}

func memoryConfig() *appconfig.Config {
	return &appconfig.Config{
		DocstoreBackend:    BackendMemory,
		NotifyProvider:     ProviderStub,
		UseMemoryQueue:     true,
		ChatReplyDelay:     time.Hour,
		CORSAllowedOrigins: []string{"*"},
		UserJWTSecret:      "test-secret",
	}
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), Options{})
	require.Error(t, err)
}

func TestNewServesHealthWithBackendName(t *testing.T) {
	app, err := New(context.Background(), Options{Config: memoryConfig(), Logger: testLogger()})
	require.NoError(t, err)
	defer app.Close()

	rec := httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "memory", body["docstore"])
	assert.ElementsMatch(t, []string{"appointments", "chats", "healthTips", "notifications"}, app.Feeds.Names())
}

func TestQuerySubmissionReachesStore(t *testing.T) {
	app, err := New(context.Background(), Options{Config: memoryConfig(), Logger: testLogger()})
	require.NoError(t, err)
	defer app.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/forms/query", strings.NewReader(`{"query":"Do you open on Sundays?"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	docs, err := app.Store.Query(context.Background(), docstore.Query{Collection: "queries"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Do you open on Sundays?", docs[0].Data["query"])
	assert.Equal(t, "pending", docs[0].Data["status"])
}

func TestBookingQueuesConfirmationEmail(t *testing.T) {
	app, err := New(context.Background(), Options{Config: memoryConfig(), Logger: testLogger()})
	require.NoError(t, err)
	defer app.Close()

	body := `{"doctor":"Naresh","name":"Asha","email":"asha@example.com","date":"2026-11-02"}`
	req := httptest.NewRequest(http.MethodPost, "/api/appointments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	queued, err := testutil.GatherAndCount(app.Registry, "healsmart_notify_emails_total")
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	docs, err := app.Store.Query(context.Background(), docstore.Query{Collection: "appointments"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "booked", docs[0].Data["status"])
}

func TestNewWithRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.DocstoreBackend = BackendRedis
	cfg.RedisAddr = mr.Addr()

	app, err := New(context.Background(), Options{Config: cfg, Logger: testLogger()})
	require.NoError(t, err)
	defer app.Close()

	id, err := app.Dashboard.AddHealthTip(context.Background(), "💧", "Drink water")
	require.NoError(t, err)
	doc, err := app.Store.Get(context.Background(), "healthTips", id)
	require.NoError(t, err)
	assert.Equal(t, "Drink water", doc.Data["text"])
}

func TestNewFailsOnUnknownBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.DocstoreBackend = "cassandra"
	_, err := New(context.Background(), Options{Config: cfg, Logger: testLogger()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown docstore backend")
}
