package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORSOriginMatching(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{"exact match", []string{"https://healsmart.example"}, "https://healsmart.example", "https://healsmart.example"},
		{"unknown origin", []string{"https://healsmart.example"}, "https://evil.example", ""},
		{"wildcard any", []string{"*"}, "https://random.example", "https://random.example"},
		{"subdomain wildcard", []string{"https://*.healsmart.example"}, "https://shop.healsmart.example", "https://shop.healsmart.example"},
		{"subdomain wildcard needs subdomain", []string{"https://*.healsmart.example"}, "https://.healsmart.example", ""},
		{"subdomain wildcard scheme mismatch", []string{"https://*.healsmart.example"}, "http://shop.healsmart.example", ""},
		{"no origin header", []string{"*"}, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := CORS(tt.allowed)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.True(t, called)
			assert.Equal(t, tt.want, rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.want != "" {
				assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
				assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Headers"))
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS([]string{"https://healsmart.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("preflight should not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/cart", nil)
	req.Header.Set("Origin", "https://healsmart.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodOptions, "/api/cart", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOriginAllowed(t *testing.T) {
	allowed := OriginAllowed([]string{"https://healsmart.example", "https://*.healsmart.app"})
	assert.True(t, allowed("https://healsmart.example"))
	assert.True(t, allowed(" https://shop.healsmart.app "))
	assert.False(t, allowed("https://healsmart.app"))
	assert.False(t, allowed("http://shop.healsmart.app"))
}
