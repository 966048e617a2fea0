package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/wolfman30/healsmart/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/healsmart/internal/http/middleware"
	"github.com/wolfman30/healsmart/internal/liveview"
	"github.com/wolfman30/healsmart/internal/observability/metrics"
	"github.com/wolfman30/healsmart/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger    *logging.Logger
	Cart      *handlers.CartHandler
	Forms     *handlers.FormsHandler
	Chat      *handlers.ChatHandler
	Dashboard *handlers.DashboardHandler
	Feeds     *liveview.FeedHandler

	UserJWTSecret      string
	CORSAllowedOrigins []string
	// RateLimiter throttles write endpoints per user or client IP. Optional.
	RateLimiter *httpmiddleware.RateLimiter

	MetricsHandler http.Handler
	// Gatherer backs /api/stats. Defaults to the Prometheus default gatherer.
	Gatherer prometheus.Gatherer
	// DocstoreBackend is reported by /health.
	DocstoreBackend string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.DocstoreBackend))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		public.Get("/api/stats", statsHandler(cfg.Gatherer))
		if cfg.Feeds != nil {
			public.Get("/ws/feeds/{feed}", cfg.Feeds.ServeFeed)
		}
		if cfg.Forms != nil {
			public.Get("/api/doctors", cfg.Forms.ListDoctors)
		}
	})

	// API routes; identity is optional here and enforced per operation.
	r.Group(func(api chi.Router) {
		api.Use(httpmiddleware.UserJWT(cfg.UserJWTSecret))
		writes := api.With()
		if cfg.RateLimiter != nil {
			writes = api.With(httpmiddleware.RateLimit(cfg.RateLimiter))
		}

		if cfg.Cart != nil {
			api.Get("/api/cart", cfg.Cart.GetCart)
			writes.Post("/api/cart/items", cfg.Cart.AddItem)
			writes.Delete("/api/cart/items/{id}", cfg.Cart.RemoveItem)
			writes.Post("/api/cart/checkout", cfg.Cart.Checkout)
		}
		if cfg.Forms != nil {
			writes.Post("/api/forms/query", cfg.Forms.SubmitQuery)
			writes.Post("/api/forms/contact", cfg.Forms.SubmitContact)
			writes.Post("/api/appointments", cfg.Forms.BookAppointment)
		}
		if cfg.Chat != nil {
			writes.Post("/api/chat/messages", cfg.Chat.SendMessage)
			writes.Delete("/api/chat", cfg.Chat.Clear)
		}
		if cfg.Dashboard != nil {
			writes.Post("/api/user-data", cfg.Dashboard.UpdateUserData)
		}
	})

	return r
}

func healthHandler(backend string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]string{"status": "ok"}
		if backend != "" {
			resp["docstore"] = backend
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func statsHandler(gatherer prometheus.Gatherer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counters := metrics.Summarize(gatherer)
		if counters == nil {
			counters = []metrics.CounterTotal{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"counters": counters})
	}
}
