/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     logrus request logging, level by status class
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Prometheus request counters (optional)
  5. CORS:       Cross-origin requests

ROUTE GROUPS:
  /api/stock-items/*     Stock items, adjustments, history, returns
  /api/adjustments/*     Adjustment reversal
  /api/accounts/*        Customers and suppliers
  /api/returns/*         Return operations
  /api/receipts/*        Receipts
  /api/delivery-notes/*  Delivery notes and reservations
  /healthz               Store health
  /metrics               Prometheus scrape endpoint

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/M7sN2/AsilSys-sub001/metrics"
)

// RouterOptions configures the optional parts of the router.
type RouterOptions struct {
	CORSOrigins []string
	Metrics     *metrics.Metrics
	Logger      logrus.FieldLogger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	logger := opts.Logger
	if logger == nil {
		logger = h.log
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
	}))

	r.Get("/healthz", h.Health)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		// Stock routes
		r.Route("/stock-items", func(r chi.Router) {
			r.Get("/", h.ListStockItems)
			r.Post("/", h.CreateStockItem)
			r.Get("/{id}", h.GetStockItem)
			r.Get("/{id}/adjustments", h.ListAdjustments)
			r.Post("/{id}/adjustments", h.ApplyAdjustment)
			r.Get("/{id}/history", h.GetHistory)
			r.Get("/{id}/returns", h.ListReturns)
		})
		r.Delete("/adjustments/{id}", h.ReverseAdjustment)

		// Account routes
		r.Route("/accounts/{kind}", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.CreateAccount)
			r.Get("/{id}", h.GetAccount)
			r.Get("/{id}/receipts", h.ListReceipts)
		})

		// Return and receipt routes
		r.Post("/returns", h.CreateReturn)
		r.Delete("/returns/{id}", h.DeleteReturn)
		r.Post("/receipts", h.CreateReceipt)
		r.Delete("/receipts/{id}", h.DeleteReceipt)

		// Delivery note routes
		r.Route("/delivery-notes", func(r chi.Router) {
			r.Get("/", h.ListNotes)
			r.Post("/", h.CreateNote)
			r.Get("/{id}", h.GetNote)
			r.Delete("/{id}", h.DeleteNote)
			r.Post("/{id}/status", h.TransitionNote)
			r.Put("/{id}/items/{ref}", h.UpsertNoteItem)
			r.Delete("/{id}/items/{ref}", h.DeleteNoteItem)
			r.Post("/{id}/items/{ref}/consume", h.ConsumeNoteItem)
		})
	})

	return r
}

// RequestLogger logs one entry per request, at Warn for 4xx and Error for 5xx.
func RequestLogger(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := logger.WithFields(logrus.Fields{
				"request_id":    middleware.GetReqID(r.Context()),
				"method":        r.Method,
				"path":          r.URL.Path,
				"status_code":   status,
				"latency":       time.Since(start),
				"client_ip":     r.RemoteAddr,
				"response_size": ww.BytesWritten(),
			})

			switch {
			case status >= 500:
				entry.Error("HTTP request completed with server error")
			case status >= 400:
				entry.Warn("HTTP request completed with client error")
			default:
				entry.Info("HTTP request completed successfully")
			}
		})
	}
}
