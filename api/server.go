/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. zap logger: Structured request logging
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/flats/*       Flat management, statements, outstanding
  /api/config        Society rate table
  /api/bills/*       Generation and settlement views
  /api/payments/*    Recording, receipts, review queue
  /api/admin/*       Migration operations
  /api/scenarios/*   Demo data loaders (development only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Flat routes
		r.Route("/flats", func(r chi.Router) {
			r.Get("/", h.ListFlats)
			r.Post("/", h.CreateFlat)
			r.Get("/{flatNumber}", h.GetFlat)
			r.Put("/{flatNumber}", h.UpdateFlat)
			r.Get("/{flatNumber}/outstanding", h.GetOutstanding)
			r.Get("/{flatNumber}/statement", h.GetFlatStatement)
			r.Get("/{flatNumber}/bills", h.ListFlatBills)
			r.Get("/{flatNumber}/payments", h.ListFlatPayments)
		})

		// Configuration routes
		r.Route("/config", func(r chi.Router) {
			r.Get("/", h.GetConfig)
			r.Put("/", h.SaveConfig)
		})

		// Bill routes
		r.Route("/bills", func(r chi.Router) {
			r.Get("/", h.ListBills)
			r.Post("/generate", h.GenerateBill)
			r.Post("/run", h.BillRun)
			r.Get("/{id}", h.GetBill)
			r.Get("/{id}/statement", h.GetBillStatement)
		})

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.RecordPayment)
			r.Get("/unmatched", h.ListUnmatchedPayments)
			r.Get("/{id}", h.GetReceipt)
			r.Put("/{id}", h.ReplacePayment)
			r.Delete("/{id}", h.DeletePayment)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/backfill", h.Backfill)
		})

		// Demo scenario routes (development only)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// requestLogger logs each request with its status and duration.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
