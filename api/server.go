/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, carried into the logs
  2. Logging:    zap request log (logging.Middleware)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    loan_http_requests_total by route pattern
  5. CORS:       Cross-origin requests for browser clients
  6. RateLimit:  Per-client token bucket, off when RPS <= 0

ROUTE GROUPS:
  /counsels, /terms, /applications, /judgments   Lifecycle
  /internal/applications/*                       Ledger (entries, balance, repayments)
  /scenarios/*                                   Demo data (dev only)
  /healthz, /metrics                             Operations

SEE ALSO:
  - handlers.go, ledger.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/loan-engine/logging"
	"github.com/warp/loan-engine/metrics"
)

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	Logger         *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logging.Middleware(log))
	r.Use(middleware.Recoverer)
	r.Use(instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
	if opts.RPS > 0 {
		r.Use(NewRateLimiter(opts.RPS, opts.Burst, log).Handler)
	}

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/counsels", func(r chi.Router) {
		r.Post("/", h.CreateCounsel)
		r.Get("/{counselID}", h.GetCounsel)
		r.Put("/{counselID}", h.UpdateCounsel)
		r.Delete("/{counselID}", h.DeleteCounsel)
	})

	r.Route("/terms", func(r chi.Router) {
		r.Post("/", h.CreateTerms)
		r.Get("/", h.ListTerms)
	})

	r.Route("/applications", func(r chi.Router) {
		r.Post("/", h.CreateApplication)
		r.Route("/{applicationID}", func(r chi.Router) {
			r.Get("/", h.GetApplication)
			r.Put("/", h.UpdateApplication)
			r.Delete("/", h.DeleteApplication)
			r.Post("/terms", h.AcceptTerms)
			r.Get("/terms", h.ListAcceptedTerms)
			r.Put("/contract", h.ContractApplication)
		})
	})

	r.Route("/judgments", func(r chi.Router) {
		r.Post("/", h.CreateJudgment)
		r.Get("/applications/{applicationID}", h.GetJudgmentByApplication)
		r.Route("/{judgmentID}", func(r chi.Router) {
			r.Get("/", h.GetJudgment)
			r.Put("/", h.UpdateJudgment)
			r.Delete("/", h.DeleteJudgment)
			r.Patch("/grants", h.GrantJudgment)
		})
	})

	r.Route("/internal/applications", func(r chi.Router) {
		r.Put("/entries/{entryID}", h.UpdateEntry)
		r.Delete("/entries/{entryID}", h.DeleteEntry)
		r.Put("/repayments/{repaymentID}", h.UpdateRepayment)
		r.Delete("/repayments/{repaymentID}", h.DeleteRepayment)

		r.Route("/{applicationID}", func(r chi.Router) {
			r.Post("/entries", h.CreateEntry)
			r.Get("/entries", h.ListEntries)
			r.Get("/entries/latest", h.GetEntry)
			r.Get("/balance", h.GetBalance)
			r.Post("/repayments", h.CreateRepayment)
			r.Get("/repayments", h.ListRepayments)
		})
	})

	r.Route("/scenarios", func(r chi.Router) {
		r.Get("/", h.ListScenarios)
		r.Get("/current", h.GetCurrentScenario)
		r.Post("/load", h.LoadScenario)
		r.Post("/reset", h.ResetDatabase)
	})

	return r
}
