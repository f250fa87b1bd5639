package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/iho/golend/internal/adapter/http/handler"
	"github.com/iho/golend/internal/adapter/http/middleware"
	"github.com/iho/golend/internal/domain"
	"github.com/iho/golend/internal/usecase"
)

// Observer receives HTTP, auth and rate limit metrics.
type Observer interface {
	middleware.HTTPObserver
	middleware.AuthObserver
	middleware.RateLimitObserver
}

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	LoanHandler   *handler.LoanHandler
	PoolHandler   *handler.PoolHandler
	AssetHandler  *handler.AssetHandler
	LedgerHandler *handler.LedgerHandler
	HealthHandler *handler.HealthHandler

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	// Authenticator verifies bearer tokens; nil means callers identify
	// themselves with X-Account-ID.
	Authenticator    middleware.Authenticator
	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	RateLimiter      *middleware.RateLimiter
	Observer         Observer
	Logger           zerolog.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestContext)
	r.Use(middleware.Recovery(cfg.Logger))
	if cfg.Observer != nil {
		r.Use(middleware.Metrics(cfg.Observer))
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	var authObserver middleware.AuthObserver
	if cfg.Observer != nil {
		authObserver = cfg.Observer
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(cfg.Authenticator, authObserver))
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Limit)
		}
		r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)

		// Idempotency middleware for mutating requests
		if cfg.IdempotencyStore != nil {
			r.Use(middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL, cfg.Logger).Wrap)
		}

		// Registry
		r.Route("/loans", func(r chi.Router) {
			r.Get("/", cfg.LoanHandler.List)
			r.With(middleware.RequireCaller).Post("/", cfg.LoanHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cfg.LoanHandler.Get)

				// Pool ledger
				r.Route("/pool", func(r chi.Router) {
					r.Get("/", cfg.PoolHandler.Get)
					r.Get("/lenders/{address}", cfg.PoolHandler.LenderInfo)
					r.Get("/lenders/{address}/claimable", cfg.PoolHandler.Claimable)
					r.Get("/reconciliation", cfg.LedgerHandler.ReconcilePool)

					r.Group(func(r chi.Router) {
						r.Use(middleware.RequireCaller)
						r.Post("/fund", cfg.PoolHandler.Fund)
						r.Post("/withdraw", cfg.PoolHandler.Withdraw)
						r.Post("/finalize", cfg.PoolHandler.Finalize)
						r.Post("/release", cfg.PoolHandler.Release)
						r.Post("/accept-payment", cfg.PoolHandler.AcceptPayment)
						r.Post("/claim", cfg.PoolHandler.Claim)
					})
				})
			})
		})
		r.Get("/requesters/{address}/loans", cfg.LoanHandler.ListByRequester)

		// Asset book
		r.Route("/assets", func(r chi.Router) {
			r.With(middleware.RequireRole(domain.RoleAdmin)).Post("/deposit", cfg.AssetHandler.Deposit)
			r.With(middleware.RequireCaller).Post("/transfer", cfg.AssetHandler.Transfer)
		})
		r.Route("/accounts/{address}", func(r chi.Router) {
			r.Get("/", cfg.AssetHandler.Accounts)
			r.Get("/assets/{asset}", cfg.AssetHandler.Balance)
			r.Get("/assets/{asset}/entries", cfg.AssetHandler.Entries)
		})
		r.Get("/transfers/{id}", cfg.AssetHandler.GetTransfer)

		// Book-wide checks
		r.Route("/ledger", func(r chi.Router) {
			r.Get("/consistency", cfg.LedgerHandler.CheckConsistency)
			r.Get("/reconciliation", cfg.LedgerHandler.Reconciliation)
		})
	})

	return r
}
