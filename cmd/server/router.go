package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/match-gateway/internal/api"
	apiMiddleware "github.com/phrazzld/match-gateway/internal/api/middleware"
	"github.com/phrazzld/match-gateway/internal/api/shared"
	"github.com/phrazzld/match-gateway/internal/domain"
)

// setupRouter creates the router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))
	r.Use(apiMiddleware.Recoverer)
	r.Use(apiMiddleware.CurrentRegion)

	authHandler := api.NewAuthHandler(app.accounts, app.logger)
	trackerHandler := api.NewTrackerHandler(app.tracker, app.logger)
	paymentHandler := api.NewPaymentHandler(app.payments, app.logger)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.accounts)

	r.Route("/api", func(r chi.Router) {
		// Public endpoints
		r.Get("/auth/pubkey", authHandler.Pubkey)
		r.Post("/auth/signup", authHandler.Signup)
		r.Post("/auth/signup/confirm", authHandler.ConfirmSignup)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/payment/webhook", paymentHandler.Webhook)

		r.Route("/{role}/{role_id}", func(r chi.Router) {
			// Refresh accepts recently expired tokens and checks them itself.
			r.Post("/refresh", authHandler.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.Authenticate)

				r.Post("/logout", authHandler.Logout)
				r.Get("/session", authHandler.Session)
				r.Get("/matches", trackerHandler.Matches)
				r.Get("/payment", paymentHandler.Status)
				r.Post("/payment/checkout", paymentHandler.Checkout)
				r.Get("/{relation}", trackerHandler.List)
				r.Put("/{relation}/{target_id}", trackerHandler.Add)
				r.Delete("/{relation}/{target_id}", trackerHandler.Remove)
			})
		})
	})

	r.Get("/health", app.health)
	if app.config.Metrics.Enabled {
		r.Handle(app.config.Metrics.Path, app.metrics.Handler())
	}
	return r
}

type healthResponse struct {
	Cache   string `json:"cache"`
	Handles int    `json:"handles"`
}

// health reports whether the cache answers. Backend domains are not
// probed here; the pool's probe loop covers them.
func (app *application) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Cache: "ok", Handles: len(app.pool.Handles())}
	if err := app.cache.Ping(ctx); err != nil {
		resp.Cache = "unavailable"
		shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable, domain.CodeServer, "cache unavailable", resp, err)
		return
	}
	shared.RespondOK(w, r, resp)
}
