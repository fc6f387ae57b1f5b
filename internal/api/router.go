/**
 * @description
 * This file sets up the HTTP router for the lifecycle service using the Chi router.
 * It defines the API routes, applies middleware for logging, panic recovery, and
 * CORS, and splits the surface into three groups: unauthenticated operational
 * endpoints, an internal group guarded by the service API key, and the member
 * surface guarded by Clerk JWT authentication.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ebardia/band-it-sub000/internal/config"
)

// NewRouter creates and configures the service's HTTP router.
func NewRouter(h *Handlers, webhooks *WebhookHandler, cfg config.Config) *chi.Mux {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Handle("/metrics", promhttp.Handler())

	// Billing provider webhooks are authenticated by signature, not by JWT.
	r.Post("/webhooks/billing", webhooks.ServeHTTP)

	// Internal endpoints for service-to-service calls and operators.
	r.Route("/internal/lifecycle", func(r chi.Router) {
		r.Use(InternalKeyMiddleware(cfg.InternalAPIKey))
		r.Get("/sweeps", h.handleListJobs)
		r.Post("/sweeps/{job}/run", h.handleTriggerSweep)
		r.Get("/audit", h.handleListAudit)
	})

	// Member-facing endpoints require a Clerk session token.
	r.Group(func(r chi.Router) {
		r.Use(ClerkAuthMiddleware(cfg.ClerkJWKSURL))

		r.Post("/payments", h.handleSubmitPayment)
		r.Post("/payments/{paymentID}/confirm", h.handleConfirmPayment)
		r.Post("/payments/{paymentID}/dispute", h.handleDisputePayment)

		r.Post("/donations", h.handleCreatePledge)
		r.Post("/donations/{donationID}/paid", h.handleMarkPledgePaid)
		r.Post("/donations/{donationID}/confirm", h.handleConfirmDonation)
		r.Post("/donations/{donationID}/reject", h.handleRejectDonation)
		r.Post("/donations/{donationID}/cancel", h.handleCancelDonation)

		r.Post("/recurring-donations", h.handleCreateRecurring)
		r.Post("/recurring-donations/{seriesID}/pause", h.handlePauseRecurring)
		r.Post("/recurring-donations/{seriesID}/resume", h.handleResumeRecurring)
		r.Post("/recurring-donations/{seriesID}/cancel", h.handleCancelRecurring)

		r.Post("/reimbursements", h.handleSubmitClaim)
		r.Post("/reimbursements/{claimID}/sent", h.handleMarkClaimSent)
		r.Post("/reimbursements/{claimID}/confirm", h.handleConfirmClaim)
		r.Post("/reimbursements/{claimID}/dispute", h.handleDisputeClaim)

		r.Post("/tasks/{taskID}/submit", h.handleSubmitTask)
		r.Post("/tasks/{taskID}/approve", h.handleApproveTask)
		r.Post("/tasks/{taskID}/reject", h.handleRejectTask)
		r.Post("/tasks/{taskID}/unclaim", h.handleUnclaimTask)

		r.Post("/checklist-items/{itemID}/submit", h.handleSubmitChecklistItem)
		r.Post("/checklist-items/{itemID}/approve", h.handleApproveChecklistItem)
		r.Post("/checklist-items/{itemID}/reject", h.handleRejectChecklistItem)
	})

	return r
}
