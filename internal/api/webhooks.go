/**
 * @description
 * Webhook endpoint for the billing provider. It validates the HMAC signature
 * of every delivery, drops redelivered events, and routes invoice outcomes
 * into the subscription grace-period lifecycle.
 */
package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ebardia/band-it-sub000/internal/app"
	"github.com/ebardia/band-it-sub000/internal/store"
)

// billingSignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const billingSignatureHeader = "X-Billing-Signature"

// Billing event types the engine acts on. Everything else is acknowledged
// and dropped.
const (
	eventInvoicePaymentFailed    = "invoice.payment_failed"
	eventInvoicePaymentSucceeded = "invoice.payment_succeeded"
)

// BillingEventSink receives the invoice outcomes parsed from webhooks.
type BillingEventSink interface {
	HandlePaymentFailure(ctx context.Context, providerSubscriptionID string) error
	HandlePaymentRecovered(ctx context.Context, providerSubscriptionID string) error
}

// billingEvent is the provider's webhook envelope.
type billingEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		SubscriptionID string `json:"subscription_id"`
	} `json:"data"`
}

// WebhookHandler processes incoming webhooks from the billing provider.
type WebhookHandler struct {
	sink   BillingEventSink
	secret string
	seen   *app.SeenCache
	logger *slog.Logger
}

// NewWebhookHandler creates the webhook endpoint handler.
func NewWebhookHandler(sink BillingEventSink, secret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		sink:   sink,
		secret: secret,
		seen:   app.NewSeenCache(24*time.Hour, time.Hour),
		logger: logger,
	}
}

// Close stops the dedupe cache's eviction loop.
func (h *WebhookHandler) Close() {
	h.seen.Close()
}

// ServeHTTP implements the http.Handler interface.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Cannot read request body", http.StatusBadRequest)
		return
	}

	if !h.isValidSignature(r.Header.Get(billingSignatureHeader), body) {
		h.logger.Warn("webhook rejected: invalid signature", "remote_addr", r.RemoteAddr)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event billingEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	if event.ID != "" && h.seen.Seen(event.ID) {
		h.logger.Info("duplicate webhook event ignored", "event_id", event.ID, "type", event.Type)
		ack(w, "Duplicate event ignored")
		return
	}

	h.logger.Info("billing webhook received",
		"event_id", event.ID,
		"type", event.Type,
		"subscription_id", event.Data.SubscriptionID,
	)

	var handleErr error
	switch event.Type {
	case eventInvoicePaymentFailed:
		handleErr = h.sink.HandlePaymentFailure(r.Context(), event.Data.SubscriptionID)
	case eventInvoicePaymentSucceeded:
		handleErr = h.sink.HandlePaymentRecovered(r.Context(), event.Data.SubscriptionID)
	default:
		// Unknown event types are acknowledged so the provider stops resending.
		h.logger.Info("unhandled webhook event type", "type", event.Type)
		ack(w, "Webhook received")
		return
	}

	if handleErr != nil {
		// Events for subscriptions this platform never tracked are acked
		// rather than retried by the provider forever.
		if errors.Is(handleErr, store.ErrSubscriptionNotFound) {
			h.logger.Warn("webhook for unknown subscription", "subscription_id", event.Data.SubscriptionID)
			ack(w, "Webhook received")
			return
		}
		// Release the event ID so the provider's retry is processed.
		if event.ID != "" {
			h.seen.Forget(event.ID)
		}
		h.logger.Error("webhook processing failed", "event_id", event.ID, "type", event.Type, "error", handleErr)
		http.Error(w, "Internal server error during event processing", http.StatusInternalServerError)
		return
	}

	ack(w, "Webhook received")
}

func ack(w http.ResponseWriter, message string) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(message))
}

// isValidSignature checks the hex HMAC-SHA256 signature over the raw body.
// A "sha256=" prefix on the header is accepted.
func (h *WebhookHandler) isValidSignature(header string, body []byte) bool {
	if h.secret == "" {
		h.logger.Warn("BILLING_WEBHOOK_SECRET is not set, skipping signature validation")
		return true
	}

	header = strings.TrimPrefix(strings.TrimSpace(header), "sha256=")
	if header == "" {
		return false
	}
	provided, err := hex.DecodeString(header)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}
