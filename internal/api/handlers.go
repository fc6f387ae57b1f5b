/**
 * @description
 * HTTP handlers for the lifecycle API. Handlers parse requests, resolve the
 * acting member from the request context, call the action or sweep layer, and
 * map service errors onto HTTP statuses. Business rules live below; nothing
 * here decides more than a status code.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ebardia/band-it-sub000/internal/app"
	"github.com/ebardia/band-it-sub000/internal/config"
	"github.com/ebardia/band-it-sub000/internal/domain"
	"github.com/ebardia/band-it-sub000/internal/store"
)

// SweepRunner triggers sweeps by name. Implemented by app.Jobs.
type SweepRunner interface {
	Run(ctx context.Context, job string) (*app.SweepResult, error)
	JobNames() []string
}

// AuditLister reads the audit log.
type AuditLister interface {
	List(ctx context.Context, f store.AuditFilter) ([]domain.AuditEntry, error)
}

// Handlers holds the services the endpoints call into.
type Handlers struct {
	jobs      SweepRunner
	actions   *app.Actions
	audits    AuditLister
	schedules map[string]string
	logger    *slog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(jobs SweepRunner, actions *app.Actions, audits AuditLister, cfg config.Config, logger *slog.Logger) *Handlers {
	return &Handlers{
		jobs:      jobs,
		actions:   actions,
		audits:    audits,
		schedules: app.JobSchedules(cfg),
		logger:    logger,
	}
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// statusForError maps action-layer errors onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, store.ErrStageConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrSubscriptionNotFound),
		errors.Is(err, store.ErrPaymentNotFound),
		errors.Is(err, store.ErrDonationNotFound),
		errors.Is(err, store.ErrRecurringNotFound),
		errors.Is(err, store.ErrClaimNotFound),
		errors.Is(err, store.ErrVerificationNotFound),
		errors.Is(err, store.ErrBandNotFound),
		errors.Is(err, store.ErrMemberNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondWithActionError writes the mapped status. Internal errors are logged
// and masked; expected rejections echo their message.
func (h *Handlers) respondWithActionError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("action failed", "error", err)
		respondWithError(w, status, "internal server error")
		return
	}
	respondWithError(w, status, err.Error())
}

// actor resolves the authenticated member, responding with 401 when the
// auth middleware did not run.
func (h *Handlers) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := GetClerkUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	return userID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

type jobInfo struct {
	Job      string `json:"job"`
	Schedule string `json:"schedule,omitempty"`
}

// handleListJobs returns the registered sweeps and their cron schedules.
func (h *Handlers) handleListJobs(w http.ResponseWriter, r *http.Request) {
	names := h.jobs.JobNames()
	infos := make([]jobInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, jobInfo{Job: name, Schedule: h.schedules[name]})
	}
	respondWithJSON(w, http.StatusOK, map[string][]jobInfo{"jobs": infos})
}

// handleTriggerSweep runs one sweep synchronously and returns its result.
func (h *Handlers) handleTriggerSweep(w http.ResponseWriter, r *http.Request) {
	job := chi.URLParam(r, "job")

	known := false
	for _, name := range h.jobs.JobNames() {
		if name == job {
			known = true
			break
		}
	}
	if !known {
		respondWithError(w, http.StatusNotFound, "unknown job "+strconv.Quote(job))
		return
	}

	result, err := h.jobs.Run(r.Context(), job)
	if err != nil {
		h.logger.Error("manually triggered sweep failed", "job", job, "error", err)
		respondWithError(w, http.StatusInternalServerError, "sweep failed: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// handleListAudit returns recent audit entries, optionally filtered by the
// entity_kind and entity_id query parameters.
func (h *Handlers) handleListAudit(w http.ResponseWriter, r *http.Request) {
	f := store.AuditFilter{
		EntityKind: r.URL.Query().Get("entity_kind"),
		EntityID:   r.URL.Query().Get("entity_id"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		f.Limit = limit
	}

	entries, err := h.audits.List(r.Context(), f)
	if err != nil {
		h.logger.Error("failed to list audit entries", "error", err)
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (h *Handlers) handleSubmitPayment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in app.SubmitPaymentInput
	if !decodeBody(w, r, &in) {
		return
	}
	p, err := h.actions.SubmitManualPayment(r.Context(), actorID, in)
	if err != nil {
		h.respondWithActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, p)
}

func (h *Handlers) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	p, err := h.actions.ConfirmManualPayment(r.Context(), actorID, chi.URLParam(r, "paymentID"))
	if err != nil {
		h.respondWithActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

func (h *Handlers) handleDisputePayment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	p, err := h.actions.DisputeManualPayment(r.Context(), actorID, chi.URLParam(r, "paymentID"))
	if err != nil {
		h.respondWithActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

func (h *Handlers) handleCreatePledge(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in app.PledgeInput
	if !decodeBody(w, r, &in) {
		return
	}
	d, err := h.actions.CreateDonationPledge(r.Context(), actorID, in)
	if err != nil {
		h.respondWithActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, d)
}

func (h *Handlers) handleMarkPledgePaid(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	d, err := h.actions.MarkDonationPledgePaid(r.Context(), actorID, chi.URLParam(r, "donationID"))
	if err != nil {
		h.respondWithActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, d)
}

func (h *Handlers) handleConfirmDonation(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	d, err := h.actions.ConfirmDonation(r.Context(), actorID, chi.URLParam(r, "donationID"))
	if err != nil {
		h.respondWithActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, d)
}

func (h *Handlers) handleRejectDonation(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	d, err := h.actions.RejectDonation(r.Context(), actorID, chi.URLParam(r, "donationID"))
	if err != nil {
		h.respondWithActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, d)
}

func (h *Handlers) handleCancelDonation(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	d, err := h.actions.CancelDonation(r.Context(), actorID, chi.URLParam(r, "donationID"))
	if err != nil {
		h.respondWithActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, d)
}

func (h *Handlers) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in app.RecurringInput
	if !decodeBody(w, r, &in) {
		return
	}
	series, err := h.actions.CreateRecurringDonation(r.Context(), actorID, in)
	if err != nil {
		h.respondWithActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, series)
}

func (h *Handlers) handlePauseRecurring(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	series, err := h.actions.PauseRecurringDonation(r.Context(), actorID, chi.URLParam(r, "seriesID"))
	if err != nil {
		h.respondWithActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, series)
}

func (h *Handlers) handleResumeRecurring(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	series, err := h.actions.ResumeRecurringDonation(r.Context(), actorID, chi.URLParam(r, "seriesID"))
	if err != nil {
		h.respondWithActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, series)
}

func (h *Handlers) handleCancelRecurring(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	series, err := h.actions.CancelRecurringDonation(r.Context(), actorID, chi.URLParam(r, "seriesID"))
	if err != nil {
		h.respondWithActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, series)
}

func (h *Handlers) handleSubmitClaim(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in app.ClaimInput
	if !decodeBody(w, r, &in) {
		return
	}
	c, err := h.actions.SubmitReimbursementClaim(r.Context(), actorID, in)
	if err != nil {
		h.respondWithActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, c)
}

func (h *Handlers) handleMarkClaimSent(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	c, err := h.actions.MarkReimbursementSent(r.Context(), actorID, chi.URLParam(r, "claimID"))
	if err != nil {
		h.respondWithActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

func (h *Handlers) handleConfirmClaim(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	c, err := h.actions.ConfirmReimbursement(r.Context(), actorID, chi.URLParam(r, "claimID"))
	if err != nil {
		h.respondWithActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

func (h *Handlers) handleDisputeClaim(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	c, err := h.actions.DisputeReimbursement(r.Context(), actorID, chi.URLParam(r, "claimID"))
	if err != nil {
		h.respondWithActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

// Verification endpoints exist once per row kind; the wrappers bind the kind
// and the URL parameter name, the helpers share everything else.

func (h *Handlers) submitForVerification(w http.ResponseWriter, r *http.Request, kind, param string) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	item, err := h.actions.SubmitForVerification(r.Context(), actorID, kind, chi.URLParam(r, param))
	if err != nil {
		h.respondWithActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, item)
}

func (h *Handlers) approveVerification(w http.ResponseWriter, r *http.Request, kind, param string) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	item, err := h.actions.ApproveVerification(r.Context(), actorID, kind, chi.URLParam(r, param))
	if err != nil {
		h.respondWithActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, item)
}

func (h *Handlers) rejectVerification(w http.ResponseWriter, r *http.Request, kind, param string) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	item, err := h.actions.RejectVerification(r.Context(), actorID, kind, chi.URLParam(r, param))
	if err != nil {
		h.respondWithActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, item)
}

func (h *Handlers) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	h.submitForVerification(w, r, domain.VerificationKindTask, "taskID")
}

func (h *Handlers) handleApproveTask(w http.ResponseWriter, r *http.Request) {
	h.approveVerification(w, r, domain.VerificationKindTask, "taskID")
}

func (h *Handlers) handleRejectTask(w http.ResponseWriter, r *http.Request) {
	h.rejectVerification(w, r, domain.VerificationKindTask, "taskID")
}

func (h *Handlers) handleSubmitChecklistItem(w http.ResponseWriter, r *http.Request) {
	h.submitForVerification(w, r, domain.VerificationKindChecklistItem, "itemID")
}

func (h *Handlers) handleApproveChecklistItem(w http.ResponseWriter, r *http.Request) {
	h.approveVerification(w, r, domain.VerificationKindChecklistItem, "itemID")
}

func (h *Handlers) handleRejectChecklistItem(w http.ResponseWriter, r *http.Request) {
	h.rejectVerification(w, r, domain.VerificationKindChecklistItem, "itemID")
}

func (h *Handlers) handleUnclaimTask(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	item, err := h.actions.UnclaimTask(r.Context(), actorID, chi.URLParam(r, "taskID"))
	if err != nil {
		h.respondWithActionError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, item)
}
