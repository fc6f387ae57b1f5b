/**
 * @description
 * Direct commitment actions invoked by members and treasurers through the
 * HTTP API. Each action authorizes the actor against band roles, applies the
 * guarded stage transition, and notifies the counterparty. Stage guards live
 * in the store layer, so a stale button press surfaces as a conflict instead
 * of overwriting what a sweep already resolved.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ebardia/band-it-sub000/internal/config"
	"github.com/ebardia/band-it-sub000/internal/domain"
	"github.com/ebardia/band-it-sub000/internal/store"
)

// Action errors mapped to HTTP statuses by the API layer.
var (
	ErrNotAllowed   = errors.New("actor is not allowed to perform this action")
	ErrInvalidInput = errors.New("invalid input")
)

// PaymentActionStore defines manual payment operations needed by the actions.
type PaymentActionStore interface {
	Create(ctx context.Context, p *domain.ManualPayment) error
	GetByID(ctx context.Context, id string) (*domain.ManualPayment, error)
	Confirm(ctx context.Context, id, actorID string, now time.Time) (*domain.ManualPayment, error)
	Dispute(ctx context.Context, id, actorID string, now time.Time) (*domain.ManualPayment, error)
}

// DonationActionStore defines donation operations needed by the actions.
type DonationActionStore interface {
	CreatePledge(ctx context.Context, d *domain.Donation) error
	GetCandidateByID(ctx context.Context, id string) (*domain.DonationCandidate, error)
	Confirm(ctx context.Context, id, actorID string, now time.Time, next *domain.Donation) (*domain.Donation, error)
	MarkPledgePaid(ctx context.Context, id, actorID string, now time.Time) (*domain.Donation, error)
	Reject(ctx context.Context, id, actorID string, now time.Time) (*domain.Donation, error)
	Cancel(ctx context.Context, id, actorID string, now time.Time) (*domain.Donation, error)
	GetRecurringByID(ctx context.Context, id string) (*domain.RecurringDonation, error)
	CreateRecurring(ctx context.Context, series *domain.RecurringDonation, first *domain.Donation) error
	Pause(ctx context.Context, id, actorID string, now time.Time) (*domain.RecurringDonation, error)
	Resume(ctx context.Context, id, actorID string, now time.Time, next *domain.Donation) (*domain.RecurringDonation, error)
	CancelSeries(ctx context.Context, id, actorID string, now time.Time) (*domain.RecurringDonation, error)
}

// ClaimActionStore defines reimbursement operations needed by the actions.
type ClaimActionStore interface {
	Create(ctx context.Context, c *domain.ReimbursementClaim) error
	GetByID(ctx context.Context, id string) (*domain.ReimbursementClaim, error)
	MarkReimbursed(ctx context.Context, id, actorID string, now, autoConfirmAt time.Time) (*domain.ReimbursementClaim, error)
	Confirm(ctx context.Context, id, actorID string, now time.Time) (*domain.ReimbursementClaim, error)
	Dispute(ctx context.Context, id, actorID string, now time.Time) (*domain.ReimbursementClaim, error)
}

// VerificationActionStore defines verification operations needed by the actions.
type VerificationActionStore interface {
	GetByID(ctx context.Context, kind, id string) (*domain.VerificationItem, error)
	SubmitForVerification(ctx context.Context, kind, id, actorID string, now time.Time) (*domain.VerificationItem, error)
	Approve(ctx context.Context, kind, id, actorID string, now time.Time) (*domain.VerificationItem, error)
	Reject(ctx context.Context, kind, id, actorID string, now time.Time) (*domain.VerificationItem, error)
	UnclaimTask(ctx context.Context, id, actorID string) (*domain.VerificationItem, error)
}

// Actions implements the member-facing commitment operations.
type Actions struct {
	cfg      config.Config
	logger   *slog.Logger
	payments PaymentActionStore
	dons     DonationActionStore
	claims   ClaimActionStore
	verifs   VerificationActionStore
	bands    MemberDirectory
	notifier Notifier

	// now is swappable in tests.
	now func() time.Time
}

// NewActions creates the action service.
func NewActions(cfg config.Config, payments PaymentActionStore, dons DonationActionStore, claims ClaimActionStore, verifs VerificationActionStore, bands MemberDirectory, notifier Notifier, logger *slog.Logger) *Actions {
	return &Actions{
		cfg:      cfg,
		logger:   logger,
		payments: payments,
		dons:     dons,
		claims:   claims,
		verifs:   verifs,
		bands:    bands,
		notifier: notifier,
		now:      time.Now,
	}
}

// requireRole checks the actor holds one of the given roles in the band.
// Non-members get ErrNotAllowed rather than a lookup error.
func (a *Actions) requireRole(ctx context.Context, bandID, actorID string, roles []string) error {
	role, err := a.bands.GetMemberRole(ctx, bandID, actorID)
	if errors.Is(err, store.ErrMemberNotFound) {
		return ErrNotAllowed
	}
	if err != nil {
		return err
	}
	if !domain.HasRole(role, roles) {
		return ErrNotAllowed
	}
	return nil
}

// requireMember checks the actor is an active member of the band.
func (a *Actions) requireMember(ctx context.Context, bandID, actorID string) error {
	_, err := a.bands.GetMemberRole(ctx, bandID, actorID)
	if errors.Is(err, store.ErrMemberNotFound) {
		return ErrNotAllowed
	}
	return err
}

func (a *Actions) notifyUser(ctx context.Context, p NotifyParams) {
	if _, err := a.notifier.Notify(ctx, p); err != nil {
		a.logger.Error("failed to notify user", "user_id", p.UserID, "type", p.Type, "error", err)
	}
}

func (a *Actions) notifyRole(ctx context.Context, bandID string, roles []string, p NotifyParams) {
	members, err := a.bands.ListMembersByRole(ctx, bandID, roles)
	if err != nil {
		a.logger.Error("failed to list members by role", "band_id", bandID, "error", err)
		return
	}
	for _, m := range members {
		p.UserID = m.UserID
		p.BandID = bandID
		a.notifyUser(ctx, p)
	}
}

func (a *Actions) autoConfirmWindow() time.Duration {
	days := a.cfg.AutoConfirmDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * day
}

func (a *Actions) defaultDueWindow() int {
	if a.cfg.DefaultDueWindowDays > 0 {
		return a.cfg.DefaultDueWindowDays
	}
	return 7
}

// SubmitPaymentInput describes a manual payment report.
type SubmitPaymentInput struct {
	BandID      string `json:"band_id"`
	AmountCents int64  `json:"amount_cents"`
	Method      string `json:"method,omitempty"`
	Note        string `json:"note,omitempty"`
}

// SubmitManualPayment records a manual payment by the actor and arms its
// auto-confirm deadline.
func (a *Actions) SubmitManualPayment(ctx context.Context, actorID string, in SubmitPaymentInput) (*domain.ManualPayment, error) {
	if in.BandID == "" {
		return nil, fmt.Errorf("%w: band_id is required", ErrInvalidInput)
	}
	if in.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if err := a.requireMember(ctx, in.BandID, actorID); err != nil {
		return nil, err
	}

	now := a.now().UTC()
	p := &domain.ManualPayment{
		BandID:        in.BandID,
		PayerUserID:   actorID,
		AmountCents:   in.AmountCents,
		Status:        domain.PaymentPending,
		SubmittedAt:   now,
		AutoConfirmAt: now.Add(a.autoConfirmWindow()),
	}
	if in.Method != "" {
		p.Method = &in.Method
	}
	if in.Note != "" {
		p.Note = &in.Note
	}
	if err := a.payments.Create(ctx, p); err != nil {
		return nil, err
	}

	a.logger.Info("manual payment submitted", "payment_id", p.ID, "band_id", p.BandID, "payer_user_id", actorID)
	a.notifyRole(ctx, p.BandID, domain.TreasurerRoles, NotifyParams{
		Type:      domain.NotifPaymentSubmitted,
		RelatedID: p.ID,
		Metadata:  map[string]string{"amount": formatAmount(p.AmountCents)},
	})
	return p, nil
}

// ConfirmManualPayment lets a treasurer confirm a pending payment.
func (a *Actions) ConfirmManualPayment(ctx context.Context, actorID, paymentID string) (*domain.ManualPayment, error) {
	p, err := a.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := a.requireRole(ctx, p.BandID, actorID, domain.TreasurerRoles); err != nil {
		return nil, err
	}

	confirmed, err := a.payments.Confirm(ctx, paymentID, actorID, a.now().UTC())
	if err != nil {
		return nil, err
	}
	a.logger.Info("manual payment confirmed", "payment_id", paymentID, "actor_id", actorID)
	a.notifyUser(ctx, NotifyParams{
		UserID:    confirmed.PayerUserID,
		BandID:    confirmed.BandID,
		Type:      domain.NotifPaymentConfirmed,
		RelatedID: confirmed.ID,
		Metadata:  map[string]string{"amount": formatAmount(confirmed.AmountCents)},
	})
	return confirmed, nil
}

// DisputeManualPayment lets a treasurer dispute a pending payment.
func (a *Actions) DisputeManualPayment(ctx context.Context, actorID, paymentID string) (*domain.ManualPayment, error) {
	p, err := a.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := a.requireRole(ctx, p.BandID, actorID, domain.TreasurerRoles); err != nil {
		return nil, err
	}

	disputed, err := a.payments.Dispute(ctx, paymentID, actorID, a.now().UTC())
	if err != nil {
		return nil, err
	}
	a.logger.Info("manual payment disputed", "payment_id", paymentID, "actor_id", actorID)
	a.notifyUser(ctx, NotifyParams{
		UserID:    disputed.PayerUserID,
		BandID:    disputed.BandID,
		Type:      domain.NotifPaymentDisputed,
		RelatedID: disputed.ID,
		Metadata:  map[string]string{"amount": formatAmount(disputed.AmountCents)},
	})
	return disputed, nil
}

// PledgeInput describes a one-off donation pledge.
type PledgeInput struct {
	BandID        string    `json:"band_id"`
	AmountCents   int64     `json:"amount_cents"`
	ExpectedDate  time.Time `json:"expected_date"`
	DueWindowDays int       `json:"due_window_days,omitempty"`
}

// CreateDonationPledge records a standalone pledge by the actor.
func (a *Actions) CreateDonationPledge(ctx context.Context, actorID string, in PledgeInput) (*domain.Donation, error) {
	if in.BandID == "" {
		return nil, fmt.Errorf("%w: band_id is required", ErrInvalidInput)
	}
	if in.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if in.ExpectedDate.IsZero() {
		return nil, fmt.Errorf("%w: expected_date is required", ErrInvalidInput)
	}
	if err := a.requireMember(ctx, in.BandID, actorID); err != nil {
		return nil, err
	}

	window := in.DueWindowDays
	if window <= 0 {
		window = a.defaultDueWindow()
	}
	d := &domain.Donation{
		BandID:        in.BandID,
		DonorUserID:   actorID,
		AmountCents:   in.AmountCents,
		ExpectedDate:  in.ExpectedDate.UTC(),
		DueWindowDays: window,
		Status:        domain.DonationExpected,
	}
	if err := a.dons.CreatePledge(ctx, d); err != nil {
		return nil, err
	}
	a.logger.Info("donation pledge created", "donation_id", d.ID, "band_id", d.BandID, "donor_user_id", actorID)
	return d, nil
}

// MarkDonationPledgePaid lets the donor report their donation as paid.
func (a *Actions) MarkDonationPledgePaid(ctx context.Context, actorID, donationID string) (*domain.Donation, error) {
	cand, err := a.dons.GetCandidateByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if cand.Donation.DonorUserID != actorID {
		return nil, ErrNotAllowed
	}

	paid, err := a.dons.MarkPledgePaid(ctx, donationID, actorID, a.now().UTC())
	if err != nil {
		return nil, err
	}
	a.logger.Info("donation marked paid", "donation_id", donationID, "donor_user_id", actorID)
	a.notifyRole(ctx, paid.BandID, domain.TreasurerRoles, NotifyParams{
		Type:      domain.NotifDonationPledgePaid,
		RelatedID: paid.ID,
		Metadata:  map[string]string{"amount": formatAmount(paid.AmountCents)},
	})
	return paid, nil
}

// ConfirmDonation lets a treasurer confirm a donation. Confirming an instance
// of an active series resets its miss counter and schedules the next one.
func (a *Actions) ConfirmDonation(ctx context.Context, actorID, donationID string) (*domain.Donation, error) {
	cand, err := a.dons.GetCandidateByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if err := a.requireRole(ctx, cand.Donation.BandID, actorID, domain.TreasurerRoles); err != nil {
		return nil, err
	}

	var next *domain.Donation
	if cand.Series != nil && cand.Series.Status == domain.RecurringActive {
		next = domain.NextInstance(cand.Series, cand.Donation.ExpectedDate)
	}
	confirmed, err := a.dons.Confirm(ctx, donationID, actorID, a.now().UTC(), next)
	if err != nil {
		return nil, err
	}
	a.logger.Info("donation confirmed", "donation_id", donationID, "actor_id", actorID)
	a.notifyUser(ctx, NotifyParams{
		UserID:    confirmed.DonorUserID,
		BandID:    confirmed.BandID,
		Type:      domain.NotifDonationConfirmed,
		RelatedID: confirmed.ID,
		Metadata:  map[string]string{"amount": formatAmount(confirmed.AmountCents)},
	})
	return confirmed, nil
}

// RejectDonation lets a treasurer reject a donation they cannot verify.
func (a *Actions) RejectDonation(ctx context.Context, actorID, donationID string) (*domain.Donation, error) {
	cand, err := a.dons.GetCandidateByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if err := a.requireRole(ctx, cand.Donation.BandID, actorID, domain.TreasurerRoles); err != nil {
		return nil, err
	}

	rejected, err := a.dons.Reject(ctx, donationID, actorID, a.now().UTC())
	if err != nil {
		return nil, err
	}
	a.logger.Info("donation rejected", "donation_id", donationID, "actor_id", actorID)
	a.notifyUser(ctx, NotifyParams{
		UserID:    rejected.DonorUserID,
		BandID:    rejected.BandID,
		Type:      domain.NotifDonationRejected,
		RelatedID: rejected.ID,
		Metadata:  map[string]string{"amount": formatAmount(rejected.AmountCents)},
	})
	return rejected, nil
}

// CancelDonation lets the donor withdraw an outstanding pledge.
func (a *Actions) CancelDonation(ctx context.Context, actorID, donationID string) (*domain.Donation, error) {
	cand, err := a.dons.GetCandidateByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if cand.Donation.DonorUserID != actorID {
		return nil, ErrNotAllowed
	}

	cancelled, err := a.dons.Cancel(ctx, donationID, actorID, a.now().UTC())
	if err != nil {
		return nil, err
	}
	a.logger.Info("donation cancelled", "donation_id", donationID, "donor_user_id", actorID)
	return cancelled, nil
}

// RecurringInput describes a recurring donation series.
type RecurringInput struct {
	BandID        string    `json:"band_id"`
	AmountCents   int64     `json:"amount_cents"`
	Frequency     string    `json:"frequency"`
	DayOfMonth    int       `json:"day_of_month,omitempty"`
	DueWindowDays int       `json:"due_window_days,omitempty"`
	StartDate     time.Time `json:"start_date"`
}

// CreateRecurringDonation starts a series with its first expected instance
// due on the start date.
func (a *Actions) CreateRecurringDonation(ctx context.Context, actorID string, in RecurringInput) (*domain.RecurringDonation, error) {
	if in.BandID == "" {
		return nil, fmt.Errorf("%w: band_id is required", ErrInvalidInput)
	}
	if in.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if !domain.ValidFrequency(in.Frequency) {
		return nil, fmt.Errorf("%w: unknown frequency %q", ErrInvalidInput, in.Frequency)
	}
	if in.StartDate.IsZero() {
		return nil, fmt.Errorf("%w: start_date is required", ErrInvalidInput)
	}
	if in.DayOfMonth < 0 || in.DayOfMonth > 31 {
		return nil, fmt.Errorf("%w: day_of_month out of range", ErrInvalidInput)
	}
	if err := a.requireMember(ctx, in.BandID, actorID); err != nil {
		return nil, err
	}

	start := in.StartDate.UTC()
	dayOfMonth := in.DayOfMonth
	if dayOfMonth == 0 {
		dayOfMonth = start.Day()
	}
	window := in.DueWindowDays
	if window <= 0 {
		window = a.defaultDueWindow()
	}

	series := &domain.RecurringDonation{
		BandID:        in.BandID,
		DonorUserID:   actorID,
		AmountCents:   in.AmountCents,
		Frequency:     in.Frequency,
		DayOfMonth:    dayOfMonth,
		DueWindowDays: window,
		Status:        domain.RecurringActive,
		StartDate:     start,
	}
	first := &domain.Donation{
		BandID:        in.BandID,
		DonorUserID:   actorID,
		AmountCents:   in.AmountCents,
		ExpectedDate:  start,
		DueWindowDays: window,
		Status:        domain.DonationExpected,
	}
	if err := a.dons.CreateRecurring(ctx, series, first); err != nil {
		return nil, err
	}
	a.logger.Info("recurring donation created",
		"recurring_donation_id", series.ID,
		"band_id", series.BandID,
		"donor_user_id", actorID,
		"frequency", series.Frequency,
	)
	return series, nil
}

// PauseRecurringDonation suspends the donor's own series.
func (a *Actions) PauseRecurringDonation(ctx context.Context, actorID, seriesID string) (*domain.RecurringDonation, error) {
	series, err := a.dons.GetRecurringByID(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	if series.DonorUserID != actorID {
		return nil, ErrNotAllowed
	}
	paused, err := a.dons.Pause(ctx, seriesID, actorID, a.now().UTC())
	if err != nil {
		return nil, err
	}
	a.logger.Info("recurring donation paused", "recurring_donation_id", seriesID, "donor_user_id", actorID)
	return paused, nil
}

// ResumeRecurringDonation reactivates a paused series. The next instance is
// scheduled from the resume time, not from where the series left off.
func (a *Actions) ResumeRecurringDonation(ctx context.Context, actorID, seriesID string) (*domain.RecurringDonation, error) {
	series, err := a.dons.GetRecurringByID(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	if series.DonorUserID != actorID {
		return nil, ErrNotAllowed
	}

	now := a.now().UTC()
	next := domain.NextInstance(series, now)
	resumed, err := a.dons.Resume(ctx, seriesID, actorID, now, next)
	if err != nil {
		return nil, err
	}
	a.logger.Info("recurring donation resumed", "recurring_donation_id", seriesID, "donor_user_id", actorID)
	return resumed, nil
}

// CancelRecurringDonation ends the donor's own series.
func (a *Actions) CancelRecurringDonation(ctx context.Context, actorID, seriesID string) (*domain.RecurringDonation, error) {
	series, err := a.dons.GetRecurringByID(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	if series.DonorUserID != actorID {
		return nil, ErrNotAllowed
	}
	cancelled, err := a.dons.CancelSeries(ctx, seriesID, actorID, a.now().UTC())
	if err != nil {
		return nil, err
	}
	a.logger.Info("recurring donation cancelled", "recurring_donation_id", seriesID, "donor_user_id", actorID)
	return cancelled, nil
}

// ClaimInput describes a reimbursement claim.
type ClaimInput struct {
	BandID      string `json:"band_id"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
}

// SubmitReimbursementClaim records an expense claim by the actor.
func (a *Actions) SubmitReimbursementClaim(ctx context.Context, actorID string, in ClaimInput) (*domain.ReimbursementClaim, error) {
	if in.BandID == "" {
		return nil, fmt.Errorf("%w: band_id is required", ErrInvalidInput)
	}
	if in.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if err := a.requireMember(ctx, in.BandID, actorID); err != nil {
		return nil, err
	}

	c := &domain.ReimbursementClaim{
		BandID:          in.BandID,
		RecipientUserID: actorID,
		AmountCents:     in.AmountCents,
		Description:     in.Description,
		Status:          domain.ClaimPending,
		SubmittedAt:     a.now().UTC(),
	}
	if err := a.claims.Create(ctx, c); err != nil {
		return nil, err
	}
	a.logger.Info("reimbursement claim submitted", "claim_id", c.ID, "band_id", c.BandID, "recipient_user_id", actorID)
	a.notifyRole(ctx, c.BandID, domain.TreasurerRoles, NotifyParams{
		Type:      domain.NotifClaimSubmitted,
		RelatedID: c.ID,
		Metadata:  map[string]string{"amount": formatAmount(c.AmountCents)},
	})
	return c, nil
}

// MarkReimbursementSent lets a treasurer record the payout, arming the
// recipient's confirmation deadline.
func (a *Actions) MarkReimbursementSent(ctx context.Context, actorID, claimID string) (*domain.ReimbursementClaim, error) {
	c, err := a.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if err := a.requireRole(ctx, c.BandID, actorID, domain.TreasurerRoles); err != nil {
		return nil, err
	}

	now := a.now().UTC()
	sent, err := a.claims.MarkReimbursed(ctx, claimID, actorID, now, now.Add(a.autoConfirmWindow()))
	if err != nil {
		return nil, err
	}
	a.logger.Info("reimbursement sent", "claim_id", claimID, "actor_id", actorID)
	metadata := map[string]string{"amount": formatAmount(sent.AmountCents)}
	if sent.AutoConfirmAt != nil {
		metadata["auto_confirm_at"] = formatDate(*sent.AutoConfirmAt)
	}
	a.notifyUser(ctx, NotifyParams{
		UserID:    sent.RecipientUserID,
		BandID:    sent.BandID,
		Type:      domain.NotifClaimSent,
		RelatedID: sent.ID,
		Metadata:  metadata,
	})
	return sent, nil
}

// ConfirmReimbursement lets the recipient confirm they received the payout.
func (a *Actions) ConfirmReimbursement(ctx context.Context, actorID, claimID string) (*domain.ReimbursementClaim, error) {
	c, err := a.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if c.RecipientUserID != actorID {
		return nil, ErrNotAllowed
	}

	confirmed, err := a.claims.Confirm(ctx, claimID, actorID, a.now().UTC())
	if err != nil {
		return nil, err
	}
	a.logger.Info("reimbursement confirmed", "claim_id", claimID, "recipient_user_id", actorID)
	if confirmed.ReimbursedBy != nil {
		a.notifyUser(ctx, NotifyParams{
			UserID:    *confirmed.ReimbursedBy,
			BandID:    confirmed.BandID,
			Type:      domain.NotifClaimConfirmed,
			RelatedID: confirmed.ID,
			Metadata:  map[string]string{"amount": formatAmount(confirmed.AmountCents)},
		})
	}
	return confirmed, nil
}

// DisputeReimbursement lets the recipient dispute a payout they did not
// receive.
func (a *Actions) DisputeReimbursement(ctx context.Context, actorID, claimID string) (*domain.ReimbursementClaim, error) {
	c, err := a.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if c.RecipientUserID != actorID {
		return nil, ErrNotAllowed
	}

	disputed, err := a.claims.Dispute(ctx, claimID, actorID, a.now().UTC())
	if err != nil {
		return nil, err
	}
	a.logger.Info("reimbursement disputed", "claim_id", claimID, "recipient_user_id", actorID)
	a.notifyRole(ctx, disputed.BandID, domain.TreasurerRoles, NotifyParams{
		Type:      domain.NotifClaimDisputed,
		RelatedID: disputed.ID,
		Metadata:  map[string]string{"amount": formatAmount(disputed.AmountCents)},
	})
	return disputed, nil
}

// SubmitForVerification marks completed work as awaiting review, starting the
// escalation clock. Tasks may only be submitted by their assignee; checklist
// items by any active member.
func (a *Actions) SubmitForVerification(ctx context.Context, actorID, kind, itemID string) (*domain.VerificationItem, error) {
	if !domain.ValidVerificationKind(kind) {
		return nil, fmt.Errorf("%w: unknown verification kind %q", ErrInvalidInput, kind)
	}
	item, err := a.verifs.GetByID(ctx, kind, itemID)
	if err != nil {
		return nil, err
	}
	if kind == domain.VerificationKindTask {
		if item.AssigneeUserID == nil || *item.AssigneeUserID != actorID {
			return nil, ErrNotAllowed
		}
	} else if err := a.requireMember(ctx, item.BandID, actorID); err != nil {
		return nil, err
	}

	submitted, err := a.verifs.SubmitForVerification(ctx, kind, itemID, actorID, a.now().UTC())
	if err != nil {
		return nil, err
	}
	a.logger.Info("work submitted for verification", "kind", kind, "item_id", itemID, "actor_id", actorID)
	return submitted, nil
}

// ApproveVerification lets a verifier approve completed work.
func (a *Actions) ApproveVerification(ctx context.Context, actorID, kind, itemID string) (*domain.VerificationItem, error) {
	return a.reviewVerification(ctx, actorID, kind, itemID, true)
}

// RejectVerification lets a verifier reject completed work, returning it to
// the assignee.
func (a *Actions) RejectVerification(ctx context.Context, actorID, kind, itemID string) (*domain.VerificationItem, error) {
	return a.reviewVerification(ctx, actorID, kind, itemID, false)
}

func (a *Actions) reviewVerification(ctx context.Context, actorID, kind, itemID string, approve bool) (*domain.VerificationItem, error) {
	if !domain.ValidVerificationKind(kind) {
		return nil, fmt.Errorf("%w: unknown verification kind %q", ErrInvalidInput, kind)
	}
	item, err := a.verifs.GetByID(ctx, kind, itemID)
	if err != nil {
		return nil, err
	}
	if err := a.requireRole(ctx, item.BandID, actorID, domain.VerifierRoles); err != nil {
		return nil, err
	}

	now := a.now().UTC()
	var reviewed *domain.VerificationItem
	notifType := domain.NotifVerificationApproved
	if approve {
		reviewed, err = a.verifs.Approve(ctx, kind, itemID, actorID, now)
	} else {
		reviewed, err = a.verifs.Reject(ctx, kind, itemID, actorID, now)
		notifType = domain.NotifVerificationRejected
	}
	if err != nil {
		return nil, err
	}

	a.logger.Info("verification reviewed", "kind", kind, "item_id", itemID, "actor_id", actorID, "approved", approve)
	if reviewed.AssigneeUserID != nil {
		a.notifyUser(ctx, NotifyParams{
			UserID:    *reviewed.AssigneeUserID,
			BandID:    reviewed.BandID,
			Type:      notifType,
			RelatedID: reviewed.ID,
			Metadata:  map[string]string{"item_title": reviewed.Title},
		})
	}
	return reviewed, nil
}

// UnclaimTask lets the assignee walk away from a claimed task, clearing its
// completion and verification state. The store guards that the actor is the
// current assignee.
func (a *Actions) UnclaimTask(ctx context.Context, actorID, taskID string) (*domain.VerificationItem, error) {
	unclaimed, err := a.verifs.UnclaimTask(ctx, taskID, actorID)
	if err != nil {
		return nil, err
	}
	a.logger.Info("task unclaimed", "task_id", taskID, "actor_id", actorID)
	return unclaimed, nil
}
