package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ebardia/band-it-sub000/internal/domain"
	"github.com/ebardia/band-it-sub000/internal/store"
)

type paymentActionsStub struct {
	created   *domain.ManualPayment
	byID      map[string]*domain.ManualPayment
	confirmed []string
	disputed  []string
}

func (s *paymentActionsStub) Create(ctx context.Context, p *domain.ManualPayment) error {
	p.ID = "pay_new"
	s.created = p
	return nil
}

func (s *paymentActionsStub) GetByID(ctx context.Context, id string) (*domain.ManualPayment, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, store.ErrPaymentNotFound
	}
	return p, nil
}

func (s *paymentActionsStub) Confirm(ctx context.Context, id, actorID string, now time.Time) (*domain.ManualPayment, error) {
	s.confirmed = append(s.confirmed, id+"/"+actorID)
	p := *s.byID[id]
	p.Status = domain.PaymentConfirmed
	return &p, nil
}

func (s *paymentActionsStub) Dispute(ctx context.Context, id, actorID string, now time.Time) (*domain.ManualPayment, error) {
	s.disputed = append(s.disputed, id+"/"+actorID)
	p := *s.byID[id]
	p.Status = domain.PaymentDisputed
	return &p, nil
}

type donationActionsStub struct {
	candidates map[string]*domain.DonationCandidate
	series     map[string]*domain.RecurringDonation

	createdPledge *domain.Donation
	createdSeries *domain.RecurringDonation
	createdFirst  *domain.Donation
	confirmNext   *domain.Donation
	resumeNext    *domain.Donation
	pledgePaid    []string
	confirmed     []string
	rejected      []string
	cancelled     []string
	paused        []string
	resumed       []string
	seriesEnded   []string
}

func (s *donationActionsStub) CreatePledge(ctx context.Context, d *domain.Donation) error {
	d.ID = "don_new"
	s.createdPledge = d
	return nil
}

func (s *donationActionsStub) GetCandidateByID(ctx context.Context, id string) (*domain.DonationCandidate, error) {
	c, ok := s.candidates[id]
	if !ok {
		return nil, store.ErrDonationNotFound
	}
	return c, nil
}

func (s *donationActionsStub) Confirm(ctx context.Context, id, actorID string, now time.Time, next *domain.Donation) (*domain.Donation, error) {
	s.confirmed = append(s.confirmed, id+"/"+actorID)
	s.confirmNext = next
	d := s.candidates[id].Donation
	d.Status = domain.DonationConfirmed
	return &d, nil
}

func (s *donationActionsStub) MarkPledgePaid(ctx context.Context, id, actorID string, now time.Time) (*domain.Donation, error) {
	s.pledgePaid = append(s.pledgePaid, id+"/"+actorID)
	d := s.candidates[id].Donation
	d.Status = domain.DonationPending
	return &d, nil
}

func (s *donationActionsStub) Reject(ctx context.Context, id, actorID string, now time.Time) (*domain.Donation, error) {
	s.rejected = append(s.rejected, id+"/"+actorID)
	d := s.candidates[id].Donation
	d.Status = domain.DonationRejected
	return &d, nil
}

func (s *donationActionsStub) Cancel(ctx context.Context, id, actorID string, now time.Time) (*domain.Donation, error) {
	s.cancelled = append(s.cancelled, id+"/"+actorID)
	d := s.candidates[id].Donation
	d.Status = domain.DonationCancelled
	return &d, nil
}

func (s *donationActionsStub) GetRecurringByID(ctx context.Context, id string) (*domain.RecurringDonation, error) {
	r, ok := s.series[id]
	if !ok {
		return nil, store.ErrRecurringNotFound
	}
	return r, nil
}

func (s *donationActionsStub) CreateRecurring(ctx context.Context, series *domain.RecurringDonation, first *domain.Donation) error {
	series.ID = "rec_new"
	first.ID = "don_first"
	first.RecurringDonationID = &series.ID
	s.createdSeries = series
	s.createdFirst = first
	return nil
}

func (s *donationActionsStub) Pause(ctx context.Context, id, actorID string, now time.Time) (*domain.RecurringDonation, error) {
	s.paused = append(s.paused, id+"/"+actorID)
	r := *s.series[id]
	r.Status = domain.RecurringPaused
	return &r, nil
}

func (s *donationActionsStub) Resume(ctx context.Context, id, actorID string, now time.Time, next *domain.Donation) (*domain.RecurringDonation, error) {
	s.resumed = append(s.resumed, id+"/"+actorID)
	s.resumeNext = next
	r := *s.series[id]
	r.Status = domain.RecurringActive
	return &r, nil
}

func (s *donationActionsStub) CancelSeries(ctx context.Context, id, actorID string, now time.Time) (*domain.RecurringDonation, error) {
	s.seriesEnded = append(s.seriesEnded, id+"/"+actorID)
	r := *s.series[id]
	r.Status = domain.RecurringCancelled
	return &r, nil
}

type claimActionsStub struct {
	created       *domain.ReimbursementClaim
	byID          map[string]*domain.ReimbursementClaim
	sent          []string
	sentDeadline  time.Time
	confirmed     []string
	disputedCalls []string
}

func (s *claimActionsStub) Create(ctx context.Context, c *domain.ReimbursementClaim) error {
	c.ID = "claim_new"
	s.created = c
	return nil
}

func (s *claimActionsStub) GetByID(ctx context.Context, id string) (*domain.ReimbursementClaim, error) {
	c, ok := s.byID[id]
	if !ok {
		return nil, store.ErrClaimNotFound
	}
	return c, nil
}

func (s *claimActionsStub) MarkReimbursed(ctx context.Context, id, actorID string, now, autoConfirmAt time.Time) (*domain.ReimbursementClaim, error) {
	s.sent = append(s.sent, id+"/"+actorID)
	s.sentDeadline = autoConfirmAt
	c := *s.byID[id]
	c.Status = domain.ClaimReimbursed
	c.ReimbursedBy = &actorID
	c.AutoConfirmAt = &autoConfirmAt
	return &c, nil
}

func (s *claimActionsStub) Confirm(ctx context.Context, id, actorID string, now time.Time) (*domain.ReimbursementClaim, error) {
	s.confirmed = append(s.confirmed, id+"/"+actorID)
	c := *s.byID[id]
	c.Status = domain.ClaimConfirmed
	return &c, nil
}

func (s *claimActionsStub) Dispute(ctx context.Context, id, actorID string, now time.Time) (*domain.ReimbursementClaim, error) {
	s.disputedCalls = append(s.disputedCalls, id+"/"+actorID)
	c := *s.byID[id]
	c.Status = domain.ClaimDisputed
	return &c, nil
}

type verifActionsStub struct {
	byID      map[string]*domain.VerificationItem
	submitted []string
	approved  []string
	rejected  []string
	unclaimed []string
}

func (s *verifActionsStub) GetByID(ctx context.Context, kind, id string) (*domain.VerificationItem, error) {
	item, ok := s.byID[kind+"/"+id]
	if !ok {
		return nil, store.ErrVerificationNotFound
	}
	return item, nil
}

func (s *verifActionsStub) SubmitForVerification(ctx context.Context, kind, id, actorID string, now time.Time) (*domain.VerificationItem, error) {
	s.submitted = append(s.submitted, kind+"/"+id)
	item := *s.byID[kind+"/"+id]
	item.CompletedAt = &now
	return &item, nil
}

func (s *verifActionsStub) Approve(ctx context.Context, kind, id, actorID string, now time.Time) (*domain.VerificationItem, error) {
	s.approved = append(s.approved, kind+"/"+id)
	item := *s.byID[kind+"/"+id]
	item.Status = domain.VerificationApproved
	item.VerifiedBy = &actorID
	return &item, nil
}

func (s *verifActionsStub) Reject(ctx context.Context, kind, id, actorID string, now time.Time) (*domain.VerificationItem, error) {
	s.rejected = append(s.rejected, kind+"/"+id)
	item := *s.byID[kind+"/"+id]
	item.Status = domain.VerificationRejected
	item.VerifiedBy = &actorID
	return &item, nil
}

func (s *verifActionsStub) UnclaimTask(ctx context.Context, id, actorID string) (*domain.VerificationItem, error) {
	s.unclaimed = append(s.unclaimed, id+"/"+actorID)
	item, ok := s.byID[domain.VerificationKindTask+"/"+id]
	if !ok {
		return nil, store.ErrVerificationNotFound
	}
	return item, nil
}

type actionsHarness struct {
	actions  *Actions
	payments *paymentActionsStub
	dons     *donationActionsStub
	claims   *claimActionsStub
	verifs   *verifActionsStub
	bands    *memberDirStub
	notifier *fakeNotifier
}

func newActionsHarness() *actionsHarness {
	h := &actionsHarness{
		payments: &paymentActionsStub{byID: map[string]*domain.ManualPayment{}},
		dons: &donationActionsStub{
			candidates: map[string]*domain.DonationCandidate{},
			series:     map[string]*domain.RecurringDonation{},
		},
		claims: &claimActionsStub{byID: map[string]*domain.ReimbursementClaim{}},
		verifs: &verifActionsStub{byID: map[string]*domain.VerificationItem{}},
		bands: &memberDirStub{
			band: &domain.Band{ID: "band_1", Name: "Rust Belt Revival", OwnerUserID: "owner_1"},
			members: []domain.BandMember{
				{BandID: "band_1", UserID: "owner_1", Role: domain.RoleOwner, Status: domain.MemberStatusActive},
				{BandID: "band_1", UserID: "treasurer_1", Role: domain.RoleTreasurer, Status: domain.MemberStatusActive},
				{BandID: "band_1", UserID: "member_2", Role: domain.RoleMember, Status: domain.MemberStatusActive},
			},
		},
		notifier: &fakeNotifier{},
	}
	h.actions = NewActions(testConfig(), h.payments, h.dons, h.claims, h.verifs, h.bands, h.notifier, testLogger())
	h.actions.now = func() time.Time { return sweepNow }
	return h
}

func TestSubmitManualPaymentArmsDeadline(t *testing.T) {
	h := newActionsHarness()

	p, err := h.actions.SubmitManualPayment(context.Background(), "member_2", SubmitPaymentInput{
		BandID:      "band_1",
		AmountCents: 2500,
		Method:      "cash",
	})
	if err != nil {
		t.Fatalf("SubmitManualPayment returned error: %v", err)
	}
	if p.Status != domain.PaymentPending {
		t.Errorf("status = %q, want pending", p.Status)
	}
	if !p.AutoConfirmAt.Equal(daysAhead(7)) {
		t.Errorf("auto confirm at = %v, want %v", p.AutoConfirmAt, daysAhead(7))
	}
	if p.Method == nil || *p.Method != "cash" {
		t.Error("payment method not recorded")
	}

	submitted := h.notifier.byType(domain.NotifPaymentSubmitted)
	recipients := map[string]bool{}
	for _, n := range submitted {
		recipients[n.UserID] = true
	}
	if !recipients["owner_1"] || !recipients["treasurer_1"] || recipients["member_2"] {
		t.Errorf("submission notices went to %v, want treasurers only", recipients)
	}
}

func TestSubmitManualPaymentValidation(t *testing.T) {
	h := newActionsHarness()

	if _, err := h.actions.SubmitManualPayment(context.Background(), "member_2", SubmitPaymentInput{AmountCents: 100}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("missing band error = %v, want ErrInvalidInput", err)
	}
	if _, err := h.actions.SubmitManualPayment(context.Background(), "member_2", SubmitPaymentInput{BandID: "band_1"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("zero amount error = %v, want ErrInvalidInput", err)
	}
	if _, err := h.actions.SubmitManualPayment(context.Background(), "stranger_9", SubmitPaymentInput{BandID: "band_1", AmountCents: 100}); !errors.Is(err, ErrNotAllowed) {
		t.Errorf("non-member error = %v, want ErrNotAllowed", err)
	}
}

func TestConfirmManualPaymentRequiresTreasurerRole(t *testing.T) {
	h := newActionsHarness()
	h.payments.byID["pay_1"] = &domain.ManualPayment{
		ID: "pay_1", BandID: "band_1", PayerUserID: "member_2", AmountCents: 2500, Status: domain.PaymentPending,
	}

	if _, err := h.actions.ConfirmManualPayment(context.Background(), "member_2", "pay_1"); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("plain member confirm error = %v, want ErrNotAllowed", err)
	}

	confirmed, err := h.actions.ConfirmManualPayment(context.Background(), "treasurer_1", "pay_1")
	if err != nil {
		t.Fatalf("treasurer confirm returned error: %v", err)
	}
	if confirmed.Status != domain.PaymentConfirmed {
		t.Errorf("status = %q, want confirmed", confirmed.Status)
	}
	if got := h.notifier.byType(domain.NotifPaymentConfirmed); len(got) != 1 || got[0].UserID != "member_2" {
		t.Errorf("confirmation notices = %+v, want one to the payer", got)
	}
}

func TestDisputeManualPaymentNotifiesPayer(t *testing.T) {
	h := newActionsHarness()
	h.payments.byID["pay_1"] = &domain.ManualPayment{
		ID: "pay_1", BandID: "band_1", PayerUserID: "member_2", AmountCents: 2500, Status: domain.PaymentPending,
	}

	if _, err := h.actions.DisputeManualPayment(context.Background(), "owner_1", "pay_1"); err != nil {
		t.Fatalf("DisputeManualPayment returned error: %v", err)
	}
	if len(h.payments.disputed) != 1 || h.payments.disputed[0] != "pay_1/owner_1" {
		t.Errorf("disputed = %v, want [pay_1/owner_1]", h.payments.disputed)
	}
	if got := h.notifier.byType(domain.NotifPaymentDisputed); len(got) != 1 || got[0].UserID != "member_2" {
		t.Errorf("dispute notices = %+v, want one to the payer", got)
	}
}

func TestCreateDonationPledgeDefaultsDueWindow(t *testing.T) {
	h := newActionsHarness()

	d, err := h.actions.CreateDonationPledge(context.Background(), "member_2", PledgeInput{
		BandID:       "band_1",
		AmountCents:  2000,
		ExpectedDate: daysAhead(14),
	})
	if err != nil {
		t.Fatalf("CreateDonationPledge returned error: %v", err)
	}
	if d.DueWindowDays != 7 {
		t.Errorf("due window = %d, want the configured default of 7", d.DueWindowDays)
	}
	if d.Status != domain.DonationExpected {
		t.Errorf("status = %q, want expected", d.Status)
	}

	if _, err := h.actions.CreateDonationPledge(context.Background(), "member_2", PledgeInput{BandID: "band_1", AmountCents: 2000}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("missing date error = %v, want ErrInvalidInput", err)
	}
}

func TestMarkDonationPledgePaidDonorOnly(t *testing.T) {
	h := newActionsHarness()
	h.dons.candidates["don_1"] = &domain.DonationCandidate{
		Donation: domain.Donation{ID: "don_1", BandID: "band_1", DonorUserID: "member_2", AmountCents: 2000, Status: domain.DonationExpected},
	}

	if _, err := h.actions.MarkDonationPledgePaid(context.Background(), "treasurer_1", "don_1"); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("non-donor error = %v, want ErrNotAllowed", err)
	}

	if _, err := h.actions.MarkDonationPledgePaid(context.Background(), "member_2", "don_1"); err != nil {
		t.Fatalf("donor mark paid returned error: %v", err)
	}
	paid := h.notifier.byType(domain.NotifDonationPledgePaid)
	recipients := map[string]bool{}
	for _, n := range paid {
		recipients[n.UserID] = true
	}
	if !recipients["owner_1"] || !recipients["treasurer_1"] {
		t.Errorf("pledge-paid notices went to %v, want treasurers", recipients)
	}
}

func TestConfirmDonationAdvancesActiveSeries(t *testing.T) {
	h := newActionsHarness()
	expected := daysAgo(3)
	h.dons.candidates["don_1"] = &domain.DonationCandidate{
		Donation: domain.Donation{
			ID: "don_1", BandID: "band_1", DonorUserID: "member_2",
			RecurringDonationID: strPtr("rec_1"), AmountCents: 2000,
			ExpectedDate: expected, DueWindowDays: 7, Status: domain.DonationPending,
		},
		Series: &domain.RecurringDonation{
			ID: "rec_1", BandID: "band_1", DonorUserID: "member_2", AmountCents: 2000,
			Frequency: domain.FrequencyMonthly, DayOfMonth: 15, DueWindowDays: 7,
			Status: domain.RecurringActive,
		},
	}

	if _, err := h.actions.ConfirmDonation(context.Background(), "treasurer_1", "don_1"); err != nil {
		t.Fatalf("ConfirmDonation returned error: %v", err)
	}
	next := h.dons.confirmNext
	if next == nil {
		t.Fatal("no next instance prepared for the active series")
	}
	wantDate := domain.NextDueDate(expected, domain.FrequencyMonthly, 15)
	if !next.ExpectedDate.Equal(wantDate) {
		t.Errorf("next expected date = %v, want %v", next.ExpectedDate, wantDate)
	}
	if got := h.notifier.byType(domain.NotifDonationConfirmed); len(got) != 1 || got[0].UserID != "member_2" {
		t.Errorf("confirmation notices = %+v, want one to the donor", got)
	}
}

func TestConfirmDonationPausedSeriesDoesNotAdvance(t *testing.T) {
	h := newActionsHarness()
	h.dons.candidates["don_1"] = &domain.DonationCandidate{
		Donation: domain.Donation{ID: "don_1", BandID: "band_1", DonorUserID: "member_2", AmountCents: 2000, Status: domain.DonationPending},
		Series:   &domain.RecurringDonation{ID: "rec_1", Status: domain.RecurringPaused},
	}

	if _, err := h.actions.ConfirmDonation(context.Background(), "owner_1", "don_1"); err != nil {
		t.Fatalf("ConfirmDonation returned error: %v", err)
	}
	if h.dons.confirmNext != nil {
		t.Error("prepared a next instance for a paused series")
	}
}

func TestRejectDonationRequiresTreasurerRole(t *testing.T) {
	h := newActionsHarness()
	h.dons.candidates["don_1"] = &domain.DonationCandidate{
		Donation: domain.Donation{ID: "don_1", BandID: "band_1", DonorUserID: "member_2", AmountCents: 2000, Status: domain.DonationPending},
	}

	if _, err := h.actions.RejectDonation(context.Background(), "member_2", "don_1"); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("plain member reject error = %v, want ErrNotAllowed", err)
	}
	if _, err := h.actions.RejectDonation(context.Background(), "treasurer_1", "don_1"); err != nil {
		t.Fatalf("treasurer reject returned error: %v", err)
	}
	if got := h.notifier.byType(domain.NotifDonationRejected); len(got) != 1 || got[0].UserID != "member_2" {
		t.Errorf("rejection notices = %+v, want one to the donor", got)
	}
}

func TestCancelDonationDonorOnly(t *testing.T) {
	h := newActionsHarness()
	h.dons.candidates["don_1"] = &domain.DonationCandidate{
		Donation: domain.Donation{ID: "don_1", BandID: "band_1", DonorUserID: "member_2", Status: domain.DonationExpected},
	}

	if _, err := h.actions.CancelDonation(context.Background(), "owner_1", "don_1"); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("non-donor cancel error = %v, want ErrNotAllowed", err)
	}
	if _, err := h.actions.CancelDonation(context.Background(), "member_2", "don_1"); err != nil {
		t.Fatalf("donor cancel returned error: %v", err)
	}
	if len(h.dons.cancelled) != 1 || h.dons.cancelled[0] != "don_1/member_2" {
		t.Errorf("cancelled = %v, want [don_1/member_2]", h.dons.cancelled)
	}
}

func TestCreateRecurringDonation(t *testing.T) {
	h := newActionsHarness()
	start := time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC)

	series, err := h.actions.CreateRecurringDonation(context.Background(), "member_2", RecurringInput{
		BandID:      "band_1",
		AmountCents: 2000,
		Frequency:   domain.FrequencyMonthly,
		StartDate:   start,
	})
	if err != nil {
		t.Fatalf("CreateRecurringDonation returned error: %v", err)
	}
	if series.DayOfMonth != 12 {
		t.Errorf("day of month = %d, want the start date's day", series.DayOfMonth)
	}
	if series.Status != domain.RecurringActive {
		t.Errorf("status = %q, want active", series.Status)
	}

	first := h.dons.createdFirst
	if first == nil {
		t.Fatal("no first instance created with the series")
	}
	if !first.ExpectedDate.Equal(start) {
		t.Errorf("first expected date = %v, want the start date", first.ExpectedDate)
	}
	if first.DueWindowDays != 7 {
		t.Errorf("first due window = %d, want the configured default of 7", first.DueWindowDays)
	}
}

func TestCreateRecurringDonationRejectsUnknownFrequency(t *testing.T) {
	h := newActionsHarness()

	_, err := h.actions.CreateRecurringDonation(context.Background(), "member_2", RecurringInput{
		BandID:      "band_1",
		AmountCents: 2000,
		Frequency:   "fortnightly",
		StartDate:   daysAhead(1),
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput", err)
	}
}

func TestRecurringSeriesActionsDonorOnly(t *testing.T) {
	h := newActionsHarness()
	h.dons.series["rec_1"] = &domain.RecurringDonation{
		ID: "rec_1", BandID: "band_1", DonorUserID: "member_2", AmountCents: 2000,
		Frequency: domain.FrequencyMonthly, DayOfMonth: 15, DueWindowDays: 7,
		Status: domain.RecurringPaused,
	}

	if _, err := h.actions.PauseRecurringDonation(context.Background(), "owner_1", "rec_1"); !errors.Is(err, ErrNotAllowed) {
		t.Errorf("non-donor pause error = %v, want ErrNotAllowed", err)
	}
	if _, err := h.actions.CancelRecurringDonation(context.Background(), "treasurer_1", "rec_1"); !errors.Is(err, ErrNotAllowed) {
		t.Errorf("non-donor cancel error = %v, want ErrNotAllowed", err)
	}

	if _, err := h.actions.ResumeRecurringDonation(context.Background(), "member_2", "rec_1"); err != nil {
		t.Fatalf("donor resume returned error: %v", err)
	}
	next := h.dons.resumeNext
	if next == nil {
		t.Fatal("no next instance prepared on resume")
	}
	wantDate := domain.NextDueDate(sweepNow, domain.FrequencyMonthly, 15)
	if !next.ExpectedDate.Equal(wantDate) {
		t.Errorf("resumed next date = %v, want %v scheduled from the resume time", next.ExpectedDate, wantDate)
	}
}

func TestSubmitReimbursementClaimNotifiesTreasurers(t *testing.T) {
	h := newActionsHarness()

	c, err := h.actions.SubmitReimbursementClaim(context.Background(), "member_2", ClaimInput{
		BandID:      "band_1",
		AmountCents: 8000,
		Description: "Van rental for the festival run",
	})
	if err != nil {
		t.Fatalf("SubmitReimbursementClaim returned error: %v", err)
	}
	if c.Status != domain.ClaimPending {
		t.Errorf("status = %q, want pending", c.Status)
	}

	submitted := h.notifier.byType(domain.NotifClaimSubmitted)
	recipients := map[string]bool{}
	for _, n := range submitted {
		recipients[n.UserID] = true
	}
	if !recipients["owner_1"] || !recipients["treasurer_1"] {
		t.Errorf("claim notices went to %v, want treasurers", recipients)
	}
}

func TestMarkReimbursementSentArmsDeadline(t *testing.T) {
	h := newActionsHarness()
	h.claims.byID["claim_1"] = &domain.ReimbursementClaim{
		ID: "claim_1", BandID: "band_1", RecipientUserID: "member_2", AmountCents: 8000, Status: domain.ClaimPending,
	}

	if _, err := h.actions.MarkReimbursementSent(context.Background(), "member_2", "claim_1"); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("plain member error = %v, want ErrNotAllowed", err)
	}

	sent, err := h.actions.MarkReimbursementSent(context.Background(), "treasurer_1", "claim_1")
	if err != nil {
		t.Fatalf("MarkReimbursementSent returned error: %v", err)
	}
	if !h.claims.sentDeadline.Equal(daysAhead(7)) {
		t.Errorf("auto confirm deadline = %v, want %v", h.claims.sentDeadline, daysAhead(7))
	}
	if sent.ReimbursedBy == nil || *sent.ReimbursedBy != "treasurer_1" {
		t.Error("reimbursing treasurer not recorded")
	}
	if got := h.notifier.byType(domain.NotifClaimSent); len(got) != 1 || got[0].UserID != "member_2" {
		t.Errorf("sent notices = %+v, want one to the recipient", got)
	}
}

func TestConfirmReimbursementRecipientOnly(t *testing.T) {
	h := newActionsHarness()
	h.claims.byID["claim_1"] = &domain.ReimbursementClaim{
		ID: "claim_1", BandID: "band_1", RecipientUserID: "member_2", AmountCents: 8000,
		Status: domain.ClaimReimbursed, ReimbursedBy: strPtr("treasurer_1"),
	}

	if _, err := h.actions.ConfirmReimbursement(context.Background(), "treasurer_1", "claim_1"); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("non-recipient confirm error = %v, want ErrNotAllowed", err)
	}

	if _, err := h.actions.ConfirmReimbursement(context.Background(), "member_2", "claim_1"); err != nil {
		t.Fatalf("recipient confirm returned error: %v", err)
	}
	if got := h.notifier.byType(domain.NotifClaimConfirmed); len(got) != 1 || got[0].UserID != "treasurer_1" {
		t.Errorf("confirmation notices = %+v, want one to the reimbursing treasurer", got)
	}
}

func TestDisputeReimbursementNotifiesTreasurers(t *testing.T) {
	h := newActionsHarness()
	h.claims.byID["claim_1"] = &domain.ReimbursementClaim{
		ID: "claim_1", BandID: "band_1", RecipientUserID: "member_2", AmountCents: 8000,
		Status: domain.ClaimReimbursed, ReimbursedBy: strPtr("treasurer_1"),
	}

	if _, err := h.actions.DisputeReimbursement(context.Background(), "member_2", "claim_1"); err != nil {
		t.Fatalf("DisputeReimbursement returned error: %v", err)
	}
	disputed := h.notifier.byType(domain.NotifClaimDisputed)
	recipients := map[string]bool{}
	for _, n := range disputed {
		recipients[n.UserID] = true
	}
	if !recipients["owner_1"] || !recipients["treasurer_1"] {
		t.Errorf("dispute notices went to %v, want treasurers", recipients)
	}
}

func TestSubmitForVerificationTaskAssigneeOnly(t *testing.T) {
	h := newActionsHarness()
	h.verifs.byID["task/task_1"] = &domain.VerificationItem{
		Kind: domain.VerificationKindTask, ID: "task_1", BandID: "band_1",
		Title: "Book the venue", AssigneeUserID: strPtr("member_2"),
	}

	if _, err := h.actions.SubmitForVerification(context.Background(), "owner_1", domain.VerificationKindTask, "task_1"); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("non-assignee submit error = %v, want ErrNotAllowed", err)
	}
	if _, err := h.actions.SubmitForVerification(context.Background(), "member_2", domain.VerificationKindTask, "task_1"); err != nil {
		t.Fatalf("assignee submit returned error: %v", err)
	}
	if _, err := h.actions.SubmitForVerification(context.Background(), "member_2", "milestone", "task_1"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("unknown kind error = %v, want ErrInvalidInput", err)
	}
}

func TestSubmitChecklistItemAnyMember(t *testing.T) {
	h := newActionsHarness()
	h.verifs.byID["checklist_item/chk_1"] = &domain.VerificationItem{
		Kind: domain.VerificationKindChecklistItem, ID: "chk_1", BandID: "band_1", Title: "Verify rider",
	}

	if _, err := h.actions.SubmitForVerification(context.Background(), "member_2", domain.VerificationKindChecklistItem, "chk_1"); err != nil {
		t.Fatalf("member submit returned error: %v", err)
	}
	if _, err := h.actions.SubmitForVerification(context.Background(), "stranger_9", domain.VerificationKindChecklistItem, "chk_1"); !errors.Is(err, ErrNotAllowed) {
		t.Errorf("non-member submit error = %v, want ErrNotAllowed", err)
	}
}

func TestApproveVerificationRequiresVerifierRole(t *testing.T) {
	h := newActionsHarness()
	h.verifs.byID["task/task_1"] = &domain.VerificationItem{
		Kind: domain.VerificationKindTask, ID: "task_1", BandID: "band_1",
		Title: "Book the venue", AssigneeUserID: strPtr("member_2"),
		CompletedAt: timePtr(daysAgo(1)), Status: domain.VerificationPending,
	}

	if _, err := h.actions.ApproveVerification(context.Background(), "member_2", domain.VerificationKindTask, "task_1"); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("plain member approve error = %v, want ErrNotAllowed", err)
	}
	if _, err := h.actions.ApproveVerification(context.Background(), "treasurer_1", domain.VerificationKindTask, "task_1"); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("treasurer approve error = %v, want ErrNotAllowed", err)
	}

	approved, err := h.actions.ApproveVerification(context.Background(), "owner_1", domain.VerificationKindTask, "task_1")
	if err != nil {
		t.Fatalf("owner approve returned error: %v", err)
	}
	if approved.Status != domain.VerificationApproved {
		t.Errorf("status = %q, want approved", approved.Status)
	}
	if got := h.notifier.byType(domain.NotifVerificationApproved); len(got) != 1 || got[0].UserID != "member_2" {
		t.Errorf("approval notices = %+v, want one to the assignee", got)
	}
}

func TestRejectVerificationNotifiesAssignee(t *testing.T) {
	h := newActionsHarness()
	h.verifs.byID["task/task_1"] = &domain.VerificationItem{
		Kind: domain.VerificationKindTask, ID: "task_1", BandID: "band_1",
		Title: "Book the venue", AssigneeUserID: strPtr("member_2"),
		CompletedAt: timePtr(daysAgo(1)), Status: domain.VerificationPending,
	}

	if _, err := h.actions.RejectVerification(context.Background(), "owner_1", domain.VerificationKindTask, "task_1"); err != nil {
		t.Fatalf("RejectVerification returned error: %v", err)
	}
	if len(h.verifs.rejected) != 1 {
		t.Fatalf("rejected = %v, want one rejection", h.verifs.rejected)
	}
	if got := h.notifier.byType(domain.NotifVerificationRejected); len(got) != 1 || got[0].UserID != "member_2" {
		t.Errorf("rejection notices = %+v, want one to the assignee", got)
	}
}

func TestUnclaimTaskDelegatesToStore(t *testing.T) {
	h := newActionsHarness()
	h.verifs.byID["task/task_1"] = &domain.VerificationItem{
		Kind: domain.VerificationKindTask, ID: "task_1", BandID: "band_1",
		Title: "Book the venue", AssigneeUserID: strPtr("member_2"),
	}

	if _, err := h.actions.UnclaimTask(context.Background(), "member_2", "task_1"); err != nil {
		t.Fatalf("UnclaimTask returned error: %v", err)
	}
	if len(h.verifs.unclaimed) != 1 || h.verifs.unclaimed[0] != "task_1/member_2" {
		t.Errorf("unclaimed = %v, want [task_1/member_2]", h.verifs.unclaimed)
	}
}
