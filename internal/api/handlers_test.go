/**
 * @description
 * Tests for the HTTP handlers: error-to-status mapping, the internal sweep
 * and audit endpoints through the full router, and the member action
 * endpoints with the action service backed by in-memory stubs.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ebardia/band-it-sub000/internal/app"
	"github.com/ebardia/band-it-sub000/internal/config"
	"github.com/ebardia/band-it-sub000/internal/domain"
	"github.com/ebardia/band-it-sub000/internal/store"
)

type sweepRunnerStub struct {
	ran    []string
	result *app.SweepResult
	err    error
}

func (s *sweepRunnerStub) Run(ctx context.Context, job string) (*app.SweepResult, error) {
	s.ran = append(s.ran, job)
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &app.SweepResult{Job: job}, nil
}

func (s *sweepRunnerStub) JobNames() []string {
	return []string{app.JobDonationLifecycle, app.JobGracePeriod}
}

type auditListerStub struct {
	filter  store.AuditFilter
	entries []domain.AuditEntry
	err     error
}

func (s *auditListerStub) List(ctx context.Context, f store.AuditFilter) ([]domain.AuditEntry, error) {
	s.filter = f
	return s.entries, s.err
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{app.ErrInvalidInput, http.StatusBadRequest},
		{fmt.Errorf("amount: %w", app.ErrInvalidInput), http.StatusBadRequest},
		{app.ErrNotAllowed, http.StatusForbidden},
		{store.ErrStageConflict, http.StatusConflict},
		{store.ErrPaymentNotFound, http.StatusNotFound},
		{store.ErrSubscriptionNotFound, http.StatusNotFound},
		{store.ErrClaimNotFound, http.StatusNotFound},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusForError(tc.err); got != tc.want {
			t.Errorf("statusForError(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func internalRequest(method, target, key string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	if key != "" {
		req.Header.Set("X-Internal-API-Key", key)
	}
	return req
}

func newInternalHarness(t *testing.T, runner SweepRunner, audits AuditLister) *chi.Mux {
	t.Helper()
	cfg := config.Config{
		InternalAPIKey:        "internal-key",
		ClerkJWKSURL:          "http://127.0.0.1:0/jwks",
		DonationSweepSchedule: "0 3 * * *",
	}
	h := NewHandlers(runner, nil, audits, cfg, testLogger())
	wh := NewWebhookHandler(&sinkStub{}, webhookSecret, testLogger())
	t.Cleanup(wh.Close)
	return NewRouter(h, wh, cfg)
}

func TestListJobsEndpoint(t *testing.T) {
	router := newInternalHarness(t, &sweepRunnerStub{}, &auditListerStub{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, internalRequest(http.MethodGet, "/internal/lifecycle/sweeps", "internal-key"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Jobs []struct {
			Job      string `json:"job"`
			Schedule string `json:"schedule"`
		} `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Jobs) != 2 || resp.Jobs[0].Job != app.JobDonationLifecycle {
		t.Errorf("jobs = %v, want the runner's names", resp.Jobs)
	}
	if resp.Jobs[0].Schedule != "0 3 * * *" {
		t.Errorf("schedule = %q, want the configured cron expression", resp.Jobs[0].Schedule)
	}
}

func TestTriggerSweepEndpoint(t *testing.T) {
	runner := &sweepRunnerStub{result: &app.SweepResult{Job: app.JobGracePeriod, Found: 3, Processed: 3, Succeeded: 2, Failed: 1}}
	router := newInternalHarness(t, runner, &auditListerStub{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, internalRequest(http.MethodPost, "/internal/lifecycle/sweeps/"+app.JobGracePeriod+"/run", "internal-key"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(runner.ran) != 1 || runner.ran[0] != app.JobGracePeriod {
		t.Fatalf("ran = %v, want [%s]", runner.ran, app.JobGracePeriod)
	}
	var result app.SweepResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.Found != 3 || result.Succeeded != 2 {
		t.Errorf("result = %+v, want the runner's counts", &result)
	}
}

func TestTriggerSweepUnknownJob(t *testing.T) {
	runner := &sweepRunnerStub{}
	router := newInternalHarness(t, runner, &auditListerStub{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, internalRequest(http.MethodPost, "/internal/lifecycle/sweeps/defrag_disk/run", "internal-key"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if len(runner.ran) != 0 {
		t.Errorf("unknown job was run: %v", runner.ran)
	}
}

func TestInternalEndpointsRequireKey(t *testing.T) {
	router := newInternalHarness(t, &sweepRunnerStub{}, &auditListerStub{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, internalRequest(http.MethodGet, "/internal/lifecycle/sweeps", ""))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing key: status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, internalRequest(http.MethodGet, "/internal/lifecycle/sweeps", "wrong"))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", rec.Code)
	}
}

func TestListAuditEndpoint(t *testing.T) {
	audits := &auditListerStub{entries: []domain.AuditEntry{{ID: "aud_1", Action: "auto_confirmed"}}}
	router := newInternalHarness(t, &sweepRunnerStub{}, audits)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, internalRequest(http.MethodGet, "/internal/lifecycle/audit?entity_kind=donation&entity_id=don_1&limit=25", "internal-key"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	want := store.AuditFilter{EntityKind: "donation", EntityID: "don_1", Limit: 25}
	if audits.filter != want {
		t.Errorf("filter = %+v, want %+v", audits.filter, want)
	}
	var resp struct {
		Entries []domain.AuditEntry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].ID != "aud_1" {
		t.Errorf("entries = %+v, want the stub's entry", resp.Entries)
	}
}

func TestListAuditRejectsBadLimit(t *testing.T) {
	router := newInternalHarness(t, &sweepRunnerStub{}, &auditListerStub{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, internalRequest(http.MethodGet, "/internal/lifecycle/audit?limit=many", "internal-key"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// Action endpoint fixtures. The action service runs for real; only the store,
// member directory, and notifier are stubbed.

type memberDirStub struct {
	roles map[string]string
}

func (m *memberDirStub) GetBand(ctx context.Context, id string) (*domain.Band, error) {
	return &domain.Band{ID: id, Name: "Rust Belt Revival", OwnerUserID: "owner_1"}, nil
}

func (m *memberDirStub) ListActiveMembers(ctx context.Context, bandID string) ([]domain.BandMember, error) {
	return nil, nil
}

func (m *memberDirStub) ListMembersByRole(ctx context.Context, bandID string, roles []string) ([]domain.BandMember, error) {
	var out []domain.BandMember
	for userID, role := range m.roles {
		if domain.HasRole(role, roles) {
			out = append(out, domain.BandMember{BandID: bandID, UserID: userID, Role: role, Status: domain.MemberStatusActive})
		}
	}
	return out, nil
}

func (m *memberDirStub) GetMemberRole(ctx context.Context, bandID, userID string) (string, error) {
	role, ok := m.roles[userID]
	if !ok {
		return "", store.ErrMemberNotFound
	}
	return role, nil
}

func (m *memberDirStub) ListPlatformAdminIDs(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (m *memberDirStub) IsInGoodStanding(ctx context.Context, bandID, userID string) (bool, error) {
	return true, nil
}

type notifierStub struct {
	notes []app.NotifyParams
}

func (n *notifierStub) Notify(ctx context.Context, p app.NotifyParams) (*domain.Notification, error) {
	n.notes = append(n.notes, p)
	return &domain.Notification{}, nil
}

func (n *notifierStub) SendEmail(ctx context.Context, userID, template, subject, body string, metadata map[string]string) {
}

type paymentStoreStub struct {
	byID      map[string]*domain.ManualPayment
	confirmed []string
}

func (s *paymentStoreStub) Create(ctx context.Context, p *domain.ManualPayment) error {
	p.ID = "pay_new"
	return nil
}

func (s *paymentStoreStub) GetByID(ctx context.Context, id string) (*domain.ManualPayment, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, store.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *paymentStoreStub) Confirm(ctx context.Context, id, actorID string, now time.Time) (*domain.ManualPayment, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, store.ErrPaymentNotFound
	}
	s.confirmed = append(s.confirmed, id)
	cp := *p
	cp.Status = domain.PaymentConfirmed
	return &cp, nil
}

func (s *paymentStoreStub) Dispute(ctx context.Context, id, actorID string, now time.Time) (*domain.ManualPayment, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, store.ErrPaymentNotFound
	}
	cp := *p
	cp.Status = domain.PaymentDisputed
	return &cp, nil
}

type actionRouterHarness struct {
	router   *chi.Mux
	payments *paymentStoreStub
	notifier *notifierStub
}

// newActionRouter mounts the payment routes without the auth middleware; the
// tests place the user ID on the request context directly.
func newActionRouter(t *testing.T) *actionRouterHarness {
	t.Helper()
	payments := &paymentStoreStub{byID: map[string]*domain.ManualPayment{
		"pay_1": {ID: "pay_1", BandID: "band_1", PayerUserID: "member_2", AmountCents: 5000, Status: domain.PaymentPending},
	}}
	bands := &memberDirStub{roles: map[string]string{
		"owner_1":     domain.RoleOwner,
		"treasurer_1": domain.RoleTreasurer,
		"member_2":    domain.RoleMember,
	}}
	notifier := &notifierStub{}
	actions := app.NewActions(config.Config{}, payments, nil, nil, nil, bands, notifier, testLogger())
	h := NewHandlers(&sweepRunnerStub{}, actions, &auditListerStub{}, config.Config{}, testLogger())

	r := chi.NewRouter()
	r.Post("/payments", h.handleSubmitPayment)
	r.Post("/payments/{paymentID}/confirm", h.handleConfirmPayment)
	r.Post("/payments/{paymentID}/dispute", h.handleDisputePayment)
	return &actionRouterHarness{router: r, payments: payments, notifier: notifier}
}

func actionRequest(method, target, user, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if user != "" {
		req = req.WithContext(context.WithValue(req.Context(), clerkUserIDKey, user))
	}
	return req
}

func TestSubmitPaymentEndpoint(t *testing.T) {
	h := newActionRouter(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, actionRequest(http.MethodPost, "/payments", "member_2",
		`{"band_id":"band_1","amount_cents":5000,"method":"venmo"}`))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var p domain.ManualPayment
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to decode payment: %v", err)
	}
	if p.ID != "pay_new" || p.Status != domain.PaymentPending {
		t.Errorf("payment = %+v, want the created pending payment", p)
	}
	if p.AutoConfirmAt.IsZero() {
		t.Error("auto-confirm deadline was not set")
	}
	if len(h.notifier.notes) == 0 {
		t.Error("treasurers were not notified of the submission")
	}
}

func TestSubmitPaymentRejectsBadJSON(t *testing.T) {
	h := newActionRouter(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, actionRequest(http.MethodPost, "/payments", "member_2", `{"band_id":`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitPaymentRequiresAuth(t *testing.T) {
	h := newActionRouter(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, actionRequest(http.MethodPost, "/payments", "",
		`{"band_id":"band_1","amount_cents":5000}`))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestConfirmPaymentEndpointAuthorization(t *testing.T) {
	h := newActionRouter(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, actionRequest(http.MethodPost, "/payments/pay_1/confirm", "member_2", ""))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member confirm: status = %d, want 403", rec.Code)
	}
	if len(h.payments.confirmed) != 0 {
		t.Fatal("store confirm ran for a non-treasurer")
	}

	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, actionRequest(http.MethodPost, "/payments/pay_1/confirm", "treasurer_1", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("treasurer confirm: status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var p domain.ManualPayment
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to decode payment: %v", err)
	}
	if p.Status != domain.PaymentConfirmed {
		t.Errorf("status = %q, want %q", p.Status, domain.PaymentConfirmed)
	}
}

func TestConfirmPaymentUnknownID(t *testing.T) {
	h := newActionRouter(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, actionRequest(http.MethodPost, "/payments/pay_missing/confirm", "treasurer_1", ""))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}
