/**
 * @description
 * Sweep runner for the lifecycle engine. Each sweep lists candidate rows with
 * one query, fans the per-row work out to a bounded worker pool, and records
 * counts on a SweepResult. The same entry point serves the cron scheduler and
 * the manual trigger endpoints; only error propagation differs between them.
 */
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ebardia/band-it-sub000/internal/config"
	"github.com/ebardia/band-it-sub000/internal/domain"
	"github.com/ebardia/band-it-sub000/internal/metrics"
	"github.com/ebardia/band-it-sub000/pkg/rabbitmq"
)

// Job names, used for scheduling, manual triggers, logging, and metrics.
const (
	JobGracePeriod              = "subscription_grace_period"
	JobPaymentAutoConfirm       = "manual_payment_autoconfirm"
	JobDonationLifecycle        = "donation_lifecycle"
	JobReimbursementAutoConfirm = "reimbursement_autoconfirm"
	JobVerificationEscalation   = "verification_escalation"
)

const day = 24 * time.Hour

// SubscriptionStore defines subscription operations needed by the jobs.
type SubscriptionStore interface {
	GetByProviderSubscriptionID(ctx context.Context, providerID string) (*domain.Subscription, error)
	MarkPaymentFailed(ctx context.Context, id string, failedAt, graceEndsAt time.Time) (*domain.Subscription, error)
	MarkPaymentRecovered(ctx context.Context, id string) (*domain.Subscription, error)
	ListLapsedPastDue(ctx context.Context, now time.Time) ([]domain.Subscription, error)
	Deactivate(ctx context.Context, id string, now time.Time) (*domain.Subscription, error)
}

// PaymentStore defines manual payment operations needed by the jobs.
type PaymentStore interface {
	ListPendingAutoConfirm(ctx context.Context, horizon time.Time) ([]domain.ManualPayment, error)
	MarkWarned(ctx context.Context, id string) (bool, error)
	AutoConfirm(ctx context.Context, id string, now time.Time) (*domain.ManualPayment, error)
}

// DonationStore defines donation operations needed by the jobs.
type DonationStore interface {
	ListActionable(ctx context.Context, horizon time.Time) ([]domain.DonationCandidate, error)
	MarkDueReminded(ctx context.Context, id string, now time.Time) (bool, error)
	MarkOverdueReminded(ctx context.Context, id string, now time.Time) (bool, error)
	ResolveMissed(ctx context.Context, id string, now time.Time, maxMissed int, next *domain.Donation) (*domain.MissedOutcome, error)
}

// ClaimStore defines reimbursement operations needed by the jobs.
type ClaimStore interface {
	ListReimbursedAutoConfirm(ctx context.Context, horizon time.Time) ([]domain.ReimbursementClaim, error)
	MarkWarned(ctx context.Context, id string) (bool, error)
	AutoConfirm(ctx context.Context, id string, now time.Time) (*domain.ReimbursementClaim, error)
}

// VerificationStore defines verification operations needed by the jobs.
type VerificationStore interface {
	ListPendingVerification(ctx context.Context, kind string, cutoff time.Time) ([]domain.VerificationItem, error)
	MarkReminded(ctx context.Context, kind, id string, now time.Time) (bool, error)
	MarkEscalated(ctx context.Context, kind, id string, now time.Time) (bool, error)
	AutoApprove(ctx context.Context, kind, id string, now, cutoff time.Time) (*domain.VerificationItem, error)
}

// MemberDirectory resolves bands, their members, and member standing.
type MemberDirectory interface {
	GetBand(ctx context.Context, id string) (*domain.Band, error)
	ListActiveMembers(ctx context.Context, bandID string) ([]domain.BandMember, error)
	ListMembersByRole(ctx context.Context, bandID string, roles []string) ([]domain.BandMember, error)
	GetMemberRole(ctx context.Context, bandID, userID string) (string, error)
	ListPlatformAdminIDs(ctx context.Context) ([]string, error)
	IsInGoodStanding(ctx context.Context, bandID, userID string) (bool, error)
}

// BillingClient defines the calls made to the external billing provider.
type BillingClient interface {
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

// Notifier delivers in-app notifications and email requests.
type Notifier interface {
	Notify(ctx context.Context, p NotifyParams) (*domain.Notification, error)
	SendEmail(ctx context.Context, userID, template, subject, body string, metadata map[string]string)
}

// Stores bundles the repositories the jobs consume.
type Stores struct {
	Subscriptions SubscriptionStore
	Payments      PaymentStore
	Donations     DonationStore
	Claims        ClaimStore
	Verifications VerificationStore
	Bands         MemberDirectory
}

// SweepResult summarizes one sweep run. Row workers update it concurrently.
type SweepResult struct {
	Job       string   `json:"job"`
	Found     int      `json:"found"`
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`

	mu sync.Mutex
}

func (r *SweepResult) success() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Processed++
	r.Succeeded++
}

// skip records a row that needed no action this pass, either because no tier
// applied or because a concurrent pass claimed it first.
func (r *SweepResult) skip() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Processed++
	r.Skipped++
}

func (r *SweepResult) failure(rowID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Processed++
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", rowID, err))
}

// Jobs contains the logic for all scheduled sweeps.
type Jobs struct {
	cfg      config.Config
	logger   *slog.Logger
	retrier  *Retrier
	subs     SubscriptionStore
	payments PaymentStore
	dons     DonationStore
	claims   ClaimStore
	verifs   VerificationStore
	bands    MemberDirectory
	billing  BillingClient
	notifier Notifier
	producer rabbitmq.Publisher

	// now is swappable in tests.
	now func() time.Time
}

// NewJobs creates the sweep runner.
func NewJobs(cfg config.Config, stores Stores, billing BillingClient, notifier Notifier, producer rabbitmq.Publisher, retrier *Retrier, logger *slog.Logger) *Jobs {
	return &Jobs{
		cfg:      cfg,
		logger:   logger,
		retrier:  retrier,
		subs:     stores.Subscriptions,
		payments: stores.Payments,
		dons:     stores.Donations,
		claims:   stores.Claims,
		verifs:   stores.Verifications,
		bands:    stores.Bands,
		billing:  billing,
		notifier: notifier,
		producer: producer,
		now:      time.Now,
	}
}

type sweepFn func(ctx context.Context) (*SweepResult, error)

func (j *Jobs) registry() map[string]sweepFn {
	return map[string]sweepFn{
		JobGracePeriod:              j.RunGracePeriodSweep,
		JobPaymentAutoConfirm:       j.RunPaymentAutoConfirmSweep,
		JobDonationLifecycle:        j.RunDonationLifecycleSweep,
		JobReimbursementAutoConfirm: j.RunReimbursementAutoConfirmSweep,
		JobVerificationEscalation:   j.RunVerificationEscalationSweep,
	}
}

// JobNames lists the registered job names in stable order.
func (j *Jobs) JobNames() []string {
	names := make([]string, 0, len(j.registry()))
	for name := range j.registry() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes one job by name through the retry executor. Unknown names fail
// fast. The returned result reflects the final attempt.
func (j *Jobs) Run(ctx context.Context, job string) (*SweepResult, error) {
	fn, ok := j.registry()[job]
	if !ok {
		return nil, fmt.Errorf("unknown job %q", job)
	}

	start := time.Now()
	var result *SweepResult
	err := j.retrier.Execute(ctx, job, func(ctx context.Context) error {
		var runErr error
		result, runErr = fn(ctx)
		return runErr
	})
	metrics.SweepDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.SweepRuns.WithLabelValues(job, "error").Inc()
		return result, err
	}

	metrics.SweepRuns.WithLabelValues(job, "ok").Inc()
	metrics.SweepRows.WithLabelValues(job, "succeeded").Add(float64(result.Succeeded))
	metrics.SweepRows.WithLabelValues(job, "skipped").Add(float64(result.Skipped))
	metrics.SweepRows.WithLabelValues(job, "failed").Add(float64(result.Failed))
	j.logger.Info("sweep completed",
		"job", job,
		"found", result.Found,
		"processed", result.Processed,
		"succeeded", result.Succeeded,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

// CronHandler returns the closure the scheduler invokes for a job. Errors are
// logged and swallowed so a failing sweep never takes the scheduler down.
func (j *Jobs) CronHandler(job string) func() {
	return func() {
		j.logger.Info("starting scheduled sweep", "job", job)
		if _, err := j.Run(context.Background(), job); err != nil {
			j.logger.Error("sweep failed", "job", job, "error", err)
		}
	}
}

// forEachRow fans row work out to the bounded worker pool and waits for all
// of it. Workers record row failures on the result themselves, so one bad row
// cannot abort the batch.
func (j *Jobs) forEachRow(n int, work func(i int)) {
	g := new(errgroup.Group)
	g.SetLimit(j.workerLimit())
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			work(i)
			return nil
		})
	}
	_ = g.Wait()
}

func (j *Jobs) workerLimit() int {
	if j.cfg.SweepWorkerCount > 0 {
		return j.cfg.SweepWorkerCount
	}
	return 4
}

func (j *Jobs) maxMissed() int {
	if j.cfg.MaxMissedBeforeCancel > 0 {
		return j.cfg.MaxMissedBeforeCancel
	}
	return domain.MaxMissedBeforeCancel
}

// publishEvent sends a lifecycle event. Fire and forget: the database is the
// source of truth and consumers tolerate gaps, so publish failures only log.
func (j *Jobs) publishEvent(ctx context.Context, routingKey string, event interface{}) {
	if j.producer == nil {
		return
	}
	if err := j.producer.Publish(ctx, domain.EventsExchange, routingKey, event); err != nil {
		j.logger.Error("failed to publish lifecycle event", "routing_key", routingKey, "error", err)
	}
}

// notifyUser delivers one notification, logging failures instead of
// propagating them. Notification trouble never fails a lifecycle transition.
func (j *Jobs) notifyUser(ctx context.Context, p NotifyParams) {
	if _, err := j.notifier.Notify(ctx, p); err != nil {
		j.logger.Error("failed to notify user", "user_id", p.UserID, "type", p.Type, "error", err)
	}
}

// notifyRole delivers a notification to every active holder of the given
// roles in a band, optionally with a matching email.
func (j *Jobs) notifyRole(ctx context.Context, bandID string, roles []string, p NotifyParams, email bool) {
	members, err := j.bands.ListMembersByRole(ctx, bandID, roles)
	if err != nil {
		j.logger.Error("failed to list members by role", "band_id", bandID, "error", err)
		return
	}
	tpl := notifTemplates[p.Type]
	for _, m := range members {
		p.UserID = m.UserID
		p.BandID = bandID
		j.notifyUser(ctx, p)
		if email {
			j.notifier.SendEmail(ctx, m.UserID, p.Type, tpl.Title, tpl.Message, p.Metadata)
		}
	}
}

func formatAmount(cents int64) string {
	return fmt.Sprintf("$%.2f", float64(cents)/100)
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}
