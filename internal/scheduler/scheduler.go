package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	calljobdomain "github.com/smallbiznis/recova/internal/calljob/domain"
	checkoutdomain "github.com/smallbiznis/recova/internal/checkout/domain"
	"github.com/smallbiznis/recova/internal/clock"
	obsmetrics "github.com/smallbiznis/recova/internal/observability/metrics"
	"github.com/smallbiznis/recova/internal/scheduler/guard"
	"github.com/smallbiznis/recova/internal/scheduler/window"
	settingsdomain "github.com/smallbiznis/recova/internal/settings/domain"
	"github.com/smallbiznis/recova/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Checkouts   checkoutdomain.Repository
	CallJobs    calljobdomain.Repository
	SettingsSvc settingsdomain.Service
	Config      Config `optional:"true"`
}

// Scheduler runs the abandonment detector and the call enqueue loop.
type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         Config
	genID       *snowflake.Node
	clock       clock.Clock
	checkouts   checkoutdomain.Repository
	callJobs    calljobdomain.Repository
	settingsSvc settingsdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Checkouts == nil || p.CallJobs == nil || p.SettingsSvc == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Scheduler{
		db:          p.DB,
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         cfg,
		genID:       p.GenID,
		clock:       p.Clock,
		checkouts:   p.Checkouts,
		callJobs:    p.CallJobs,
		settingsSvc: p.SettingsSvc,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(run)
	}
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(run)
	}
	if err == nil {
		return nil
	}

	// A deadline is a soft timeout: the next tick picks the work back up.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunShop performs one detect+enqueue pass for a single shop.
func (s *Scheduler) RunShop(ctx context.Context, shop string) (ShopResult, error) {
	result := ShopResult{Shop: shop}

	resolved, err := s.settingsSvc.Resolve(ctx, shop)
	if err != nil {
		result.Err = err.Error()
		return result, err
	}
	if !resolved.Enabled {
		result.Disabled = true
		return result, nil
	}

	now := s.clock.Now()
	schedMetrics := obsmetrics.Scheduler()

	// The shop's grace delay drives abandonment detection; the global
	// AbandonAfter only backstops an unset setting.
	abandonAfter := s.cfg.AbandonAfter
	if resolved.DelayMinutes > 0 {
		abandonAfter = time.Duration(resolved.DelayMinutes) * time.Minute
	}
	cutoff := now.Add(-abandonAfter)
	marked, err := s.checkouts.MarkAbandoned(ctx, s.db, shop, cutoff, now)
	if err != nil {
		result.Err = err.Error()
		return result, err
	}
	result.Marked = marked
	schedMetrics.AddMarked(shop, int(marked))

	enqueued, outcomes, err := s.enqueueForShop(ctx, shop, resolved, now)
	result.Enqueued = enqueued
	result.Candidates = len(outcomes)
	result.Outcomes = outcomes
	schedMetrics.AddEnqueued(shop, enqueued)
	if err != nil {
		result.Err = err.Error()
	}
	return result, err
}

func (s *Scheduler) enqueueForShop(ctx context.Context, shop string, resolved settingsdomain.ResolvedSettings, now time.Time) (int, []CandidateOutcome, error) {
	candidates, err := s.checkouts.ListEligible(ctx, s.db, shop, resolved.MinOrderValue, s.cfg.CandidateBatchSize)
	if err != nil {
		return 0, nil, err
	}
	if len(candidates) == 0 {
		return 0, nil, nil
	}

	checkoutIDs := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		checkoutIDs = append(checkoutIDs, candidate.CheckoutID)
	}
	jobs, err := s.callJobs.ListByCheckoutIDs(ctx, s.db, shop, checkoutIDs, s.cfg.JobFetchCap)
	if err != nil {
		return 0, nil, err
	}
	jobsByCheckout := make(map[string][]*calljobdomain.CallJob, len(candidates))
	for _, job := range jobs {
		jobsByCheckout[job.CheckoutID] = append(jobsByCheckout[job.CheckoutID], job)
	}

	schedMetrics := obsmetrics.Scheduler()
	outcomes := make([]CandidateOutcome, 0, len(candidates))
	enqueued := 0

	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return enqueued, outcomes, ctx.Err()
		}

		cycleStart := candidate.CycleStart()
		cycleJobs := jobsInCycle(jobsByCheckout[candidate.CheckoutID], cycleStart)

		if reason, ok := guard.EvaluateCandidate(candidate.Phone, cycleJobs, resolved.MaxAttempts); !ok {
			schedMetrics.IncSkip(string(reason))
			outcomes = append(outcomes, CandidateOutcome{CheckoutID: candidate.CheckoutID, SkipReason: reason})
			continue
		}

		target := nextAttemptTime(cycleStart, cycleJobs, resolved)
		if target.Before(now) {
			target = now
		}
		scheduledFor := window.Adjust(target, resolved.CallWindowStart, resolved.CallWindowEnd)

		job := &calljobdomain.CallJob{
			ID:           s.genID.Generate(),
			Shop:         shop,
			CheckoutID:   candidate.CheckoutID,
			Phone:        candidate.Phone,
			Status:       calljobdomain.StatusQueued,
			ScheduledFor: scheduledFor,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.callJobs.Insert(ctx, s.db, job); err != nil {
			// Another instance won the insert race; the in-flight exclusivity
			// index turns the duplicate into a benign skip.
			if db.IsDuplicateKeyErr(err) {
				schedMetrics.IncSkip(string(guard.SkipUniqueConstraint))
				outcomes = append(outcomes, CandidateOutcome{CheckoutID: candidate.CheckoutID, SkipReason: guard.SkipUniqueConstraint})
				continue
			}
			return enqueued, outcomes, err
		}

		jobsByCheckout[candidate.CheckoutID] = append([]*calljobdomain.CallJob{job}, jobsByCheckout[candidate.CheckoutID]...)
		enqueued++
		outcomes = append(outcomes, CandidateOutcome{CheckoutID: candidate.CheckoutID, Enqueued: true})
		s.log.Info("call job enqueued",
			zap.String("shop", shop),
			zap.String("checkout_id", candidate.CheckoutID),
			zap.Time("scheduled_for", scheduledFor),
		)
	}

	return enqueued, outcomes, nil
}

// jobsInCycle filters a checkout's history, newest first, down to the
// attempts that belong to the current abandonment cycle.
func jobsInCycle(jobs []*calljobdomain.CallJob, cycleStart time.Time) []*calljobdomain.CallJob {
	if len(jobs) == 0 {
		return nil
	}
	cycleJobs := make([]*calljobdomain.CallJob, 0, len(jobs))
	for _, job := range jobs {
		if !job.CreatedAt.Before(cycleStart) {
			cycleJobs = append(cycleJobs, job)
		}
	}
	return cycleJobs
}

// nextAttemptTime computes when the next call should happen, before
// window clamping. The first attempt of a cycle waits out the grace
// delay; retries back off from the previous attempt.
func nextAttemptTime(cycleStart time.Time, cycleJobs []*calljobdomain.CallJob, resolved settingsdomain.ResolvedSettings) time.Time {
	if len(cycleJobs) == 0 {
		return cycleStart.Add(time.Duration(resolved.DelayMinutes) * time.Minute)
	}
	last := cycleJobs[0]
	base := last.ScheduledFor
	if base.IsZero() {
		base = last.CreatedAt
	}
	return base.Add(time.Duration(resolved.RetryMinutes) * time.Minute)
}

// RunAll runs a detect+enqueue pass for every known shop. Shops fail
// independently; one shop's error never blocks the rest.
func (s *Scheduler) RunAll(ctx context.Context) (RunResult, error) {
	shops, err := s.allShops(ctx)
	if err != nil {
		return RunResult{}, err
	}

	var result RunResult
	var runErr error
	for _, shop := range shops {
		if ctx.Err() != nil {
			runErr = errors.Join(runErr, ctx.Err())
			break
		}
		shopResult, err := s.RunShop(ctx, shop)
		if err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("%s: %w", shop, err))
			s.log.Warn("shop pass failed", zap.String("shop", shop), zap.Error(err))
		}
		result.Shops = append(result.Shops, shopResult)
		result.Marked += shopResult.Marked
		result.Enqueued += shopResult.Enqueued
	}
	return result, runErr
}

// allShops unions shops with saved settings and shops that have
// checkout traffic, so brand-new shops get detection before they ever
// save settings.
func (s *Scheduler) allShops(ctx context.Context) ([]string, error) {
	configured, err := s.settingsSvc.Shops(ctx)
	if err != nil {
		return nil, err
	}
	active, err := s.checkouts.DistinctShops(ctx, s.db)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(configured)+len(active))
	shops := make([]string, 0, len(configured)+len(active))
	for _, shop := range append(configured, active...) {
		if _, ok := seen[shop]; ok {
			continue
		}
		seen[shop] = struct{}{}
		shops = append(shops, shop)
	}
	sort.Strings(shops)
	return shops, nil
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	err = errors.Join(err, s.runJob(parent, "detect_enqueue", s.cfg.CandidateBatchSize, s.cfg.RunTimeout, func(ctx context.Context) error {
		ctx, run, owner := s.ensureJobRun(ctx, "detect_enqueue", s.cfg.CandidateBatchSize)
		if owner {
			s.logJobStart(run)
			defer s.logJobFinish(run)
		}
		result, runErr := s.RunAll(ctx)
		run.AddProcessed(result.Enqueued)
		if runErr != nil {
			s.logSchedulerError(run, "scheduler.pass.failed", "detect_enqueue", "", runErr)
		}
		return runErr
	}))

	err = errors.Join(err, s.runJob(parent, "stale_sweep", s.cfg.CandidateBatchSize, 30*time.Second, s.StaleSweepJob))

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
