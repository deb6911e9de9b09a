package scheduler

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/recova/internal/cache"
	calljobdomain "github.com/smallbiznis/recova/internal/calljob/domain"
	calljobrepo "github.com/smallbiznis/recova/internal/calljob/repository"
	checkoutdomain "github.com/smallbiznis/recova/internal/checkout/domain"
	checkoutrepo "github.com/smallbiznis/recova/internal/checkout/repository"
	"github.com/smallbiznis/recova/internal/clock"
	"github.com/smallbiznis/recova/internal/config"
	obsmetrics "github.com/smallbiznis/recova/internal/observability/metrics"
	"github.com/smallbiznis/recova/internal/scheduler/guard"
	settingsrepo "github.com/smallbiznis/recova/internal/settings/repository"
	settingssvc "github.com/smallbiznis/recova/internal/settings/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	registry := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	obsmetrics.ResetSchedulerMetricsForTest()
	os.Exit(m.Run())
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	statements := []string{
		`CREATE TABLE checkouts (
			id INTEGER PRIMARY KEY,
			shop TEXT NOT NULL,
			checkout_id TEXT NOT NULL,
			status TEXT NOT NULL,
			value REAL NOT NULL DEFAULT 0,
			currency TEXT,
			email TEXT,
			phone TEXT,
			items_json TEXT,
			raw TEXT,
			abandoned_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX idx_checkouts_shop_checkout ON checkouts (shop, checkout_id)`,
		`CREATE TABLE call_jobs (
			id INTEGER PRIMARY KEY,
			shop TEXT NOT NULL,
			checkout_id TEXT NOT NULL,
			phone TEXT,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			scheduled_for DATETIME NOT NULL,
			outcome TEXT,
			provider_call_id TEXT,
			recording_url TEXT,
			ended_reason TEXT,
			transcript TEXT,
			attributed_order_id TEXT,
			attributed_amount REAL,
			attributed_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX idx_call_jobs_in_flight ON call_jobs (shop, checkout_id)
			WHERE status IN ('queued', 'calling')`,
		`CREATE TABLE call_settings (
			id INTEGER PRIMARY KEY,
			shop TEXT NOT NULL UNIQUE,
			enabled INTEGER NOT NULL DEFAULT 0,
			delay_minutes INTEGER NOT NULL,
			max_attempts INTEGER NOT NULL,
			retry_minutes INTEGER NOT NULL,
			min_order_value REAL NOT NULL DEFAULT 0,
			currency TEXT,
			call_window_start TEXT,
			call_window_end TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type testEnv struct {
	db        *gorm.DB
	node      *snowflake.Node
	fakeClock *clock.FakeClock
	scheduler *Scheduler
	checkouts checkoutdomain.Repository
	callJobs  calljobdomain.Repository
}

func newTestEnv(t *testing.T, start time.Time) *testEnv {
	t.Helper()

	db := openTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fakeClock := clock.NewFakeClock(start)

	defaults, err := config.NewSettingsDefaultsHolder()
	require.NoError(t, err)

	checkouts := checkoutrepo.Provide()
	callJobs := calljobrepo.Provide()
	settings := settingssvc.New(settingssvc.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fakeClock,
		Repo:     settingsrepo.Provide(),
		Defaults: defaults,
		Cache:    cache.NewSettingsResolverCache(),
	})

	sched, err := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fakeClock,
		Checkouts:   checkouts,
		CallJobs:    callJobs,
		SettingsSvc: settings,
	})
	require.NoError(t, err)

	return &testEnv{
		db:        db,
		node:      node,
		fakeClock: fakeClock,
		scheduler: sched,
		checkouts: checkouts,
		callJobs:  callJobs,
	}
}

func (e *testEnv) seedSettings(t *testing.T, shop string, enabled bool, minValue float64) {
	t.Helper()
	require.NoError(t, e.db.Exec(
		`INSERT INTO call_settings (id, shop, enabled, delay_minutes, max_attempts, retry_minutes, min_order_value, currency, call_window_start, call_window_end, created_at, updated_at)
		 VALUES (?, ?, ?, 30, 2, 180, ?, 'USD', '09:00', '19:00', ?, ?)`,
		e.node.Generate(), shop, enabled, minValue, e.fakeClock.Now(), e.fakeClock.Now(),
	).Error)
}

func (e *testEnv) seedCheckout(t *testing.T, shop, checkoutID, phone string, value float64, lastActivity time.Time) {
	t.Helper()
	require.NoError(t, e.db.Exec(
		`INSERT INTO checkouts (id, shop, checkout_id, status, value, currency, email, phone, abandoned_at, created_at, updated_at)
		 VALUES (?, ?, ?, 'open', ?, 'USD', '', ?, NULL, ?, ?)`,
		e.node.Generate(), shop, checkoutID, value, phone, lastActivity, lastActivity,
	).Error)
}

func (e *testEnv) jobsFor(t *testing.T, shop, checkoutID string) []calljobdomain.CallJob {
	t.Helper()
	var jobs []calljobdomain.CallJob
	require.NoError(t, e.db.
		Where("shop = ? AND checkout_id = ?", shop, checkoutID).
		Order("created_at asc, id asc").
		Find(&jobs).Error)
	return jobs
}

// TestScheduler_CallPacingLifecycle drives one checkout through a full
// recovery cycle on a fake clock: detection, first attempt, in-flight
// exclusivity, retry backoff, the attempt cap, and a fresh cycle after
// the shopper comes back.
func TestScheduler_CallPacingLifecycle(t *testing.T) {
	start := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	ctx := context.Background()
	shop := "pacing.myshopify.com"

	env.seedSettings(t, shop, true, 0)
	env.seedCheckout(t, shop, "ck-1", "+15551230001", 80, start.Add(-time.Hour))

	// Pass 1: the stale open checkout is promoted and the first attempt
	// lands after the grace delay.
	result, err := env.scheduler.RunShop(ctx, shop)
	require.NoError(t, err)
	require.EqualValues(t, 1, result.Marked)
	require.Equal(t, 1, result.Enqueued)

	jobs := env.jobsFor(t, shop, "ck-1")
	require.Len(t, jobs, 1)
	require.Equal(t, calljobdomain.StatusQueued, jobs[0].Status)
	require.WithinDuration(t, start.Add(30*time.Minute), jobs[0].ScheduledFor, time.Second)

	// Pass 2: the queued job blocks a second attempt.
	result, err = env.scheduler.RunShop(ctx, shop)
	require.NoError(t, err)
	require.Equal(t, 0, result.Enqueued)
	require.Len(t, result.Outcomes, 1)
	require.Equal(t, guard.SkipInFlightExists, result.Outcomes[0].SkipReason)

	// The call happens and nobody answers.
	env.fakeClock.Advance(35 * time.Minute)
	claimed, err := env.callJobs.MarkCalling(ctx, env.db, jobs[0].ID, env.fakeClock.Now())
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, env.callJobs.Complete(ctx, env.db, jobs[0].ID, calljobdomain.CompleteParams{
		Status:  calljobdomain.StatusCompleted,
		Outcome: "no_answer",
	}, env.fakeClock.Now()))

	// Pass 3: the retry backs off from the previous attempt's slot.
	result, err = env.scheduler.RunShop(ctx, shop)
	require.NoError(t, err)
	require.Equal(t, 1, result.Enqueued)

	jobs = env.jobsFor(t, shop, "ck-1")
	require.Len(t, jobs, 2)
	retry := jobs[1]
	require.WithinDuration(t, start.Add(30*time.Minute).Add(180*time.Minute), retry.ScheduledFor, time.Second)

	// Second attempt also resolves; the cap stops a third.
	env.fakeClock.Advance(4 * time.Hour)
	claimed, err = env.callJobs.MarkCalling(ctx, env.db, retry.ID, env.fakeClock.Now())
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, env.callJobs.Complete(ctx, env.db, retry.ID, calljobdomain.CompleteParams{
		Status:  calljobdomain.StatusCompleted,
		Outcome: "no_answer",
	}, env.fakeClock.Now()))

	result, err = env.scheduler.RunShop(ctx, shop)
	require.NoError(t, err)
	require.Equal(t, 0, result.Enqueued)
	require.Len(t, result.Outcomes, 1)
	require.Equal(t, guard.SkipMaxAttemptsReached, result.Outcomes[0].SkipReason)
	require.Len(t, env.jobsFor(t, shop, "ck-1"), 2)

	// The shopper comes back and wanders off again: a fresh cycle gets a
	// fresh attempt budget.
	env.fakeClock.Advance(time.Hour)
	require.NoError(t, env.db.Exec(
		`UPDATE checkouts SET status = 'open', abandoned_at = NULL, updated_at = ? WHERE shop = ? AND checkout_id = ?`,
		env.fakeClock.Now(), shop, "ck-1",
	).Error)
	env.fakeClock.Advance(45 * time.Minute)

	result, err = env.scheduler.RunShop(ctx, shop)
	require.NoError(t, err)
	require.EqualValues(t, 1, result.Marked)
	require.Equal(t, 1, result.Enqueued)
	require.Len(t, env.jobsFor(t, shop, "ck-1"), 3)
}

func TestScheduler_WindowRollsPastClosingTime(t *testing.T) {
	start := time.Date(2025, 1, 6, 18, 50, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	shop := "nightowl.myshopify.com"

	env.seedSettings(t, shop, true, 0)
	env.seedCheckout(t, shop, "ck-late", "+15551230002", 40, start.Add(-2*time.Hour))

	result, err := env.scheduler.RunShop(context.Background(), shop)
	require.NoError(t, err)
	require.Equal(t, 1, result.Enqueued)

	jobs := env.jobsFor(t, shop, "ck-late")
	require.Len(t, jobs, 1)
	// 18:50 + 30m grace lands past the 19:00 close, so the call waits for
	// the next morning's opening.
	require.WithinDuration(t, time.Date(2025, 1, 7, 9, 0, 0, 0, time.UTC), jobs[0].ScheduledFor, time.Second)
}

func TestScheduler_MinOrderValueExcludesSmallCarts(t *testing.T) {
	start := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	shop := "picky.myshopify.com"

	env.seedSettings(t, shop, true, 50)
	env.seedCheckout(t, shop, "ck-small", "+15551230003", 20, start.Add(-time.Hour))
	env.seedCheckout(t, shop, "ck-big", "+15551230004", 75, start.Add(-time.Hour))

	result, err := env.scheduler.RunShop(context.Background(), shop)
	require.NoError(t, err)
	require.EqualValues(t, 2, result.Marked)
	require.Equal(t, 1, result.Enqueued)
	require.Empty(t, env.jobsFor(t, shop, "ck-small"))
	require.Len(t, env.jobsFor(t, shop, "ck-big"), 1)
}

func TestScheduler_NoPhoneCandidatesAreSkippedAtListing(t *testing.T) {
	start := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	shop := "silent.myshopify.com"

	env.seedSettings(t, shop, true, 0)
	env.seedCheckout(t, shop, "ck-nophone", "", 60, start.Add(-time.Hour))

	result, err := env.scheduler.RunShop(context.Background(), shop)
	require.NoError(t, err)
	require.EqualValues(t, 1, result.Marked)
	require.Equal(t, 0, result.Enqueued)
	require.Empty(t, env.jobsFor(t, shop, "ck-nophone"))
}

func TestScheduler_DisabledShopDoesNothing(t *testing.T) {
	start := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	shop := "paused.myshopify.com"

	env.seedSettings(t, shop, false, 0)
	env.seedCheckout(t, shop, "ck-1", "+15551230005", 60, start.Add(-time.Hour))

	result, err := env.scheduler.RunShop(context.Background(), shop)
	require.NoError(t, err)
	require.True(t, result.Disabled)
	require.EqualValues(t, 0, result.Marked)

	var status string
	require.NoError(t, env.db.Raw(
		`SELECT status FROM checkouts WHERE shop = ? AND checkout_id = ?`, shop, "ck-1",
	).Scan(&status).Error)
	require.Equal(t, "open", status)
}

func TestScheduler_RunAllIsIdempotentAcrossTicks(t *testing.T) {
	start := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	shop := "steady.myshopify.com"

	env.seedSettings(t, shop, true, 0)
	env.seedCheckout(t, shop, "ck-1", "+15551230006", 60, start.Add(-time.Hour))

	ctx := context.Background()
	first, err := env.scheduler.RunAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, first.Enqueued)

	// Doubled and delayed ticks must not produce duplicate work.
	for i := 0; i < 3; i++ {
		again, err := env.scheduler.RunAll(ctx)
		require.NoError(t, err)
		require.Equal(t, 0, again.Enqueued)
		require.EqualValues(t, 0, again.Marked)
	}
	require.Len(t, env.jobsFor(t, shop, "ck-1"), 1)
}

func TestScheduler_InFlightIndexTurnsRaceIntoSkip(t *testing.T) {
	start := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	ctx := context.Background()
	shop := "racy.myshopify.com"

	env.seedSettings(t, shop, true, 0)
	env.seedCheckout(t, shop, "ck-1", "+15551230007", 60, start.Add(-time.Hour))

	// A queued job left over from before this cycle started. It is
	// invisible to the per-cycle guard but still holds the in-flight slot.
	stale := &calljobdomain.CallJob{
		ID:           env.node.Generate(),
		Shop:         shop,
		CheckoutID:   "ck-1",
		Phone:        "+15551230007",
		Status:       calljobdomain.StatusQueued,
		ScheduledFor: start.Add(-30 * time.Minute),
		CreatedAt:    start.Add(-2 * time.Hour),
		UpdatedAt:    start.Add(-2 * time.Hour),
	}
	require.NoError(t, env.callJobs.Insert(ctx, env.db, stale))

	result, err := env.scheduler.RunShop(ctx, shop)
	require.NoError(t, err)
	require.Equal(t, 0, result.Enqueued)
	require.Len(t, result.Outcomes, 1)
	require.Equal(t, guard.SkipUniqueConstraint, result.Outcomes[0].SkipReason)
	require.Len(t, env.jobsFor(t, shop, "ck-1"), 1)
}

func TestScheduler_StaleSweepFailsStuckCallingJobs(t *testing.T) {
	start := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	ctx := context.Background()
	shop := "sweep.myshopify.com"

	stuck := &calljobdomain.CallJob{
		ID:           env.node.Generate(),
		Shop:         shop,
		CheckoutID:   "ck-1",
		Status:       calljobdomain.StatusCalling,
		ScheduledFor: start.Add(-time.Hour),
		CreatedAt:    start.Add(-time.Hour),
		UpdatedAt:    start.Add(-time.Hour),
	}
	fresh := &calljobdomain.CallJob{
		ID:           env.node.Generate(),
		Shop:         shop,
		CheckoutID:   "ck-2",
		Status:       calljobdomain.StatusCalling,
		ScheduledFor: start.Add(-5 * time.Minute),
		CreatedAt:    start.Add(-5 * time.Minute),
		UpdatedAt:    start.Add(-5 * time.Minute),
	}
	require.NoError(t, env.callJobs.Insert(ctx, env.db, stuck))
	require.NoError(t, env.callJobs.Insert(ctx, env.db, fresh))

	require.NoError(t, env.scheduler.StaleSweepJob(ctx))

	jobs := env.jobsFor(t, shop, "ck-1")
	require.Len(t, jobs, 1)
	require.Equal(t, calljobdomain.StatusFailed, jobs[0].Status)
	require.Equal(t, "stale", jobs[0].EndedReason)

	jobs = env.jobsFor(t, shop, "ck-2")
	require.Equal(t, calljobdomain.StatusCalling, jobs[0].Status)
}

// The shop's own grace delay drives detection: 40 minutes of silence is
// not abandonment for a shop that asked for two hours.
func TestScheduler_DetectorHonorsShopDelay(t *testing.T) {
	start := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	ctx := context.Background()
	shop := "patient.myshopify.com"

	require.NoError(t, env.db.Exec(
		`INSERT INTO call_settings (id, shop, enabled, delay_minutes, max_attempts, retry_minutes, min_order_value, currency, call_window_start, call_window_end, created_at, updated_at)
		 VALUES (?, ?, 1, 120, 2, 180, 0, 'USD', '09:00', '19:00', ?, ?)`,
		env.node.Generate(), shop, start, start,
	).Error)
	env.seedCheckout(t, shop, "ck-idle", "+15551230010", 90, start.Add(-40*time.Minute))

	result, err := env.scheduler.RunShop(ctx, shop)
	require.NoError(t, err)
	require.EqualValues(t, 0, result.Marked)
	require.Equal(t, 0, result.Enqueued)
	require.Empty(t, env.jobsFor(t, shop, "ck-idle"))

	// Once the silence outlasts the shop's delay the checkout is fair game.
	env.fakeClock.Advance(90 * time.Minute)
	result, err = env.scheduler.RunShop(ctx, shop)
	require.NoError(t, err)
	require.EqualValues(t, 1, result.Marked)
	require.Equal(t, 1, result.Enqueued)

	jobs := env.jobsFor(t, shop, "ck-idle")
	require.Len(t, jobs, 1)
	require.WithinDuration(t, env.fakeClock.Now().Add(120*time.Minute), jobs[0].ScheduledFor, time.Second)
}

// A settings write lands on the very next pass, even one made by another
// instance straight into the store.
func TestScheduler_SettingsChangesApplyNextPass(t *testing.T) {
	start := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	ctx := context.Background()
	shop := "fickle.myshopify.com"

	env.seedSettings(t, shop, true, 0)
	env.seedCheckout(t, shop, "ck-1", "+15551230011", 60, start.Add(-time.Hour))

	result, err := env.scheduler.RunShop(ctx, shop)
	require.NoError(t, err)
	require.EqualValues(t, 1, result.Marked)
	require.Equal(t, 1, result.Enqueued)

	// Another instance turns calls off; no local invalidation happens.
	require.NoError(t, env.db.Exec(
		`UPDATE call_settings SET enabled = 0 WHERE shop = ?`, shop,
	).Error)

	result, err = env.scheduler.RunShop(ctx, shop)
	require.NoError(t, err)
	require.True(t, result.Disabled)
	require.EqualValues(t, 0, result.Marked)
	require.Equal(t, 0, result.Enqueued)
}

// A tick that arrives long after the computed retry slot schedules the
// call immediately rather than in the past.
func TestScheduler_LateTickSchedulesRetryAtNow(t *testing.T) {
	start := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	ctx := context.Background()
	shop := "sleepy.myshopify.com"

	env.seedSettings(t, shop, true, 0)
	env.seedCheckout(t, shop, "ck-1", "+15551230012", 60, start.Add(-time.Hour))

	result, err := env.scheduler.RunShop(ctx, shop)
	require.NoError(t, err)
	require.Equal(t, 1, result.Enqueued)
	first := env.jobsFor(t, shop, "ck-1")[0]

	env.fakeClock.Advance(time.Hour)
	claimed, err := env.callJobs.MarkCalling(ctx, env.db, first.ID, env.fakeClock.Now())
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, env.callJobs.Complete(ctx, env.db, first.ID, calljobdomain.CompleteParams{
		Status:  calljobdomain.StatusCompleted,
		Outcome: "no_answer",
	}, env.fakeClock.Now()))

	// The next tick shows up 6 hours later; the 13:30 backoff slot is long
	// gone, so the retry goes out now instead of being dated in the past.
	env.fakeClock.Advance(6 * time.Hour)
	result, err = env.scheduler.RunShop(ctx, shop)
	require.NoError(t, err)
	require.Equal(t, 1, result.Enqueued)

	jobs := env.jobsFor(t, shop, "ck-1")
	require.Len(t, jobs, 2)
	require.WithinDuration(t, env.fakeClock.Now(), jobs[1].ScheduledFor, time.Second)
}

func TestRunJobTimeoutIsSoftAndCounted(t *testing.T) {
	obsmetrics.ResetSchedulerMetricsForTest()
	registry := prometheus.NewRegistry()
	oldRegisterer, oldGatherer := prometheus.DefaultRegisterer, prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	defer func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	s := &Scheduler{log: zap.NewNop(), genID: node, clock: clock.NewFakeClock(time.Time{})}

	err = s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{"service": "recova", "env": "unknown", "job": "timeout_job"}
	require.EqualValues(t, 1, counterValue(t, registry, "recova_scheduler_job_timeouts_total", labels))
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if labelsMatch(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
