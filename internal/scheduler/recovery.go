package scheduler

import (
	"context"

	calljobdomain "github.com/smallbiznis/recova/internal/calljob/domain"
	"go.uber.org/zap"
)

// StaleSweepJob fails call jobs stuck in calling longer than the
// configured threshold. A worker crash mid-call would otherwise pin the
// checkout's in-flight slot forever and block every future attempt.
func (s *Scheduler) StaleSweepJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "stale_sweep", s.cfg.CandidateBatchSize)
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}

	now := s.clock.Now()
	cutoff := now.Add(-s.cfg.StaleCallingAfter)

	result := s.db.WithContext(ctx).Exec(
		`UPDATE call_jobs
		 SET status = ?, ended_reason = ?, updated_at = ?
		 WHERE status = ? AND updated_at <= ?`,
		calljobdomain.StatusFailed,
		"stale",
		now,
		calljobdomain.StatusCalling,
		cutoff,
	)
	if result.Error != nil {
		s.logSchedulerError(run, "scheduler.stale_sweep.failed", "stale_sweep", "", result.Error)
		return result.Error
	}
	if result.RowsAffected > 0 {
		run.AddProcessed(int(result.RowsAffected))
		s.log.Warn("stale calling jobs failed by sweep",
			zap.Int64("count", result.RowsAffected),
			zap.Duration("threshold", s.cfg.StaleCallingAfter),
		)
	}
	return nil
}
