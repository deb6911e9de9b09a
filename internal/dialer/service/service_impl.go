package service

import (
	"context"
	"errors"

	calljobdomain "github.com/smallbiznis/recova/internal/calljob/domain"
	"github.com/smallbiznis/recova/internal/clock"
	"github.com/smallbiznis/recova/internal/dialer/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	CallJobs calljobdomain.Repository
	Provider domain.Provider
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	callJobs calljobdomain.Repository
	provider domain.Provider
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("dialer.service"),
		clock:    p.Clock,
		callJobs: p.CallJobs,
		provider: p.Provider,
	}
}

func (s *Service) RunDueCalls(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	now := s.clock.Now()
	due, err := s.callJobs.ListDue(ctx, s.db, now, limit)
	if err != nil {
		return 0, err
	}

	completed := 0
	var runErr error
	for _, job := range due {
		if ctx.Err() != nil {
			runErr = errors.Join(runErr, ctx.Err())
			break
		}

		// Claim before dialing: a second worker instance racing on the
		// same job loses the compare-and-swap and moves on.
		claimed, err := s.callJobs.MarkCalling(ctx, s.db, job.ID, s.clock.Now())
		if err != nil {
			runErr = errors.Join(runErr, err)
			s.log.Error("claim failed", zap.String("job_id", job.ID.String()), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}

		result, callErr := s.provider.Call(ctx, domain.CallRequest{
			Shop:       job.Shop,
			CheckoutID: job.CheckoutID,
			Phone:      job.Phone,
			Attempt:    job.Attempts + 1,
		})
		status := domain.TerminalStatusFor(result, callErr)
		if callErr != nil {
			result.Outcome = domain.OutcomeError
			result.EndedReason = callErr.Error()
			s.log.Warn("call failed",
				zap.String("job_id", job.ID.String()),
				zap.String("shop", job.Shop),
				zap.Error(callErr),
			)
		}

		if err := s.callJobs.Complete(ctx, s.db, job.ID, calljobdomain.CompleteParams{
			Status:         status,
			Outcome:        result.Outcome,
			ProviderCallID: result.ProviderCallID,
			RecordingURL:   result.RecordingURL,
			EndedReason:    result.EndedReason,
			Transcript:     result.Transcript,
		}, s.clock.Now()); err != nil {
			runErr = errors.Join(runErr, err)
			s.log.Error("outcome write failed", zap.String("job_id", job.ID.String()), zap.Error(err))
			continue
		}
		completed++
		s.log.Info("call job finished",
			zap.String("job_id", job.ID.String()),
			zap.String("shop", job.Shop),
			zap.String("status", string(status)),
			zap.String("outcome", result.Outcome),
		)
	}

	return completed, runErr
}
