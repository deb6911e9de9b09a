package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/recova/internal/scheduler"
	"go.uber.org/zap"
)

type cronResponse struct {
	OK              bool                   `json:"ok"`
	Shops           int                    `json:"shops"`
	PerShop         []scheduler.ShopResult `json:"per_shop"`
	MarkedTotal     int64                  `json:"marked_total"`
	EnqueuedTotal   int                    `json:"enqueued_total"`
	QueuedDueBefore int64                  `json:"queued_due_before"`
	QueuedDueAfter  int64                  `json:"queued_due_after"`
	RunCallsStatus  int                    `json:"run_calls_status,omitempty"`
	RunCallsBody    string                 `json:"run_calls_body,omitempty"`
	Errors          []string               `json:"errors,omitempty"`
	ServerNow       time.Time              `json:"server_now"`
}

// HandleCron runs one full detect+enqueue pass and then signals the
// call worker. The external cron only supplies the tick; all decisions
// live server-side, so a missed or doubled tick is harmless.
func (s *Server) HandleCron(c *gin.Context) {
	ctx := c.Request.Context()
	now := s.clock.Now()

	// One pass at a time across instances. Losing the race is success:
	// the other instance is already doing the work.
	lockToken, acquired, err := s.limiter.TryLockCronRun(ctx)
	if err != nil {
		s.log.Warn("cron lock check failed", zap.Error(err))
	} else if !acquired {
		c.JSON(http.StatusOK, cronResponse{OK: true, ServerNow: now})
		return
	}
	defer func() {
		if lockToken != "" {
			if err := s.limiter.ReleaseCronRun(ctx, lockToken); err != nil {
				s.log.Warn("cron lock release failed", zap.Error(err))
			}
		}
	}()

	resp := cronResponse{OK: true, ServerNow: now}

	dueBefore, err := s.callJobs.CountDue(ctx, s.db, now)
	if err != nil {
		s.log.Warn("due count failed", zap.Error(err))
		resp.Errors = append(resp.Errors, err.Error())
	}
	resp.QueuedDueBefore = dueBefore

	result, runErr := s.scheduler.RunAll(ctx)
	resp.Shops = len(result.Shops)
	resp.PerShop = result.Shops
	resp.MarkedTotal = result.Marked
	resp.EnqueuedTotal = result.Enqueued
	if runErr != nil {
		resp.OK = false
		resp.Errors = append(resp.Errors, runErr.Error())
	}

	dueAfter, err := s.callJobs.CountDue(ctx, s.db, s.clock.Now())
	if err != nil {
		resp.Errors = append(resp.Errors, err.Error())
	}
	resp.QueuedDueAfter = dueAfter

	if dueAfter > 0 {
		status, body := s.signalRunCalls(ctx)
		resp.RunCallsStatus = status
		resp.RunCallsBody = body
	}

	c.JSON(http.StatusOK, resp)
}

// signalRunCalls pokes the worker endpoint so due calls go out now
// instead of waiting for the next tick. Failures are reported in the
// cron summary, never fatal: the jobs stay queued.
func (s *Server) signalRunCalls(ctx context.Context) (int, string) {
	payload, _ := json.Marshal(map[string]any{
		"source": "cron",
		"at":     s.clock.Now().Format(time.RFC3339),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.RunCallsURL, bytes.NewReader(payload))
	if err != nil {
		s.log.Warn("run-calls request build failed", zap.Error(err))
		return 0, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderWorkerToken, s.cfg.WorkerToken)

	res, err := s.httpClient.Do(req)
	if err != nil {
		s.log.Warn("run-calls signal failed", zap.Error(err))
		return 0, err.Error()
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return res.StatusCode, string(body)
}

// HandleRunCalls drains due queued jobs through the voice provider.
func (s *Server) HandleRunCalls(c *gin.Context) {
	completed, err := s.dialerSvc.RunDueCalls(c.Request.Context(), 50)
	if err != nil {
		s.log.Warn("run-calls pass finished with errors", zap.Int("completed", completed), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"ok": false, "completed": completed, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "completed": completed})
}
