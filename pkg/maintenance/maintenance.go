// Package maintenance implements a periodic sweep that requeues tasks stuck
// in RETRYING past their own scheduled delay and prunes terminal task rows
// older than the configured result TTL. pkg/lifecycle schedules a retry with
// time.AfterFunc inside the worker process that handled the failing
// attempt; if that process restarts before the timer fires, the task sits
// in RETRYING forever with nothing left to wake it. This sweep is the
// defensive backstop for that case, not the primary retry path.
package maintenance

import (
	"context"
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/pkg/broker"
	"github.com/grievanceplatform/orchestrator/pkg/dbtask"
)

// StuckTaskFinder is the narrow pkg/dbtask surface the sweep needs. Defined
// here rather than depended on directly so a test double never has to carry
// a Manager's encryptor/pool plumbing.
type StuckTaskFinder interface {
	FindStuckRetrying(ctx context.Context, grace time.Duration) ([]dbtask.StuckRetry, error)
	PruneOldResults(ctx context.Context, ttl time.Duration) (int64, error)
}

// Requeuer re-delivers a recovered invocation onto its original queue.
type Requeuer interface {
	EnqueueRetry(ctx context.Context, env broker.Envelope) error
}

// Config configures a Sweeper.
type Config struct {
	DB     StuckTaskFinder
	Broker Requeuer
	Logger core.ComponentAwareLogger

	// Schedule is a robfig/cron expression or "@every" descriptor. Defaults
	// to "@every 1m".
	Schedule string

	// StuckGrace is added on top of a task's own last recorded delay before
	// it's considered abandoned. Defaults to 2 minutes.
	StuckGrace time.Duration

	// ResultTTL is how long a terminal task row is kept before pruning.
	// Defaults to 30 days.
	ResultTTL time.Duration
}

// Sweeper runs the retry-recovery and result-pruning sweep on a schedule.
type Sweeper struct {
	db     StuckTaskFinder
	brk    Requeuer
	logger core.ComponentAwareLogger

	stuckGrace time.Duration
	resultTTL  time.Duration

	cron *cronlib.Cron
}

// New returns a Sweeper registered against cfg.Schedule but not yet started.
func New(cfg Config) (*Sweeper, error) {
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = "@every 1m"
	}
	grace := cfg.StuckGrace
	if grace <= 0 {
		grace = 2 * time.Minute
	}
	ttl := cfg.ResultTTL
	if ttl <= 0 {
		ttl = 720 * time.Hour
	}

	s := &Sweeper{
		db:         cfg.DB,
		brk:        cfg.Broker,
		logger:     cfg.Logger,
		stuckGrace: grace,
		resultTTL:  ttl,
		cron:       cronlib.New(),
	}

	if _, err := s.cron.AddFunc(schedule, func() { s.sweep(context.Background()) }); err != nil {
		return nil, fmt.Errorf("maintenance: invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins the cron scheduler in a background goroutine.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the scheduler, blocking until any sweep already in flight
// finishes.
func (s *Sweeper) Stop() { <-s.cron.Stop().Done() }

// Sweep runs one pass synchronously: requeue, then prune. Exported so
// cmd/orchestratorctl can trigger a sweep on demand and so tests don't have
// to wait on a real cron tick.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.sweep(ctx)
}

func (s *Sweeper) sweep(ctx context.Context) {
	s.requeueStuck(ctx)
	s.pruneOldResults(ctx)
}

// requeueStuck recovers each stuck task's invocation and pushes it back onto
// its queue at the next attempt past the one that last failed (EnqueueRetry
// increments Attempt itself, so the envelope built here carries the attempt
// that already ran).
func (s *Sweeper) requeueStuck(ctx context.Context) {
	stuck, err := s.db.FindStuckRetrying(ctx, s.stuckGrace)
	if err != nil {
		s.log("maintenance sweep: failed to query stuck retrying tasks", map[string]interface{}{"error": err.Error()})
		return
	}

	for _, task := range stuck {
		lastAttempt := task.Attempt - 1
		if lastAttempt < 0 {
			lastAttempt = 0
		}
		env := broker.Envelope{
			TaskID:   task.TaskID,
			TaskName: task.Invocation.TaskName,
			Args:     task.Invocation.Args,
			Kwargs:   task.Invocation.Kwargs,
			Attempt:  lastAttempt,
		}
		if err := s.brk.EnqueueRetry(ctx, env); err != nil {
			s.log("maintenance sweep: failed to requeue stuck task", map[string]interface{}{
				"task_id":   task.TaskID,
				"task_name": task.Invocation.TaskName,
				"error":     err.Error(),
			})
			continue
		}
		s.log("maintenance sweep: requeued stuck task", map[string]interface{}{
			"task_id":   task.TaskID,
			"task_name": task.Invocation.TaskName,
			"attempt":   task.Attempt,
		})
	}
}

func (s *Sweeper) pruneOldResults(ctx context.Context) {
	n, err := s.db.PruneOldResults(ctx, s.resultTTL)
	if err != nil {
		s.log("maintenance sweep: failed to prune old task results", map[string]interface{}{"error": err.Error()})
		return
	}
	if n > 0 {
		s.log("maintenance sweep: pruned old task results", map[string]interface{}{"rows_pruned": n})
	}
}

func (s *Sweeper) log(msg string, fields map[string]interface{}) {
	if s.logger != nil {
		s.logger.Error(msg, fields)
	}
}
