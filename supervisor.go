package viewcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Stage is one supervised pipeline worker. Run blocks until the stage
// fails or the context ends. Fallback, when set, replaces Run after
// the restart budget is exhausted (the capture stage's screenshot
// loop); the fallback gets a fresh budget.
type Stage struct {
	Name     string
	Run      func(ctx context.Context) error
	Fallback func(ctx context.Context) error
}

// Supervisor restarts transiently failed stages with exponential
// backoff and fails the session when a stage exhausts its budget or
// hits a permanent error.
type Supervisor struct {
	backoffBase time.Duration
	maxRestarts int
	stats       *PipelineStats

	// sleep is injectable so backoff schedules are testable without
	// waiting them out.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSupervisor creates a supervisor. backoffBase is the first retry
// delay, doubling per attempt; maxRestarts bounds retries per stage.
func NewSupervisor(backoffBase time.Duration, maxRestarts int, stats *PipelineStats) (*Supervisor, error) {
	if backoffBase <= 0 {
		return nil, errors.New("backoff base must be positive")
	}
	if maxRestarts < 0 {
		return nil, errors.New("max restarts cannot be negative")
	}
	if stats == nil {
		stats = &PipelineStats{}
	}
	return &Supervisor{
		backoffBase: backoffBase,
		maxRestarts: maxRestarts,
		stats:       stats,
		sleep:       sleepContext,
	}, nil
}

// Stats returns the supervisor's counter set.
func (s *Supervisor) Stats() *PipelineStats {
	return s.stats
}

// Run supervises all stages until one fails permanently or the
// context ends. The first terminal stage error cancels the rest.
func (s *Supervisor) Run(ctx context.Context, stages ...Stage) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, len(stages))
	var wg sync.WaitGroup
	for _, stage := range stages {
		wg.Add(1)
		go func(st Stage) {
			defer wg.Done()
			errs <- s.runStage(runCtx, st)
		}(stage)
	}

	var first error
	for range stages {
		err := <-errs
		if err != nil && !errors.Is(err, context.Canceled) && first == nil {
			first = err
			cancel()
		}
	}
	wg.Wait()

	if first == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return first
}

// runStage restarts one stage until it succeeds, fails permanently,
// or runs out of budget.
func (s *Supervisor) runStage(ctx context.Context, stage Stage) error {
	run := stage.Run
	attempts := 0
	onFallback := false

	for {
		err := run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			logrus.WithFields(logrus.Fields{
				"function": "Supervisor.runStage",
				"stage":    stage.Name,
				"error":    err.Error(),
			}).Error("Stage failed permanently")
			return err
		}

		attempts++
		if attempts > s.maxRestarts {
			if stage.Fallback != nil && !onFallback {
				logrus.WithFields(logrus.Fields{
					"function": "Supervisor.runStage",
					"stage":    stage.Name,
					"attempts": attempts - 1,
				}).Warn("Restart budget exhausted, switching stage to fallback")
				run = stage.Fallback
				onFallback = true
				attempts = 0
				continue
			}
			return fmt.Errorf("%w: stage %s gave up after %d restarts: %v",
				ErrSessionFailed, stage.Name, s.maxRestarts, err)
		}

		s.stats.StageRestarts.Add(1)
		backoff := s.backoffBase << (attempts - 1)
		logrus.WithFields(logrus.Fields{
			"function": "Supervisor.runStage",
			"stage":    stage.Name,
			"attempt":  attempts,
			"backoff":  backoff.String(),
			"error":    err.Error(),
		}).Warn("Stage failed, restarting after backoff")

		if err := s.sleep(ctx, backoff); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
