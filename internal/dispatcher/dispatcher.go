// Package dispatcher fans chunk tasks out to a bounded pool of analysis
// sessions.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/auditkit/webaudit/internal/audit"
	"github.com/auditkit/webaudit/internal/cancel"
)

// DefaultMaxConcurrency caps simultaneous sessions when no limit is configured.
const DefaultMaxConcurrency = 10

// TaskRunner processes one chunk task to exactly one result. Satisfied by
// session.Session.
type TaskRunner interface {
	Analyze(ctx context.Context, task audit.ChunkTask) audit.ChunkResult
}

// Observer is invoked once per resolved task, in completion order, with the
// monotonic completed count and the task's result.
type Observer func(completed, total int, res audit.ChunkResult)

// Dispatcher runs batches of chunk tasks with at most a configured number of
// sessions in flight.
type Dispatcher struct {
	runner TaskRunner
	ctrl   *cancel.Controller
	max    int
	logger *zap.Logger
}

// New constructs a Dispatcher. maxConcurrency < 0 is malformed input and is
// rejected; 0 selects the default.
func New(runner TaskRunner, ctrl *cancel.Controller, maxConcurrency int, logger *zap.Logger) (*Dispatcher, error) {
	if maxConcurrency < 0 {
		return nil, fmt.Errorf("max concurrency must be >= 0, got %d", maxConcurrency)
	}
	if maxConcurrency == 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		runner: runner,
		ctrl:   ctrl,
		max:    maxConcurrency,
		logger: logger,
	}, nil
}

// Run processes the ordered task list and returns one result per task, in
// input order. Completion order among tasks is unspecified; callers wanting
// index order pass the results through aggregate.Compile. Per-task panics
// are converted to failure results, never dropped and never allowed to abort
// other tasks.
func (d *Dispatcher) Run(ctx context.Context, tasks []audit.ChunkTask, observe Observer) []audit.ChunkResult {
	n := len(tasks)
	results := make([]audit.ChunkResult, n)
	if n == 0 {
		return results
	}

	workers := min(d.max, n)
	positions := make(chan int)
	tracker := &progressTracker{fn: observe, total: n, logger: d.logger}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pos := range positions {
				results[pos] = d.runTask(ctx, tasks[pos])
				tracker.completed(results[pos])
			}
		}()
	}

	for pos := range tasks {
		positions <- pos
	}
	close(positions)
	wg.Wait()

	return results
}

func (d *Dispatcher) runTask(ctx context.Context, task audit.ChunkTask) (res audit.ChunkResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("task panic recovered at dispatcher boundary",
				zap.Int("chunk_index", task.Index),
				zap.Any("panic", r),
			)
			res = audit.ChunkResult{
				Index:       task.Index,
				Content:     task.Content,
				ErrorKind:   audit.ErrorKindInternal,
				ErrorDetail: fmt.Sprintf("unexpected panic: %v", r),
			}
		}
	}()

	// Tasks whose session has not started when the signal is set
	// short-circuit without any network call.
	if d.ctrl.Cancelled() || ctx.Err() != nil {
		return audit.ChunkResult{
			Index:       task.Index,
			Content:     task.Content,
			ErrorKind:   audit.ErrorKindCancelled,
			ErrorDetail: "cancelled before session start",
		}
	}

	handle := fmt.Sprintf("chunk-%d", task.Index)
	d.ctrl.Register(handle)
	defer d.ctrl.Unregister(handle)

	return d.runner.Analyze(ctx, task)
}

// progressTracker serializes observer invocations so the completed count is
// monotonic in completion order.
type progressTracker struct {
	mu     sync.Mutex
	fn     Observer
	done   int
	total  int
	logger *zap.Logger
}

func (t *progressTracker) completed(res audit.ChunkResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done++
	if t.fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			t.logger.Warn("progress observer panicked", zap.Any("panic", r))
		}
	}()
	t.fn(t.done, t.total, res)
}
