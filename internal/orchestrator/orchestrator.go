// Package orchestrator exposes the batch analysis handle tying together the
// remote client, cancellation controller, bounded dispatcher, and progress
// hub. One Orchestrator owns one scoped lifetime: Open acquires the shared
// transport, Close guarantees its release.
package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	guuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auditkit/webaudit/internal/aggregate"
	"github.com/auditkit/webaudit/internal/audit"
	"github.com/auditkit/webaudit/internal/cancel"
	"github.com/auditkit/webaudit/internal/clock/system"
	"github.com/auditkit/webaudit/internal/config"
	"github.com/auditkit/webaudit/internal/dispatcher"
	"github.com/auditkit/webaudit/internal/id/uuid"
	"github.com/auditkit/webaudit/internal/progress"
	"github.com/auditkit/webaudit/internal/remote"
	"github.com/auditkit/webaudit/internal/session"
)

// ProgressFunc is the caller-facing progress callback, invoked once per
// completed task with the running completed count. Invocation order matches
// completion order, not input order.
type ProgressFunc func(completed, total int, success bool)

// Orchestrator coordinates one batch analysis lifetime.
type Orchestrator struct {
	cfg    config.Config
	logger *zap.Logger
	svc    audit.AnalysisService
	client *remote.Client
	ctrl   *cancel.Controller
	hub    *progress.Hub
	clock  audit.Clock
	idGen  audit.IDGenerator
	closed atomic.Bool
}

// Open acquires the remote transport and builds a ready Orchestrator. The
// caller must Close it to release the transport and flush progress sinks.
func Open(cfg config.Config, logger *zap.Logger, sinks ...progress.Sink) (*Orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := remote.NewClient(remote.Config{
		BaseURL: cfg.Service.BaseURL,
		APIKey:  cfg.Service.APIKey,
		Timeout: cfg.Service.Timeout(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open orchestrator: %w", err)
	}
	o := New(cfg, client, logger, sinks...)
	o.client = client
	return o, nil
}

// New builds an Orchestrator around an existing analysis service. Used by
// Open and by tests that substitute a fake service.
func New(cfg config.Config, svc audit.AnalysisService, logger *zap.Logger, sinks ...progress.Sink) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:    cfg,
		logger: logger,
		svc:    svc,
		ctrl:   cancel.NewController(),
		hub:    progress.NewHub(progress.Config{Logger: logger}, sinks...),
		clock:  system.New(),
		idGen:  uuid.New(),
	}
}

// Controller exposes the cancellation controller for callers that wire
// signal handling.
func (o *Orchestrator) Controller() *cancel.Controller {
	return o.ctrl
}

// RunBatch processes the ordered task list and returns the index-ordered
// results plus batch statistics. Per-task failures are data in the results;
// the returned error is reserved for malformed input and a closed handle.
func (o *Orchestrator) RunBatch(ctx context.Context, tasks []audit.ChunkTask, progressFn ProgressFunc) ([]audit.ChunkResult, audit.BatchStatistics, error) {
	if o.closed.Load() {
		return nil, audit.BatchStatistics{}, fmt.Errorf("orchestrator is closed")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sess := session.New(o.svc, o.ctrl, session.PollConfig{
		InitialDelay: o.cfg.Poll.InitialDelay(),
		Factor:       o.cfg.Poll.Factor,
		MaxDelay:     o.cfg.Poll.MaxDelay(),
		Budget:       o.cfg.Poll.Budget(),
	}, o.clock, o.logger)

	disp, err := dispatcher.New(sess, o.ctrl, o.cfg.Dispatch.MaxConcurrency, o.logger)
	if err != nil {
		return nil, audit.BatchStatistics{}, fmt.Errorf("run batch: %w", err)
	}

	batchID, err := o.idGen.NewID()
	if err != nil {
		batchID = guuid.New().String()
	}
	rawID := progress.UUIDToBytes(parseBatchID(batchID))
	start := o.clock.Now()

	o.logger.Info("batch started",
		zap.String("batch_id", batchID),
		zap.Int("tasks", len(tasks)),
		zap.Int("max_concurrency", o.cfg.Dispatch.MaxConcurrency),
	)
	o.hub.Emit(progress.Event{
		BatchID: rawID,
		TS:      start,
		Stage:   progress.StageBatchStart,
		Total:   len(tasks),
	})

	results := disp.Run(ctx, tasks, func(completed, total int, res audit.ChunkResult) {
		o.hub.Emit(progress.Event{
			BatchID:    rawID,
			TS:         o.clock.Now(),
			Stage:      progress.StageChunkDone,
			ChunkIndex: res.Index,
			Total:      total,
			Completed:  completed,
			Success:    res.Success,
			ErrorKind:  res.ErrorKind,
			Dur:        res.ProcessingTime,
		})
		if progressFn != nil {
			progressFn(completed, total, res.Success)
		}
	})

	ordered, stats := aggregate.Compile(results, o.ctrl.Cancelled())

	wall := o.clock.Now().Sub(start)
	o.hub.Emit(progress.Event{
		BatchID:   rawID,
		TS:        o.clock.Now(),
		Stage:     progress.StageBatchDone,
		Total:     stats.Total,
		Completed: stats.Total,
		Cancelled: stats.Cancelled,
		Dur:       wall,
	})
	o.logger.Info("batch finished",
		zap.String("batch_id", batchID),
		zap.Int("successful", stats.Successful),
		zap.Int("failed", stats.Failed),
		zap.Bool("cancelled", stats.Cancelled),
		zap.Duration("wall_time", wall),
	)

	return ordered, stats, nil
}

// Cancel sets the cancellation signal. Idempotent; in-flight round trips are
// not interrupted, but no new remote work starts once observed.
func (o *Orchestrator) Cancel() {
	o.logger.Info("cancellation requested")
	o.ctrl.Cancel()
}

// Close cancels outstanding work, waits up to the configured grace period
// for active sessions to drain, then releases the transport and flushes the
// progress hub. Safe to call once; subsequent RunBatch calls fail.
func (o *Orchestrator) Close(ctx context.Context) error {
	if o.closed.Swap(true) {
		return nil
	}
	drained := o.ctrl.Shutdown(o.grace())
	if !drained {
		o.logger.Warn("sessions still active after grace period, abandoning",
			zap.Int("active", o.ctrl.ActiveCount()),
		)
	}
	if o.client != nil {
		o.client.Close()
	}
	if err := o.hub.Close(ctx); err != nil {
		return fmt.Errorf("close orchestrator: %w", err)
	}
	return nil
}

func (o *Orchestrator) grace() time.Duration {
	if g := o.cfg.Shutdown.Grace(); g > 0 {
		return g
	}
	return cancel.DefaultGracePeriod
}

func parseBatchID(s string) guuid.UUID {
	id, err := guuid.Parse(s)
	if err != nil {
		return guuid.New()
	}
	return id
}
