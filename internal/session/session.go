package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/auditkit/webaudit/internal/audit"
	"github.com/auditkit/webaudit/internal/cancel"
)

// PlaceholderText is recorded when a completed run produced no extractable
// output. Absence of text is not a failure.
const PlaceholderText = "analysis completed but produced no output"

// Session processes chunk tasks against the remote analysis service. One
// Session may process many tasks; per-task protocol state (session ID, run
// ID, poll timing) lives on the stack of Analyze and is discarded when the
// task resolves.
type Session struct {
	svc    audit.AnalysisService
	ctrl   *cancel.Controller
	poller *Poller
	clock  audit.Clock
	logger *zap.Logger
}

// New constructs a Session.
func New(
	svc audit.AnalysisService,
	ctrl *cancel.Controller,
	poll PollConfig,
	clock audit.Clock,
	logger *zap.Logger,
) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		svc:    svc,
		ctrl:   ctrl,
		poller: NewPoller(ctrl, poll, logger),
		clock:  clock,
		logger: logger,
	}
}

// Analyze drives one task through create/submit/start/poll/fetch and always
// returns exactly one result. Failures are data at this boundary: transport
// errors, terminal remote statuses, timeouts, cancellation, and recovered
// panics all become failure results, never propagated errors.
func (s *Session) Analyze(ctx context.Context, task audit.ChunkTask) (result audit.ChunkResult) {
	start := s.clock.Now()
	var sessionID, runID string

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session panic recovered",
				zap.Int("chunk_index", task.Index),
				zap.Any("panic", r),
			)
			result = s.failure(task, start, sessionID, runID,
				audit.ErrorKindInternal, fmt.Sprintf("unexpected panic: %v", r))
		}
	}()

	if s.interrupted(ctx) {
		return s.failure(task, start, "", "", audit.ErrorKindCancelled, "cancelled before session creation")
	}

	sessionID, err := s.svc.CreateSession(ctx, task.Content)
	if err != nil {
		return s.failure(task, start, "", "",
			audit.ErrorKindTransport, fmt.Sprintf("create session: %v", err))
	}
	s.logger.Debug("session created",
		zap.Int("chunk_index", task.Index),
		zap.String("session_id", sessionID),
	)

	if s.interrupted(ctx) {
		return s.failure(task, start, sessionID, "", audit.ErrorKindCancelled, "cancelled before content submission")
	}
	if err := s.svc.SubmitContent(ctx, sessionID, task.Content); err != nil {
		return s.failure(task, start, sessionID, "",
			audit.ErrorKindTransport, fmt.Sprintf("submit content: %v", err))
	}

	if s.interrupted(ctx) {
		return s.failure(task, start, sessionID, "", audit.ErrorKindCancelled, "cancelled before run start")
	}
	runID, err = s.svc.StartRun(ctx, sessionID)
	if err != nil {
		return s.failure(task, start, sessionID, "",
			audit.ErrorKindTransport, fmt.Sprintf("start run: %v", err))
	}

	outcome, status := s.poller.Wait(ctx,
		func(ctx context.Context) (audit.RunStatus, error) {
			return s.svc.PollRun(ctx, sessionID, runID)
		},
		func(ctx context.Context) {
			s.cancelRunBestEffort(ctx, sessionID, runID)
		},
	)

	switch outcome {
	case PollCancelled:
		return s.failure(task, start, sessionID, runID, audit.ErrorKindCancelled, "cancelled while awaiting run completion")
	case PollTimedOut:
		return s.failure(task, start, sessionID, runID,
			audit.ErrorKindTimedOut, fmt.Sprintf("run did not finish within %s", s.poller.cfg.Budget))
	case PollTerminal:
		detail := fmt.Sprintf("run ended with status %q", status)
		if status == audit.RunStatusRequiresAction {
			detail = fmt.Sprintf("run ended with unsupported status %q", status)
		}
		return s.failure(task, start, sessionID, runID, audit.ErrorKindRemoteFailed, detail)
	}

	if s.interrupted(ctx) {
		return s.failure(task, start, sessionID, runID, audit.ErrorKindCancelled, "cancelled before output fetch")
	}
	text, err := s.svc.FetchOutput(ctx, sessionID)
	if err != nil {
		return s.failure(task, start, sessionID, runID,
			audit.ErrorKindTransport, fmt.Sprintf("fetch output: %v", err))
	}
	if text == "" {
		text = PlaceholderText
	}

	return audit.ChunkResult{
		Index:          task.Index,
		Content:        task.Content,
		AnalysisText:   text,
		Success:        true,
		ProcessingTime: s.clock.Now().Sub(start),
		SessionID:      sessionID,
		RunID:          runID,
	}
}

// cancelRunBestEffort asks the remote service to stop an outstanding run.
// Errors (and panics) are swallowed: cancel must never raise past this
// boundary.
func (s *Session) cancelRunBestEffort(ctx context.Context, sessionID, runID string) {
	defer func() {
		_ = recover()
	}()
	if sessionID == "" || runID == "" {
		return
	}
	if err := s.svc.CancelRun(ctx, sessionID, runID); err != nil {
		s.logger.Debug("best-effort remote cancel failed",
			zap.String("session_id", sessionID),
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}
}

func (s *Session) interrupted(ctx context.Context) bool {
	return s.ctrl.Cancelled() || ctx.Err() != nil
}

func (s *Session) failure(
	task audit.ChunkTask,
	start time.Time,
	sessionID, runID string,
	kind audit.ErrorKind,
	detail string,
) audit.ChunkResult {
	return audit.ChunkResult{
		Index:          task.Index,
		Content:        task.Content,
		Success:        false,
		ErrorKind:      kind,
		ErrorDetail:    detail,
		ProcessingTime: s.clock.Now().Sub(start),
		SessionID:      sessionID,
		RunID:          runID,
	}
}
