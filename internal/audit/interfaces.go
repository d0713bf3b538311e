package audit

import (
	"context"
	"time"
)

// AnalysisService is the remote collaborator that analyzes one chunk through
// its asynchronous job protocol. Implementations must be safe for concurrent
// use by multiple sessions.
type AnalysisService interface {
	// CreateSession creates a remote session bound to the task content.
	CreateSession(ctx context.Context, content string) (string, error)
	// SubmitContent submits the content as the unit to analyze.
	SubmitContent(ctx context.Context, sessionID, content string) error
	// StartRun starts an analysis run against the submitted content.
	StartRun(ctx context.Context, sessionID string) (string, error)
	// PollRun queries the current run status.
	PollRun(ctx context.Context, sessionID, runID string) (RunStatus, error)
	// FetchOutput retrieves the produced text; valid only after completed.
	FetchOutput(ctx context.Context, sessionID string) (string, error)
	// CancelRun asks the service to cancel an outstanding run. Best-effort:
	// callers ignore its error by design.
	CancelRun(ctx context.Context, sessionID, runID string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces batch IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
