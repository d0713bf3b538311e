// Package audit defines core types shared across the analysis subsystems.
package audit

import (
	"time"
)

// RunStatus represents the remote-service-observed state of an analysis run.
type RunStatus string

// Run status values reported by the remote analysis service.
const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusExpired        RunStatus = "expired"
)

// Terminal reports whether no further status transition can occur.
// requires_action is unsupported by this engine and counts as terminal.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired, RunStatusRequiresAction:
		return true
	default:
		return false
	}
}

// ErrorKind classifies why a chunk failed to produce analysis text.
type ErrorKind string

// Error kinds recorded on failed chunk results.
const (
	// ErrorKindTransport covers network and protocol failures during the
	// create/submit/start/fetch round trips.
	ErrorKindTransport ErrorKind = "transport"
	// ErrorKindRemoteFailed covers terminal remote statuses
	// (failed, cancelled, expired, requires_action).
	ErrorKindRemoteFailed ErrorKind = "remote_failed"
	// ErrorKindTimedOut means the poll budget elapsed without a terminal status.
	ErrorKindTimedOut ErrorKind = "timed_out"
	// ErrorKindCancelled means the cancellation signal was observed.
	ErrorKindCancelled ErrorKind = "cancelled"
	// ErrorKindInternal covers unexpected panics recovered at the session
	// or dispatcher boundary.
	ErrorKindInternal ErrorKind = "internal"
)

// ChunkTask is one immutable unit of content submitted for analysis.
// Index is the stable position in the original sequence, unique per batch.
type ChunkTask struct {
	Index   int    `json:"index"`
	Content string `json:"content"`
}

// ChunkResult is the outcome of processing one ChunkTask. Exactly one is
// produced per task; it is immutable after creation.
type ChunkResult struct {
	Index          int           `json:"index"`
	Content        string        `json:"content"`
	AnalysisText   string        `json:"analysis_text,omitempty"`
	Success        bool          `json:"success"`
	ErrorKind      ErrorKind     `json:"error_kind,omitempty"`
	ErrorDetail    string        `json:"error_detail,omitempty"`
	ProcessingTime time.Duration `json:"processing_time_ns"`
	SessionID      string        `json:"session_id,omitempty"`
	RunID          string        `json:"run_id,omitempty"`
}

// BatchStatistics summarizes a completed batch.
type BatchStatistics struct {
	Total       int           `json:"total"`
	Successful  int           `json:"successful"`
	Failed      int           `json:"failed"`
	TotalTime   time.Duration `json:"total_time_ns"`
	AverageTime time.Duration `json:"average_time_ns"`
	Cancelled   bool          `json:"cancelled"`
}
