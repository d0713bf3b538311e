package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/auditkit/webaudit/internal/audit"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageBatchStart Stage = "BATCH_START"
	StageChunkDone  Stage = "CHUNK_DONE"
	StageBatchDone  Stage = "BATCH_DONE"
)

// Event captures a single milestone of a batch analysis run.
type Event struct {
	// BatchID uniquely identifies a batch run using the 16-byte UUID form.
	BatchID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// ChunkIndex scopes CHUNK_DONE events to one task.
	ChunkIndex int
	// Total is the batch size, set on all stages.
	Total int
	// Completed counts resolved tasks so far (CHUNK_DONE and BATCH_DONE).
	Completed int
	// Success reports the chunk outcome for CHUNK_DONE.
	Success bool
	// ErrorKind carries the failure classification for failed chunks.
	ErrorKind audit.ErrorKind
	// Cancelled reports the final controller flag on BATCH_DONE.
	Cancelled bool
	// Dur captures chunk processing time or batch wall time.
	Dur time.Duration
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.BatchID == [16]byte{} {
		return errors.New("batch id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageBatchStart, StageBatchDone:
	case StageChunkDone:
		if e.ChunkIndex < 0 {
			return errors.New("chunk done requires a chunk index")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// BatchUUID converts the binary batch ID to uuid.UUID.
func (e Event) BatchUUID() uuid.UUID {
	return uuid.UUID(e.BatchID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
