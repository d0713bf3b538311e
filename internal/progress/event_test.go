package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestEventValidate(t *testing.T) {
	t.Parallel()

	valid := Event{
		BatchID:    UUIDToBytes(uuid.New()),
		TS:         time.Now(),
		Stage:      StageChunkDone,
		ChunkIndex: 2,
	}
	require.NoError(t, valid.Validate())

	missingID := valid
	missingID.BatchID = [16]byte{}
	require.Error(t, missingID.Validate())

	missingTS := valid
	missingTS.TS = time.Time{}
	require.Error(t, missingTS.Validate())

	badStage := valid
	badStage.Stage = "WAT"
	require.Error(t, badStage.Validate())

	negativeIndex := valid
	negativeIndex.ChunkIndex = -1
	require.Error(t, negativeIndex.Validate())

	negativeDur := valid
	negativeDur.Dur = -time.Second
	require.Error(t, negativeDur.Validate())
}

func TestEventBatchUUIDRoundTrip(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	evt := Event{BatchID: UUIDToBytes(id)}
	require.Equal(t, id, evt.BatchUUID())
}
