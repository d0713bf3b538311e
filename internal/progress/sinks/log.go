package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/auditkit/webaudit/internal/progress"
)

// LogSink emits structured logs for batch progress streams. It is useful
// during development or when no metrics backend is available.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("batch_id", evt.BatchUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.Int("total", evt.Total),
		}
		switch evt.Stage {
		case progress.StageChunkDone:
			fields = append(fields,
				zap.Int("chunk_index", evt.ChunkIndex),
				zap.Int("completed", evt.Completed),
				zap.Bool("success", evt.Success),
				zap.Duration("dur", evt.Dur),
			)
			if evt.ErrorKind != "" {
				fields = append(fields, zap.String("error_kind", string(evt.ErrorKind)))
			}
		case progress.StageBatchDone:
			fields = append(fields,
				zap.Int("completed", evt.Completed),
				zap.Bool("cancelled", evt.Cancelled),
				zap.Duration("dur", evt.Dur),
			)
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
