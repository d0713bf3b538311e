// Package aggregate assembles ordered results and batch statistics for the
// report-building collaborator.
package aggregate

import (
	"sort"
	"time"

	"github.com/auditkit/webaudit/internal/audit"
)

// Compile sorts the results by chunk index ascending and derives the batch
// statistics. The input slice is not mutated. Index values are assumed
// unique per batch; the sort is stable so duplicate indices (a caller error)
// keep their relative order rather than crashing.
func Compile(results []audit.ChunkResult, cancelled bool) ([]audit.ChunkResult, audit.BatchStatistics) {
	ordered := append([]audit.ChunkResult(nil), results...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Index < ordered[j].Index
	})

	stats := audit.BatchStatistics{
		Total:     len(ordered),
		Cancelled: cancelled,
	}
	for _, r := range ordered {
		if r.Success {
			stats.Successful++
		}
		stats.TotalTime += r.ProcessingTime
	}
	stats.Failed = stats.Total - stats.Successful
	if stats.Total > 0 {
		stats.AverageTime = stats.TotalTime / time.Duration(stats.Total)
	}
	return ordered, stats
}
