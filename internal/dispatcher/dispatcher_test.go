package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/auditkit/webaudit/internal/audit"
	"github.com/auditkit/webaudit/internal/cancel"
)

// countingRunner records the peak number of concurrent Analyze calls.
type countingRunner struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
	delay    time.Duration
}

func (r *countingRunner) Analyze(_ context.Context, task audit.ChunkTask) audit.ChunkResult {
	cur := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		p := r.peak.Load()
		if cur <= p || r.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	r.calls.Add(1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return audit.ChunkResult{Index: task.Index, Content: task.Content, Success: true, AnalysisText: "ok"}
}

func makeTasks(n int) []audit.ChunkTask {
	tasks := make([]audit.ChunkTask, 0, n)
	for i := 0; i < n; i++ {
		tasks = append(tasks, audit.ChunkTask{Index: i, Content: "chunk"})
	}
	return tasks
}

func TestDispatcherNeverExceedsConcurrencyLimit(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{delay: 2 * time.Millisecond}
	d, err := New(runner, cancel.NewController(), 5, nil)
	require.NoError(t, err)

	results := d.Run(context.Background(), makeTasks(30), nil)

	require.Len(t, results, 30)
	require.LessOrEqual(t, runner.peak.Load(), int32(5))
	require.Equal(t, int32(30), runner.calls.Load())
}

func TestDispatcherLimitIsCappedByTaskCount(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{delay: 2 * time.Millisecond}
	d, err := New(runner, cancel.NewController(), 10, nil)
	require.NoError(t, err)

	results := d.Run(context.Background(), makeTasks(3), nil)

	require.Len(t, results, 3)
	require.LessOrEqual(t, runner.peak.Load(), int32(3))
}

func TestDispatcherOneResultPerTaskInInputOrder(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{}
	d, err := New(runner, cancel.NewController(), 4, nil)
	require.NoError(t, err)

	results := d.Run(context.Background(), makeTasks(15), nil)

	require.Len(t, results, 15)
	for i, r := range results {
		require.Equal(t, i, r.Index)
		require.True(t, r.Success)
	}
}

func TestDispatcherEmptyBatch(t *testing.T) {
	t.Parallel()

	d, err := New(&countingRunner{}, cancel.NewController(), 0, nil)
	require.NoError(t, err)

	results := d.Run(context.Background(), nil, nil)
	require.Empty(t, results)
}

func TestDispatcherRejectsNegativeLimit(t *testing.T) {
	t.Parallel()

	_, err := New(&countingRunner{}, cancel.NewController(), -1, nil)
	require.Error(t, err)
}

type panicRunner struct{}

func (panicRunner) Analyze(_ context.Context, task audit.ChunkTask) audit.ChunkResult {
	if task.Index == 1 {
		panic("runner exploded")
	}
	return audit.ChunkResult{Index: task.Index, Success: true}
}

func TestDispatcherConvertsPanicsToFailureResults(t *testing.T) {
	t.Parallel()

	d, err := New(panicRunner{}, cancel.NewController(), 2, nil)
	require.NoError(t, err)

	results := d.Run(context.Background(), makeTasks(3), nil)

	require.Len(t, results, 3)
	require.True(t, results[0].Success)
	require.False(t, results[1].Success)
	require.Equal(t, 1, results[1].Index)
	require.Equal(t, audit.ErrorKindInternal, results[1].ErrorKind)
	require.True(t, results[2].Success)
}

// blockingRunner holds every Analyze call until released, emulating sessions
// stuck on a slow remote poll.
type blockingRunner struct {
	started chan int
	release chan struct{}
	ctrl    *cancel.Controller
}

func (r *blockingRunner) Analyze(_ context.Context, task audit.ChunkTask) audit.ChunkResult {
	r.started <- task.Index
	<-r.release
	if r.ctrl.Cancelled() {
		return audit.ChunkResult{Index: task.Index, Content: task.Content, ErrorKind: audit.ErrorKindCancelled}
	}
	return audit.ChunkResult{Index: task.Index, Content: task.Content, Success: true}
}

func TestDispatcherCancelMidBatchShortCircuitsUnstartedTasks(t *testing.T) {
	t.Parallel()

	ctrl := cancel.NewController()
	runner := &blockingRunner{
		started: make(chan int, 5),
		release: make(chan struct{}),
		ctrl:    ctrl,
	}
	d, err := New(runner, ctrl, 2, nil)
	require.NoError(t, err)

	done := make(chan []audit.ChunkResult, 1)
	go func() {
		done <- d.Run(context.Background(), makeTasks(5), nil)
	}()

	// Wait for the two slots to fill, then cancel and unblock.
	started := map[int]bool{}
	for i := 0; i < 2; i++ {
		select {
		case idx := <-runner.started:
			started[idx] = true
		case <-time.After(time.Second):
			t.Fatal("sessions did not start")
		}
	}
	ctrl.Cancel()
	close(runner.release)

	var results []audit.ChunkResult
	select {
	case results = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not finish after cancel")
	}

	require.Len(t, results, 5)
	startedCount := 0
	for _, r := range results {
		require.False(t, r.Success)
		require.Equal(t, audit.ErrorKindCancelled, r.ErrorKind)
		if started[r.Index] {
			startedCount++
		}
	}
	require.Equal(t, 2, startedCount)
	// The three unstarted tasks never reached the runner.
	select {
	case idx := <-runner.started:
		t.Fatalf("task %d ran despite cancellation", idx)
	default:
	}
}

func TestDispatcherProgressCallbackCompletionOrder(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var counts []int
	var totals []int
	progress := func(completed, total int, _ audit.ChunkResult) {
		mu.Lock()
		defer mu.Unlock()
		counts = append(counts, completed)
		totals = append(totals, total)
	}

	d, err := New(&countingRunner{delay: time.Millisecond}, cancel.NewController(), 4, nil)
	require.NoError(t, err)
	d.Run(context.Background(), makeTasks(12), progress)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, counts, 12)
	for i, c := range counts {
		require.Equal(t, i+1, c, "completed count must be monotonic in completion order")
		require.Equal(t, 12, totals[i])
	}
}

func TestDispatcherProgressCallbackPanicDoesNotAbortBatch(t *testing.T) {
	t.Parallel()

	progress := func(completed, total int, _ audit.ChunkResult) {
		panic("observer bug")
	}
	d, err := New(&countingRunner{}, cancel.NewController(), 3, nil)
	require.NoError(t, err)

	results := d.Run(context.Background(), makeTasks(6), progress)

	require.Len(t, results, 6)
	for _, r := range results {
		require.True(t, r.Success)
	}
}
