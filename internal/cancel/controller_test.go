package cancel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestControllerCancelIsIdempotent(t *testing.T) {
	t.Parallel()

	c := NewController()
	require.False(t, c.Cancelled())

	c.Cancel()
	c.Cancel()
	require.True(t, c.Cancelled())

	select {
	case <-c.Done():
	default:
		t.Fatal("done channel not closed after cancel")
	}
}

func TestControllerRegistryTracksActiveTasks(t *testing.T) {
	t.Parallel()

	c := NewController()
	c.Register("chunk-0")
	c.Register("chunk-1")
	require.Equal(t, 2, c.ActiveCount())

	c.Unregister("chunk-0")
	require.Equal(t, 1, c.ActiveCount())
	c.Unregister("chunk-1")
	require.Equal(t, 0, c.ActiveCount())
}

func TestControllerShutdownWaitsForDrain(t *testing.T) {
	t.Parallel()

	c := NewController()
	c.Register("chunk-0")

	go func() {
		time.Sleep(20 * time.Millisecond)
		c.Unregister("chunk-0")
	}()

	drained := c.Shutdown(time.Second)
	require.True(t, drained)
	require.True(t, c.Cancelled())
}

func TestControllerShutdownAbandonsStragglers(t *testing.T) {
	t.Parallel()

	c := NewController()
	c.Register("stuck")

	start := time.Now()
	drained := c.Shutdown(30 * time.Millisecond)
	require.False(t, drained)
	require.True(t, c.Cancelled())
	require.Less(t, time.Since(start), time.Second, "shutdown must have bounded latency")
}

func TestControllerShutdownWithEmptyRegistryReturnsImmediately(t *testing.T) {
	t.Parallel()

	c := NewController()
	require.True(t, c.Shutdown(time.Second))
}

func TestControllerConcurrentRegistration(t *testing.T) {
	t.Parallel()

	c := NewController()
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(n int) {
			handle := string(rune('a' + n))
			for j := 0; j < 100; j++ {
				c.Register(handle)
				c.Unregister(handle)
			}
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 8; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("concurrent registration did not finish")
		}
	}
	require.Equal(t, 0, c.ActiveCount())
}

func TestControllerShutdownWithEmptyRegistryReleasesLaterWaiters(t *testing.T) {
	t.Parallel()

	c := NewController()
	c.Register("chunk-0")
	c.Unregister("chunk-0")
	require.True(t, c.Shutdown(50*time.Millisecond))
}
