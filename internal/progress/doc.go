// Package progress provides the event primitives, non-blocking hub, and
// emitter interfaces used to report batch analysis progress. Events fan out
// on a background goroutine to pluggable sinks such as Prometheus metrics or
// structured logs; emitters are never blocked by a slow sink.
package progress
