// Package metrics exposes expvar-published counters and gauges used by the
// ChainGraph engine (scheduler, event stream, and stores). It intentionally
// avoids external dependencies and is consumed by the optional
// chaingraph-server for /debug/vars and /metrics endpoints.
package metrics
