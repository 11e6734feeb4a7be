// Package monitoring provides Prometheus metrics for the user-code manager.
//
// Collectors are registered on a caller-supplied prometheus.Registerer so the
// embedding service decides where /metrics is served. A small in-memory
// latency window backs the p50/p95 figures returned by Manager.Stats.
package monitoring
