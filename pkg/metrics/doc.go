// Package metrics exposes Prometheus instrumentation for the subscription
// lifecycle engine.
//
// A Collector owns its own prometheus.Registry and pre-defines every metric
// the engine emits: lifecycle transitions, appended events, payment outcomes,
// transaction plan steps and rollbacks, and cache hit rate. Components receive
// the collector by injection; a nil collector disables instrumentation so
// callers never need nil checks at emit sites.
//
//	col := metrics.NewCollector("catalogkit")
//	http.Handle("/metrics", col.Handler())
package metrics
