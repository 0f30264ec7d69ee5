/*
Package metrics exposes Prometheus metrics and component health for beacon.

# Metrics

Pipeline:
  - beacon_events_total{outcome}: queued events by outcome
  - beacon_events_persisted_total{group}
  - beacon_validation_errors_total
  - beacon_profile_changes_total
  - beacon_queue_depth{group}: sampled by Collector

Flushing:
  - beacon_flush_total{group,status}
  - beacon_flush_duration_seconds{group}
  - beacon_flush_scheduled_total{lane}
  - beacon_events_sent_total{group}

Collectors are registered with the default registry in init and served by
Handler.

# Health

Components report their state with UpdateComponent. The store and the queue
are critical: if either fails the collector is unhealthy. A failing network
only degrades it, since events keep queueing locally.

	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
*/
package metrics
