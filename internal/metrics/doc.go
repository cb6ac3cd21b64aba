/*
Package metrics provides Prometheus metrics for gdrivefs.

# Overview

The Collector implements types.MetricsCollector. The filesystem adapter
records one operation per kernel request, the resilient remote client one
remote call per attempt, and the path resolver every metadata cache lookup.

	┌──────────────┐   ┌───────────────┐   ┌───────────┐
	│  filesystem  │   │   resilient   │   │ resolver  │
	└──────┬───────┘   └───────┬───────┘   └─────┬─────┘
	       └──────────────┬────┴─────────────────┘
	               ┌──────▼──────┐
	               │  Collector  │──► /metrics, /health
	               └─────────────┘

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      9100,
		Namespace: "gdrivefs",
	}, logger)
	if err != nil {
		return err
	}
	if err := collector.Start(ctx); err != nil {
		return err
	}
	defer collector.Stop(ctx)

# Exported Metrics

Counters:
  - gdrivefs_operations_total{operation,status}
  - gdrivefs_remote_calls_total{call,status}, status one of success,
    not_found, transient, circuit_open, error
  - gdrivefs_cache_lookups_total{result}, result hit or miss

Histograms:
  - gdrivefs_operation_duration_seconds{operation}
  - gdrivefs_remote_call_duration_seconds{call}

Gauges:
  - gdrivefs_cache_entries

# Nil Collector

Every recording method accepts a nil receiver, so components can hold a
*Collector without checking whether metrics were configured.

# Snapshots

Snapshot returns per-operation counts and latency bounds together with the
remote call and cache totals gathered from the registry. Tests use it
instead of scraping the HTTP endpoint.
*/
package metrics
