/*
Package adapter wires the gdrivefs components together and owns their
lifecycle.

Start builds, in order:

	storage URI ──► backend (gdrive, s3 or memory)
	                  │
	                  ▼
	            resilient client ── retry + circuit breaker
	                  │
	                  ▼
	            metadata cache ──► filesystem adapter ──► FUSE mount

A metrics Collector is always created so that operation counts are
available through Metrics(). Its HTTP endpoint is served only when
global.metrics_port is positive.

# Usage

	cfg := config.NewDefault()
	a, err := adapter.New(ctx, "gdrive://", "/mnt/drive", cfg, adapter.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Stop(ctx)
	a.Wait()

# Testing

WithBackend replaces the storage backend and WithMountFactory replaces the
platform mount, so the whole stack can be driven in-process without FUSE
or network access.
*/
package adapter
