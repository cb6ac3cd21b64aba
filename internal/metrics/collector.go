package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"

	"github.com/gdrivefs/gdrivefs/pkg/errors"
	"github.com/gdrivefs/gdrivefs/pkg/types"
)

// Collector records filesystem, remote and cache metrics in a private
// Prometheus registry. A nil *Collector is a valid no-op collector.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry
	logger   *zap.Logger

	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	remoteCalls       *prometheus.CounterVec
	remoteDuration    *prometheus.HistogramVec
	cacheLookups      *prometheus.CounterVec
	cacheEntries      prometheus.Gauge

	// Internal tracking
	operations map[string]*OperationMetrics
	started    time.Time

	server   *http.Server
	listener net.Listener
}

var _ types.MetricsCollector = (*Collector)(nil)

// Config represents metrics configuration
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// OperationMetrics tracks metrics for a specific operation type
type OperationMetrics struct {
	Count         int64         `json:"count"`
	Errors        int64         `json:"errors"`
	TotalDuration time.Duration `json:"total_duration"`
	MinDuration   time.Duration `json:"min_duration"`
	MaxDuration   time.Duration `json:"max_duration"`
	LastOperation time.Time     `json:"last_operation"`
}

// AvgDuration returns the mean duration of the recorded operations.
func (m OperationMetrics) AvgDuration() time.Duration {
	if m.Count == 0 {
		return 0
	}
	return m.TotalDuration / time.Duration(m.Count)
}

// Snapshot is a point-in-time copy of the collector state.
type Snapshot struct {
	Operations   map[string]OperationMetrics `json:"operations"`
	RemoteCalls  map[string]float64          `json:"remote_calls"`
	CacheHits    float64                     `json:"cache_hits"`
	CacheMisses  float64                     `json:"cache_misses"`
	CacheEntries float64                     `json:"cache_entries"`
	Uptime       time.Duration               `json:"uptime"`
}

// DefaultConfig returns the metrics configuration used when none is given.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Port:      9100,
		Path:      "/metrics",
		Namespace: "gdrivefs",
	}
}

// NewCollector creates a new metrics collector
func NewCollector(config *Config, logger *zap.Logger) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Collector{
		config:     config,
		registry:   prometheus.NewRegistry(),
		logger:     logger,
		operations: make(map[string]*OperationMetrics),
		started:    time.Now(),
	}
	c.initMetrics()

	if err := c.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return c, nil
}

// Registry exposes the private registry, for tests and embedding.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves /metrics and /health.
func (c *Collector) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", c.healthHandler)
	return mux
}

// Start serves the metrics endpoints on the configured port. It is a no-op
// when metrics are disabled or the port is negative.
func (c *Collector) Start(ctx context.Context) error {
	if c == nil || !c.config.Enabled || c.config.Port < 0 {
		return nil
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", c.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen for metrics on port %d: %w", c.config.Port, err)
	}

	c.mu.Lock()
	c.listener = listener
	c.server = &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	server := c.server
	c.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			c.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	c.logger.Info("metrics server started", zap.String("addr", listener.Addr().String()))
	return nil
}

// Addr returns the address the metrics server listens on, or "" when it is
// not running.
func (c *Collector) Addr() string {
	if c == nil {
		return ""
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Stop stops the metrics collection server
func (c *Collector) Stop(ctx context.Context) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	server := c.server
	c.server = nil
	c.listener = nil
	c.mu.Unlock()

	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}

// RecordOperation records one filesystem operation.
func (c *Collector) RecordOperation(operation string, duration time.Duration, success bool) {
	if c == nil || !c.config.Enabled {
		return
	}

	c.mu.Lock()
	m, ok := c.operations[operation]
	if !ok {
		m = &OperationMetrics{MinDuration: duration}
		c.operations[operation] = m
	}
	m.Count++
	m.TotalDuration += duration
	if !success {
		m.Errors++
	}
	if duration < m.MinDuration {
		m.MinDuration = duration
	}
	if duration > m.MaxDuration {
		m.MaxDuration = duration
	}
	m.LastOperation = time.Now()
	c.mu.Unlock()

	status := "success"
	if !success {
		status = "error"
	}
	c.operationCounter.With(prometheus.Labels{"operation": operation, "status": status}).Inc()
	c.operationDuration.With(prometheus.Labels{"operation": operation}).Observe(duration.Seconds())
}

// RecordRemoteCall records one attempt of a remote call.
func (c *Collector) RecordRemoteCall(call string, duration time.Duration, err error) {
	if c == nil || !c.config.Enabled {
		return
	}

	c.remoteCalls.With(prometheus.Labels{"call": call, "status": classifyError(err)}).Inc()
	c.remoteDuration.With(prometheus.Labels{"call": call}).Observe(duration.Seconds())
}

// RecordCacheHit records a metadata cache hit
func (c *Collector) RecordCacheHit(string) {
	if c == nil || !c.config.Enabled {
		return
	}
	c.cacheLookups.With(prometheus.Labels{"result": "hit"}).Inc()
}

// RecordCacheMiss records a metadata cache miss
func (c *Collector) RecordCacheMiss(string) {
	if c == nil || !c.config.Enabled {
		return
	}
	c.cacheLookups.With(prometheus.Labels{"result": "miss"}).Inc()
}

// SetCacheEntries reports the number of cached entries.
func (c *Collector) SetCacheEntries(n int) {
	if c == nil || !c.config.Enabled {
		return
	}
	c.cacheEntries.Set(float64(n))
}

// Snapshot returns the current values of every metric.
func (c *Collector) Snapshot() Snapshot {
	snap := Snapshot{
		Operations:  make(map[string]OperationMetrics),
		RemoteCalls: make(map[string]float64),
	}
	if c == nil {
		return snap
	}

	c.mu.RLock()
	for name, m := range c.operations {
		snap.Operations[name] = *m
	}
	snap.Uptime = time.Since(c.started)
	c.mu.RUnlock()

	families, err := c.registry.Gather()
	if err != nil {
		c.logger.Warn("failed to gather metrics", zap.Error(err))
		return snap
	}
	for _, family := range families {
		switch family.GetName() {
		case c.metricName("remote_calls_total"):
			for _, m := range family.GetMetric() {
				snap.RemoteCalls[labelValue(m.GetLabel(), "call")] += m.GetCounter().GetValue()
			}
		case c.metricName("cache_lookups_total"):
			for _, m := range family.GetMetric() {
				if labelValue(m.GetLabel(), "result") == "hit" {
					snap.CacheHits += m.GetCounter().GetValue()
				} else {
					snap.CacheMisses += m.GetCounter().GetValue()
				}
			}
		case c.metricName("cache_entries"):
			for _, m := range family.GetMetric() {
				snap.CacheEntries = m.GetGauge().GetValue()
			}
		}
	}
	return snap
}

// OperationNames returns the recorded operation names in order.
func (s Snapshot) OperationNames() []string {
	names := make([]string, 0, len(s.Operations))
	for name := range s.Operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Collector) initMetrics() {
	ns := c.config.Namespace

	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "operations_total",
			Help:      "Total number of filesystem operations",
		},
		[]string{"operation", "status"},
	)

	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "operation_duration_seconds",
			Help:      "Duration of filesystem operations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"operation"},
	)

	c.remoteCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "remote_calls_total",
			Help:      "Total number of remote call attempts",
		},
		[]string{"call", "status"},
	)

	c.remoteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "remote_call_duration_seconds",
			Help:      "Duration of remote call attempts in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"call"},
	)

	c.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cache_lookups_total",
			Help:      "Total number of metadata cache lookups",
		},
		[]string{"result"},
	)

	c.cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "cache_entries",
			Help:      "Number of entries in the metadata cache",
		},
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.operationCounter,
		c.operationDuration,
		c.remoteCalls,
		c.remoteDuration,
		c.cacheLookups,
		c.cacheEntries,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) metricName(name string) string {
	if c.config.Namespace == "" {
		return name
	}
	return c.config.Namespace + "_" + name
}

// classifyError buckets a remote call result into a status label.
func classifyError(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.IsNotFound(err):
		return "not_found"
	case errors.IsRetryable(err):
		return "transient"
	case errors.Code(err) == errors.ErrCodeCircuitOpen:
		return "circuit_open"
	default:
		return "error"
	}
}

func (c *Collector) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"gdrivefs"}`))
}

func labelValue(labels []*dto.LabelPair, name string) string {
	for _, l := range labels {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}
