// Package monitor instruments store and engine operations with timing,
// sampling, and threshold-based alerting. It is injected into components and
// never alters their results.
package monitor

import (
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Config controls sampling and alert thresholds.
type Config struct {
	// SampleRate is the fraction of operations recorded into histograms.
	// Counters are always updated. Defaults to 1.0.
	SampleRate float64 `yaml:"sample_rate"`
	// SlowThreshold triggers a warning log for operations slower than this.
	SlowThreshold time.Duration `yaml:"slow_threshold"`
	// ErrorRateThreshold triggers an alert from the health loop when an
	// operation's error rate exceeds it. Defaults to 0.1.
	ErrorRateThreshold float64 `yaml:"error_rate_threshold"`
	// HealthInterval is the health loop polling period. Defaults to 60s.
	HealthInterval time.Duration `yaml:"health_interval"`
}

// ApplyDefaults fills zero values in place.
func (c *Config) ApplyDefaults() {
	if c.SampleRate <= 0 || c.SampleRate > 1 {
		c.SampleRate = 1.0
	}
	if c.SlowThreshold == 0 {
		c.SlowThreshold = 2 * time.Second
	}
	if c.ErrorRateThreshold == 0 {
		c.ErrorRateThreshold = 0.1
	}
	if c.HealthInterval == 0 {
		c.HealthInterval = 60 * time.Second
	}
}

// OperationStats is a point-in-time summary for one operation.
type OperationStats struct {
	Count         int64
	Errors        int64
	ErrorRate     float64
	TotalDuration time.Duration
	MaxDuration   time.Duration
}

type opStats struct {
	count    int64
	errors   int64
	totalDur time.Duration
	maxDur   time.Duration
}

// PerformanceMonitor wraps operations with timing and error accounting.
// Prometheus metrics are registered on the injected registerer; in-process
// stats back the health loop's error-rate alerting.
type PerformanceMonitor struct {
	cfg    Config
	logger *zap.Logger

	opDuration *prometheus.HistogramVec
	opTotal    *prometheus.CounterVec

	mu    sync.Mutex
	stats map[string]*opStats
}

// New creates a monitor and registers its collectors. A nil registerer skips
// prometheus registration (useful in tests); a nil logger uses a no-op logger.
func New(cfg Config, logger *zap.Logger, reg prometheus.Registerer) *PerformanceMonitor {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &PerformanceMonitor{
		cfg:    cfg,
		logger: logger,
		stats:  make(map[string]*opStats),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "retrieval_operation_duration_seconds",
			Help:    "Duration of retrieval core operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"component", "operation"}),
		opTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "retrieval_operations_total",
			Help: "Total retrieval core operations by status",
		}, []string{"component", "operation", "status"}),
	}
	if reg != nil {
		reg.MustRegister(m.opDuration, m.opTotal)
	}
	return m
}

// Observe records one finished operation. Call it with the operation start
// time and its error, typically via defer.
func (m *PerformanceMonitor) Observe(component, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	duration := time.Since(start)
	status := "success"
	if err != nil {
		status = "error"
	}
	m.opTotal.WithLabelValues(component, operation, status).Inc()
	if m.cfg.SampleRate >= 1 || rand.Float64() < m.cfg.SampleRate {
		m.opDuration.WithLabelValues(component, operation).Observe(duration.Seconds())
	}

	key := component + "." + operation
	m.mu.Lock()
	s, ok := m.stats[key]
	if !ok {
		s = &opStats{}
		m.stats[key] = s
	}
	s.count++
	if err != nil {
		s.errors++
	}
	s.totalDur += duration
	if duration > s.maxDur {
		s.maxDur = duration
	}
	m.mu.Unlock()

	if duration > m.cfg.SlowThreshold {
		m.logger.Warn("slow operation",
			zap.String("component", component),
			zap.String("operation", operation),
			zap.Duration("duration", duration),
			zap.Duration("threshold", m.cfg.SlowThreshold))
	}
}

// Stats returns a snapshot of per-operation statistics keyed by
// "component.operation".
func (m *PerformanceMonitor) Stats() map[string]OperationStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]OperationStats, len(m.stats))
	for key, s := range m.stats {
		stat := OperationStats{
			Count:         s.count,
			Errors:        s.errors,
			TotalDuration: s.totalDur,
			MaxDuration:   s.maxDur,
		}
		if s.count > 0 {
			stat.ErrorRate = float64(s.errors) / float64(s.count)
		}
		out[key] = stat
	}
	return out
}
