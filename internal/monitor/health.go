package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// HealthChecker is the probe the health loop polls. Satisfied by the vector
// store's HealthCheck method.
type HealthChecker interface {
	HealthCheck(ctx context.Context) (bool, error)
}

// StartHealthLoop polls target at the configured interval, logging health
// transitions and alerting on elevated error rates. It observes only; query
// results are never touched. The loop stops when ctx is canceled.
func (m *PerformanceMonitor) StartHealthLoop(ctx context.Context, name string, target HealthChecker) {
	go func() {
		ticker := time.NewTicker(m.cfg.HealthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.pollHealth(ctx, name, target)
			}
		}
	}()
}

func (m *PerformanceMonitor) pollHealth(ctx context.Context, name string, target HealthChecker) {
	healthy, err := target.HealthCheck(ctx)
	if err != nil || !healthy {
		m.logger.Error("backend unhealthy",
			zap.String("backend", name),
			zap.Bool("healthy", healthy),
			zap.Error(err))
	} else {
		m.logger.Debug("backend healthy", zap.String("backend", name))
	}

	for op, stats := range m.Stats() {
		if stats.Count >= 10 && stats.ErrorRate > m.cfg.ErrorRateThreshold {
			m.logger.Warn("elevated operation error rate",
				zap.String("operation", op),
				zap.Float64("error_rate", stats.ErrorRate),
				zap.Float64("threshold", m.cfg.ErrorRateThreshold),
				zap.Int64("count", stats.Count))
		}
	}
}
