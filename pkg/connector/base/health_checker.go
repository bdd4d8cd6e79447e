package base

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vortexdata/ferry/pkg/connector/core"
	"github.com/vortexdata/ferry/pkg/logger"
)

// HealthChecker performs periodic health checks
type HealthChecker struct {
	name         string
	interval     time.Duration
	status       *core.HealthStatus
	statusMutex  sync.RWMutex
	checkFunc    func(ctx context.Context) error
	logger       *zap.Logger
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	checkCount   int64
	failureCount int64
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(name string, interval time.Duration) *HealthChecker {
	return &HealthChecker{
		name:     name,
		interval: interval,
		status: &core.HealthStatus{
			Status:    "healthy",
			Timestamp: time.Now(),
			Details:   make(map[string]interface{}),
		},
		logger: logger.Get().With(zap.String("component", "health_checker"), zap.String("connector", name)),
		stopCh: make(chan struct{}),
	}
}

// SetCheckFunc sets the health check function
func (hc *HealthChecker) SetCheckFunc(fn func(ctx context.Context) error) {
	hc.checkFunc = fn
}

// Start begins periodic health checks
func (hc *HealthChecker) Start(ctx context.Context) {
	hc.wg.Add(1)
	go func() {
		defer hc.wg.Done()
		ticker := time.NewTicker(hc.interval)
		defer ticker.Stop()

		hc.performCheck(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-hc.stopCh:
				return
			case <-ticker.C:
				hc.performCheck(ctx)
			}
		}
	}()
}

// Stop stops the health checker
func (hc *HealthChecker) Stop() {
	hc.stopOnce.Do(func() {
		close(hc.stopCh)
	})
	hc.wg.Wait()
}

// performCheck executes a health check
func (hc *HealthChecker) performCheck(ctx context.Context) {
	atomic.AddInt64(&hc.checkCount, 1)

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var err error
	if hc.checkFunc != nil {
		err = hc.checkFunc(checkCtx)
	}

	hc.statusMutex.Lock()
	defer hc.statusMutex.Unlock()

	hc.status.Timestamp = time.Now()
	if err != nil {
		atomic.AddInt64(&hc.failureCount, 1)
		hc.status.Status = "unhealthy"
		hc.status.Error = err
		hc.logger.Warn("health check failed", zap.Error(err))
	} else {
		hc.status.Status = "healthy"
		hc.status.Error = nil
	}
}

// UpdateStatus updates the health status from connector code
func (hc *HealthChecker) UpdateStatus(healthy bool, details map[string]interface{}) {
	hc.statusMutex.Lock()
	defer hc.statusMutex.Unlock()

	if healthy {
		hc.status.Status = "healthy"
		hc.status.Error = nil
	} else {
		hc.status.Status = "unhealthy"
	}
	hc.status.Timestamp = time.Now()
	for k, v := range details {
		hc.status.Details[k] = v
	}
}

// GetStatus returns a copy of the current health status
func (hc *HealthChecker) GetStatus() core.HealthStatus {
	hc.statusMutex.RLock()
	defer hc.statusMutex.RUnlock()

	details := make(map[string]interface{}, len(hc.status.Details))
	for k, v := range hc.status.Details {
		details[k] = v
	}
	return core.HealthStatus{
		Status:    hc.status.Status,
		Timestamp: hc.status.Timestamp,
		Details:   details,
		Error:     hc.status.Error,
	}
}

// CheckCount returns the number of checks performed
func (hc *HealthChecker) CheckCount() int64 {
	return atomic.LoadInt64(&hc.checkCount)
}

// FailureCount returns the number of failed checks
func (hc *HealthChecker) FailureCount() int64 {
	return atomic.LoadInt64(&hc.failureCount)
}
