// Package base provides the foundational BaseConnector that all Ferry
// connectors embed. It implements the production features every connector
// needs: circuit breakers, rate limiting, health monitoring, metrics
// collection, retry logic, and error handling.
//
// All connectors should embed BaseConnector:
//
//	type FileSource struct {
//	    *base.BaseConnector
//	    // connector-specific fields
//	}
//
//	func NewFileSource() *FileSource {
//	    return &FileSource{
//	        BaseConnector: base.NewBaseConnector("file", core.ConnectorTypeSource, "1.0.0"),
//	    }
//	}
package base

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vortexdata/ferry/pkg/clients"
	"github.com/vortexdata/ferry/pkg/config"
	"github.com/vortexdata/ferry/pkg/connector/core"
	"github.com/vortexdata/ferry/pkg/errors"
	"github.com/vortexdata/ferry/pkg/logger"
	"github.com/vortexdata/ferry/pkg/metrics"
	"github.com/vortexdata/ferry/pkg/pool"
)

// BaseConnector provides common functionality for all connectors.
type BaseConnector struct {
	// Core fields
	name          string
	connectorType core.ConnectorType
	version       string
	config        *config.BaseConfig
	logger        *zap.Logger

	// State management
	state      core.State
	stateMutex sync.RWMutex

	// Resource management
	ctx        context.Context
	cancel     context.CancelFunc
	closed     bool
	closeMutex sync.Mutex

	// Production features
	circuitBreaker   *clients.CircuitBreaker
	rateLimiter      clients.RateLimiter
	healthChecker    *HealthChecker
	metricsCollector *metrics.Collector
	errorHandler     *ErrorHandler
	retryPolicy      *RetryPolicy
	progressReporter *ProgressReporter
}

// NewBaseConnector creates a new base connector with the specified name,
// type, and version. Connector implementations call this during construction.
func NewBaseConnector(name string, connectorType core.ConnectorType, version string) *BaseConnector {
	return &BaseConnector{
		name:          name,
		connectorType: connectorType,
		version:       version,
		state:         make(core.State),
		logger:        logger.Get().With(zap.String("connector", name)),
	}
}

// Initialize sets up all production features of the base connector. This
// must be called before using the connector.
func (bc *BaseConnector) Initialize(ctx context.Context, config *config.BaseConfig) error {
	bc.config = config
	bc.ctx, bc.cancel = context.WithCancel(ctx)

	bc.circuitBreaker = clients.NewCircuitBreaker(clients.CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		Timeout:          30 * time.Second,
	})

	if config.Reliability.RateLimitPerSec > 0 {
		bc.rateLimiter = clients.NewRateLimiter(
			config.Reliability.RateLimitPerSec,
			config.Reliability.RateLimitPerSec*2,
		)
	}

	bc.healthChecker = NewHealthChecker(bc.name, 30*time.Second)
	bc.healthChecker.Start(bc.ctx)

	bc.metricsCollector = metrics.NewCollector(bc.name)

	bc.errorHandler = NewErrorHandler(
		bc.logger,
		config.Reliability.RetryAttempts,
		config.Reliability.RetryDelay,
	)

	bc.retryPolicy = NewRetryPolicy(
		config.Reliability.RetryAttempts,
		config.Reliability.RetryDelay,
	)

	bc.progressReporter = NewProgressReporter(bc.logger, bc.metricsCollector)

	bc.logger.Info("connector initialized",
		zap.String("type", string(bc.connectorType)),
		zap.String("version", bc.version))

	return nil
}

// Name returns the connector name
func (bc *BaseConnector) Name() string {
	return bc.name
}

// Type returns the connector type
func (bc *BaseConnector) Type() core.ConnectorType {
	return bc.connectorType
}

// Version returns the connector version
func (bc *BaseConnector) Version() string {
	return bc.version
}

// GetState returns a copy of the current state
func (bc *BaseConnector) GetState() core.State {
	bc.stateMutex.RLock()
	defer bc.stateMutex.RUnlock()

	stateCopy := make(core.State)
	for k, v := range bc.state {
		stateCopy[k] = v
	}
	return stateCopy
}

// SetState updates the connector state
func (bc *BaseConnector) SetState(state core.State) error {
	bc.stateMutex.Lock()
	defer bc.stateMutex.Unlock()

	bc.state = state
	bc.logger.Debug("state updated", zap.Any("state", state))
	return nil
}

// Health performs a health check
func (bc *BaseConnector) Health(ctx context.Context) error {
	if bc.closed {
		return errors.New(errors.ErrorTypeConnection, "connector is closed")
	}

	status := bc.healthChecker.GetStatus()
	if status.Status != "healthy" {
		return errors.Wrap(status.Error, errors.ErrorTypeHealth, "health check failed")
	}

	return nil
}

// Metrics returns current metrics
func (bc *BaseConnector) Metrics() map[string]interface{} {
	m := bc.metricsCollector.GetAll()

	m["name"] = bc.name
	m["type"] = bc.connectorType
	m["version"] = bc.version
	m["uptime"] = time.Since(bc.metricsCollector.StartTime()).Seconds()

	if bc.circuitBreaker != nil {
		cbState := bc.circuitBreaker.GetState()
		m["circuit_breaker_state"] = cbState.State
		m["circuit_breaker_failure_rate"] = cbState.FailureRate
	}

	if bc.rateLimiter != nil {
		rlStats := bc.rateLimiter.GetStats()
		m["rate_limit"] = rlStats.Rate
		m["rate_limiter_allowed"] = rlStats.AllowedRequests
		m["rate_limiter_blocked"] = rlStats.BlockedRequests
	}

	if bc.healthChecker != nil {
		status := bc.healthChecker.GetStatus()
		m["health_status"] = status.Status
		m["health_check_count"] = bc.healthChecker.CheckCount()
		m["health_failure_count"] = bc.healthChecker.FailureCount()
	}

	return m
}

// Close shuts down the connector
func (bc *BaseConnector) Close(ctx context.Context) error {
	bc.closeMutex.Lock()
	defer bc.closeMutex.Unlock()

	if bc.closed {
		return nil
	}

	bc.logger.Info("closing connector")

	if bc.cancel != nil {
		bc.cancel()
	}

	if bc.healthChecker != nil {
		bc.healthChecker.Stop()
	}

	bc.closed = true
	bc.logger.Info("connector closed")

	return nil
}

// ExecuteWithRetry executes a function with automatic retry logic and
// exponential backoff.
func (bc *BaseConnector) ExecuteWithRetry(ctx context.Context, fn func() error) error {
	return bc.retryPolicy.Execute(ctx, fn)
}

// ExecuteWithCircuitBreaker executes a function with circuit breaker
// protection. If the circuit is open due to excessive failures, the function
// is not executed and an error is returned immediately.
func (bc *BaseConnector) ExecuteWithCircuitBreaker(fn func() error) error {
	return bc.circuitBreaker.Execute(fn)
}

// RateLimit enforces the configured rate limit, blocking if necessary.
// Returns immediately if no rate limiter is configured.
func (bc *BaseConnector) RateLimit(ctx context.Context) error {
	if bc.rateLimiter == nil {
		return nil
	}
	return bc.rateLimiter.Wait(ctx)
}

// RecordMetric records a metric
func (bc *BaseConnector) RecordMetric(name string, value interface{}, metricType core.MetricType) {
	bc.metricsCollector.Record(name, value)
}

// HandleError handles an error with the configured error handler
func (bc *BaseConnector) HandleError(ctx context.Context, err error, record *pool.Record) error {
	return bc.errorHandler.HandleError(ctx, err, record)
}

// ShouldRetry checks if an error should be retried
func (bc *BaseConnector) ShouldRetry(err error) bool {
	return bc.errorHandler.ShouldRetry(err)
}

// ReportProgress reports operation progress
func (bc *BaseConnector) ReportProgress(processed, total int64) {
	bc.progressReporter.ReportProgress(processed, total)
}

// GetLogger returns the connector logger
func (bc *BaseConnector) GetLogger() *zap.Logger {
	return bc.logger
}

// GetConfig returns the connector configuration
func (bc *BaseConnector) GetConfig() *config.BaseConfig {
	return bc.config
}

// GetContext returns the connector context
func (bc *BaseConnector) GetContext() context.Context {
	return bc.ctx
}

// GetMetricsCollector returns the metrics collector
func (bc *BaseConnector) GetMetricsCollector() *metrics.Collector {
	return bc.metricsCollector
}

// IsHealthy returns true if the connector is healthy
func (bc *BaseConnector) IsHealthy() bool {
	if bc.closed {
		return false
	}

	if bc.healthChecker != nil {
		status := bc.healthChecker.GetStatus()
		return status.Status == "healthy"
	}

	return true
}

// UpdateHealth updates the health status
func (bc *BaseConnector) UpdateHealth(healthy bool, details map[string]interface{}) {
	if bc.healthChecker != nil {
		bc.healthChecker.UpdateStatus(healthy, details)
	}
}

// Validate validates the connector configuration, applying defaults for
// unset performance settings.
func (bc *BaseConnector) Validate() error {
	if bc.config == nil {
		return errors.New(errors.ErrorTypeConfig, "configuration is required")
	}

	if bc.config.Name == "" {
		return errors.New(errors.ErrorTypeConfig, "connector name is required")
	}

	if bc.config.Performance.BatchSize <= 0 {
		bc.config.Performance.BatchSize = 1000
	}

	if bc.config.Performance.MaxConcurrency <= 0 {
		bc.config.Performance.MaxConcurrency = 10
	}

	if bc.config.Performance.BufferSize <= 0 {
		bc.config.Performance.BufferSize = 10000
	}

	return nil
}
