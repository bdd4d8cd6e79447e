// Package config provides the unified configuration system for Ferry.
// It defines a single BaseConfig structure that all connectors use,
// ensuring consistent configuration across the entire system.
//
// The configuration is organized into logical sections:
//   - Performance: Batch sizes, concurrency, streaming settings
//   - Timeouts: Connection and operation timeouts
//   - Reliability: Retry logic, circuit breakers, rate limiting
//   - Connection: Paths, formats, and connector-specific properties
//   - Observability: Metrics and logging
//   - Advanced: Optional features like compression
//
// Example usage:
//
//	cfg := config.NewBaseConfig("orders-source", "file")
//	cfg.Performance.BatchSize = 5000
//	cfg.Connection.Properties["source_path"] = "/data/orders"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"runtime"
	"time"
)

// BaseConfig is the single unified configuration structure that all
// connectors use. Connector-specific settings go into Connection.Properties.
type BaseConfig struct {
	// Name identifies the connector instance
	Name string `yaml:"name" json:"name"`
	// Type specifies the connector type (e.g., "file")
	Type string `yaml:"type" json:"type"`
	// Version indicates the configuration version
	Version string `yaml:"version" json:"version"`

	// Performance settings control throughput and resource usage
	Performance PerformanceConfig `yaml:"performance" json:"performance"`

	// Timeouts define various timeout durations
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts"`

	// Reliability settings for error handling and resilience
	Reliability ReliabilityConfig `yaml:"reliability" json:"reliability"`

	// Connection holds connector-specific properties
	Connection ConnectionConfig `yaml:"connection" json:"connection"`

	// Observability settings for monitoring and debugging
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`

	// Advanced features and optimizations
	Advanced AdvancedConfig `yaml:"advanced" json:"advanced"`
}

// PerformanceConfig contains all performance-related settings.
type PerformanceConfig struct {
	// BatchSize controls the number of records processed together
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// BufferSize sets the size of internal channels and buffers
	BufferSize int `yaml:"buffer_size" json:"buffer_size"`
	// Workers defines the number of concurrent workers
	Workers int `yaml:"workers" json:"workers"`
	// MaxConcurrency limits total concurrent operations
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency"`
	// FlushInterval triggers periodic batch flushes
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval"`
	// EnableStreaming enables streaming mode if supported
	EnableStreaming bool `yaml:"enable_streaming" json:"enable_streaming"`
}

// TimeoutConfig contains all timeout-related settings.
type TimeoutConfig struct {
	// Request timeout for individual operations
	Request time.Duration `yaml:"request" json:"request"`
	// Connection timeout for opening files or establishing connections
	Connection time.Duration `yaml:"connection" json:"connection"`
	// ReadTimeout for read operations
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`
	// WriteTimeout for write operations
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// ReliabilityConfig contains reliability and error handling settings.
type ReliabilityConfig struct {
	// RetryAttempts sets maximum retry attempts for failed operations
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts"`
	// RetryDelay is the initial delay between retries
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// RetryMultiplier increases delay exponentially
	RetryMultiplier float64 `yaml:"retry_multiplier" json:"retry_multiplier"`
	// MaxRetryDelay caps the maximum retry delay
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" json:"max_retry_delay"`
	// CircuitBreaker enables circuit breaker pattern
	CircuitBreaker bool `yaml:"circuit_breaker" json:"circuit_breaker"`
	// RateLimitPerSec limits operations per second (0 = unlimited)
	RateLimitPerSec int `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	// FailFast stops on first error instead of continuing
	FailFast bool `yaml:"fail_fast" json:"fail_fast"`
}

// ConnectionConfig holds connector-specific properties such as source paths,
// format names and format options. Using a flat string map keeps the unified
// config structure stable while each connector documents the keys it reads.
type ConnectionConfig struct {
	// Properties stores connector-specific key/value settings
	Properties map[string]string `yaml:"properties" json:"properties"`
}

// ObservabilityConfig contains monitoring and observability settings.
type ObservabilityConfig struct {
	// EnableMetrics activates Prometheus metrics collection
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	// EnableLogging controls logging output
	EnableLogging bool `yaml:"enable_logging" json:"enable_logging"`
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// AdvancedConfig contains optional advanced features.
type AdvancedConfig struct {
	// EnableCompression activates data compression on file destinations
	EnableCompression bool `yaml:"enable_compression" json:"enable_compression"`
	// CompressionAlgorithm selects compression type (gzip, snappy, s2, lz4, zstd)
	CompressionAlgorithm string `yaml:"compression_algorithm" json:"compression_algorithm"`
	// CompressionLevel sets compression ratio vs speed (1-9)
	CompressionLevel int `yaml:"compression_level" json:"compression_level"`
	// Debug enables detailed debug output
	Debug bool `yaml:"debug" json:"debug"`
}

// NewBaseConfig creates a new BaseConfig with sensible defaults.
func NewBaseConfig(name, connectorType string) *BaseConfig {
	return &BaseConfig{
		Name:    name,
		Type:    connectorType,
		Version: "1.0.0",
		Performance: PerformanceConfig{
			BatchSize:       1000,
			BufferSize:      10000,
			Workers:         runtime.NumCPU(),
			MaxConcurrency:  10,
			FlushInterval:   10 * time.Second,
			EnableStreaming: true,
		},
		Timeouts: TimeoutConfig{
			Request:      30 * time.Second,
			Connection:   10 * time.Second,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Reliability: ReliabilityConfig{
			RetryAttempts:   3,
			RetryDelay:      time.Second,
			RetryMultiplier: 2.0,
			MaxRetryDelay:   60 * time.Second,
			CircuitBreaker:  true,
			RateLimitPerSec: 0,
			FailFast:        false,
		},
		Connection: ConnectionConfig{
			Properties: make(map[string]string),
		},
		Observability: ObservabilityConfig{
			EnableMetrics: true,
			EnableLogging: true,
			LogLevel:      "info",
		},
		Advanced: AdvancedConfig{
			EnableCompression:    false,
			CompressionAlgorithm: "gzip",
			CompressionLevel:     6,
		},
	}
}

// Validate validates the configuration for correctness. Connectors should
// call this after loading configuration to catch errors early.
func (bc *BaseConfig) Validate() error {
	if bc.Name == "" {
		return fmt.Errorf("name is required")
	}
	if bc.Type == "" {
		return fmt.Errorf("type is required")
	}
	if bc.Performance.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if bc.Performance.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive")
	}
	if bc.Performance.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be positive")
	}
	if bc.Reliability.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts cannot be negative")
	}
	if bc.Reliability.RateLimitPerSec < 0 {
		return fmt.Errorf("rate_limit_per_sec cannot be negative")
	}
	return nil
}

// Property returns the named connection property, or the empty string when
// the property is not set.
func (bc *BaseConfig) Property(key string) string {
	if bc.Connection.Properties == nil {
		return ""
	}
	return bc.Connection.Properties[key]
}

// GetWorkers returns the number of workers, ensuring it's at least 1
func (p *PerformanceConfig) GetWorkers() int {
	if p.Workers <= 0 {
		return runtime.NumCPU()
	}
	return p.Workers
}

// IsRateLimited returns true if rate limiting is enabled
func (r *ReliabilityConfig) IsRateLimited() bool {
	return r.RateLimitPerSec > 0
}

// IsCompressionEnabled returns true if compression should be used
func (a *AdvancedConfig) IsCompressionEnabled() bool {
	return a.EnableCompression && a.CompressionAlgorithm != ""
}
