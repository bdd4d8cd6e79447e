package core

import (
	"context"
	"time"

	"github.com/vortexdata/ferry/pkg/config"
	"github.com/vortexdata/ferry/pkg/pool"
)

// ConnectorType represents the type of connector
type ConnectorType string

const (
	ConnectorTypeSource      ConnectorType = "source"
	ConnectorTypeDestination ConnectorType = "destination"
)

// State represents connector state
type State map[string]interface{}

// Schema represents the data schema
type Schema struct {
	Name        string
	Description string
	Fields      []Field
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Field represents a field in the schema
type Field struct {
	Name        string
	Type        FieldType
	Description string
	Nullable    bool
}

// FieldType represents the data type of a field
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeInt       FieldType = "int"
	FieldTypeFloat     FieldType = "float"
	FieldTypeBool      FieldType = "bool"
	FieldTypeTimestamp FieldType = "timestamp"
	FieldTypeJSON      FieldType = "json"
)

// RecordStream represents a stream of records
type RecordStream struct {
	Records <-chan *pool.Record
	Errors  <-chan error
}

// BatchStream represents a stream of record batches
type BatchStream struct {
	Batches <-chan []*pool.Record
	Errors  <-chan error
}

// Source is the interface that all source connectors must implement
type Source interface {
	// Core functionality
	Initialize(ctx context.Context, config *config.BaseConfig) error
	Discover(ctx context.Context) (*Schema, error)
	Read(ctx context.Context) (*RecordStream, error)
	ReadBatch(ctx context.Context, batchSize int) (*BatchStream, error)
	Close(ctx context.Context) error

	// State management
	GetState() State
	SetState(state State) error

	// Capabilities
	SupportsBatch() bool
	SupportsStreaming() bool

	// Health and metrics
	Health(ctx context.Context) error
	Metrics() map[string]interface{}
}

// Destination is the interface that all destination connectors must implement
type Destination interface {
	// Core functionality
	Initialize(ctx context.Context, config *config.BaseConfig) error
	CreateSchema(ctx context.Context, schema *Schema) error
	Write(ctx context.Context, stream *RecordStream) error
	WriteBatch(ctx context.Context, stream *BatchStream) error
	Close(ctx context.Context) error

	// Capabilities
	SupportsBatch() bool
	SupportsStreaming() bool

	// Health and metrics
	Health(ctx context.Context) error
	Metrics() map[string]interface{}
}

// Connector is the base interface for all connectors
type Connector interface {
	// Metadata
	Name() string
	Type() ConnectorType
	Version() string

	// Lifecycle
	Initialize(ctx context.Context, config *config.BaseConfig) error
	Close(ctx context.Context) error

	// Health and monitoring
	Health(ctx context.Context) error
	Metrics() map[string]interface{}
}

// MetricType represents the type of metric
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
)

// HealthStatus represents the health status of a connector
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy", "unhealthy", "degraded"
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details"`
	Error     error                  `json:"error,omitempty"`
}

// TransformFunc is a function that transforms records
type TransformFunc func(record *pool.Record) (*pool.Record, error)

// FilterFunc is a function that filters records
type FilterFunc func(record *pool.Record) bool
