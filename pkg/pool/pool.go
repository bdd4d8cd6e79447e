// Package pool provides object pooling for Ferry's record pipeline.
// It offers a generic type-safe Pool[T] plus pre-configured global pools
// for the types that flow through connectors: records, data maps, and
// record batches. Pooling keeps allocation pressure low when millions of
// records move between a source and a destination.
//
// Example usage:
//
//	record := pool.GetRecord()
//	defer record.Release()
//
//	record.SetData("name", "John")
//	record.SetData("age", 30)
package pool

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Pool represents a generic object pool with type safety. It wraps
// sync.Pool with usage statistics and an optional reset function that is
// applied before an object is returned for reuse. Safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
	}
}

// New creates a new typed pool with custom allocation and reset functions.
// The reset function may be nil when objects need no cleanup.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return newFn()
	}
	return p
}

// Get retrieves an object from the pool, allocating one if the pool is empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool for reuse, resetting it first when a
// reset function was configured.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats returns the total number of allocations and the number of objects
// currently checked out.
func (p *Pool[T]) Stats() (allocated, inUse int64) {
	return atomic.LoadInt64(&p.stats.allocated), atomic.LoadInt64(&p.stats.inUse)
}

// RecordMetadata carries provenance for a record. All fields are optional;
// file-based sources fill Source, File and RowNumber, streaming destinations
// only read what they need.
type RecordMetadata struct {
	// Source identifies the origin connector
	Source string `json:"source,omitempty"`
	// File is the path of the file the record was read from
	File string `json:"file,omitempty"`
	// RowNumber is the 1-based row within the source file
	RowNumber int64 `json:"row_number,omitempty"`
	// Timestamp is when the record was captured
	Timestamp time.Time `json:"timestamp"`
	// Custom holds connector-specific metadata
	Custom map[string]interface{} `json:"custom,omitempty"`
}

// Record is the unified record type used throughout Ferry. Records should be
// obtained from the global pool via GetRecord rather than created directly,
// and released with Release when processing is done.
type Record struct {
	// ID is a unique identifier for the record
	ID string `json:"id"`
	// Data contains the actual record payload
	Data map[string]interface{} `json:"data"`
	// Metadata contains source and timing information
	Metadata RecordMetadata `json:"metadata"`
}

var (
	// RecordPool provides pooling for Record objects. The reset function
	// clears all fields before reuse.
	RecordPool = New(
		func() *Record {
			return &Record{
				Data: make(map[string]interface{}, 16),
			}
		},
		func(r *Record) {
			r.ID = ""
			for k := range r.Data {
				delete(r.Data, k)
			}
			if r.Metadata.Custom != nil {
				for k := range r.Metadata.Custom {
					delete(r.Metadata.Custom, k)
				}
			}
			r.Metadata = RecordMetadata{}
		},
	)

	// MapPool provides pooling for map[string]interface{} payloads.
	MapPool = New(
		func() map[string]interface{} {
			return make(map[string]interface{}, 16)
		},
		func(m map[string]interface{}) {
			for k := range m {
				delete(m, k)
			}
		},
	)

	// BatchSlicePool provides pooling for record batches.
	BatchSlicePool = New(
		func() []*Record {
			return make([]*Record, 0, 1000)
		},
		func(s []*Record) {
			for i := range s {
				s[i] = nil
			}
		},
	)
)

// GetRecord retrieves a Record from the global pool with a fresh timestamp.
func GetRecord() *Record {
	r := RecordPool.Get()
	r.Metadata.Timestamp = time.Now()
	return r
}

// PutRecord returns a Record to the global pool. Safe to call with nil.
func PutRecord(record *Record) {
	if record == nil {
		return
	}
	if record.Metadata.Custom != nil {
		MapPool.Put(record.Metadata.Custom)
		record.Metadata.Custom = nil
	}
	RecordPool.Put(record)
}

// GetMap retrieves a payload map from the global pool.
func GetMap() map[string]interface{} {
	return MapPool.Get()
}

// PutMap returns a payload map to the global pool.
func PutMap(m map[string]interface{}) {
	if m != nil {
		MapPool.Put(m)
	}
}

// GetBatchSlice retrieves a batch slice with at least the given capacity.
func GetBatchSlice(capacity int) []*Record {
	s := BatchSlicePool.Get()
	if cap(s) < capacity {
		return make([]*Record, 0, capacity)
	}
	return s[:0]
}

// PutBatchSlice returns a batch slice to the pool. The records it holds are
// not released; callers own their lifecycle.
func PutBatchSlice(s []*Record) {
	if s != nil {
		BatchSlicePool.Put(s)
	}
}

// NewRecord creates a pooled record for the given source with the supplied
// payload copied into the pooled data map.
func NewRecord(source string, data map[string]interface{}) *Record {
	r := GetRecord()
	r.ID = GenerateID(source)
	r.Metadata.Source = source
	for k, v := range data {
		r.Data[k] = v
	}
	return r
}

// GenerateID produces a unique record identifier with a source prefix.
func GenerateID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// SetData sets a data field on the record.
func (r *Record) SetData(key string, value interface{}) {
	if r.Data == nil {
		r.Data = GetMap()
	}
	r.Data[key] = value
}

// GetData retrieves a data field from the record.
func (r *Record) GetData(key string) (interface{}, bool) {
	if r.Data == nil {
		return nil, false
	}
	v, ok := r.Data[key]
	return v, ok
}

// SetMetadata sets a custom metadata field on the record.
func (r *Record) SetMetadata(key string, value interface{}) {
	if r.Metadata.Custom == nil {
		r.Metadata.Custom = GetMap()
	}
	r.Metadata.Custom[key] = value
}

// GetMetadata retrieves a custom metadata field from the record.
func (r *Record) GetMetadata(key string) (interface{}, bool) {
	if r.Metadata.Custom == nil {
		return nil, false
	}
	v, ok := r.Metadata.Custom[key]
	return v, ok
}

// Release returns the record to the global pool.
func (r *Record) Release() {
	PutRecord(r)
}
