package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortexdata/ferry/pkg/config"
	"github.com/vortexdata/ferry/pkg/connector/core"
	"github.com/vortexdata/ferry/pkg/errors"
	"github.com/vortexdata/ferry/pkg/pool"
)

type fakeSource struct {
	rows    []map[string]interface{}
	readErr error
}

func (s *fakeSource) Initialize(ctx context.Context, cfg *config.BaseConfig) error { return nil }
func (s *fakeSource) Close(ctx context.Context) error                              { return nil }
func (s *fakeSource) Health(ctx context.Context) error                             { return nil }
func (s *fakeSource) Metrics() map[string]interface{}                              { return nil }
func (s *fakeSource) GetState() core.State                                         { return nil }
func (s *fakeSource) SetState(state core.State) error                              { return nil }
func (s *fakeSource) SupportsBatch() bool                                          { return false }
func (s *fakeSource) SupportsStreaming() bool                                      { return true }

func (s *fakeSource) Discover(ctx context.Context) (*core.Schema, error) {
	return &core.Schema{Name: "fake"}, nil
}

func (s *fakeSource) Read(ctx context.Context) (*core.RecordStream, error) {
	recordChan := make(chan *pool.Record, len(s.rows))
	errorChan := make(chan error, 1)

	go func() {
		defer close(recordChan)
		defer close(errorChan)
		for _, row := range s.rows {
			recordChan <- pool.NewRecord("fake", row)
		}
		if s.readErr != nil {
			errorChan <- s.readErr
		}
	}()

	return &core.RecordStream{Records: recordChan, Errors: errorChan}, nil
}

func (s *fakeSource) ReadBatch(ctx context.Context, batchSize int) (*core.BatchStream, error) {
	return nil, errors.New(errors.ErrorTypeCapability, "batch reads not supported")
}

type fakeDestination struct {
	mu      sync.Mutex
	records []*pool.Record
	schema  *core.Schema
}

func (d *fakeDestination) Initialize(ctx context.Context, cfg *config.BaseConfig) error { return nil }
func (d *fakeDestination) Close(ctx context.Context) error                              { return nil }
func (d *fakeDestination) Health(ctx context.Context) error                             { return nil }
func (d *fakeDestination) Metrics() map[string]interface{}                              { return nil }
func (d *fakeDestination) SupportsBatch() bool                                          { return true }
func (d *fakeDestination) SupportsStreaming() bool                                      { return false }

func (d *fakeDestination) CreateSchema(ctx context.Context, schema *core.Schema) error {
	d.schema = schema
	return nil
}

func (d *fakeDestination) Write(ctx context.Context, stream *core.RecordStream) error {
	return errors.New(errors.ErrorTypeCapability, "streaming writes not supported")
}

func (d *fakeDestination) WriteBatch(ctx context.Context, stream *core.BatchStream) error {
	for batch := range stream.Batches {
		d.mu.Lock()
		d.records = append(d.records, batch...)
		d.mu.Unlock()
	}
	return nil
}

func (d *fakeDestination) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

func rows(n int) []map[string]interface{} {
	out := make([]map[string]interface{}, n)
	for i := range out {
		out[i] = map[string]interface{}{"n": int64(i)}
	}
	return out
}

func TestPipelineRun(t *testing.T) {
	source := &fakeSource{rows: rows(25)}
	dest := &fakeDestination{}

	p := New(source, dest, &Config{BatchSize: 10, WorkerCount: 2, FlushInterval: time.Second})
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, 25, dest.count())
	assert.NotNil(t, dest.schema)

	m := p.Metrics()
	assert.Equal(t, int64(25), m["records_processed"])
	assert.Equal(t, int64(0), m["records_failed"])
}

func TestPipelineTransforms(t *testing.T) {
	source := &fakeSource{rows: rows(10)}
	dest := &fakeDestination{}

	p := New(source, dest, &Config{BatchSize: 100, WorkerCount: 1, FlushInterval: time.Second})
	p.AddTransform(FilterTransform(func(r *pool.Record) bool {
		n, _ := r.Data["n"].(int64)
		return n%2 == 0
	}))
	p.AddTransform(FieldMapperTransform(map[string]string{"n": "number"}))

	require.NoError(t, p.Run(context.Background()))

	require.Equal(t, 5, dest.count())
	for _, r := range dest.records {
		_, hasOld := r.Data["n"]
		assert.False(t, hasOld)
		assert.Contains(t, r.Data, "number")
	}
}

func TestPipelineTransformError(t *testing.T) {
	source := &fakeSource{rows: rows(3)}
	dest := &fakeDestination{}

	p := New(source, dest, nil)
	p.AddTransform(func(ctx context.Context, r *pool.Record) (*pool.Record, error) {
		if n, _ := r.Data["n"].(int64); n == 1 {
			return nil, errors.New(errors.ErrorTypeData, "bad record")
		}
		return r, nil
	})

	err := p.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, 2, dest.count())
	m := p.Metrics()
	assert.Equal(t, int64(1), m["records_failed"])
}

func TestPipelineSourceError(t *testing.T) {
	source := &fakeSource{
		rows:    rows(2),
		readErr: errors.New(errors.ErrorTypeConnection, "source went away"),
	}
	dest := &fakeDestination{}

	p := New(source, dest, nil)
	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source went away")
	assert.Equal(t, 2, dest.count())
}

func TestPipelineCancellation(t *testing.T) {
	source := &fakeSource{rows: rows(5)}
	dest := &fakeDestination{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(source, dest, nil)
	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipelineCancelDuringSlowTransform(t *testing.T) {
	source := &fakeSource{rows: rows(8)}
	dest := &fakeDestination{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	var once sync.Once

	p := New(source, dest, &Config{BatchSize: 2, WorkerCount: 2, FlushInterval: time.Second})
	p.AddTransform(func(ctx context.Context, r *pool.Record) (*pool.Record, error) {
		once.Do(func() { close(started) })
		// Keep the worker inside the transform while the rest of the
		// pipeline shuts down, so its error lands after cancellation.
		time.Sleep(20 * time.Millisecond)
		return nil, errors.New(errors.ErrorTypeData, "transform blew up")
	})

	go func() {
		<-started
		cancel()
	}()

	err := p.Run(ctx)
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1000, cfg.BatchSize)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, time.Second, cfg.FlushInterval)

	p := New(&fakeSource{}, &fakeDestination{}, &Config{})
	assert.Equal(t, 1000, p.batchSize)
}
