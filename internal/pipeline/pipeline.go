// Package pipeline orchestrates data flow from a source connector to a
// destination connector with optional in-flight transformations. Records
// stream through parallel transform workers into a batch collector that
// feeds the destination, with periodic flushing so records never sit in a
// partial batch indefinitely.
package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vortexdata/ferry/pkg/connector/core"
	"github.com/vortexdata/ferry/pkg/errors"
	"github.com/vortexdata/ferry/pkg/logger"
	"github.com/vortexdata/ferry/pkg/metrics"
	"github.com/vortexdata/ferry/pkg/pool"
)

// Transform modifies a record in flight. Returning nil drops the record;
// returning an error counts it as failed.
type Transform func(ctx context.Context, record *pool.Record) (*pool.Record, error)

// Config controls pipeline behavior.
type Config struct {
	// BatchSize is the number of records grouped per destination write
	BatchSize int
	// WorkerCount is the number of parallel transform workers
	WorkerCount int
	// FlushInterval bounds how long a partial batch may wait
	FlushInterval time.Duration
}

// DefaultConfig returns defaults suitable for general use.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:     1000,
		WorkerCount:   4,
		FlushInterval: time.Second,
	}
}

// Pipeline streams records from a source to a destination.
type Pipeline struct {
	source      core.Source
	destination core.Destination
	transforms  []Transform

	batchSize     int
	workerCount   int
	flushInterval time.Duration

	recordsProcessed int64
	recordsFailed    int64
	startTime        time.Time

	log       *zap.Logger
	collector *metrics.Collector
	mu        sync.Mutex
	wg        sync.WaitGroup
}

// New creates a pipeline. A nil config uses DefaultConfig.
func New(source core.Source, destination core.Destination, cfg *Config) *Pipeline {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultConfig().WorkerCount
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}

	return &Pipeline{
		source:        source,
		destination:   destination,
		batchSize:     cfg.BatchSize,
		workerCount:   cfg.WorkerCount,
		flushInterval: cfg.FlushInterval,
		log:           logger.Get().Named("pipeline"),
		collector:     metrics.NewCollector("pipeline"),
	}
}

// AddTransform appends a transform. Transforms run in order for every
// record.
func (p *Pipeline) AddTransform(t Transform) {
	p.transforms = append(p.transforms, t)
}

// Run streams until the source is exhausted or the context is canceled.
// It blocks until all in-flight records are drained to the destination.
func (p *Pipeline) Run(ctx context.Context) error {
	p.startTime = time.Now()
	p.log.Info("starting pipeline",
		zap.Int("batch_size", p.batchSize),
		zap.Int("workers", p.workerCount),
		zap.Int("transforms", len(p.transforms)))

	schema, err := p.source.Discover(ctx)
	if err == nil {
		if err := p.destination.CreateSchema(ctx, schema); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to create destination schema")
		}
	}

	recordChan := make(chan *pool.Record, p.batchSize*2)
	transformedChan := make(chan *pool.Record, p.batchSize*2)
	batchChan := make(chan []*pool.Record, 10)
	errorChan := make(chan error, 100)

	p.wg.Add(1)
	go p.readSource(ctx, recordChan, errorChan)

	// Workers join p.wg as well so errorChan stays open until every
	// goroutine that sends on it has exited.
	var transformWg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		transformWg.Add(1)
		p.wg.Add(1)
		go func(id int) {
			defer transformWg.Done()
			defer p.wg.Done()
			p.transformWorker(ctx, id, recordChan, transformedChan, errorChan)
		}(i)
	}
	go func() {
		transformWg.Wait()
		close(transformedChan)
	}()

	p.wg.Add(1)
	go p.batchCollector(ctx, transformedChan, batchChan)

	p.wg.Add(1)
	go p.writeDestination(ctx, batchChan, errorChan)

	var firstErr error
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for err := range errorChan {
			if err == nil {
				continue
			}
			p.log.Error("pipeline error", zap.Error(err))
			p.mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			p.mu.Unlock()
		}
	}()

	p.wg.Wait()
	close(errorChan)
	<-drained

	duration := time.Since(p.startTime)
	p.mu.Lock()
	processed, failed := p.recordsProcessed, p.recordsFailed
	err = firstErr
	p.mu.Unlock()

	throughput := float64(processed) / duration.Seconds()
	p.collector.SetThroughput(throughput)

	p.log.Info("pipeline completed",
		zap.Int64("records_processed", processed),
		zap.Int64("records_failed", failed),
		zap.Duration("duration", duration),
		zap.Float64("throughput_rps", throughput))

	if err != nil {
		return err
	}
	return ctx.Err()
}

func (p *Pipeline) readSource(ctx context.Context, out chan<- *pool.Record, errs chan<- error) {
	defer p.wg.Done()
	defer close(out)

	stream, err := p.source.Read(ctx)
	if err != nil {
		errs <- errors.Wrap(err, errors.ErrorTypeData, "failed to start source read")
		return
	}

	records := stream.Records
	streamErrs := stream.Errors
	for records != nil || streamErrs != nil {
		select {
		case record, ok := <-records:
			if !ok {
				records = nil
				continue
			}
			select {
			case out <- record:
			case <-ctx.Done():
				record.Release()
				return
			}

		case err, ok := <-streamErrs:
			if !ok {
				streamErrs = nil
				continue
			}
			if err != nil {
				errs <- err
			}

		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) transformWorker(ctx context.Context, id int, in <-chan *pool.Record, out chan<- *pool.Record, errs chan<- error) {
	log := p.log.With(zap.Int("worker", id))
	log.Debug("transform worker started")

	for {
		select {
		case record, ok := <-in:
			if !ok {
				return
			}

			current := record
			for i, transform := range p.transforms {
				next, err := transform(ctx, current)
				if err != nil {
					errs <- errors.Wrapf(err, errors.ErrorTypeData, "transform %d failed", i)
					p.mu.Lock()
					p.recordsFailed++
					p.mu.Unlock()
					p.collector.AddRecords("failed", 1)
					current.Release()
					current = nil
					break
				}
				if next == nil {
					current.Release()
					current = nil
					break
				}
				current = next
			}
			if current == nil {
				continue
			}

			select {
			case out <- current:
			case <-ctx.Done():
				current.Release()
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) batchCollector(ctx context.Context, in <-chan *pool.Record, out chan<- []*pool.Record) {
	defer p.wg.Done()
	defer close(out)

	batch := pool.GetBatchSlice(p.batchSize)
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		select {
		case out <- batch:
			batch = pool.GetBatchSlice(p.batchSize)
		case <-ctx.Done():
		}
	}

	for {
		select {
		case record, ok := <-in:
			if !ok {
				flush()
				return
			}
			batch = append(batch, record)
			if len(batch) >= p.batchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-ctx.Done():
			flush()
			return
		}
	}
}

func (p *Pipeline) writeDestination(ctx context.Context, in <-chan []*pool.Record, errs chan<- error) {
	defer p.wg.Done()

	destBatches := make(chan []*pool.Record, 10)
	destErrs := make(chan error, 10)
	stream := &core.BatchStream{
		Batches: destBatches,
		Errors:  destErrs,
	}

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		if err := p.destination.WriteBatch(ctx, stream); err != nil {
			errs <- errors.Wrap(err, errors.ErrorTypeData, "destination write failed")
		}
	}()

	// Nothing upstream reports errors through destErrs; close both channels
	// together so the destination can drain the stream fully.
	closeStream := func() {
		close(destBatches)
		close(destErrs)
		<-writeDone
	}

	for {
		select {
		case batch, ok := <-in:
			if !ok {
				closeStream()
				return
			}
			select {
			case destBatches <- batch:
				p.mu.Lock()
				p.recordsProcessed += int64(len(batch))
				p.mu.Unlock()
				p.collector.AddRecords("processed", len(batch))
			case <-ctx.Done():
				closeStream()
				return
			}

		case <-ctx.Done():
			closeStream()
			return
		}
	}
}

// Metrics returns a snapshot of pipeline counters.
func (p *Pipeline) Metrics() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	duration := time.Since(p.startTime)
	throughput := 0.0
	if duration > 0 {
		throughput = float64(p.recordsProcessed) / duration.Seconds()
	}

	return map[string]interface{}{
		"records_processed": p.recordsProcessed,
		"records_failed":    p.recordsFailed,
		"duration":          duration.String(),
		"throughput_rps":    throughput,
		"worker_count":      p.workerCount,
		"batch_size":        p.batchSize,
	}
}
