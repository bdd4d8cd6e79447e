// Package file implements the file destination connector. It writes record
// streams to a local file in any registered format, with optional
// compression of the output stream.
package file

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/vortexdata/ferry/pkg/compression"
	"github.com/vortexdata/ferry/pkg/config"
	"github.com/vortexdata/ferry/pkg/connector/base"
	"github.com/vortexdata/ferry/pkg/connector/core"
	"github.com/vortexdata/ferry/pkg/connector/registry"
	"github.com/vortexdata/ferry/pkg/errors"
	"github.com/vortexdata/ferry/pkg/formats"
	"github.com/vortexdata/ferry/pkg/pool"
)

func init() {
	registry.RegisterDestination("file", NewFileDestination)
	registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:        "file",
		Type:        "destination",
		Version:     "1.0.0",
		Description: "Writes records to a local file in csv, jsonl or avro format",
		Capabilities: []string{
			"streaming",
			"batch",
			"compression",
		},
	})
}

// FileDestination writes records to a single output file using a registered
// format codec. Output is optionally compressed; the compression extension
// is appended to the configured path.
type FileDestination struct {
	*base.BaseConnector

	path       string
	overwrite  bool
	format     formats.Format
	formatOpts formats.Options

	mu         sync.Mutex
	file       *os.File
	compressor io.WriteCloser
	buffer     *bufio.Writer
	encoder    formats.Encoder
	written    int64

	// fixed column set for columnar formats, captured from the first record
	columns       map[string]bool
	droppedWarned map[string]bool
}

// NewFileDestination creates a file destination connector.
func NewFileDestination(cfg *config.BaseConfig) (core.Destination, error) {
	return &FileDestination{
		BaseConnector: base.NewBaseConnector("file", core.ConnectorTypeDestination, "1.0.0"),
		droppedWarned: make(map[string]bool),
	}, nil
}

// Initialize validates the configuration and opens the output file.
func (d *FileDestination) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := d.BaseConnector.Initialize(ctx, cfg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize base connector")
	}
	if err := d.Validate(); err != nil {
		return err
	}

	if err := d.extractConfig(cfg); err != nil {
		return err
	}

	if err := d.ExecuteWithCircuitBreaker(func() error {
		return d.open(cfg)
	}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to open output file")
	}

	d.UpdateHealth(true, map[string]interface{}{
		"file_opened": true,
		"path":        d.path,
	})

	d.GetLogger().Info("file destination initialized",
		zap.String("path", d.path),
		zap.String("format", d.format.Name()),
		zap.Bool("overwrite", d.overwrite))
	return nil
}

func (d *FileDestination) extractConfig(cfg *config.BaseConfig) error {
	props := cfg.Connection.Properties

	d.path = props["path"]
	if d.path == "" {
		return errors.New(errors.ErrorTypeValidation, "'path' connection property is required")
	}

	formatName := props["format"]
	if formatName == "" {
		formatName = "csv"
	}
	f, err := formats.Get(formatName)
	if err != nil {
		return err
	}
	d.format = f

	d.overwrite = props["overwrite"] != "false"

	d.formatOpts = make(formats.Options)
	for k, v := range props {
		switch k {
		case "path", "format", "overwrite":
		default:
			d.formatOpts[k] = v
		}
	}
	return nil
}

// open creates the output file and layers the compression writer, buffer and
// format encoder over it.
func (d *FileDestination) open(cfg *config.BaseConfig) error {
	path := d.path
	var compressor *compression.Compressor
	if cfg.Advanced.IsCompressionEnabled() {
		algo, err := compression.ParseAlgorithm(cfg.Advanced.CompressionAlgorithm)
		if err != nil {
			return err
		}
		compressor, err = compression.NewCompressor(&compression.Config{
			Algorithm: algo,
			Level:     cfg.Advanced.CompressionLevel,
		})
		if err != nil {
			return err
		}
		path += algo.Extension()
		d.path = path
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeFile, "cannot create directory %q", dir)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if d.overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "cannot open %q", path)
	}
	d.file = file

	var sink io.Writer = file
	if compressor != nil {
		w, err := compressor.NewWriter(file)
		if err != nil {
			file.Close()
			return err
		}
		d.compressor = w
		sink = w
	}

	d.buffer = bufio.NewWriterSize(sink, cfg.Performance.BufferSize)
	encoder, err := d.format.NewEncoder(d.buffer, d.formatOpts)
	if err != nil {
		d.closeStack()
		return err
	}
	d.encoder = encoder
	return nil
}

// CreateSchema is a no-op; the encoder derives its layout from the first
// record it sees.
func (d *FileDestination) CreateSchema(ctx context.Context, schema *core.Schema) error {
	return nil
}

// Write consumes a record stream until it is exhausted or the context is
// canceled.
func (d *FileDestination) Write(ctx context.Context, stream *core.RecordStream) error {
	// Drain both channels to completion, nil-ing each as it closes, so an
	// error buffered on stream.Errors is not lost when stream.Records
	// happens to close first.
	records := stream.Records
	streamErrs := stream.Errors
	for records != nil || streamErrs != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-streamErrs:
			if !ok {
				streamErrs = nil
				continue
			}
			if err != nil {
				return err
			}
		case record, ok := <-records:
			if !ok {
				records = nil
				continue
			}
			if err := d.writeRecord(record); err != nil {
				return d.HandleError(ctx, err, record)
			}
			record.Release()
		}
	}
	return d.Flush()
}

// WriteBatch consumes a batch stream until it is exhausted or the context is
// canceled.
func (d *FileDestination) WriteBatch(ctx context.Context, stream *core.BatchStream) error {
	batches := stream.Batches
	streamErrs := stream.Errors
	for batches != nil || streamErrs != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-streamErrs:
			if !ok {
				streamErrs = nil
				continue
			}
			if err != nil {
				return err
			}
		case batch, ok := <-batches:
			if !ok {
				batches = nil
				continue
			}
			for _, record := range batch {
				if err := d.writeRecord(record); err != nil {
					return d.HandleError(ctx, err, record)
				}
				record.Release()
			}
			pool.PutBatchSlice(batch)
		}
	}
	return d.Flush()
}

func (d *FileDestination) writeRecord(record *pool.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.encoder == nil {
		return errors.New(errors.ErrorTypeInternal, "destination not initialized")
	}

	if err := d.encoder.Write(record.Data); err != nil {
		return err
	}
	d.written++

	// Columnar encoders fix their layout on the first row. Warn once per
	// column that shows up later and gets dropped from the output.
	if d.columns == nil {
		if ce, ok := d.encoder.(interface{ Columns() []string }); ok {
			cols := ce.Columns()
			if len(cols) > 0 {
				d.columns = make(map[string]bool, len(cols))
				for _, c := range cols {
					d.columns[c] = true
				}
			}
		}
	} else {
		for k := range record.Data {
			if !d.columns[k] && !d.droppedWarned[k] {
				d.droppedWarned[k] = true
				d.GetLogger().Warn("column not present in first record, dropping from output",
					zap.String("column", k))
			}
		}
	}

	if d.written%10000 == 0 {
		d.ReportProgress(d.written, -1)
	}
	return nil
}

// Flush forces buffered data through the encoder and buffer to the file.
func (d *FileDestination) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushLocked()
}

func (d *FileDestination) flushLocked() error {
	if d.encoder == nil {
		return nil
	}
	if err := d.encoder.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush encoder")
	}
	if err := d.buffer.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush buffer")
	}
	return nil
}

// Close flushes remaining data and closes the writer stack.
func (d *FileDestination) Close(ctx context.Context) error {
	d.mu.Lock()
	flushErr := d.flushLocked()
	closeErr := d.closeStack()
	written := d.written
	d.mu.Unlock()

	d.GetMetricsCollector().AddRecords("written", int(written))
	d.GetLogger().Info("file destination closed",
		zap.String("path", d.path),
		zap.Int64("records_written", written))

	if err := d.BaseConnector.Close(ctx); err != nil {
		return err
	}
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// closeStack closes the compression writer and file in order. Callers hold
// the mutex.
func (d *FileDestination) closeStack() error {
	var firstErr error
	if d.compressor != nil {
		if err := d.compressor.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		d.compressor = nil
	}
	if d.file != nil {
		if err := d.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		d.file = nil
	}
	d.encoder = nil
	d.buffer = nil
	return firstErr
}

// SupportsBatch reports batch write support.
func (d *FileDestination) SupportsBatch() bool { return true }

// SupportsStreaming reports streaming write support.
func (d *FileDestination) SupportsStreaming() bool { return true }
