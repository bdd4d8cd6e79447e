// Package file implements the file source connector. It reads rows from
// local files in any registered format (csv, jsonl, avro) and emits them as
// a record stream. Files are either listed explicitly via the "files"
// connection property or discovered by walking "source_path" recursively.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vortexdata/ferry/pkg/config"
	"github.com/vortexdata/ferry/pkg/connector/base"
	"github.com/vortexdata/ferry/pkg/connector/core"
	"github.com/vortexdata/ferry/pkg/connector/registry"
	"github.com/vortexdata/ferry/pkg/errors"
	"github.com/vortexdata/ferry/pkg/formats"
	"github.com/vortexdata/ferry/pkg/pool"
)

func init() {
	registry.RegisterSource("file", NewFileSource)
	registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:        "file",
		Type:        "source",
		Version:     "1.0.0",
		Description: "Reads records from local files in csv, jsonl or avro format",
		Capabilities: []string{
			"streaming",
			"batch",
			"schema-discovery",
		},
	})
}

// FileSource reads records from local files using a registered format codec.
type FileSource struct {
	*base.BaseConnector

	sourcePath    string
	explicitFiles []string
	hasFilesKey   bool
	format        formats.Format
	formatOpts    formats.Options

	// resolved after Initialize
	files  []string
	schema *core.Schema
}

// NewFileSource creates a file source connector.
func NewFileSource(cfg *config.BaseConfig) (core.Source, error) {
	return &FileSource{
		BaseConnector: base.NewBaseConnector("file", core.ConnectorTypeSource, "1.0.0"),
	}, nil
}

// Initialize validates the configuration, resolves the file list and
// discovers the schema from the first file.
func (s *FileSource) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := s.BaseConnector.Initialize(ctx, cfg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize base connector")
	}
	if err := s.Validate(); err != nil {
		return err
	}

	if err := s.extractConfig(cfg); err != nil {
		return err
	}

	files, err := s.resolveFiles()
	if err != nil {
		return err
	}
	s.files = files

	if len(s.files) > 0 {
		if err := s.discoverSchema(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to discover schema")
		}
	}

	s.UpdateHealth(true, map[string]interface{}{
		"files_resolved": len(s.files),
		"format":         s.format.Name(),
	})

	s.GetLogger().Info("file source initialized",
		zap.String("source_path", s.sourcePath),
		zap.String("format", s.format.Name()),
		zap.Int("files", len(s.files)))

	return nil
}

// extractConfig reads the connector-specific connection properties. Every
// property other than the reserved ones is forwarded to the format codec as
// an option (delimiter, header and so on).
func (s *FileSource) extractConfig(cfg *config.BaseConfig) error {
	props := cfg.Connection.Properties

	s.sourcePath = props["source_path"]

	formatName := props["format"]
	if formatName == "" {
		formatName = "csv"
	}
	f, err := formats.Get(formatName)
	if err != nil {
		return err
	}
	s.format = f

	if raw, ok := props["files"]; ok {
		s.hasFilesKey = true
		for _, entry := range strings.Split(raw, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				s.explicitFiles = append(s.explicitFiles, entry)
			}
		}
	}

	s.formatOpts = make(formats.Options)
	for k, v := range props {
		switch k {
		case "source_path", "format", "files":
		default:
			s.formatOpts[k] = v
		}
	}
	return nil
}

// resolveFiles turns the configured source_path and explicit file list into
// the concrete set of files to read.
//
// The rules:
//   - neither files nor source_path configured is a validation error
//   - an explicitly empty files list yields an empty source, with a warning
//   - relative entries in files require source_path to resolve against
//   - absolute entries must lie under source_path when one is set
//   - when both are given, source_path is only used for resolution and
//     containment, not for discovery
//   - with no explicit files, source_path is walked recursively and files
//     matching the format's extensions are collected in sorted order
func (s *FileSource) resolveFiles() ([]string, error) {
	log := s.GetLogger()

	if !s.hasFilesKey && s.sourcePath == "" {
		return nil, errors.New(errors.ErrorTypeValidation,
			"either 'files' or 'source_path' connection property is required")
	}

	if s.hasFilesKey {
		if len(s.explicitFiles) == 0 {
			log.Warn("explicit 'files' list is empty, no data will be read")
			return nil, nil
		}
		if s.sourcePath != "" {
			log.Warn("both 'files' and 'source_path' are set, " +
				"'source_path' is only used to resolve relative entries")
		}
		return s.resolveExplicit()
	}

	return s.walkSourcePath()
}

func (s *FileSource) resolveExplicit() ([]string, error) {
	resolved := make([]string, 0, len(s.explicitFiles))
	for _, entry := range s.explicitFiles {
		if filepath.IsAbs(entry) {
			if s.sourcePath != "" && !isUnder(entry, s.sourcePath) {
				return nil, errors.Newf(errors.ErrorTypeValidation,
					"file %q is outside source_path %q", entry, s.sourcePath)
			}
			resolved = append(resolved, filepath.Clean(entry))
			continue
		}
		if s.sourcePath == "" {
			return nil, errors.Newf(errors.ErrorTypeValidation,
				"relative file %q requires 'source_path' to resolve against", entry)
		}
		resolved = append(resolved, filepath.Join(s.sourcePath, entry))
	}

	for _, path := range resolved {
		info, err := os.Stat(path)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrorTypeFile, "cannot access file %q", path)
		}
		if info.IsDir() {
			return nil, errors.Newf(errors.ErrorTypeValidation, "%q is a directory, not a file", path)
		}
	}
	return resolved, nil
}

func (s *FileSource) walkSourcePath() ([]string, error) {
	info, err := os.Stat(s.sourcePath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeFile, "cannot access source_path %q", s.sourcePath)
	}
	if !info.IsDir() {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"source_path %q is not a directory", s.sourcePath)
	}

	extensions := make(map[string]bool, len(s.format.Extensions()))
	for _, ext := range s.format.Extensions() {
		extensions[ext] = true
	}

	var files []string
	err = filepath.WalkDir(s.sourcePath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if extensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeFile, "failed to walk source_path %q", s.sourcePath)
	}

	sort.Strings(files)
	if len(files) == 0 {
		s.GetLogger().Warn("no matching files found under source_path",
			zap.String("source_path", s.sourcePath),
			zap.Strings("extensions", s.format.Extensions()))
	}
	return files, nil
}

// isUnder reports whether path lies within dir.
func isUnder(path, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// discoverSchema reads the first row of the first file and infers field
// types from the decoded values.
func (s *FileSource) discoverSchema() error {
	first := s.files[0]
	f, err := os.Open(first)
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "cannot open %q", first)
	}
	defer f.Close()

	dec, err := s.format.NewDecoder(f, s.formatOpts)
	if err != nil {
		return err
	}
	defer dec.Close()

	row, err := dec.Next()
	if err == io.EOF {
		s.schema = &core.Schema{
			Name:      s.Name(),
			Version:   1,
			CreatedAt: time.Now(),
		}
		return nil
	}
	if err != nil {
		return err
	}

	columns := dec.Columns()
	if len(columns) == 0 {
		for name := range row {
			columns = append(columns, name)
		}
		sort.Strings(columns)
	}

	fields := make([]core.Field, 0, len(columns))
	for _, name := range columns {
		fields = append(fields, core.Field{
			Name:     name,
			Type:     inferFieldType(row[name]),
			Nullable: true,
		})
	}

	s.schema = &core.Schema{
		Name:      s.Name(),
		Fields:    fields,
		Version:   1,
		CreatedAt: time.Now(),
	}
	return nil
}

func inferFieldType(v interface{}) core.FieldType {
	switch v.(type) {
	case int, int32, int64:
		return core.FieldTypeInt
	case float32, float64:
		return core.FieldTypeFloat
	case bool:
		return core.FieldTypeBool
	case time.Time:
		return core.FieldTypeTimestamp
	case map[string]interface{}, []interface{}:
		return core.FieldTypeJSON
	default:
		return core.FieldTypeString
	}
}

// Discover returns the schema inferred from the first file.
func (s *FileSource) Discover(ctx context.Context) (*core.Schema, error) {
	if s.schema == nil {
		return nil, errors.New(errors.ErrorTypeData, "schema not discovered, no files resolved")
	}
	return s.schema, nil
}

// Read streams records from all resolved files in order.
func (s *FileSource) Read(ctx context.Context) (*core.RecordStream, error) {
	recordChan := make(chan *pool.Record, s.GetConfig().Performance.BufferSize)
	errorChan := make(chan error, 1)

	go func() {
		defer close(recordChan)
		defer close(errorChan)
		s.readAll(ctx, recordChan, errorChan)
	}()

	return &core.RecordStream{
		Records: recordChan,
		Errors:  errorChan,
	}, nil
}

// ReadBatch streams records grouped into batches of at most batchSize.
func (s *FileSource) ReadBatch(ctx context.Context, batchSize int) (*core.BatchStream, error) {
	if batchSize <= 0 {
		batchSize = s.GetConfig().Performance.BatchSize
	}

	batchChan := make(chan []*pool.Record, 16)
	errorChan := make(chan error, 1)

	go func() {
		defer close(batchChan)
		defer close(errorChan)

		recordChan := make(chan *pool.Record, batchSize)
		innerErrs := make(chan error, 1)
		go func() {
			defer close(recordChan)
			defer close(innerErrs)
			s.readAll(ctx, recordChan, innerErrs)
		}()

		batch := pool.GetBatchSlice(batchSize)
		for record := range recordChan {
			batch = append(batch, record)
			if len(batch) >= batchSize {
				select {
				case batchChan <- batch:
				case <-ctx.Done():
					return
				}
				batch = pool.GetBatchSlice(batchSize)
			}
		}
		if len(batch) > 0 {
			select {
			case batchChan <- batch:
			case <-ctx.Done():
			}
		}
		for err := range innerErrs {
			errorChan <- err
		}
	}()

	return &core.BatchStream{
		Batches: batchChan,
		Errors:  errorChan,
	}, nil
}

func (s *FileSource) readAll(ctx context.Context, out chan<- *pool.Record, errs chan<- error) {
	var emitted int64
	for _, path := range s.files {
		n, err := s.readFile(ctx, path, emitted, out)
		emitted += n
		if err != nil {
			if err == context.Canceled || err == context.DeadlineExceeded {
				return
			}
			errs <- s.HandleError(ctx, err, nil)
			return
		}
	}
	s.ReportProgress(emitted, emitted)
}

func (s *FileSource) readFile(ctx context.Context, path string, emitted int64, out chan<- *pool.Record) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrorTypeFile, "cannot open %q", path)
	}
	defer f.Close()

	dec, err := s.format.NewDecoder(f, s.formatOpts)
	if err != nil {
		return 0, err
	}
	defer dec.Close()

	var rows int64
	for {
		select {
		case <-ctx.Done():
			return rows, ctx.Err()
		default:
		}

		row, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, errors.Wrapf(err, errors.ErrorTypeData,
				"failed to decode row %d of %q", rows+1, path)
		}

		if err := s.RateLimit(ctx); err != nil {
			return rows, err
		}

		rows++
		record := pool.GetRecord()
		record.ID = fmt.Sprintf("%s:%d", filepath.Base(path), rows)
		for k, v := range row {
			record.Data[k] = v
		}
		record.Metadata.Source = s.Name()
		record.Metadata.File = path
		record.Metadata.RowNumber = rows
		record.Metadata.Timestamp = time.Now()

		select {
		case out <- record:
		case <-ctx.Done():
			record.Release()
			return rows, ctx.Err()
		}

		if rows%10000 == 0 {
			s.ReportProgress(emitted+rows, -1)
		}
	}

	s.GetMetricsCollector().AddRecords("read", int(rows))
	s.GetLogger().Debug("file read",
		zap.String("path", path),
		zap.Int64("rows", rows))
	return rows, nil
}

// Close releases connector resources.
func (s *FileSource) Close(ctx context.Context) error {
	return s.BaseConnector.Close(ctx)
}

// SupportsBatch reports batch read support.
func (s *FileSource) SupportsBatch() bool { return true }

// SupportsStreaming reports streaming read support.
func (s *FileSource) SupportsStreaming() bool { return true }
