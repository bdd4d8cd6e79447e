package formats

import (
	"bufio"
	"bytes"
	"io"

	"github.com/vortexdata/ferry/pkg/errors"
	"github.com/vortexdata/ferry/pkg/json"
)

// JSONL (JSON Lines): one JSON object per line. No options.
func init() {
	Register(&jsonlFormat{})
}

// maxLineSize bounds a single JSONL line at 16MB
const maxLineSize = 16 * 1024 * 1024

type jsonlFormat struct{}

func (f *jsonlFormat) Name() string { return "jsonl" }

func (f *jsonlFormat) Extensions() []string { return []string{".jsonl", ".ndjson"} }

func (f *jsonlFormat) NewDecoder(r io.Reader, opts Options) (Decoder, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &jsonlDecoder{scanner: scanner}, nil
}

func (f *jsonlFormat) NewEncoder(w io.Writer, opts Options) (Encoder, error) {
	return &jsonlEncoder{writer: bufio.NewWriter(w)}, nil
}

type jsonlDecoder struct {
	scanner *bufio.Scanner
	columns []string
}

func (d *jsonlDecoder) Next() (map[string]interface{}, error) {
	for d.scanner.Scan() {
		line := bytes.TrimSpace(d.scanner.Bytes())
		if len(line) == 0 {
			continue // skip blank lines
		}

		row := make(map[string]interface{})
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to parse JSON line")
		}

		if d.columns == nil {
			d.columns = sortedKeys(row)
		}
		return row, nil
	}

	if err := d.scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to read JSON lines")
	}
	return nil, io.EOF
}

func (d *jsonlDecoder) Columns() []string {
	return d.columns
}

func (d *jsonlDecoder) Close() error { return nil }

type jsonlEncoder struct {
	writer *bufio.Writer
}

func (e *jsonlEncoder) Write(row map[string]interface{}) error {
	data, err := json.Marshal(row)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFormat, "failed to encode JSON line")
	}
	if _, err := e.writer.Write(data); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFormat, "failed to write JSON line")
	}
	if err := e.writer.WriteByte('\n'); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFormat, "failed to write JSON line")
	}
	return nil
}

func (e *jsonlEncoder) Flush() error {
	return e.writer.Flush()
}
