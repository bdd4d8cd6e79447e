package formats

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vortexdata/ferry/pkg/errors"
)

// CSV format options:
//
//	delimiter  field separator, a single character (default ",")
//	header     whether the first row is a header ("true"/"false", default "true")
func init() {
	Register(&csvFormat{})
}

type csvFormat struct{}

func (f *csvFormat) Name() string { return "csv" }

func (f *csvFormat) Extensions() []string { return []string{".csv"} }

func (f *csvFormat) NewDecoder(r io.Reader, opts Options) (Decoder, error) {
	delim, err := parseDelimiter(opts.Get("delimiter", ","))
	if err != nil {
		return nil, err
	}

	hasHeader, err := strconv.ParseBool(opts.Get("header", "true"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid header option")
	}

	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1 // tolerate ragged rows

	return &csvDecoder{
		reader:    cr,
		hasHeader: hasHeader,
	}, nil
}

func (f *csvFormat) NewEncoder(w io.Writer, opts Options) (Encoder, error) {
	delim, err := parseDelimiter(opts.Get("delimiter", ","))
	if err != nil {
		return nil, err
	}

	writeHeader, err := strconv.ParseBool(opts.Get("header", "true"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid header option")
	}

	cw := csv.NewWriter(w)
	cw.Comma = delim

	return &csvEncoder{
		writer:      cw,
		writeHeader: writeHeader,
	}, nil
}

func parseDelimiter(s string) (rune, error) {
	runes := []rune(s)
	if len(runes) != 1 {
		return 0, errors.Newf(errors.ErrorTypeConfig, "delimiter must be a single character, got %q", s)
	}
	return runes[0], nil
}

type csvDecoder struct {
	reader    *csv.Reader
	hasHeader bool
	columns   []string
	started   bool
}

func (d *csvDecoder) Next() (map[string]interface{}, error) {
	if !d.started {
		d.started = true
		if d.hasHeader {
			header, err := d.reader.Read()
			if err == io.EOF {
				return nil, io.EOF
			}
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to read CSV header")
			}
			d.columns = header
		}
	}

	row, err := d.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to read CSV row")
	}

	// Without a header the first data row fixes the column count
	if d.columns == nil {
		d.columns = make([]string, len(row))
		for i := range row {
			d.columns[i] = "field_" + strconv.Itoa(i)
		}
	}

	out := make(map[string]interface{}, len(row))
	for i, value := range row {
		var name string
		if i < len(d.columns) {
			name = d.columns[i]
		} else {
			name = "field_" + strconv.Itoa(i)
		}
		out[name] = inferValue(value)
	}
	return out, nil
}

func (d *csvDecoder) Columns() []string {
	return d.columns
}

func (d *csvDecoder) Close() error { return nil }

// inferValue converts a CSV cell into a typed value: int, float, bool or
// string. Empty cells become nil.
func inferValue(value string) interface{} {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	if intVal, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return intVal
	}
	if floatVal, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return floatVal
	}
	switch trimmed {
	case "true", "false", "TRUE", "FALSE":
		b, _ := strconv.ParseBool(strings.ToLower(trimmed))
		return b
	}
	return value
}

type csvEncoder struct {
	writer      *csv.Writer
	writeHeader bool
	columns     []string
	headerDone  bool
}

func (e *csvEncoder) Write(row map[string]interface{}) error {
	// The first row fixes the column set; later rows are projected onto it
	if e.columns == nil {
		e.columns = sortedKeys(row)
	}

	if e.writeHeader && !e.headerDone {
		if err := e.writer.Write(e.columns); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFormat, "failed to write CSV header")
		}
		e.headerDone = true
	}

	cells := make([]string, len(e.columns))
	for i, col := range e.columns {
		if v, ok := row[col]; ok && v != nil {
			cells[i] = formatCell(v)
		}
	}

	if err := e.writer.Write(cells); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFormat, "failed to write CSV row")
	}
	return nil
}

// Columns returns the fixed column set, nil before the first row.
func (e *csvEncoder) Columns() []string {
	return e.columns
}

func (e *csvEncoder) Flush() error {
	e.writer.Flush()
	return e.writer.Error()
}

func formatCell(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
