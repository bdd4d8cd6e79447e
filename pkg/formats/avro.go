package formats

import (
	"fmt"
	"io"

	"github.com/linkedin/goavro/v2"

	"github.com/vortexdata/ferry/pkg/errors"
	"github.com/vortexdata/ferry/pkg/json"
)

// Avro Object Container Files. On encode the writer schema is inferred from
// the first row: a record whose fields are nullable unions of the observed
// Go types. On decode the embedded writer schema is honored. No options.
func init() {
	Register(&avroFormat{})
}

type avroFormat struct{}

func (f *avroFormat) Name() string { return "avro" }

func (f *avroFormat) Extensions() []string { return []string{".avro"} }

func (f *avroFormat) NewDecoder(r io.Reader, opts Options) (Decoder, error) {
	ocfr, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to open Avro container")
	}
	return &avroDecoder{reader: ocfr}, nil
}

func (f *avroFormat) NewEncoder(w io.Writer, opts Options) (Encoder, error) {
	return &avroEncoder{writer: w}, nil
}

type avroDecoder struct {
	reader  *goavro.OCFReader
	columns []string
}

func (d *avroDecoder) Next() (map[string]interface{}, error) {
	if !d.reader.Scan() {
		if err := d.reader.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to read Avro container")
		}
		return nil, io.EOF
	}

	datum, err := d.reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to decode Avro datum")
	}

	native, ok := datum.(map[string]interface{})
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeFormat, "unsupported Avro datum type %T, want record", datum)
	}

	row := make(map[string]interface{}, len(native))
	for k, v := range native {
		row[k] = unwrapUnion(v)
	}

	if d.columns == nil {
		d.columns = sortedKeys(row)
	}
	return row, nil
}

func (d *avroDecoder) Columns() []string {
	return d.columns
}

func (d *avroDecoder) Close() error { return nil }

// unwrapUnion strips goavro's union wrapping (a single-entry map keyed by
// the branch type name) from a decoded value.
func unwrapUnion(v interface{}) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok || len(m) != 1 {
		return v
	}
	for branch, inner := range m {
		switch branch {
		case "long", "int", "double", "float", "boolean", "string", "bytes", "null":
			return inner
		}
	}
	return v
}

type avroEncoder struct {
	writer io.Writer
	ocfw   *goavro.OCFWriter
	types  map[string]string // field name -> avro branch type
	fields []string
}

func (e *avroEncoder) Write(row map[string]interface{}) error {
	if e.ocfw == nil {
		if err := e.initWriter(row); err != nil {
			return err
		}
	}

	native := make(map[string]interface{}, len(e.fields))
	for _, name := range e.fields {
		v, ok := row[name]
		if !ok || v == nil {
			native[name] = nil
			continue
		}
		branch := e.types[name]
		coerced, ok := coerceAvro(v, branch)
		if !ok {
			return errors.Newf(errors.ErrorTypeFormat, "field %q: cannot encode %T as %s", name, v, branch)
		}
		native[name] = map[string]interface{}{branch: coerced}
	}

	if err := e.ocfw.Append([]interface{}{native}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFormat, "failed to append Avro datum")
	}
	return nil
}

func (e *avroEncoder) Flush() error {
	// OCFWriter flushes a block on every Append
	return nil
}

// initWriter infers the writer schema from the first row and opens the
// container.
func (e *avroEncoder) initWriter(row map[string]interface{}) error {
	e.fields = sortedKeys(row)
	e.types = make(map[string]string, len(e.fields))

	fields := make([]map[string]interface{}, 0, len(e.fields))
	for _, name := range e.fields {
		branch := avroType(row[name])
		e.types[name] = branch
		fields = append(fields, map[string]interface{}{
			"name": name,
			"type": []interface{}{"null", branch},
		})
	}

	schemaDoc := map[string]interface{}{
		"type":   "record",
		"name":   "row",
		"fields": fields,
	}
	schema, err := json.Marshal(schemaDoc)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFormat, "failed to build Avro schema")
	}

	ocfw, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:      e.writer,
		Schema: string(schema),
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFormat, "failed to open Avro container for writing")
	}
	e.ocfw = ocfw
	return nil
}

// avroType maps a Go value to the Avro branch type used in the inferred schema.
func avroType(v interface{}) string {
	switch v.(type) {
	case int, int32, int64:
		return "long"
	case float32, float64:
		return "double"
	case bool:
		return "boolean"
	default:
		return "string"
	}
}

// coerceAvro converts a Go value to the native representation goavro expects
// for the given branch type. Numeric values convert across branches, so a
// float arriving for an inferred long field (or vice versa) still encodes;
// anything else that drifted from the inferred schema is rejected.
func coerceAvro(v interface{}, branch string) (interface{}, bool) {
	switch branch {
	case "long":
		switch n := v.(type) {
		case int:
			return int64(n), true
		case int32:
			return int64(n), true
		case int64:
			return n, true
		case float32:
			return int64(n), true
		case float64:
			return int64(n), true
		}
	case "double":
		switch n := v.(type) {
		case int:
			return float64(n), true
		case int32:
			return float64(n), true
		case int64:
			return float64(n), true
		case float32:
			return float64(n), true
		case float64:
			return n, true
		}
	case "boolean":
		if b, ok := v.(bool); ok {
			return b, true
		}
	case "string":
		if s, ok := v.(string); ok {
			return s, true
		}
		return fmt.Sprint(v), true
	}
	return nil, false
}
