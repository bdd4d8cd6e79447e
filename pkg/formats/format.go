// Package formats provides the file format codecs used by Ferry's file
// connectors. A Format turns an io.Reader into a stream of row maps and a
// stream of row maps into bytes on an io.Writer. Formats register themselves
// in a package-level registry; connectors look them up by name.
//
// Built-in formats: csv, jsonl, avro.
package formats

import (
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/vortexdata/ferry/pkg/errors"
)

// Options carries format-specific settings as string key/values, matching
// the connection properties of the unified connector configuration.
type Options map[string]string

// Get returns the option value or a default when unset.
func (o Options) Get(key, def string) string {
	if o == nil {
		return def
	}
	if v, ok := o[key]; ok && v != "" {
		return v
	}
	return def
}

// Decoder reads rows from an underlying reader.
type Decoder interface {
	// Next returns the next row, or io.EOF when the input is exhausted
	Next() (map[string]interface{}, error)
	// Columns returns the column names discovered so far. For formats with
	// a header this is known before the first row; otherwise it is the key
	// set of the first row read.
	Columns() []string
	// Close releases decoder resources. It does not close the underlying reader.
	Close() error
}

// Encoder writes rows to an underlying writer.
type Encoder interface {
	// Write encodes a single row
	Write(row map[string]interface{}) error
	// Flush writes any buffered data to the underlying writer
	Flush() error
}

// Format is a named file format codec.
type Format interface {
	// Name returns the registry name of the format
	Name() string
	// Extensions returns the file extensions the format claims, with leading dots
	Extensions() []string
	// NewDecoder creates a decoder reading from r
	NewDecoder(r io.Reader, opts Options) (Decoder, error)
	// NewEncoder creates an encoder writing to w
	NewEncoder(w io.Writer, opts Options) (Encoder, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Format)
)

// Register adds a format to the registry. Registering a duplicate name panics;
// format registration happens from init functions where a duplicate is a
// programming error.
func Register(f Format) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[f.Name()]; exists {
		panic("format " + f.Name() + " registered twice")
	}
	registry[f.Name()] = f
}

// Get returns the format with the given name.
func Get(name string) (Format, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	f, ok := registry[name]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig,
			"unknown format %q (registered: %v)", name, names())
	}
	return f, nil
}

// ExtensionFormat returns the registered format claiming the given file
// extension (with or without leading dot), or an error when none does.
func ExtensionFormat(ext string) (Format, error) {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, f := range registry {
		for _, e := range f.Extensions() {
			if e == ext {
				return f, nil
			}
		}
	}
	return nil, errors.Newf(errors.ErrorTypeConfig, "no format registered for extension %q", ext)
}

// Names returns the sorted names of all registered formats.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return names()
}

func names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// sortedKeys returns the sorted keys of a row map. Used by encoders to keep
// column order deterministic.
func sortedKeys(row map[string]interface{}) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
