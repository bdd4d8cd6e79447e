// Package compression provides compression support for Ferry's file
// connectors with multiple algorithms and configurable levels. It supports
// both in-memory and streaming compression/decompression.
//
// Speed (fastest to slowest): LZ4 > Snappy/S2 > Zstd > Gzip
// Compression ratio (best to worst): Zstd > Gzip > Snappy/S2 > LZ4
package compression

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents snappy compression
	Snappy Algorithm = "snappy"
	// S2 represents s2 compression (snappy-compatible, faster)
	S2 Algorithm = "s2"
	// LZ4 represents lz4 compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
)

// ParseAlgorithm converts a config string into an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case "", None:
		return None, nil
	case Gzip, Snappy, S2, LZ4, Zstd:
		return Algorithm(s), nil
	default:
		return None, fmt.Errorf("unknown compression algorithm %q", s)
	}
}

// Extension returns the conventional file extension for the algorithm,
// including the leading dot, or the empty string for None.
func (a Algorithm) Extension() string {
	switch a {
	case Gzip:
		return ".gz"
	case Snappy:
		return ".snappy"
	case S2:
		return ".s2"
	case LZ4:
		return ".lz4"
	case Zstd:
		return ".zst"
	default:
		return ""
	}
}

// Config configures a Compressor.
type Config struct {
	Algorithm Algorithm
	// Level sets the speed/ratio trade-off for algorithms that support it (1-9)
	Level int
}

// Compressor compresses and decompresses data with a fixed algorithm.
type Compressor struct {
	config Config
}

// NewCompressor creates a compressor for the configured algorithm.
func NewCompressor(config *Config) (*Compressor, error) {
	if config == nil {
		config = &Config{Algorithm: None}
	}
	switch config.Algorithm {
	case None, Gzip, Snappy, S2, LZ4, Zstd:
	default:
		return nil, fmt.Errorf("unknown compression algorithm %q", config.Algorithm)
	}
	if config.Level <= 0 {
		config.Level = 6
	}
	return &Compressor{config: *config}, nil
}

// Algorithm returns the configured algorithm.
func (c *Compressor) Algorithm() Algorithm {
	return c.config.Algorithm
}

// NewWriter wraps w with a compressing writer. The caller must Close the
// returned writer to flush trailing blocks before closing the underlying file.
func (c *Compressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	switch c.config.Algorithm {
	case None:
		return nopWriteCloser{w}, nil
	case Gzip:
		level := c.config.Level
		if level > gzip.BestCompression {
			level = gzip.BestCompression
		}
		return gzip.NewWriterLevel(w, level)
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case S2:
		return s2.NewWriter(w), nil
	case LZ4:
		return lz4.NewWriter(w), nil
	case Zstd:
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("unknown compression algorithm %q", c.config.Algorithm)
	}
}

// NewReader wraps r with a decompressing reader.
func (c *Compressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	switch c.config.Algorithm {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		return gzip.NewReader(r)
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case S2:
		return io.NopCloser(s2.NewReader(r)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unknown compression algorithm %q", c.config.Algorithm)
	}
}

// Compress compresses data in memory.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := c.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress decompresses data in memory.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	r, err := c.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
