package formats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"avro", "csv", "jsonl"}, Names())

	f, err := Get("csv")
	require.NoError(t, err)
	assert.Equal(t, "csv", f.Name())

	_, err = Get("parquet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv")
}

func TestExtensionFormat(t *testing.T) {
	f, err := ExtensionFormat(".ndjson")
	require.NoError(t, err)
	assert.Equal(t, "jsonl", f.Name())

	f, err = ExtensionFormat("avro")
	require.NoError(t, err)
	assert.Equal(t, "avro", f.Name())

	_, err = ExtensionFormat(".txt")
	assert.Error(t, err)
}

func TestOptions(t *testing.T) {
	var nilOpts Options
	assert.Equal(t, "x", nilOpts.Get("missing", "x"))

	opts := Options{"delimiter": ";"}
	assert.Equal(t, ";", opts.Get("delimiter", ","))
	assert.Equal(t, ",", opts.Get("other", ","))
}
