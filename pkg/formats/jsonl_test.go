package formats

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLDecode(t *testing.T) {
	f, err := Get("jsonl")
	require.NoError(t, err)

	input := `{"id": 1, "name": "alice"}

{"id": 2, "name": "bob", "tags": ["x", "y"]}
`
	dec, err := f.NewDecoder(strings.NewReader(input), nil)
	require.NoError(t, err)
	defer dec.Close()

	rows := decodeAll(t, dec)
	require.Len(t, rows, 2)

	assert.Equal(t, float64(1), rows[0]["id"])
	assert.Equal(t, "alice", rows[0]["name"])
	assert.Equal(t, []interface{}{"x", "y"}, rows[1]["tags"])

	assert.Equal(t, []string{"id", "name"}, dec.Columns())
}

func TestJSONLDecodeInvalidLine(t *testing.T) {
	f, _ := Get("jsonl")

	dec, err := f.NewDecoder(strings.NewReader("{\"ok\": true}\nnot json\n"), nil)
	require.NoError(t, err)

	_, err = dec.Next()
	require.NoError(t, err)

	_, err = dec.Next()
	require.Error(t, err)
}

func TestJSONLDecodeEmpty(t *testing.T) {
	f, _ := Get("jsonl")

	dec, err := f.NewDecoder(strings.NewReader("\n\n"), nil)
	require.NoError(t, err)

	_, err = dec.Next()
	assert.Equal(t, io.EOF, err)
}

func TestJSONLRoundTrip(t *testing.T) {
	f, _ := Get("jsonl")

	var buf bytes.Buffer
	enc, err := f.NewEncoder(&buf, nil)
	require.NoError(t, err)

	in := []map[string]interface{}{
		{"city": "Berlin", "population": float64(3700000)},
		{"city": "Oslo", "nested": map[string]interface{}{"k": "v"}},
	}
	for _, row := range in {
		require.NoError(t, enc.Write(row))
	}
	require.NoError(t, enc.Flush())

	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	dec, err := f.NewDecoder(&buf, nil)
	require.NoError(t, err)
	rows := decodeAll(t, dec)
	assert.Equal(t, in, rows)
}
