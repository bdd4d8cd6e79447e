package formats

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvroRoundTrip(t *testing.T) {
	f, err := Get("avro")
	require.NoError(t, err)

	var buf bytes.Buffer
	enc, err := f.NewEncoder(&buf, nil)
	require.NoError(t, err)

	in := []map[string]interface{}{
		{"id": int64(1), "name": "alice", "score": 9.5, "active": true},
		{"id": int64(2), "name": "bob", "score": 3.25, "active": false},
		{"id": int64(3), "name": nil, "score": nil, "active": nil},
	}
	for _, row := range in {
		require.NoError(t, enc.Write(row))
	}
	require.NoError(t, enc.Flush())

	dec, err := f.NewDecoder(&buf, nil)
	require.NoError(t, err)
	defer dec.Close()

	rows := decodeAll(t, dec)
	require.Len(t, rows, 3)

	assert.Equal(t, int64(1), rows[0]["id"])
	assert.Equal(t, "alice", rows[0]["name"])
	assert.Equal(t, 9.5, rows[0]["score"])
	assert.Equal(t, true, rows[0]["active"])

	assert.Nil(t, rows[2]["name"])
	assert.Nil(t, rows[2]["score"])
	assert.Nil(t, rows[2]["active"])

	assert.Equal(t, []string{"active", "id", "name", "score"}, dec.Columns())
}

func TestAvroSchemaInference(t *testing.T) {
	f, _ := Get("avro")

	var buf bytes.Buffer
	enc, err := f.NewEncoder(&buf, nil)
	require.NoError(t, err)

	// int and int64 both map to long; unknown types fall back to string
	require.NoError(t, enc.Write(map[string]interface{}{
		"n": 42,
		"u": []int{1, 2},
	}))
	require.NoError(t, enc.Flush())

	dec, err := f.NewDecoder(&buf, nil)
	require.NoError(t, err)

	rows := decodeAll(t, dec)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(42), rows[0]["n"])
	assert.Equal(t, "[1 2]", rows[0]["u"])
}

func TestAvroMissingColumnsWriteNull(t *testing.T) {
	f, _ := Get("avro")

	var buf bytes.Buffer
	enc, err := f.NewEncoder(&buf, nil)
	require.NoError(t, err)

	require.NoError(t, enc.Write(map[string]interface{}{"a": int64(1), "b": "x"}))
	require.NoError(t, enc.Write(map[string]interface{}{"a": int64(2)}))
	require.NoError(t, enc.Flush())

	dec, err := f.NewDecoder(&buf, nil)
	require.NoError(t, err)

	rows := decodeAll(t, dec)
	require.Len(t, rows, 2)
	assert.Equal(t, "x", rows[0]["b"])
	assert.Nil(t, rows[1]["b"])
}

func TestAvroEncodeTypeDrift(t *testing.T) {
	f, _ := Get("avro")

	var buf bytes.Buffer
	enc, err := f.NewEncoder(&buf, nil)
	require.NoError(t, err)

	// First row pins the schema: n is long, active is boolean.
	require.NoError(t, enc.Write(map[string]interface{}{"n": int64(1), "active": true}))

	// Numeric drift coerces across branches.
	require.NoError(t, enc.Write(map[string]interface{}{"n": 2.75, "active": false}))

	// Non-numeric drift is a format error naming the field.
	err = enc.Write(map[string]interface{}{"n": int64(3), "active": "yes"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"active"`)
	require.NoError(t, enc.Flush())

	dec, err := f.NewDecoder(&buf, nil)
	require.NoError(t, err)

	rows := decodeAll(t, dec)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[1]["n"])
}

func TestAvroDecodeGarbage(t *testing.T) {
	f, _ := Get("avro")

	_, err := f.NewDecoder(bytes.NewReader([]byte("not an avro container")), nil)
	assert.Error(t, err)
}
