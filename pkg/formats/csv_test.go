package formats

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, dec Decoder) []map[string]interface{} {
	t.Helper()
	var rows []map[string]interface{}
	for {
		row, err := dec.Next()
		if err == io.EOF {
			return rows
		}
		require.NoError(t, err)
		rows = append(rows, row)
	}
}

func TestCSVDecode(t *testing.T) {
	f, err := Get("csv")
	require.NoError(t, err)

	input := "id,name,score,active\n1,alice,9.5,true\n2,bob,,false\n"
	dec, err := f.NewDecoder(strings.NewReader(input), nil)
	require.NoError(t, err)
	defer dec.Close()

	rows := decodeAll(t, dec)
	require.Len(t, rows, 2)

	assert.Equal(t, int64(1), rows[0]["id"])
	assert.Equal(t, "alice", rows[0]["name"])
	assert.Equal(t, 9.5, rows[0]["score"])
	assert.Equal(t, true, rows[0]["active"])

	assert.Nil(t, rows[1]["score"])
	assert.Equal(t, false, rows[1]["active"])

	assert.Equal(t, []string{"id", "name", "score", "active"}, dec.Columns())
}

func TestCSVDecodeNoHeader(t *testing.T) {
	f, _ := Get("csv")

	dec, err := f.NewDecoder(strings.NewReader("1,alice\n2,bob\n"), Options{"header": "false"})
	require.NoError(t, err)

	rows := decodeAll(t, dec)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0]["field_0"])
	assert.Equal(t, "bob", rows[1]["field_1"])
}

func TestCSVDecodeCustomDelimiter(t *testing.T) {
	f, _ := Get("csv")

	dec, err := f.NewDecoder(strings.NewReader("a;b\n1;2\n"), Options{"delimiter": ";"})
	require.NoError(t, err)

	rows := decodeAll(t, dec)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0]["b"])
}

func TestCSVDecodeRaggedRows(t *testing.T) {
	f, _ := Get("csv")

	dec, err := f.NewDecoder(strings.NewReader("a,b\n1,2,3\n4\n"), nil)
	require.NoError(t, err)

	rows := decodeAll(t, dec)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(3), rows[0]["field_2"])
	assert.Equal(t, int64(4), rows[1]["a"])
	_, hasB := rows[1]["b"]
	assert.False(t, hasB)
}

func TestCSVDecodeEmptyInput(t *testing.T) {
	f, _ := Get("csv")

	dec, err := f.NewDecoder(strings.NewReader(""), nil)
	require.NoError(t, err)

	_, err = dec.Next()
	assert.Equal(t, io.EOF, err)
}

func TestCSVBadOptions(t *testing.T) {
	f, _ := Get("csv")

	_, err := f.NewDecoder(strings.NewReader(""), Options{"delimiter": "ab"})
	assert.Error(t, err)

	_, err = f.NewDecoder(strings.NewReader(""), Options{"header": "maybe"})
	assert.Error(t, err)
}

func TestCSVEncode(t *testing.T) {
	f, _ := Get("csv")

	var buf bytes.Buffer
	enc, err := f.NewEncoder(&buf, nil)
	require.NoError(t, err)

	require.NoError(t, enc.Write(map[string]interface{}{
		"id": int64(1), "name": "alice", "score": 9.5,
	}))
	require.NoError(t, enc.Write(map[string]interface{}{
		"id": int64(2), "name": "bob", "extra": "dropped",
	}))
	require.NoError(t, enc.Flush())

	want := "id,name,score\n1,alice,9.5\n2,bob,\n"
	assert.Equal(t, want, buf.String())
}

func TestCSVEncodeNoHeader(t *testing.T) {
	f, _ := Get("csv")

	var buf bytes.Buffer
	enc, err := f.NewEncoder(&buf, Options{"header": "false"})
	require.NoError(t, err)

	require.NoError(t, enc.Write(map[string]interface{}{"a": int64(1), "b": "x"}))
	require.NoError(t, enc.Flush())

	assert.Equal(t, "1,x\n", buf.String())
}

func TestCSVRoundTrip(t *testing.T) {
	f, _ := Get("csv")

	var buf bytes.Buffer
	enc, err := f.NewEncoder(&buf, nil)
	require.NoError(t, err)

	in := []map[string]interface{}{
		{"city": "Berlin", "population": int64(3700000)},
		{"city": "Oslo", "population": int64(700000)},
	}
	for _, row := range in {
		require.NoError(t, enc.Write(row))
	}
	require.NoError(t, enc.Flush())

	dec, err := f.NewDecoder(&buf, nil)
	require.NoError(t, err)

	rows := decodeAll(t, dec)
	assert.Equal(t, in, rows)
}
