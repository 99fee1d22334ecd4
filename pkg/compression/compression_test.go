package compression

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/gridframe/pkg/errors"
)

func TestFromPath(t *testing.T) {
	tests := map[string]Algorithm{
		"rows.jsonl":     None,
		"rows.jsonl.gz":  Gzip,
		"rows.jsonl.ZST": Zstd,
		"rows.lz4":       LZ4,
		"rows.snappy":    Snappy,
		"rows.s2":        S2,
		"rows":           None,
	}
	for path, want := range tests {
		assert.Equal(t, want, FromPath(path), path)
	}
}

func TestParse(t *testing.T) {
	alg, err := Parse("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, Zstd, alg)

	alg, err = Parse("")
	require.NoError(t, err)
	assert.Equal(t, None, alg)

	_, err = Parse("brotli")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat(`{"id":1,"name":"Name1"}`+"\n", 500))

	for _, alg := range []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2} {
		t.Run(string(alg), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, alg, Default)
			require.NoError(t, err)
			_, err = w.Write(payload)
			require.NoError(t, err)
			require.NoError(t, w.Close())
			if alg != None {
				assert.Less(t, buf.Len(), len(payload))
			}

			r, err := NewReader(&buf, alg)
			require.NoError(t, err)
			defer r.Close()
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestUnknownAlgorithm(t *testing.T) {
	_, err := NewWriter(io.Discard, "brotli", Default)
	assert.Error(t, err)
	_, err = NewReader(strings.NewReader(""), "brotli")
	assert.Error(t, err)
}
