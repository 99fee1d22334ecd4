package bytesource

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/gridframe/pkg/config"
	"github.com/ajitpratap0/gridframe/pkg/errors"
)

func testPayload() []byte {
	b := make([]byte, 4096)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		uri     string
		want    Location
		name    string
		wantErr bool
	}{
		{uri: "data/file.parquet", want: Location{Scheme: SchemeFile, Path: "data/file.parquet"}, name: "file.parquet"},
		{uri: "file:///tmp/x.parquet", want: Location{Scheme: SchemeFile, Path: "/tmp/x.parquet"}, name: "x.parquet"},
		{uri: "https://example.com/d/y.parquet?sig=1", want: Location{Scheme: SchemeHTTPS, Path: "https://example.com/d/y.parquet?sig=1"}, name: "y.parquet"},
		{uri: "s3://bucket/a/b.parquet", want: Location{Scheme: SchemeS3, Bucket: "bucket", Key: "a/b.parquet"}, name: "b.parquet"},
		{uri: "gs://bucket/c.parquet", want: Location{Scheme: SchemeGCS, Bucket: "bucket", Key: "c.parquet"}, name: "c.parquet"},
		{uri: "s3://bucket", wantErr: true},
		{uri: "ftp://host/file", wantErr: true},
		{uri: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := ParseLocation(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.name, got.Name())
		})
	}
}

func TestLocationString(t *testing.T) {
	loc, err := ParseLocation("s3://bucket/a/b.parquet")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/a/b.parquet", loc.String())
}

func TestOpenFile(t *testing.T) {
	payload := testPayload()
	path := filepath.Join(t.TempDir(), "blob.bin")
	require.NoError(t, os.WriteFile(path, payload, 0o600))

	src, err := Open(context.Background(), path, config.NewConfig("test").Storage)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, int64(len(payload)), src.Size())

	buf := make([]byte, 100)
	n, err := src.ReadAt(buf, 1000)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, payload[1000:1100], buf)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing"), config.NewConfig("test").Storage)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnderlyingRead))
}

func TestOpenHTTP(t *testing.T) {
	payload := testPayload()
	var (
		mu     sync.Mutex
		ranges []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rng := r.Header.Get("Range"); rng != "" {
			mu.Lock()
			ranges = append(ranges, rng)
			mu.Unlock()
		}
		http.ServeContent(w, r, "blob.bin", time.Unix(0, 0), bytes.NewReader(payload))
	}))
	defer srv.Close()

	cfg := config.NewConfig("test").Storage
	cfg.HTTPTimeout = 5 * time.Second
	src, err := Open(context.Background(), srv.URL+"/blob.bin", cfg)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, int64(len(payload)), src.Size())

	buf := make([]byte, 64)
	_, err = src.ReadAt(buf, 2048)
	require.NoError(t, err)
	assert.Equal(t, payload[2048:2112], buf)
	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, ranges, "reads are served with range requests")
}

func TestCheckRange(t *testing.T) {
	n, err := checkRange(10, 5, 100)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = checkRange(98, 5, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = checkRange(100, 5, 100)
	assert.Equal(t, io.EOF, err)

	_, err = checkRange(-1, 5, 100)
	assert.Error(t, err)
}
