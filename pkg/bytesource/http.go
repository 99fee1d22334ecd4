package bytesource

import (
	"net/http"
	"net/url"
	"sync"

	"howett.net/ranger"

	"github.com/ajitpratap0/gridframe/pkg/config"
	"github.com/ajitpratap0/gridframe/pkg/errors"
)

// httpSource serves ReadAt with HTTP Range requests
type httpSource struct {
	mu     sync.Mutex // ranger.Reader is not safe for concurrent use
	reader *ranger.Reader
	size   int64
}

func openHTTP(rawURL string, cfg config.StorageConfig) (*httpSource, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid URL")
	}
	client := &http.Client{Timeout: cfg.HTTPTimeout}
	reader, err := ranger.NewReader(&ranger.HTTPRanger{URL: u, Client: client})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "create HTTP range reader")
	}
	size, err := reader.Length()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "get HTTP content length")
	}
	return &httpSource{reader: reader, size: size}, nil
}

func (h *httpSource) ReadAt(p []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reader.ReadAt(p, off)
}

func (h *httpSource) Size() int64 { return h.size }

func (h *httpSource) Close() error { return nil }
