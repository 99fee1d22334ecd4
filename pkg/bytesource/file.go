package bytesource

import (
	"os"

	"github.com/ajitpratap0/gridframe/pkg/errors"
)

type fileSource struct {
	*os.File
	size int64
}

func openFile(path string) (*fileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeUnderlyingRead, "open file")
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeUnderlyingRead, "stat file")
	}
	return &fileSource{File: f, size: fi.Size()}, nil
}

func (f *fileSource) Size() int64 { return f.size }
