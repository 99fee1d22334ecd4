package bytesource

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/gridframe/pkg/config"
	"github.com/ajitpratap0/gridframe/pkg/errors"
)

// gcsSource serves ReadAt with object range readers
type gcsSource struct {
	client *storage.Client
	object *storage.ObjectHandle
	size   int64
	cfg    config.StorageConfig
}

func openGCS(ctx context.Context, loc Location, cfg config.StorageConfig) (*gcsSource, error) {
	var opts []option.ClientOption
	if cfg.GCS.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCS.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "create GCS client")
	}

	object := client.Bucket(loc.Bucket).Object(loc.Key)
	attrs, err := object.Attrs(ctx)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "read GCS object attributes").
			WithDetail("bucket", loc.Bucket).
			WithDetail("object", loc.Key)
	}

	return &gcsSource{client: client, object: object, size: attrs.Size, cfg: cfg}, nil
}

func (g *gcsSource) ReadAt(p []byte, off int64) (int, error) {
	n, err := checkRange(off, len(p), g.size)
	if err != nil || n == 0 {
		return 0, err
	}

	ctx := context.Background()
	if g.cfg.HTTPTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.HTTPTimeout)
		defer cancel()
	}

	r, err := g.object.NewRangeReader(ctx, off, int64(n))
	if err != nil {
		return 0, errors.UnderlyingRead(err, "open GCS range reader")
	}
	defer r.Close()

	got, err := io.ReadFull(r, p[:n])
	if err != nil {
		return got, errors.UnderlyingRead(err, "ranged GCS read")
	}
	if got < len(p) {
		return got, io.EOF
	}
	return got, nil
}

func (g *gcsSource) Size() int64 { return g.size }

func (g *gcsSource) Close() error { return g.client.Close() }
