package icebergsource

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/ajitpratap0/gridframe/pkg/bytesource"
	"github.com/ajitpratap0/gridframe/pkg/config"
	"github.com/ajitpratap0/gridframe/pkg/errors"
)

const metadataSuffix = ".metadata.json"

// joinURI appends path elements to a location URI or local path.
func joinURI(base string, elems ...string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Join(elems, "/")
}

// splitMetadataURI splits ".../table/metadata/v3.metadata.json" into the
// table root and the version "v3".
func splitMetadataURI(uri string) (root, version string, ok bool) {
	if !strings.HasSuffix(uri, metadataSuffix) {
		return "", "", false
	}
	dir, file := uri, uri
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		dir, file = uri[:i], uri[i+1:]
	} else {
		dir = "."
	}
	root = strings.TrimSuffix(dir, "/metadata")
	if root == dir {
		root = dir + "/.."
	}
	return root, strings.TrimSuffix(file, metadataSuffix), true
}

// locator maps the absolute paths written into manifests to readable
// locations. Paths under the table's recorded location are rebased onto the
// root the table was opened from, so copied or mounted tables stay readable.
type locator struct {
	root     string
	location string
}

func (l locator) resolve(path string) string {
	if loc := strings.TrimRight(l.location, "/"); loc != "" {
		if path == loc {
			return l.root
		}
		if strings.HasPrefix(path, loc+"/") {
			return joinURI(l.root, path[len(loc)+1:])
		}
	}
	// spark writes local paths as file:/path
	if strings.HasPrefix(path, "file:") && !strings.HasPrefix(path, "file://") {
		return strings.TrimPrefix(path, "file:")
	}
	return path
}

// readAll reads a whole metadata or manifest file.
func readAll(ctx context.Context, uri string, cfg config.StorageConfig) ([]byte, error) {
	src, err := bytesource.Open(ctx, uri, cfg)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	buf := make([]byte, src.Size())
	if _, err := io.ReadFull(io.NewSectionReader(src, 0, src.Size()), buf); err != nil {
		return nil, errors.UnderlyingRead(err, "read "+uri)
	}
	return buf, nil
}

// ListVersions returns the metadata versions of the table at root, oldest
// first. The latest version comes from metadata/version-hint.text and every
// earlier version is assumed to exist.
func ListVersions(ctx context.Context, root string, cfg config.StorageConfig) ([]string, error) {
	data, err := readAll(ctx, joinURI(root, "metadata", "version-hint.text"), cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "no version hint, open a metadata.json file directly")
	}
	hint := strings.TrimPrefix(strings.TrimSpace(string(data)), "v")
	n, err := strconv.Atoi(hint)
	if err != nil || n < 1 {
		return nil, errors.Newf(errors.ErrorTypeValidation, "invalid version hint %q", strings.TrimSpace(string(data)))
	}
	versions := make([]string, n)
	for i := range versions {
		versions[i] = "v" + strconv.Itoa(i+1)
	}
	return versions, nil
}

// LoadMetadata reads the table metadata of a version such as "v2".
func LoadMetadata(ctx context.Context, root, version string, cfg config.StorageConfig) (*TableMetadata, error) {
	data, err := readAll(ctx, joinURI(root, "metadata", version+metadataSuffix), cfg)
	if err != nil {
		return nil, err
	}
	return ParseMetadata(data)
}
