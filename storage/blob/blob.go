// Package blob keeps uploaded files (book PDFs, covers, papers) in a directory served
// under a public base URL. Collections only ever reference blobs by URL.
package blob

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrTooLarge = errors.New("file too large")
	ErrEmpty    = errors.New("file is empty")
)

type Dir struct {
	dir     string
	baseURL string
	maxSize int64
}

// New returns a blob store writing to dir. maxSize is a human readable size ("10MB"); empty means unlimited.
func New(dir, baseURL, maxSize string) (*Dir, error) {
	var max int64
	if maxSize != "" {
		var err error
		if max, err = units.RAMInBytes(maxSize); err != nil {
			return nil, errors.Wrapf(err, "parsing max upload size %q", maxSize)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating uploads dir")
	}
	return &Dir{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/"), maxSize: max}, nil
}

func (d *Dir) Root() string    { return d.dir }
func (d *Dir) MaxSize() int64  { return d.maxSize }
func (d *Dir) BaseURL() string { return d.baseURL }

// Save stores the content of r under a fresh name keeping the extension of name, and returns its URL.
func (d *Dir) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fname := uuid.NewString() + strings.ToLower(path.Ext(filepath.Base(name)))

	tmp, err := os.CreateTemp(d.dir, ".upload-*")
	if err != nil {
		return "", errors.Wrap(err, "creating temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	src := r
	if d.maxSize > 0 {
		src = io.LimitReader(r, d.maxSize+1)
	}
	n, err := io.Copy(tmp, src)
	if cErr := tmp.Close(); err == nil {
		err = cErr
	}
	switch {
	case err != nil:
		return "", errors.Wrap(err, "writing upload")
	case n == 0:
		return "", ErrEmpty
	case d.maxSize > 0 && n > d.maxSize:
		return "", errors.Wrapf(ErrTooLarge, "max %s", units.BytesSize(float64(d.maxSize)))
	}

	if err = os.Rename(tmp.Name(), filepath.Join(d.dir, fname)); err != nil {
		return "", errors.Wrap(err, "storing upload")
	}
	return d.baseURL + "/" + fname, nil
}

// Owns reports whether url points to a blob of this store.
func (d *Dir) Owns(url string) bool {
	return strings.HasPrefix(url, d.baseURL+"/")
}

// Delete removes the blob behind url. URLs of other origins and missing blobs are ignored.
func (d *Dir) Delete(_ context.Context, url string) error {
	if !d.Owns(url) {
		return nil
	}
	fname := filepath.Base(strings.TrimPrefix(url, d.baseURL+"/"))
	if fname == "." || strings.HasPrefix(fname, ".") {
		return nil
	}
	if err := os.Remove(filepath.Join(d.dir, fname)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "deleting upload")
	}
	return nil
}
