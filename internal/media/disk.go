package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore writes uploads below a local directory and serves them back
// over HTTP.
type DiskStore struct {
	dir      string
	baseURL  string
	maxBytes int64
}

// NewDiskStore creates dir if needed. baseURL is the public prefix files are
// served under, for example "http://localhost:8080/uploads".
func NewDiskStore(dir, baseURL string, maxBytes int64) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), maxBytes: maxBytes}, nil
}

// Upload copies f to disk. A body larger than the limit is rejected and
// nothing is left behind.
func (d *DiskStore) Upload(ctx context.Context, f File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if d.maxBytes > 0 && f.Size > d.maxBytes {
		return "", ErrTooLarge
	}
	key, err := objectKey(f.ContentType, f.Name)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(d.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}

	body := f.Body
	if d.maxBytes > 0 {
		body = io.LimitReader(f.Body, d.maxBytes+1)
	}
	n, err := io.Copy(out, body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	switch {
	case err != nil:
	case n == 0:
		err = ErrEmpty
	case d.maxBytes > 0 && n > d.maxBytes:
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(dst)
		return "", err
	}

	return d.baseURL + "/" + key, nil
}

// Handler serves stored files. Mount it with the URL prefix stripped.
func (d *DiskStore) Handler() http.Handler {
	fs := http.FileServer(http.Dir(d.dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// no directory listings
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		fs.ServeHTTP(w, r)
	})
}
