package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

type (
	// Source reads catalog documents by slash-separated path
	Source interface {
		Name() string
		Read(ctx context.Context, path string) ([]byte, error)
		Dirs(ctx context.Context) ([]string, error)
	}

	// HTTPSource reads catalog documents relative to a base URL. It cannot
	// enumerate catalog directories
	HTTPSource struct {
		BaseURL string
		Client  *http.Client
	}

	// BucketSource reads catalog documents from a gocloud.dev blob bucket
	BucketSource struct {
		bucket *blob.Bucket
		prefix string
	}

	// FSSource reads catalog documents from a file system, typically one
	// embedded in the binary
	FSSource struct {
		FS fs.FS
	}

	// ChainSource tries each source in order, moving on when a document
	// is not found
	ChainSource []Source
)

const defaultHTTPTimeout = 10 * time.Second

var (
	ErrNotFound     = errors.New("catalog document not found")
	ErrSourceStatus = errors.New("unexpected catalog response status")
)

var (
	_ Source = (*HTTPSource)(nil)
	_ Source = (*BucketSource)(nil)
	_ Source = (*FSSource)(nil)
	_ Source = ChainSource(nil)
)

// Name identifies the source in logs
func (s *HTTPSource) Name() string {
	return "http"
}

// Read fetches the document at path below the base URL
func (s *HTTPSource) Read(ctx context.Context, p string) ([]byte, error) {
	u, err := url.JoinPath(s.BaseURL, p)
	if err != nil {
		return nil, err
	}
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(resp.Body)
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	default:
		return nil, fmt.Errorf("%w: %d for %s",
			ErrSourceStatus, resp.StatusCode, p)
	}
}

// Dirs is unsupported over HTTP and always reports ErrNotFound
func (s *HTTPSource) Dirs(context.Context) ([]string, error) {
	return nil, fmt.Errorf("%w: http sources cannot list", ErrNotFound)
}

// OpenBucketSource opens a bucket by URL (mem://, file://, s3://, gs://,
// azblob://). Keys are read below prefix
func OpenBucketSource(
	ctx context.Context, bucketURL, prefix string,
) (*BucketSource, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	return NewBucketSource(bucket, prefix), nil
}

// NewBucketSource wraps an open bucket
func NewBucketSource(bucket *blob.Bucket, prefix string) *BucketSource {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &BucketSource{bucket: bucket, prefix: prefix}
}

// Name identifies the source in logs
func (s *BucketSource) Name() string {
	return "bucket"
}

// Read returns the object stored under path
func (s *BucketSource) Read(ctx context.Context, p string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, s.prefix+p)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, err
	}
	return data, nil
}

// Dirs lists the top-level directories below the prefix
func (s *BucketSource) Dirs(ctx context.Context) ([]string, error) {
	iter := s.bucket.List(&blob.ListOptions{
		Prefix:    s.prefix,
		Delimiter: "/",
	})
	var res []string
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if obj.IsDir {
			name := strings.TrimSuffix(
				strings.TrimPrefix(obj.Key, s.prefix), "/",
			)
			res = append(res, name)
		}
	}
	slices.Sort(res)
	return res, nil
}

// Close releases the bucket
func (s *BucketSource) Close() error {
	return s.bucket.Close()
}

// Name identifies the source in logs
func (s *FSSource) Name() string {
	return "fs"
}

// Read returns the file at path
func (s *FSSource) Read(_ context.Context, p string) ([]byte, error) {
	data, err := fs.ReadFile(s.FS, path.Clean(p))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return data, err
}

// Dirs lists the top-level directories of the file system
func (s *FSSource) Dirs(context.Context) ([]string, error) {
	entries, err := fs.ReadDir(s.FS, ".")
	if err != nil {
		return nil, err
	}
	var res []string
	for _, e := range entries {
		if e.IsDir() {
			res = append(res, e.Name())
		}
	}
	return res, nil
}

// Name lists the chained source names
func (c ChainSource) Name() string {
	names := make([]string, len(c))
	for i, s := range c {
		names[i] = s.Name()
	}
	return strings.Join(names, ",")
}

// Read returns the document from the first source that has it
func (c ChainSource) Read(ctx context.Context, p string) ([]byte, error) {
	for _, s := range c {
		data, err := s.Read(ctx, p)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return data, err
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
}

// Dirs returns the directories of the first source able to list them
func (c ChainSource) Dirs(ctx context.Context) ([]string, error) {
	for _, s := range c {
		dirs, err := s.Dirs(ctx)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return dirs, err
	}
	return nil, fmt.Errorf("%w: no listable source", ErrNotFound)
}
