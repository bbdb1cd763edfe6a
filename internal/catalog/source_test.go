package catalog_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"

	"github.com/kode4food/cadence/internal/catalog"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
)

func TestBucketSource(t *testing.T) {
	ctx := context.Background()
	bucket, err := blob.OpenBucket(ctx, "mem://")
	require.NoError(t, err)

	require.NoError(t, bucket.WriteAll(ctx,
		"catalogs/canvas/index.json", []byte(`{"sequences":[]}`), nil,
	))
	require.NoError(t, bucket.WriteAll(ctx,
		"catalogs/panel/index.json", []byte(`{}`), nil,
	))
	require.NoError(t, bucket.WriteAll(ctx,
		"catalogs/plugin-manifest.json", []byte(`{}`), nil,
	))

	src := catalog.NewBucketSource(bucket, "catalogs")
	defer func() { _ = src.Close() }()

	t.Run("Read returns stored objects", func(t *testing.T) {
		data, err := src.Read(ctx, "canvas/index.json")
		assert.NoError(t, err)
		assert.JSONEq(t, `{"sequences":[]}`, string(data))
	})

	t.Run("Read maps missing objects to ErrNotFound", func(t *testing.T) {
		_, err := src.Read(ctx, "missing/index.json")
		assert.ErrorIs(t, err, catalog.ErrNotFound)
	})

	t.Run("Dirs lists top-level directories", func(t *testing.T) {
		dirs, err := src.Dirs(ctx)
		assert.NoError(t, err)
		assert.Equal(t, []string{"canvas", "panel"}, dirs)
	})
}

func TestOpenBucketSourceFile(t *testing.T) {
	ctx := context.Background()
	src, err := catalog.OpenBucketSource(ctx, "file://"+t.TempDir(), "")
	require.NoError(t, err)
	defer func() { _ = src.Close() }()

	_, err = src.Read(ctx, "canvas/index.json")
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	dirs, err := src.Dirs(ctx)
	assert.NoError(t, err)
	assert.Empty(t, dirs)
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/plugins/canvas/index.json":
				_, _ = w.Write([]byte(`{"sequences":[]}`))
			case "/plugins/broken/index.json":
				w.WriteHeader(http.StatusInternalServerError)
			default:
				http.NotFound(w, r)
			}
		},
	))
	defer srv.Close()

	src := &catalog.HTTPSource{BaseURL: srv.URL + "/plugins"}
	ctx := context.Background()

	data, err := src.Read(ctx, "canvas/index.json")
	assert.NoError(t, err)
	assert.JSONEq(t, `{"sequences":[]}`, string(data))

	_, err = src.Read(ctx, "missing/index.json")
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = src.Read(ctx, "broken/index.json")
	assert.ErrorIs(t, err, catalog.ErrSourceStatus)

	_, err = src.Dirs(ctx)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestFSSource(t *testing.T) {
	src := &catalog.FSSource{FS: fstest.MapFS{
		"canvas/index.json": {Data: []byte(`{}`)},
		"readme.md":         {Data: []byte("#")},
	}}
	ctx := context.Background()

	_, err := src.Read(ctx, "canvas/index.json")
	assert.NoError(t, err)
	_, err = src.Read(ctx, "panel/index.json")
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	dirs, err := src.Dirs(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"canvas"}, dirs)
}

func TestChainSource(t *testing.T) {
	first := &catalog.HTTPSource{BaseURL: "http://127.0.0.1:0"}
	empty := &catalog.FSSource{FS: fstest.MapFS{}}
	embedded := &catalog.FSSource{FS: fstest.MapFS{
		"canvas/index.json": {Data: []byte(`{"plugin":"canvas"}`)},
	}}
	ctx := context.Background()

	t.Run("falls through not found only", func(t *testing.T) {
		chain := catalog.ChainSource{empty, embedded}
		data, err := chain.Read(ctx, "canvas/index.json")
		assert.NoError(t, err)
		assert.JSONEq(t, `{"plugin":"canvas"}`, string(data))

		_, err = chain.Read(ctx, "panel/index.json")
		assert.ErrorIs(t, err, catalog.ErrNotFound)
	})

	t.Run("stops on other errors", func(t *testing.T) {
		chain := catalog.ChainSource{first, embedded}
		_, err := chain.Read(ctx, "canvas/index.json")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, catalog.ErrNotFound)
	})

	t.Run("lists from the first listable source", func(t *testing.T) {
		chain := catalog.ChainSource{first, embedded}
		dirs, err := chain.Dirs(ctx)
		assert.NoError(t, err)
		assert.Equal(t, []string{"canvas"}, dirs)
		assert.Equal(t, "http,fs", chain.Name())
	})
}
