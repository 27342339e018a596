package cache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ossanalytics/ossanalytics/internal/core"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestFileStorePutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	urls := []string{
		"https://api.github.com/repos/d3/d3",
		"https://api.github.com/repos/d3/d3/commits?per_page=100&page=2",
		"https://api.npmjs.org/downloads/range/2021-01-01:2021-12-31/d3",
		"https://registry.npmjs.org/@observablehq%2Fplot",
		"https://example.com/already.json",
	}

	for _, rawURL := range urls {
		entry := &core.CacheEntry{
			Headers: map[string]string{"link": `<https://api.github.com/x?page=2>; rel="next"`, "etag": `W/"abc"`},
			Body:    json.RawMessage(`{"name":"d3","values":[1,2,3],"nested":{"ok":true}}`),
		}
		require.NoError(t, store.Put(ctx, rawURL, entry))

		got, err := store.Get(ctx, rawURL)
		require.NoError(t, err, rawURL)
		require.Equal(t, entry.Headers, got.Headers)
		require.Equal(t, string(entry.Body), string(got.Body))
		require.Equal(t, rawURL, got.URL)
	}
}

func TestFileStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "https://api.github.com/repos/missing/missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreRejectsNonHTTPS(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, rawURL := range []string{"http://api.github.com/repos/d3/d3", "file:///etc/passwd", "ftp://example.com/x", "not a url"} {
		_, err := store.Get(ctx, rawURL)
		require.ErrorIs(t, err, ErrInvalidURL, rawURL)

		err = store.Put(ctx, rawURL, &core.CacheEntry{Body: json.RawMessage(`{}`)})
		require.ErrorIs(t, err, ErrInvalidURL, rawURL)
	}

	entries, err := os.ReadDir(store.Root())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestFileStorePutIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rawURL := "https://api.github.com/repos/d3/d3"
	entry := &core.CacheEntry{Headers: map[string]string{}, Body: json.RawMessage(`{"a":1}`)}

	require.NoError(t, store.Put(ctx, rawURL, entry))
	path, err := store.Path(rawURL)
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, rawURL, entry))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestFileStoreRejectsInvalidBodyWithoutLeavingFiles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rawURL := "https://api.github.com/repos/d3/d3"

	err := store.Put(ctx, rawURL, &core.CacheEntry{Body: json.RawMessage(`{"broken"`)})
	require.Error(t, err)

	_, err = store.Get(ctx, rawURL)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreConcurrentPutsSameKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rawURL := "https://api.npmjs.org/downloads/range/2021-01-01:2021-12-31/d3"

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body, _ := json.Marshal(map[string]int{"writer": i})
			_ = store.Put(ctx, rawURL, &core.CacheEntry{Body: body})
		}(i)
	}
	wg.Wait()

	got, err := store.Get(ctx, rawURL)
	require.NoError(t, err)
	var decoded map[string]int
	require.NoError(t, json.Unmarshal(got.Body, &decoded))
	require.Contains(t, decoded, "writer")

	path, err := store.Path(rawURL)
	require.NoError(t, err)
	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".entry-*"))
	require.NoError(t, err)
	require.Empty(t, leftovers)
}

func TestKeyMirrorsURL(t *testing.T) {
	key, err := Key("https://api.github.com/repos/d3/d3/contents/package.json")
	require.NoError(t, err)
	require.Equal(t, "api.github.com/repos/d3/d3/contents/package.json", key)

	key, err = Key("https://registry.npmjs.org/d3")
	require.NoError(t, err)
	require.Equal(t, "registry.npmjs.org/d3.json", key)

	_, err = Key("http://registry.npmjs.org/d3")
	require.True(t, errors.Is(err, ErrInvalidURL))
}

func TestKeyQueryCannotAliasPath(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	poisoned := "https://api.github.com/repos/x?q=/../../other/thing"
	target := "https://api.github.com/other/thing"

	key, err := Key(poisoned)
	require.NoError(t, err)
	require.Equal(t, "api.github.com/repos/x?q=%2F..%2F..%2Fother%2Fthing.json", key)

	key, err = Key("https://api.github.com/repos/d3/d3/commits?per_page=100&page=2")
	require.NoError(t, err)
	require.Equal(t, "api.github.com/repos/d3/d3/commits?per_page=100&page=2.json", key)

	require.NoError(t, store.Put(ctx, poisoned, &core.CacheEntry{Body: json.RawMessage(`{"poisoned":true}`)}))
	require.NoError(t, store.Put(ctx, target, &core.CacheEntry{Body: json.RawMessage(`{"target":true}`)}))

	entry, err := store.Get(ctx, poisoned)
	require.NoError(t, err)
	require.JSONEq(t, `{"poisoned":true}`, string(entry.Body))

	entry, err = store.Get(ctx, target)
	require.NoError(t, err)
	require.JSONEq(t, `{"target":true}`, string(entry.Body))

	poisonedPath, err := store.Path(poisoned)
	require.NoError(t, err)
	targetPath, err := store.Path(target)
	require.NoError(t, err)
	require.NotEqual(t, poisonedPath, targetPath)
}

func TestFileStoreClear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rawURL := "https://api.github.com/repos/d3/d3"

	require.NoError(t, store.Put(ctx, rawURL, &core.CacheEntry{Body: json.RawMessage(`{}`)}))
	require.NoError(t, store.Clear(ctx))

	_, err := store.Get(ctx, rawURL)
	require.ErrorIs(t, err, ErrNotFound)
}
