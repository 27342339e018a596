// Package cache implements the on-disk response cache. Each fetched URL maps
// to one JSON file under the cache root that mirrors the URL's host and path:
//
//	<root>/<host>/<path>[?query].json   # {"headers": {...}, "body": ...}
//
// Entries are permanent until the cache root is cleared. Writes go through a
// temp file and rename so a partially written entry is never visible.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ossanalytics/ossanalytics/internal/core"
)

var (
	// ErrNotFound reports a cache miss.
	ErrNotFound = errors.New("cache entry not found")

	// ErrInvalidURL reports a URL the cache refuses to key (anything but https).
	ErrInvalidURL = errors.New("invalid url")
)

// Store reads and writes cached responses.
type Store interface {
	// Get never performs network I/O. It returns ErrNotFound on a miss.
	Get(ctx context.Context, rawURL string) (*core.CacheEntry, error)

	// Put writes the entry atomically, creating directories as needed.
	Put(ctx context.Context, rawURL string, entry *core.CacheEntry) error
}

// FileStore is the disk-backed Store.
type FileStore struct {
	root string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// NewFileStore roots a cache at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("cache directory is required")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve cache directory: %w", err)
	}

	// #nosec G301 -- cache directories use 0755 like the rest of the data dirs
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	return &FileStore{
		root:  abs,
		locks: make(map[string]*entryLock),
	}, nil
}

// Root returns the absolute cache root.
func (s *FileStore) Root() string {
	if s == nil {
		return ""
	}
	return s.root
}

// Get loads a cached entry.
func (s *FileStore) Get(ctx context.Context, rawURL string) (*core.CacheEntry, error) {
	filePath, err := s.Path(rawURL)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath) // #nosec G304 -- path derived from a validated https URL under root
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read cache entry: %w", err)
	}

	var entry core.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", filePath, err)
	}
	entry.URL = rawURL
	if entry.Headers == nil {
		entry.Headers = map[string]string{}
	}
	return &entry, nil
}

// Put stores an entry. Writing identical content twice leaves the same file.
func (s *FileStore) Put(ctx context.Context, rawURL string, entry *core.CacheEntry) error {
	if entry == nil {
		return errors.New("cache entry is required")
	}

	filePath, err := s.Path(rawURL)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	unlock := s.lockEntry(filePath)
	defer unlock()

	dir := filepath.Dir(filePath)
	// #nosec G301 -- cache directories use 0755 like the rest of the data dirs
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("create temp entry: %w", err)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(payload)
	if syncErr := tmp.Sync(); err == nil {
		err = syncErr
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write cache entry: %w", err)
	}

	if err := os.Rename(tmpName, filePath); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("commit cache entry: %w", err)
	}
	return nil
}

// Clear removes every cached entry.
func (s *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("list cache directory: %w", err)
	}
	for _, item := range entries {
		if err := os.RemoveAll(filepath.Join(s.root, item.Name())); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
	}
	return nil
}

// Path resolves the file backing rawURL. It fails with ErrInvalidURL for
// anything other than an absolute https URL.
func (s *FileStore) Path(rawURL string) (string, error) {
	key, err := Key(rawURL)
	if err != nil {
		return "", err
	}

	filePath := filepath.Join(s.root, filepath.FromSlash(key))
	if !strings.HasPrefix(filePath, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s escapes cache root", ErrInvalidURL, rawURL)
	}
	return filePath, nil
}

// Key derives the slash-separated relative cache key for rawURL: the URL
// without its scheme, with ".json" appended unless already present.
func Key(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported protocol %q", ErrInvalidURL, u.Scheme+":")
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	rel := path.Clean("/" + u.EscapedPath())
	if rel == "/" {
		rel = "/index"
	}
	key := strings.ToLower(u.Host) + rel
	if u.RawQuery != "" {
		// Escaped as one segment so a query can never add path elements.
		key += "?" + url.PathEscape(u.RawQuery)
	}
	if !strings.HasSuffix(key, ".json") {
		key += ".json"
	}
	return key, nil
}

// encodeEntry writes the body verbatim so a later Get returns the same bytes.
func encodeEntry(entry *core.CacheEntry) ([]byte, error) {
	body := bytes.TrimSpace(entry.Body)
	if len(body) == 0 {
		body = []byte("null")
	}
	if !json.Valid(body) {
		return nil, errors.New("cache entry body is not valid JSON")
	}

	headers := entry.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	headerJSON, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("encode cache headers: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(`{"headers":`)
	buf.Write(headerJSON)
	buf.WriteString(`,"body":`)
	buf.Write(body)
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func (s *FileStore) lockEntry(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}
