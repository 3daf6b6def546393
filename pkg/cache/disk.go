package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/Sternrassler/destiny-client/internal/fsutil"
)

const entrySuffix = ".json"

// DiskStore keeps one JSON file per key in a directory.
type DiskStore struct {
	dir      string
	maxBytes int64

	// mu serializes writes so budget enforcement sees a stable directory.
	mu sync.Mutex
}

// NewDiskStore creates dir if needed. maxBytes <= 0 disables eviction.
func NewDiskStore(dir string, maxBytes int64) (*DiskStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &DiskStore{dir: dir, maxBytes: maxBytes}, nil
}

// Name implements Store.
func (d *DiskStore) Name() string { return "disk" }

// Dir returns the directory entries are written to.
func (d *DiskStore) Dir() string { return d.dir }

func (d *DiskStore) path(key string) string {
	return filepath.Join(d.dir, SanitizeKey(key)+entrySuffix)
}

// Load implements Store. Keys that sanitize to the same file name do not
// shadow each other: a file holding a different key is a miss.
func (d *DiskStore) Load(_ context.Context, key string) (*Entry, error) {
	data, err := os.ReadFile(d.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrCacheMiss
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if entry.Key != key {
		return nil, ErrCacheMiss
	}
	return &entry, nil
}

// Save implements Store.
func (d *DiskStore) Save(_ context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	path := d.path(entry.Key)
	if err := fsutil.WriteFileAtomic(path, data); err != nil {
		return err
	}
	return d.enforceBudget(path)
}

// Delete implements Store.
func (d *DiskStore) Delete(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.Remove(d.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cache file: %w", err)
	}
	return nil
}

// Clear implements Store. Only entry files are removed.
func (d *DiskStore) Clear(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	files, _, err := d.list()
	if err != nil {
		return err
	}

	var errs []error
	for _, f := range files {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	CacheSize.WithLabelValues(d.Name()).Set(0)
	return errors.Join(errs...)
}

type cacheFile struct {
	path string
	info fs.FileInfo
}

// list returns the entry files and their total size.
func (d *DiskStore) list() ([]cacheFile, int64, error) {
	dirEntries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, 0, fmt.Errorf("read cache dir: %w", err)
	}

	var (
		files []cacheFile
		total int64
	)
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, entrySuffix) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		files = append(files, cacheFile{path: filepath.Join(d.dir, name), info: info})
		total += info.Size()
	}
	return files, total, nil
}

// enforceBudget removes the oldest files until the directory fits in
// maxBytes. keep is never removed.
func (d *DiskStore) enforceBudget(keep string) error {
	files, total, err := d.list()
	if err != nil {
		return err
	}

	if d.maxBytes > 0 && total > d.maxBytes {
		sort.Slice(files, func(i, j int) bool {
			return files[i].info.ModTime().Before(files[j].info.ModTime())
		})
		for _, f := range files {
			if total <= d.maxBytes {
				break
			}
			if f.path == keep {
				continue
			}
			if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("evict cache file: %w", err)
			}
			total -= f.info.Size()
			CacheEvictions.Inc()
		}
	}

	CacheSize.WithLabelValues(d.Name()).Set(float64(total))
	return nil
}
