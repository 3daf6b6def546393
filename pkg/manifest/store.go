package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"

	"github.com/Sternrassler/destiny-client/internal/fsutil"
)

// Persisted file names inside the cache directory.
const (
	versionFile      = "manifest-version.json"
	itemsFile        = "items.json"
	seasonsFile      = "seasons.json"
	collectiblesFile = "collectibles.json"

	zstdSuffix = ".zst"
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// diskStore persists snapshots as flat JSON tables keyed by id.
//
// Each save writes its tables into a fresh generation directory and then
// replaces manifest-version.json, which names that directory. The record
// is the only switch-over point: a save that fails part way leaves the
// previous generation in effect. Tables found directly in dir (the flat
// layout of older caches) are read when the record names no generation.
type diskStore struct {
	dir      string
	compress bool
}

// generationPrefix starts every generation directory name.
const generationPrefix = "gen-"

// load reads the persisted tables. It returns nil without error when no
// item table exists.
func (d diskStore) load() (*snapshot, error) {
	version, _, err := d.loadVersion()
	if err != nil {
		return nil, err
	}

	tableDir, err := d.tableDir(version)
	if err != nil {
		return nil, err
	}

	var items map[uint32]ItemDefinition
	found, err := readTable(tableDir, itemsFile, &items)
	if err != nil || !found {
		return nil, err
	}

	var seasons map[uint32]Season
	if _, err := readTable(tableDir, seasonsFile, &seasons); err != nil {
		return nil, err
	}

	var collectibles map[uint32]string
	if _, err := readTable(tableDir, collectiblesFile, &collectibles); err != nil {
		return nil, err
	}

	list := make([]ItemDefinition, 0, len(items))
	for id, item := range items {
		if item.ID == 0 {
			item.ID = id
		}
		list = append(list, item)
	}

	return newSnapshot(version, list, seasons, collectibles), nil
}

// tableDir resolves where the tables of v live.
func (d diskStore) tableDir(v VersionRecord) (string, error) {
	if v.Generation == "" {
		return d.dir, nil
	}
	if filepath.Base(v.Generation) != v.Generation || !strings.HasPrefix(v.Generation, generationPrefix) {
		return "", fmt.Errorf("%s: invalid generation %q", versionFile, v.Generation)
	}
	return filepath.Join(d.dir, v.Generation), nil
}

// loadVersion reads manifest-version.json.
func (d diskStore) loadVersion() (VersionRecord, bool, error) {
	var v VersionRecord
	data, err := os.ReadFile(filepath.Join(d.dir, versionFile))
	if errors.Is(err, fs.ErrNotExist) {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("read %s: %w", versionFile, err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("decode %s: %w", versionFile, err)
	}
	return v, true, nil
}

// save writes every table of s into a new generation directory, then
// points the version record at it and removes older generations.
func (d diskStore) save(s *snapshot) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	genDir, err := os.MkdirTemp(d.dir, generationPrefix)
	if err != nil {
		return fmt.Errorf("create generation dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(genDir)
		}
	}()

	if err := d.writeTable(genDir, itemsFile, s.items); err != nil {
		return err
	}
	if err := d.writeTable(genDir, seasonsFile, s.seasons); err != nil {
		return err
	}
	if err := d.writeTable(genDir, collectiblesFile, s.collectibles); err != nil {
		return err
	}

	record := s.version
	record.Generation = filepath.Base(genDir)
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s: %w", versionFile, err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(d.dir, versionFile), data); err != nil {
		return err
	}
	committed = true

	return d.prune(record.Generation)
}

// prune removes every generation except keep, and any flat-layout tables.
func (d diskStore) prune(keep string) error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("read cache dir: %w", err)
	}

	var errs []error
	for _, e := range entries {
		name := e.Name()
		switch {
		case e.IsDir() && strings.HasPrefix(name, generationPrefix) && name != keep:
			errs = append(errs, os.RemoveAll(filepath.Join(d.dir, name)))
		case !e.IsDir() && isTableFile(name):
			errs = append(errs, os.Remove(filepath.Join(d.dir, name)))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("prune old generations: %w", err)
	}
	return nil
}

func isTableFile(name string) bool {
	name = strings.TrimSuffix(name, zstdSuffix)
	return name == itemsFile || name == seasonsFile || name == collectiblesFile
}

// readTable decodes name from dir, preferring the compressed form when
// present.
func readTable(dir, name string, v any) (bool, error) {
	path := filepath.Join(dir, name)

	data, err := os.ReadFile(path + zstdSuffix)
	switch {
	case err == nil:
		data, err = zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return false, fmt.Errorf("decompress %s: %w", name, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		data, err = os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("read %s: %w", name, err)
		}
	default:
		return false, fmt.Errorf("read %s: %w", name, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

// writeTable writes one table into dir in the configured form.
func (d diskStore) writeTable(dir, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	path := filepath.Join(dir, name)
	if d.compress {
		data = zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/4))
		path += zstdSuffix
	}
	return fsutil.WriteFileAtomic(path, data)
}
