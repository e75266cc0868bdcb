package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// diskTier stores one JSON file per key under a directory. Files carry the
// entry value, created-at timestamp, and debug metadata so operators can
// inspect what was cached without extra tooling.
type diskTier struct {
	dir string
}

func newDiskTier(dir string) (*diskTier, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	return &diskTier{dir: dir}, nil
}

func (d *diskTier) path(key string) string {
	return filepath.Join(d.dir, key+".json")
}

func (d *diskTier) read(key string) (*Entry, error) {
	data, err := os.ReadFile(d.path(key))
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// A corrupt file is treated as a miss and removed so it cannot
		// poison future lookups.
		_ = os.Remove(d.path(key))
		return nil, fmt.Errorf("decode cache file: %w", err)
	}
	return &entry, nil
}

// write lands the file atomically via rename so a concurrent read never
// observes a partial entry.
func (d *diskTier) write(key string, entry *Entry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(d.dir, key+".tmp-")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), d.path(key))
}

func (d *diskTier) remove(key string) error {
	err := os.Remove(d.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (d *diskTier) purge() error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(d.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
