package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// fileEnvelope is the on-disk shape of a cached value.
type fileEnvelope struct {
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	Value     []byte    `json:"value"`
}

// FileStore keeps one JSON file per key in a directory. Writes go through a
// temp file and rename so readers never see a partial entry.
type FileStore struct {
	fs  afero.Fs
	dir string
	now func() time.Time
}

// NewFileStore creates a store rooted at dir on the OS filesystem.
func NewFileStore(dir string) *FileStore {
	return newFileStoreFs(afero.NewOsFs(), dir)
}

func newFileStoreFs(fs afero.Fs, dir string) *FileStore {
	return &FileStore{fs: fs, dir: dir, now: time.Now}
}

func (c *FileStore) path(key string) string {
	return filepath.Join(c.dir, url.QueryEscape(key)+".json")
}

func (c *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, errors.New("empty key")
	}
	path := c.path(key)
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		_ = c.fs.Remove(path)
		return nil, false, nil
	}
	if !env.ExpiresAt.IsZero() && !c.now().Before(env.ExpiresAt) {
		_ = c.fs.Remove(path)
		return nil, false, nil
	}
	return env.Value, true, nil
}

func (c *FileStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("empty key")
	}
	env := fileEnvelope{Value: value}
	if ttl > 0 {
		env.ExpiresAt = c.now().Add(ttl)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := c.fs.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	path := c.path(key)
	tmp := path + ".tmp"
	if err := afero.WriteFile(c.fs, tmp, data, 0o644); err != nil {
		_ = c.fs.Remove(tmp)
		return err
	}
	return c.fs.Rename(tmp, path)
}

func (c *FileStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	entries, err := afero.ReadDir(c.fs, c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	var removed int
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		key, err := url.QueryUnescape(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil || !strings.HasPrefix(key, prefix) {
			continue
		}
		if err := c.fs.Remove(filepath.Join(c.dir, entry.Name())); err != nil {
			continue // best effort
		}
		removed++
	}
	return removed, nil
}
