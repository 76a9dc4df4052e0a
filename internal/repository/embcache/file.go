package embcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore persists KB entry vectors as a JSON object {"<id>": [floats] | []}.
// Writes go through a temp file and rename, so concurrent savers never leave a torn file.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed vector store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the cache file location.
func (s *FileStore) Path() string { return s.path }

// Load reads the persisted vectors. A missing file yields an empty map and no error;
// an unreadable or corrupt file yields an empty map and the cause.
func (s *FileStore) Load(_ context.Context) (map[string][]float32, error) {
	data, err := os.ReadFile(filepath.Clean(s.path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string][]float32{}, nil
		}
		return map[string][]float32{}, fmt.Errorf("read embedding cache %s: %w", s.path, err)
	}

	var raw map[string][]float32
	if err := json.Unmarshal(data, &raw); err != nil {
		return map[string][]float32{}, fmt.Errorf("parse embedding cache %s: %w", s.path, err)
	}

	out := make(map[string][]float32, len(raw))
	for id, vec := range raw {
		if vec == nil {
			vec = []float32{}
		}
		out[id] = vec
	}
	return out, nil
}

// Save writes all vectors, replacing the previous file atomically.
func (s *FileStore) Save(_ context.Context, vectors map[string][]float32) error {
	out := make(map[string][]float32, len(vectors))
	for id, vec := range vectors {
		if vec == nil {
			vec = []float32{} // failure placeholder is persisted as []
		}
		out[id] = vec
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode embedding cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create cache dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".embeddings-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }() // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace embedding cache %s: %w", s.path, err)
	}
	return nil
}
