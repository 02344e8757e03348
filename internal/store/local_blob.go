package store

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalBlobStore is a BlobStore backed by the local filesystem. Each blob id
// maps to a file under dataDir, with the id's slash-separated segments used
// as subdirectories. Because object payloads are content-addressed by the
// engine, a Put for an id that already exists can skip the write entirely.
type LocalBlobStore struct {
	dataDir string
}

// NewLocalBlobStore creates a LocalBlobStore rooted at dataDir.
func NewLocalBlobStore(dataDir string) *LocalBlobStore {
	return &LocalBlobStore{dataDir: dataDir}
}

func (s *LocalBlobStore) blobPath(id string) (string, error) {
	if id == "" || strings.Contains(id, "..") {
		return "", fmt.Errorf("invalid blob id: %q", id)
	}
	return filepath.Join(s.dataDir, filepath.FromSlash(id)), nil
}

func (s *LocalBlobStore) Put(id string, data []byte) error {
	path, err := s.blobPath(id)
	if err != nil {
		return err
	}

	// Content-addressed ids never change payload, so an existing regular
	// file of the right size is already the blob we would write.
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() && info.Size() == int64(len(data)) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	// Write through a temp file and rename so readers never observe a
	// partially written payload.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".blob-*")
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
	return os.Rename(tmp.Name(), path)
}

func (s *LocalBlobStore) Get(id string) ([]byte, error) {
	path, err := s.blobPath(id)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (s *LocalBlobStore) Delete(id string) error {
	path, err := s.blobPath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *LocalBlobStore) List(prefix string) ([]string, error) {
	ids := make([]string, 0)

	err := filepath.WalkDir(s.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".blob-") {
			return nil
		}

		rel, err := filepath.Rel(s.dataDir, path)
		if err != nil {
			return err
		}
		id := filepath.ToSlash(rel)
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	sort.Strings(ids)
	return ids, nil
}
