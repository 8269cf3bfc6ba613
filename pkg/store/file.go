package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"
)

// DefaultFilePath is used by the file driver when no path is configured.
const DefaultFilePath = ".trellis-session.json"

// FileStore keeps documents in a single local JSON file. The file is re-read on every operation so
// that multiple processes sharing it observe each other's writes, subject to the read-modify-write
// race documented in the package comment.
type FileStore struct {
	path string
	lock sync.Mutex
}

// NewFileStore returns a FileStore backed by the file at path. An empty path selects
// DefaultFilePath. The file is created on first Put.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultFilePath
	}
	return &FileStore{path: path}
}

// Path returns the location of the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) load() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]json.RawMessage), nil
		}
		return nil, err
	}
	documents := make(map[string]json.RawMessage)
	if len(data) == 0 {
		return documents, nil
	}
	if err := json.Unmarshal(data, &documents); err != nil {
		return nil, err
	}
	return documents, nil
}

func (s *FileStore) save(documents map[string]json.RawMessage) error {
	data, err := json.Marshal(documents)
	if err != nil {
		return err
	}
	// The file holds credential material.
	return os.WriteFile(s.path, data, 0600)
}

func (s *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	documents, err := s.load()
	if err != nil {
		return false, err
	}
	_, ok := documents[key]
	return ok, nil
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	documents, err := s.load()
	if err != nil {
		return nil, err
	}
	data, ok := documents[key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (s *FileStore) Put(ctx context.Context, key string, data []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	documents, err := s.load()
	if err != nil {
		return err
	}
	documents[key] = json.RawMessage(data)
	return s.save(documents)
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	documents, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := documents[key]; !ok {
		return nil
	}
	delete(documents, key)
	return s.save(documents)
}
