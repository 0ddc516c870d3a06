package bindings

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "caiyun/pkg/logx"
)

// FileStore is the persistent store of the callback-style hosts: a single
// JSON object of string values, rewritten as a whole snapshot on every
// change.
type FileStore struct {
	path string
	log  logx.Logger

	mu     sync.Mutex
	values map[string]string
}

// OpenFileStore loads path if it exists. An unreadable snapshot is logged
// and replaced on the next write.
func OpenFileStore(path string, log logx.Logger) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("file store path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &FileStore{path: path, log: log, values: map[string]string{}}
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(b, &s.values); err != nil || s.values == nil {
			log.Warn("file store snapshot unreadable, starting empty", logx.String("path", path), logx.Err(err))
			s.values = map[string]string{}
		}
	}
	return s, nil
}

func (s *FileStore) Read(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *FileStore) Write(value, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.values[key]
	s.values[key] = value
	if err := s.snapshotLocked(); err != nil {
		if had {
			s.values[key] = prev
		} else {
			delete(s.values, key)
		}
		s.log.Warn("file store write failed", logx.String("key", key), logx.Err(err))
		return false
	}
	return true
}

func (s *FileStore) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.values[key]
	if !had {
		return true
	}
	delete(s.values, key)
	if err := s.snapshotLocked(); err != nil {
		s.values[key] = prev
		s.log.Warn("file store delete failed", logx.String("key", key), logx.Err(err))
		return false
	}
	return true
}

// snapshotLocked writes to a temp file and renames it over the snapshot so
// readers never see a partial document.
func (s *FileStore) snapshotLocked() error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.values); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
