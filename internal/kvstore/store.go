// Package kvstore is a per-script key/value store with two namespaces.
//
// Cached keys live in one bulk mapping that is serialized as a single JSON
// document under the store name and flushed in full after every mutation.
// Direct keys go straight to the host's own persistent namespace and never
// appear in the bulk mapping. Values written to the cached namespace are
// normalized through JSON so a read returns the same shape before and after
// a reload.
package kvstore

import (
	"encoding/json"
	"fmt"
	"sync"

	"caiyun/internal/capability"
	"caiyun/internal/host"
	logx "caiyun/pkg/logx"
)

// Store is safe for concurrent use.
type Store struct {
	name string
	be   backend
	log  logx.Logger

	mu    sync.Mutex
	cache map[string]any
}

// New binds a store to the backend of desc's family. Call Initialize before
// use; Open does both.
func New(name string, desc capability.Descriptor, g host.Globals, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		name:  name,
		be:    selectBackend(desc, g),
		log:   log.With(logx.String("store", name)),
		cache: map[string]any{},
	}
}

// Open builds and initializes a store.
func Open(name string, desc capability.Descriptor, g host.Globals, log logx.Logger) (*Store, error) {
	s := New(name, desc, g, log)
	if err := s.Initialize(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Name() string { return s.name }

// Initialize loads the bulk document. A missing or malformed document gives
// an empty mapping; only failure to create backing storage is an error.
func (s *Store) Initialize() error {
	raw, ok, err := s.be.init(s.name)
	if err != nil {
		return fmt.Errorf("kvstore %s: %w", s.name, err)
	}
	if fb, isFile := s.be.(*fileBackend); isFile && fb.rootErr != nil {
		s.log.Warn("root document unreadable, starting empty", logx.Err(fb.rootErr))
	}

	cache := map[string]any{}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &cache); err != nil || cache == nil {
			s.log.Warn("bulk document unreadable, starting empty", logx.Err(err))
			cache = map[string]any{}
		}
	}

	s.mu.Lock()
	s.cache = cache
	s.mu.Unlock()
	return nil
}

// WriteCached stores value under key in the bulk mapping and flushes.
func (s *Store) WriteCached(key string, value any) error {
	norm, err := normalize(value)
	if err != nil {
		return fmt.Errorf("kvstore %s: encode %q: %w", s.name, key, err)
	}
	s.log.Debug("set", logx.String("key", key))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = norm
	return s.flushLocked()
}

// ReadCached returns the value for key and whether it was present.
func (s *Store) ReadCached(key string) (any, bool) {
	s.log.Debug("read", logx.String("key", key))
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache[key]
	return v, ok
}

// DeleteCached removes key and flushes. Removing an absent key still
// flushes.
func (s *Store) DeleteCached(key string) error {
	s.log.Debug("delete", logx.String("key", key))
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, key)
	return s.flushLocked()
}

// WriteDirect stores a string in the host namespace, then flushes the bulk
// mapping.
func (s *Store) WriteDirect(key, value string) error {
	s.log.Debug("set", logx.String("key", Sentinel+key))
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.be.writeDirect(key, value); err != nil {
		return fmt.Errorf("kvstore %s: %w", s.name, err)
	}
	return s.flushLocked()
}

func (s *Store) ReadDirect(key string) (string, bool) {
	s.log.Debug("read", logx.String("key", Sentinel+key))
	return s.be.readDirect(key)
}

func (s *Store) DeleteDirect(key string) error {
	s.log.Debug("delete", logx.String("key", Sentinel+key))
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.be.deleteDirect(key); err != nil {
		return fmt.Errorf("kvstore %s: %w", s.name, err)
	}
	return s.flushLocked()
}

// Write routes by key namespace. A direct key takes strings as-is and any
// other value as its JSON text.
func (s *Store) Write(key Key, value any) error {
	if !key.IsDirect() {
		return s.WriteCached(key.Name(), value)
	}
	str, ok := value.(string)
	if !ok {
		b, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("kvstore %s: encode %q: %w", s.name, key.String(), err)
		}
		str = string(b)
	}
	return s.WriteDirect(key.Name(), str)
}

func (s *Store) Read(key Key) (any, bool) {
	if key.IsDirect() {
		v, ok := s.ReadDirect(key.Name())
		if !ok {
			return nil, false
		}
		return v, true
	}
	return s.ReadCached(key.Name())
}

func (s *Store) Delete(key Key) error {
	if key.IsDirect() {
		return s.DeleteDirect(key.Name())
	}
	return s.DeleteCached(key.Name())
}

// ReadInto decodes the value under key into out. Direct values are parsed
// as JSON text. It reports false when the key is absent.
func (s *Store) ReadInto(key Key, out any) (bool, error) {
	var raw []byte
	if key.IsDirect() {
		v, ok := s.ReadDirect(key.Name())
		if !ok {
			return false, nil
		}
		raw = []byte(v)
	} else {
		v, ok := s.ReadCached(key.Name())
		if !ok {
			return false, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return true, err
		}
		raw = b
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("kvstore %s: decode %q: %w", s.name, key.String(), err)
	}
	return true, nil
}

// Snapshot returns a deep copy of the bulk mapping.
func (s *Store) Snapshot() map[string]any {
	s.mu.Lock()
	b, err := json.Marshal(s.cache)
	s.mu.Unlock()
	out := map[string]any{}
	if err == nil {
		_ = json.Unmarshal(b, &out)
	}
	return out
}

func (s *Store) flushLocked() error {
	data, err := json.MarshalIndent(s.cache, "", "  ")
	if err != nil {
		return fmt.Errorf("kvstore %s: encode: %w", s.name, err)
	}
	if err := s.be.flush(s.name, data); err != nil {
		return fmt.Errorf("kvstore %s: flush: %w", s.name, err)
	}
	return nil
}

func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
