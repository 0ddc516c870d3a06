package kvstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"caiyun/internal/capability"
	"caiyun/internal/host"
)

// ErrPersist is returned when a host primitive reports a failed write.
var ErrPersist = errors.New("host refused to persist value")

const rootDocument = "root.json"

// backend is the persistence target for one host family. It is chosen once
// when the store is built.
type backend interface {
	// init prepares backing storage and returns the raw bulk document.
	init(name string) (raw string, ok bool, err error)
	flush(name string, bulk []byte) error
	readDirect(key string) (string, bool)
	writeDirect(key, value string) error
	deleteDirect(key string) error
}

func selectBackend(desc capability.Descriptor, g host.Globals) backend {
	switch desc.Family() {
	case capability.FamilyFetch:
		if g.Prefs != nil {
			return prefsBackend{p: g.Prefs}
		}
	case capability.FamilyCallback, capability.FamilyCallbackAlt:
		if g.Store != nil {
			return persistentBackend{s: g.Store}
		}
	case capability.FamilyGeneral:
		if g.Require != nil && g.Require.FS != nil {
			return &fileBackend{fs: g.Require.FS, root: map[string]string{}}
		}
	}
	return &memoryBackend{direct: map[string]string{}}
}

type prefsBackend struct{ p host.Prefs }

func (b prefsBackend) init(name string) (string, bool, error) {
	raw, ok := b.p.ValueForKey(name)
	return raw, ok, nil
}

func (b prefsBackend) flush(name string, bulk []byte) error {
	if !b.p.SetValueForKey(string(bulk), name) {
		return fmt.Errorf("prefs %s: %w", name, ErrPersist)
	}
	return nil
}

func (b prefsBackend) readDirect(key string) (string, bool) { return b.p.ValueForKey(key) }

func (b prefsBackend) writeDirect(key, value string) error {
	if !b.p.SetValueForKey(value, key) {
		return fmt.Errorf("prefs %s: %w", key, ErrPersist)
	}
	return nil
}

func (b prefsBackend) deleteDirect(key string) error {
	if !b.p.RemoveValueForKey(key) {
		return fmt.Errorf("prefs remove %s: %w", key, ErrPersist)
	}
	return nil
}

type persistentBackend struct{ s host.PersistentStore }

func (b persistentBackend) init(name string) (string, bool, error) {
	raw, ok := b.s.Read(name)
	return raw, ok, nil
}

func (b persistentBackend) flush(name string, bulk []byte) error {
	if !b.s.Write(string(bulk), name) {
		return fmt.Errorf("store %s: %w", name, ErrPersist)
	}
	return nil
}

func (b persistentBackend) readDirect(key string) (string, bool) { return b.s.Read(key) }

func (b persistentBackend) writeDirect(key, value string) error {
	if !b.s.Write(value, key) {
		return fmt.Errorf("store %s: %w", key, ErrPersist)
	}
	return nil
}

func (b persistentBackend) deleteDirect(key string) error {
	if !b.s.Delete(key) {
		return fmt.Errorf("store delete %s: %w", key, ErrPersist)
	}
	return nil
}

// fileBackend keeps two JSON documents on the host filesystem:
// <name>.json for the bulk mapping and root.json for the direct namespace,
// which is held in memory and written alongside every flush.
type fileBackend struct {
	fs host.FS

	mu      sync.Mutex
	root    map[string]string
	rootErr error
}

func (b *fileBackend) init(name string) (string, bool, error) {
	for _, p := range []string{rootDocument, documentName(name)} {
		if b.fs.Exists(p) {
			continue
		}
		if err := b.fs.CreateExclusive(p, []byte("{}")); err != nil && !b.fs.Exists(p) {
			return "", false, fmt.Errorf("create %s: %w", p, err)
		}
	}

	b.mu.Lock()
	b.root = map[string]string{}
	if data, err := b.fs.ReadFile(rootDocument); err == nil {
		if err := json.Unmarshal(data, &b.root); err != nil {
			b.root = map[string]string{}
			b.rootErr = err
		}
	}
	b.mu.Unlock()

	data, err := b.fs.ReadFile(documentName(name))
	if err != nil {
		return "", false, nil
	}
	return string(data), true, nil
}

func (b *fileBackend) flush(name string, bulk []byte) error {
	b.mu.Lock()
	root, err := json.MarshalIndent(b.root, "", "  ")
	b.mu.Unlock()
	if err != nil {
		return err
	}
	if err := b.fs.WriteFile(documentName(name), bulk); err != nil {
		return err
	}
	return b.fs.WriteFile(rootDocument, root)
}

func (b *fileBackend) readDirect(key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.root[key]
	return v, ok
}

func (b *fileBackend) writeDirect(key, value string) error {
	b.mu.Lock()
	b.root[key] = value
	b.mu.Unlock()
	return nil
}

func (b *fileBackend) deleteDirect(key string) error {
	b.mu.Lock()
	delete(b.root, key)
	b.mu.Unlock()
	return nil
}

func documentName(name string) string { return name + ".json" }

// memoryBackend serves hosts without any persistence primitive. Values
// live for the process only.
type memoryBackend struct {
	mu     sync.Mutex
	direct map[string]string
}

func (b *memoryBackend) init(string) (string, bool, error) {
	b.mu.Lock()
	b.direct = map[string]string{}
	b.mu.Unlock()
	return "", false, nil
}

func (b *memoryBackend) flush(string, []byte) error { return nil }

func (b *memoryBackend) readDirect(key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.direct[key]
	return v, ok
}

func (b *memoryBackend) writeDirect(key, value string) error {
	b.mu.Lock()
	b.direct[key] = value
	b.mu.Unlock()
	return nil
}

func (b *memoryBackend) deleteDirect(key string) error {
	b.mu.Lock()
	delete(b.direct, key)
	b.mu.Unlock()
	return nil
}
