package bindings

import (
	"os"
	"path/filepath"
)

// OSFS is the general-purpose host's filesystem module rooted at Dir.
// Relative paths resolve against Dir.
type OSFS struct {
	Dir string
}

func (f OSFS) resolve(path string) string {
	if filepath.IsAbs(path) || f.Dir == "" {
		return path
	}
	return filepath.Join(f.Dir, path)
}

func (f OSFS) Exists(path string) bool {
	_, err := os.Stat(f.resolve(path))
	return err == nil
}

func (f OSFS) ReadFile(path string) ([]byte, error) { return os.ReadFile(f.resolve(path)) }

func (f OSFS) WriteFile(path string, data []byte) error {
	p := f.resolve(path)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

func (f OSFS) CreateExclusive(path string, data []byte) error {
	p := f.resolve(path)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	fh, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, werr := fh.Write(data)
	if cerr := fh.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(p)
		return werr
	}
	return nil
}
