package patchstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"applypatch/internal/patch"
)

// Local is a patch.Store backed directly by the local filesystem, rooted
// at Root. It mirrors the teacher tool's own os.ReadFile/os.WriteFile/
// os.MkdirAll/os.Remove/os.Chmod usage, generalized behind the Store
// capability. GetPermissions and SetPermissions cover the nine rwx bits
// only; setuid, setgid and sticky bits are neither reported nor applied.
type Local struct {
	Root string
}

// NewLocal returns a Local store rooted at root.
func NewLocal(root string) *Local {
	return &Local{Root: root}
}

func (l *Local) resolve(path string) string {
	return filepath.Join(l.Root, filepath.FromSlash(path))
}

func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(l.resolve(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (l *Local) Read(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(l.resolve(path))
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (l *Local) Write(_ context.Context, path string, data []byte) error {
	full := l.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create parent directories for %s: %w", path, err)
	}
	mode := os.FileMode(0o644)
	if info, err := os.Stat(full); err == nil {
		mode = info.Mode().Perm()
	}
	return os.WriteFile(full, data, mode)
}

func (l *Local) Remove(_ context.Context, path string) error {
	err := os.Remove(l.resolve(path))
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (l *Local) Move(_ context.Context, source, dest string) error {
	full := l.resolve(dest)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create parent directories for %s: %w", dest, err)
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.Rename(l.resolve(source), full)
}

func (l *Local) GetPermissions(_ context.Context, path string) (uint32, bool, error) {
	info, err := os.Stat(l.resolve(path))
	if err != nil {
		return 0, false, err
	}
	return uint32(info.Mode().Perm()), true, nil
}

func (l *Local) SetPermissions(_ context.Context, path string, mode uint32) error {
	return os.Chmod(l.resolve(path), os.FileMode(mode))
}

var _ patch.Store = (*Local)(nil)
