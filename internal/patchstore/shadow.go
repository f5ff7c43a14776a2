package patchstore

import (
	"context"
	"sync"

	"applypatch/internal/patch"
)

// Shadow layers an in-memory overlay over a base Store so a plan can be
// applied for preview (dry-run) purposes: every write lands in the
// overlay, every read prefers the overlay and falls through to base, and
// the base store is never mutated. A path Removed (or moved away from) in
// the overlay is tombstoned so it reads back as absent instead of falling
// through to a base copy that still exists.
type Shadow struct {
	mu         sync.RWMutex
	base       patch.Store
	overlay    *Memory
	tombstoned map[string]struct{}
}

// NewShadow wraps base with a fresh overlay.
func NewShadow(base patch.Store) *Shadow {
	return &Shadow{base: base, overlay: NewMemory(), tombstoned: make(map[string]struct{})}
}

func (s *Shadow) isTombstoned(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tombstoned[path]
	return ok
}

func (s *Shadow) tombstone(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tombstoned[path] = struct{}{}
}

func (s *Shadow) clearTombstone(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tombstoned, path)
}

func (s *Shadow) Exists(ctx context.Context, path string) (bool, error) {
	if ok, err := s.overlay.Exists(ctx, path); err == nil && ok {
		return true, nil
	}
	if s.isTombstoned(path) {
		return false, nil
	}
	return s.base.Exists(ctx, path)
}

func (s *Shadow) Read(ctx context.Context, path string) ([]byte, error) {
	if ok, _ := s.overlay.Exists(ctx, path); ok {
		return s.overlay.Read(ctx, path)
	}
	if s.isTombstoned(path) {
		return nil, &patch.IOError{Message: "file not found", Path: path}
	}
	return s.base.Read(ctx, path)
}

func (s *Shadow) Write(ctx context.Context, path string, data []byte) error {
	s.clearTombstone(path)
	return s.overlay.Write(ctx, path, data)
}

func (s *Shadow) Remove(ctx context.Context, path string) error {
	s.tombstone(path)
	return s.overlay.Remove(ctx, path)
}

func (s *Shadow) Move(ctx context.Context, source, dest string) error {
	data, err := s.Read(ctx, source)
	if err != nil {
		return err
	}
	mode, hasMode, err := s.GetPermissions(ctx, source)
	if err != nil {
		return err
	}
	if err := s.overlay.Write(ctx, dest, data); err != nil {
		return err
	}
	s.clearTombstone(dest)
	if hasMode {
		if err := s.overlay.SetPermissions(ctx, dest, mode); err != nil {
			return err
		}
	}
	s.tombstone(source)
	return s.overlay.Remove(ctx, source)
}

func (s *Shadow) GetPermissions(ctx context.Context, path string) (uint32, bool, error) {
	if ok, _ := s.overlay.Exists(ctx, path); ok {
		return s.overlay.GetPermissions(ctx, path)
	}
	if s.isTombstoned(path) {
		return 0, false, nil
	}
	return s.base.GetPermissions(ctx, path)
}

func (s *Shadow) SetPermissions(ctx context.Context, path string, mode uint32) error {
	s.clearTombstone(path)
	return s.overlay.SetPermissions(ctx, path, mode)
}

var _ patch.Store = (*Shadow)(nil)
