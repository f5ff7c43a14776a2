package patchstore

import (
	"context"

	"applypatch/internal/patch"
	"applypatch/internal/sandbox"
)

// Sandboxed wraps any patch.Store and rejects paths that would escape
// Root, using the same containment check the teacher's patchtool CLI
// applies to its own arguments (sandbox.SanitizeArg, itself built on
// os.OpenRoot).
type Sandboxed struct {
	Inner patch.Store
	Root  string
}

// NewSandboxed returns a Store that enforces root on every call before
// delegating to inner.
func NewSandboxed(inner patch.Store, root string) *Sandboxed {
	return &Sandboxed{Inner: inner, Root: root}
}

func (s *Sandboxed) contain(path string) (string, error) {
	clean, err := sandbox.SanitizeArg(s.Root, path)
	if err != nil {
		return "", &patch.IOError{Message: "path resolves outside the sandbox root", Path: path, Cause: err}
	}
	return clean, nil
}

func (s *Sandboxed) Exists(ctx context.Context, path string) (bool, error) {
	clean, err := s.contain(path)
	if err != nil {
		return false, err
	}
	return s.Inner.Exists(ctx, clean)
}

func (s *Sandboxed) Read(ctx context.Context, path string) ([]byte, error) {
	clean, err := s.contain(path)
	if err != nil {
		return nil, err
	}
	return s.Inner.Read(ctx, clean)
}

func (s *Sandboxed) Write(ctx context.Context, path string, data []byte) error {
	clean, err := s.contain(path)
	if err != nil {
		return err
	}
	return s.Inner.Write(ctx, clean, data)
}

func (s *Sandboxed) Remove(ctx context.Context, path string) error {
	clean, err := s.contain(path)
	if err != nil {
		return err
	}
	return s.Inner.Remove(ctx, clean)
}

func (s *Sandboxed) Move(ctx context.Context, source, dest string) error {
	cleanSrc, err := s.contain(source)
	if err != nil {
		return err
	}
	cleanDest, err := s.contain(dest)
	if err != nil {
		return err
	}
	return s.Inner.Move(ctx, cleanSrc, cleanDest)
}

func (s *Sandboxed) GetPermissions(ctx context.Context, path string) (uint32, bool, error) {
	clean, err := s.contain(path)
	if err != nil {
		return 0, false, err
	}
	return s.Inner.GetPermissions(ctx, clean)
}

func (s *Sandboxed) SetPermissions(ctx context.Context, path string, mode uint32) error {
	clean, err := s.contain(path)
	if err != nil {
		return err
	}
	return s.Inner.SetPermissions(ctx, clean, mode)
}

var _ patch.Store = (*Sandboxed)(nil)
