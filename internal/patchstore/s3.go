package patchstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"applypatch/internal/config"
	"applypatch/internal/objectstore"
	"applypatch/internal/observability"
	"applypatch/internal/patch"
	"applypatch/internal/version"
)

// S3 adapts an objectstore.ObjectStore to patch.Store. File modes have no
// POSIX meaning on an object store, so GetPermissions reports "unsupported"
// (ok=false) and SetPermissions is a documented no-op rather than an error,
// letting Rename/Copy directives with a new_mode silently skip mode
// application the same way Apply already skips a non-octal mode string.
type S3 struct {
	store objectstore.ObjectStore
}

// NewS3 builds an S3-backed Store from configuration, reusing the
// teacher's aws-sdk-go-v2 wiring (region, static credentials, custom
// endpoint/path-style for MinIO, TLS overrides, SSE).
func NewS3(ctx context.Context, cfg config.S3Config) (*S3, error) {
	httpClient := observability.WithHeaders(
		observability.NewHTTPClient(nil),
		map[string]string{"User-Agent": "applypatch/" + version.Version},
	)
	store, err := objectstore.NewS3Store(ctx, cfg, objectstore.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("init s3 store: %w", err)
	}
	return NewS3WithObjectStore(store), nil
}

// NewS3WithObjectStore adapts any objectstore.ObjectStore to patch.Store.
// Production callers use NewS3; tests use it directly with
// objectstore.NewMemoryStore to exercise this adapter without a real
// bucket.
func NewS3WithObjectStore(store objectstore.ObjectStore) *S3 {
	return &S3{store: store}
}

func (s *S3) Exists(ctx context.Context, path string) (bool, error) {
	ok, err := s.store.Exists(ctx, path)
	if err != nil {
		return false, ioFailure(path, err)
	}
	return ok, nil
}

func (s *S3) Read(ctx context.Context, path string) ([]byte, error) {
	rc, _, err := s.store.Get(ctx, path)
	if err != nil {
		return nil, ioFailure(path, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, ioFailure(path, err)
	}
	return data, nil
}

func (s *S3) Write(ctx context.Context, path string, data []byte) error {
	_, err := s.store.Put(ctx, path, bytes.NewReader(data), objectstore.PutOptions{})
	if err != nil {
		return ioFailure(path, err)
	}
	return nil
}

func (s *S3) Remove(ctx context.Context, path string) error {
	if err := s.store.Delete(ctx, path); err != nil {
		return ioFailure(path, err)
	}
	return nil
}

// Move copies to dest and deletes source; S3 has no atomic rename.
func (s *S3) Move(ctx context.Context, source, dest string) error {
	if err := s.store.Copy(ctx, source, dest); err != nil {
		return ioFailure(dest, err)
	}
	if err := s.store.Delete(ctx, source); err != nil {
		return ioFailure(source, err)
	}
	return nil
}

func (s *S3) GetPermissions(_ context.Context, _ string) (uint32, bool, error) {
	return 0, false, nil
}

func (s *S3) SetPermissions(_ context.Context, _ string, _ uint32) error {
	return nil
}

func ioFailure(path string, err error) error {
	if errors.Is(err, objectstore.ErrNotFound) {
		return &patch.IOError{Message: "object not found", Path: path, Cause: err}
	}
	return &patch.IOError{Message: "s3 operation failed", Path: path, Cause: err}
}

var _ patch.Store = (*S3)(nil)
