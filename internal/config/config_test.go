package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Patch.Whitespace != WhitespaceExact {
		t.Fatalf("expected default whitespace mode exact, got %q", cfg.Patch.Whitespace)
	}
	if cfg.Patch.ContextTolerance != 0 {
		t.Fatalf("expected default context tolerance 0, got %d", cfg.Patch.ContextTolerance)
	}
	if cfg.Backend != StoreBackendLocal {
		t.Fatalf("expected default backend local, got %q", cfg.Backend)
	}
	if !cfg.Patch.AllowImplicitDirectives {
		t.Fatalf("expected implicit directives allowed by default")
	}
}

func TestLoadRejectsInvalidWhitespaceMode(t *testing.T) {
	t.Setenv("APPLYPATCH_WHITESPACE", "fuzzy")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid whitespace mode")
	}
}

func TestLoadRejectsNegativeTolerance(t *testing.T) {
	t.Setenv("APPLYPATCH_CONTEXT_TOLERANCE", "-1")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for negative context tolerance")
	}
}

func TestLoadRequiresBucketForS3Backend(t *testing.T) {
	t.Setenv("APPLYPATCH_BACKEND", "s3")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error when s3 backend configured without a bucket")
	}
}
