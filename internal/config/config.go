// Package config loads runtime configuration for the patch-apply tool from
// environment variables, optionally overridden by a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// WhitespaceMode controls how hunk context/deletion lines are compared
// against the buffer being patched.
type WhitespaceMode string

const (
	WhitespaceExact     WhitespaceMode = "exact"
	WhitespaceIgnoreAll WhitespaceMode = "ignore-all"
)

// PatchConfig tunes the hunk-matching algorithm.
type PatchConfig struct {
	// Whitespace selects the line-equality rule used while locating a hunk.
	Whitespace WhitespaceMode
	// ContextTolerance is the maximum number of leading+trailing context
	// lines that may be trimmed when no exact-context match is found.
	ContextTolerance int
	// AllowImplicitDirectives accepts "*** Update File: ..." headers that
	// are immediately followed by a hunk, without a --- / +++ pair.
	AllowImplicitDirectives bool
}

// S3SSEConfig configures server-side encryption for objects written to S3.
type S3SSEConfig struct {
	// Mode is one of "", "sse-s3", "sse-kms".
	Mode     string
	KMSKeyID string
}

// S3Config configures the S3-backed store backend.
type S3Config struct {
	Bucket                string
	Region                string
	Endpoint              string
	Prefix                string
	AccessKey             string
	SecretKey             string
	UsePathStyle          bool
	TLSInsecureSkipVerify bool
	SSE                   S3SSEConfig
}

// ObsConfig configures the OpenTelemetry exporters used for tracing and
// metrics. With OTLP left empty, InitOTel returns an error and the CLI
// logs a warning and runs without tracing.
type ObsConfig struct {
	OTLP           string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// StoreBackend selects which Store capability implementation backs a run.
type StoreBackend string

const (
	StoreBackendLocal StoreBackend = "local"
	StoreBackendS3    StoreBackend = "s3"
)

// Config is the full set of runtime knobs for the apply_patch tool and CLI.
type Config struct {
	Workdir      string
	LogPath      string
	LogLevel     string
	Backend      StoreBackend
	Patch        PatchConfig
	S3           S3Config
	Obs          ObsConfig
	MaxFiles     int
	MaxTotalSize int
}

// Load reads configuration from the environment (optionally via a .env
// file in the current directory) and applies defaults for anything unset.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		Workdir:      strings.TrimSpace(os.Getenv("APPLYPATCH_WORKDIR")),
		LogPath:      strings.TrimSpace(os.Getenv("APPLYPATCH_LOG_PATH")),
		LogLevel:     strings.TrimSpace(os.Getenv("APPLYPATCH_LOG_LEVEL")),
		Backend:      StoreBackend(strings.TrimSpace(os.Getenv("APPLYPATCH_BACKEND"))),
		MaxFiles:     64,
		MaxTotalSize: 2_000_000,
	}
	if cfg.Workdir == "" {
		cfg.Workdir = "."
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Backend == "" {
		cfg.Backend = StoreBackendLocal
	}

	cfg.Patch.Whitespace = WhitespaceExact
	if v := strings.TrimSpace(os.Getenv("APPLYPATCH_WHITESPACE")); v != "" {
		switch strings.ToLower(v) {
		case "exact":
			cfg.Patch.Whitespace = WhitespaceExact
		case "ignore-all", "ignoreall":
			cfg.Patch.Whitespace = WhitespaceIgnoreAll
		default:
			return Config{}, fmt.Errorf("invalid APPLYPATCH_WHITESPACE %q: want exact or ignore-all", v)
		}
	}
	if v := strings.TrimSpace(os.Getenv("APPLYPATCH_CONTEXT_TOLERANCE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid APPLYPATCH_CONTEXT_TOLERANCE %q: want a non-negative integer", v)
		}
		cfg.Patch.ContextTolerance = n
	}
	cfg.Patch.AllowImplicitDirectives = boolEnv("APPLYPATCH_ALLOW_IMPLICIT", true)

	if v := strings.TrimSpace(os.Getenv("APPLYPATCH_MAX_FILES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxFiles = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("APPLYPATCH_MAX_TOTAL_BYTES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxTotalSize = n
		}
	}

	cfg.S3 = S3Config{
		Bucket:                strings.TrimSpace(os.Getenv("APPLYPATCH_S3_BUCKET")),
		Region:                strings.TrimSpace(os.Getenv("APPLYPATCH_S3_REGION")),
		Endpoint:              strings.TrimSpace(os.Getenv("APPLYPATCH_S3_ENDPOINT")),
		Prefix:                strings.TrimSpace(os.Getenv("APPLYPATCH_S3_PREFIX")),
		AccessKey:             strings.TrimSpace(os.Getenv("APPLYPATCH_S3_ACCESS_KEY")),
		SecretKey:             strings.TrimSpace(os.Getenv("APPLYPATCH_S3_SECRET_KEY")),
		UsePathStyle:          boolEnv("APPLYPATCH_S3_PATH_STYLE", false),
		TLSInsecureSkipVerify: boolEnv("APPLYPATCH_S3_TLS_INSECURE", false),
	}
	if v := strings.TrimSpace(os.Getenv("APPLYPATCH_S3_SSE_MODE")); v != "" {
		cfg.S3.SSE.Mode = v
	}
	cfg.S3.SSE.KMSKeyID = strings.TrimSpace(os.Getenv("APPLYPATCH_S3_SSE_KMS_KEY_ID"))

	if cfg.Backend == StoreBackendS3 && cfg.S3.Bucket == "" {
		return Config{}, fmt.Errorf("APPLYPATCH_BACKEND=s3 requires APPLYPATCH_S3_BUCKET")
	}

	cfg.Obs = ObsConfig{
		OTLP:           strings.TrimSpace(os.Getenv("APPLYPATCH_OTLP_ENDPOINT")),
		ServiceName:    firstNonEmpty(strings.TrimSpace(os.Getenv("APPLYPATCH_SERVICE_NAME")), "applypatch"),
		ServiceVersion: strings.TrimSpace(os.Getenv("APPLYPATCH_SERVICE_VERSION")),
		Environment:    firstNonEmpty(strings.TrimSpace(os.Getenv("APPLYPATCH_ENVIRONMENT")), "dev"),
	}

	return cfg, nil
}

func boolEnv(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
