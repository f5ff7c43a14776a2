// applypatch reads a *** Begin Patch / *** End Patch document from a file
// or stdin, tokenizes, parses, validates and applies it against the
// configured Store (by default the local directory named by
// APPLYPATCH_WORKDIR), then prints a JSON summary of the paths touched.
//
// Usage:
//
//	applypatch [flags] < patch.txt
//
// Flags:
//
//	-patch-file string
//	    Read the patch body from this file instead of stdin.
//	-dry-run
//	    Validate and compute the result without writing to the store.
//	-whitespace string
//	    "exact" or "ignore-all" (overrides APPLYPATCH_WHITESPACE).
//	-context-tolerance int
//	    Max leading+trailing context lines trimmable on a mismatch
//	    (overrides APPLYPATCH_CONTEXT_TOLERANCE).
//	-debug
//	    Log at debug level, including the patch body before applying it.
//	    The body is wrapped as {"patch": ...} and passed through
//	    RedactJSON, which redacts values by key name only, so the body
//	    text itself is logged unchanged.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"applypatch/internal/config"
	"applypatch/internal/observability"
	"applypatch/internal/patch"
	"applypatch/internal/patchstore"
)

func main() {
	patchFile := flag.String("patch-file", "", "read the patch body from this file instead of stdin")
	dryRun := flag.Bool("dry-run", false, "validate and compute the result without writing to the store")
	whitespace := flag.String("whitespace", "", `"exact" or "ignore-all", overrides APPLYPATCH_WHITESPACE`)
	contextTolerance := flag.Int("context-tolerance", -1, "max leading+trailing context lines trimmable on a mismatch")
	debug := flag.Bool("debug", false, "log at debug level, including the patch body before applying it")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if *whitespace != "" {
		switch strings.ToLower(*whitespace) {
		case "exact":
			cfg.Patch.Whitespace = config.WhitespaceExact
		case "ignore-all", "ignoreall":
			cfg.Patch.Whitespace = config.WhitespaceIgnoreAll
		default:
			fmt.Fprintf(os.Stderr, "error: invalid -whitespace %q: want exact or ignore-all\n", *whitespace)
			os.Exit(1)
		}
	}
	if *contextTolerance >= 0 {
		cfg.Patch.ContextTolerance = *contextTolerance
	}

	logLevel := cfg.LogLevel
	if *debug {
		logLevel = "debug"
	}
	observability.InitLogger(cfg.LogPath, logLevel)

	ctx := context.Background()
	shutdown, err := observability.InitOTel(ctx, cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without tracing")
	} else {
		defer func() { _ = shutdown(ctx) }()
	}

	runID := uuid.New().String()
	logger := log.With().Str("run_id", runID).Logger()

	raw, err := readPatchBody(*patchFile)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read patch body")
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	if *debug {
		body, _ := json.Marshal(map[string]string{"patch": raw})
		logger.Debug().RawJSON("body", observability.RedactJSON(body)).Msg("patch body")
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize store")
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	if *dryRun {
		store = patchstore.NewShadow(store)
	}

	result, err := runPatch(ctx, store, raw, cfg)
	if err != nil {
		logger.Error().Err(err).Str("run_id", runID).Msg("apply failed")
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}

func readPatchBody(path string) (string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read patch file: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func runPatch(ctx context.Context, store patch.Store, raw string, cfg config.Config) (*patch.Result, error) {
	tokens, err := patch.Tokenize(raw)
	if err != nil {
		return nil, err
	}
	plan, err := patch.ParseWithOptions(tokens, cfg.Patch.AllowImplicitDirectives)
	if err != nil {
		return nil, err
	}
	if err := patch.Validate(plan); err != nil {
		return nil, err
	}

	applyCfg := patch.Config{ContextTolerance: cfg.Patch.ContextTolerance}
	switch cfg.Patch.Whitespace {
	case config.WhitespaceIgnoreAll:
		applyCfg.Whitespace = patch.WhitespaceIgnoreAll
	default:
		applyCfg.Whitespace = patch.WhitespaceExact
	}

	return patch.Apply(ctx, store, plan, applyCfg)
}

func buildStore(ctx context.Context, cfg config.Config) (patch.Store, error) {
	var backend patch.Store
	switch cfg.Backend {
	case config.StoreBackendS3:
		s3store, err := patchstore.NewS3(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		backend = s3store
	default:
		backend = patchstore.NewLocal(cfg.Workdir)
	}
	if cfg.Backend == config.StoreBackendLocal {
		return patchstore.NewSandboxed(backend, cfg.Workdir), nil
	}
	return backend, nil
}
