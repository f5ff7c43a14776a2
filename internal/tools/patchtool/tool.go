package patchtool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"applypatch/internal/observability"
	"applypatch/internal/patch"
	"applypatch/internal/patchstore"
	"applypatch/internal/sandbox"
)

// Tool exposes the *** Begin Patch pipeline (internal/patch) as an
// LLM-callable tool, rooted at a sandboxed Workdir.
type Tool struct {
	Workdir          string
	MaxTotalBytes    int
	MaxFiles         int
	Whitespace       patch.WhitespaceMode
	ContextTolerance int
	AllowImplicit    bool
}

type callArgs struct {
	Patch   string   `json:"patch"`
	Patches []string `json:"patches"`
	DryRun  bool     `json:"dry_run"`
}

type callResult struct {
	OK       bool          `json:"ok"`
	DryRun   bool          `json:"dry_run,omitempty"`
	Added    []string      `json:"added,omitempty"`
	Modified []string      `json:"modified,omitempty"`
	Deleted  []string      `json:"deleted,omitempty"`
	Renamed  []moveSummary `json:"renamed,omitempty"`
	Copied   []moveSummary `json:"copied,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// New returns a Tool rooted at workdir with the teacher tool's own default
// resource limits.
func New(workdir string) *Tool {
	return &Tool{
		Workdir:       workdir,
		MaxTotalBytes: 512_000,
		MaxFiles:      64,
		Whitespace:    patch.WhitespaceExact,
		AllowImplicit: true,
	}
}

func (t *Tool) Name() string { return "apply_patch" }

func (t *Tool) JSONSchema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": "Apply one or more *** Begin Patch / *** End Patch bodies to files under the locked WORKDIR. Supports add, delete, update, rename, and copy directives.",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"patch":   map[string]any{"type": "string", "description": "Single patch body"},
				"patches": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Array of patch bodies"},
				"dry_run": map[string]any{"type": "boolean", "description": "Validate without modifying files"},
			},
		},
	}
}

func (t *Tool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args callArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}

	bodies := make([]string, 0, len(args.Patches)+1)
	bodies = append(bodies, args.Patches...)
	if args.Patch != "" {
		bodies = append(bodies, args.Patch)
	}
	if len(bodies) == 0 {
		return callResult{OK: false, Error: "no patch provided"}, nil
	}

	totalBytes := 0
	for _, b := range bodies {
		totalBytes += len(b)
		if totalBytes > t.MaxTotalBytes {
			return callResult{OK: false, Error: fmt.Sprintf("patch size exceeds limit (%d > %d)", totalBytes, t.MaxTotalBytes)}, nil
		}
	}

	base := sandbox.ResolveBaseDir(ctx, t.Workdir)
	store := patch.Store(patchstore.NewSandboxed(patchstore.NewLocal(base), base))
	if args.DryRun {
		store = patchstore.NewShadow(store)
	}

	cfg := patch.Config{Whitespace: t.Whitespace, ContextTolerance: t.ContextTolerance}
	result := &patch.Result{}

	for idx, body := range bodies {
		tokens, err := patch.Tokenize(body)
		if err != nil {
			return callResult{OK: false, Error: fmt.Sprintf("patch %d: %v", idx+1, err)}, nil
		}
		plan, err := patch.ParseWithOptions(tokens, t.AllowImplicit)
		if err != nil {
			return callResult{OK: false, Error: fmt.Sprintf("patch %d: %v", idx+1, err)}, nil
		}
		if err := patch.Validate(plan); err != nil {
			return callResult{OK: false, Error: fmt.Sprintf("patch %d: %v", idx+1, err)}, nil
		}
		if touched := touchedFileCount(plan); touched > t.MaxFiles {
			return callResult{OK: false, Error: fmt.Sprintf("too many files modified (%d > %d)", touched, t.MaxFiles)}, nil
		}

		sub, err := patch.Apply(ctx, store, plan, cfg)
		if err != nil {
			return callResult{OK: false, Error: fmt.Sprintf("patch %d: %v", idx+1, err)}, nil
		}
		mergeResult(result, sub)
	}

	logger := observability.LoggerWithTrace(ctx)
	logger.Debug().Int("added", len(result.Added)).Int("modified", len(result.Modified)).
		Int("deleted", len(result.Deleted)).Bool("dry_run", args.DryRun).Msg("apply_patch")

	return callResult{
		OK:       true,
		DryRun:   args.DryRun,
		Added:    sortedCopy(result.Added),
		Modified: sortedCopy(result.Modified),
		Deleted:  sortedCopy(result.Deleted),
		Renamed:  toMoveSummaries(result.Renamed),
		Copied:   toMoveSummaries(result.Copied),
	}, nil
}

func touchedFileCount(p *patch.Plan) int {
	set := make(map[string]struct{})
	for _, d := range p.Directives {
		if d.OldPath != "" {
			set[d.OldPath] = struct{}{}
		}
		if d.NewPath != "" {
			set[d.NewPath] = struct{}{}
		}
	}
	return len(set)
}

func mergeResult(dst, src *patch.Result) {
	dst.Added = append(dst.Added, src.Added...)
	dst.Modified = append(dst.Modified, src.Modified...)
	dst.Deleted = append(dst.Deleted, src.Deleted...)
	dst.Renamed = append(dst.Renamed, src.Renamed...)
	dst.Copied = append(dst.Copied, src.Copied...)
}

func toMoveSummaries(moves []patch.Move) []moveSummary {
	out := make([]moveSummary, 0, len(moves))
	for _, m := range moves {
		out = append(out, moveSummary{From: m.From, To: m.To})
	}
	return out
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
