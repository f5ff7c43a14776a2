package patch

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// WhitespaceMode governs how hunk context/deletion lines are compared
// against the buffer being patched.
type WhitespaceMode int

const (
	WhitespaceExact WhitespaceMode = iota
	WhitespaceIgnoreAll
)

// Config tunes the hunk-matching algorithm.
type Config struct {
	Whitespace       WhitespaceMode
	ContextTolerance int
}

// Move records a Rename or Copy directive's source and destination.
type Move struct {
	From string
	To   string
}

// Result summarizes the paths touched by a successful Apply.
type Result struct {
	Added    []string
	Modified []string
	Deleted  []string
	Renamed  []Move
	Copied   []Move
}

var errNoMatch = errors.New("patch: hunk did not match at this trim variant")

// Apply consumes a validated Plan and issues Store mutations in plan
// order. Each directive is independent; a failure mid-plan leaves the
// store in the state reached by the last successfully completed
// directive (§7).
func Apply(ctx context.Context, store Store, p *Plan, cfg Config) (*Result, error) {
	res := &Result{}
	for i := range p.Directives {
		d := &p.Directives[i]
		var err error
		switch d.Op {
		case OpAdd:
			err = applyAdd(ctx, store, d, res)
		case OpDelete:
			err = applyDelete(ctx, store, d, res, cfg)
		case OpModify:
			err = applyModify(ctx, store, d, res, cfg)
		case OpRename:
			err = applyRename(ctx, store, d, res, cfg)
		case OpCopy:
			err = applyCopy(ctx, store, d, res, cfg)
		default:
			err = validationErr(pathOf(d), "unknown directive operation")
		}
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// buffer is a file's in-memory representation during hunk application.
type buffer struct {
	lines           []string
	trailingNewline bool
}

func loadBuffer(data []byte) (buffer, error) {
	if !utf8.Valid(data) {
		return buffer{}, errors.New("content is not valid UTF-8")
	}
	s := string(data)
	if s == "" {
		return buffer{}, nil
	}
	trailing := strings.HasSuffix(s, "\n")
	body := s
	if trailing {
		body = s[:len(s)-1]
	}
	return buffer{lines: strings.Split(body, "\n"), trailingNewline: trailing}, nil
}

func (b buffer) encode() []byte {
	s := strings.Join(b.lines, "\n")
	if b.trailingNewline {
		s += "\n"
	}
	return []byte(s)
}

func readBuffer(ctx context.Context, store Store, path string) (buffer, error) {
	data, err := store.Read(ctx, path)
	if err != nil {
		return buffer{}, ioErr(path, err, "reading")
	}
	buf, err := loadBuffer(data)
	if err != nil {
		return buffer{}, ioErr(path, err, "decoding")
	}
	return buf, nil
}

func writeBuffer(ctx context.Context, store Store, path string, buf buffer) error {
	if err := store.Write(ctx, path, buf.encode()); err != nil {
		return ioErr(path, err, "writing")
	}
	return nil
}

func applyAdd(ctx context.Context, store Store, d *Directive, res *Result) error {
	exists, err := store.Exists(ctx, d.NewPath)
	if err != nil {
		return ioErr(d.NewPath, err, "checking existence")
	}
	if exists {
		return validationErr(d.NewPath, "Add target already exists")
	}

	var lines []string
	trailing := true
	for _, h := range d.Hunks {
		for _, line := range h.Lines {
			switch line.Kind {
			case LineAddition:
				lines = append(lines, line.Text)
			case LineNoNewline:
				trailing = false
			default:
				return validationErr(d.NewPath, "Add directive hunk contains non-addition content")
			}
		}
	}

	if err := writeBuffer(ctx, store, d.NewPath, buffer{lines: lines, trailingNewline: trailing}); err != nil {
		return err
	}
	if mode, ok := parseFileMode(d.Metadata.NewMode); ok {
		if err := store.SetPermissions(ctx, d.NewPath, mode); err != nil {
			return ioErr(d.NewPath, err, "setting mode")
		}
	}
	res.Added = append(res.Added, d.NewPath)
	return nil
}

func applyDelete(ctx context.Context, store Store, d *Directive, res *Result, cfg Config) error {
	exists, err := store.Exists(ctx, d.OldPath)
	if err != nil {
		return ioErr(d.OldPath, err, "checking existence")
	}
	if !exists {
		return validationErr(d.OldPath, "Delete target does not exist")
	}

	buf, err := readBuffer(ctx, store, d.OldPath)
	if err != nil {
		return err
	}
	buf, err = applyHunks(buf, d.Hunks, cfg)
	if err != nil {
		return err
	}
	if len(buf.lines) != 0 {
		return validationErr(d.OldPath, "Delete directive's hunks did not remove all content")
	}
	if err := store.Remove(ctx, d.OldPath); err != nil {
		return ioErr(d.OldPath, err, "removing")
	}
	res.Deleted = append(res.Deleted, d.OldPath)
	return nil
}

func applyModify(ctx context.Context, store Store, d *Directive, res *Result, cfg Config) error {
	if d.OldPath != d.NewPath || d.OldPath == "" {
		return validationErr(pathOf(d), "Modify requires equal old and new paths")
	}
	exists, err := store.Exists(ctx, d.OldPath)
	if err != nil {
		return ioErr(d.OldPath, err, "checking existence")
	}
	if !exists {
		return validationErr(d.OldPath, "Modify target does not exist")
	}

	buf, err := readBuffer(ctx, store, d.OldPath)
	if err != nil {
		return err
	}
	buf, err = applyHunks(buf, d.Hunks, cfg)
	if err != nil {
		return err
	}
	if err := writeBuffer(ctx, store, d.NewPath, buf); err != nil {
		return err
	}
	if mode, ok := parseFileMode(d.Metadata.NewMode); ok {
		if err := store.SetPermissions(ctx, d.NewPath, mode); err != nil {
			return ioErr(d.NewPath, err, "setting mode")
		}
	}
	res.Modified = append(res.Modified, d.NewPath)
	return nil
}

func applyRename(ctx context.Context, store Store, d *Directive, res *Result, cfg Config) error {
	exists, err := store.Exists(ctx, d.OldPath)
	if err != nil {
		return ioErr(d.OldPath, err, "checking existence")
	}
	if !exists {
		return validationErr(d.OldPath, "Rename source does not exist")
	}

	capturedMode, haveMode, err := store.GetPermissions(ctx, d.OldPath)
	if err != nil {
		return ioErr(d.OldPath, err, "reading permissions")
	}

	if len(d.Hunks) == 0 {
		if err := store.Move(ctx, d.OldPath, d.NewPath); err != nil {
			return ioErr(d.NewPath, err, "moving")
		}
	} else {
		buf, err := readBuffer(ctx, store, d.OldPath)
		if err != nil {
			return err
		}
		buf, err = applyHunks(buf, d.Hunks, cfg)
		if err != nil {
			return err
		}
		if err := writeBuffer(ctx, store, d.NewPath, buf); err != nil {
			return err
		}
		if err := store.Remove(ctx, d.OldPath); err != nil {
			return ioErr(d.OldPath, err, "removing")
		}
	}

	if mode, ok := parseFileMode(d.Metadata.NewMode); ok {
		if err := store.SetPermissions(ctx, d.NewPath, mode); err != nil {
			return ioErr(d.NewPath, err, "setting mode")
		}
	} else if haveMode {
		if err := store.SetPermissions(ctx, d.NewPath, capturedMode); err != nil {
			return ioErr(d.NewPath, err, "restoring mode")
		}
	}
	res.Renamed = append(res.Renamed, Move{From: d.OldPath, To: d.NewPath})
	return nil
}

func applyCopy(ctx context.Context, store Store, d *Directive, res *Result, cfg Config) error {
	exists, err := store.Exists(ctx, d.OldPath)
	if err != nil {
		return ioErr(d.OldPath, err, "checking existence")
	}
	if !exists {
		return validationErr(d.OldPath, "Copy source does not exist")
	}
	newExists, err := store.Exists(ctx, d.NewPath)
	if err != nil {
		return ioErr(d.NewPath, err, "checking existence")
	}
	if newExists {
		return validationErr(d.NewPath, "Copy target already exists")
	}

	capturedMode, haveMode, err := store.GetPermissions(ctx, d.OldPath)
	if err != nil {
		return ioErr(d.OldPath, err, "reading permissions")
	}

	buf, err := readBuffer(ctx, store, d.OldPath)
	if err != nil {
		return err
	}
	if len(d.Hunks) > 0 {
		buf, err = applyHunks(buf, d.Hunks, cfg)
		if err != nil {
			return err
		}
	}
	if err := writeBuffer(ctx, store, d.NewPath, buf); err != nil {
		return err
	}

	if mode, ok := parseFileMode(d.Metadata.NewMode); ok {
		if err := store.SetPermissions(ctx, d.NewPath, mode); err != nil {
			return ioErr(d.NewPath, err, "setting mode")
		}
	} else if haveMode {
		if err := store.SetPermissions(ctx, d.NewPath, capturedMode); err != nil {
			return ioErr(d.NewPath, err, "setting mode")
		}
	}
	res.Copied = append(res.Copied, Move{From: d.OldPath, To: d.NewPath})
	return nil
}

// parseFileMode parses an octal mode string, stripping whitespace.
// Non-octal strings are metadata, not patch content, and are silently
// skipped. Only the low 12 bits are applied.
func parseFileMode(raw string) (uint32, bool) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if cleaned == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(cleaned, 8, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n) & 0o7777, true
}

// transformLine is one entry of a HunkTransform's expected/replacement
// sequence, tagged with its original kind for trim-variant bookkeeping.
type transformLine struct {
	Kind LineKind
	Text string
}

// hunkTransform holds the four derived sequences of §4.4.
type hunkTransform struct {
	header               HunkHeader
	expected             []transformLine
	replacement          []transformLine
	expectedTrailing     *bool
	replacementTrailing  *bool
	leadingContextCount  int
	trailingContextCount int
}

func computeTransform(h Hunk) hunkTransform {
	t := hunkTransform{header: h.Header}
	for idx, line := range h.Lines {
		switch line.Kind {
		case LineContext:
			t.expected = append(t.expected, transformLine{LineContext, line.Text})
			t.replacement = append(t.replacement, transformLine{LineContext, line.Text})
		case LineDeletion:
			t.expected = append(t.expected, transformLine{LineDeletion, line.Text})
		case LineAddition:
			t.replacement = append(t.replacement, transformLine{LineAddition, line.Text})
		case LineNoNewline:
			if idx == 0 {
				continue
			}
			f := false
			switch h.Lines[idx-1].Kind {
			case LineDeletion:
				t.expectedTrailing = &f
			case LineContext, LineAddition:
				t.replacementTrailing = &f
			}
		}
	}

	for _, line := range h.Lines {
		if line.Kind != LineContext {
			break
		}
		t.leadingContextCount++
	}
	for i := len(h.Lines) - 1; i >= 0; i-- {
		if h.Lines[i].Kind == LineNoNewline {
			continue
		}
		if h.Lines[i].Kind != LineContext {
			break
		}
		t.trailingContextCount++
	}
	return t
}

type trimVariant struct {
	leading  int
	trailing int
}

// enumerateVariants lists (leadingTrim, trailingTrim) pairs in
// ascending-total-trim order, ties broken by ascending leading trim, per
// the ordering §9 calls load-bearing.
func enumerateVariants(leadingMax, trailingMax, tolerance int) []trimVariant {
	var out []trimVariant
	for total := 0; total <= tolerance; total++ {
		for leading := 0; leading <= total; leading++ {
			trailing := total - leading
			if leading <= leadingMax && trailing <= trailingMax {
				out = append(out, trimVariant{leading: leading, trailing: trailing})
			}
		}
	}
	return out
}

func clamp(x, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func equalLine(bufLine, expected string, mode WhitespaceMode) bool {
	if mode == WhitespaceExact {
		return bufLine == expected
	}
	return stripWhitespace(bufLine) == stripWhitespace(expected)
}

func stripWhitespace(s string) string {
	var b strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func matchesAt(buf []string, expected []transformLine, idx int, mode WhitespaceMode) bool {
	for j, e := range expected {
		if !equalLine(buf[idx+j], e.Text, mode) {
			return false
		}
	}
	return true
}

// locateMatch finds the index at which expected should be replaced.
// Returns errNoMatch when this variant does not match anywhere, so the
// caller can move on to the next trim variant.
func locateMatch(buf []string, expected []transformLine, header HunkHeader, mode WhitespaceMode) (int, error) {
	n := len(buf)
	m := len(expected)

	if m == 0 {
		idx := n
		if header.NewRange != nil {
			idx = clamp(header.NewRange.Start-1, 0, n)
		}
		return idx, nil
	}

	if m > n {
		return 0, errNoMatch
	}

	if header.OldRange != nil {
		candidate := clamp(header.OldRange.Start-1, 0, n-m)
		if matchesAt(buf, expected, candidate, mode) {
			return candidate, nil
		}
	}

	var matches []int
	for i := 0; i <= n-m; i++ {
		if matchesAt(buf, expected, i, mode) {
			matches = append(matches, i)
		}
	}
	switch len(matches) {
	case 0:
		return 0, errNoMatch
	case 1:
		return matches[0], nil
	default:
		return 0, validationErr("", "ambiguous hunk match")
	}
}

func applyOneHunk(buf buffer, h Hunk, cfg Config) (buffer, error) {
	t := computeTransform(h)
	variants := enumerateVariants(t.leadingContextCount, t.trailingContextCount, cfg.ContextTolerance)
	if len(variants) == 0 {
		variants = []trimVariant{{0, 0}}
	}

	for _, v := range variants {
		expected := t.expected[v.leading : len(t.expected)-v.trailing]
		replacement := t.replacement[v.leading : len(t.replacement)-v.trailing]

		idx, err := locateMatch(buf.lines, expected, t.header, cfg.Whitespace)
		if err != nil {
			if errors.Is(err, errNoMatch) {
				continue
			}
			return buf, err
		}

		matchTouchedEnd := idx+len(expected) == len(buf.lines)

		newLines := make([]string, 0, len(buf.lines)-len(expected)+len(replacement))
		newLines = append(newLines, buf.lines[:idx]...)
		for _, rl := range replacement {
			newLines = append(newLines, rl.Text)
		}
		newLines = append(newLines, buf.lines[idx+len(expected):]...)

		replacementTouchesEnd := idx+len(replacement) == len(newLines)

		trailing := buf.trailingNewline
		switch {
		case replacementTouchesEnd && t.replacementTrailing != nil:
			trailing = *t.replacementTrailing
		case t.expectedTrailing != nil && matchTouchedEnd:
			trailing = true
		}

		return buffer{lines: newLines, trailingNewline: trailing}, nil
	}

	return buf, validationErr("", "context mismatch")
}

func applyHunks(buf buffer, hunks []Hunk, cfg Config) (buffer, error) {
	for _, h := range hunks {
		var err error
		buf, err = applyOneHunk(buf, h, cfg)
		if err != nil {
			return buf, err
		}
	}
	return buf, nil
}
