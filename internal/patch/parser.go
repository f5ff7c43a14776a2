package patch

import (
	"regexp"
	"strconv"
	"strings"
)

const noNewlineLiteral = `\ No newline at end of file`

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(?: (.*))?$`)

// Parse groups a token stream into a Plan, accepting implicit (header-only)
// directives. It is equivalent to ParseWithOptions(tokens, true).
func Parse(tokens []Token) (*Plan, error) {
	return ParseWithOptions(tokens, true)
}

// ParseWithOptions groups a token stream into a Plan. It scans the tokens
// between Begin/End marker pairs (markers themselves carry no content and
// are skipped), accumulating a pending header and pending metadata lines
// until a FileOld/FileNew pair or a HunkHeader opens a directive.
//
// When allowImplicit is false, a "*** Add/Update/Delete/Rename/Copy File"
// header only shapes a directive when followed by an explicit --- / +++
// pair; a bare header followed directly by a hunk, or followed by nothing,
// is rejected as malformed instead of inferring a directive from the
// header text alone.
func ParseWithOptions(tokens []Token, allowImplicit bool) (*Plan, error) {
	plan := &Plan{}

	var (
		pendingHeaderRaw  string
		pendingHeaderBody string
		pendingHeaderSet  bool
		pendingMeta       []string
		current           *Directive
	)

	flushPending := func() error {
		if pendingHeaderSet {
			if op, oldPath, newPath, hasOld, hasNew, ok := parseImplicitHeader(pendingHeaderBody); ok {
				if !allowImplicit {
					return malformed(0, "implicit directives are disabled; header %q requires an explicit --- / +++ pair", pendingHeaderBody)
				}
				d := Directive{Op: op, Header: pendingHeaderRaw, Metadata: Metadata{RawLines: pendingMeta}}
				if hasOld {
					d.OldPath = oldPath
				}
				if hasNew {
					d.NewPath = newPath
				}
				plan.Directives = append(plan.Directives, d)
			}
		}
		pendingHeaderSet = false
		pendingHeaderRaw = ""
		pendingHeaderBody = ""
		pendingMeta = nil
		return nil
	}

	i := 0
	for i < len(tokens) {
		tok := tokens[i]
		switch tok.Kind {
		case TokBeginMarker, TokEndMarker:
			i++

		case TokHeader:
			if err := flushPending(); err != nil {
				return nil, err
			}
			current = nil
			pendingHeaderRaw = tok.Raw
			pendingHeaderBody = strings.TrimPrefix(tok.Raw, "*** ")
			pendingHeaderSet = true
			if plan.Title == "" {
				plan.Title = pendingHeaderBody
			}
			i++

		case TokMetadata:
			if current != nil {
				current.Metadata.RawLines = append(current.Metadata.RawLines, tok.Raw)
			} else {
				pendingMeta = append(pendingMeta, tok.Raw)
			}
			i++

		case TokFileOld:
			if i+1 >= len(tokens) || tokens[i+1].Kind != TokFileNew {
				return nil, malformed(tok.Line, "'--- ' line not followed by '+++ ' line")
			}
			oldRaw := strings.TrimPrefix(tok.Raw, "--- ")
			newRaw := strings.TrimPrefix(tokens[i+1].Raw, "+++ ")
			oldPath, hasOld := interpretPath(oldRaw)
			newPath, hasNew := interpretPath(newRaw)
			op := inferOperationExplicit(pendingHeaderBody, hasOld, oldPath, hasNew, newPath)
			d := Directive{Op: op, Header: pendingHeaderRaw, Metadata: Metadata{RawLines: pendingMeta}}
			if hasOld {
				d.OldPath = oldPath
			}
			if hasNew {
				d.NewPath = newPath
			}
			plan.Directives = append(plan.Directives, d)
			current = &plan.Directives[len(plan.Directives)-1]
			pendingHeaderSet = false
			pendingHeaderRaw = ""
			pendingHeaderBody = ""
			pendingMeta = nil
			i += 2

		case TokFileNew:
			return nil, malformed(tok.Line, "'+++ ' line without a preceding '--- ' line")

		case TokHunkHeader:
			if current == nil {
				if !pendingHeaderSet {
					return nil, malformed(tok.Line, "hunk header without a preceding file directive")
				}
				if !allowImplicit {
					return nil, malformed(tok.Line, "implicit directives are disabled; header %q requires an explicit --- / +++ pair", pendingHeaderBody)
				}
				op, oldPath, newPath, hasOld, hasNew, ok := parseImplicitHeader(pendingHeaderBody)
				if !ok {
					return nil, malformed(tok.Line, "header %q does not introduce a file directive", pendingHeaderBody)
				}
				d := Directive{Op: op, Header: pendingHeaderRaw, Metadata: Metadata{RawLines: pendingMeta}}
				if hasOld {
					d.OldPath = oldPath
				}
				if hasNew {
					d.NewPath = newPath
				}
				plan.Directives = append(plan.Directives, d)
				current = &plan.Directives[len(plan.Directives)-1]
				pendingHeaderSet = false
				pendingHeaderRaw = ""
				pendingHeaderBody = ""
				pendingMeta = nil
			}

			header, err := parseHunkHeader(tok.Raw, tok.Line)
			if err != nil {
				return nil, err
			}

			var lines []Line
			j := i + 1
			for j < len(tokens) && tokens[j].Kind == TokHunkLine {
				line, lineErr := parseHunkLine(tokens[j])
				if lineErr != nil {
					return nil, lineErr
				}
				lines = append(lines, line)
				j++
			}
			current.Hunks = append(current.Hunks, Hunk{Header: header, Lines: lines})
			i = j

		case TokHunkLine:
			if tok.Raw == "" {
				// Blank separator line between directives/hunks outside any
				// hunk body: tolerated, matching the dialect's lenient
				// handling of blank lines between hunks.
				i++
				continue
			}
			return nil, malformed(tok.Line, "content line %q outside a hunk", tok.Raw)

		case TokOther:
			// Lines the tokenizer could not classify (e.g. a "diff --git"
			// separator line in a concatenated git-style patch) carry no
			// directive-shaping information and are ignored, except for the
			// standalone binary-patch marker, which the validator must
			// reject.
			if tok.Raw == "GIT binary patch" && current != nil {
				current.Metadata.IsBinary = true
			}
			i++

		default:
			i++
		}
	}

	if err := flushPending(); err != nil {
		return nil, err
	}

	for idx := range plan.Directives {
		parseDirectiveMetadata(&plan.Directives[idx].Metadata)
	}

	return plan, nil
}

func interpretPath(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "/dev/null" {
		return "", false
	}
	if strings.HasPrefix(trimmed, "a/") || strings.HasPrefix(trimmed, "b/") {
		trimmed = trimmed[2:]
	}
	return trimmed, true
}

func inferOperationExplicit(headerBody string, hasOld bool, oldPath string, hasNew bool, newPath string) Operation {
	if headerBody != "" && strings.Contains(strings.ToLower(headerBody), "copy") {
		return OpCopy
	}
	switch {
	case !hasOld && hasNew:
		return OpAdd
	case hasOld && !hasNew:
		return OpDelete
	case hasOld && hasNew && oldPath == newPath:
		return OpModify
	case hasOld && hasNew:
		return OpRename
	default:
		return OpModify
	}
}

// parseImplicitHeader recognizes the fixed implicit-directive header forms
// from §6: "Add File: p", "Update File: p", "Delete File: p",
// "Rename File: a -> b", "Copy File: a -> b".
func parseImplicitHeader(headerBody string) (op Operation, oldPath, newPath string, hasOld, hasNew, ok bool) {
	lower := strings.ToLower(headerBody)
	switch {
	case strings.HasPrefix(lower, "copy file"):
		rest := afterColon(headerBody)
		o, n, split := splitArrow(rest)
		if !split {
			return 0, "", "", false, false, false
		}
		return OpCopy, implicitPath(o), implicitPath(n), true, true, true
	case strings.HasPrefix(lower, "rename file"):
		rest := afterColon(headerBody)
		o, n, split := splitArrow(rest)
		if !split {
			return 0, "", "", false, false, false
		}
		return OpRename, implicitPath(o), implicitPath(n), true, true, true
	case strings.HasPrefix(lower, "add file"):
		return OpAdd, "", implicitPath(afterColon(headerBody)), false, true, true
	case strings.HasPrefix(lower, "update file"):
		p := implicitPath(afterColon(headerBody))
		return OpModify, p, p, true, true, true
	case strings.HasPrefix(lower, "delete file"):
		return OpDelete, implicitPath(afterColon(headerBody)), "", true, false, true
	default:
		return 0, "", "", false, false, false
	}
}

func afterColon(s string) string {
	idx := strings.Index(s, ":")
	if idx < 0 {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(s[idx+1:])
}

func splitArrow(s string) (string, string, bool) {
	idx := strings.Index(s, "->")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(s[:idx]), strings.TrimSpace(s[idx+2:]), true
}

func implicitPath(s string) string {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "a/") || strings.HasPrefix(trimmed, "b/") {
		trimmed = trimmed[2:]
	}
	return trimmed
}

func parseHunkHeader(raw string, lineNo int) (HunkHeader, error) {
	if raw == "@@" {
		return HunkHeader{}, nil
	}
	m := hunkHeaderRe.FindStringSubmatch(raw)
	if m == nil {
		return HunkHeader{}, malformed(lineNo, "invalid hunk header %q", raw)
	}
	oldStart, _ := strconv.Atoi(m[1])
	oldLen := 1
	if m[2] != "" {
		oldLen, _ = strconv.Atoi(m[2])
	}
	newStart, _ := strconv.Atoi(m[3])
	newLen := 1
	if m[4] != "" {
		newLen, _ = strconv.Atoi(m[4])
	}
	return HunkHeader{
		OldRange: &Range{Start: oldStart, Len: oldLen},
		NewRange: &Range{Start: newStart, Len: newLen},
		Section:  m[5],
	}, nil
}

func parseHunkLine(tok Token) (Line, error) {
	if tok.Raw == "" {
		return Line{}, malformed(tok.Line, "empty hunk line")
	}
	if tok.Raw == noNewlineLiteral {
		return Line{Kind: LineNoNewline}, nil
	}
	switch tok.Raw[0] {
	case ' ':
		return Line{Kind: LineContext, Text: tok.Raw[1:]}, nil
	case '+':
		return Line{Kind: LineAddition, Text: tok.Raw[1:]}, nil
	case '-':
		return Line{Kind: LineDeletion, Text: tok.Raw[1:]}, nil
	default:
		return Line{}, malformed(tok.Line, "unrecognized hunk line prefix %q", tok.Raw)
	}
}

func parseDirectiveMetadata(meta *Metadata) {
	for _, raw := range meta.RawLines {
		switch {
		case strings.HasPrefix(raw, "index "):
			rest := strings.TrimPrefix(raw, "index ")
			parts := strings.SplitN(rest, " ", 2)
			hashes := parts[0]
			mode := ""
			if len(parts) == 2 {
				mode = strings.TrimSpace(parts[1])
			}
			idx := &IndexLine{Mode: mode}
			if h := strings.SplitN(hashes, "..", 2); len(h) == 2 {
				idx.OldHash, idx.NewHash = h[0], h[1]
			} else {
				idx.OldHash = hashes
			}
			meta.Index = idx
		case strings.HasPrefix(raw, "new file executable mode "):
			meta.NewMode = strings.TrimSpace(strings.TrimPrefix(raw, "new file executable mode "))
		case strings.HasPrefix(raw, "deleted file executable mode "):
			meta.OldMode = strings.TrimSpace(strings.TrimPrefix(raw, "deleted file executable mode "))
		case strings.HasPrefix(raw, "deleted file mode "):
			meta.OldMode = strings.TrimSpace(strings.TrimPrefix(raw, "deleted file mode "))
		case strings.HasPrefix(raw, "new file mode "):
			meta.NewMode = strings.TrimSpace(strings.TrimPrefix(raw, "new file mode "))
		case strings.HasPrefix(raw, "old mode "):
			meta.OldMode = strings.TrimSpace(strings.TrimPrefix(raw, "old mode "))
		case strings.HasPrefix(raw, "new mode "):
			meta.NewMode = strings.TrimSpace(strings.TrimPrefix(raw, "new mode "))
		case strings.HasPrefix(raw, "mode change "):
			if o, n, ok := splitModeChange(strings.TrimPrefix(raw, "mode change ")); ok {
				meta.OldMode, meta.NewMode = o, n
			}
		case strings.HasPrefix(raw, "similarity index "):
			if n, ok := parsePercent(strings.TrimPrefix(raw, "similarity index ")); ok {
				meta.SimilarityIndex = &n
			}
		case strings.HasPrefix(raw, "dissimilarity index "):
			if n, ok := parsePercent(strings.TrimPrefix(raw, "dissimilarity index ")); ok {
				meta.DissimilarityIndex = &n
			}
		case strings.HasPrefix(raw, "rename from "):
			meta.RenameFrom = strings.TrimSpace(strings.TrimPrefix(raw, "rename from "))
		case strings.HasPrefix(raw, "rename to "):
			meta.RenameTo = strings.TrimSpace(strings.TrimPrefix(raw, "rename to "))
		case strings.HasPrefix(raw, "copy from "):
			meta.CopyFrom = strings.TrimSpace(strings.TrimPrefix(raw, "copy from "))
		case strings.HasPrefix(raw, "copy to "):
			meta.CopyTo = strings.TrimSpace(strings.TrimPrefix(raw, "copy to "))
		case strings.HasPrefix(raw, "Binary files "), strings.HasPrefix(raw, "binary files "):
			meta.IsBinary = true
		}
	}
}

func splitModeChange(rest string) (string, string, bool) {
	fields := strings.FieldsFunc(rest, func(r rune) bool {
		return r == ' ' || r == '=' || r == '>'
	})
	if len(fields) != 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}

func parsePercent(s string) (int, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}
