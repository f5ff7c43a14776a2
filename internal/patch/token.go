package patch

import "strings"

// TokenKind classifies one input line.
type TokenKind int

const (
	TokBeginMarker TokenKind = iota + 1
	TokEndMarker
	TokHeader
	TokFileOld
	TokFileNew
	TokMetadata
	TokHunkHeader
	TokHunkLine
	TokOther
)

// Token is one classified input line. Raw is the original line text
// (without the trailing newline).
type Token struct {
	Kind TokenKind
	Raw  string
	Line int // 1-based input line number
}

const (
	beginMarkerLine = "*** Begin Patch"
	endMarkerLine   = "*** End Patch"
)

// metadataPrefixes are the recognized extended-header line prefixes,
// matched longest-prefix-first by the parser.
var metadataPrefixes = []string{
	"index ",
	"old mode ",
	"new mode ",
	"deleted file mode ",
	"new file mode ",
	"mode change ",
	"similarity index ",
	"dissimilarity index ",
	"rename from ",
	"rename to ",
	"copy from ",
	"copy to ",
	"new file executable mode ",
	"deleted file executable mode ",
	"Binary files ",
	"binary files ",
}

func hasMetadataPrefix(line string) bool {
	for _, p := range metadataPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// Tokenize splits raw on "\n", preserving empty lines, and classifies each
// line into a Token. Lines before the first BeginMarker are silently
// dropped. Returns MalformedError if no BeginMarker/EndMarker pair is
// found, if a BeginMarker appears while already inside a patch, or if an
// EndMarker appears outside one.
func Tokenize(raw string) ([]Token, error) {
	lines := strings.Split(raw, "\n")

	var tokens []Token
	inside := false
	sawBegin := false

	for i, line := range lines {
		lineNo := i + 1
		switch {
		case line == beginMarkerLine:
			if inside {
				return nil, malformed(lineNo, "nested '%s'", beginMarkerLine)
			}
			inside = true
			sawBegin = true
			tokens = append(tokens, Token{Kind: TokBeginMarker, Raw: line, Line: lineNo})
		case line == endMarkerLine:
			if !inside {
				return nil, malformed(lineNo, "'%s' seen outside a patch", endMarkerLine)
			}
			inside = false
			tokens = append(tokens, Token{Kind: TokEndMarker, Raw: line, Line: lineNo})
		case !inside:
			// Dropped silently: text outside any Begin/End Patch block.
			continue
		case strings.HasPrefix(line, "--- "):
			tokens = append(tokens, Token{Kind: TokFileOld, Raw: line, Line: lineNo})
		case strings.HasPrefix(line, "+++ "):
			tokens = append(tokens, Token{Kind: TokFileNew, Raw: line, Line: lineNo})
		case strings.HasPrefix(line, "@@"):
			tokens = append(tokens, Token{Kind: TokHunkHeader, Raw: line, Line: lineNo})
		case strings.HasPrefix(line, "*** "):
			tokens = append(tokens, Token{Kind: TokHeader, Raw: line, Line: lineNo})
		case hasMetadataPrefix(line):
			tokens = append(tokens, Token{Kind: TokMetadata, Raw: line, Line: lineNo})
		case strings.HasPrefix(line, " "), strings.HasPrefix(line, "+"), strings.HasPrefix(line, "-"),
			strings.HasPrefix(line, "\\"), line == "":
			tokens = append(tokens, Token{Kind: TokHunkLine, Raw: line, Line: lineNo})
		default:
			tokens = append(tokens, Token{Kind: TokOther, Raw: line, Line: lineNo})
		}
	}

	if !sawBegin || inside {
		return nil, malformed(0, "missing end marker")
	}
	return tokens, nil
}
