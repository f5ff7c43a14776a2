package patch

// Operation is the tag on a Directive describing the file-level change it
// performs.
type Operation int

const (
	OpAdd Operation = iota + 1
	OpDelete
	OpModify
	OpRename
	OpCopy
)

func (op Operation) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpDelete:
		return "delete"
	case OpModify:
		return "modify"
	case OpRename:
		return "rename"
	case OpCopy:
		return "copy"
	default:
		return "unknown"
	}
}

// LineKind tags a Line's role inside a hunk body.
type LineKind int

const (
	LineContext LineKind = iota + 1
	LineAddition
	LineDeletion
	LineNoNewline
)

// Line is one entry of a hunk body. Text is empty for LineNoNewline.
type Line struct {
	Kind LineKind
	Text string
}

// Range is a 1-based start and a line count, as carried by a hunk header.
type Range struct {
	Start int
	Len   int
}

// HunkHeader is the parsed `@@ ... @@` line. OldRange/NewRange are nil when
// the header omitted that side (a bare "@@" header).
type HunkHeader struct {
	OldRange *Range
	NewRange *Range
	Section  string
}

// Hunk is a header plus an ordered sequence of body lines.
type Hunk struct {
	Header HunkHeader
	Lines  []Line
}

// IndexLine is the parsed `index <oldhash>..<newhash>[ <mode>]` metadata
// line.
type IndexLine struct {
	OldHash string
	NewHash string
	Mode    string
}

// Metadata carries the parsed extended-header fields of a directive plus
// the original raw lines for round-tripping.
type Metadata struct {
	Index               *IndexLine
	OldMode             string
	NewMode             string
	SimilarityIndex     *int
	DissimilarityIndex  *int
	RenameFrom          string
	RenameTo            string
	CopyFrom            string
	CopyTo              string
	IsBinary            bool
	RawLines            []string
}

// Directive is one file-level change within a Plan.
type Directive struct {
	Op       Operation
	OldPath  string
	NewPath  string
	Hunks    []Hunk
	Metadata Metadata
	Header   string
}

// Plan is the parser's output: an optional title (the first header
// encountered) and an ordered sequence of Directives, applied in order.
type Plan struct {
	Title      string
	Directives []Directive
}
