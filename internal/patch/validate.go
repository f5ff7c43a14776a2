package patch

import "strings"

// Validate enforces the cross-directive and intra-hunk invariants of §4.3
// before any store I/O is attempted. It never mutates p.
func Validate(p *Plan) error {
	seenOldPaths := make(map[string]bool)
	newPathOwners := make(map[string]Operation)

	for i := range p.Directives {
		d := &p.Directives[i]
		if err := validatePathRules(d, seenOldPaths, newPathOwners); err != nil {
			return err
		}
		if err := validateHunks(d); err != nil {
			return err
		}
		if err := validateMetadata(d); err != nil {
			return err
		}
	}
	return nil
}

func validatePathRules(d *Directive, seenOldPaths map[string]bool, newPathOwners map[string]Operation) error {
	switch d.Op {
	case OpAdd:
		if d.OldPath != "" {
			return validationErr(d.NewPath, "Add directive must not carry an old path")
		}
		if d.NewPath == "" {
			return validationErr("", "Add directive requires a new path")
		}
		if _, owned := newPathOwners[d.NewPath]; owned {
			return validationErr(d.NewPath, "new path already owned by another directive")
		}
		newPathOwners[d.NewPath] = OpAdd

	case OpDelete:
		if d.OldPath == "" {
			return validationErr("", "Delete directive requires an old path")
		}
		if d.NewPath != "" {
			return validationErr(d.OldPath, "Delete directive must not carry a new path")
		}
		if seenOldPaths[d.OldPath] {
			return validationErr(d.OldPath, "old path already consumed by another directive")
		}
		seenOldPaths[d.OldPath] = true

	case OpModify:
		if d.OldPath == "" || d.NewPath == "" {
			return validationErr("", "Modify directive requires both an old and a new path")
		}
		if d.OldPath != d.NewPath {
			return validationErr(d.OldPath, "Modify directive's old and new paths must match")
		}
		if seenOldPaths[d.OldPath] {
			return validationErr(d.OldPath, "old path already consumed by another directive")
		}
		seenOldPaths[d.OldPath] = true
		if owner, owned := newPathOwners[d.NewPath]; owned {
			if owner == OpModify {
				return validationErr(d.NewPath, "new path already modified by another directive")
			}
			// Add/Rename/Copy followed by Modify to the same path upgrades
			// the owner, per §3's controlled exception.
		}
		newPathOwners[d.NewPath] = OpModify

	case OpRename:
		if d.OldPath == "" || d.NewPath == "" {
			return validationErr("", "Rename directive requires both an old and a new path")
		}
		if d.OldPath == d.NewPath {
			return validationErr(d.OldPath, "Rename directive's old and new paths must differ")
		}
		if seenOldPaths[d.OldPath] {
			return validationErr(d.OldPath, "old path already consumed by another directive")
		}
		if _, owned := newPathOwners[d.NewPath]; owned {
			return validationErr(d.NewPath, "new path already owned by another directive")
		}
		seenOldPaths[d.OldPath] = true
		newPathOwners[d.NewPath] = OpRename

	case OpCopy:
		if d.OldPath == "" || d.NewPath == "" {
			return validationErr("", "Copy directive requires both an old and a new path")
		}
		if d.OldPath == d.NewPath {
			return validationErr(d.OldPath, "Copy directive's old and new paths must differ")
		}
		if _, owned := newPathOwners[d.NewPath]; owned {
			return validationErr(d.NewPath, "new path already owned by another directive")
		}
		newPathOwners[d.NewPath] = OpCopy

	default:
		return validationErr("", "unknown directive operation")
	}
	return nil
}

func validateHunks(d *Directive) error {
	minHunks := 0
	switch d.Op {
	case OpAdd, OpDelete, OpModify:
		minHunks = 1
	}
	if len(d.Hunks) < minHunks {
		return validationErr(pathOf(d), "%s directive requires at least one hunk", d.Op)
	}

	for _, h := range d.Hunks {
		if len(h.Lines) == 0 {
			return validationErr(pathOf(d), "hunk has no body lines")
		}

		var contextDelCount, contextAddCount, additions, deletions int
		var oldSideMarker, newSideMarker bool
		for idx, line := range h.Lines {
			switch line.Kind {
			case LineContext:
				if strings.ContainsRune(line.Text, '\r') {
					return validationErr(pathOf(d), "carriage return in hunk line")
				}
				contextDelCount++
				contextAddCount++
			case LineAddition:
				if strings.ContainsRune(line.Text, '\r') {
					return validationErr(pathOf(d), "carriage return in hunk line")
				}
				additions++
				contextAddCount++
			case LineDeletion:
				if strings.ContainsRune(line.Text, '\r') {
					return validationErr(pathOf(d), "carriage return in hunk line")
				}
				deletions++
				contextDelCount++
			case LineNoNewline:
				if idx == 0 {
					return validationErr(pathOf(d), "'\\ No newline at end of file' cannot be the first line of a hunk")
				}
				switch h.Lines[idx-1].Kind {
				case LineDeletion:
					if oldSideMarker {
						return validationErr(pathOf(d), "duplicate '\\ No newline at end of file' for the old side")
					}
					oldSideMarker = true
				case LineContext, LineAddition:
					if idx != len(h.Lines)-1 {
						return validationErr(pathOf(d), "'\\ No newline at end of file' for the new side must be the final line of a hunk")
					}
					if newSideMarker {
						return validationErr(pathOf(d), "duplicate '\\ No newline at end of file' for the new side")
					}
					newSideMarker = true
				case LineNoNewline:
					return validationErr(pathOf(d), "'\\ No newline at end of file' cannot follow another no-newline marker")
				}
			}
		}

		if h.Header.OldRange != nil && h.Header.OldRange.Len != contextDelCount {
			return validationErr(pathOf(d), "hunk header old range length %d does not match %d context+deletion lines", h.Header.OldRange.Len, contextDelCount)
		}
		if h.Header.NewRange != nil && h.Header.NewRange.Len != contextAddCount {
			return validationErr(pathOf(d), "hunk header new range length %d does not match %d context+addition lines", h.Header.NewRange.Len, contextAddCount)
		}

		switch d.Op {
		case OpAdd:
			if deletions > 0 || contextDelCount != deletions {
				return validationErr(pathOf(d), "Add hunk must not contain context or deletion lines")
			}
			if additions == 0 {
				return validationErr(pathOf(d), "Add hunk requires at least one addition")
			}
		case OpDelete:
			if additions > 0 || contextAddCount != additions {
				return validationErr(pathOf(d), "Delete hunk must not contain context or addition lines")
			}
			if deletions == 0 {
				return validationErr(pathOf(d), "Delete hunk requires at least one deletion")
			}
		case OpModify, OpRename, OpCopy:
			if additions == 0 && deletions == 0 {
				return validationErr(pathOf(d), "hunk requires at least one addition or deletion")
			}
		}
	}
	return nil
}

func validateMetadata(d *Directive) error {
	m := &d.Metadata

	if (m.RenameFrom != "" || m.RenameTo != "") && d.Op != OpRename {
		return validationErr(pathOf(d), "rename_from/rename_to only valid on a Rename directive")
	}
	if (m.CopyFrom != "" || m.CopyTo != "") && d.Op != OpCopy {
		return validationErr(pathOf(d), "copy_from/copy_to only valid on a Copy directive")
	}
	if m.RenameFrom != "" && stripAB(m.RenameFrom) != d.OldPath {
		return validationErr(pathOf(d), "rename_from does not match the directive's old path")
	}
	if m.RenameTo != "" && stripAB(m.RenameTo) != d.NewPath {
		return validationErr(pathOf(d), "rename_to does not match the directive's new path")
	}
	if m.CopyFrom != "" && stripAB(m.CopyFrom) != d.OldPath {
		return validationErr(pathOf(d), "copy_from does not match the directive's old path")
	}
	if m.CopyTo != "" && stripAB(m.CopyTo) != d.NewPath {
		return validationErr(pathOf(d), "copy_to does not match the directive's new path")
	}
	if (m.SimilarityIndex != nil || m.DissimilarityIndex != nil) && d.Op != OpRename && d.Op != OpCopy {
		return validationErr(pathOf(d), "similarity/dissimilarity index only valid on Rename or Copy")
	}
	if m.IsBinary {
		return validationErr(pathOf(d), "binary patches are not supported")
	}
	if d.Op == OpAdd && m.OldMode != "" {
		return validationErr(pathOf(d), "old_mode is not allowed on an Add directive")
	}
	if d.Op == OpDelete && m.NewMode != "" {
		return validationErr(pathOf(d), "new_mode is not allowed on a Delete directive")
	}
	return nil
}

func stripAB(s string) string {
	if strings.HasPrefix(s, "a/") || strings.HasPrefix(s, "b/") {
		return s[2:]
	}
	return s
}

func pathOf(d *Directive) string {
	if d.NewPath != "" {
		return d.NewPath
	}
	return d.OldPath
}
