package patch

import "github.com/sergi/go-diff/diffmatchpatch"

// DiffPreview renders a human-readable diff between before and after,
// the same way the teacher's file_editor renders a patch preview
// (diffmatchpatch.DiffMain + DiffPrettyText). It is purely cosmetic:
// Apply never consults it when deciding where a hunk matches.
func DiffPreview(before, after []byte) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(string(before), string(after), false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.DiffPrettyText(diffs)
}
