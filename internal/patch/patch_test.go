package patch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"applypatch/internal/patch"
	"applypatch/internal/patchstore"
)

func runOK(t *testing.T, store *patchstore.Memory, raw string, cfg patch.Config) *patch.Result {
	t.Helper()
	tokens, err := patch.Tokenize(raw)
	require.NoError(t, err)
	plan, err := patch.Parse(tokens)
	require.NoError(t, err)
	require.NoError(t, patch.Validate(plan))
	res, err := patch.Apply(context.Background(), store, plan, cfg)
	require.NoError(t, err)
	return res
}

// S1 — Modify with context.
func TestScenarioModifyWithContext(t *testing.T) {
	store := patchstore.NewMemory()
	store.Seed("hello.txt", []byte("Hello\nWorld\n"), 0o644)

	raw := `*** Begin Patch
*** Update File: hello.txt
--- a/hello.txt
+++ b/hello.txt
@@ -1,2 +1,2 @@
-Hello
+Hello there
 World
*** End Patch
`
	res := runOK(t, store, raw, patch.Config{})
	require.Equal(t, []string{"hello.txt"}, res.Modified)

	data, err := store.Read(context.Background(), "hello.txt")
	require.NoError(t, err)
	require.Equal(t, "Hello there\nWorld\n", string(data))
}

// S2 — Add.
func TestScenarioAdd(t *testing.T) {
	store := patchstore.NewMemory()

	raw := `*** Begin Patch
*** Add File: greet.txt
--- /dev/null
+++ b/greet.txt
@@ -0,0 +1,2 @@
+Hello
+World
*** End Patch
`
	res := runOK(t, store, raw, patch.Config{})
	require.Equal(t, []string{"greet.txt"}, res.Added)

	data, err := store.Read(context.Background(), "greet.txt")
	require.NoError(t, err)
	require.Equal(t, "Hello\nWorld\n", string(data))
}

// S3 — Delete.
func TestScenarioDelete(t *testing.T) {
	store := patchstore.NewMemory()
	store.Seed("obsolete.txt", []byte("Goodbye\nWorld\n"), 0o644)

	raw := `*** Begin Patch
*** Delete File: obsolete.txt
--- a/obsolete.txt
+++ /dev/null
@@ -1,2 +0,0 @@
-Goodbye
-World
*** End Patch
`
	res := runOK(t, store, raw, patch.Config{})
	require.Equal(t, []string{"obsolete.txt"}, res.Deleted)

	ok, err := store.Exists(context.Background(), "obsolete.txt")
	require.NoError(t, err)
	require.False(t, ok)
}

// S4 — Rename with edit, preserving inherited permissions.
func TestScenarioRenameWithEdit(t *testing.T) {
	store := patchstore.NewMemory()
	store.Seed("foo.txt", []byte("foo\n"), 0o755)

	raw := `*** Begin Patch
*** Rename File: foo.txt -> bar.txt
--- a/foo.txt
+++ b/bar.txt
@@ -1 +1 @@
-foo
+bar
*** End Patch
`
	res := runOK(t, store, raw, patch.Config{})
	require.Len(t, res.Renamed, 1)
	require.Equal(t, "foo.txt", res.Renamed[0].From)
	require.Equal(t, "bar.txt", res.Renamed[0].To)

	ctx := context.Background()
	ok, err := store.Exists(ctx, "foo.txt")
	require.NoError(t, err)
	require.False(t, ok)

	data, err := store.Read(ctx, "bar.txt")
	require.NoError(t, err)
	require.Equal(t, "bar\n", string(data))

	mode, ok, err := store.GetPermissions(ctx, "bar.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(0o755), mode)
}

// S5 — Header-disambiguated hunk: old_range selects the second "bar".
func TestScenarioHeaderDisambiguation(t *testing.T) {
	store := patchstore.NewMemory()
	store.Seed("dup.txt", []byte("foo\nbar\nbaz\nbar\nqux"), 0o644)

	raw := `*** Begin Patch
*** Update File: dup.txt
--- a/dup.txt
+++ b/dup.txt
@@ -4,1 +4,1 @@
-bar
+BAR
*** End Patch
`
	res := runOK(t, store, raw, patch.Config{})
	require.Equal(t, []string{"dup.txt"}, res.Modified)

	data, err := store.Read(context.Background(), "dup.txt")
	require.NoError(t, err)
	require.Equal(t, "foo\nbar\nbaz\nBAR\nqux", string(data))
}

// S6 — Ambiguity rejection: no old_range, six identical lines.
func TestScenarioAmbiguityRejection(t *testing.T) {
	store := patchstore.NewMemory()
	original := "beta\nbeta\nbeta\nbeta\nbeta\nbeta"
	store.Seed("repeated.txt", []byte(original), 0o644)

	raw := `*** Begin Patch
*** Update File: repeated.txt
--- a/repeated.txt
+++ b/repeated.txt
@@
-beta
+gamma
*** End Patch
`
	tokens, err := patch.Tokenize(raw)
	require.NoError(t, err)
	plan, err := patch.Parse(tokens)
	require.NoError(t, err)
	require.NoError(t, patch.Validate(plan))

	_, err = patch.Apply(context.Background(), store, plan, patch.Config{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "ambiguous hunk match")

	data, err := store.Read(context.Background(), "repeated.txt")
	require.NoError(t, err)
	require.Equal(t, original, string(data))
}

func TestTokenizeRequiresMarkers(t *testing.T) {
	_, err := patch.Tokenize("no markers here\n")
	require.Error(t, err)

	_, err = patch.Tokenize("*** Begin Patch\nunterminated\n")
	require.Error(t, err)

	_, err = patch.Tokenize("*** End Patch\n")
	require.Error(t, err)
}

func TestParseWithOptionsRejectsImplicitWhenDisallowed(t *testing.T) {
	raw := `*** Begin Patch
*** Add File: greet.txt
@@ -0,0 +1 @@
+hello
*** End Patch
`
	tokens, err := patch.Tokenize(raw)
	require.NoError(t, err)

	plan, err := patch.ParseWithOptions(tokens, true)
	require.NoError(t, err)
	require.Len(t, plan.Directives, 1)

	_, err = patch.ParseWithOptions(tokens, false)
	require.Error(t, err)
}

func TestValidateRejectsDuplicateOldPath(t *testing.T) {
	raw := `*** Begin Patch
*** Delete File: a.txt
--- a/a.txt
+++ /dev/null
@@ -1 +0,0 @@
-one
*** Delete File: a.txt
--- a/a.txt
+++ /dev/null
@@ -1 +0,0 @@
-one
*** End Patch
`
	tokens, err := patch.Tokenize(raw)
	require.NoError(t, err)
	plan, err := patch.Parse(tokens)
	require.NoError(t, err)
	err = patch.Validate(plan)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already consumed")
}

func TestApplyAddRequiresAbsence(t *testing.T) {
	store := patchstore.NewMemory()
	store.Seed("exists.txt", []byte("already here\n"), 0o644)

	raw := `*** Begin Patch
*** Add File: exists.txt
--- /dev/null
+++ b/exists.txt
@@ -0,0 +1 @@
+hello
*** End Patch
`
	tokens, err := patch.Tokenize(raw)
	require.NoError(t, err)
	plan, err := patch.Parse(tokens)
	require.NoError(t, err)
	require.NoError(t, patch.Validate(plan))

	_, err = patch.Apply(context.Background(), store, plan, patch.Config{})
	require.Error(t, err)
}

func TestContextToleranceTrimsMismatchedEdges(t *testing.T) {
	store := patchstore.NewMemory()
	store.Seed("file.txt", []byte("one\ntwo\nthree\nfour\n"), 0o644)

	// The hunk's leading context line doesn't match the buffer ("zero" vs
	// "one"), but with a tolerance of 1 the mismatched leading context is
	// trimmed and the remaining lines still anchor uniquely.
	raw := `*** Begin Patch
*** Update File: file.txt
--- a/file.txt
+++ b/file.txt
@@ -1,3 +1,3 @@
 zero
-two
+TWO
 three
*** End Patch
`
	tokens, err := patch.Tokenize(raw)
	require.NoError(t, err)
	plan, err := patch.Parse(tokens)
	require.NoError(t, err)
	require.NoError(t, patch.Validate(plan))

	_, err = patch.Apply(context.Background(), store, plan, patch.Config{ContextTolerance: 1})
	require.NoError(t, err)

	data, err := store.Read(context.Background(), "file.txt")
	require.NoError(t, err)
	require.Equal(t, "one\nTWO\nthree\nfour\n", string(data))
}

func TestNoNewlineMarkerBothSides(t *testing.T) {
	store := patchstore.NewMemory()
	store.Seed("tail.txt", []byte("old content"), 0o644)

	raw := "*** Begin Patch\n" +
		"*** Update File: tail.txt\n" +
		"--- a/tail.txt\n" +
		"+++ b/tail.txt\n" +
		"@@ -1 +1 @@\n" +
		"-old content\n" +
		"\\ No newline at end of file\n" +
		"+new content\n" +
		"\\ No newline at end of file\n" +
		"*** End Patch\n"

	res := runOK(t, store, raw, patch.Config{})
	require.Equal(t, []string{"tail.txt"}, res.Modified)

	data, err := store.Read(context.Background(), "tail.txt")
	require.NoError(t, err)
	require.Equal(t, "new content", string(data))
}

func TestWhitespaceIgnoreAllMode(t *testing.T) {
	store := patchstore.NewMemory()
	store.Seed("file.txt", []byte("  indented line\nkeep\n"), 0o644)

	raw := `*** Begin Patch
*** Update File: file.txt
--- a/file.txt
+++ b/file.txt
@@ -1,2 +1,2 @@
-indented line
+changed line
 keep
*** End Patch
`
	tokens, err := patch.Tokenize(raw)
	require.NoError(t, err)
	plan, err := patch.Parse(tokens)
	require.NoError(t, err)
	require.NoError(t, patch.Validate(plan))

	_, err = patch.Apply(context.Background(), store, plan, patch.Config{Whitespace: patch.WhitespaceIgnoreAll})
	require.NoError(t, err)

	data, err := store.Read(context.Background(), "file.txt")
	require.NoError(t, err)
	require.Equal(t, "changed line\nkeep\n", string(data))
}
