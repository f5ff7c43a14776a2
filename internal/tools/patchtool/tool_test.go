package patchtool_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"applypatch/internal/tools/patchtool"
)

func TestToolAppliesUpdate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("Hello\nWorld\n"), 0o644))

	tool := patchtool.New(dir)
	args, err := json.Marshal(map[string]any{
		"patch": "*** Begin Patch\n" +
			"*** Update File: hello.txt\n" +
			"--- a/hello.txt\n" +
			"+++ b/hello.txt\n" +
			"@@ -1,2 +1,2 @@\n" +
			"-Hello\n" +
			"+Hello there\n" +
			" World\n" +
			"*** End Patch\n",
	})
	require.NoError(t, err)

	res, err := tool.Call(context.Background(), args)
	require.NoError(t, err)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, true, decoded["ok"])

	data, err := os.ReadFile(filepath.Join(dir, "hello.txt"))
	require.NoError(t, err)
	require.Equal(t, "Hello there\nWorld\n", string(data))
}

func TestToolDryRunLeavesStoreUntouched(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.txt"), []byte("hi\n"), 0o644))

	tool := patchtool.New(dir)
	args, err := json.Marshal(map[string]any{
		"dry_run": true,
		"patch": "*** Begin Patch\n" +
			"*** Update File: greet.txt\n" +
			"--- a/greet.txt\n" +
			"+++ b/greet.txt\n" +
			"@@ -1 +1 @@\n" +
			"-hi\n" +
			"+bye\n" +
			"*** End Patch\n",
	})
	require.NoError(t, err)

	_, err = tool.Call(context.Background(), args)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "greet.txt"))
	require.NoError(t, err)
	require.Equal(t, "hi\n", string(data))
}

func TestToolRejectsNoPatch(t *testing.T) {
	tool := patchtool.New(t.TempDir())
	res, err := tool.Call(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, false, decoded["ok"])
}

func TestToolRejectsEscapingPath(t *testing.T) {
	dir := t.TempDir()
	tool := patchtool.New(dir)
	args, err := json.Marshal(map[string]any{
		"patch": "*** Begin Patch\n" +
			"*** Add File: ../outside.txt\n" +
			"--- /dev/null\n" +
			"+++ b/../outside.txt\n" +
			"@@ -0,0 +1 @@\n" +
			"+oops\n" +
			"*** End Patch\n",
	})
	require.NoError(t, err)

	res, err := tool.Call(context.Background(), args)
	require.NoError(t, err)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, false, decoded["ok"])
}
