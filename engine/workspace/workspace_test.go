package workspace_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"durableagent.dev/engine/planner"
	"durableagent.dev/engine/runtime"
	"durableagent.dev/engine/workspace"
)

func newWorkspace(t *testing.T, cfg workspace.Config) *workspace.Workspace {
	t.Helper()
	dir := t.TempDir()
	cfg.Enabled = true
	ws, err := workspace.New(dir, cfg)
	require.NoError(t, err)
	return ws
}

func TestWriteReadEditRoundTrip(t *testing.T) {
	ws := newWorkspace(t, workspace.Config{RequireReadBeforeWrite: true})
	execs := ws.Executors()
	ctx := context.Background()

	writeRes, err := execs[workspace.WriteFile].Execute(ctx, runtime.ToolCallMeta{}, planner.ToolRequest{
		Name:    workspace.WriteFile,
		Payload: map[string]any{"path": "a.txt", "content": "hello world\n"},
	})
	require.NoError(t, err)
	require.Empty(t, writeRes.Error)

	readRes, err := execs[workspace.ReadFile].Execute(ctx, runtime.ToolCallMeta{}, planner.ToolRequest{
		Name:    workspace.ReadFile,
		Payload: map[string]any{"path": "a.txt"},
	})
	require.NoError(t, err)
	require.Empty(t, readRes.Error)

	editRes, err := execs[workspace.EditFile].Execute(ctx, runtime.ToolCallMeta{}, planner.ToolRequest{
		Name: workspace.EditFile,
		Payload: map[string]any{
			"path":       "a.txt",
			"old_string": "world",
			"new_string": "there",
		},
	})
	require.NoError(t, err)
	require.Empty(t, editRes.Error)

	content, err := os.ReadFile(filepath.Join(ws.Root(), "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello there\n", string(content))
}

func TestReadFileRejectsPayloadMissingRequiredField(t *testing.T) {
	ws := newWorkspace(t, workspace.Config{})
	execs := ws.Executors()
	ctx := context.Background()

	res, err := execs[workspace.ReadFile].Execute(ctx, runtime.ToolCallMeta{}, planner.ToolRequest{
		Name:    workspace.ReadFile,
		Payload: map[string]any{"encoding": "utf-8"},
	})
	require.NoError(t, err, "a bad tool call must return an error result, not a thrown error")
	require.NotEmpty(t, res.Error)
}

func TestReadFileRejectsPayloadWithWrongFieldType(t *testing.T) {
	ws := newWorkspace(t, workspace.Config{})
	execs := ws.Executors()
	ctx := context.Background()

	res, err := execs[workspace.ReadFile].Execute(ctx, runtime.ToolCallMeta{}, planner.ToolRequest{
		Name:    workspace.ReadFile,
		Payload: map[string]any{"path": "a.txt", "offset": "not-a-number"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Error)
}

func TestWriteFileRequiresReadBeforeOverwrite(t *testing.T) {
	ws := newWorkspace(t, workspace.Config{RequireReadBeforeWrite: true})
	execs := ws.Executors()
	ctx := context.Background()

	_, err := execs[workspace.WriteFile].Execute(ctx, runtime.ToolCallMeta{}, planner.ToolRequest{
		Name:    workspace.WriteFile,
		Payload: map[string]any{"path": "b.txt", "content": "v1"},
	})
	require.NoError(t, err)

	res, err := execs[workspace.WriteFile].Execute(ctx, runtime.ToolCallMeta{}, planner.ToolRequest{
		Name:    workspace.WriteFile,
		Payload: map[string]any{"path": "b.txt", "content": "v2", "overwrite": true},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Error, "expected read-before-write to block the overwrite")
}

func TestEditFileRejectsAmbiguousMatch(t *testing.T) {
	ws := newWorkspace(t, workspace.Config{})
	execs := ws.Executors()
	ctx := context.Background()

	_, err := execs[workspace.WriteFile].Execute(ctx, runtime.ToolCallMeta{}, planner.ToolRequest{
		Name:    workspace.WriteFile,
		Payload: map[string]any{"path": "dup.txt", "content": "foo foo foo"},
	})
	require.NoError(t, err)

	res, err := execs[workspace.EditFile].Execute(ctx, runtime.ToolCallMeta{}, planner.ToolRequest{
		Name: workspace.EditFile,
		Payload: map[string]any{
			"path":       "dup.txt",
			"old_string": "foo",
			"new_string": "bar",
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Error)
}

func TestListFilesReportsSummary(t *testing.T) {
	ws := newWorkspace(t, workspace.Config{})
	require.NoError(t, os.MkdirAll(filepath.Join(ws.Root(), "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ws.Root(), "sub", "x.go"), []byte("package x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ws.Root(), "y.txt"), []byte("y"), 0o644))

	execs := ws.Executors()
	res, err := execs[workspace.ListFiles].Execute(context.Background(), runtime.ToolCallMeta{}, planner.ToolRequest{
		Name:    workspace.ListFiles,
		Payload: map[string]any{"path": "."},
	})
	require.NoError(t, err)
	require.Empty(t, res.Error)
}

func TestGrepFindsMatches(t *testing.T) {
	ws := newWorkspace(t, workspace.Config{})
	require.NoError(t, os.WriteFile(filepath.Join(ws.Root(), "f.go"), []byte("package x\nfunc Foo() {}\n"), 0o644))

	execs := ws.Executors()
	res, err := execs[workspace.Grep].Execute(context.Background(), runtime.ToolCallMeta{}, planner.ToolRequest{
		Name:    workspace.Grep,
		Payload: map[string]any{"pattern": "func Foo"},
	})
	require.NoError(t, err)
	require.Empty(t, res.Error)
}

func TestGrepRejectsOverlongPattern(t *testing.T) {
	ws := newWorkspace(t, workspace.Config{})
	execs := ws.Executors()

	pattern := make([]byte, 1000)
	for i := range pattern {
		pattern[i] = 'a'
	}
	res, err := execs[workspace.Grep].Execute(context.Background(), runtime.ToolCallMeta{}, planner.ToolRequest{
		Name:    workspace.Grep,
		Payload: map[string]any{"pattern": string(pattern)},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Error)
}

func TestExecuteCommandForeground(t *testing.T) {
	ws := newWorkspace(t, workspace.Config{})
	execs := ws.Executors()

	res, err := execs[workspace.ExecuteCommand].Execute(context.Background(), runtime.ToolCallMeta{}, planner.ToolRequest{
		Name:    workspace.ExecuteCommand,
		Payload: map[string]any{"command": "echo hi"},
	})
	require.NoError(t, err)
	require.Empty(t, res.Error)
}

func TestExecuteCommandBackgroundAndKill(t *testing.T) {
	ws := newWorkspace(t, workspace.Config{})
	execs := ws.Executors()
	ctx := context.Background()

	startRes, err := execs[workspace.ExecuteCommand].Execute(ctx, runtime.ToolCallMeta{}, planner.ToolRequest{
		Name:    workspace.ExecuteCommand,
		Payload: map[string]any{"command": "sleep 5", "background": true},
	})
	require.NoError(t, err)
	require.Empty(t, startRes.Error)

	raw, err := json.Marshal(startRes.Result)
	require.NoError(t, err)
	var decoded struct {
		PID string `json:"pid"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.NotEmpty(t, decoded.PID)

	killRes, err := execs[workspace.KillProcess].Execute(ctx, runtime.ToolCallMeta{}, planner.ToolRequest{
		Name:    workspace.KillProcess,
		Payload: map[string]any{"pid": decoded.PID},
	})
	require.NoError(t, err)
	require.Empty(t, killRes.Error)
}

func TestDeleteRefusesNonRecursiveDirectory(t *testing.T) {
	ws := newWorkspace(t, workspace.Config{})
	require.NoError(t, os.MkdirAll(filepath.Join(ws.Root(), "d"), 0o755))

	execs := ws.Executors()
	res, err := execs[workspace.Delete].Execute(context.Background(), runtime.ToolCallMeta{}, planner.ToolRequest{
		Name:    workspace.Delete,
		Payload: map[string]any{"path": "d"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Error)
}

func TestExecuteCommandTailZeroMeansNoLineLimit(t *testing.T) {
	ws := newWorkspace(t, workspace.Config{})
	execs := ws.Executors()

	zero := 0
	res, err := execs[workspace.ExecuteCommand].Execute(context.Background(), runtime.ToolCallMeta{}, planner.ToolRequest{
		Name:    workspace.ExecuteCommand,
		Payload: map[string]any{"command": "seq 1 500", "tail": zero},
	})
	require.NoError(t, err)
	require.Empty(t, res.Error)

	raw, err := json.Marshal(res.Result)
	require.NoError(t, err)
	var decoded struct {
		Stdout    string `json:"stdout"`
		Truncated bool   `json:"truncated"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, 500, strings.Count(strings.TrimRight(decoded.Stdout, "\n"), "\n")+1)
	require.False(t, decoded.Truncated)
}

func TestExecuteCommandTailDefaultCapsAtTwoHundredLines(t *testing.T) {
	ws := newWorkspace(t, workspace.Config{})
	execs := ws.Executors()

	res, err := execs[workspace.ExecuteCommand].Execute(context.Background(), runtime.ToolCallMeta{}, planner.ToolRequest{
		Name:    workspace.ExecuteCommand,
		Payload: map[string]any{"command": "seq 1 500"},
	})
	require.NoError(t, err)
	require.Empty(t, res.Error)

	raw, err := json.Marshal(res.Result)
	require.NoError(t, err)
	var decoded struct {
		Stdout    string `json:"stdout"`
		Truncated bool   `json:"truncated"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, 200, strings.Count(strings.TrimRight(decoded.Stdout, "\n"), "\n")+1)
	require.True(t, decoded.Truncated)
}

func TestMkdirCreatesNestedDirectories(t *testing.T) {
	ws := newWorkspace(t, workspace.Config{})
	execs := ws.Executors()
	res, err := execs[workspace.Mkdir].Execute(context.Background(), runtime.ToolCallMeta{}, planner.ToolRequest{
		Name:    workspace.Mkdir,
		Payload: map[string]any{"path": "a/b/c"},
	})
	require.NoError(t, err)
	require.Empty(t, res.Error)
	info, err := os.Stat(filepath.Join(ws.Root(), "a", "b", "c"))
	require.NoError(t, err)
	require.True(t, info.IsDir())
}
