package workspace

import (
	"context"
	"fmt"
	"os"
	"strings"

	"durableagent.dev/engine/planner"
	"durableagent.dev/engine/runtime"
	"durableagent.dev/engine/workspace/lock"
)

var editFileSchema = []byte(`{
  "type": "object",
  "required": ["path", "old_string", "new_string"],
  "properties": {
    "path": {"type": "string"},
    "old_string": {"type": "string"},
    "new_string": {"type": "string"},
    "replace_all": {"type": "boolean"}
  }
}`)

type editFilePayload struct {
	Path       string `json:"path"`
	OldString  string `json:"old_string"`
	NewString  string `json:"new_string"`
	ReplaceAll bool   `json:"replace_all,omitempty"`
}

type editFileResult struct {
	Path           string `json:"path"`
	Replacements   int    `json:"replacements"`
}

func (w *Workspace) executeEditFile(ctx context.Context, meta runtime.ToolCallMeta, call planner.ToolRequest) (planner.ToolResult, error) {
	var in editFilePayload
	if err := decodePayload(call, editFileSchema, &in); err != nil {
		return toolError(call, err)
	}
	path := w.resolvePath(in.Path)

	res, err := lock.WithLock(ctx, w.editLocks, path, w.cfg.LockTimeout, func(ctx context.Context) (editFileResult, error) {
		return w.applyEdit(path, in)
	})
	if err != nil {
		return toolError(call, err)
	}
	res.Path = in.Path
	return result(call, res)
}

func (w *Workspace) applyEdit(path string, in editFilePayload) (editFileResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return editFileResult{}, fmt.Errorf("stat %s: %w", in.Path, err)
	}
	if w.cfg.RequireReadBeforeWrite && !w.tracker.HasReadSince(path, info.ModTime()) {
		return editFileResult{}, errReadBeforeWrite
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return editFileResult{}, fmt.Errorf("read %s: %w", in.Path, err)
	}
	content := string(raw)

	count := strings.Count(content, in.OldString)
	if count == 0 {
		return editFileResult{}, fmt.Errorf("old_string not found in %s", in.Path)
	}
	if count > 1 && !in.ReplaceAll {
		return editFileResult{}, fmt.Errorf("old_string is not unique in %s (%d matches); set replace_all or narrow the match", in.Path, count)
	}

	var updated string
	replacements := count
	if in.ReplaceAll {
		updated = strings.ReplaceAll(content, in.OldString, in.NewString)
	} else {
		updated = strings.Replace(content, in.OldString, in.NewString, 1)
		replacements = 1
	}

	if err := os.WriteFile(path, []byte(updated), info.Mode()); err != nil {
		return editFileResult{}, fmt.Errorf("write %s: %w", in.Path, err)
	}
	if newInfo, err := os.Stat(path); err == nil {
		w.tracker.MarkRead(path, newInfo.ModTime())
	}
	return editFileResult{Replacements: replacements}, nil
}
