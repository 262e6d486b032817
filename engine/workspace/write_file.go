package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"durableagent.dev/engine/planner"
	"durableagent.dev/engine/runtime"
)

var writeFileSchema = []byte(`{
  "type": "object",
  "required": ["path", "content"],
  "properties": {
    "path": {"type": "string"},
    "content": {"type": "string"},
    "overwrite": {"type": "boolean"}
  }
}`)

type writeFilePayload struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Overwrite bool   `json:"overwrite,omitempty"`
}

type writeFileResult struct {
	Path       string `json:"path"`
	BytesWritten int  `json:"bytesWritten"`
	Created    bool   `json:"created"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

func (w *Workspace) executeWriteFile(ctx context.Context, meta runtime.ToolCallMeta, call planner.ToolRequest) (planner.ToolResult, error) {
	var in writeFilePayload
	if err := decodePayload(call, writeFileSchema, &in); err != nil {
		return toolError(call, err)
	}
	path := w.resolvePath(in.Path)

	if w.cfg.RequireReadBeforeWrite {
		if info, err := os.Stat(path); err == nil {
			if !w.tracker.HasReadSince(path, info.ModTime()) {
				return toolError(call, errReadBeforeWrite)
			}
		}
	}

	_, statErr := os.Stat(path)
	existed := statErr == nil
	if existed && !in.Overwrite {
		return toolError(call, fmt.Errorf("%s already exists; set overwrite to replace it", in.Path))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return toolError(call, fmt.Errorf("create parent directories: %w", err))
	}
	if err := os.WriteFile(path, []byte(in.Content), 0o644); err != nil {
		return toolError(call, fmt.Errorf("write %s: %w", in.Path, err))
	}

	return result(call, writeFileResult{
		Path:         in.Path,
		BytesWritten: len(in.Content),
		Created:      !existed,
		Diagnostics:  lspDiagnostics(path),
	})
}

// lspDiagnostics best-effort attaches diagnostic text for file types the
// workspace has a checker for. No LSP integration ships in this module; the
// hook exists so a caller can plug one in without changing write_file's
// contract. It always returns empty today.
func lspDiagnostics(path string) string {
	return ""
}
