package workspace

import (
	"context"
	"fmt"
	"os"

	"durableagent.dev/engine/planner"
	"durableagent.dev/engine/runtime"
)

var deleteSchema = []byte(`{
  "type": "object",
  "required": ["path"],
  "properties": {
    "path": {"type": "string"},
    "recursive": {"type": "boolean"}
  }
}`)

type deletePayload struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive,omitempty"`
}

type deleteResult struct {
	Path string `json:"path"`
}

func (w *Workspace) executeDelete(ctx context.Context, meta runtime.ToolCallMeta, call planner.ToolRequest) (planner.ToolResult, error) {
	var in deletePayload
	if err := decodePayload(call, deleteSchema, &in); err != nil {
		return toolError(call, err)
	}
	path := w.resolvePath(in.Path)

	info, err := os.Stat(path)
	if err != nil {
		return toolError(call, fmt.Errorf("stat %s: %w", in.Path, err))
	}
	if info.Mode().Perm()&0o200 == 0 {
		return toolError(call, fmt.Errorf("%s is read-only", in.Path))
	}
	if info.IsDir() {
		if !in.Recursive {
			return toolError(call, fmt.Errorf("%s is a directory; set recursive to delete it", in.Path))
		}
		if err := os.RemoveAll(path); err != nil {
			return toolError(call, err)
		}
	} else if err := os.Remove(path); err != nil {
		return toolError(call, err)
	}
	return result(call, deleteResult{Path: in.Path})
}
