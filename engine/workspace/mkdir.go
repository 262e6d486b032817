package workspace

import (
	"context"
	"fmt"
	"os"

	"durableagent.dev/engine/planner"
	"durableagent.dev/engine/runtime"
)

var mkdirSchema = []byte(`{
  "type": "object",
  "required": ["path"],
  "properties": {
    "path": {"type": "string"},
    "recursive": {"type": "boolean", "default": true}
  }
}`)

type mkdirPayload struct {
	Path      string `json:"path"`
	Recursive *bool  `json:"recursive,omitempty"`
}

func (p mkdirPayload) recursive() bool {
	return p.Recursive == nil || *p.Recursive
}

type mkdirResult struct {
	Path string `json:"path"`
}

func (w *Workspace) executeMkdir(ctx context.Context, meta runtime.ToolCallMeta, call planner.ToolRequest) (planner.ToolResult, error) {
	var in mkdirPayload
	if err := decodePayload(call, mkdirSchema, &in); err != nil {
		return toolError(call, err)
	}
	path := w.resolvePath(in.Path)

	var err error
	if in.recursive() {
		err = os.MkdirAll(path, 0o755)
	} else {
		err = os.Mkdir(path, 0o755)
	}
	if err != nil {
		return toolError(call, fmt.Errorf("mkdir %s: %w", in.Path, err))
	}
	return result(call, mkdirResult{Path: in.Path})
}
