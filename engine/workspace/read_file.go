package workspace

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	agent "durableagent.dev/engine"
	"durableagent.dev/engine/planner"
	"durableagent.dev/engine/runtime"
)

var readFileSchema = []byte(`{
  "type": "object",
  "required": ["path"],
  "properties": {
    "path": {"type": "string"},
    "encoding": {"type": "string", "enum": ["utf-8", "utf8", "base64", "hex", "binary"]},
    "offset": {"type": "integer", "minimum": 0},
    "limit": {"type": "integer", "minimum": 1},
    "lineNumbers": {"type": "boolean"}
  }
}`)

type readFilePayload struct {
	Path        string `json:"path"`
	Encoding    string `json:"encoding,omitempty"`
	Offset      int    `json:"offset,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	LineNumbers bool   `json:"lineNumbers,omitempty"`
}

// readFileResult implements agent.BoundedResult so runtimes and services can
// surface read_file's start-of-content truncation without inspecting its
// fields directly.
type readFileResult struct {
	Path       string `json:"path"`
	Content    string `json:"content,omitempty"`
	Encoding   string `json:"encoding"`
	Binary     bool   `json:"binary,omitempty"`
	Size       int64  `json:"size,omitempty"`
	TotalLines int    `json:"totalLines,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`
}

func (r readFileResult) Bounds() agent.Bounds {
	b := agent.Bounds{Returned: r.TotalLines, Truncated: r.Truncated}
	if r.Truncated {
		b.RefinementHint = "use offset/limit to read a narrower line range"
	}
	return b
}

func (w *Workspace) executeReadFile(ctx context.Context, meta runtime.ToolCallMeta, call planner.ToolRequest) (planner.ToolResult, error) {
	var in readFilePayload
	if err := decodePayload(call, readFileSchema, &in); err != nil {
		return toolError(call, err)
	}
	path := w.resolvePath(in.Path)

	info, err := os.Stat(path)
	if err != nil {
		return toolError(call, fmt.Errorf("stat %s: %w", in.Path, err))
	}
	if info.IsDir() {
		return toolError(call, fmt.Errorf("%s is a directory", in.Path))
	}

	switch strings.ToLower(in.Encoding) {
	case "binary":
		w.tracker.MarkRead(path, info.ModTime())
		return result(call, readFileResult{Path: in.Path, Encoding: "binary", Binary: true, Size: info.Size()})
	case "base64", "hex":
		raw, err := os.ReadFile(path)
		if err != nil {
			return toolError(call, err)
		}
		w.tracker.MarkRead(path, info.ModTime())
		encoded := base64.StdEncoding.EncodeToString(raw)
		if strings.ToLower(in.Encoding) == "hex" {
			encoded = hex.EncodeToString(raw)
		}
		return result(call, readFileResult{Path: in.Path, Encoding: in.Encoding, Content: encoded, Size: info.Size()})
	default:
		raw, err := os.ReadFile(path)
		if err != nil {
			return toolError(call, err)
		}
		w.tracker.MarkRead(path, info.ModTime())

		lines := strings.Split(string(raw), "\n")
		total := len(lines)
		start, end := lineRange(total, in.Offset, in.Limit)
		selected := lines[start:end]
		if in.LineNumbers {
			for i, line := range selected {
				selected[i] = fmt.Sprintf("%6d→%s", start+i+1, line)
			}
		}
		content := strings.Join(selected, "\n")
		truncated := false
		if in.Limit == 0 {
			content, truncated = truncateHead(content, w.cfg.maxOutputTokens())
		}
		return result(call, readFileResult{
			Path:       in.Path,
			Content:    content,
			Encoding:   "utf-8",
			TotalLines: total,
			Truncated:  truncated,
		})
	}
}

// lineRange converts a 0-indexed offset and a line count limit into a
// [start, end) slice range over total lines, clamped to bounds.
func lineRange(total, offset, limit int) (start, end int) {
	start = offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end = total
	if limit > 0 && start+limit < total {
		end = start + limit
	}
	return start, end
}
