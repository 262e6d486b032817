package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"durableagent.dev/engine/planner"
	"durableagent.dev/engine/runtime"
)

var listFilesSchema = []byte(`{
  "type": "object",
  "required": ["path"],
  "properties": {
    "path": {"type": "string"},
    "maxDepth": {"type": "integer", "minimum": 1},
    "pattern": {},
    "exclude": {"type": "array", "items": {"type": "string"}},
    "extension": {"type": "array", "items": {"type": "string"}},
    "dirsOnly": {"type": "boolean"},
    "showHidden": {"type": "boolean"}
  }
}`)

type listFilesPayload struct {
	Path       string          `json:"path"`
	MaxDepth   int             `json:"maxDepth,omitempty"`
	Pattern    json.RawMessage `json:"pattern,omitempty"`
	Exclude    []string        `json:"exclude,omitempty"`
	Extension  []string        `json:"extension,omitempty"`
	DirsOnly   bool            `json:"dirsOnly,omitempty"`
	ShowHidden bool            `json:"showHidden,omitempty"`
}

// patterns normalizes Pattern, which may be supplied as a single string or
// an array of strings, into a slice.
func (p listFilesPayload) patterns() ([]string, error) {
	if len(p.Pattern) == 0 {
		return nil, nil
	}
	var single string
	if err := json.Unmarshal(p.Pattern, &single); err == nil {
		return []string{single}, nil
	}
	var many []string
	if err := json.Unmarshal(p.Pattern, &many); err != nil {
		return nil, fmt.Errorf("pattern must be a string or array of strings: %w", err)
	}
	return many, nil
}

type fileEntry struct {
	Path  string `json:"path"`
	Dir   bool   `json:"dir"`
	Depth int    `json:"depth"`
}

type listFilesResult struct {
	Entries          []fileEntry `json:"entries"`
	Summary          string      `json:"summary"`
	DirCount         int         `json:"dirCount"`
	FileCount        int         `json:"fileCount"`
	TruncatedAtDepth bool        `json:"truncatedAtDepth,omitempty"`
}

func (w *Workspace) executeListFiles(ctx context.Context, meta runtime.ToolCallMeta, call planner.ToolRequest) (planner.ToolResult, error) {
	var in listFilesPayload
	if err := decodePayload(call, listFilesSchema, &in); err != nil {
		return toolError(call, err)
	}
	patterns, err := in.patterns()
	if err != nil {
		return toolError(call, err)
	}
	maxDepth := in.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 3
	}
	root := w.resolvePath(in.Path)

	extSet := make(map[string]struct{}, len(in.Extension))
	for _, e := range in.Extension {
		extSet[strings.ToLower(strings.TrimPrefix(e, "."))] = struct{}{}
	}

	var entries []fileEntry
	dirCount, fileCount := 0, 0
	truncated := false

	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		items, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		sort.Slice(items, func(i, j int) bool { return items[i].Name() < items[j].Name() })
		for _, item := range items {
			name := item.Name()
			if !in.ShowHidden && strings.HasPrefix(name, ".") {
				continue
			}
			full := filepath.Join(dir, name)
			rel, _ := filepath.Rel(root, full)
			rel = filepath.ToSlash(rel)

			if item.IsDir() {
				if len(in.Exclude) > 0 {
					if excluded, _ := matchAny(in.Exclude, rel); excluded {
						continue
					}
				}
				entries = append(entries, fileEntry{Path: rel, Dir: true, Depth: depth})
				dirCount++
				if depth+1 >= maxDepth {
					truncated = true
					continue
				}
				if err := walk(full, depth+1); err != nil {
					return err
				}
				continue
			}
			if in.DirsOnly {
				continue
			}
			if len(extSet) > 0 {
				if _, ok := extSet[strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))]; !ok {
					continue
				}
			}
			if len(in.Exclude) > 0 {
				if excluded, _ := matchAny(in.Exclude, rel); excluded {
					continue
				}
			}
			if len(patterns) > 0 {
				matched, err := matchAny(patterns, rel)
				if err != nil {
					return err
				}
				if !matched {
					continue
				}
			}
			entries = append(entries, fileEntry{Path: rel, Dir: false, Depth: depth})
			fileCount++
		}
		return nil
	}

	if err := walk(root, 0); err != nil {
		return toolError(call, fmt.Errorf("list %s: %w", in.Path, err))
	}

	return result(call, listFilesResult{
		Entries:          entries,
		Summary:          fmt.Sprintf("%d directories, %d files", dirCount, fileCount),
		DirCount:         dirCount,
		FileCount:        fileCount,
		TruncatedAtDepth: truncated,
	})
}
