package workspace

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	agent "durableagent.dev/engine"
	"durableagent.dev/engine/planner"
	"durableagent.dev/engine/runtime"
)

var grepSchema = []byte(`{
  "type": "object",
  "required": ["pattern"],
  "properties": {
    "pattern": {"type": "string", "maxLength": 999},
    "path": {"type": "string"},
    "maxCount": {"type": "integer", "minimum": 1},
    "contextLines": {"type": "integer", "minimum": 0},
    "caseSensitive": {"type": "boolean", "default": true},
    "includeHidden": {"type": "boolean"}
  }
}`)

const (
	maxGrepPatternLen = 1000
	maxGrepMatches    = 1000
	maxGrepChars      = 30000
)

type grepPayload struct {
	Pattern       string `json:"pattern"`
	Path          string `json:"path,omitempty"`
	MaxCount      int    `json:"maxCount,omitempty"`
	ContextLines  int    `json:"contextLines,omitempty"`
	CaseSensitive *bool  `json:"caseSensitive,omitempty"`
	IncludeHidden bool   `json:"includeHidden,omitempty"`
}

func (p grepPayload) caseSensitive() bool {
	return p.CaseSensitive == nil || *p.CaseSensitive
}

type grepMatch struct {
	Path    string   `json:"path"`
	Line    int      `json:"line"`
	Col     int      `json:"col"`
	Text    string   `json:"text"`
	Context []string `json:"context,omitempty"`
}

type grepResult struct {
	Matches          []grepMatch `json:"matches"`
	TotalMatches     int         `json:"totalMatches"`
	Truncated        bool        `json:"truncated,omitempty"`
	TruncationReason string      `json:"truncationReason,omitempty"`
}

func (r grepResult) Bounds() agent.Bounds {
	returned := len(r.Matches)
	total := r.TotalMatches
	return agent.Bounds{Returned: returned, Total: &total, Truncated: r.Truncated, RefinementHint: r.TruncationReason}
}

func (w *Workspace) executeGrep(ctx context.Context, meta runtime.ToolCallMeta, call planner.ToolRequest) (planner.ToolResult, error) {
	var in grepPayload
	if err := decodePayload(call, grepSchema, &in); err != nil {
		return toolError(call, err)
	}
	if len(in.Pattern) >= maxGrepPatternLen {
		return toolError(call, fmt.Errorf("pattern too long (%d chars, max %d)", len(in.Pattern), maxGrepPatternLen-1))
	}
	pattern := in.Pattern
	if !in.caseSensitive() {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return toolError(call, fmt.Errorf("invalid pattern: %w", err))
	}

	scope := in.Path
	if scope == "" {
		scope = "."
	}
	root := w.resolvePath(scope)

	var matches []grepMatch
	totalMatches := 0
	charBudget := maxGrepChars
	truncated := false
	reason := ""

	err = filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if !in.IncludeHidden && fi.Name() != "." && strings.HasPrefix(fi.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !in.IncludeHidden && strings.HasPrefix(fi.Name(), ".") {
			return nil
		}
		if totalMatches >= maxGrepMatches || charBudget <= 0 {
			return nil
		}
		rel, _ := filepath.Rel(w.root, path)
		fileMatches := 0
		lines, readErr := readLines(path)
		if readErr != nil {
			return nil
		}
		for i, line := range lines {
			if in.MaxCount > 0 && fileMatches >= in.MaxCount {
				break
			}
			loc := re.FindStringIndex(line)
			if loc == nil {
				continue
			}
			totalMatches++
			fileMatches++
			m := grepMatch{Path: filepath.ToSlash(rel), Line: i + 1, Col: loc[0] + 1, Text: line}
			if in.ContextLines > 0 {
				m.Context = contextAround(lines, i, in.ContextLines)
			}
			charBudget -= len(line)
			matches = append(matches, m)
			if totalMatches >= maxGrepMatches {
				truncated = true
				reason = "match cap reached"
				break
			}
			if charBudget <= 0 {
				truncated = true
				reason = "output character cap reached"
				break
			}
		}
		return nil
	})
	if err != nil {
		return toolError(call, fmt.Errorf("grep %s: %w", scope, err))
	}

	return result(call, grepResult{Matches: matches, TotalMatches: totalMatches, Truncated: truncated, TruncationReason: reason})
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

func contextAround(lines []string, idx, n int) []string {
	lo := idx - n
	if lo < 0 {
		lo = 0
	}
	hi := idx + n + 1
	if hi > len(lines) {
		hi = len(lines)
	}
	return append([]string(nil), lines[lo:hi]...)
}
