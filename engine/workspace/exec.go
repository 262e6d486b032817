package workspace

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"durableagent.dev/engine/planner"
	"durableagent.dev/engine/runtime"
)

var executeCommandSchema = []byte(`{
  "type": "object",
  "required": ["command"],
  "properties": {
    "command": {"type": "string"},
    "cwd": {"type": "string"},
    "timeout": {"type": "integer", "minimum": 1},
    "background": {"type": "boolean"},
    "tail": {"type": "integer"}
  }
}`)

var getProcessOutputSchema = []byte(`{
  "type": "object",
  "required": ["pid"],
  "properties": {"pid": {"type": "string"}}
}`)

var killProcessSchema = []byte(`{
  "type": "object",
  "required": ["pid"],
  "properties": {"pid": {"type": "string"}}
}`)

const (
	maxOutputLines = 200
	maxOutputBytes = 30 * 1024
)

var tailPipePattern = regexp.MustCompile(`\|\s*tail\s+(-n\s*)?-?(\d+)\s*$`)

type executeCommandPayload struct {
	Command    string `json:"command"`
	Cwd        string `json:"cwd,omitempty"`
	TimeoutMs  int    `json:"timeout,omitempty"`
	Background bool   `json:"background,omitempty"`
	// Tail overrides the default last-200-lines output policy. nil keeps the
	// default. 0 means no line limit at all. A negative value is taken as
	// its absolute value (kept for source compatibility: some callers send
	// -N meaning "last N lines").
	Tail *int `json:"tail,omitempty"`
}

type processOutputResult struct {
	PID       string `json:"pid,omitempty"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	ExitCode  *int   `json:"exitCode,omitempty"`
	Running   bool   `json:"running"`
	Truncated bool   `json:"truncated,omitempty"`
}

// process tracks one background command started by execute_command.
// Stdout/stderr accumulate in full in memory; GetProcessOutput applies the
// same tail policy as the foreground path at read time.
type process struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	stdout   bytes.Buffer
	stderr   bytes.Buffer
	exitCode *int
	cancel   context.CancelFunc
}

type processTable struct {
	mu    sync.Mutex
	procs map[string]*process
	next  int
}

func newProcessTable() *processTable {
	return &processTable{procs: make(map[string]*process)}
}

func (t *processTable) register(p *process) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	id := "bg-" + strconv.Itoa(t.next)
	t.procs[id] = p
	return id
}

func (t *processTable) get(id string) (*process, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.procs[id]
	return p, ok
}

// dismiss removes a process once its exit code has been observed by a
// caller, per the "PIDs are dismissed after their exit code is observed"
// contract.
func (t *processTable) dismiss(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.procs, id)
}

func (w *Workspace) executeExecuteCommand(ctx context.Context, meta runtime.ToolCallMeta, call planner.ToolRequest) (planner.ToolResult, error) {
	var in executeCommandPayload
	if err := decodePayload(call, executeCommandSchema, &in); err != nil {
		return toolError(call, err)
	}
	if w.cmdLimiter != nil {
		if err := w.cmdLimiter.Wait(ctx); err != nil {
			return toolError(call, fmt.Errorf("execute_command: rate limit wait: %w", err))
		}
	}
	cwd := w.root
	if in.Cwd != "" {
		cwd = w.resolvePath(in.Cwd)
	}

	if in.Background {
		pid, err := w.startBackground(in.Command, cwd)
		if err != nil {
			return toolError(call, err)
		}
		return result(call, processOutputResult{PID: pid, Running: true})
	}

	command := in.Command
	tailN := 0
	if m := tailPipePattern.FindStringSubmatch(command); m != nil {
		command = strings.TrimSpace(tailPipePattern.ReplaceAllString(command, ""))
		tailN, _ = strconv.Atoi(m[2])
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if in.TimeoutMs > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(in.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = cwd
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := cmd.ProcessState.ExitCode()

	outText := stdout.String()
	if tailN > 0 {
		outText = applyTail(outText, tailN)
	}
	outText, truncated := boundOutputTail(outText, in.Tail)

	res := processOutputResult{Stdout: outText, Stderr: stderr.String(), ExitCode: &exitCode, Truncated: truncated}
	if runErr != nil && cmd.ProcessState == nil {
		return toolError(call, fmt.Errorf("run command: %w", runErr))
	}
	return result(call, res)
}

func (w *Workspace) startBackground(command, cwd string) (string, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = cwd

	p := &process{cmd: cmd, cancel: cancel}
	cmd.Stdout = &p.stdout
	cmd.Stderr = &p.stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return "", fmt.Errorf("start command: %w", err)
	}
	id := w.procs.register(p)

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		defer p.mu.Unlock()
		code := 0
		if cmd.ProcessState != nil {
			code = cmd.ProcessState.ExitCode()
		} else if err != nil {
			code = -1
		}
		p.exitCode = &code
	}()

	return id, nil
}

func (w *Workspace) executeGetProcessOutput(ctx context.Context, meta runtime.ToolCallMeta, call planner.ToolRequest) (planner.ToolResult, error) {
	var in struct {
		PID string `json:"pid"`
	}
	if err := decodePayload(call, getProcessOutputSchema, &in); err != nil {
		return toolError(call, err)
	}
	p, ok := w.procs.get(in.PID)
	if !ok {
		return toolError(call, fmt.Errorf("unknown process %q", in.PID))
	}

	p.mu.Lock()
	stdout, truncated := boundOutput(p.stdout.String())
	stderr := p.stderr.String()
	exitCode := p.exitCode
	p.mu.Unlock()

	if exitCode != nil {
		w.procs.dismiss(in.PID)
	}
	return result(call, processOutputResult{
		PID:       in.PID,
		Stdout:    stdout,
		Stderr:    stderr,
		ExitCode:  exitCode,
		Running:   exitCode == nil,
		Truncated: truncated,
	})
}

func (w *Workspace) executeKillProcess(ctx context.Context, meta runtime.ToolCallMeta, call planner.ToolRequest) (planner.ToolResult, error) {
	var in struct {
		PID string `json:"pid"`
	}
	if err := decodePayload(call, killProcessSchema, &in); err != nil {
		return toolError(call, err)
	}
	p, ok := w.procs.get(in.PID)
	if !ok {
		return toolError(call, fmt.Errorf("unknown process %q", in.PID))
	}
	p.cancel()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}

	p.mu.Lock()
	stdout, truncated := boundOutput(p.stdout.String())
	stderr := p.stderr.String()
	p.mu.Unlock()

	return result(call, processOutputResult{PID: in.PID, Stdout: stdout, Stderr: stderr, Truncated: truncated})
}

// boundOutput applies the default tail/char-limit output policy: the last
// maxOutputLines lines, further capped to maxOutputBytes.
func boundOutput(s string) (string, bool) {
	return boundOutputTail(s, nil)
}

// boundOutputTail applies the tail/char-limit sandwich: tail runs first,
// then the char-limit cap is applied on top of whatever tail left, and is
// skipped entirely if tail already reduced the output below the byte cap.
// tail nil uses the maxOutputLines default.
func boundOutputTail(s string, tail *int) (string, bool) {
	n := maxOutputLines
	if tail != nil {
		n = *tail
	}

	out := applyTail(s, n)
	truncated := out != s
	if len(out) > maxOutputBytes {
		out = out[len(out)-maxOutputBytes:]
		truncated = true
	}
	return out, truncated
}

// applyTail returns the last n lines of s.
//
//   - n == 0 returns s unchanged: no line limit is applied.
//   - n > 0 returns the last n lines.
//   - n < 0 is treated as its absolute value.
//
// A trailing newline in s is not counted as an extra line and is preserved
// in the result.
func applyTail(s string, n int) string {
	if n == 0 {
		return s
	}
	if n < 0 {
		n = -n
	}

	trailingNewline := strings.HasSuffix(s, "\n")
	body := s
	if trailingNewline {
		body = body[:len(body)-1]
	}
	if body == "" {
		return s
	}

	lines := strings.Split(body, "\n")
	if len(lines) <= n {
		return s
	}
	out := strings.Join(lines[len(lines)-n:], "\n")
	if trailingNewline {
		out += "\n"
	}
	return out
}
