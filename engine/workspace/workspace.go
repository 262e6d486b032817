package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/time/rate"

	"durableagent.dev/engine/planner"
	"durableagent.dev/engine/runtime"
	"durableagent.dev/engine/tools"
	"durableagent.dev/engine/toolerrors"
	"durableagent.dev/engine/workspace/lock"
)

// Tool identifiers, the canonical `mastra_workspace_*` wire names.
const (
	ReadFile       tools.Ident = "mastra_workspace_read_file"
	WriteFile      tools.Ident = "mastra_workspace_write_file"
	EditFile       tools.Ident = "mastra_workspace_edit_file"
	ListFiles      tools.Ident = "mastra_workspace_list_files"
	Delete         tools.Ident = "mastra_workspace_delete"
	Mkdir          tools.Ident = "mastra_workspace_mkdir"
	Grep           tools.Ident = "mastra_workspace_grep"
	ExecuteCommand tools.Ident = "mastra_workspace_execute_command"
	GetProcessOutput tools.Ident = "mastra_workspace_get_process_output"
	KillProcess    tools.Ident = "mastra_workspace_kill_process"
)

// Workspace roots the filesystem and process tool surface at one directory.
// A single instance owns its Config, FileReadTracker, edit lock manager, and
// background process table; all tool wrappers it creates mutate only that
// instance's state.
type Workspace struct {
	root       string
	cfg        Config
	tracker    *FileReadTracker
	editLocks  *lock.Manager
	procs      *processTable
	cmdLimiter *rate.Limiter
}

// New constructs a Workspace rooted at root. If cfg.Enabled is false, the
// Workspace still builds (so callers can inspect it) but ToolSpecs and
// Executors both return empty sets, so no tools are registered.
func New(root string, cfg Config) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolve root: %w", err)
	}
	var limiter *rate.Limiter
	if cfg.CommandsPerSecond > 0 {
		burst := cfg.CommandBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.CommandsPerSecond), burst)
	}
	return &Workspace{
		root:       abs,
		cfg:        cfg,
		tracker:    NewFileReadTracker(),
		editLocks:  lock.New(cfg.LockTimeout),
		procs:      newProcessTable(),
		cmdLimiter: limiter,
	}, nil
}

// Root returns the absolute directory this Workspace is rooted at.
func (w *Workspace) Root() string { return w.root }

// resolvePath joins a possibly-relative tool-supplied path against the
// workspace root. Absolute paths are used as-is, so agents that already
// track absolute paths (as surfaced by list_files/grep) keep working.
func (w *Workspace) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(w.root, p))
}

// ToolSpecs returns the metadata for every tool this Workspace registers,
// or nil if cfg.Enabled is false. ast_edit is never included: it depends on
// a native TS/JS/HTML/CSS grammar library that is not part of this module's
// dependency set, so it is omitted from the registry entirely rather than
// registered and failing at call time.
func (w *Workspace) ToolSpecs() []tools.ToolSpec {
	if !w.cfg.Enabled {
		return nil
	}
	readFile := w.spec(ReadFile, "Read a UTF-8 or binary file, optionally by line range.", readFileSchema)
	readFile.BoundedResult = true
	grep := w.spec(Grep, "Search files by regular expression.", grepSchema)
	grep.BoundedResult = true

	specs := []tools.ToolSpec{
		readFile,
		w.spec(WriteFile, "Write text to a file, creating parent directories as needed.", writeFileSchema),
		w.spec(EditFile, "Replace an exact text match in a file.", editFileSchema),
		w.spec(ListFiles, "List files and directories in a tree, with glob filtering.", listFilesSchema),
		w.spec(Delete, "Delete a file or, with recursive, a directory.", deleteSchema),
		w.spec(Mkdir, "Create a directory, recursively by default.", mkdirSchema),
		grep,
		w.spec(ExecuteCommand, "Run a shell command in the workspace, foreground or background. Relative paths and cwd are resolved against "+w.root+".", executeCommandSchema),
		w.spec(GetProcessOutput, "Fetch accumulated output for a background process.", getProcessOutputSchema),
		w.spec(KillProcess, "Send SIGKILL to a background process and report its last output.", killProcessSchema),
	}
	return specs
}

func (w *Workspace) spec(id tools.Ident, description string, schema []byte) tools.ToolSpec {
	s := tools.ToolSpec{
		Name:        id,
		Toolset:     "mastra_workspace",
		Description: description,
		Payload:     tools.TypeSpec{Name: string(id) + "_payload", Schema: schema, Codec: tools.AnyJSONCodec},
		Result:      tools.TypeSpec{Name: string(id) + "_result", Codec: tools.AnyJSONCodec},
	}
	if w.cfg.RequireApproval {
		s.Confirmation = &tools.ConfirmationSpec{
			PromptTemplate: fmt.Sprintf("Allow %s to run with the given arguments?", id),
		}
	}
	return s
}

// Executors returns a ToolCallExecutor for every tool ToolSpecs advertises,
// keyed by tool identifier, so a runtime can register them alongside its
// other tools.
func (w *Workspace) Executors() map[tools.Ident]runtime.ToolCallExecutor {
	if !w.cfg.Enabled {
		return nil
	}
	return map[tools.Ident]runtime.ToolCallExecutor{
		ReadFile:         runtime.ToolCallExecutorFunc(w.executeReadFile),
		WriteFile:        runtime.ToolCallExecutorFunc(w.executeWriteFile),
		EditFile:         runtime.ToolCallExecutorFunc(w.executeEditFile),
		ListFiles:        runtime.ToolCallExecutorFunc(w.executeListFiles),
		Delete:           runtime.ToolCallExecutorFunc(w.executeDelete),
		Mkdir:            runtime.ToolCallExecutorFunc(w.executeMkdir),
		Grep:             runtime.ToolCallExecutorFunc(w.executeGrep),
		ExecuteCommand:   runtime.ToolCallExecutorFunc(w.executeExecuteCommand),
		GetProcessOutput: runtime.ToolCallExecutorFunc(w.executeGetProcessOutput),
		KillProcess:      runtime.ToolCallExecutorFunc(w.executeKillProcess),
	}
}

// ToolsetRegistration adapts this Workspace's tools into the shape
// runtime.New's RuntimeOption(s) register toolsets with: a single Execute
// entry point dispatching by tool name, plus the advertised specs. It
// bridges the per-tool ToolCallExecutor convention used by Executors()
// (keyed by tools.Ident, taking an explicit ToolCallMeta) onto
// ToolsetRegistration.Execute's convention (a single function taking
// *planner.ToolRequest, whose RunID/SessionID/TurnID/ToolCallID fields
// already carry what ToolCallMeta needs).
//
// Workspace tools do real filesystem and process I/O, so Inline is false:
// they run as ordinary activities like other non-agent toolsets, not
// inline in the workflow goroutine.
func (w *Workspace) ToolsetRegistration() runtime.ToolsetRegistration {
	execs := w.Executors()
	return runtime.ToolsetRegistration{
		Name:        "mastra_workspace",
		Description: "Filesystem and process tools scoped to one workspace directory.",
		Specs:       w.ToolSpecs(),
		Execute: func(ctx context.Context, call *planner.ToolRequest) (*planner.ToolResult, error) {
			exec, ok := execs[call.Name]
			if !ok {
				return nil, fmt.Errorf("workspace: no executor registered for tool %q", call.Name)
			}
			meta := runtime.ToolCallMeta{
				RunID:            call.RunID,
				SessionID:        call.SessionID,
				TurnID:           call.TurnID,
				ToolCallID:       call.ToolCallID,
				ParentToolCallID: call.ParentToolCallID,
			}
			res, err := exec.Execute(ctx, meta, *call)
			if err != nil {
				return nil, err
			}
			return &res, nil
		},
	}
}

// decodePayload validates call.Payload against the tool's declared JSON
// schema, then re-marshals it into dst, a pointer to a concrete payload
// struct for one tool. Validation failures and decode failures both return
// a plain error for the caller to wrap into a ToolResult.Error via
// toolError, never a thrown error: one malformed tool call must not crash
// the agentic loop.
func decodePayload(call planner.ToolRequest, schema []byte, dst any) error {
	raw, err := json.Marshal(call.Payload)
	if err != nil {
		return fmt.Errorf("marshal tool payload: %w", err)
	}
	if err := validatePayloadAgainstSchema(raw, schema); err != nil {
		return fmt.Errorf("invalid arguments for %s: %w", call.Name, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode tool payload: %w", err)
	}
	return nil
}

// validatePayloadAgainstSchema compiles schemaBytes as a JSON Schema and
// validates payloadJSON against it. A nil/empty schema is treated as
// permissive (nothing to validate against).
func validatePayloadAgainstSchema(payloadJSON, schemaBytes []byte) error {
	if len(schemaBytes) == 0 {
		return nil
	}
	var schemaDoc any
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return fmt.Errorf("unmarshal schema: %w", err)
	}
	var payloadDoc any
	if err := json.Unmarshal(payloadJSON, &payloadDoc); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	return schema.Validate(payloadDoc)
}

// result wraps a successful tool outcome into a planner.ToolResult.
func result(call planner.ToolRequest, value any) (planner.ToolResult, error) {
	return planner.ToolResult{Name: call.Name, Result: value, ToolCallID: call.ToolCallID}, nil
}

// toolError wraps a failed tool outcome into a planner.ToolResult carrying a
// structured error, following the runtime's convention of surfacing tool
// failures to the planner rather than failing the workflow.
func toolError(call planner.ToolRequest, err error) (planner.ToolResult, error) {
	te := toolerrors.NewWithCause(err.Error(), err)
	return planner.ToolResult{Name: call.Name, ToolCallID: call.ToolCallID, Error: te}, nil
}

var errReadBeforeWrite = errors.New("workspace: file must be read before it can be written")
