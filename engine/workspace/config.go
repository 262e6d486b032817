// Package workspace implements the fixed filesystem and process tool
// surface an agent invokes as ordinary tools: file I/O, directory listing,
// text search, and foreground/background command execution, all rooted at
// one directory and gated by a shared Config.
package workspace

import (
	"fmt"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config gates which workspace tools are registered and how they behave.
type Config struct {
	// Enabled controls whether New registers any workspace tools at all.
	Enabled bool
	// RequireApproval marks every registered tool as requiring out-of-band
	// confirmation before execution (surfaced via tools.ConfirmationSpec).
	RequireApproval bool
	// RequireReadBeforeWrite enforces that write_file and edit_file only
	// operate on a path the same Workspace has previously read, and that the
	// file has not been modified on disk since that read.
	RequireReadBeforeWrite bool
	// MaxOutputTokens bounds read_file's token-budgeted output. Zero uses the
	// default of 3000.
	MaxOutputTokens int
	// LockTimeout bounds how long edit_file waits for another edit to the
	// same path to settle. Zero uses the lock package's default (no timeout).
	LockTimeout time.Duration `yaml:"lockTimeout"`
	// CommandsPerSecond caps the sustained rate of execute_command
	// invocations (a token-bucket rate, not a hard concurrency limit) so one
	// runaway agent loop cannot flood the host with foreground/background
	// process launches. Zero disables rate limiting.
	CommandsPerSecond float64 `yaml:"commandsPerSecond"`
	// CommandBurst is the token-bucket burst size paired with
	// CommandsPerSecond. Zero defaults to 1 when CommandsPerSecond is set.
	CommandBurst int `yaml:"commandBurst"`
}

// yamlConfig mirrors Config with yaml tags split out so the duration and
// rate fields round-trip through plain YAML scalars (the lock timeout as a
// float number of seconds, the command rate as a float) without requiring callers to hand-author
// time.Duration literals in config files.
type yamlConfig struct {
	Enabled                bool    `yaml:"enabled"`
	RequireApproval        bool    `yaml:"requireApproval"`
	RequireReadBeforeWrite bool    `yaml:"requireReadBeforeWrite"`
	MaxOutputTokens        int     `yaml:"maxOutputTokens"`
	LockTimeoutSeconds     float64 `yaml:"lockTimeoutSeconds"`
	CommandsPerSecond      float64 `yaml:"commandsPerSecond"`
	CommandBurst           int     `yaml:"commandBurst"`
}

// ParseConfigYAML decodes a workspace Config from YAML, matching the
// teacher's convention of loading runtime configuration from YAML documents
// (`integration_tests/framework/runner.go`'s `yaml.Unmarshal` use) rather
// than building Config literals by hand in deployment code.
func ParseConfigYAML(data []byte) (Config, error) {
	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return Config{}, fmt.Errorf("workspace: parse config yaml: %w", err)
	}
	return Config{
		Enabled:                y.Enabled,
		RequireApproval:        y.RequireApproval,
		RequireReadBeforeWrite: y.RequireReadBeforeWrite,
		MaxOutputTokens:        y.MaxOutputTokens,
		LockTimeout:            time.Duration(y.LockTimeoutSeconds * float64(time.Second)),
		CommandsPerSecond:      y.CommandsPerSecond,
		CommandBurst:           y.CommandBurst,
	}, nil
}

const defaultMaxOutputTokens = 3000

func (c Config) maxOutputTokens() int {
	if c.MaxOutputTokens > 0 {
		return c.MaxOutputTokens
	}
	return defaultMaxOutputTokens
}

// FileReadTracker records, per normalized path, the modification time
// observed the last time that path was read through this Workspace. Write
// tools consult it to enforce the read-before-write guarantee.
type FileReadTracker struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewFileReadTracker constructs an empty tracker.
func NewFileReadTracker() *FileReadTracker {
	return &FileReadTracker{seen: make(map[string]time.Time)}
}

// MarkRead records that path was read at modTime (the file's modification
// time as observed at read time).
func (t *FileReadTracker) MarkRead(path string, modTime time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[path] = modTime
}

// HasReadSince reports whether path was read at or after currentModTime,
// i.e. whether the reader's view of the file is not stale relative to the
// file's current on-disk state.
func (t *FileReadTracker) HasReadSince(path string, currentModTime time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.seen[path]
	if !ok {
		return false
	}
	return !last.Before(currentModTime)
}
