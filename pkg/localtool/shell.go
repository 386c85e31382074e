package localtool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// ShellArgs is the input shape for the shell tool.
type ShellArgs struct {
	Command string `json:"command" jsonschema:"required,description=Shell command line to execute"`
	Dir     string `json:"dir,omitempty" jsonschema:"description=Working directory"`
	Timeout int    `json:"timeout,omitempty" jsonschema:"description=Timeout in seconds, default 30"`
}

// ShellTool runs a command line through /bin/sh -c and returns its
// combined stdout/stderr.
type ShellTool struct {
	schema map[string]any
}

// NewShellTool constructs a shell tool.
func NewShellTool() *ShellTool {
	return &ShellTool{schema: SchemaOf(ShellArgs{})}
}

func (t *ShellTool) Name() string                { return "shell" }
func (t *ShellTool) Description() string         { return "Execute a shell command and return its output" }
func (t *ShellTool) InputSchema() map[string]any { return t.schema }

func (t *ShellTool) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	command, _ := args["command"].(string)
	if command == "" {
		return nil, fmt.Errorf("shell tool: command is required")
	}

	timeoutSeconds := 30
	if v, ok := args["timeout"].(float64); ok && v > 0 {
		timeoutSeconds = int(v)
	}

	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	if dir, ok := args["dir"].(string); ok && dir != "" {
		cmd.Dir = dir
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	result := map[string]any{"output": out.String()}
	if err != nil {
		result["error"] = err.Error()
		if exitErr, ok := err.(*exec.ExitError); ok {
			result["exit_code"] = exitErr.ExitCode()
		}
	} else {
		result["exit_code"] = 0
	}
	return result, nil
}
