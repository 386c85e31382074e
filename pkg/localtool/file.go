package localtool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileArgs is the input shape for the file tool, also used to derive its
// JSON Schema via SchemaOf.
type FileArgs struct {
	Path string `json:"path" jsonschema:"required,description=Path to read or write"`
	Mode string `json:"mode" jsonschema:"enum=read,enum=write,default=read"`
	Data string `json:"data,omitempty" jsonschema:"description=Content to write; only used when mode=write"`
}

// FileTool reads or writes a single file on the local filesystem.
type FileTool struct {
	// Root restricts Path to this directory tree; empty means unrestricted.
	Root string

	schema map[string]any
}

// NewFileTool constructs a file tool rooted at root (empty for no
// restriction).
func NewFileTool(root string) *FileTool {
	return &FileTool{Root: root, schema: SchemaOf(FileArgs{})}
}

func (t *FileTool) Name() string        { return "file" }
func (t *FileTool) Description() string { return "Read or write a file on the local filesystem" }
func (t *FileTool) InputSchema() map[string]any { return t.schema }

func (t *FileTool) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("file tool: path is required")
	}
	mode, _ := args["mode"].(string)
	if mode == "" {
		mode = "read"
	}

	resolved, err := t.resolve(path)
	if err != nil {
		return nil, err
	}

	switch mode {
	case "read":
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, fmt.Errorf("file tool: read %s: %w", path, err)
		}
		return map[string]any{"content": string(data)}, nil
	case "write":
		data, _ := args["data"].(string)
		if err := os.WriteFile(resolved, []byte(data), 0o644); err != nil {
			return nil, fmt.Errorf("file tool: write %s: %w", path, err)
		}
		return map[string]any{"written": len(data)}, nil
	default:
		return nil, fmt.Errorf("file tool: unknown mode %q", mode)
	}
}

func (t *FileTool) resolve(path string) (string, error) {
	if t.Root == "" {
		return path, nil
	}
	abs := filepath.Join(t.Root, path)
	rel, err := filepath.Rel(t.Root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("file tool: path %q escapes root %q", path, t.Root)
	}
	return abs, nil
}
