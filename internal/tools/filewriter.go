package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/kairoai/agentrt/internal/toolkit"
	"github.com/kairoai/agentrt/pkg/models"
)

// FileWriterTool implements "file_writer".
type FileWriterTool struct {
	root string
}

// NewFileWriterTool creates the tool scoped to root.
func NewFileWriterTool(root string) *FileWriterTool {
	return &FileWriterTool{root: root}
}

func (t *FileWriterTool) Name() string { return "file_writer" }

func (t *FileWriterTool) Schema() models.ToolSchema {
	return models.ToolSchema{
		Name:        t.Name(),
		Description: "Write or append content to a file, creating parent directories as needed.",
		Parameters: objSchema(map[string]models.SchemaProp{
			"path":    strProp("Path to the file."),
			"content": strProp("Content to write."),
			"mode":    enumProp("write (overwrite) or append (default write).", "write", "append"),
		}, "path", "content"),
	}
}

type fileWriterArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Mode    string `json:"mode"`
}

type fileWriterResult struct {
	models.ToolResult
	BytesWritten int `json:"bytes_written"`
}

func (t *FileWriterTool) resolve(path string) string {
	if t.root == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(t.root, path)
}

func (t *FileWriterTool) Execute(_ context.Context, args json.RawMessage, _ toolkit.CallContext) (any, error) {
	var a fileWriterArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fileWriterResult{ToolResult: models.ToolResult{Success: false, Error: "invalid arguments: " + err.Error()}}, nil
	}
	if a.Path == "" {
		return fileWriterResult{ToolResult: models.ToolResult{Success: false, Error: "path is required"}}, nil
	}
	if a.Mode == "" {
		a.Mode = "write"
	}
	if a.Mode != "write" && a.Mode != "append" {
		return fileWriterResult{ToolResult: models.ToolResult{Success: false, Error: "mode must be write or append"}}, nil
	}

	full := t.resolve(a.Path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fileWriterResult{ToolResult: models.ToolResult{Success: false, Error: err.Error()}}, nil
	}

	flags := os.O_CREATE | os.O_WRONLY
	if a.Mode == "append" {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(full, flags, 0o644)
	if err != nil {
		return fileWriterResult{ToolResult: models.ToolResult{Success: false, Error: err.Error()}}, nil
	}
	defer f.Close()

	n, err := f.WriteString(a.Content)
	if err != nil {
		return fileWriterResult{ToolResult: models.ToolResult{Success: false, Error: err.Error()}}, nil
	}
	return fileWriterResult{ToolResult: models.ToolResult{Success: true}, BytesWritten: n}, nil
}
