package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/kairoai/agentrt/internal/toolkit"
	"github.com/kairoai/agentrt/pkg/models"
)

// nonTextExtensions are refused by file_reader.
var nonTextExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".ico": true, ".pdf": true, ".zip": true, ".tar": true, ".gz": true,
	".mp3": true, ".mp4": true, ".mov": true, ".exe": true, ".bin": true,
	".so": true, ".dll": true, ".sqlite": true, ".db": true,
}

// FileReaderTool implements "file_reader".
type FileReaderTool struct {
	root string
}

// NewFileReaderTool creates the tool scoped to root (an upload/workspace dir).
func NewFileReaderTool(root string) *FileReaderTool {
	return &FileReaderTool{root: root}
}

func (t *FileReaderTool) Name() string { return "file_reader" }

func (t *FileReaderTool) Schema() models.ToolSchema {
	return models.ToolSchema{
		Name:        t.Name(),
		Description: "Read lines from a text file, with optional offset and line limit.",
		Parameters: objSchema(map[string]models.SchemaProp{
			"path":   strProp("Path to the file."),
			"offset": intProp("Line offset to start from (default 0)."),
			"limit":  intProp("Maximum number of lines to return."),
		}, "path"),
	}
}

type fileReaderArgs struct {
	Path   string `json:"path"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

type fileReaderResult struct {
	models.ToolResult
	Content    string `json:"content"`
	TotalLines int    `json:"total_lines"`
	Truncated  bool   `json:"truncated"`
}

func (t *FileReaderTool) resolve(path string) string {
	if t.root == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(t.root, path)
}

func (t *FileReaderTool) Execute(_ context.Context, args json.RawMessage, _ toolkit.CallContext) (any, error) {
	var a fileReaderArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fileReaderResult{ToolResult: models.ToolResult{Success: false, Error: "invalid arguments: " + err.Error()}}, nil
	}
	if a.Path == "" {
		return fileReaderResult{ToolResult: models.ToolResult{Success: false, Error: "path is required"}}, nil
	}
	if nonTextExtensions[strings.ToLower(filepath.Ext(a.Path))] {
		return fileReaderResult{ToolResult: models.ToolResult{Success: false, Error: "refusing to read non-text file: " + a.Path}}, nil
	}

	f, err := os.Open(t.resolve(a.Path))
	if err != nil {
		return fileReaderResult{ToolResult: models.ToolResult{Success: false, Error: err.Error()}}, nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	var lines []string
	total := 0
	for scanner.Scan() {
		line := scanner.Text()
		if total >= a.Offset && (a.Limit <= 0 || len(lines) < a.Limit) {
			lines = append(lines, line)
		}
		total++
	}
	if err := scanner.Err(); err != nil {
		return fileReaderResult{ToolResult: models.ToolResult{Success: false, Error: err.Error()}}, nil
	}

	truncated := a.Limit > 0 && total-a.Offset > a.Limit
	return fileReaderResult{
		ToolResult: models.ToolResult{Success: true},
		Content:    strings.Join(lines, "\n"),
		TotalLines: total,
		Truncated:  truncated,
	}, nil
}
