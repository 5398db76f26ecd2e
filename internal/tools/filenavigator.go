package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kairoai/agentrt/internal/toolkit"
	"github.com/kairoai/agentrt/pkg/models"
)

// FileNavigatorTool implements "file_navigator": list, search, and a
// depth-capped tree render over the workspace.
type FileNavigatorTool struct {
	root string
}

// NewFileNavigatorTool creates the tool scoped to root.
func NewFileNavigatorTool(root string) *FileNavigatorTool {
	return &FileNavigatorTool{root: root}
}

func (t *FileNavigatorTool) Name() string { return "file_navigator" }

func (t *FileNavigatorTool) Schema() models.ToolSchema {
	return models.ToolSchema{
		Name:        t.Name(),
		Description: "List, search, or render a tree of files under the workspace.",
		Parameters: objSchema(map[string]models.SchemaProp{
			"operation": enumProp("Operation to perform.", "list", "search", "tree"),
			"path":      strProp("Directory to operate on (default workspace root)."),
			"pattern":   strProp("Substring matched against file names, required for search."),
		}, "operation"),
	}
}

type fileNavigatorArgs struct {
	Operation string `json:"operation"`
	Path      string `json:"path"`
	Pattern   string `json:"pattern"`
}

// FileEntry is one file/directory listing entry.
type FileEntry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

type fileNavigatorResult struct {
	models.ToolResult
	Entries []FileEntry `json:"entries,omitempty"`
	Tree    string      `json:"tree,omitempty"`
}

func (t *FileNavigatorTool) resolve(path string) string {
	if path == "" {
		return t.root
	}
	if t.root == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(t.root, path)
}

func (t *FileNavigatorTool) Execute(_ context.Context, args json.RawMessage, _ toolkit.CallContext) (any, error) {
	var a fileNavigatorArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fileNavigatorResult{ToolResult: models.ToolResult{Success: false, Error: "invalid arguments: " + err.Error()}}, nil
	}
	dir := t.resolve(a.Path)

	switch a.Operation {
	case "list":
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fileNavigatorResult{ToolResult: models.ToolResult{Success: false, Error: err.Error()}}, nil
		}
		out := make([]FileEntry, 0, len(entries))
		for _, e := range entries {
			info, _ := e.Info()
			var size int64
			if info != nil {
				size = info.Size()
			}
			out = append(out, FileEntry{Name: e.Name(), Path: filepath.Join(a.Path, e.Name()), IsDir: e.IsDir(), Size: size})
		}
		return fileNavigatorResult{ToolResult: models.ToolResult{Success: true}, Entries: out}, nil

	case "search":
		if a.Pattern == "" {
			return fileNavigatorResult{ToolResult: models.ToolResult{Success: false, Error: "pattern is required for search"}}, nil
		}
		var out []FileEntry
		err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if strings.Contains(info.Name(), a.Pattern) {
				rel, _ := filepath.Rel(t.root, p)
				out = append(out, FileEntry{Name: info.Name(), Path: rel, IsDir: info.IsDir(), Size: info.Size()})
			}
			return nil
		})
		if err != nil {
			return fileNavigatorResult{ToolResult: models.ToolResult{Success: false, Error: err.Error()}}, nil
		}
		return fileNavigatorResult{ToolResult: models.ToolResult{Success: true}, Entries: out}, nil

	case "tree":
		var b strings.Builder
		err := walkTree(dir, "", &b, 0, 4)
		if err != nil {
			return fileNavigatorResult{ToolResult: models.ToolResult{Success: false, Error: err.Error()}}, nil
		}
		return fileNavigatorResult{ToolResult: models.ToolResult{Success: true}, Tree: b.String()}, nil

	default:
		return fileNavigatorResult{ToolResult: models.ToolResult{Success: false, Error: "unknown operation: " + a.Operation}}, nil
	}
}

func walkTree(dir, prefix string, b *strings.Builder, depth, maxDepth int) error {
	if depth > maxDepth {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(b, "%s%s\n", prefix, e.Name())
		if e.IsDir() {
			if err := walkTree(filepath.Join(dir, e.Name()), prefix+"  ", b, depth+1, maxDepth); err != nil {
				return err
			}
		}
	}
	return nil
}
