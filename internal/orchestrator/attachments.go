package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// fileType classifies an upload by extension for the "## ATTACHED FILES"
// appendix and the extraction dispatch below.
func fileType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".csv", ".tsv":
		return "tabular"
	case ".json":
		return "json"
	case ".txt", ".md", ".log":
		return "text"
	default:
		return "file"
	}
}

// extractMetadata derives structural metadata per file type: row/column
// counts for tabular data, line counts for text, shape hints for JSON. A
// best-effort empty string is returned for anything that fails to parse.
func extractMetadata(name string, data []byte) string {
	switch fileType(name) {
	case "tabular":
		return extractTabularMetadata(name, data)
	case "json":
		return extractJSONMetadata(data)
	case "text":
		return extractTextMetadata(data)
	default:
		return ""
	}
}

func extractTabularMetadata(name string, data []byte) string {
	sep := ","
	if strings.HasSuffix(strings.ToLower(name), ".tsv") {
		sep = "\t"
	}
	lines := splitNonEmptyLines(data)
	if len(lines) == 0 {
		return ""
	}
	cols := len(strings.Split(lines[0], sep))
	rows := len(lines) - 1
	if rows < 0 {
		rows = 0
	}
	return fmt.Sprintf("%d rows, %d columns", rows, cols)
}

func extractTextMetadata(data []byte) string {
	lines := bytes.Count(data, []byte("\n")) + 1
	if len(data) == 0 {
		lines = 0
	}
	return fmt.Sprintf("%d lines", lines)
}

func extractJSONMetadata(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return ""
	}
	switch t := v.(type) {
	case map[string]any:
		return fmt.Sprintf("object with %d top-level keys", len(t))
	case []any:
		return fmt.Sprintf("array of %d elements", len(t))
	default:
		return "scalar JSON value"
	}
}

func splitNonEmptyLines(data []byte) []string {
	raw := strings.Split(string(data), "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

// persistUpload writes an attachment under uploadsRoot/username/, creating parent directories as needed.
func persistUpload(uploadsRoot, username, name string, data []byte) error {
	if uploadsRoot == "" {
		return nil
	}
	dir := filepath.Join(uploadsRoot, username)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, filepath.Base(name)), data, 0o644)
}
