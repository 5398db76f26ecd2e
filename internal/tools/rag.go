package tools

import (
	"context"
	"encoding/json"

	"github.com/kairoai/agentrt/internal/toolkit"
	"github.com/kairoai/agentrt/pkg/models"
)

// RAGChunk is one ranked document chunk.
type RAGChunk struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
	Source string `json:"source,omitempty"`
}

// RAGProvider is the document retrieval engine's interface, named only by
// contract ("the document retrieval (RAG) engine's internal
// indexing" is an external collaborator).
type RAGProvider interface {
	Query(ctx context.Context, collection, query string, maxResults int) ([]RAGChunk, error)
	ListCollections(ctx context.Context, username string) ([]string, error)
}

// RAGTool implements the "rag" tool body. collection_name validation
// against the caller's owned collections happens in the agent loop,
// before dispatch, so an invalid collection never reaches this body.
type RAGTool struct {
	provider RAGProvider
}

// NewRAGTool creates the tool bound to a provider.
func NewRAGTool(provider RAGProvider) *RAGTool {
	return &RAGTool{provider: provider}
}

func (t *RAGTool) Name() string { return "rag" }

func (t *RAGTool) Schema() models.ToolSchema {
	return models.ToolSchema{
		Name:        t.Name(),
		Description: "Retrieve ranked document chunks from a named collection owned by the caller.",
		Parameters: objSchema(map[string]models.SchemaProp{
			"collection_name": strProp("Name of the collection to query."),
			"query":           strProp("Query text."),
			"max_results":     intProp("Maximum chunks to return (default 5)."),
		}, "collection_name", "query"),
	}
}

type ragArgs struct {
	CollectionName string `json:"collection_name"`
	Query          string `json:"query"`
	MaxResults     int    `json:"max_results"`
}

type ragResult struct {
	models.ToolResult
	Chunks []RAGChunk `json:"chunks,omitempty"`
}

func (t *RAGTool) Execute(ctx context.Context, args json.RawMessage, call toolkit.CallContext) (any, error) {
	var a ragArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ragResult{ToolResult: models.ToolResult{Success: false, Error: "invalid arguments: " + err.Error()}}, nil
	}
	if a.MaxResults <= 0 {
		a.MaxResults = 5
	}
	if t.provider == nil {
		return ragResult{ToolResult: models.ToolResult{Success: false, Error: "no rag provider configured"}}, nil
	}
	chunks, err := t.provider.Query(ctx, a.CollectionName, a.Query, a.MaxResults)
	if err != nil {
		return ragResult{ToolResult: models.ToolResult{Success: false, Error: err.Error()}}, nil
	}
	return ragResult{ToolResult: models.ToolResult{Success: true}, Chunks: chunks}, nil
}
