package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kairoai/agentrt/internal/toolkit"
	"github.com/kairoai/agentrt/pkg/models"
)

// WebSearchProvider is the subset of a search backend the tool needs.
// Production wiring points this at whatever provider the deployment
// configures.
type WebSearchProvider interface {
	Search(ctx context.Context, query string, maxResults int) ([]WebSearchHit, error)
}

// WebSearchHit is one search result.
type WebSearchHit struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// WebSearchTool implements the "websearch" tool.
type WebSearchTool struct {
	provider WebSearchProvider
}

// NewWebSearchTool creates the tool bound to a provider.
func NewWebSearchTool(provider WebSearchProvider) *WebSearchTool {
	return &WebSearchTool{provider: provider}
}

func (t *WebSearchTool) Name() string { return "websearch" }

func (t *WebSearchTool) Schema() models.ToolSchema {
	return models.ToolSchema{
		Name:        t.Name(),
		Description: "Search the web and return ranked results with title, url, content snippet, and score.",
		Parameters: objSchema(map[string]models.SchemaProp{
			"query":       strProp("Search query."),
			"max_results": intProp("Maximum number of results to return (default 5)."),
		}, "query"),
	}
}

type webSearchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type webSearchResult struct {
	models.ToolResult
	Results []WebSearchHit `json:"results,omitempty"`
}

func (t *WebSearchTool) Execute(ctx context.Context, args json.RawMessage, _ toolkit.CallContext) (any, error) {
	var a webSearchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return webSearchResult{ToolResult: models.ToolResult{Success: false, Error: "invalid arguments: " + err.Error()}}, nil
	}
	if a.Query == "" {
		return webSearchResult{ToolResult: models.ToolResult{Success: false, Error: "query is required"}}, nil
	}
	if a.MaxResults <= 0 {
		a.MaxResults = 5
	}
	if t.provider == nil {
		return webSearchResult{ToolResult: models.ToolResult{Success: false, Error: "no search provider configured"}}, nil
	}

	hits, err := t.provider.Search(ctx, a.Query, a.MaxResults)
	if err != nil {
		return webSearchResult{ToolResult: models.ToolResult{Success: false, Error: fmt.Sprintf("search provider outage: %v", err)}}, nil
	}
	return webSearchResult{ToolResult: models.ToolResult{Success: true}, Results: hits}, nil
}

// HTTPSearchProvider talks to a Tavily-style JSON search API:
// POST {endpoint} with {api_key, query, max_results}, answered by
// {results: [{title, url, content, score}]}.
type HTTPSearchProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPSearchProvider creates a provider for endpoint.
func NewHTTPSearchProvider(endpoint, apiKey string) *HTTPSearchProvider {
	return &HTTPSearchProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 20 * time.Second},
	}
}

// Search implements WebSearchProvider.
func (p *HTTPSearchProvider) Search(ctx context.Context, query string, maxResults int) ([]WebSearchHit, error) {
	body, err := json.Marshal(map[string]any{
		"api_key":     p.apiKey,
		"query":       query,
		"max_results": maxResults,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search provider returned %s", resp.Status)
	}

	var decoded struct {
		Results []WebSearchHit `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	return decoded.Results, nil
}
