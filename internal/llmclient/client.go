// Package llmclient talks to the inference backend: it sends messages
// (and an optional tool catalog) and returns either a blocking
// LLMResponse or a channel of StreamEvents. The backend speaks an
// OpenAI-compatible chat-completions API, wrapped via
// github.com/sashabaranov/go-openai.
package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kairoai/agentrt/pkg/models"
)

// Client talks to one OpenAI-compatible backend.
type Client struct {
	oai *openai.Client
}

// New creates a Client pointed at baseURL (the local inference server's
// /v1 root). apiKey may be empty for backends that don't require one.
func New(baseURL, apiKey string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{oai: openai.NewClientWithConfig(cfg)}
}

func toOpenAIMessages(messages []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		om := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out = append(out, om)
	}
	return out
}

func toOpenAITools(schemas []models.ToolSchema) []openai.Tool {
	if len(schemas) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}

func fromOpenAIToolCalls(calls []openai.ToolCall) []models.ToolCall {
	out := make([]models.ToolCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, models.ToolCall{
			ID:        c.ID,
			Name:      c.Function.Name,
			Arguments: json.RawMessage(c.Function.Arguments),
		})
	}
	return out
}

// Chat issues one blocking chat-completion request.
func (c *Client) Chat(ctx context.Context, messages []models.Message, model string, temperature float32, tools []models.ToolSchema) (*models.LLMResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(messages),
		Temperature: temperature,
		Tools:       toOpenAITools(tools),
	}

	resp, err := c.oai.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, errBackendUnavailable(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errBackendProtocol(errors.New("empty choices"))
	}
	choice := resp.Choices[0]
	return &models.LLMResponse{
		Content:      choice.Message.Content,
		ToolCalls:    fromOpenAIToolCalls(choice.Message.ToolCalls),
		FinishReason: string(choice.FinishReason),
	}, nil
}

// ChatStream issues a streaming chat-completion request. The returned
// channel is closed when the stream ends; tool-call deltas are accumulated
// internally (keyed by backend-assigned index) and surfaced as exactly one
// terminal ToolCallsEvent if any tool calls were issued.
func (c *Client) ChatStream(ctx context.Context, messages []models.Message, model string, temperature float32, tools []models.ToolSchema) (<-chan models.StreamEvent, error) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(messages),
		Temperature: temperature,
		Tools:       toOpenAITools(tools),
		Stream:      true,
	}

	stream, err := c.oai.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, errBackendUnavailable(err)
	}

	out := make(chan models.StreamEvent)
	go c.pump(ctx, stream, out)
	return out, nil
}

func (c *Client) pump(ctx context.Context, stream *openai.ChatCompletionStream, out chan<- models.StreamEvent) {
	defer close(out)
	defer stream.Close()

	acc := newToolCallAccumulator()
	finishReason := ""

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A mid-stream failure after the connection was established:
			// surface it as a terminal error event so the caller records a
			// failed turn instead of a clean, empty end of stream.
			out <- models.ErrorEvent(errBackendUnavailable(err))
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]

		if choice.Delta.Content != "" {
			out <- models.TextEvent(choice.Delta.Content)
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			acc.add(idx, tc.ID, tc.Function.Name, tc.Function.Arguments)
		}
		if choice.FinishReason != "" {
			finishReason = string(choice.FinishReason)
		}
		continue
	}

	if acc.any() {
		out <- models.ToolCallsEvent(acc.finalize(), finishReason)
	}
}

// ListModels lists model ids known to the backend.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	resp, err := c.oai.ListModels(ctx)
	if err != nil {
		return nil, errBackendUnavailable(err)
	}
	ids := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// IsAvailable performs a cheap reachability check against the backend.
func (c *Client) IsAvailable(ctx context.Context) bool {
	_, err := c.oai.ListModels(ctx)
	return err == nil
}
