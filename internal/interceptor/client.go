package interceptor

import (
	"context"
	"errors"
	"time"

	"github.com/kairoai/agentrt/internal/observability"
	"github.com/kairoai/agentrt/pkg/models"
)

// ModelClient is the narrow Model Client contract this decorator wraps
// (matches internal/agentloop.ModelClient; kept independent to avoid an
// import cycle, since agentloop imports this package to tag call phases).
type ModelClient interface {
	Chat(ctx context.Context, messages []models.Message, model string, temperature float32, tools []models.ToolSchema) (*models.LLMResponse, error)
	ChatStream(ctx context.Context, messages []models.Message, model string, temperature float32, tools []models.ToolSchema) (<-chan models.StreamEvent, error)
}

// Client decorates a ModelClient, logging every call via logger and,
// when a collector is attached, recording call latency and outcome
// metrics.
type Client struct {
	next    ModelClient
	logger  *Logger
	metrics *observability.Metrics
}

// New creates a Client wrapping next.
func New(next ModelClient, logger *Logger) *Client {
	return &Client{next: next, logger: logger}
}

// WithMetrics attaches a metrics collector; nil disables instrumentation.
func (c *Client) WithMetrics(m *observability.Metrics) *Client {
	c.metrics = m
	return c
}

func (c *Client) observe(model string, err error, duration time.Duration) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.LLMRequestCounter.WithLabelValues(model, status).Inc()
	c.metrics.LLMRequestDuration.WithLabelValues(model).Observe(duration.Seconds())
}

func toEntryMessages(messages []models.Message) []EntryMessage {
	out := make([]EntryMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, EntryMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID})
	}
	return out
}

func estimateInputTokens(messages []models.Message) int {
	total := 0
	for _, m := range messages {
		total += estimateTokens(m.Content)
	}
	return total
}

func toolCallLabels(calls []models.ToolCall) []string {
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Name)
	}
	return out
}

// Chat logs then delegates to the wrapped client's blocking call.
func (c *Client) Chat(ctx context.Context, messages []models.Message, model string, temperature float32, tools []models.ToolSchema) (*models.LLMResponse, error) {
	start := time.Now()
	resp, err := c.next.Chat(ctx, messages, model, temperature, tools)
	duration := time.Since(start)
	c.observe(model, err, duration)

	entry := Entry{
		Timestamp:         start,
		Model:             model,
		Temperature:       temperature,
		SessionID:         sessionIDFromContext(ctx),
		Phase:             phaseFromContext(ctx),
		Streaming:         false,
		ToolsProvided:     len(tools) > 0,
		EstimatedInputTok: estimateInputTokens(messages),
		Messages:          toEntryMessages(messages),
		Duration:          duration,
		Success:           err == nil,
	}
	if err != nil {
		entry.Error = err.Error()
	} else {
		entry.ResponseText = resp.Content
		entry.ResponseToolCalls = toolCallLabels(resp.ToolCalls)
		entry.EstimatedOutputTok = estimateTokens(resp.Content)
	}
	c.logger.Log(entry)

	return resp, err
}

// ChatStream wraps the returned channel so the request and the
// accumulated response are logged as one entry once the stream ends. A
// stream that fails to open is logged immediately as a failed call.
func (c *Client) ChatStream(ctx context.Context, messages []models.Message, model string, temperature float32, tools []models.ToolSchema) (<-chan models.StreamEvent, error) {
	start := time.Now()
	phase := phaseFromContext(ctx)
	upstream, err := c.next.ChatStream(ctx, messages, model, temperature, tools)
	if err != nil {
		c.observe(model, err, time.Since(start))
		c.logger.Log(Entry{
			Timestamp:         start,
			Model:             model,
			Temperature:       temperature,
			SessionID:         sessionIDFromContext(ctx),
			Phase:             phase,
			Streaming:         true,
			ToolsProvided:     len(tools) > 0,
			EstimatedInputTok: estimateInputTokens(messages),
			Messages:          toEntryMessages(messages),
			Duration:          time.Since(start),
			Success:           false,
			Error:             err.Error(),
		})
		return nil, err
	}

	out := make(chan models.StreamEvent, 32)
	go func() {
		defer close(out)
		var text, streamErr string
		var toolCalls []string
		for ev := range upstream {
			switch ev.Kind {
			case models.EventText:
				text += ev.Content
			case models.EventToolCalls:
				toolCalls = toolCallLabels(ev.ToolCalls)
			case models.EventError:
				streamErr = ev.ErrMessage
			}
			out <- ev
		}
		c.logger.Log(Entry{
			Timestamp:          start,
			Model:              model,
			Temperature:        temperature,
			SessionID:          sessionIDFromContext(ctx),
			Phase:              phase,
			Streaming:          true,
			ToolsProvided:      len(tools) > 0,
			EstimatedInputTok:  estimateInputTokens(messages),
			Messages:           toEntryMessages(messages),
			ResponseText:       text,
			ResponseToolCalls:  toolCalls,
			EstimatedOutputTok: estimateTokens(text),
			Duration:           time.Since(start),
			Success:            streamErr == "",
			Error:              streamErr,
		})
		var observed error
		if streamErr != "" {
			observed = errors.New(streamErr)
		}
		c.observe(model, observed, time.Since(start))
	}()
	return out, nil
}
