package tools

import (
	"context"
	"strings"

	"github.com/kairoai/agentrt/pkg/models"
)

// CodeModel is the one model-client call the generator needs.
type CodeModel interface {
	Chat(ctx context.Context, messages []models.Message, model string, temperature float32, tools []models.ToolSchema) (*models.LLMResponse, error)
}

const codegenPrompt = `Write a single self-contained Python 3 script that accomplishes the instruction.
Respond with only the script body. No explanation, no markdown fences.
The script runs in an isolated working directory; write any output files there.`

// LLMCodeGenerator turns a python_coder instruction into a script via an
// out-of-band model call, then the tool body executes the result.
type LLMCodeGenerator struct {
	model     CodeModel
	modelName string
}

// NewLLMCodeGenerator creates a generator using modelName.
func NewLLMCodeGenerator(model CodeModel, modelName string) *LLMCodeGenerator {
	return &LLMCodeGenerator{model: model, modelName: modelName}
}

// Generate implements CodeGenerator.
func (g *LLMCodeGenerator) Generate(ctx context.Context, instruction string) (string, error) {
	resp, err := g.model.Chat(ctx, []models.Message{
		{Role: models.RoleSystem, Content: codegenPrompt},
		{Role: models.RoleUser, Content: instruction},
	}, g.modelName, 0.2, nil)
	if err != nil {
		return "", err
	}
	return stripFences(resp.Content), nil
}

// stripFences removes a surrounding markdown code fence if the model
// ignored the no-fences instruction.
func stripFences(code string) string {
	trimmed := strings.TrimSpace(code)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
