package tools

import (
	"context"
	"strings"

	"github.com/atendezap/atendezap/internal/knowledge"
	"github.com/atendezap/atendezap/internal/providers"
)

// KnowledgeTool answers product and pricing questions from the vector
// knowledge base.
type KnowledgeTool struct {
	searcher knowledge.Searcher
	topK     int
}

func NewKnowledgeTool(searcher knowledge.Searcher, topK int) *KnowledgeTool {
	if topK <= 0 {
		topK = 3
	}
	return &KnowledgeTool{searcher: searcher, topK: topK}
}

func (t *KnowledgeTool) Name() string { return "buscar_conhecimento" }

func (t *KnowledgeTool) Definition() providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name: "buscar_conhecimento",
			Description: "Busca informações sobre produtos, serviços, preços e condições " +
				"na base de conhecimento da empresa. Use sempre que o cliente perguntar " +
				"sobre valores, materiais ou serviços oferecidos.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"consulta": map[string]interface{}{
						"type":        "string",
						"description": "A pergunta do cliente reformulada como consulta de busca",
					},
				},
				"required": []string{"consulta"},
			},
		},
	}
}

func (t *KnowledgeTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	query := strings.TrimSpace(stringArg(args, "consulta"))
	if query == "" {
		return "Nenhuma consulta informada.", nil
	}
	snippets, err := t.searcher.Search(ctx, query, t.topK)
	if err != nil {
		return "", err
	}
	return knowledge.FormatSnippets(snippets), nil
}
