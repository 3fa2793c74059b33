package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/advisorkit/maestro/pkg/models"
)

const extractionPrompt = `Analyze this CRM assistant request and answer with a single JSON object, nothing else.

Request: %q

Schema:
{"domains": ["calendar"|"task"|"workflow"|"contact"|"user"],
 "entities": [{"type": "person"|"date"|"duration"|"location"|"subject", "value": "..."}]}`

// AnthropicExtractor asks a Claude model to classify the query. Failures
// are non-fatal upstream; the planner falls back to keywords.
type AnthropicExtractor struct {
	client anthropic.Client
	model  string
}

// NewAnthropicExtractor creates an extractor using the given API key and
// model name.
func NewAnthropicExtractor(apiKey, model string) *AnthropicExtractor {
	return &AnthropicExtractor{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Extract runs one extraction message and parses the JSON reply.
func (e *AnthropicExtractor) Extract(ctx context.Context, query string) (*models.PlanAnalysis, error) {
	msg, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(fmt.Sprintf(extractionPrompt, query))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	raw := strings.TrimSpace(text.String())
	// Models occasionally wrap JSON in a code fence.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var analysis models.PlanAnalysis
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &analysis); err != nil {
		return nil, fmt.Errorf("extraction reply is not valid JSON: %w", err)
	}
	return &analysis, nil
}
