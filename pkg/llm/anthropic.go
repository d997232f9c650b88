package llm

import (
	"context"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/telemetry"
)

const (
	defaultAnthropicModel     = "claude-3-5-sonnet-20241022"
	defaultAnthropicMaxTokens = 1024
)

// messagesClient is the narrow slice of *anthropic.Client this provider
// needs, letting tests substitute a fake without standing up the SDK's
// HTTP transport.
type messagesClient interface {
	New(ctx context.Context, params sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicProvider runs completions through the real Anthropic Messages
// API via anthropic-sdk-go, grounded on the pack's own goadesign-goa-ai
// model-provider adapter (features/model/anthropic/client.go), which wires
// the same SDK version this module carries (v1.35.1).
type AnthropicProvider struct {
	client    messagesClient
	model     string
	maxTokens int64
	logger    core.ComponentAwareLogger
}

// NewAnthropicProvider constructs a provider authenticated with apiKey. model
// defaults to defaultAnthropicModel when empty.
func NewAnthropicProvider(apiKey, model string, logger core.ComponentAwareLogger) *AnthropicProvider {
	if model == "" {
		model = defaultAnthropicModel
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey), option.WithHTTPClient(telemetry.NewTracedHTTPClient(nil)))
	return &AnthropicProvider{
		client:    &client.Messages,
		model:     model,
		maxTokens: defaultAnthropicMaxTokens,
		logger:    logger,
	}
}

// Name identifies this provider for unified LLM metrics.
func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	model := p.model
	if req.Model != "" {
		model = req.Model
	}
	maxTokens := p.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: maxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt))},
	}
	if req.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: req.SystemPrompt}}
	}

	msg, err := p.client.New(ctx, params)
	if err != nil {
		if p.logger != nil {
			p.logger.Error("anthropic completion failed", map[string]interface{}{
				"operation": "llm_anthropic_complete",
				"model":     model,
				"error":     err.Error(),
			})
		}
		return nil, fmt.Errorf("llm: anthropic completion: %w", err)
	}

	var content string
	for _, block := range msg.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return &Response{
		Content:      content,
		Model:        string(msg.Model),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}
