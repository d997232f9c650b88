package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/telemetry"
)

const (
	defaultOpenAIModel           = openai.ChatModelGPT4o
	defaultOpenAIMaxTokens       = 1024
	defaultOpenAITranscribeModel = "whisper-1"
)

// chatClient is the narrow slice of *openai.Client this provider needs.
type chatClient interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// transcriptionClient is the narrow slice of the Audio Transcriptions API
// this provider needs for the transcribe_audio_file_task operation.
// Anthropic has no equivalent endpoint, so Transcriber is implemented only
// here (see pkg/llm/service.go's Transcriber doc comment).
type transcriptionClient interface {
	New(ctx context.Context, params openai.AudioTranscriptionNewParams, opts ...option.RequestOption) (*openai.Transcription, error)
}

// OpenAIProvider runs completions through the Chat Completions API via
// openai-go. No example repo in the retrieval pack wires this official SDK
// directly (the pack's own OpenAI adapters hand-roll HTTP or use the
// unofficial sashabaranov/go-openai client); this provider mirrors the same
// client-wrapper shape as AnthropicProvider and is built from the SDK's
// documented API surface rather than a grounded pack example — see
// DESIGN.md.
type OpenAIProvider struct {
	client          chatClient
	transcription   transcriptionClient
	model           string
	maxTokens       int64
	transcribeModel string
	logger          core.ComponentAwareLogger
}

// NewOpenAIProvider constructs a provider authenticated with apiKey. model
// defaults to defaultOpenAIModel when empty.
func NewOpenAIProvider(apiKey, model string, logger core.ComponentAwareLogger) *OpenAIProvider {
	if model == "" {
		model = defaultOpenAIModel
	}
	client := openai.NewClient(option.WithAPIKey(apiKey), option.WithHTTPClient(telemetry.NewTracedHTTPClient(nil)))
	return &OpenAIProvider{
		client:          &client.Chat.Completions,
		transcription:   &client.Audio.Transcriptions,
		model:           model,
		maxTokens:       defaultOpenAIMaxTokens,
		transcribeModel: defaultOpenAITranscribeModel,
		logger:          logger,
	}
}

// Name identifies this provider for unified LLM metrics.
func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	model := p.model
	if req.Model != "" {
		model = req.Model
	}
	maxTokens := p.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:               model,
		Messages:            messages,
		MaxCompletionTokens: openai.Int(maxTokens),
	}

	completion, err := p.client.New(ctx, params)
	if err != nil {
		if p.logger != nil {
			p.logger.Error("openai completion failed", map[string]interface{}{
				"operation": "llm_openai_complete",
				"model":     model,
				"error":     err.Error(),
			})
		}
		return nil, fmt.Errorf("llm: openai completion: %w", err)
	}

	var content string
	if len(completion.Choices) > 0 {
		content = completion.Choices[0].Message.Content
	}

	return &Response{
		Content:      content,
		Model:        completion.Model,
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
	}, nil
}

// Transcribe implements llm.Transcriber via the Whisper transcription
// endpoint.
func (p *OpenAIProvider) Transcribe(ctx context.Context, audioPath string) (*Response, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("llm: open audio file: %w", core.ErrFileNotFound)
	}
	defer f.Close()

	params := openai.AudioTranscriptionNewParams{
		Model: p.transcribeModel,
		File:  f,
	}

	transcription, err := p.transcription.New(ctx, params)
	if err != nil {
		if p.logger != nil {
			p.logger.Error("openai transcription failed", map[string]interface{}{
				"operation":  "llm_openai_transcribe",
				"audio_path": audioPath,
				"error":      err.Error(),
			})
		}
		return nil, fmt.Errorf("llm: openai transcription: %w", err)
	}

	return &Response{Content: transcription.Text, Model: p.transcribeModel}, nil
}
