package llm

import (
	"context"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatClient struct {
	lastParams openai.ChatCompletionNewParams
	completion *openai.ChatCompletion
	err        error
}

func (f *fakeChatClient) New(_ context.Context, params openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	return f.completion, nil
}

func TestOpenAIProvider_Complete_MapsContentAndUsage(t *testing.T) {
	fake := &fakeChatClient{
		completion: &openai.ChatCompletion{
			Model: "gpt-4o",
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "hi there"}},
			},
			Usage: openai.CompletionUsage{PromptTokens: 8, CompletionTokens: 3},
		},
	}
	p := &OpenAIProvider{client: fake, model: defaultOpenAIModel, maxTokens: defaultOpenAIMaxTokens}

	resp, err := p.Complete(context.Background(), Request{SystemPrompt: "sys", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, 8, resp.InputTokens)
	assert.Equal(t, 3, resp.OutputTokens)
	assert.Len(t, fake.lastParams.Messages, 2)
}

func TestOpenAIProvider_Complete_PropagatesError(t *testing.T) {
	fake := &fakeChatClient{err: assert.AnError}
	p := &OpenAIProvider{client: fake, model: defaultOpenAIModel, maxTokens: defaultOpenAIMaxTokens}

	_, err := p.Complete(context.Background(), Request{Prompt: "hi"})
	assert.Error(t, err)
}

func TestOpenAIProvider_Transcribe_RejectsMissingFile(t *testing.T) {
	p := &OpenAIProvider{transcribeModel: defaultOpenAITranscribeModel}
	_, err := p.Transcribe(context.Background(), "/nonexistent/path/audio.wav")
	assert.Error(t, err)
}
