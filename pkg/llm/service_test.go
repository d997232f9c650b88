package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	lastReq Request
	resp    *Response
	err     error
}

func (f *fakeProvider) Complete(_ context.Context, req Request) (*Response, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func TestService_Classify_UsesClassificationSystemPrompt(t *testing.T) {
	fp := &fakeProvider{resp: &Response{Content: "summary: road unrepaired"}}
	svc := New(fp)

	resp, err := svc.Classify(context.Background(), "the road near my house has been unrepaired for months")
	require.NoError(t, err)
	assert.Equal(t, "summary: road unrepaired", resp.Content)
	assert.Equal(t, systemPrompts["classification"], fp.lastReq.SystemPrompt)
}

func TestService_ExtractContactInfo_UsesContactInfoSystemPrompt(t *testing.T) {
	fp := &fakeProvider{resp: &Response{Content: "name: Jane Doe"}}
	svc := New(fp)

	_, err := svc.ExtractContactInfo(context.Background(), "my name is Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, systemPrompts["contact_info"], fp.lastReq.SystemPrompt)
}

func TestService_Translate_EmbedsTargetLanguageInPrompt(t *testing.T) {
	fp := &fakeProvider{resp: &Response{Content: "traducido"}}
	svc := New(fp)

	resp, err := svc.Translate(context.Background(), "hello", "Spanish")
	require.NoError(t, err)
	assert.Equal(t, "traducido", resp.Content)
	assert.Contains(t, fp.lastReq.Prompt, "Target language: Spanish")
}

func TestService_PropagatesProviderError(t *testing.T) {
	fp := &fakeProvider{err: assert.AnError}
	svc := New(fp)

	_, err := svc.Classify(context.Background(), "text")
	assert.Error(t, err)
}
