// Package llm models the LLM operations the grievance pipeline runs
// (transcription, classification/summarization, contact-info extraction,
// translation) as opaque process(input) → output services, the abstraction
// spec §1 mandates ("we model them as opaque process(input)→output
// services") so pkg/tasks's task bodies never depend on a specific vendor
// SDK directly.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/telemetry"
)

// namedProvider is implemented by providers that can identify themselves for
// unified LLM metrics (AnthropicProvider, OpenAIProvider). A provider that
// doesn't implement it records under "unknown" rather than failing.
type namedProvider interface {
	Name() string
}

func providerName(p interface{}) string {
	if np, ok := p.(namedProvider); ok {
		return np.Name()
	}
	return "unknown"
}

// Request is a single completion request: a system prompt fixing the
// operation's behavior, the user-facing prompt carrying the actual input,
// and generation parameters. Model is resolved by the provider when empty.
type Request struct {
	SystemPrompt string
	Prompt       string
	Model        string
	MaxTokens    int
	Temperature  float64
}

// Response is a completion result plus token accounting, used by
// pkg/tasks to fold usage into a ResultEnvelope's values for observability.
type Response struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Provider is the narrow capability a concrete SDK client exposes: turn one
// Request into one Response. Anthropic and OpenAI each implement this
// directly against their own SDK; pkg/tasks never imports either SDK.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Transcriber is the narrow capability of turning an audio file into text,
// kept separate from Provider because not every vendor exposes speech
// transcription behind the same API a chat/messages completion does
// (Anthropic's Messages API has no audio endpoint; OpenAI's does).
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*Response, error)
}

// Service is the opaque LLM service the four grievance-pipeline operations
// are built from. It binds a Provider to an operation's fixed system prompt
// so callers only ever supply the variable part of the input. transcriber
// is optional: a Service backed only by AnthropicProvider can still Classify/
// ExtractContactInfo/Translate, it just can't Transcribe.
type Service struct {
	provider    Provider
	transcriber Transcriber
	breaker     core.CircuitBreaker
}

// New returns a Service issuing text completions through provider. The
// returned Service has no circuit breaker wired until WithCircuitBreaker is
// called, so every operation runs directly against provider.
func New(provider Provider) *Service {
	return &Service{provider: provider}
}

// WithTranscriber attaches a Transcriber to an existing Service, returning
// the same instance for chaining at construction time.
func (s *Service) WithTranscriber(t Transcriber) *Service {
	s.transcriber = t
	return s
}

// WithCircuitBreaker wraps every provider/transcriber call in breaker,
// protecting the pipeline from a vendor outage cascading into every worker
// blocking on a hung completion request (spec §4.3's per-attempt timeout
// bounds a single call, but not a provider that is failing steadily across
// many tasks).
func (s *Service) WithCircuitBreaker(breaker core.CircuitBreaker) *Service {
	s.breaker = breaker
	return s
}

// Transcribe runs the transcription operation over the audio file at
// audioPath (spec §4.7's transcribe_audio_file_task). Returns an error if
// no Transcriber was attached.
func (s *Service) Transcribe(ctx context.Context, audioPath string) (*Response, error) {
	if s.transcriber == nil {
		return nil, fmt.Errorf("llm: no transcriber configured")
	}
	start := time.Now()
	var resp *Response
	err := s.protect(ctx, func() error {
		var callErr error
		resp, callErr = s.transcriber.Transcribe(ctx, audioPath)
		return callErr
	})
	name := providerName(s.transcriber)
	status := "success"
	if err != nil {
		status = "error"
	}
	telemetry.RecordLLMCall(name, float64(time.Since(start).Milliseconds()), status)
	return resp, err
}

// protect runs fn through s.breaker when one is configured, otherwise runs
// it directly.
func (s *Service) protect(ctx context.Context, fn func() error) error {
	if s.breaker == nil {
		return fn()
	}
	return s.breaker.Execute(ctx, fn)
}

// operationPrompt returns the fixed system prompt spec.md's four LLM
// operations (§6 "operation ∈ {transcription, classification, contact_info,
// translation}" plus summarization, folded into classification per §4.7's
// "classify_and_summarize_grievance_task") run under.
func operationPrompt(operation string) (string, error) {
	prompt, ok := systemPrompts[operation]
	if !ok {
		return "", fmt.Errorf("llm: unknown operation %q", operation)
	}
	return prompt, nil
}

var systemPrompts = map[string]string{
	"classification": "You classify and summarize a citizen grievance. " +
		"Given the complainant's free-text description, return a concise " +
		"summary and a category label. Respond with the summary only; the " +
		"caller parses category from the first line if present.",
	"contact_info": "You extract contact information (name, phone, email, " +
		"address) from free text describing a grievance. Return only the " +
		"fields you can find, one per line as `field: value`.",
	"translation": "You translate the given grievance text to the target " +
		"language named in the prompt, preserving meaning and register. " +
		"Respond with the translation only, no commentary.",
}

// Classify runs the classification/summarization operation over text
// (spec §4.7's classify_and_summarize_grievance_task).
func (s *Service) Classify(ctx context.Context, text string) (*Response, error) {
	return s.run(ctx, "classification", text)
}

// ExtractContactInfo runs the contact-info extraction operation over text.
func (s *Service) ExtractContactInfo(ctx context.Context, text string) (*Response, error) {
	return s.run(ctx, "contact_info", text)
}

// Translate runs the translation operation, asking for text to be rendered
// in targetLanguage.
func (s *Service) Translate(ctx context.Context, text, targetLanguage string) (*Response, error) {
	return s.run(ctx, "translation", fmt.Sprintf("Target language: %s\n\n%s", targetLanguage, text))
}

func (s *Service) run(ctx context.Context, operation, prompt string) (*Response, error) {
	system, err := operationPrompt(operation)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	var resp *Response
	err = s.protect(ctx, func() error {
		var callErr error
		resp, callErr = s.provider.Complete(ctx, Request{SystemPrompt: system, Prompt: prompt})
		return callErr
	})
	name := providerName(s.provider)
	status := "success"
	if err != nil {
		status = "error"
	}
	telemetry.RecordLLMCall(name, float64(time.Since(start).Milliseconds()), status)
	if resp != nil {
		telemetry.RecordLLMTokens(name, "input", int64(resp.InputTokens))
		telemetry.RecordLLMTokens(name, "output", int64(resp.OutputTokens))
	}
	return resp, err
}
