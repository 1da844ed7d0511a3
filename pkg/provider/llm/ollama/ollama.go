// Package ollama provides an LLM provider backed by the native Ollama chat API
// (github.com/ollama/ollama/api).
//
// Unlike the OpenAI-compatible endpoint, the native API reports a reasoning
// model's thinking in a separate field. Small reasoning models such as
// qwen3:1.7b regularly exhaust num_predict while thinking and return an empty
// content; the reasoning is passed on so the caller can reduce it to an answer.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/MrWong99/chica/internal/reply"
	"github.com/MrWong99/chica/pkg/provider/llm"
)

// DefaultBaseURL is the address of a local Ollama server.
const DefaultBaseURL = "http://localhost:11434"

// Provider implements llm.Provider against an Ollama server.
type Provider struct {
	client    *api.Client
	model     string
	keepAlive time.Duration
}

type config struct {
	baseURL   string
	timeout   time.Duration
	keepAlive time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(u string) Option {
	return func(c *config) { c.baseURL = u }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithKeepAlive controls how long the server keeps the model loaded after a
// request. Zero leaves the server default.
func WithKeepAlive(d time.Duration) Option {
	return func(c *config) { c.keepAlive = d }
}

// New creates a Provider for model.
func New(model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("ollama: model must not be empty")
	}
	cfg := &config{baseURL: DefaultBaseURL}
	for _, o := range opts {
		o(cfg)
	}
	base, err := url.Parse(strings.TrimRight(cfg.baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("ollama: parse base URL %q: %w", cfg.baseURL, err)
	}
	httpClient := &http.Client{Timeout: cfg.timeout}
	return &Provider{
		client:    api.NewClient(base, httpClient),
		model:     model,
		keepAlive: cfg.keepAlive,
	}, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	stream := false
	chatReq := &api.ChatRequest{
		Model:    p.model,
		Messages: convertMessages(llm.BuildMessages(req)),
		Stream:   &stream,
		Options:  buildOptions(req),
	}
	if p.keepAlive > 0 {
		chatReq.KeepAlive = &api.Duration{Duration: p.keepAlive}
	}

	var last api.ChatResponse
	var content, thinking strings.Builder
	err := p.client.Chat(ctx, chatReq, func(r api.ChatResponse) error {
		content.WriteString(r.Message.Content)
		thinking.WriteString(r.Message.Thinking)
		last = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: chat: %w", err)
	}

	// Models served without thinking support still inline <think> tags.
	answer, inline := reply.Split(content.String())
	reasoning := strings.TrimSpace(thinking.String())
	if reasoning == "" {
		reasoning = inline
	}

	return &llm.CompletionResponse{
		Content:   answer,
		Reasoning: reasoning,
		Usage: llm.Usage{
			PromptTokens:     last.PromptEvalCount,
			CompletionTokens: last.EvalCount,
			TotalTokens:      last.PromptEvalCount + last.EvalCount,
		},
	}, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	caps := llm.ModelCapabilities{ContextWindow: 8_192, MaxOutputTokens: 2_048}
	lower := strings.ToLower(p.model)
	if strings.HasPrefix(lower, "qwen3") || strings.HasPrefix(lower, "deepseek-r1") {
		caps.ContextWindow = 40_960
		caps.SupportsReasoning = true
	}
	return caps
}

func buildOptions(req llm.CompletionRequest) map[string]any {
	opts := map[string]any{}
	if req.Temperature != 0 {
		opts["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	return opts
}

func convertMessages(msgs []llm.Message) []api.Message {
	out := make([]api.Message, len(msgs))
	for i, m := range msgs {
		out[i] = api.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

var _ llm.Provider = (*Provider)(nil)
