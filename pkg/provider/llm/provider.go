// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (a local Ollama instance,
// an OpenAI-compatible server, or any backend reachable through any-llm) and
// exposes a uniform completion call to the assistant pipeline without coupling
// it to a specific SDK.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and
	// system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response,
	// including reasoning tokens for models that think before answering.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a reply.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is the
	// user turn that drives the reply.
	Messages []Message

	// SystemPrompt is an optional instruction injected before the history as
	// a "system"-role message.
	SystemPrompt string

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// means use the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means use the
	// provider default.
	MaxTokens int
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the visible text of the reply. Reasoning models can return
	// an empty Content when they spend the whole token budget thinking.
	Content string

	// Reasoning is the model's internal reasoning when the backend reports it
	// separately (Ollama's "thinking" field) or inline (<think> tags).
	Reasoning string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full reply.
	//
	// Returns an error if the request fails or if ctx is cancelled before the
	// reply arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata describing the underlying model.
	// The result is constant for the lifetime of the Provider.
	Capabilities() ModelCapabilities
}

// BuildMessages prepends the system prompt to the history as a system-role
// message. Providers without a dedicated system field use it to flatten a
// request.
func BuildMessages(req CompletionRequest) []Message {
	msgs := make([]Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: req.SystemPrompt})
	}
	return append(msgs, req.Messages...)
}
