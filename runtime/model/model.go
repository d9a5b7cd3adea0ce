// Package model defines the provider-agnostic contract the planner uses to
// invoke LLM completions. Adapters under features/model translate these
// normalized types into the Anthropic, OpenAI and Bedrock SDK formats;
// middleware composes cross-cutting behavior such as rate limiting around
// any Client.
package model

import "context"

type (
	// Role identifies the author of a chat message.
	Role string

	// Client is the contract planners use to request completions. Clients
	// must be safe for concurrent use.
	Client interface {
		// Complete sends the request to the provider and returns the
		// generated response. Throttling errors satisfy IsThrottle so
		// callers can back off.
		Complete(ctx context.Context, req *Request) (*Response, error)
	}

	// ClientFunc adapts a function to the Client interface.
	ClientFunc func(ctx context.Context, req *Request) (*Response, error)

	// Middleware wraps a Client with additional behavior.
	Middleware func(Client) Client

	// Request captures the normalized parameters of one completion call.
	Request struct {
		// Model is the provider-specific model identifier. Empty selects
		// the adapter's default model.
		Model string
		// System is the system prompt, when any.
		System string
		// Messages is the ordered conversation sent to the model.
		Messages []Message
		// MaxTokens caps the completion length. Zero uses the adapter
		// default.
		MaxTokens int
		// Temperature controls sampling randomness. Zero uses the
		// adapter default.
		Temperature float64
	}

	// Message is one turn of the conversation.
	Message struct {
		Role    Role
		Content string
	}

	// Response carries the model output.
	Response struct {
		// Text is the concatenated text content of the completion.
		Text string
		// Model is the concrete model that served the request.
		Model string
		// StopReason is the provider-specific stop reason, when reported.
		StopReason string
		// Usage reports token counts when the provider returns them.
		Usage Usage
	}

	// Usage records token consumption of one completion.
	Usage struct {
		InputTokens  int
		OutputTokens int
	}
)

const (
	// RoleSystem marks instruction messages.
	RoleSystem Role = "system"
	// RoleUser marks end-user input.
	RoleUser Role = "user"
	// RoleAssistant marks prior model output.
	RoleAssistant Role = "assistant"
)

// Complete invokes the wrapped function.
func (f ClientFunc) Complete(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Chain wraps client with the given middleware, first middleware outermost.
func Chain(client Client, mws ...Middleware) Client {
	for i := len(mws) - 1; i >= 0; i-- {
		client = mws[i](client)
	}
	return client
}
