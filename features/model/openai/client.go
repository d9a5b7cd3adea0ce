// Package openai provides a model.Client implementation backed by the OpenAI
// Chat Completions API. It translates normalized completion requests into
// Chat.Completions.New calls using github.com/openai/openai-go and maps
// responses and SDK failures back into the provider-agnostic model types.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"goa.design/maestro/runtime/model"
)

// ProviderName identifies this adapter in provider errors and telemetry tags.
const ProviderName = "openai"

type (
	// ChatClient captures the subset of the OpenAI SDK client used by the
	// adapter. It is satisfied by the SDK's chat completion service so
	// callers can pass either a real client or a stub in tests.
	ChatClient interface {
		New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
	}

	// Options configures the OpenAI adapter.
	Options struct {
		// Client issues the chat completion calls. Required.
		Client ChatClient

		// DefaultModel is the model identifier used when
		// model.Request.Model is empty. Required.
		DefaultModel string

		// MaxTokens caps completions when a request does not specify
		// MaxTokens. Zero leaves the cap to the provider.
		MaxTokens int

		// Temperature is used when a request does not specify Temperature.
		Temperature float64
	}

	// Client implements model.Client via the OpenAI Chat Completions API.
	Client struct {
		chat         ChatClient
		defaultModel string
		maxTok       int
		temp         float64
	}
)

// New builds an OpenAI-backed model client from the provided options.
func New(opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("openai client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	return &Client{
		chat:         opts.Client,
		defaultModel: opts.DefaultModel,
		maxTok:       opts.MaxTokens,
		temp:         opts.Temperature,
	}, nil
}

// NewFromAPIKey constructs a client using the default OpenAI HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	oc := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(Options{Client: &oc.Chat.Completions, DefaultModel: defaultModel})
}

// Complete issues a chat completion and translates the response into the
// normalized completion result. SDK failures are classified into
// model.ProviderError so callers can branch on kind.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.chat.New(ctx, *params)
	if err != nil {
		return nil, wrapError("chat.completions.new", err)
	}
	return translateResponse(resp)
}

func (c *Client) prepareRequest(req *model.Request) (*sdk.ChatCompletionNewParams, error) {
	msgs, err := encodeMessages(req)
	if err != nil {
		return nil, err
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	params := sdk.ChatCompletionNewParams{
		Messages: msgs,
		Model:    sdk.ChatModel(modelID),
	}
	if maxTokens := c.effectiveMaxTokens(req.MaxTokens); maxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(int64(maxTokens))
	}
	if t := c.effectiveTemperature(req.Temperature); t > 0 {
		params.Temperature = sdk.Float(t)
	}
	return &params, nil
}

func (c *Client) effectiveMaxTokens(requested int) int {
	if requested > 0 {
		return requested
	}
	return c.maxTok
}

func (c *Client) effectiveTemperature(requested float64) float64 {
	if requested > 0 {
		return requested
	}
	return c.temp
}

// encodeMessages maps the normalized conversation onto chat roles.
// Request.System becomes the leading system message.
func encodeMessages(req *model.Request) ([]sdk.ChatCompletionMessageParamUnion, error) {
	msgs := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, sdk.SystemMessage(req.System))
	}
	turns := 0
	for _, m := range req.Messages {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case model.RoleSystem:
			msgs = append(msgs, sdk.SystemMessage(m.Content))
		case model.RoleUser:
			msgs = append(msgs, sdk.UserMessage(m.Content))
			turns++
		case model.RoleAssistant:
			msgs = append(msgs, sdk.AssistantMessage(m.Content))
			turns++
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	if turns == 0 {
		return nil, errors.New("openai: at least one user or assistant message is required")
	}
	return msgs, nil
}

func translateResponse(resp *sdk.ChatCompletion) (*model.Response, error) {
	if resp == nil {
		return nil, errors.New("openai: response is nil")
	}
	out := &model.Response{
		Model: resp.Model,
		Usage: model.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}
	if len(resp.Choices) > 0 {
		out.Text = resp.Choices[0].Message.Content
		out.StopReason = string(resp.Choices[0].FinishReason)
	}
	return out, nil
}

// wrapError classifies an SDK failure into a model.ProviderError. Context
// cancellation passes through so callers can match it with errors.Is.
func wrapError(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("openai %s: %w", operation, err)
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return model.NewProviderError(ProviderName, operation, apiErr.StatusCode, kindForStatus(apiErr.StatusCode), "", "", requestIDOf(apiErr), err)
	}
	return model.NewProviderError(ProviderName, operation, 0, model.ProviderErrorKindUnknown, "", "", "", err)
}

func kindForStatus(status int) model.ProviderErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return model.ProviderErrorKindAuth
	case status == http.StatusTooManyRequests:
		return model.ProviderErrorKindRateLimited
	case status >= http.StatusBadRequest && status < http.StatusInternalServerError:
		return model.ProviderErrorKindInvalidRequest
	case status >= http.StatusInternalServerError:
		return model.ProviderErrorKindUnavailable
	default:
		return model.ProviderErrorKindUnknown
	}
}

func requestIDOf(apiErr *sdk.Error) string {
	if apiErr.Response == nil {
		return ""
	}
	return apiErr.Response.Header.Get("x-request-id")
}
