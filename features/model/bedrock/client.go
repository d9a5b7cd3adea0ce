// Package bedrock provides a model.Client implementation backed by the AWS
// Bedrock Converse API. It splits system and conversational messages into
// Bedrock content blocks, issues Converse calls and translates responses and
// SDK failures back into the provider-agnostic model types.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"goa.design/maestro/runtime/model"
)

// ProviderName identifies this adapter in provider errors and telemetry tags.
const ProviderName = "bedrock"

type (
	// RuntimeClient mirrors the subset of the AWS Bedrock runtime client
	// required by the adapter. It matches *bedrockruntime.Client so callers
	// can pass either the real client or a stub in tests.
	RuntimeClient interface {
		Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	}

	// Options configures the Bedrock client adapter.
	Options struct {
		// DefaultModel is the model identifier used when
		// model.Request.Model is empty. Required.
		DefaultModel string

		// MaxTokens sets the default completion cap when a request does not
		// specify MaxTokens. When zero or negative, the client omits
		// MaxTokens so Bedrock uses its own default.
		MaxTokens int

		// Temperature is used when a request does not specify Temperature.
		Temperature float64
	}

	// Client implements model.Client on top of AWS Bedrock Converse.
	Client struct {
		runtime      RuntimeClient
		defaultModel string
		maxTok       int
		temp         float64
	}
)

// New builds a Bedrock-backed model client from the provided runtime client
// and configuration options.
func New(runtime RuntimeClient, opts Options) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock runtime client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	return &Client{
		runtime:      runtime,
		defaultModel: opts.DefaultModel,
		maxTok:       opts.MaxTokens,
		temp:         opts.Temperature,
	}, nil
}

// Complete issues a Converse request and translates the response into the
// normalized completion result. SDK failures are classified into
// model.ProviderError so callers can branch on kind.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	input, modelID, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	output, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return nil, wrapError("converse", err)
	}
	return translateResponse(output, modelID)
}

func (c *Client) prepareRequest(req *model.Request) (*bedrockruntime.ConverseInput, string, error) {
	msgs, system, err := encodeMessages(req)
	if err != nil {
		return nil, "", err
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: msgs,
	}
	if len(system) > 0 {
		input.System = system
	}
	if cfg := c.inferenceConfig(req.MaxTokens, req.Temperature); cfg != nil {
		input.InferenceConfig = cfg
	}
	return input, modelID, nil
}

func (c *Client) inferenceConfig(maxTokens int, temp float64) *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	if tokens := c.effectiveMaxTokens(maxTokens); tokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(tokens)) //nolint:gosec // AWS SDK requires int32
	}
	if t := c.effectiveTemperature(temp); t > 0 {
		cfg.Temperature = aws.Float32(float32(t))
	}
	if cfg.MaxTokens == nil && cfg.Temperature == nil {
		return nil
	}
	return &cfg
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

// encodeMessages splits the normalized conversation into Bedrock system
// blocks and user/assistant turns. Request.System and system-role messages
// both land in the system block list, in that order.
func encodeMessages(req *model.Request) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	conversation := make([]brtypes.Message, 0, len(req.Messages))
	system := make([]brtypes.SystemContentBlock, 0, 1)
	if req.System != "" {
		system = append(system, &brtypes.SystemContentBlockMemberText{Value: req.System})
	}
	for _, m := range req.Messages {
		if m.Content == "" {
			continue
		}
		block := []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}}
		switch m.Role {
		case model.RoleSystem:
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
		case model.RoleUser:
			conversation = append(conversation, brtypes.Message{Role: brtypes.ConversationRoleUser, Content: block})
		case model.RoleAssistant:
			conversation = append(conversation, brtypes.Message{Role: brtypes.ConversationRoleAssistant, Content: block})
		default:
			return nil, nil, fmt.Errorf("bedrock: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("bedrock: at least one user or assistant message is required")
	}
	return conversation, system, nil
}

// translateResponse flattens the Converse output message into text. Converse
// does not echo the model back, so the response carries the requested id.
func translateResponse(output *bedrockruntime.ConverseOutput, modelID string) (*model.Response, error) {
	if output == nil {
		return nil, errors.New("bedrock: response is nil")
	}
	var text strings.Builder
	if msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if v, ok := block.(*brtypes.ContentBlockMemberText); ok {
				text.WriteString(v.Value)
			}
		}
	}
	resp := &model.Response{
		Text:       text.String(),
		Model:      modelID,
		StopReason: string(output.StopReason),
	}
	if usage := output.Usage; usage != nil {
		resp.Usage = model.Usage{
			InputTokens:  int(aws.ToInt32(usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(usage.OutputTokens)),
		}
	}
	return resp, nil
}

// wrapError classifies an SDK failure into a model.ProviderError. Provider
// error codes take precedence over the HTTP status so ThrottlingException is
// recognized even when the transport status is absent. Context cancellation
// passes through so callers can match it with errors.Is.
func wrapError(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("bedrock %s: %w", operation, err)
	}

	var (
		status int
		code   string
		msg    string
	)
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
		msg = apiErr.ErrorMessage()
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}
	return model.NewProviderError(ProviderName, operation, status, kindFor(code, status), code, msg, "", err)
}

func kindFor(code string, status int) model.ProviderErrorKind {
	switch code {
	case "ThrottlingException", "TooManyRequestsException", "ServiceQuotaExceededException":
		return model.ProviderErrorKindRateLimited
	case "AccessDeniedException", "UnrecognizedClientException":
		return model.ProviderErrorKindAuth
	case "ValidationException", "ResourceNotFoundException":
		return model.ProviderErrorKindInvalidRequest
	case "ModelTimeoutException", "ModelNotReadyException", "ModelErrorException", "InternalServerException", "ServiceUnavailableException":
		return model.ProviderErrorKindUnavailable
	}
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
