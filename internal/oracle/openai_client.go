// File: internal/oracle/openai_client.go
package oracle

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/transcript"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// OpenAIClient talks to any OpenAI compatible chat completions endpoint.
type OpenAIClient struct {
	client openai.Client
	cfg    config.OracleConfig
	tools  []openai.ChatCompletionToolParam
	logger *zap.Logger
}

// NewOpenAIClient initializes the client. Retries are disabled; the job loop
// treats any failure as final.
func NewOpenAIClient(cfg config.OracleConfig, logger *zap.Logger, opts ...option.RequestOption) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.Endpoint != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.Endpoint))
	}
	if cfg.APITimeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.APITimeout))
	}
	reqOpts = append(reqOpts, opts...)

	return &OpenAIClient{
		client: openai.NewClient(reqOpts...),
		cfg:    cfg,
		tools:  openAITools(Tools),
		logger: logger.Named("oracle.openai"),
	}, nil
}

func (c *OpenAIClient) Name() string { return "openai" }

// Complete sends one chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, t transcript.Transcript) (Reply, error) {
	messages, err := openAIMessages(t)
	if err != nil {
		return Reply{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model:             c.cfg.Model,
		Messages:          messages,
		Tools:             c.tools,
		ParallelToolCalls: openai.Bool(false),
		Temperature:       openai.Float(float64(c.cfg.Temperature)),
	}
	if c.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.cfg.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Reply{}, err
	}
	if len(resp.Choices) == 0 {
		return Reply{}, fmt.Errorf("%w: no choices returned", ErrMalformedResponse)
	}

	msg := resp.Choices[0].Message
	reply := Reply{
		Content:          msg.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	for i, tc := range msg.ToolCalls {
		args, err := parseArguments(tc.Function.Arguments)
		if err != nil {
			if i == 0 {
				return Reply{}, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, tc.Function.Name, err)
			}
			// Extra calls are never executed; they only count toward Dropped.
			c.logger.Debug("Ignoring unparsable arguments of an extra tool call.",
				zap.String("tool", tc.Function.Name), zap.Error(err))
		}
		reply.Calls = append(reply.Calls, transcript.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	if reply.Content == "" && len(reply.Calls) == 0 && msg.Refusal != "" {
		reply.Content = msg.Refusal
	}
	return reply, nil
}

func openAITools(tools []Tool) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		props := make(map[string]interface{}, len(t.Params))
		for _, p := range t.Params {
			prop := map[string]interface{}{
				"type":        string(p.Type),
				"description": p.Description,
			}
			if len(p.Enum) > 0 {
				prop["enum"] = p.Enum
			}
			props[p.Name] = prop
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters: openai.FunctionParameters{
					"type":       "object",
					"properties": props,
					"required":   t.Required(),
				},
			},
		})
	}
	return out
}

// openAIMessages converts the transcript into chat messages. Page state is
// inlined into the message text.
func openAIMessages(t transcript.Transcript) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(t))
	for _, m := range t {
		switch m.Role {
		case transcript.RoleSystem:
			out = append(out, openai.SystemMessage(m.Text()))
		case transcript.RoleUser:
			out = append(out, openai.UserMessage(m.Text()))
		case transcript.RoleTool:
			out = append(out, openai.ToolMessage(m.Text(), m.ToolCallID))
		case transcript.RoleAssistant:
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if text := m.Text(); text != "" {
				assistant.Content.OfString = openai.String(text)
			}
			if m.ToolCall != nil {
				args := []byte("{}")
				if len(m.ToolCall.Arguments) > 0 {
					var err error
					if args, err = jsonCodec.Marshal(m.ToolCall.Arguments); err != nil {
						return nil, fmt.Errorf("failed to encode arguments of %s: %w", m.ToolCall.Name, err)
					}
				}
				assistant.ToolCalls = []openai.ChatCompletionMessageToolCallParam{{
					ID: m.ToolCall.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      m.ToolCall.Name,
						Arguments: string(args),
					},
				}}
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		default:
			return nil, fmt.Errorf("unsupported transcript role %q", m.Role)
		}
	}
	return out, nil
}
