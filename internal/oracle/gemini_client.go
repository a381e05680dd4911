// File: internal/oracle/gemini_client.go
package oracle

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/transcript"
)

// GeminiClient calls the Gemini generateContent API through the genai SDK.
type GeminiClient struct {
	client *genai.Client
	cfg    config.OracleConfig
	tools  []*genai.Tool
	logger *zap.Logger
}

// NewGeminiClient initializes the client against the Gemini Developer API.
func NewGeminiClient(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.APITimeout},
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions.BaseURL = cfg.Endpoint
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		cfg:    cfg,
		tools:  []*genai.Tool{{FunctionDeclarations: geminiDeclarations(Tools)}},
		logger: logger.Named("oracle.gemini"),
	}, nil
}

func (c *GeminiClient) Name() string { return "gemini" }

// Complete sends one generateContent request.
func (c *GeminiClient) Complete(ctx context.Context, t transcript.Transcript) (Reply, error) {
	system, contents := geminiContents(t)

	gc := &genai.GenerateContentConfig{
		SystemInstruction: system,
		Tools:             c.tools,
		Temperature:       genai.Ptr(c.cfg.Temperature),
	}
	if c.cfg.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(c.cfg.MaxTokens)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, gc)
	if err != nil {
		return Reply{}, err
	}
	return geminiReply(resp)
}

func geminiDeclarations(tools []Tool) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		props := make(map[string]*genai.Schema, len(t.Params))
		for _, p := range t.Params {
			s := &genai.Schema{Type: genai.TypeString, Description: p.Description, Enum: p.Enum}
			if p.Type == ParamNumber {
				s.Type = genai.TypeNumber
			}
			props[p.Name] = s
		}
		out = append(out, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   t.Required(),
			},
		})
	}
	return out
}

// geminiContents splits the transcript into the system instruction and the
// conversation turns. Tool results become function responses named after the
// call they answer.
func geminiContents(t transcript.Transcript) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	names := make(map[string]string)
	contents := make([]*genai.Content, 0, len(t))

	for _, m := range t {
		switch m.Role {
		case transcript.RoleSystem:
			system = genai.NewContentFromText(m.Text(), genai.RoleUser)
		case transcript.RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Text(), genai.RoleUser))
		case transcript.RoleAssistant:
			var parts []*genai.Part
			if text := m.Text(); text != "" {
				parts = append(parts, genai.NewPartFromText(text))
			}
			if m.ToolCall != nil {
				names[m.ToolCall.ID] = m.ToolCall.Name
				parts = append(parts, genai.NewPartFromFunctionCall(m.ToolCall.Name, m.ToolCall.Arguments))
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
		case transcript.RoleTool:
			name := names[m.ToolCallID]
			if name == "" {
				name = "tool_result"
			}
			part := genai.NewPartFromFunctionResponse(name, map[string]any{"result": m.Text()})
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
		}
	}
	return system, contents
}

// geminiReply reads the first candidate without going through the SDK's
// convenience accessors, which log to the standard logger.
func geminiReply(resp *genai.GenerateContentResponse) (Reply, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return Reply{}, fmt.Errorf("%w: no candidates returned", ErrMalformedResponse)
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return Reply{}, fmt.Errorf("%w: empty candidate (finish reason %s)", ErrMalformedResponse, cand.FinishReason)
	}

	var reply Reply
	for _, part := range cand.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			reply.Calls = append(reply.Calls, transcript.ToolCall{
				ID:        part.FunctionCall.ID,
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
		case part.Text != "" && !part.Thought:
			reply.Content += part.Text
		}
	}
	if u := resp.UsageMetadata; u != nil {
		reply.PromptTokens = int64(u.PromptTokenCount)
		reply.CompletionTokens = int64(u.CandidatesTokenCount)
	}
	return reply, nil
}
