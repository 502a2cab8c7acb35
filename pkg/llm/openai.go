package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIClient is the Client implementation used against any
// OpenAI-compatible chat-completions endpoint (LLM_BASE_URL/API_KEY/MODEL),
// backed by langchaingo's openai provider rather than a hand-rolled HTTP
// client, so retries, streaming, and provider quirks are the library's
// problem, not ours.
type OpenAIClient struct {
	inner *openai.LLM
	model string
}

// NewOpenAIClient builds a Client against baseURL (empty string uses
// langchaingo's default OpenAI endpoint) using apiKey and model.
func NewOpenAIClient(baseURL, apiKey, model string) (*OpenAIClient, error) {
	opts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	inner, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("llm: build openai client: %w", err)
	}
	return &OpenAIClient{inner: inner, model: model}, nil
}

// Chat implements Client by delegating to langchaingo's GenerateContent,
// translating PayScope's role/message and sampling-option shapes into
// langchaingo's.
func (c *OpenAIClient) Chat(ctx context.Context, msgs []Message, tools []ToolDefinition, options *SamplingOptions) (*Response, error) {
	content := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		content = append(content, llms.TextParts(toLangchainRole(m.Role), m.Content))
	}

	callOpts := []llms.CallOption{}
	if options != nil {
		callOpts = append(callOpts, llms.WithTemperature(options.Temperature), llms.WithTopP(options.TopP), llms.WithSeed(int(options.Seed)))
	}
	for _, tool := range tools {
		callOpts = append(callOpts, llms.WithTools([]llms.Tool{{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		}}))
	}

	completion, err := c.inner.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return nil, fmt.Errorf("llm: generate content: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("llm: empty choices in response")
	}
	choice := completion.Choices[0]

	var toolCalls []ToolCall
	for _, tc := range choice.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args)
		toolCalls = append(toolCalls, ToolCall{ID: tc.ID, Name: tc.FunctionCall.Name, Arguments: args})
	}

	return &Response{Content: choice.Content, ToolCalls: toolCalls}, nil
}

func toLangchainRole(role string) llms.ChatMessageType {
	switch role {
	case "system":
		return llms.ChatMessageTypeSystem
	case "assistant":
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
