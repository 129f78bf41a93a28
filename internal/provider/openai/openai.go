// Package openai implements the Provider interface for OpenAI-compatible
// endpoints (OpenAI, vLLM, LM Studio, llama.cpp server).
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"medrun/internal/provider"
	"medrun/pkg/logger"
)

// Default configuration values.
const (
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 5 * time.Minute
)

// Config holds OpenAI-compatible provider configuration.
type Config struct {
	BaseURL string        `mapstructure:"base_url"` // empty means api.openai.com
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func init() {
	provider.RegisterFactory("openai", func(opts map[string]any) (provider.Provider, error) {
		cfg := Config{Model: DefaultModel, Timeout: DefaultTimeout}
		if v, ok := opts["base_url"].(string); ok {
			cfg.BaseURL = v
		}
		if v, ok := opts["api_key"].(string); ok {
			cfg.APIKey = v
		}
		if v, ok := opts["model"].(string); ok && v != "" {
			cfg.Model = v
		}
		if v, ok := opts["timeout"].(time.Duration); ok && v > 0 {
			cfg.Timeout = v
		}
		return NewOpenAIProvider(cfg), nil
	})
}

// OpenAIProvider implements the Provider interface over the OpenAI chat API.
type OpenAIProvider struct {
	client *goopenai.Client
	model  string
}

// NewOpenAIProvider creates a new OpenAI-compatible provider.
func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIProvider{
		client: goopenai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Models returns the models the endpoint reports.
func (p *OpenAIProvider) Models() []string {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	list, err := p.client.ListModels(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to list models from OpenAI endpoint")
		return nil
	}

	models := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, m.ID)
	}
	return models
}

// Chat sends a chat completion request and returns the response.
func (p *OpenAIProvider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(req))
	if err != nil {
		return nil, p.classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, provider.NewProviderError(provider.ErrCodeInvalidResponse,
			"endpoint returned no choices", "openai", false)
	}

	return p.convertResponse(&resp), nil
}

// buildRequest converts a provider.ChatRequest to the OpenAI wire format.
func (p *OpenAIProvider) buildRequest(req provider.ChatRequest) goopenai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}

	out := goopenai.ChatCompletionRequest{
		Model:       model,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}

	if req.Format == provider.FormatJSON {
		out.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	for _, msg := range req.Messages {
		m := goopenai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, goopenai.ToolCall{
				ID:   tc.ID,
				Type: goopenai.ToolTypeFunction,
				Function: goopenai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out.Messages = append(out.Messages, m)
	}

	for _, tool := range req.Tools {
		var params any
		if len(tool.Function.Parameters) > 0 {
			_ = json.Unmarshal(tool.Function.Parameters, &params)
		}
		out.Tools = append(out.Tools, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  params,
			},
		})
	}

	return out
}

// convertResponse converts an OpenAI response to a provider response.
func (p *OpenAIProvider) convertResponse(resp *goopenai.ChatCompletionResponse) *provider.ChatResponse {
	choice := resp.Choices[0]

	result := &provider.ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}

	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, provider.ToolCall{
			ID:        tc.ID,
			Type:      "function",
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	if len(result.ToolCalls) > 0 {
		result.FinishReason = provider.FinishReasonToolCalls
	}

	if resp.Usage.TotalTokens > 0 {
		result.Usage = &provider.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	return result
}

// classifyError converts client errors to ProviderError.
func (p *OpenAIProvider) classifyError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusNotFound:
			return provider.NewProviderError(provider.ErrCodeModelNotFound,
				apiErr.Message, "openai", false)
		case http.StatusBadRequest:
			return provider.NewProviderError(provider.ErrCodeInvalidRequest,
				apiErr.Message, "openai", false)
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
			return provider.NewProviderError(provider.ErrCodeServiceUnavailable,
				apiErr.Message, "openai", true)
		default:
			return provider.NewProviderError(provider.ErrCodeUnknown,
				apiErr.Message, "openai", false)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return provider.NewProviderError(provider.ErrCodeTimeout,
			"request timed out", "openai", true)
	}

	return provider.NewProviderError(provider.ErrCodeNetworkError,
		err.Error(), "openai", true)
}
