// Package ollama implements the Provider interface for Ollama.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"medrun/internal/provider"
	"medrun/pkg/logger"
)

// Error definitions.
var (
	ErrConnectionFailed = errors.New("failed to connect to Ollama server")
	ErrModelNotFound    = errors.New("model not found")
	ErrInvalidResponse  = errors.New("invalid response from Ollama")
	ErrRequestTimeout   = errors.New("request timeout")
)

func init() {
	provider.RegisterFactory("ollama", func(opts map[string]any) (provider.Provider, error) {
		cfg := DefaultConfig()
		if v, ok := opts["endpoint"].(string); ok && v != "" {
			cfg.Endpoint = v
		}
		if v, ok := opts["model"].(string); ok && v != "" {
			cfg.Model = v
		}
		if v, ok := opts["timeout"].(time.Duration); ok && v > 0 {
			cfg.Timeout = v
		}
		return NewOllamaProvider(cfg), nil
	})
}

// OllamaProvider implements the Provider interface for Ollama.
type OllamaProvider struct {
	endpoint   string
	model      string
	httpClient *http.Client
	keepAlive  string

	// Cached model list
	modelsCache []string
	modelsMu    sync.RWMutex
	modelsTime  time.Time
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(cfg Config) *OllamaProvider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.KeepAlive == "" {
		cfg.KeepAlive = DefaultKeepAlive
	}

	return &OllamaProvider{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		keepAlive: cfg.KeepAlive,
	}
}

// Name returns the provider name.
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// Models returns the list of available models.
func (p *OllamaProvider) Models() []string {
	p.modelsMu.RLock()
	if time.Since(p.modelsTime) < 5*time.Minute && len(p.modelsCache) > 0 {
		models := p.modelsCache
		p.modelsMu.RUnlock()
		return models
	}
	p.modelsMu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	models, err := p.fetchModels(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to fetch Ollama models, returning cached")
		p.modelsMu.RLock()
		defer p.modelsMu.RUnlock()
		return p.modelsCache
	}

	p.modelsMu.Lock()
	p.modelsCache = models
	p.modelsTime = time.Now()
	p.modelsMu.Unlock()

	return models
}

// Chat sends a chat completion request and returns the response.
func (p *OllamaProvider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	ollamaReq := p.buildRequest(req)

	logger.Debug().Str("model", ollamaReq.Model).Str("format", ollamaReq.Format).Msg("Ollama chat request")

	resp, err := p.doRequest(ctx, "/api/chat", ollamaReq)
	if err != nil {
		return nil, p.classifyError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, p.classifyError(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		logger.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("Ollama error response")
		return nil, p.classifyError(p.handleErrorResponse(resp.StatusCode, body))
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		logger.Error().Err(err).Str("body", string(body)).Msg("failed to parse Ollama response")
		return nil, p.classifyError(ErrInvalidResponse)
	}

	return p.convertResponse(&ollamaResp), nil
}

// buildRequest converts a provider.ChatRequest to an Ollama request.
func (p *OllamaProvider) buildRequest(req provider.ChatRequest) *ollamaRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}

	hasTools := len(req.Tools) > 0

	ollamaReq := &ollamaRequest{
		Model:     model,
		Messages:  make([]ollamaMessage, 0, len(req.Messages)),
		Stream:    false,
		Format:    req.Format,
		KeepAlive: p.keepAlive,
	}

	for _, msg := range req.Messages {
		ollamaMsg := ollamaMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}

		if hasTools {
			for _, tc := range msg.ToolCalls {
				ollamaTC := ollamaToolCall{
					ID:   tc.ID,
					Type: "function",
				}
				ollamaTC.Function.Name = tc.Name

				// Ollama expects arguments as an object, not a string
				args := make(map[string]any)
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
						args = make(map[string]any)
					}
				}
				ollamaTC.Function.Arguments = args
				ollamaMsg.ToolCalls = append(ollamaMsg.ToolCalls, ollamaTC)
			}
		}

		ollamaReq.Messages = append(ollamaReq.Messages, ollamaMsg)
	}

	for _, tool := range req.Tools {
		ollamaReq.Tools = append(ollamaReq.Tools, ollamaTool{
			Type: tool.Type,
			Function: ollamaToolFunction{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		})
	}

	if req.Temperature > 0 || req.MaxTokens > 0 {
		ollamaReq.Options = &ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		}
	}

	return ollamaReq
}

// doRequest sends an HTTP request to the Ollama API.
func (p *OllamaProvider) doRequest(ctx context.Context, path string, body any) (*http.Response, error) {
	url := p.endpoint + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrRequestTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return resp, nil
}

// handleErrorResponse converts an error response to an appropriate error.
func (p *OllamaProvider) handleErrorResponse(statusCode int, body []byte) error {
	var errResp ollamaErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		if statusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrModelNotFound, errResp.Error)
		}
		return fmt.Errorf("ollama error: %s", errResp.Error)
	}

	switch statusCode {
	case http.StatusNotFound:
		return ErrModelNotFound
	case http.StatusServiceUnavailable:
		return ErrConnectionFailed
	default:
		return fmt.Errorf("ollama returned status %d: %s", statusCode, string(body))
	}
}

// convertResponse converts an Ollama response to a provider response.
func (p *OllamaProvider) convertResponse(resp *ollamaResponse) *provider.ChatResponse {
	result := &provider.ChatResponse{
		Content:      resp.Message.Content,
		FinishReason: provider.FinishReasonStop,
	}

	for _, tc := range resp.Message.ToolCalls {
		var argsStr string
		if tc.Function.Arguments != nil {
			if argsBytes, err := json.Marshal(tc.Function.Arguments); err == nil {
				argsStr = string(argsBytes)
			}
		}
		result.ToolCalls = append(result.ToolCalls, provider.ToolCall{
			ID:        tc.ID,
			Type:      "function",
			Name:      tc.Function.Name,
			Arguments: argsStr,
		})
	}

	if len(result.ToolCalls) > 0 {
		result.FinishReason = provider.FinishReasonToolCalls
	}

	if resp.PromptEvalCount > 0 || resp.EvalCount > 0 {
		result.Usage = &provider.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		}
	}

	return result
}

// fetchModels fetches the list of available models from Ollama.
func (p *OllamaProvider) fetchModels(ctx context.Context) ([]string, error) {
	url := p.endpoint + "/api/tags"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch models: status %d", resp.StatusCode)
	}

	var modelsResp ollamaModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, fmt.Errorf("failed to decode models response: %w", err)
	}

	models := make([]string, 0, len(modelsResp.Models))
	for _, m := range modelsResp.Models {
		models = append(models, m.Name)
	}

	return models, nil
}

// Ping checks if the Ollama server is reachable.
// Implements provider.HealthCheckable.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	url := p.endpoint + "/api/tags"
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, url, nil)
	if err != nil {
		return provider.NewProviderError(provider.ErrCodeNetworkError,
			fmt.Sprintf("failed to create request: %v", err), "ollama", true)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return provider.NewProviderError(provider.ErrCodeServiceUnavailable,
			"Ollama server is not running or unreachable", "ollama", true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return provider.NewProviderError(provider.ErrCodeServiceUnavailable,
			fmt.Sprintf("Ollama returned status %d", resp.StatusCode), "ollama", true)
	}

	return nil
}

// classifyError converts a generic error to a ProviderError with appropriate code.
func (p *OllamaProvider) classifyError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrConnectionFailed):
		return provider.NewProviderError(provider.ErrCodeServiceUnavailable,
			"cannot connect to Ollama server", "ollama", true)
	case errors.Is(err, ErrModelNotFound):
		return provider.NewProviderError(provider.ErrCodeModelNotFound,
			"model not found, pull it with ollama pull", "ollama", false)
	case errors.Is(err, ErrRequestTimeout):
		return provider.NewProviderError(provider.ErrCodeTimeout,
			"request timed out", "ollama", true)
	case errors.Is(err, ErrInvalidResponse):
		return provider.NewProviderError(provider.ErrCodeInvalidResponse,
			"Ollama returned an invalid response", "ollama", false)
	default:
		return provider.NewProviderError(provider.ErrCodeUnknown,
			err.Error(), "ollama", false)
	}
}
