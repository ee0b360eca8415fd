package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OllamaProvider implements the Provider interface for Ollama.
type OllamaProvider struct {
	httpClient *http.Client
	baseURL    string
	name       string
	models     []string
}

// NewOllama creates a new Ollama provider.
func NewOllama(baseURL string, models []string) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	if len(models) == 0 {
		models = []string{"llama3.2"}
	}

	return &OllamaProvider{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		name:       "ollama",
		models:     models,
	}, nil
}

// Name returns the provider identifier.
func (p *OllamaProvider) Name() string { return p.name }

// BaseURL implements ProxiableProvider.
func (p *OllamaProvider) BaseURL() string { return p.baseURL }

// WrapUpstreamError builds a categorised AdapterError for a failed call to
// this provider, classifying by HTTP status and message content.
func (p *OllamaProvider) WrapUpstreamError(statusCode int, err error) error {
	if err == nil {
		return nil
	}
	return NewAdapterError(p.name, CategorizeUpstreamError(statusCode, err.Error()), err)
}

// AuthHeaders implements ProxiableProvider.
// Ollama is a local server with no API key requirement.
func (p *OllamaProvider) AuthHeaders() map[string]string { return nil }

// SupportedModels returns the static list of known models for the /v1/models endpoint.
func (p *OllamaProvider) SupportedModels() []string {
	return p.models
}

// SupportsModel returns true for any model â€” the upstream provider validates model names.
func (p *OllamaProvider) SupportsModel(_ string) bool {
	return true
}

// Models returns structured model metadata for the /v1/models endpoint.
func (p *OllamaProvider) Models() []ModelInfo {
	models := make([]ModelInfo, len(p.models))
	for i, id := range p.models {
		models[i] = ModelInfo{
			ID:      id,
			Object:  "model",
			OwnedBy: p.name,
		}
	}
	return models
}

// ollamaRequest is OpenAI-compatible.
type ollamaRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type ollamaResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type ollamaErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type ollamaErrorResponse struct {
	Error ollamaErrorDetail `json:"error"`
}

// Complete sends a chat completion request and returns the full response.
func (p *OllamaProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	ollamaReq := ollamaRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	body, err := json.Marshal(ollamaReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, p.WrapUpstreamError(0, fmt.Errorf("request failed: %w", err))
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var errResp ollamaErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return nil, p.WrapUpstreamError(httpResp.StatusCode, fmt.Errorf("ollama API error (%d): %s", httpResp.StatusCode, errResp.Error.Message))
		}
		return nil, p.WrapUpstreamError(httpResp.StatusCode, fmt.Errorf("ollama API error (%d): %s", httpResp.StatusCode, string(respBody)))
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(respBody, &ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &Response{
		ID:      ollamaResp.ID,
		Model:   ollamaResp.Model,
		Choices: ollamaResp.Choices,
		Usage:   ollamaResp.Usage,
	}, nil
}

type ollamaStreamResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
}

// CompleteStream sends a streaming chat completion request to Ollama.
func (p *OllamaProvider) CompleteStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	ollamaReq := ollamaRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	}

	body, err := json.Marshal(ollamaReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, p.WrapUpstreamError(0, fmt.Errorf("request failed: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		defer func() { _ = httpResp.Body.Close() }()
		respBody, _ := io.ReadAll(httpResp.Body)
		var errResp ollamaErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return nil, p.WrapUpstreamError(httpResp.StatusCode, fmt.Errorf("ollama API error (%d): %s", httpResp.StatusCode, errResp.Error.Message))
		}
		return nil, p.WrapUpstreamError(httpResp.StatusCode, fmt.Errorf("ollama API error (%d): %s", httpResp.StatusCode, string(respBody)))
	}

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		defer func() { _ = httpResp.Body.Close() }()

		scanner := bufio.NewScanner(httpResp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == SSEDone {
				return
			}

			var chunk ollamaStreamResponse
			if json.Unmarshal([]byte(data), &chunk) != nil {
				continue
			}

			sc := StreamChunk{
				ID:    chunk.ID,
				Model: chunk.Model,
			}
			for _, c := range chunk.Choices {
				sc.Choices = append(sc.Choices, StreamChoice{
					Index: c.Index,
					Delta: MessageDelta{
						Role:    c.Delta.Role,
						Content: c.Delta.Content,
					},
					FinishReason: c.FinishReason,
				})
			}
			ch <- sc
		}
		if err := scanner.Err(); err != nil {
			ch <- StreamChunk{Error: err}
		}
	}()

	return ch, nil
}
