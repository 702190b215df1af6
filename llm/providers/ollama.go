// Package providers contains LLM provider implementations. Blank-import this
// package to register all providers with the llm registry.
package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/c360studio/policypipe/llm"
)

func init() {
	llm.RegisterProvider(&OllamaProvider{})
}

// OllamaProvider speaks the OpenAI-compatible chat API exposed by Ollama,
// vLLM, and similar local model servers. It is the default provider for
// on-prem deployments where policy documents cannot leave the network.
type OllamaProvider struct{}

// Name returns the provider identifier.
func (o *OllamaProvider) Name() string { return "ollama" }

// BuildURL resolves the chat completions endpoint, tolerating base URLs
// that already include the full path.
func (o *OllamaProvider) BuildURL(baseURL, _ string) string {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

// SetHeaders sets Bearer auth when an API key is configured. Local servers
// typically run without one.
func (o *OllamaProvider) SetHeaders(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

// Wire types for the OpenAI-compatible chat completions API.
type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// BuildRequestBody marshals the chat request. A nil Temperature defers to
// the server default; zero is sent explicitly for deterministic extraction.
func (o *OllamaProvider) BuildRequestBody(model string, messages []llm.Message, cfg llm.GenerationConfig) ([]byte, error) {
	wire := make([]chatMessage, len(messages))
	for i, m := range messages {
		wire[i] = chatMessage{Role: m.Role, Content: m.Content}
	}

	req := chatCompletionRequest{
		Model:       model,
		Messages:    wire,
		Temperature: cfg.Temperature,
	}
	if cfg.MaxTokens > 0 {
		mt := cfg.MaxTokens
		req.MaxTokens = &mt
	}
	if cfg.JSONMode {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	return json.Marshal(req)
}

// ParseResponse extracts the first choice from a chat completion.
func (o *OllamaProvider) ParseResponse(body []byte, _ string) (*llm.Response, error) {
	var resp chatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion had no choices")
	}

	choice := resp.Choices[0]
	return &llm.Response{
		Content: choice.Message.Content,
		Model:   resp.Model,
		Usage: llm.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: choice.FinishReason,
	}, nil
}
