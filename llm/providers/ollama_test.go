package providers

import (
	"encoding/json"
	"testing"

	"github.com/c360studio/policypipe/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaProvider_BuildURL(t *testing.T) {
	p := &OllamaProvider{}

	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{
			name:    "empty uses default",
			baseURL: "",
			want:    "http://localhost:11434/v1/chat/completions",
		},
		{
			name:    "custom base URL",
			baseURL: "http://myserver:8080/v1",
			want:    "http://myserver:8080/v1/chat/completions",
		},
		{
			name:    "trailing slash handled",
			baseURL: "http://localhost:11434/v1/",
			want:    "http://localhost:11434/v1/chat/completions",
		},
		{
			name:    "already has endpoint",
			baseURL: "http://localhost:11434/v1/chat/completions",
			want:    "http://localhost:11434/v1/chat/completions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.BuildURL(tt.baseURL, "qwen2.5:32b"))
		})
	}
}

func TestOllamaProvider_BuildRequestBody(t *testing.T) {
	p := &OllamaProvider{}

	messages := []llm.Message{
		{Role: "system", Content: "You extract policy data."},
		{Role: "user", Content: "Extract the declarations."},
	}

	temp := 0.1
	body, err := p.BuildRequestBody("qwen2.5:32b", messages, llm.GenerationConfig{
		Temperature: &temp,
		MaxTokens:   2048,
		JSONMode:    true,
	})
	require.NoError(t, err)

	s := string(body)
	assert.Contains(t, s, `"model":"qwen2.5:32b"`)
	assert.Contains(t, s, `"role":"system"`)
	assert.Contains(t, s, `"role":"user"`)
	assert.Contains(t, s, `"temperature":0.1`)
	assert.Contains(t, s, `"max_tokens":2048`)
	assert.Contains(t, s, `"response_format":{"type":"json_object"}`)
}

func TestOllamaProvider_BuildRequestBody_Defaults(t *testing.T) {
	p := &OllamaProvider{}

	body, err := p.BuildRequestBody("test-model", []llm.Message{
		{Role: "user", Content: "Hello"},
	}, llm.GenerationConfig{})
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.NotContains(t, parsed, "temperature")
	assert.NotContains(t, parsed, "max_tokens")
	assert.NotContains(t, parsed, "response_format")
}

func TestOllamaProvider_ParseResponse(t *testing.T) {
	p := &OllamaProvider{}

	body := []byte(`{
		"model": "qwen2.5:32b",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"ok\": true}"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 120, "completion_tokens": 8, "total_tokens": 128}
	}`)

	resp, err := p.ParseResponse(body, "qwen2.5:32b")
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, resp.Content)
	assert.Equal(t, "qwen2.5:32b", resp.Model)
	assert.Equal(t, 128, resp.Usage.TotalTokens)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestOllamaProvider_ParseResponse_NoChoices(t *testing.T) {
	p := &OllamaProvider{}

	_, err := p.ParseResponse([]byte(`{"model": "m", "choices": []}`), "m")
	assert.Error(t, err)
}

func TestRegisteredProviders(t *testing.T) {
	for _, name := range []string{"ollama", "openai", "openrouter", "gemini"} {
		assert.NotNil(t, llm.GetProvider(name), "provider %s should register on import", name)
	}
}
