package providers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/c360studio/policypipe/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiProvider_BuildURL(t *testing.T) {
	p := &GeminiProvider{}

	assert.Equal(t,
		"https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent",
		p.BuildURL("", "gemini-2.0-flash"))

	assert.Equal(t,
		"http://proxy:9000/models/gemini-2.0-flash:generateContent",
		p.BuildURL("http://proxy:9000/", "gemini-2.0-flash"))
}

func TestGeminiProvider_SetHeaders(t *testing.T) {
	p := &GeminiProvider{}

	req, err := http.NewRequest(http.MethodPost, "http://example", nil)
	require.NoError(t, err)

	p.SetHeaders(req, "key-123")
	assert.Equal(t, "key-123", req.Header.Get("x-goog-api-key"))
}

func TestGeminiProvider_BuildRequestBody(t *testing.T) {
	p := &GeminiProvider{}

	temp := 0.0
	body, err := p.BuildRequestBody("gemini-2.0-flash", []llm.Message{
		{Role: "system", Content: "You extract policy data."},
		{Role: "user", Content: "Extract exclusions."},
		{Role: "assistant", Content: "{}"},
	}, llm.GenerationConfig{Temperature: &temp, JSONMode: true})
	require.NoError(t, err)

	var parsed struct {
		Contents []struct {
			Role string `json:"role"`
		} `json:"contents"`
		SystemInstruction *struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"systemInstruction"`
		GenerationConfig struct {
			Temperature      *float64 `json:"temperature"`
			ResponseMimeType string   `json:"responseMimeType"`
		} `json:"generationConfig"`
	}
	require.NoError(t, json.Unmarshal(body, &parsed))

	require.NotNil(t, parsed.SystemInstruction)
	assert.Equal(t, "You extract policy data.", parsed.SystemInstruction.Parts[0].Text)

	require.Len(t, parsed.Contents, 2)
	assert.Equal(t, "user", parsed.Contents[0].Role)
	assert.Equal(t, "model", parsed.Contents[1].Role, "assistant maps to gemini model role")

	require.NotNil(t, parsed.GenerationConfig.Temperature)
	assert.Equal(t, 0.0, *parsed.GenerationConfig.Temperature)
	assert.Equal(t, "application/json", parsed.GenerationConfig.ResponseMimeType)
}

func TestGeminiProvider_ParseResponse(t *testing.T) {
	p := &GeminiProvider{}

	body := []byte(`{
		"candidates": [{
			"content": {"parts": [{"text": "{\"exclusions\": "}, {"text": "[]}"}]},
			"finishReason": "STOP"
		}],
		"usageMetadata": {"promptTokenCount": 50, "candidatesTokenCount": 5, "totalTokenCount": 55}
	}`)

	resp, err := p.ParseResponse(body, "gemini-2.0-flash")
	require.NoError(t, err)
	assert.Equal(t, `{"exclusions": []}`, resp.Content, "multi-part candidates are concatenated")
	assert.Equal(t, 55, resp.Usage.TotalTokens)
	assert.Equal(t, "STOP", resp.FinishReason)
}

func TestGeminiProvider_ParseResponse_NoCandidates(t *testing.T) {
	p := &GeminiProvider{}

	_, err := p.ParseResponse([]byte(`{"candidates": []}`), "m")
	assert.Error(t, err)
}
