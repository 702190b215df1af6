package providers

import (
	"net/http"
	"os"
	"strings"

	"github.com/c360studio/policypipe/llm"
)

// OpenRouterProvider talks to OpenRouter's OpenAI-compatible API. It shares
// the request/response format with OllamaProvider but sends the attribution
// headers OpenRouter uses for rankings.
type OpenRouterProvider struct {
	OllamaProvider // Embed for shared request/response format
}

func init() {
	llm.RegisterProvider(&OpenRouterProvider{})
}

// Name returns the provider identifier.
func (o *OpenRouterProvider) Name() string {
	return "openrouter"
}

// BuildURL constructs the OpenRouter API endpoint.
func (o *OpenRouterProvider) BuildURL(baseURL, _ string) string {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}

	return baseURL + "/chat/completions"
}

// SetHeaders adds OpenRouter authentication and attribution headers.
func (o *OpenRouterProvider) SetHeaders(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	if siteURL := os.Getenv("OPENROUTER_SITE_URL"); siteURL != "" {
		req.Header.Set("HTTP-Referer", siteURL)
	}
	if siteName := os.Getenv("OPENROUTER_SITE_NAME"); siteName != "" {
		req.Header.Set("X-Title", siteName)
	}
}
