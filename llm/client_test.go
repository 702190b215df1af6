package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a minimal OpenAI-shaped provider for exercising the client.
type fakeProvider struct{}

func (fakeProvider) Name() string { return "fake" }

func (fakeProvider) BuildURL(baseURL, _ string) string { return baseURL }

func (fakeProvider) SetHeaders(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

func (fakeProvider) BuildRequestBody(model string, messages []Message, _ GenerationConfig) ([]byte, error) {
	return json.Marshal(map[string]any{"model": model, "messages": messages})
}

func (fakeProvider) ParseResponse(body []byte, model string) (*Response, error) {
	var parsed struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	return &Response{Content: parsed.Content, Model: model}, nil
}

func init() {
	RegisterProvider(fakeProvider{})
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Millisecond,
	}
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient("no-such-provider", Endpoint{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown LLM provider")
}

func TestComplete_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Write([]byte(`{"content": "declarations page"}`))
	}))
	defer srv.Close()

	client, err := NewClient("fake", Endpoint{BaseURL: srv.URL, Model: "m", APIKey: "sk-test"})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "classify"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "declarations page", resp.Content)
	assert.NotEmpty(t, resp.RequestID)
}

func TestComplete_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"content": "ok"}`))
	}))
	defer srv.Close()

	client, err := NewClient("fake", Endpoint{BaseURL: srv.URL, Model: "m"},
		WithRetryConfig(fastRetry()))
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestComplete_FatalShortCircuits(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := NewClient("fake", Endpoint{BaseURL: srv.URL, Model: "m"},
		WithRetryConfig(fastRetry()))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Equal(t, int32(1), calls.Load(), "fatal errors must not be retried")
}

func TestComplete_ExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := NewClient("fake", Endpoint{BaseURL: srv.URL, Model: "m"},
		WithRetryConfig(fastRetry()))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestComplete_EmptyRequest(t *testing.T) {
	client, err := NewClient("fake", Endpoint{Model: "m"})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), Request{})
	require.Error(t, err)
}

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
		{http.StatusInternalServerError, true},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
	}

	for _, tt := range tests {
		err := classifyHTTPError(tt.status, []byte("body"))
		if tt.transient {
			assert.True(t, IsTransient(err), "status %d should be transient", tt.status)
		} else {
			assert.True(t, IsFatal(err), "status %d should be fatal", tt.status)
		}
	}
}

func TestCalculateBackoff_Capped(t *testing.T) {
	client := &HTTPClient{retryConfig: RetryConfig{
		BackoffBase:       time.Second,
		BackoffMultiplier: 10,
		MaxBackoff:        2 * time.Second,
	}}

	// High attempt numbers stay near the cap even with jitter.
	for attempt := 1; attempt <= 6; attempt++ {
		b := client.calculateBackoff(attempt)
		assert.LessOrEqual(t, b, 2*time.Second+500*time.Millisecond)
	}
}
