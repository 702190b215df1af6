// Package testutil provides test utilities for the llm package.
package testutil

import (
	"context"
	"sync"

	"github.com/c360studio/policypipe/llm"
)

// MockClient is a thread-safe mock LLM client for tests. It records every
// request passed to Complete and returns configured responses in sequence,
// repeating the final one once the list is exhausted.
type MockClient struct {
	mu        sync.Mutex
	requests  []llm.Request
	Responses []*llm.Response // Responses to return in sequence
	Err       error           // Error to return (takes precedence over Responses)
	index     int
}

// Complete implements llm.Client.
func (m *MockClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.Err != nil {
		return nil, m.Err
	}

	if len(m.Responses) == 0 {
		return &llm.Response{Content: "{}", Model: "mock"}, nil
	}

	resp := m.Responses[m.index]
	if m.index < len(m.Responses)-1 {
		m.index++
	}
	return resp, nil
}

// CallCount returns how many times Complete was invoked.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of the recorded requests.
func (m *MockClient) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastRequest returns the most recent request, or the zero value when no
// call has been made.
func (m *MockClient) LastRequest() llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return llm.Request{}
	}
	return m.requests[len(m.requests)-1]
}
