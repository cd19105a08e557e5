// Package testutil provides test doubles for code that talks to the llm
// package.
package testutil

import (
	"context"
	"sync"

	"github.com/c360studio/semtrip/llm"
	"github.com/c360studio/semtrip/model"
)

// MockLLMClient is a thread-safe stand-in for llm.Client.
//
// Responses are returned in sequence. ByCapability takes precedence and
// answers every request for a capability with the same content. Err, when
// set, fails every call.
type MockLLMClient struct {
	mu           sync.Mutex
	Responses    []*llm.Response
	ByCapability map[model.Capability]string
	Err          error

	requests      []llm.Request
	responseIndex int
}

// Complete records the request and returns the configured answer.
func (m *MockLLMClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.Err != nil {
		return nil, m.Err
	}
	if content, ok := m.ByCapability[req.Capability]; ok {
		return &llm.Response{Content: content, Model: "test-model"}, nil
	}
	if m.responseIndex < len(m.Responses) {
		resp := m.Responses[m.responseIndex]
		m.responseIndex++
		return resp, nil
	}
	return &llm.Response{Content: "", Model: "test-model"}, nil
}

// Requests returns every request received so far.
func (m *MockLLMClient) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// CallCount returns the number of calls received.
func (m *MockLLMClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
