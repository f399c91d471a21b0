package llm

import (
	"context"
	"sync"
)

// MockResponse is a canned answer of the MockClient.
type MockResponse struct {
	Text string
	Err  error
}

// MockClient returns canned responses in FIFO order and records the requests it got.
type MockClient struct {
	mu        sync.Mutex
	responses []MockResponse
	Calls     []Request
}

var _ Client = (*MockClient)(nil)

func NewMockClient(responses ...MockResponse) *MockClient {
	return &MockClient{responses: responses}
}

// Generate returns the next canned response, or ErrExhausted once the queue is empty.
func (m *MockClient) Generate(_ context.Context, req Request) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)
	if len(m.responses) == 0 {
		return Response{}, ErrExhausted
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	if resp.Err != nil {
		return Response{}, resp.Err
	}
	return Response{Text: resp.Text, Model: "mock"}, nil
}

func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
