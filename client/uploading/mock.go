package uploading

import (
	"context"
	"sync"
)

// MockServerClient is an in-memory ServerClient for tests and --test mode.
// While Offline is set, every call fails with SendError(Unreachable).
type MockServerClient struct {
	mu       sync.Mutex
	offline  bool
	requests []UploadRequest
}

// NewMockServerClient creates a reachable mock client.
func NewMockServerClient() *MockServerClient {
	return &MockServerClient{}
}

// SetOffline toggles simulated connectivity.
func (m *MockServerClient) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// Requests returns a copy of all uploads accepted so far.
func (m *MockServerClient) Requests() []UploadRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]UploadRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Upload records the request, or fails if the mock is offline.
func (m *MockServerClient) Upload(ctx context.Context, request UploadRequest) (*UploadAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.offline {
		return nil, &SendError{Kind: SendUnreachable}
	}

	m.requests = append(m.requests, request)
	return &UploadAck{Status: "ok", Path: request.FileName}, nil
}

// Ping reports the simulated connectivity.
func (m *MockServerClient) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.offline {
		return &SendError{Kind: SendUnreachable}
	}
	return nil
}
