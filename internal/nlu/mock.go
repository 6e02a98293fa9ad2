package nlu

import "context"

// MockClient is a test double for Client.
type MockClient struct {
	ProviderName string
	ExecuteFunc  func(ctx context.Context, req Request) (*Response, error)
}

func (m *MockClient) Name() string { return m.ProviderName }

func (m *MockClient) Execute(ctx context.Context, req Request) (*Response, error) {
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, req)
	}
	return &Response{Message: "{}"}, nil
}
