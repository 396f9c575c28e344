package storage

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockProvider is a mock implementation of the Provider interface for testing failure paths.
type MockProvider struct {
	mock.Mock
}

// Put is the mock implementation of the Put method.
func (m *MockProvider) Put(ctx context.Context, key string, data []byte) error {
	args := m.Called(ctx, key, data)
	return args.Error(0) //nolint:wrapcheck
}

// Get is the mock implementation of the Get method.
func (m *MockProvider) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1) //nolint:wrapcheck
}

// Delete is the mock implementation of the Delete method.
func (m *MockProvider) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0) //nolint:wrapcheck
}

// Keys is the mock implementation of the Keys method.
func (m *MockProvider) Keys(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	keys, _ := args.Get(0).([]string)
	return keys, args.Error(1) //nolint:wrapcheck
}

// Clear is the mock implementation of the Clear method.
func (m *MockProvider) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0) //nolint:wrapcheck
}
