package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/stockmeta/internal/domain"
	"github.com/phrazzld/stockmeta/internal/generation"
)

// MockGenerator implements generation.Generator for testing
type MockGenerator struct {
	// GenerateMetadataFn allows test cases to mock the GenerateMetadata behavior
	GenerateMetadataFn func(ctx context.Context, req generation.Request) (*domain.Metadata, error)

	// Default response values
	Metadata *domain.Metadata
	Err      error

	mu       sync.Mutex
	requests []generation.Request
}

var _ generation.Generator = (*MockGenerator)(nil)

// GenerateMetadata implements the generation.Generator interface
func (m *MockGenerator) GenerateMetadata(ctx context.Context, req generation.Request) (*domain.Metadata, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.GenerateMetadataFn != nil {
		return m.GenerateMetadataFn(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Metadata == nil {
		return nil, nil
	}
	result := m.Metadata.Clone()
	return &result, nil
}

// CallCount returns how many times GenerateMetadata was called.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of every request received, in call order.
func (m *MockGenerator) Requests() []generation.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]generation.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Reset clears the call tracking state
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// NewMockGeneratorWithMetadata creates a MockGenerator that returns metadata
func NewMockGeneratorWithMetadata(metadata domain.Metadata) *MockGenerator {
	return &MockGenerator{Metadata: &metadata}
}

// NewMockGeneratorWithError creates a MockGenerator that returns the specified error
func NewMockGeneratorWithError(err error) *MockGenerator {
	return &MockGenerator{Err: err}
}

// NewMockGeneratorWithDefaultMetadata creates a MockGenerator with a sample result
func NewMockGeneratorWithDefaultMetadata() *MockGenerator {
	return NewMockGeneratorWithMetadata(domain.Metadata{
		Title:       "Fishing boats moored in a quiet harbour at dawn",
		Description: "Wooden fishing boats rest on calm water as the sun rises over the harbour.",
		Keywords:    []string{"harbour", "boats", "fishing", "dawn", "sea", "travel"},
	})
}

// MockGeneratorThatFails creates a MockGenerator that simulates a generation failure
func MockGeneratorThatFails() *MockGenerator {
	return NewMockGeneratorWithError(generation.ErrGenerationFailed)
}

// MockGeneratorWithContentBlocked creates a MockGenerator that simulates content being blocked
func MockGeneratorWithContentBlocked() *MockGenerator {
	return NewMockGeneratorWithError(generation.ErrContentBlocked)
}

// MockGeneratorThatBlocks creates a MockGenerator whose calls wait until ctx
// ends, for exercising cancellation and timeouts.
func MockGeneratorThatBlocks() *MockGenerator {
	return &MockGenerator{
		GenerateMetadataFn: func(ctx context.Context, _ generation.Request) (*domain.Metadata, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
}
