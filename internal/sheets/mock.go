package sheets

import (
	"context"
	"sync"
)

// MockWriter records Write calls for tests.
type MockWriter struct {
	WriteFunc func(ctx context.Context, data ReportData) error
	calls     []ReportData
	mu        sync.Mutex
}

// NewMockWriter creates a new mock writer.
func NewMockWriter() *MockWriter {
	return &MockWriter{}
}

// Write implements ReportWriter.
func (m *MockWriter) Write(ctx context.Context, data ReportData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, data)
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, data)
	}
	return nil
}

// Calls returns a copy of every recorded report.
func (m *MockWriter) Calls() []ReportData {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]ReportData, len(m.calls))
	copy(calls, m.calls)
	return calls
}
