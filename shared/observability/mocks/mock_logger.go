// Package mocks provides mock implementations for testing
package mocks

import (
	"context"

	"adimporter/shared/observability/types"

	"github.com/stretchr/testify/mock"
)

// MockLogger is a mock implementation of Logger interface
type MockLogger struct {
	mock.Mock
}

// NewPermissiveLogger returns a MockLogger that accepts any call; tests that
// do not assert on logging use it to keep expectations focused.
func NewPermissiveLogger() *MockLogger {
	m := &MockLogger{}
	m.On("Info", mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("Warn", mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("Debug", mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("Error", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("WithFields", mock.Anything).Return(m).Maybe()
	return m
}

// Info mocks the Info method
func (m *MockLogger) Info(ctx context.Context, msg string, fields types.Fields) {
	m.Called(ctx, msg, fields)
}

// Error mocks the Error method
func (m *MockLogger) Error(ctx context.Context, msg string, err error, fields types.Fields) {
	m.Called(ctx, msg, err, fields)
}

// Warn mocks the Warn method
func (m *MockLogger) Warn(ctx context.Context, msg string, fields types.Fields) {
	m.Called(ctx, msg, fields)
}

// Debug mocks the Debug method
func (m *MockLogger) Debug(ctx context.Context, msg string, fields types.Fields) {
	m.Called(ctx, msg, fields)
}

// WithFields mocks the WithFields method
func (m *MockLogger) WithFields(fields types.Fields) types.Logger {
	args := m.Called(fields)
	if logger, ok := args.Get(0).(types.Logger); ok {
		return logger
	}
	return m
}
