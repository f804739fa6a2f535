package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"adimporter/shared/domain/entity/creative"
)

// MockCreativeStore is a mock implementation of domain.CreativeStore
type MockCreativeStore struct {
	mock.Mock
}

// NewPermissiveCreativeStore accepts every write and reports nothing as
// already imported.
func NewPermissiveCreativeStore() *MockCreativeStore {
	m := &MockCreativeStore{}
	m.On("Exists", mock.Anything, mock.Anything).Return(false, nil).Maybe()
	m.On("UpsertCreative", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("UpsertCard", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PruneCards", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return m
}

func (m *MockCreativeStore) Exists(ctx context.Context, adArchiveID string) (bool, error) {
	args := m.Called(ctx, adArchiveID)
	return args.Bool(0), args.Error(1)
}

func (m *MockCreativeStore) UpsertCreative(ctx context.Context, row *creative.Row) error {
	args := m.Called(ctx, row)
	return args.Error(0)
}

func (m *MockCreativeStore) UpsertCard(ctx context.Context, row *creative.CardRow) error {
	args := m.Called(ctx, row)
	return args.Error(0)
}

func (m *MockCreativeStore) PruneCards(ctx context.Context, adArchiveID string, keep int) error {
	args := m.Called(ctx, adArchiveID, keep)
	return args.Error(0)
}

// UpsertedCreatives returns every row passed to UpsertCreative.
func (m *MockCreativeStore) UpsertedCreatives() []*creative.Row {
	var rows []*creative.Row
	for _, call := range m.Calls {
		if call.Method == "UpsertCreative" {
			rows = append(rows, call.Arguments.Get(1).(*creative.Row))
		}
	}
	return rows
}
