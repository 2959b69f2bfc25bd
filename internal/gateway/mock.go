package gateway

import (
	"context"
	"fmt"
)

// MockClient is a processor client for tests. Simulates status queries
// without touching the network.
type MockClient struct {
	// CheckTransactionStatusFunc overrides the default lookup behavior.
	CheckTransactionStatusFunc func(ctx context.Context, transactionID int64) (*StatusResult, error)

	// Results maps transaction ids to canned results.
	Results map[int64]*StatusResult

	// CallLog tracks queried transaction ids for test assertions.
	CallLog []int64
}

var _ Client = (*MockClient)(nil)

// NewMockClient creates an empty mock processor client.
func NewMockClient() *MockClient {
	return &MockClient{Results: make(map[int64]*StatusResult)}
}

// CheckTransactionStatus returns the canned result for the transaction id.
func (m *MockClient) CheckTransactionStatus(ctx context.Context, transactionID int64) (*StatusResult, error) {
	m.CallLog = append(m.CallLog, transactionID)

	if m.CheckTransactionStatusFunc != nil {
		return m.CheckTransactionStatusFunc(ctx, transactionID)
	}

	result, ok := m.Results[transactionID]
	if !ok {
		return nil, fmt.Errorf("mock gateway: unknown transaction %d", transactionID)
	}
	return result, nil
}
