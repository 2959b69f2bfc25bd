// Package gateway talks to the external payment processor. The processor
// authenticates clients with a short-lived bearer token obtained through a
// credential exchange; transaction status is queried by transaction id.
//
// Callbacks from the processor are never trusted at face value - the
// reconciler re-checks the authoritative status through this client.
package gateway

import "context"

// StatusResult is the processor's answer to a transaction status query.
type StatusResult struct {
	Success       bool   `json:"success"`
	Status        string `json:"status"`
	OrderStatus   string `json:"orderStatus"`
	BankOrderID   string `json:"bankOrderId"`
	BankSessionID string `json:"bankSessionId"`
	Error         string `json:"error,omitempty"`
}

// Client queries the payment processor.
// Implementations must treat "no token available" as a normal, recoverable
// failure: return an error, never block or panic.
type Client interface {
	// CheckTransactionStatus fetches the authoritative status of a gateway
	// transaction. A returned error means "status unknown, retry later" -
	// callers must not interpret it as a payment failure.
	CheckTransactionStatus(ctx context.Context, transactionID int64) (*StatusResult, error)
}
