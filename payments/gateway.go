// Package payments talks to external payment gateways.
package payments

import (
	"context"
	"errors"
	"net/http"
	"time"

	"event-registration-system/metrics"
)

// ErrGateway wraps every transport or non-success response from a gateway.
var ErrGateway = errors.New("payment gateway error")

type Outcome string

const (
	OutcomeUnknown Outcome = "unknown"
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// TransactionRequest describes a single hosted-checkout transaction.
type TransactionRequest struct {
	OrderID     string
	Description string
	Note        string
	Amount      int64
	PayerName   string
	PayerEmail  string
	PayerPhone  string
	ReturnURL   string
	NotifyURL   string
}

type Transaction struct {
	ID         string
	PaymentURL string
	Reference  string
}

// Notification is a gateway callback after provider-specific decoding.
// StatusCode and GrossAmount are only populated by providers that sign them.
type Notification struct {
	TransactionID string
	Status        string
	StatusCode    string
	GrossAmount   string
	Message       string
	Signature     string
	Payload       []byte
}

type Gateway interface {
	Name() string
	CreateTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error)
	VerifyNotification(n Notification) bool
	Classify(n Notification) Outcome
}

// StatusChecker is implemented by gateways that can be polled for a transaction's state.
type StatusChecker interface {
	TransactionStatus(ctx context.Context, transactionID string) (Outcome, string, error)
}

// Refunder is implemented by gateways that support refunds through the API.
type Refunder interface {
	Refund(ctx context.Context, transactionID string, amount int64) error
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

func observe(provider, operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.GatewayRequests.WithLabelValues(provider, operation, result).Inc()
}
