package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"event-registration-system/payments"
)

// fakeGateway records calls and lets tests pick outcomes.
type fakeGateway struct {
	mu         sync.Mutex
	created    []payments.TransactionRequest
	refunds    []string
	createErr  error
	refundErr  error
	validSig   string
	statuses   map[string]payments.Outcome
	statusErrs map[string]error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		validSig:   "good-signature",
		statuses:   map[string]payments.Outcome{},
		statusErrs: map[string]error{},
	}
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) CreateTransaction(_ context.Context, req payments.TransactionRequest) (*payments.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = append(g.created, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	id := fmt.Sprintf("TRX-%d", len(g.created))
	return &payments.Transaction{ID: id, PaymentURL: "https://pay.example.com/" + id}, nil
}

func (g *fakeGateway) VerifyNotification(n payments.Notification) bool {
	return n.Signature == g.validSig
}

func (g *fakeGateway) Classify(n payments.Notification) payments.Outcome {
	switch n.Status {
	case "berhasil":
		return payments.OutcomeSuccess
	case "gagal":
		return payments.OutcomeFailure
	}
	return payments.OutcomeUnknown
}

func (g *fakeGateway) TransactionStatus(_ context.Context, id string) (payments.Outcome, string, error) {
	if err := g.statusErrs[id]; err != nil {
		return payments.OutcomeUnknown, "", err
	}
	o, ok := g.statuses[id]
	if !ok {
		return payments.OutcomeUnknown, "pending", nil
	}
	return o, string(o), nil
}

func (g *fakeGateway) Refund(_ context.Context, id string, _ int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunds = append(g.refunds, id)
	return nil
}

func (g *fakeGateway) createCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.created)
}

// plainGateway has none of the optional capabilities.
type plainGateway struct{ g *fakeGateway }

func (p plainGateway) Name() string { return p.g.Name() }

func (p plainGateway) CreateTransaction(ctx context.Context, req payments.TransactionRequest) (*payments.Transaction, error) {
	return p.g.CreateTransaction(ctx, req)
}

func (p plainGateway) VerifyNotification(n payments.Notification) bool { return p.g.VerifyNotification(n) }

func (p plainGateway) Classify(n payments.Notification) payments.Outcome { return p.g.Classify(n) }

var errGatewayDown = errors.New("gateway down")
