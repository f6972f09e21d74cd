package payments

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/rs/zerolog/log"
)

const ProviderMidtrans = "midtrans"

// MidtransGateway uses Snap hosted checkout. The order id doubles as the
// transaction id stored on the registration.
type MidtransGateway struct {
	serverKey string
	client    snap.Client
}

func NewMidtransGateway(serverKey string, production bool) (*MidtransGateway, error) {
	if serverKey == "" {
		return nil, fmt.Errorf("midtrans server key is required")
	}
	g := &MidtransGateway{serverKey: serverKey}
	if production {
		g.client.New(serverKey, midtrans.Production)
	} else {
		g.client.New(serverKey, midtrans.Sandbox)
	}
	return g, nil
}

func (g *MidtransGateway) Name() string { return ProviderMidtrans }

func (g *MidtransGateway) CreateTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error) {
	if req.OrderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrGateway)
	}

	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderID,
			GrossAmt: req.Amount,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.PayerName,
			Email: req.PayerEmail,
			Phone: req.PayerPhone,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    req.OrderID,
				Name:  truncate(req.Description, 50),
				Price: req.Amount,
				Qty:   1,
			},
		},
		CustomField1: truncate(req.Note, 255),
	}

	resp, merr := g.client.CreateTransaction(snapReq)
	if merr != nil {
		observe(ProviderMidtrans, "create", merr)
		return nil, fmt.Errorf("%w: %s", ErrGateway, merr.Error())
	}
	observe(ProviderMidtrans, "create", nil)

	log.Info().Str("order_id", req.OrderID).Int64("amount", req.Amount).Msg("[MIDTRANS] snap transaction created")

	return &Transaction{
		ID:         req.OrderID,
		PaymentURL: resp.RedirectURL,
		Reference:  resp.Token,
	}, nil
}

// NotificationSignature is SHA512(order_id + status_code + gross_amount + server_key).
func (g *MidtransGateway) NotificationSignature(orderID, statusCode, grossAmount string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + g.serverKey))
	return hex.EncodeToString(sum[:])
}

func (g *MidtransGateway) VerifyNotification(n Notification) bool {
	if n.Signature == "" {
		return false
	}
	expected := g.NotificationSignature(n.TransactionID, n.StatusCode, n.GrossAmount)
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(n.Signature)), []byte(expected)) == 1
}

func (g *MidtransGateway) Classify(n Notification) Outcome {
	switch strings.ToLower(n.Status) {
	case "capture", "settlement":
		return OutcomeSuccess
	case "deny", "cancel", "expire", "failure":
		return OutcomeFailure
	}
	return OutcomeUnknown
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
