// handlers/payment_routes.go
package handlers

import (
	"encoding/json"
	"strings"

	"event-registration-system/payments"
	"event-registration-system/services"

	"github.com/gofiber/fiber/v2"
)

// ipaymuCallback accepts both the JSON and the form-encoded notification.
type ipaymuCallback struct {
	ID         string `json:"id" form:"id"`
	TrxID      string `json:"trx_id" form:"trx_id"`
	Status     string `json:"status" form:"status"`
	Keterangan string `json:"keterangan" form:"keterangan"`
	Sign       string `json:"sign" form:"sign"`
}

type midtransCallback struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	StatusMessage     string `json:"status_message"`
	FraudStatus       string `json:"fraud_status"`
}

// SetupPaymentRoutes mounts the callback for the configured provider only.
func SetupPaymentRoutes(api fiber.Router, svc *services.PaymentService) {
	switch svc.Gateway.Name() {
	case payments.ProviderIpaymu:
		api.Post("/payments/ipaymu-callback", func(c *fiber.Ctx) error {
			var cb ipaymuCallback
			if err := c.BodyParser(&cb); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid callback body", "code": "VALIDATION"})
			}
			id := cb.ID
			if id == "" {
				id = cb.TrxID
			}
			return handleNotification(c, svc, payments.Notification{
				TransactionID: strings.TrimSpace(id),
				Status:        cb.Status,
				Message:       cb.Keterangan,
				Signature:     cb.Sign,
				Payload:       callbackPayload(c, cb),
			})
		})

	case payments.ProviderMidtrans:
		api.Post("/payments/midtrans-callback", func(c *fiber.Ctx) error {
			var cb midtransCallback
			if err := c.BodyParser(&cb); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid callback body", "code": "VALIDATION"})
			}
			return handleNotification(c, svc, payments.Notification{
				TransactionID: cb.OrderID,
				Status:        cb.TransactionStatus,
				StatusCode:    cb.StatusCode,
				GrossAmount:   cb.GrossAmount,
				Message:       cb.StatusMessage,
				Signature:     cb.SignatureKey,
				Payload:       callbackPayload(c, cb),
			})
		})
	}
}

func handleNotification(c *fiber.Ctx, svc *services.PaymentService, n payments.Notification) error {
	res, err := svc.HandleNotification(c.UserContext(), n)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// callbackPayload keeps the raw JSON body, or re-encodes a form body as JSON.
func callbackPayload(c *fiber.Ctx, parsed interface{}) []byte {
	if strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEApplicationJSON) {
		return append([]byte(nil), c.Body()...)
	}
	b, err := json.Marshal(parsed)
	if err != nil {
		return nil
	}
	return b
}
