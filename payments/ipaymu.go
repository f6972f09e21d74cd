package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	ProviderIpaymu = "ipaymu"

	ipaymuPath = "/api/transaksi/merchant"

	ipaymuStatusSuccess = "berhasil"
	ipaymuStatusFailure = "gagal"
)

// IpaymuGateway creates hosted payments on iPaymu. Every request is signed with
// HMAC-SHA256(apiKey, merchantCode + "POST" + apiKey).
type IpaymuGateway struct {
	BaseURL      string
	APIKey       string
	MerchantCode string
	HTTPClient   *http.Client
}

func NewIpaymuGateway(baseURL, apiKey, merchantCode string) (*IpaymuGateway, error) {
	if apiKey == "" || merchantCode == "" {
		return nil, fmt.Errorf("iPaymu API key and merchant code are required")
	}
	return &IpaymuGateway{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		APIKey:       apiKey,
		MerchantCode: merchantCode,
		HTTPClient:   defaultHTTPClient(),
	}, nil
}

func (g *IpaymuGateway) Name() string { return ProviderIpaymu }

// Signature returns the lowercase hex signature shared by requests and callbacks.
func (g *IpaymuGateway) Signature() string {
	mac := hmac.New(sha256.New, []byte(g.APIKey))
	mac.Write([]byte(g.MerchantCode + http.MethodPost + g.APIKey))
	return hex.EncodeToString(mac.Sum(nil))
}

type ipaymuPaymentRequest struct {
	Product    []string `json:"product"`
	Qty        []int    `json:"qty"`
	Price      []int64  `json:"price"`
	Amount     int64    `json:"amount"`
	Note       string   `json:"note"`
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Phone      string   `json:"phone"`
	ReturnURL  string   `json:"returnUrl"`
	NotifyURL  string   `json:"notifyUrl"`
	Action     string   `json:"action"`
	MerchantID string   `json:"merchantid"`
}

type ipaymuPaymentResponse struct {
	Status        int    `json:"Status"`
	Message       string `json:"Message"`
	KodeTransaksi string `json:"KodeTransaksi"`
	Waktu         string `json:"Waktu"`
	PaymentURL    string `json:"PaymentUrl"`
	ReferenceID   string `json:"ReferenceId"`
}

func (g *IpaymuGateway) CreateTransaction(ctx context.Context, req TransactionRequest) (tx *Transaction, err error) {
	defer func() { observe(ProviderIpaymu, "create", err) }()

	body := ipaymuPaymentRequest{
		Product:    []string{req.Description},
		Qty:        []int{1},
		Price:      []int64{req.Amount},
		Amount:     req.Amount,
		Note:       req.Note,
		Name:       req.PayerName,
		Email:      req.PayerEmail,
		Phone:      req.PayerPhone,
		ReturnURL:  req.ReturnURL,
		NotifyURL:  req.NotifyURL,
		Action:     "payment",
		MerchantID: g.MerchantCode,
	}

	var resp ipaymuPaymentResponse
	if err := g.post(ctx, body, &resp); err != nil {
		return nil, err
	}
	if resp.KodeTransaksi == "" {
		return nil, fmt.Errorf("%w: iPaymu returned no transaction id (%s)", ErrGateway, resp.Message)
	}

	log.Info().Str("transaction_id", resp.KodeTransaksi).Int64("amount", req.Amount).
		Msg("[IPAYMU] transaction created")

	return &Transaction{
		ID:         resp.KodeTransaksi,
		PaymentURL: resp.PaymentURL,
		Reference:  resp.ReferenceID,
	}, nil
}

// TransactionStatus polls iPaymu for a transaction created earlier.
func (g *IpaymuGateway) TransactionStatus(ctx context.Context, transactionID string) (outcome Outcome, raw string, err error) {
	defer func() { observe(ProviderIpaymu, "status", err) }()

	body := map[string]string{
		"action":     "status",
		"id":         transactionID,
		"merchantid": g.MerchantCode,
	}
	var resp struct {
		Status  int    `json:"Status"`
		Message string `json:"Message"`
		Data    struct {
			Status     int    `json:"Status"`
			StatusDesc string `json:"StatusDesc"`
		} `json:"Data"`
	}
	if err := g.post(ctx, body, &resp); err != nil {
		return OutcomeUnknown, "", err
	}

	raw = strings.ToLower(strings.TrimSpace(resp.Data.StatusDesc))
	switch raw {
	case ipaymuStatusSuccess:
		return OutcomeSuccess, raw, nil
	case ipaymuStatusFailure, "expired":
		return OutcomeFailure, raw, nil
	}
	return OutcomeUnknown, raw, nil
}

// Refund asks iPaymu to refund a transaction. A zero amount refunds in full.
func (g *IpaymuGateway) Refund(ctx context.Context, transactionID string, amount int64) (err error) {
	defer func() { observe(ProviderIpaymu, "refund", err) }()

	body := map[string]interface{}{
		"action":     "refund",
		"id":         transactionID,
		"merchantid": g.MerchantCode,
	}
	if amount > 0 {
		body["amount"] = amount
	}
	var resp map[string]interface{}
	return g.post(ctx, body, &resp)
}

// VerifyNotification checks the callback signature. It does not look at the status.
func (g *IpaymuGateway) VerifyNotification(n Notification) bool {
	if n.Signature == "" {
		return false
	}
	return hmac.Equal([]byte(strings.ToLower(n.Signature)), []byte(g.Signature()))
}

func (g *IpaymuGateway) Classify(n Notification) Outcome {
	switch strings.ToLower(strings.TrimSpace(n.Status)) {
	case ipaymuStatusSuccess:
		return OutcomeSuccess
	case ipaymuStatusFailure:
		return OutcomeFailure
	}
	return OutcomeUnknown
}

func (g *IpaymuGateway) post(ctx context.Context, payload interface{}, out interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode iPaymu request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+ipaymuPath, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrGateway, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("signature", g.Signature())
	req.Header.Set("va", g.MerchantCode)
	req.Header.Set("Content-Request", "JSON")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("[IPAYMU] ❌ request rejected")
		return fmt.Errorf("%w: iPaymu returned %d: %s", ErrGateway, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode iPaymu response: %v", ErrGateway, err)
	}
	return nil
}
