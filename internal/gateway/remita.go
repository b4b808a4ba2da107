// Package gateway talks to the Remita e-channel API: issuing payment
// references (RRR) and probing their status.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/farellandr/schoolfees/internal/helpers"
)

const (
	referencePath = "/remita/exapp/api/v1/send/api/echannelsvc/merchant/api/paymentinit"
	statusPathFmt = "/remita/exapp/api/v1/send/api/echannelsvc/%s/%s/%s/status.reg"

	DefaultPayerEmail = "student@schoolpay.com"
	DefaultPayerPhone = "08012345678"

	StatusIssued = "issued"
)

type Config struct {
	BaseURL       string
	MerchantID    string
	ServiceTypeID string
	APIKey        string
	Timeout       time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	newOrderID func() string
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithOrderIDs(fn func() string) Option {
	return func(c *Client) { c.newOrderID = fn }
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		newOrderID: helpers.NewOrderID,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type CustomField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  string `json:"type"`
}

type ReferenceRequest struct {
	Amount       int64
	PayerName    string
	PayerEmail   string
	PayerPhone   string
	Description  string
	CustomFields []CustomField
}

type PaymentReference struct {
	RRR      string    `json:"rrr"`
	Amount   int64     `json:"amount"`
	OrderID  string    `json:"order_id"`
	IssuedAt time.Time `json:"issued_at"`
	Status   string    `json:"status"`
	Message  string    `json:"message,omitempty"`
}

type referenceBody struct {
	ServiceTypeID string        `json:"serviceTypeId"`
	Amount        string        `json:"amount"`
	OrderID       string        `json:"orderId"`
	PayerName     string        `json:"payerName"`
	PayerEmail    string        `json:"payerEmail"`
	PayerPhone    string        `json:"payerPhone"`
	Description   string        `json:"description"`
	CustomFields  []CustomField `json:"customFields"`
}

type referenceReply struct {
	RRR           string `json:"RRR"`
	StatusCode    string `json:"statuscode"`
	StatusMessage string `json:"statusMessage"`
	Status        string `json:"status"`
}

// GenerateReference asks the gateway for a single-use RRR. It makes exactly
// one request; retrying is the caller's decision.
func (c *Client) GenerateReference(ctx context.Context, req ReferenceRequest) (*PaymentReference, error) {
	if req.Amount <= 0 {
		return nil, &ValidationError{Field: "amount", Message: "must be greater than 0"}
	}
	if strings.TrimSpace(req.PayerName) == "" {
		return nil, &ValidationError{Field: "payer_name", Message: "is required"}
	}

	orderID := c.newOrderID()
	amount := strconv.FormatInt(req.Amount, 10)

	hash, err := helpers.RemitaHash(c.cfg.MerchantID, c.cfg.ServiceTypeID, orderID, amount, c.cfg.APIKey)
	if err != nil {
		return nil, &GatewayError{Message: "failed to sign reference request", CorrelationID: orderID, Err: err}
	}

	email := req.PayerEmail
	if email == "" {
		email = DefaultPayerEmail
	}
	phone := req.PayerPhone
	if phone == "" {
		phone = DefaultPayerPhone
	}
	fields := req.CustomFields
	if len(fields) == 0 {
		fields = []CustomField{{Name: "Student ID", Value: orderID, Type: "ALL"}}
	}

	jsonBody, err := json.Marshal(referenceBody{
		ServiceTypeID: c.cfg.ServiceTypeID,
		Amount:        amount,
		OrderID:       orderID,
		PayerName:     req.PayerName,
		PayerEmail:    email,
		PayerPhone:    phone,
		Description:   req.Description,
		CustomFields:  fields,
	})
	if err != nil {
		return nil, &GatewayError{Message: "failed to prepare reference request", CorrelationID: orderID, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+referencePath, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, &GatewayError{Message: "failed to create reference request", CorrelationID: orderID, Err: err}
	}
	for key, value := range helpers.RemitaHeaders(c.cfg.MerchantID, hash) {
		httpReq.Header.Set(key, value)
	}

	log.Printf("[REMITA] requesting reference order=%s amount=%s", orderID, amount)

	body, err := c.do(httpReq)
	if err != nil {
		correlationID := helpers.CorrelationID()
		log.Printf("[REMITA] reference request failed order=%s correlation=%s: %v", orderID, correlationID, err)
		return nil, &GatewayError{Message: "failed to connect to Remita", CorrelationID: correlationID, Err: err}
	}

	payload, err := helpers.ExtractJSONObject(body)
	if err != nil {
		return nil, &GatewayError{Message: "unreadable reference response", CorrelationID: orderID, Err: err}
	}

	var reply referenceReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		return nil, &GatewayError{Message: "unreadable reference response", CorrelationID: orderID, Err: err}
	}

	if reply.RRR == "" {
		msg := reply.StatusMessage
		if msg == "" {
			msg = "failed to generate RRR"
		}
		log.Printf("[REMITA] reference refused order=%s code=%s msg=%s", orderID, reply.StatusCode, msg)
		return nil, &GatewayError{Message: msg, CorrelationID: orderID, StatusCode: reply.StatusCode}
	}

	msg := reply.StatusMessage
	if msg == "" {
		msg = "RRR generated successfully"
	}

	return &PaymentReference{
		RRR:      reply.RRR,
		Amount:   req.Amount,
		OrderID:  orderID,
		IssuedAt: c.now(),
		Status:   StatusIssued,
		Message:  msg,
	}, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("gateway returned %s", resp.Status)
	}
	return body, nil
}
