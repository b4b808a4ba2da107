package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/farellandr/schoolfees/internal/helpers"
)

type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomePending   Outcome = "pending"
	OutcomeFailed    Outcome = "failed"
)

const (
	CodePaid        = "00"
	CodeApproved    = "01"
	CodePending     = "021"
	CodeInvalidRRR  = "023"
	unknownCodeText = "Unknown Status"
)

type VerificationOutcome struct {
	Outcome     Outcome `json:"outcome"`
	Code        string  `json:"code"`
	Message     string  `json:"message"`
	Amount      int64   `json:"amount,omitempty"`
	PaymentDate string  `json:"payment_date,omitempty"`
	Raw         []byte  `json:"-"`
}

func StatusText(code string) string {
	switch code {
	case CodePaid, CodeApproved:
		return "Payment Successful"
	case CodePending:
		return "Transaction Pending"
	case CodeInvalidRRR:
		return "Invalid RRR"
	default:
		return unknownCodeText
	}
}

func OutcomeFor(code string) Outcome {
	switch code {
	case CodePaid, CodeApproved:
		return OutcomeConfirmed
	case CodePending:
		return OutcomePending
	default:
		return OutcomeFailed
	}
}

type statusReply struct {
	Status        string          `json:"status"`
	StatusCode    string          `json:"statuscode"`
	StatusMessage string          `json:"statusMessage"`
	Message       string          `json:"message"`
	Amount        json.RawMessage `json:"amount"`
	PaymentDate   string          `json:"paymentDate"`
}

// Verify performs a single status probe for rrr. Gateway-reported failures
// come back as an OutcomeFailed result; only transport problems are errors.
func (c *Client) Verify(ctx context.Context, rrr string) (*VerificationOutcome, error) {
	rrr = strings.TrimSpace(rrr)
	if rrr == "" {
		return nil, &ValidationError{Field: "rrr", Message: "is required"}
	}

	hash, err := helpers.RemitaHash(rrr, c.cfg.APIKey, c.cfg.MerchantID)
	if err != nil {
		return nil, &VerificationError{Reference: rrr, Message: "failed to sign status request", Err: err}
	}

	url := c.cfg.BaseURL + fmt.Sprintf(statusPathFmt, c.cfg.MerchantID, rrr, hash)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &VerificationError{Reference: rrr, Message: "failed to create status request", Err: err}
	}
	for key, value := range helpers.RemitaHeaders(c.cfg.MerchantID, hash) {
		httpReq.Header.Set(key, value)
	}

	body, err := c.do(httpReq)
	if err != nil {
		return nil, &VerificationError{Reference: rrr, Message: "failed to verify payment", Err: err}
	}

	payload, err := helpers.ExtractJSONObject(body)
	if err != nil {
		return nil, &VerificationError{Reference: rrr, Message: "invalid response from verification server", Err: err}
	}

	var reply statusReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		return nil, &VerificationError{Reference: rrr, Message: "invalid response from verification server", Err: err}
	}

	code := reply.Status
	if code == "" {
		code = reply.StatusCode
	}

	msg := reply.StatusMessage
	if msg == "" {
		msg = reply.Message
	}
	if msg == "" {
		msg = StatusText(code)
	}

	outcome := &VerificationOutcome{
		Outcome:     OutcomeFor(code),
		Code:        code,
		Message:     msg,
		Amount:      parseAmount(reply.Amount),
		PaymentDate: reply.PaymentDate,
		Raw:         payload,
	}

	log.Printf("[REMITA] status rrr=%s code=%s outcome=%s", rrr, code, outcome.Outcome)
	return outcome, nil
}

// parseAmount accepts 120000, 120000.00 or "120000". Fractions of a naira are dropped.
func parseAmount(raw json.RawMessage) int64 {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}
