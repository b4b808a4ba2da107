package payment

import (
	"errors"
	"fmt"
)

var (
	ErrPaymentRejected     = errors.New("payment rejected by gateway")
	ErrVerificationTimeout = errors.New("payment verification timed out, verify manually")
	ErrWidgetCancelled     = errors.New("payment window closed before completion")
	ErrPaymentPending      = errors.New("payment is still pending")
	ErrInvalidTransition   = errors.New("invalid payment session transition")
	ErrSessionNotFound     = errors.New("payment session not found")
)

// RejectedError carries the gateway's reason for a failed payment.
type RejectedError struct {
	Reference string
	Code      string
	Message   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("payment %s rejected (%s): %s", e.Reference, e.Code, e.Message)
}

func (e *RejectedError) Unwrap() error { return ErrPaymentRejected }

// WidgetError is an error reported by the hosted payment window.
type WidgetError struct {
	Message string
}

func (e *WidgetError) Error() string {
	if e.Message == "" {
		return "payment window reported an error"
	}
	return "payment window reported an error: " + e.Message
}

type TransitionError struct {
	Op    string
	State State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while session is %s", e.Op, e.State)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
