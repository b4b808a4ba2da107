package gateway

import "fmt"

// ValidationError is a caller-fixable input problem; it never reaches the network.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// GatewayError is a transport failure or unusable response from reference issuance.
type GatewayError struct {
	Message       string
	CorrelationID string
	StatusCode    string
	Err           error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remita [%s]: %s: %v", e.CorrelationID, e.Message, e.Err)
	}
	return fmt.Sprintf("remita [%s]: %s", e.CorrelationID, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// VerificationError is a transport failure or unreadable reply during a status probe.
type VerificationError struct {
	Reference string
	Message   string
	Err       error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("verify %s: %s: %v", e.Reference, e.Message, e.Err)
	}
	return fmt.Sprintf("verify %s: %s", e.Reference, e.Message)
}

func (e *VerificationError) Unwrap() error { return e.Err }
