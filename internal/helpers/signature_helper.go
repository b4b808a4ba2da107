package helpers

import (
	"crypto"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrHashUnavailable = errors.New("sha-512 hash primitive unavailable")
	ErrEmptyHashField  = errors.New("hash input field is empty")
)

// RemitaHash returns the hex SHA-512 digest of the fields concatenated in
// the given order. The field order is fixed by the gateway contract.
// There is no fallback digest: a missing primitive or an empty field is an error.
func RemitaHash(fields ...string) (string, error) {
	if !crypto.SHA512.Available() {
		return "", ErrHashUnavailable
	}
	if len(fields) == 0 {
		return "", ErrEmptyHashField
	}

	h := sha512.New()
	for i, field := range fields {
		if field == "" {
			return "", fmt.Errorf("field %d: %w", i, ErrEmptyHashField)
		}
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func RemitaAuthorization(merchantID, hash string) string {
	return "remitaConsumerKey=" + merchantID + ",remitaConsumerToken=" + hash
}

func RemitaHeaders(merchantID, hash string) map[string]string {
	return map[string]string{
		"Content-Type":  "application/json",
		"Authorization": RemitaAuthorization(merchantID, hash),
	}
}

// ReceiptSignature signs the identifying parts of a receipt for its QR payload.
func ReceiptSignature(secretKey string, parts ...string) string {
	h := hmac.New(sha256.New, []byte(secretKey))
	h.Write([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(h.Sum(nil))
}

func ValidReceiptSignature(secretKey, signature string, parts ...string) bool {
	expected := ReceiptSignature(secretKey, parts...)
	return hmac.Equal([]byte(expected), []byte(signature))
}
