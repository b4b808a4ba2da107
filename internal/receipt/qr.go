package receipt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/farellandr/schoolfees/internal/helpers"
	"github.com/farellandr/schoolfees/internal/models"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

var ErrInvalidQRData = errors.New("invalid QR data format")

// QRData is the signed text encoded in a receipt QR code.
func QRData(secretKey string, payment *models.Payment) string {
	signature := helpers.ReceiptSignature(secretKey, payment.ID.String(), payment.StudentID.String(), payment.TransactionID)
	return fmt.Sprintf("payment:%s;student:%s;reference:%s;signature:%s",
		payment.ID, payment.StudentID, payment.TransactionID, signature)
}

func QRCode(secretKey string, payment *models.Payment) ([]byte, error) {
	return qrcode.Encode(QRData(secretKey, payment), qrcode.Medium, 256)
}

type QRClaims struct {
	PaymentID uuid.UUID
	StudentID uuid.UUID
	Reference string
	Signature string
}

func ParseQRData(data string) (*QRClaims, error) {
	parts := strings.Split(strings.TrimSpace(data), ";")
	if len(parts) != 4 {
		return nil, ErrInvalidQRData
	}
	values := make([]string, 4)
	for i, prefix := range []string{"payment:", "student:", "reference:", "signature:"} {
		if !strings.HasPrefix(parts[i], prefix) {
			return nil, ErrInvalidQRData
		}
		values[i] = strings.TrimPrefix(parts[i], prefix)
	}

	paymentID, err := uuid.Parse(values[0])
	if err != nil {
		return nil, ErrInvalidQRData
	}
	studentID, err := uuid.Parse(values[1])
	if err != nil {
		return nil, ErrInvalidQRData
	}
	return &QRClaims{PaymentID: paymentID, StudentID: studentID, Reference: values[2], Signature: values[3]}, nil
}

// Matches reports whether the claims were signed with secretKey and describe payment.
func (q *QRClaims) Matches(secretKey string, payment *models.Payment) bool {
	if payment.ID != q.PaymentID || payment.StudentID != q.StudentID || payment.TransactionID != q.Reference {
		return false
	}
	return helpers.ValidReceiptSignature(secretKey, q.Signature,
		payment.ID.String(), payment.StudentID.String(), payment.TransactionID)
}
