// Package receipt renders payment receipts and issues receipt numbers.
package receipt

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"math/rand"
	"time"

	"github.com/farellandr/schoolfees/internal/helpers"
	"github.com/farellandr/schoolfees/internal/models"
)

const DefaultSchoolName = "School Name Academy"

// NewNumber returns a receipt number of the form RCP-12345678.
func NewNumber() string {
	return fmt.Sprintf("RCP-%08d", rand.Intn(100_000_000))
}

// URLFor is where the API serves the rendered receipt for a payment record.
func URLFor(payment *models.Payment) string {
	return fmt.Sprintf("/v1/payments/%s/receipt", payment.ID)
}

type Line struct {
	StudentName string
	Class       string
	Session     string
	Term        string
	Amount      int64
}

type Receipt struct {
	SchoolName    string
	ReceiptNumber string
	TransactionID string
	PayerEmail    string
	Status        string
	PaidAt        time.Time
	Lines         []Line
}

func (r Receipt) Total() int64 {
	var total int64
	for _, l := range r.Lines {
		total += l.Amount
	}
	return total
}

func (r Receipt) Bulk() bool {
	return len(r.Lines) > 1
}

// FromPayments builds one receipt for records that share a gateway reference.
// A single record gives a single-student receipt.
func FromPayments(schoolName string, payments ...models.Payment) (Receipt, error) {
	if len(payments) == 0 {
		return Receipt{}, fmt.Errorf("receipt needs at least one payment")
	}
	if schoolName == "" {
		schoolName = DefaultSchoolName
	}

	first := payments[0]
	r := Receipt{
		SchoolName:    schoolName,
		ReceiptNumber: first.ReceiptNumber,
		TransactionID: first.TransactionID,
		Status:        first.Status,
		PaidAt:        first.CreatedAt,
		PayerEmail:    payerEmail(first.Student),
	}
	for _, p := range payments {
		if p.TransactionID != first.TransactionID {
			return Receipt{}, fmt.Errorf("payment %s belongs to reference %s, not %s", p.ID, p.TransactionID, first.TransactionID)
		}
		line := Line{Amount: p.Amount, Session: p.Session, Term: p.Term}
		if p.Student != nil {
			line.StudentName = p.Student.Name
			line.Class = p.Student.Class
		}
		r.Lines = append(r.Lines, line)
	}
	return r, nil
}

func payerEmail(student *models.Student) string {
	if student != nil && student.Email != "" {
		return student.Email
	}
	return "student@schoolpay.com"
}

var funcs = template.FuncMap{
	"naira": helpers.FormatNaira,
	"date":  func(t time.Time) string { return t.Format("02 Jan 2006") },
	"clock": func(t time.Time) string { return t.Format("15:04:05") },
}

var page = template.Must(template.New("receipt").Funcs(funcs).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Payment Receipt - {{.ReceiptNumber}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 40px; color: #333; }
.receipt-content { max-width: 600px; margin: 0 auto; }
.receipt-header { text-align: center; margin-bottom: 30px; border-bottom: 2px solid #333; padding-bottom: 20px; }
.receipt-section { margin-bottom: 20px; padding: 15px; background-color: #f9f9f9; border-radius: 5px; }
.receipt-row { display: flex; justify-content: space-between; margin-bottom: 8px; }
.receipt-total { border-top: 2px solid #000; padding-top: 15px; font-weight: bold; font-size: 18px; }
table { width: 100%; border-collapse: collapse; }
th, td { text-align: left; padding: 6px; border-bottom: 1px solid #ddd; }
@media print { .receipt-section { break-inside: avoid; } }
</style>
</head>
<body>
<div class="receipt-content">
  <div class="receipt-header">
    <h1>{{.SchoolName}}</h1>
    <h2>{{if .Bulk}}Bulk Payment Receipt{{else}}Payment Receipt{{end}}</h2>
    <p><strong>Receipt Number:</strong> {{.ReceiptNumber}}</p>
  </div>
  <div class="receipt-section">
    <h3>Payment Details</h3>
    <div class="receipt-row"><span>Transaction ID:</span><span>{{.TransactionID}}</span></div>
    <div class="receipt-row"><span>Payment Date:</span><span>{{date .PaidAt}}</span></div>
    <div class="receipt-row"><span>Payment Time:</span><span>{{clock .PaidAt}}</span></div>
    <div class="receipt-row"><span>Payment Method:</span><span>Remita</span></div>
    <div class="receipt-row"><span>Status:</span><span>{{.Status}}</span></div>
    <div class="receipt-row"><span>Payer Email:</span><span>{{.PayerEmail}}</span></div>
  </div>
  {{if .Bulk}}
  <div class="receipt-section">
    <h3>Students</h3>
    <table>
      <tr><th>Student</th><th>Class</th><th>Session</th><th>Amount</th></tr>
      {{range .Lines}}<tr><td>{{.StudentName}}</td><td>{{.Class}}</td><td>{{.Session}} {{.Term}}</td><td>{{naira .Amount}}</td></tr>
      {{end}}
    </table>
  </div>
  {{else}}{{with index .Lines 0}}
  <div class="receipt-section">
    <h3>Student Information</h3>
    <div class="receipt-row"><span>Student Name:</span><span>{{.StudentName}}</span></div>
    <div class="receipt-row"><span>Class:</span><span>{{.Class}}</span></div>
    <div class="receipt-row"><span>Session:</span><span>{{.Session}}</span></div>
    <div class="receipt-row"><span>Term:</span><span>{{.Term}}</span></div>
  </div>
  {{end}}{{end}}
  <div class="receipt-section">
    <div class="receipt-row receipt-total"><span>Total Amount Paid:</span><span>{{naira .Total}}</span></div>
  </div>
  <p style="text-align:center">Thank you for your payment.</p>
</div>
</body>
</html>
`))

func Render(w io.Writer, r Receipt) error {
	if len(r.Lines) == 0 {
		return fmt.Errorf("receipt %s has no lines", r.ReceiptNumber)
	}
	return page.Execute(w, r)
}

func RenderBytes(r Receipt) ([]byte, error) {
	var buf bytes.Buffer
	if err := Render(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
