package helpers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrNoJSONObject = errors.New("response does not contain a JSON object")

var orderSeq atomic.Uint64

func StringToInt(s string) (int, error) {
	return strconv.Atoi(s)
}

// NewOrderID returns a client order id, unique within the process.
// The counter suffix keeps ids distinct even when the clock and the
// random part collide.
func NewOrderID() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	return fmt.Sprintf("SCH_%d_%s_%d", time.Now().UnixMilli(), random, orderSeq.Add(1))
}

func CorrelationID() string {
	return fmt.Sprintf("ERR_%d", time.Now().UnixMilli())
}

// ExtractJSONObject returns body when it is a JSON object, otherwise the
// text between the first '{' and the last '}' (JSONP or padded replies).
func ExtractJSONObject(body []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed) {
		return trimmed, nil
	}

	start := bytes.IndexByte(trimmed, '{')
	end := bytes.LastIndexByte(trimmed, '}')
	if start == -1 || end == -1 || end < start {
		return nil, ErrNoJSONObject
	}

	inner := trimmed[start : end+1]
	if !json.Valid(inner) {
		return nil, ErrNoJSONObject
	}
	return inner, nil
}

// FormatNaira renders an amount in whole naira as "₦120,000.00".
func FormatNaira(amount int64) string {
	fixed := decimal.NewFromInt(amount).StringFixed(2)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}

	whole, frac, _ := strings.Cut(fixed, ".")
	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}

	return sign + "₦" + grouped.String() + "." + frac
}

// FormatAmount renders an amount for machine-readable exports ("120000.00").
func FormatAmount(amount int64) string {
	return decimal.NewFromInt(amount).StringFixed(2)
}
