package helpers

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemitaHash(t *testing.T) {
	// SHA-512("abc")
	const abc = "ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a" +
		"2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f"

	got, err := RemitaHash("a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, abc, got)
	assert.Len(t, got, 128)

	whole, err := RemitaHash("abc")
	require.NoError(t, err)
	assert.Equal(t, got, whole)
}

func TestRemitaHash_FailsClosed(t *testing.T) {
	_, err := RemitaHash("2547916", "", "1946")
	assert.ErrorIs(t, err, ErrEmptyHashField)

	_, err = RemitaHash()
	assert.ErrorIs(t, err, ErrEmptyHashField)
}

func TestReceiptSignature(t *testing.T) {
	sig := ReceiptSignature("secret", "pay-1", "student-1", "RRR123")
	assert.True(t, ValidReceiptSignature("secret", sig, "pay-1", "student-1", "RRR123"))
	assert.False(t, ValidReceiptSignature("secret", sig, "pay-1", "student-2", "RRR123"))
	assert.False(t, ValidReceiptSignature("other", sig, "pay-1", "student-1", "RRR123"))
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", `{"RRR":"1"}`, `{"RRR":"1"}`, false},
		{"whitespace", "  {\"RRR\":\"1\"}\n", `{"RRR":"1"}`, false},
		{"jsonp", `jsonp123({"RRR":"1"})`, `{"RRR":"1"}`, false},
		{"bracketed", `[{"RRR":"1"}]`, `{"RRR":"1"}`, false},
		{"nested", `cb({"a":{"b":1}});`, `{"a":{"b":1}}`, false},
		{"html", `<html>oops</html>`, "", true},
		{"broken", `cb({"a":)`, "", true},
		{"empty", ``, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONObject([]byte(tt.in))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoJSONObject)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestNewOrderID_UniqueUnderConcurrency(t *testing.T) {
	const workers, perWorker = 16, 200

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := NewOrderID()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestFormatNaira(t *testing.T) {
	assert.Equal(t, "₦120,000.00", FormatNaira(120000))
	assert.Equal(t, "₦500.00", FormatNaira(500))
	assert.Equal(t, "₦1,000,000.00", FormatNaira(1000000))
	assert.Equal(t, "₦0.00", FormatNaira(0))
	assert.Equal(t, "-₦2,500.00", FormatNaira(-2500))
	assert.Equal(t, "180000.00", FormatAmount(180000))
}

func TestSaveReceiptFile(t *testing.T) {
	cfg := ReceiptStorageConfig{BasePath: t.TempDir(), FileMode: 0o600}

	path, err := SaveReceiptFile([]byte("<html></html>"), "2024/2025", "RCP-00000042", cfg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.BasePath, "2024", "2025", "RCP-00000042.html"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(content))

	_, err = SaveReceiptFile(nil, "x", "../escape", cfg)
	assert.Error(t, err)
}
