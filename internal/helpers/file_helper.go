package helpers

import (
	"fmt"
	"os"
	"path/filepath"
)

type ReceiptStorageConfig struct {
	BasePath string
	FileMode os.FileMode
}

var DefaultReceiptStorageConfig = ReceiptStorageConfig{
	BasePath: "./receipts/",
	FileMode: 0o644,
}

// SaveReceiptFile writes a rendered receipt under BasePath/<group>/<name>.html
// and returns its path.
func SaveReceiptFile(content []byte, group, name string, configs ...ReceiptStorageConfig) (string, error) {
	config := DefaultReceiptStorageConfig
	if len(configs) > 0 {
		config = configs[0]
	}

	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid receipt file name %q", name)
	}

	dir := filepath.Join(config.BasePath, group)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", err
	}

	fullPath := filepath.Join(dir, name+".html")
	if err := os.WriteFile(fullPath, content, config.FileMode); err != nil {
		return "", err
	}

	return fullPath, nil
}
