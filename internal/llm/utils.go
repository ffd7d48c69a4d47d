package llm

import (
	"encoding/base64"
	"fmt"
	"os"
)

// ReadImageBase64 reads the file at path and returns its standard base64 encoding.
func ReadImageBase64(path string) (string, int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("read image %q: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(b), len(b), nil
}
