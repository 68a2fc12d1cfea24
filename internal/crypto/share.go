package crypto

import (
	"crypto/rand"
	"fmt"
)

// ShareSuffixBytes - размер случайной части адреса share
const ShareSuffixBytes = 10

// GenerateShareAddress создает новый адрес share "+name.suffix"
// со случайным base32 суффиксом
func GenerateShareAddress(name string) (string, error) {
	raw := make([]byte, ShareSuffixBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate share suffix: %w", err)
	}
	return "+" + name + "." + addrEncoding.EncodeToString(raw), nil
}
