package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ContentHash вычисляет хеш содержимого документа: base32(SHA256(content)).
// Детерминированный, используется клиентом при записи и валидатором при проверке.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return addrEncoding.EncodeToString(sum[:])
}

// SaltedShareHash вычисляет соленый хеш адреса share для handshake:
// hex(SHA256(salt || shareAddress)).
// Соль уникальна для соединения, поэтому по хешам нельзя перечислить shares.
func SaltedShareHash(salt, shareAddress string) string {
	sum := sha256.Sum256([]byte(salt + shareAddress))
	return hex.EncodeToString(sum[:])
}

// IntersectSaltedShares возвращает адреса локальных shares, чьи соленые хеши
// присутствуют среди хешей партнера. Используется координатором синхронизации
// для вычисления множества общих shares.
func IntersectSaltedShares(salt string, localShares, partnerHashes []string) []string {
	partner := make(map[string]bool, len(partnerHashes))
	for _, h := range partnerHashes {
		partner[h] = true
	}

	var common []string
	for _, share := range localShares {
		if partner[SaltedShareHash(salt, share)] {
			common = append(common, share)
		}
	}
	return common
}

// GenerateSaltHex генерирует случайную соль для handshake в hex
func GenerateSaltHex() (string, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return "", fmt.Errorf("failed to generate handshake salt: %w", err)
	}
	return hex.EncodeToString(salt), nil
}
