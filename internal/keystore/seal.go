package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// gcmNonceSize - размер nonce AES-GCM в начале запечатанного seed
const gcmNonceSize = 12

// sealSeed запечатывает seed ключевой пары: AES-256-GCM, на выходе
// nonce || ciphertext || tag. Адрес автора идет в GCM как additional
// authenticated data: расшифровка сработает только с тем адресом,
// под которым seed был сохранен, подмена поля address в файле ломает tag.
func sealSeed(seed, key []byte, address string) ([]byte, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("seed is empty")
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("keystore key must be 32 bytes, got %d", len(key))
	}

	aead, err := newSeedAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, seed, []byte(address))
	return sealed, nil
}

// openSeed распечатывает seed, проверяя привязку к адресу автора.
// Неверная passphrase и подмененный адрес неразличимы: оба ломают GCM tag.
func openSeed(sealed, key []byte, address string) ([]byte, error) {
	if len(sealed) <= gcmNonceSize {
		return nil, fmt.Errorf("sealed seed is truncated")
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("keystore key must be 32 bytes, got %d", len(key))
	}

	aead, err := newSeedAEAD(key)
	if err != nil {
		return nil, err
	}

	seed, err := aead.Open(nil, sealed[:gcmNonceSize], sealed[gcmNonceSize:], []byte(address))
	if err != nil {
		return nil, fmt.Errorf("seed unseal failed (wrong passphrase or tampered keystore): %w", err)
	}
	return seed, nil
}

func newSeedAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init seed cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init GCM: %w", err)
	}
	return aead, nil
}
