// Package keystore хранит ключевую пару автора на диске.
// Seed запечатывается AES-256-GCM ключом, производным от passphrase
// (Argon2id); адрес автора входит в AEAD как authenticated data,
// соль хранится рядом в открытом виде.
package keystore

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iudanet/docbowl/internal/crypto"
)

var (
	// ErrNotFound возвращается, когда keystore файл не существует
	ErrNotFound = errors.New("keystore not found")
)

// keystoreFile - формат keystore на диске
type keystoreFile struct {
	Address    string `json:"address"`     // адрес автора (открытый, AEAD-привязан к seed)
	Salt       string `json:"salt"`        // base64 соль Argon2id
	SealedSeed string `json:"sealed_seed"` // base64 nonce||ciphertext||tag
}

// Store - keystore в одном файле
type Store struct {
	path string
}

// New создает keystore над файлом path
func New(path string) *Store {
	return &Store{path: path}
}

// Save шифрует и сохраняет ключевую пару.
// Файл создается с правами 0600.
func (s *Store) Save(kp *crypto.Keypair, passphrase string) error {
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}

	key, err := crypto.DeriveKeystoreKey(passphrase, salt)
	if err != nil {
		return fmt.Errorf("failed to derive keystore key: %w", err)
	}

	sealed, err := sealSeed([]byte(kp.Seed()), key, kp.Address())
	if err != nil {
		return fmt.Errorf("failed to seal seed: %w", err)
	}

	data, err := json.MarshalIndent(keystoreFile{
		Address:    kp.Address(),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		SealedSeed: base64.StdEncoding.EncodeToString(sealed),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal keystore: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create keystore directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write keystore: %w", err)
	}

	return nil
}

func (s *Store) read() (*keystoreFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read keystore: %w", err)
	}

	var file keystoreFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse keystore: %w", err)
	}
	return &file, nil
}

// Address возвращает адрес автора без расшифровки seed
func (s *Store) Address() (string, error) {
	file, err := s.read()
	if err != nil {
		return "", err
	}
	return file.Address, nil
}

// Load расшифровывает и восстанавливает ключевую пару.
// Неверная passphrase проявляется как ошибка аутентификации GCM.
func (s *Store) Load(passphrase string) (*crypto.Keypair, error) {
	file, err := s.read()
	if err != nil {
		return nil, err
	}

	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(file.SealedSeed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sealed seed: %w", err)
	}

	key, err := crypto.DeriveKeystoreKey(passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive keystore key: %w", err)
	}

	// Адрес из файла участвует в AEAD: подмена адреса ломает tag
	seed, err := openSeed(sealed, key, file.Address)
	if err != nil {
		return nil, err
	}

	shortname, err := shortnameFromAddress(file.Address)
	if err != nil {
		return nil, err
	}

	kp, err := crypto.KeypairFromSeed(shortname, string(seed))
	if err != nil {
		return nil, fmt.Errorf("failed to restore keypair: %w", err)
	}

	// Адрес обязан сойтись с восстановленной парой
	if kp.Address() != file.Address {
		return nil, fmt.Errorf("keystore address %s does not match restored keypair", file.Address)
	}

	return kp, nil
}

func shortnameFromAddress(address string) (string, error) {
	if !strings.HasPrefix(address, "@") {
		return "", fmt.Errorf("malformed keystore address %q", address)
	}
	dot := strings.Index(address, ".")
	if dot < 2 {
		return "", fmt.Errorf("malformed keystore address %q", address)
	}
	return address[1:dot], nil
}
