package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/iudanet/docbowl/internal/models"
)

// addrEncoding - base32 кодирование ключей и хешей в адресах.
// Строчные буквы и цифры 2-7, без padding (совместимо с грамматикой адресов)
var addrEncoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

const (
	// PubkeyEncodedLen длина base32-представления ed25519 публичного ключа (32 байта)
	PubkeyEncodedLen = 52
	// SeedEncodedLen длина base32-представления секретного seed (32 байта)
	SeedEncodedLen = 52
)

// Keypair представляет идентичность автора: ed25519 ключевая пара
// плюс производный адрес вида "@name.pubkey"
type Keypair struct {
	address string
	pub     ed25519.PublicKey
	priv    ed25519.PrivateKey
}

// Signer - абстрактный сервис подписи документов.
// Bowl использует его в write, не зная деталей криптографии.
type Signer interface {
	// Address возвращает адрес автора
	Address() string
	// SignDocument подписывает документ, заполняя поле Signature
	SignDocument(doc *models.Document) error
}

// GenerateKeypair генерирует новую ключевую пару для автора с указанным shortname.
// Shortname должен состоять из 1-15 строчных латинских букв и цифр,
// начинаться с буквы (проверяется валидатором адресов при использовании).
func GenerateKeypair(shortname string) (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return newKeypair(shortname, pub, priv)
}

// KeypairFromSeed восстанавливает ключевую пару из base32 seed.
// Используется keystore при загрузке сохраненной идентичности.
func KeypairFromSeed(shortname, seedB32 string) (*Keypair, error) {
	seed, err := addrEncoding.DecodeString(seedB32)
	if err != nil {
		return nil, fmt.Errorf("failed to decode seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return newKeypair(shortname, pub, priv)
}

func newKeypair(shortname string, pub ed25519.PublicKey, priv ed25519.PrivateKey) (*Keypair, error) {
	if shortname == "" {
		return nil, fmt.Errorf("shortname cannot be empty")
	}
	return &Keypair{
		address: "@" + shortname + "." + addrEncoding.EncodeToString(pub),
		pub:     pub,
		priv:    priv,
	}, nil
}

// Address возвращает адрес автора вида "@name.pubkey"
func (kp *Keypair) Address() string {
	return kp.address
}

// Seed возвращает base32 секретный seed ключевой пары.
// Предназначен только для keystore; не логировать.
func (kp *Keypair) Seed() string {
	return addrEncoding.EncodeToString(kp.priv.Seed())
}

// PubkeyFromAddress извлекает ed25519 публичный ключ из адреса автора
func PubkeyFromAddress(address string) (ed25519.PublicKey, error) {
	dot := strings.LastIndex(address, ".")
	if !strings.HasPrefix(address, "@") || dot < 0 {
		return nil, fmt.Errorf("malformed author address: %q", address)
	}
	raw, err := addrEncoding.DecodeString(address[dot+1:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode pubkey from address: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("pubkey must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}
