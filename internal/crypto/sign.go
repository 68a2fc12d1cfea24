package crypto

import (
	"crypto/ed25519"
	"fmt"
	"strconv"
	"strings"

	"github.com/iudanet/docbowl/internal/models"
)

// signingBase строит детерминированное байтовое представление подписываемых
// полей документа. Поля идут в алфавитном порядке имен, каждое на своей
// строке "name:value". LocalIndex не входит в подпись.
func signingBase(doc *models.Document) []byte {
	var b strings.Builder
	b.WriteString("author:" + doc.Author + "\n")
	b.WriteString("content_hash:" + doc.ContentHash + "\n")
	b.WriteString("content_length:" + strconv.FormatInt(doc.ContentLength, 10) + "\n")
	if doc.DeleteAfter > 0 {
		b.WriteString("delete_after:" + strconv.FormatInt(doc.DeleteAfter, 10) + "\n")
	}
	b.WriteString("format:" + doc.EffectiveFormat() + "\n")
	b.WriteString("path:" + doc.Path + "\n")
	b.WriteString("timestamp:" + strconv.FormatInt(doc.Timestamp, 10) + "\n")
	return []byte(b.String())
}

// SignDocument подписывает документ ключом автора.
// Адрес автора в документе должен совпадать с адресом ключевой пары.
func (kp *Keypair) SignDocument(doc *models.Document) error {
	if doc.Author != kp.address {
		return fmt.Errorf("document author %q does not match keypair address %q", doc.Author, kp.address)
	}
	sig := ed25519.Sign(kp.priv, signingBase(doc))
	doc.Signature = addrEncoding.EncodeToString(sig)
	return nil
}

// VerifyDocument проверяет подпись документа публичным ключом из адреса автора
func VerifyDocument(doc *models.Document) error {
	pub, err := PubkeyFromAddress(doc.Author)
	if err != nil {
		return err
	}
	sig, err := addrEncoding.DecodeString(doc.Signature)
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}
	if !ed25519.Verify(pub, signingBase(doc), sig) {
		return fmt.Errorf("signature verification failed")
	}
	return nil
}
