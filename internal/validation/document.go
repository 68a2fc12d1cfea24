package validation

import (
	"errors"
	"fmt"

	"github.com/iudanet/docbowl/internal/crypto"
	"github.com/iudanet/docbowl/internal/models"
)

// ErrInvalidDocument - базовая ошибка валидации; все отказы валидатора
// оборачивают её, чтобы вызывающий код мог отличить их через errors.Is.
var ErrInvalidDocument = errors.New("invalid document")

// MaxTimestampSkew - допустимое опережение часов автора, микросекунды (10 минут)
const MaxTimestampSkew = int64(10 * 60 * 1000 * 1000)

// DocumentValidator проверяет документы перед сохранением в bowl.
// Bowl зависит только от этого интерфейса.
type DocumentValidator interface {
	// ValidateDocument проверяет документ целиком: грамматику полей,
	// диапазон timestamp, хеш содержимого и подпись.
	// nowMicros - текущее время bowl в микросекундах.
	ValidateDocument(doc *models.Document, nowMicros int64) error
}

// Validator - стандартная реализация DocumentValidator для формата "db.1"
type Validator struct{}

// New создает валидатор документов
func New() *Validator {
	return &Validator{}
}

// ValidateDocument проверяет документ формата "db.1".
// Истечение (DeleteAfter в прошлом) не считается ошибкой валидации:
// такие документы принимаются и немедленно удаляются sweep'ом.
func (v *Validator) ValidateDocument(doc *models.Document, nowMicros int64) error {
	if doc == nil {
		return fmt.Errorf("document is nil: %w", ErrInvalidDocument)
	}
	if doc.EffectiveFormat() != models.FormatDefault {
		return fmt.Errorf("unknown document format %q: %w", doc.Format, ErrInvalidDocument)
	}
	if err := ValidatePath(doc.Path); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalidDocument)
	}
	if err := ValidateAuthorAddress(doc.Author); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalidDocument)
	}
	if !AuthorCanWritePath(doc.Path, doc.Author) {
		return fmt.Errorf("author %s is not permitted to write path %s: %w", doc.Author, doc.Path, ErrInvalidDocument)
	}

	if doc.Timestamp <= 0 {
		return fmt.Errorf("timestamp must be positive, got %d: %w", doc.Timestamp, ErrInvalidDocument)
	}
	if doc.Timestamp > nowMicros+MaxTimestampSkew {
		return fmt.Errorf("timestamp %d is too far in the future: %w", doc.Timestamp, ErrInvalidDocument)
	}

	// Ephemeral документы обязаны нести DeleteAfter, постоянные - не нести
	if PathIsEphemeral(doc.Path) {
		if doc.DeleteAfter <= 0 {
			return fmt.Errorf("ephemeral path %s requires delete_after: %w", doc.Path, ErrInvalidDocument)
		}
		if doc.DeleteAfter <= doc.Timestamp {
			return fmt.Errorf("delete_after must be greater than timestamp: %w", ErrInvalidDocument)
		}
	} else if doc.DeleteAfter != 0 {
		return fmt.Errorf("non-ephemeral path %s must not carry delete_after: %w", doc.Path, ErrInvalidDocument)
	}

	if doc.ContentLength != int64(len(doc.Content)) {
		return fmt.Errorf("content_length %d does not match content size %d: %w",
			doc.ContentLength, len(doc.Content), ErrInvalidDocument)
	}
	if got := crypto.ContentHash(doc.Content); got != doc.ContentHash {
		return fmt.Errorf("content_hash mismatch: %w", ErrInvalidDocument)
	}

	if err := crypto.VerifyDocument(doc); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalidDocument)
	}

	return nil
}
