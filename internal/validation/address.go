package validation

import (
	"fmt"
	"regexp"
)

// SharePattern определяет допустимый формат адреса share: "+name.suffix"
// name: строчные латинские буквы и цифры, начинается с буквы, 1-15 символов
// suffix: не менее 6 символов base32-алфавита (a-z, 2-7)
var SharePattern = regexp.MustCompile(`^\+[a-z][a-z0-9]{0,14}\.[a-z2-7]{6,64}$`)

// AuthorPattern определяет допустимый формат адреса автора: "@shortname.publickey"
// shortname: строчные латинские буквы и цифры, начинается с буквы, 1-15 символов
// publickey: ровно 52 символа base32 (ed25519 публичный ключ, 32 байта)
var AuthorPattern = regexp.MustCompile(`^@[a-z][a-z0-9]{0,14}\.[a-z2-7]{52}$`)

const (
	// MaxShareAddressLen максимальная длина адреса share
	MaxShareAddressLen = 128
)

// ValidateShareAddress проверяет, что адрес share соответствует грамматике
func ValidateShareAddress(address string) error {
	if address == "" {
		return fmt.Errorf("share address cannot be empty")
	}
	if len(address) > MaxShareAddressLen {
		return fmt.Errorf("share address must not exceed %d characters", MaxShareAddressLen)
	}
	if !SharePattern.MatchString(address) {
		return fmt.Errorf("malformed share address %q: expected +name.suffix", address)
	}
	return nil
}

// ValidateAuthorAddress проверяет, что адрес автора соответствует грамматике
func ValidateAuthorAddress(address string) error {
	if address == "" {
		return fmt.Errorf("author address cannot be empty")
	}
	if !AuthorPattern.MatchString(address) {
		return fmt.Errorf("malformed author address %q: expected @shortname.publickey", address)
	}
	return nil
}
