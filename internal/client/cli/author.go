package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/docbowl/internal/crypto"
	"github.com/iudanet/docbowl/internal/keystore"
	"github.com/iudanet/docbowl/internal/validation"
)

// RunAuthor обрабатывает подкоманды author
func (c *Cli) RunAuthor(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: docbowl author new <shortname> | author info")
	}

	switch args[0] {
	case "new":
		if len(args) < 2 {
			return fmt.Errorf("usage: docbowl author new <shortname>")
		}
		return c.runAuthorNew(args[1])
	case "info":
		return c.runAuthorInfo()
	default:
		return fmt.Errorf("unknown author subcommand: %s", args[0])
	}
}

func (c *Cli) runAuthorNew(shortname string) error {
	if _, err := c.keys.Address(); err == nil {
		return fmt.Errorf("author identity already exists; remove keystore manually to replace it")
	}

	kp, err := crypto.GenerateKeypair(shortname)
	if err != nil {
		return err
	}
	// Shortname проверяем через грамматику итогового адреса
	if err := validation.ValidateAuthorAddress(kp.Address()); err != nil {
		return fmt.Errorf("invalid shortname %q: %w", shortname, err)
	}

	passphrase, err := c.getPassphrase("New keystore passphrase: ")
	if err != nil {
		return err
	}
	confirm, err := c.getPassphrase("Repeat passphrase: ")
	if err != nil {
		return err
	}
	if passphrase != confirm {
		return fmt.Errorf("passphrases do not match")
	}

	if err := c.keys.Save(kp, passphrase); err != nil {
		return err
	}

	fmt.Println("Author identity created")
	fmt.Printf("Address: %s\n", kp.Address())
	return nil
}

func (c *Cli) runAuthorInfo() error {
	address, err := c.keys.Address()
	if err == keystore.ErrNotFound {
		return fmt.Errorf("no author identity found. Please run 'docbowl author new' first")
	}
	if err != nil {
		return err
	}
	fmt.Printf("Address: %s\n", address)
	return nil
}
