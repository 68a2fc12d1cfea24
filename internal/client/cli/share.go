package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/docbowl/internal/crypto"
	"github.com/iudanet/docbowl/internal/validation"
)

// RunShare обрабатывает подкоманды share
func (c *Cli) RunShare(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: docbowl share new <name> | share add <address> | share list")
	}

	switch args[0] {
	case "new":
		if len(args) < 2 {
			return fmt.Errorf("usage: docbowl share new <name>")
		}
		return c.runShareNew(ctx, args[1])
	case "add":
		if len(args) < 2 {
			return fmt.Errorf("usage: docbowl share add <address>")
		}
		return c.runShareAdd(ctx, args[1])
	case "list":
		return c.runShareList()
	default:
		return fmt.Errorf("unknown share subcommand: %s", args[0])
	}
}

func (c *Cli) runShareNew(ctx context.Context, name string) error {
	share, err := crypto.GenerateShareAddress(name)
	if err != nil {
		return err
	}
	if err := validation.ValidateShareAddress(share); err != nil {
		return fmt.Errorf("invalid share name %q: %w", name, err)
	}

	b, err := c.openOrCreateReplica(ctx, share)
	if err != nil {
		return err
	}
	defer b.Close() //nolint:errcheck

	fmt.Println("Share created")
	fmt.Printf("Address: %s\n", share)
	fmt.Println("Give this address to peers you want to replicate with")
	return nil
}

func (c *Cli) runShareAdd(ctx context.Context, share string) error {
	if err := validation.ValidateShareAddress(share); err != nil {
		return err
	}

	b, err := c.openOrCreateReplica(ctx, share)
	if err != nil {
		return err
	}
	defer b.Close() //nolint:errcheck

	fmt.Printf("Replicating %s\n", share)
	return nil
}

func (c *Cli) runShareList() error {
	shares, err := c.listShares()
	if err != nil {
		return err
	}
	if len(shares) == 0 {
		fmt.Println("No shares replicated yet")
		return nil
	}
	for _, share := range shares {
		fmt.Println(share)
	}
	return nil
}
