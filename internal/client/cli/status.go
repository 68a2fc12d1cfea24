package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/docbowl/internal/keystore"
)

// RunStatus показывает идентичность автора и локальные shares
func (c *Cli) RunStatus(ctx context.Context) error {
	address, err := c.keys.Address()
	switch err {
	case nil:
		fmt.Printf("Author: %s\n", address)
	case keystore.ErrNotFound:
		fmt.Println("Author: (none, run 'docbowl author new')")
	default:
		return err
	}

	shares, err := c.listShares()
	if err != nil {
		return err
	}
	if len(shares) == 0 {
		fmt.Println("Shares: (none)")
		return nil
	}

	fmt.Printf("Shares: %d\n", len(shares))
	for _, share := range shares {
		b, err := c.openReplica(ctx, share)
		if err != nil {
			fmt.Printf("  %-40s (failed to open: %v)\n", share, err)
			continue
		}
		docs, err := b.GetAllDocs()
		if err == nil {
			fmt.Printf("  %-40s %d docs, highest index %d\n", share, len(docs), b.HighestLocalIndex())
		}
		b.Close() //nolint:errcheck
	}
	return nil
}
