package cli

import (
	"context"
	"fmt"
)

// RunGet печатает содержимое latest документа: docbowl get <share> <path>
func (c *Cli) RunGet(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: docbowl get <share> <path>")
	}
	share, path := args[0], args[1]

	b, err := c.openReplica(ctx, share)
	if err != nil {
		return err
	}
	defer b.Close() //nolint:errcheck

	doc, err := b.GetLatestDocAtPath(path)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("no document at %s", path)
	}

	fmt.Print(doc.Content)
	return nil
}
