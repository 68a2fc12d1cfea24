package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/iudanet/docbowl/internal/bowl"
	"github.com/iudanet/docbowl/internal/models"
)

// RunWrite записывает документ: docbowl write <share> <path> [content]
// Без аргумента content читает его из stdin.
func (c *Cli) RunWrite(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: docbowl write <share> <path> [content]")
	}
	share, path := args[0], args[1]

	var content string
	if len(args) >= 3 {
		content = args[2]
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read content from stdin: %w", err)
		}
		content = string(data)
	}

	kp, err := c.loadKeypair()
	if err != nil {
		return err
	}

	b, err := c.openReplica(ctx, share)
	if err != nil {
		return err
	}
	defer b.Close() //nolint:errcheck

	result, err := b.Write(ctx, kp, bowl.WriteInput{Path: path, Content: content})
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	switch result {
	case models.UpsertAcceptedAndLatest:
		fmt.Printf("Wrote %s (latest)\n", path)
	case models.UpsertAcceptedButNotLatest:
		fmt.Printf("Wrote %s (another author has a newer document here)\n", path)
	default:
		return fmt.Errorf("unexpected upsert result: %s", result)
	}
	return nil
}
