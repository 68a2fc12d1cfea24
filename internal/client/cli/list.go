package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/docbowl/internal/bowl"
)

// RunList перечисляет документы share: docbowl list <share> [--all] [--prefix P]
func (c *Cli) RunList(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: docbowl list <share> [--all] [--prefix P]")
	}
	share := args[0]

	query := bowl.Query{History: bowl.HistoryLatest}
	showAll := false
	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "--all":
			query.History = bowl.HistoryAll
			showAll = true
		case "--prefix":
			if i+1 >= len(args) {
				return fmt.Errorf("--prefix requires a value")
			}
			i++
			query.Filter = &bowl.Filter{PathStartsWith: args[i]}
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	b, err := c.openReplica(ctx, share)
	if err != nil {
		return err
	}
	defer b.Close() //nolint:errcheck

	docs, err := b.QueryDocs(query)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No documents")
		return nil
	}

	for _, doc := range docs {
		if showAll {
			fmt.Printf("%-40s %-20s %d bytes (ts %d)\n", doc.Path, doc.Author[:16]+"...", doc.ContentLength, doc.Timestamp)
		} else {
			fmt.Printf("%-40s %d bytes\n", doc.Path, doc.ContentLength)
		}
	}
	return nil
}
