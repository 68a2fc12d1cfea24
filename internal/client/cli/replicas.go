package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iudanet/docbowl/internal/bowl"
	"github.com/iudanet/docbowl/internal/driver/boltdb"
	"github.com/iudanet/docbowl/internal/validation"
)

// shareDBPath возвращает путь к BoltDB файлу share
func (c *Cli) shareDBPath(share string) string {
	return filepath.Join(c.sharesDir(), share+".db")
}

// listShares перечисляет адреса локально реплицируемых shares
func (c *Cli) listShares() ([]string, error) {
	entries, err := os.ReadDir(c.sharesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read shares directory: %w", err)
	}

	var shares []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".db") {
			continue
		}
		share := strings.TrimSuffix(name, ".db")
		if validation.ValidateShareAddress(share) == nil {
			shares = append(shares, share)
		}
	}
	return shares, nil
}

// openReplica открывает bowl над BoltDB драйвером share
func (c *Cli) openReplica(ctx context.Context, share string) (*bowl.Bowl, error) {
	if err := validation.ValidateShareAddress(share); err != nil {
		return nil, err
	}
	if _, err := os.Stat(c.shareDBPath(share)); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("share %s is not replicated locally. Run 'docbowl share add %s' first", share, share)
		}
		return nil, fmt.Errorf("failed to stat share database: %w", err)
	}
	return c.openOrCreateReplica(ctx, share)
}

// openOrCreateReplica открывает bowl, создавая базу share при необходимости
func (c *Cli) openOrCreateReplica(ctx context.Context, share string) (*bowl.Bowl, error) {
	if err := os.MkdirAll(c.sharesDir(), 0700); err != nil {
		return nil, fmt.Errorf("failed to create shares directory: %w", err)
	}

	drv, err := boltdb.New(ctx, c.shareDBPath(share), share)
	if err != nil {
		return nil, fmt.Errorf("failed to open share %s: %w", share, err)
	}

	b, err := bowl.New(ctx, drv, bowl.Config{Logger: c.logger})
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("failed to open bowl for %s: %w", share, err)
	}
	return b, nil
}
