package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/iudanet/docbowl/internal/bowl"
	"github.com/iudanet/docbowl/internal/peer"
	"github.com/iudanet/docbowl/internal/syncer"
)

// RunSync синхронизирует все локальные shares с удаленным peer:
// docbowl sync <url> [--token T] [--timeout D]
func (c *Cli) RunSync(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: docbowl sync <url> [--token T] [--timeout D]")
	}
	url := args[0]

	var authToken string
	timeout := 5 * time.Minute
	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "--token":
			if i+1 >= len(args) {
				return fmt.Errorf("--token requires a value")
			}
			i++
			authToken = args[i]
		case "--timeout":
			if i+1 >= len(args) {
				return fmt.Errorf("--timeout requires a value")
			}
			i++
			d, err := time.ParseDuration(args[i])
			if err != nil {
				return fmt.Errorf("invalid timeout: %w", err)
			}
			timeout = d
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	shares, err := c.listShares()
	if err != nil {
		return err
	}
	if len(shares) == 0 {
		return fmt.Errorf("no shares to sync. Run 'docbowl share new' or 'docbowl share add' first")
	}

	// Собираем peer из всех локальных replicas
	p := peer.New()
	var bowls []*bowl.Bowl
	defer func() {
		for _, b := range bowls {
			b.Close() //nolint:errcheck
		}
	}()

	for _, share := range shares {
		b, err := c.openReplica(ctx, share)
		if err != nil {
			return err
		}
		bowls = append(bowls, b)
		if err := p.AddReplica(b); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	transport, err := syncer.Dial(ctx, url, authToken)
	if err != nil {
		return err
	}

	conn := syncer.NewConn(transport, c.logger)
	coord := syncer.NewCoordinator(p, conn, syncer.Options{Logger: c.logger})
	defer coord.Close() //nolint:errcheck

	if err := coord.Start(ctx); err != nil {
		return err
	}

	common := coord.CommonShares()
	if len(common) == 0 {
		fmt.Println("No common shares with this peer")
		return nil
	}
	fmt.Printf("Syncing %d common share(s) with peer %s\n", len(common), coord.PartnerID())

	if err := coord.SyncUntilCaughtUp(ctx); err != nil {
		return fmt.Errorf("sync did not converge: %w", err)
	}

	for share, st := range coord.Status() {
		fmt.Printf("  %-40s pulled %d, caught up\n", share, st.Pulled)
	}
	fmt.Fprintln(os.Stdout, "Done")
	return nil
}
