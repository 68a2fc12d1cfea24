package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/iudanet/docbowl/internal/bowl"
	"github.com/iudanet/docbowl/internal/driver/boltdb"
	"github.com/iudanet/docbowl/internal/peer"
	"github.com/iudanet/docbowl/internal/server"
	"github.com/iudanet/docbowl/internal/server/token"
	"github.com/iudanet/docbowl/internal/validation"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	addr := flag.String("addr", ":8080", "Listen address")
	dataDir := flag.String("data", defaultDataDir(), "Data directory with shares/")
	secret := flag.String("token-secret", os.Getenv("DOCBOWL_TOKEN_SECRET"), "Secret for peer tokens (empty disables auth)")
	issueToken := flag.String("issue-token", "", "Issue a peer token for the named peer and exit")
	tokenTTL := flag.Duration("token-ttl", 30*24*time.Hour, "Peer token lifetime")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	tokenCfg := token.Config{Secret: []byte(*secret), TTL: *tokenTTL}

	if *issueToken != "" {
		if *secret == "" {
			logger.Error("Cannot issue token without -token-secret")
			os.Exit(1)
		}
		t, err := token.Generate(tokenCfg, *issueToken)
		if err != nil {
			logger.Error("Failed to issue token", "error", err)
			os.Exit(1)
		}
		fmt.Println(t)
		os.Exit(0)
	}

	if err := run(logger, *addr, *dataDir, tokenCfg); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, addr, dataDir string, tokenCfg token.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := peer.New()

	shares, err := discoverShares(dataDir)
	if err != nil {
		return err
	}
	if len(shares) == 0 {
		logger.Warn("No shares found; peers will find no common shares", "data_dir", dataDir)
	}

	for _, share := range shares {
		drv, err := boltdb.New(ctx, filepath.Join(dataDir, "shares", share+".db"), share)
		if err != nil {
			return fmt.Errorf("failed to open share %s: %w", share, err)
		}
		b, err := bowl.New(ctx, drv, bowl.Config{Logger: logger})
		if err != nil {
			return fmt.Errorf("failed to open bowl for %s: %w", share, err)
		}
		defer b.Close() //nolint:errcheck
		if err := p.AddReplica(b); err != nil {
			return err
		}
		logger.Info("Serving share", "share", share, "highest_index", b.HighestLocalIndex())
	}

	srv := server.New(p, server.Config{
		Logger:      logger,
		TokenConfig: tokenCfg,
		Version:     Version,
	})

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("DocBowl server listening", "addr", addr, "peer_id", p.ID(), "auth", len(tokenCfg.Secret) > 0)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
	}
	return nil
}

// discoverShares находит адреса shares по файлам в <dataDir>/shares/
func discoverShares(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(dataDir, "shares"))
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

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docbowl"
	}
	return filepath.Join(home, ".docbowl")
}

func printVersion() {
	fmt.Printf("DocBowl Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
