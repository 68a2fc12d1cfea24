package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/iudanet/docbowl/internal/client/cli"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	dataDir := flag.String("data", defaultDataDir(), "Data directory")
	passphrase := flag.String("passphrase", "", "Keystore passphrase (not recommended)")
	passphraseFile := flag.String("passphrase-file", "", "Path to file containing keystore passphrase")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage()
		os.Exit(1)
	}

	logLevel := slog.LevelWarn
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	c := cli.New(*dataDir, logger, cli.Passphrases{
		FromFile: *passphraseFile,
		FromArgs: *passphrase,
	})

	c.Run(context.Background(), args[0], args[1:])
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docbowl"
	}
	return filepath.Join(home, ".docbowl")
}

func printVersion() {
	fmt.Printf("DocBowl Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
