package cli

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/iudanet/docbowl/internal/crypto"
	"github.com/iudanet/docbowl/internal/keystore"
)

// Passphrases - источники passphrase для keystore
type Passphrases struct {
	FromFile string
	FromArgs string
}

// Cli - состояние клиента: каталог данных и keystore автора
type Cli struct {
	dataDir     string
	keys        *keystore.Store
	logger      *slog.Logger
	passphrases Passphrases
}

// New создает CLI над каталогом данных.
// Keystore лежит в <dataDir>/keystore.json, shares - в <dataDir>/shares/.
func New(dataDir string, logger *slog.Logger, passphrases Passphrases) *Cli {
	return &Cli{
		dataDir:     dataDir,
		keys:        keystore.New(filepath.Join(dataDir, "keystore.json")),
		logger:      logger,
		passphrases: passphrases,
	}
}

func (c *Cli) sharesDir() string {
	return filepath.Join(c.dataDir, "shares")
}

// loadKeypair читает passphrase и расшифровывает ключевую пару автора
func (c *Cli) loadKeypair() (*crypto.Keypair, error) {
	passphrase, err := c.getPassphrase("Keystore passphrase: ")
	if err != nil {
		return nil, err
	}
	kp, err := c.keys.Load(passphrase)
	if err == keystore.ErrNotFound {
		return nil, fmt.Errorf("no author identity found. Please run 'docbowl author new' first")
	}
	return kp, err
}

// getPassphrase получает passphrase по приоритету:
// 1. Переменная окружения DOCBOWL_PASSPHRASE
// 2. Файл из --passphrase-file
// 3. Параметр --passphrase
// 4. Интерактивный запрос (fallback)
func (c *Cli) getPassphrase(prompt string) (string, error) {
	if envPassphrase := os.Getenv("DOCBOWL_PASSPHRASE"); envPassphrase != "" {
		return envPassphrase, nil
	}

	if c.passphrases.FromFile != "" {
		content, err := os.ReadFile(c.passphrases.FromFile)
		if err != nil {
			return "", fmt.Errorf("failed to read passphrase file: %w", err)
		}
		passphrase := strings.TrimSpace(string(content))
		if passphrase == "" {
			return "", fmt.Errorf("passphrase file is empty")
		}
		return passphrase, nil
	}

	if c.passphrases.FromArgs != "" {
		return c.passphrases.FromArgs, nil
	}

	passphrase, err := readPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase from stdin: %w", err)
	}
	if passphrase == "" {
		return "", fmt.Errorf("passphrase cannot be empty")
	}
	return passphrase, nil
}

func PrintUsage() {
	fmt.Println("DocBowl Client")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  docbowl [OPTIONS] COMMAND")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version                Show version information")
	fmt.Println("  --data PATH              Data directory (default: ~/.docbowl)")
	fmt.Println("  --passphrase SECRET      Keystore passphrase (not recommended, use env var or file)")
	fmt.Println("  --passphrase-file PATH   Path to file containing keystore passphrase")
	fmt.Println()
	fmt.Println("Passphrase Priority (highest to lowest):")
	fmt.Println("  1. DOCBOWL_PASSPHRASE environment variable")
	fmt.Println("  2. --passphrase-file (file path)")
	fmt.Println("  3. --passphrase (command line)")
	fmt.Println("  4. Interactive prompt (fallback)")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  author new <shortname>      Generate author keypair")
	fmt.Println("  author info                 Show author address")
	fmt.Println("  share new <name>            Create share with a fresh address")
	fmt.Println("  share add <address>         Start replicating an existing share")
	fmt.Println("  share list                  List local shares")
	fmt.Println("  write <share> <path>        Write document (content from stdin or last arg)")
	fmt.Println("  get <share> <path>          Print latest document content at path")
	fmt.Println("  list <share>                List paths (--all for full history)")
	fmt.Println("  sync <url>                  Sync all shares with a peer until caught up")
	fmt.Println("  status                      Show local shares and author identity")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  docbowl author new alice")
	fmt.Println("  docbowl share new notes")
	fmt.Println("  docbowl write +notes.abcdef /todo 'buy milk'")
	fmt.Println("  docbowl get +notes.abcdef /todo")
	fmt.Println("  docbowl sync ws://peer.example.com:8080/api/v1/sync")
}

// readInput читает строку из stdin
func readInput(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// readPassword читает пароль без отображения на экране
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // Переход на новую строку после ввода
	if err != nil {
		return "", err
	}
	return string(passwordBytes), nil
}
