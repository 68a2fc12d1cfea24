// Package sqlite реализует персистентный драйвер поверх SQLite.
// Одна база хранит документы одного share.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Driver - SQLite реализация driver.Driver
type Driver struct {
	db        *sql.DB
	shareAddr string
}

// New открывает SQLite драйвер для share.
// dbPath - путь к файлу базы; ":memory:" для тестов.
func New(ctx context.Context, dbPath, shareAddr string) (*Driver, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite с WAL mode поддерживает несколько читателей, но одного писателя
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	d := &Driver{db: db, shareAddr: shareAddr}

	if err := d.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := d.checkShare(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return d, nil
}

// runMigrations выполняет миграции из embedded FS
func (d *Driver) runMigrations() error {
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	goose.SetBaseFS(embedMigrations)

	if err := goose.Up(d.db, "migrations"); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}

	return nil
}

// checkShare записывает адрес share при первом открытии
// и проверяет совпадение при последующих
func (d *Driver) checkShare(ctx context.Context) error {
	var stored string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'share_address'`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		_, err = d.db.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES ('share_address', ?)`, d.shareAddr)
		if err != nil {
			return fmt.Errorf("failed to record share address: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to read share address: %w", err)
	case stored != d.shareAddr:
		return fmt.Errorf("database belongs to share %s, not %s", stored, d.shareAddr)
	default:
		return nil
	}
}

// ShareAddress возвращает адрес share
func (d *Driver) ShareAddress() string {
	return d.shareAddr
}

// Close закрывает базу
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}
