package sqlite

import (
	"context"
	"fmt"

	"github.com/iudanet/docbowl/internal/driver"
	"github.com/iudanet/docbowl/internal/models"
)

const docColumns = `local_index, path, author, timestamp, content, content_hash, content_length, signature, format, delete_after`

func scanDoc(row interface{ Scan(...any) error }) (*models.Document, error) {
	var doc models.Document
	err := row.Scan(
		&doc.LocalIndex,
		&doc.Path,
		&doc.Author,
		&doc.Timestamp,
		&doc.Content,
		&doc.ContentHash,
		&doc.ContentLength,
		&doc.Signature,
		&doc.Format,
		&doc.DeleteAfter,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadAll возвращает все документы по возрастанию LocalIndex
func (d *Driver) LoadAll(ctx context.Context) ([]*models.Document, error) {
	if d.db == nil {
		return nil, driver.ErrDriverClosed
	}

	query := `SELECT ` + docColumns + ` FROM documents ORDER BY local_index ASC`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDoc(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return docs, nil
}

// HighestLocalIndex возвращает наибольший назначенный LocalIndex
func (d *Driver) HighestLocalIndex(ctx context.Context) (int64, error) {
	if d.db == nil {
		return 0, driver.ErrDriverClosed
	}

	var highest int64
	err := d.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(local_index), 0) FROM documents`).Scan(&highest)
	if err != nil {
		return 0, fmt.Errorf("failed to read highest local index: %w", err)
	}

	return highest, nil
}

// Put сохраняет документ, замещая существующий с тем же (path, author)
func (d *Driver) Put(ctx context.Context, doc *models.Document) error {
	if d.db == nil {
		return driver.ErrDriverClosed
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback после commit - no-op

	// Вытесняем документ того же (path, author), если он был
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM documents WHERE path = ? AND author = ?`, doc.Path, doc.Author); err != nil {
		return fmt.Errorf("failed to delete replaced document: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (`+docColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		doc.LocalIndex,
		doc.Path,
		doc.Author,
		doc.Timestamp,
		doc.Content,
		doc.ContentHash,
		doc.ContentLength,
		doc.Signature,
		doc.Format,
		doc.DeleteAfter,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	return nil
}

// Delete удаляет документ (path, author)
func (d *Driver) Delete(ctx context.Context, path, author string) error {
	if d.db == nil {
		return driver.ErrDriverClosed
	}

	res, err := d.db.ExecContext(ctx,
		`DELETE FROM documents WHERE path = ? AND author = ?`, path, author)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return driver.ErrDocNotFound
	}

	return nil
}
