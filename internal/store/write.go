package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/flatdoc/internal/doc"
	"github.com/roach88/flatdoc/internal/flatten"
)

// Tx exposes the load/store primitives inside one transaction.
// Obtain one through Store.Tx.
type Tx struct {
	tx *sql.Tx
}

// Exists reports whether a document row exists for id.
func (t *Tx) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM store WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check document: %w", err)
	}
	return n > 0, nil
}

// Load reads the document stored for id.
// Returns ErrNotFound if there is none.
func (t *Tx) Load(ctx context.Context, id string) (doc.Document, error) {
	return loadDocument(ctx, t.tx, id)
}

// InsertDocument writes the document row. The document must carry its id
// and updated fields.
func (t *Tx) InsertDocument(ctx context.Context, d doc.Document) error {
	dumps, err := marshalDocument(d)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO store (id, updated, dumps)
		VALUES (?, ?, ?)
	`, d.ID(), d.Updated(), dumps)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// ReplaceDocument overwrites the row of an existing document in place.
// Returns ErrNotFound if the row does not exist.
func (t *Tx) ReplaceDocument(ctx context.Context, d doc.Document) error {
	dumps, err := marshalDocument(d)
	if err != nil {
		return fmt.Errorf("replace document: %w", err)
	}

	result, err := t.tx.ExecContext(ctx, `
		UPDATE store SET updated = ?, dumps = ?
		WHERE id = ?
	`, d.Updated(), dumps, d.ID())
	if err != nil {
		return fmt.Errorf("replace document: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace document: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDocument removes the document row and, through the foreign key,
// its index rows. Reports whether a row was removed.
func (t *Tx) DeleteDocument(ctx context.Context, id string) (bool, error) {
	if _, err := t.DeleteLeaves(ctx, id); err != nil {
		return false, err
	}

	result, err := t.tx.ExecContext(ctx, `DELETE FROM store WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete document: rows affected: %w", err)
	}
	return n > 0, nil
}

// InsertLeaves writes one index row per leaf.
func (t *Tx) InsertLeaves(ctx context.Context, id, updated string, leaves []flatten.Leaf) error {
	if len(leaves) == 0 {
		return nil
	}

	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO flat (id, updated, position, leaf)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("insert leaves: prepare: %w", err)
	}
	defer stmt.Close()

	for _, leaf := range leaves {
		if _, err := stmt.ExecContext(ctx, id, updated, leaf.Path, leaf.Value); err != nil {
			return fmt.Errorf("insert leaves: %q: %w", leaf.Path, err)
		}
	}
	return nil
}

// DeleteLeaves removes every index row of id and returns how many there were.
func (t *Tx) DeleteLeaves(ctx context.Context, id string) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM flat WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete leaves: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete leaves: rows affected: %w", err)
	}
	return n, nil
}

func marshalDocument(d doc.Document) (string, error) {
	if d.ID() == "" {
		return "", errors.New("document has no id")
	}
	if d.Updated() == "" {
		return "", errors.New("document has no updated timestamp")
	}
	data, err := doc.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
