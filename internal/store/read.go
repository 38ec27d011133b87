package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/flatdoc/internal/doc"
	"github.com/roach88/flatdoc/internal/flatten"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Get reads the document stored for id outside of any transaction.
// Returns ErrNotFound if there is none.
func (s *Store) Get(ctx context.Context, id string) (doc.Document, error) {
	return loadDocument(ctx, s.db, id)
}

func loadDocument(ctx context.Context, q querier, id string) (doc.Document, error) {
	var dumps string
	err := q.QueryRowContext(ctx, `SELECT dumps FROM store WHERE id = ?`, id).Scan(&dumps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load document %q: %w", id, err)
	}

	d, err := doc.Unmarshal([]byte(dumps))
	if err != nil {
		return nil, fmt.Errorf("load document %q: %w", id, err)
	}
	return d, nil
}

// QueryDocuments runs a compiled row query returning (id, dumps) columns
// and decodes each document in result order.
//
// Returns an empty slice (not nil) if nothing matched.
func (s *Store) QueryDocuments(ctx context.Context, query string, args ...any) ([]doc.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := []doc.Document{}
	for rows.Next() {
		var id, dumps string
		if err := rows.Scan(&id, &dumps); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d, err := doc.Unmarshal([]byte(dumps))
		if err != nil {
			return nil, fmt.Errorf("decode document %q: %w", id, err)
		}
		docs = append(docs, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// QueryIDs runs a compiled ids-only row query (querysql.Options.IDsOnly)
// that selects the id column alone.
func (s *Store) QueryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}

// QueryCount runs a compiled COUNT(*) query.
func (s *Store) QueryCount(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("query count: %w", err)
	}
	return n, nil
}

// Leaves returns the index rows of id in insertion order.
// Returns an empty slice (not nil) if there are none.
func (s *Store) Leaves(ctx context.Context, id string) ([]flatten.Leaf, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, leaf FROM flat
		WHERE id = ?
		ORDER BY rowid ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query leaves: %w", err)
	}
	defer rows.Close()

	leaves := []flatten.Leaf{}
	for rows.Next() {
		var leaf flatten.Leaf
		if err := rows.Scan(&leaf.Path, &leaf.Value); err != nil {
			return nil, fmt.Errorf("scan leaf: %w", err)
		}
		// Some drivers surface TEXT as []byte when scanning into any.
		if b, ok := leaf.Value.([]byte); ok {
			leaf.Value = string(b)
		}
		leaves = append(leaves, leaf)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaves: %w", err)
	}
	return leaves, nil
}

// LeafCount returns the number of index rows for id.
func (s *Store) LeafCount(ctx context.Context, id string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flat WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count leaves: %w", err)
	}
	return n, nil
}

// OrphanLeaves returns the number of index rows whose document row is
// missing. Always zero unless the database was modified outside flatdoc.
func (s *Store) OrphanLeaves(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM flat f
		LEFT JOIN store s ON s.id = f.id
		WHERE s.id IS NULL
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count orphan leaves: %w", err)
	}
	return n, nil
}
