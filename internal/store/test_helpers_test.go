package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/flatdoc/internal/doc"
	"github.com/roach88/flatdoc/internal/flatten"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestDocument builds a document with the system fields set.
func createTestDocument(id, updated string, fields map[string]any) doc.Document {
	d := doc.Document{
		doc.FieldID:      id,
		doc.FieldUpdated: updated,
	}
	for k, v := range fields {
		d[k] = v
	}
	return d
}

// insertTestDocument writes d and its leaves in one transaction.
func insertTestDocument(t *testing.T, s *Store, d doc.Document) {
	t.Helper()
	leaves, err := flatten.Flatten(d)
	if err != nil {
		t.Fatalf("Flatten() failed: %v", err)
	}
	err = s.Tx(context.Background(), func(tx *Tx) error {
		if err := tx.InsertDocument(context.Background(), d); err != nil {
			return err
		}
		return tx.InsertLeaves(context.Background(), d.ID(), d.Updated(), leaves)
	})
	if err != nil {
		t.Fatalf("insert %q failed: %v", d.ID(), err)
	}
}
