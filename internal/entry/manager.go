package entry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/roach88/flatdoc/internal/doc"
	"github.com/roach88/flatdoc/internal/flatten"
	"github.com/roach88/flatdoc/internal/querysql"
	"github.com/roach88/flatdoc/internal/store"
)

// Manager is the document manager for one database location.
//
// Thread-safety: all methods are safe for concurrent use.
type Manager struct {
	store    *store.Store
	pool     *store.Pool // non-nil when the manager owns its pool
	compiler *querysql.SQLCompiler
	locks    *lockTable
	clock    Clock
	logger   *slog.Logger
	workers  int
	closed   atomic.Bool
}

// Open opens the database at path with a pool of its own.
// Close releases the pool.
func Open(path string, opts ...Option) (*Manager, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	pool := store.NewPool(o.storeOpts)
	m, err := newManager(pool, path, o)
	if err != nil {
		pool.Close()
		return nil, err
	}
	m.pool = pool
	return m, nil
}

// NewManager creates a manager for location on a shared pool. Managers of
// the same location share one database handle. Close releases this
// manager's reference; the pool stays open.
func NewManager(pool *store.Pool, location string, opts ...Option) (*Manager, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newManager(pool, location, o)
}

func newManager(pool *store.Pool, location string, o options) (*Manager, error) {
	s, err := pool.Acquire(location)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", location, err)
	}

	m := &Manager{
		store:    s,
		compiler: querysql.NewSQLCompiler(),
		locks:    newLockTable(o.lockShards),
		clock:    o.clock,
		logger:   o.logger,
		workers:  o.workers,
	}
	m.logger.Info("opened document store", "location", s.Location())
	return m, nil
}

// Close releases the database handle. Further calls return ErrClosed.
// Calling Close more than once is a no-op.
func (m *Manager) Close() error {
	if m.closed.Swap(true) {
		return nil
	}

	err := m.store.Close()
	if m.pool != nil {
		err = errors.Join(err, m.pool.Close())
	}
	m.logger.Info("closed document store", "location", m.store.Location())
	return err
}

// Store returns the underlying store.
func (m *Manager) Store() *store.Store {
	return m.store
}

// Create stores a new document and returns it with its system fields.
//
// A missing id is generated (random UUID) and a missing updated timestamp
// is taken from the clock. Fails with *ConflictError if the id is already
// stored, in which case nothing is written.
func (m *Manager) Create(ctx context.Context, d map[string]any) (doc.Document, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	nd, err := m.prepareNew(d)
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	leaves, err := flatten.Flatten(nd)
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	id := nd.ID()
	unlock := m.locks.lock(id)
	defer unlock()

	err = m.store.Tx(ctx, func(tx *store.Tx) error {
		exists, err := tx.Exists(ctx, id)
		if err != nil {
			return err
		}
		if exists {
			return &ConflictError{ID: id, Reason: "document already exists"}
		}
		if err := tx.InsertDocument(ctx, nd); err != nil {
			return err
		}
		return tx.InsertLeaves(ctx, id, nd.Updated(), leaves)
	})
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", id, err)
	}

	m.logger.Debug("document created", "id", id, "leaves", len(leaves))
	return nd, nil
}

// prepareNew normalizes d and fills in its system fields.
func (m *Manager) prepareNew(d map[string]any) (doc.Document, error) {
	nd, err := doc.Normalize(d)
	if err != nil {
		return nil, err
	}

	if raw, ok := nd[doc.FieldID]; !ok {
		nd[doc.FieldID] = uuid.NewString()
	} else if id, ok := raw.(string); !ok || id == "" {
		return nil, ErrInvalidID
	}

	if raw, ok := nd[doc.FieldUpdated]; !ok {
		nd[doc.FieldUpdated] = doc.FormatTime(m.clock.Now())
	} else if err := checkTimestamp(raw); err != nil {
		return nil, err
	}
	return nd, nil
}

func checkTimestamp(raw any) error {
	ts, ok := raw.(string)
	if !ok {
		return fmt.Errorf("%w: %v", ErrInvalidTimestamp, raw)
	}
	if _, err := doc.ParseTime(ts); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTimestamp, ts)
	}
	return nil
}

// Get returns the stored document for id, or ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (doc.Document, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	d, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", id, err)
	}
	return d, nil
}

// Update replaces the stored document with the id of d.
//
// The current document is read, cond is evaluated against it and the
// replacement (with a new updated timestamp) is written, all in one
// transaction under the id's lock. Fails with *ConflictError if cond
// rejects the stored document and with ErrNotFound if the id is absent.
// Any updated field in d is ignored.
func (m *Manager) Update(ctx context.Context, d map[string]any, cond Condition) (doc.Document, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	nd, err := doc.Normalize(d)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	raw, ok := nd[doc.FieldID]
	if !ok {
		return nil, fmt.Errorf("update: %w", ErrMissingID)
	}
	id, ok := raw.(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("update: %w", ErrInvalidID)
	}

	unlock := m.locks.lock(id)
	defer unlock()

	var removed int64
	var leaves []flatten.Leaf
	err = m.store.Tx(ctx, func(tx *store.Tx) error {
		old, err := tx.Load(ctx, id)
		if err != nil {
			return err
		}
		if cond != nil && !cond(old) {
			return &ConflictError{ID: id, Reason: "condition rejected stored document"}
		}

		nd[doc.FieldUpdated] = doc.NextTimestamp(m.clock.Now(), old.Updated())
		leaves, err = flatten.Flatten(nd)
		if err != nil {
			return err
		}

		if err := tx.ReplaceDocument(ctx, nd); err != nil {
			return err
		}
		if removed, err = tx.DeleteLeaves(ctx, id); err != nil {
			return err
		}
		return tx.InsertLeaves(ctx, id, nd.Updated(), leaves)
	})
	if err != nil {
		return nil, fmt.Errorf("update %q: %w", id, err)
	}

	m.logger.Debug("document updated", "id", id, "removed", removed, "leaves", len(leaves))
	return nd, nil
}

// Delete removes the document and its index rows. Reports whether a
// document was stored; deleting an absent id is not an error.
func (m *Manager) Delete(ctx context.Context, id string) (bool, error) {
	if m.closed.Load() {
		return false, ErrClosed
	}

	unlock := m.locks.lock(id)
	defer unlock()

	var removed bool
	err := m.store.Tx(ctx, func(tx *store.Tx) error {
		var err error
		removed, err = tx.DeleteDocument(ctx, id)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", id, err)
	}

	if removed {
		m.logger.Debug("document deleted", "id", id)
	}
	return removed, nil
}

// DeleteMatching deletes every document matching query q, one id at a
// time, each under its own lock. Returns how many were deleted. Documents
// that are deleted concurrently are not counted.
func (m *Manager) DeleteMatching(ctx context.Context, q map[string]any) (int, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}

	sql, args, err := m.compiler.Compile(q, querysql.Options{IDsOnly: true})
	if err != nil {
		return 0, fmt.Errorf("delete matching: %w", err)
	}
	ids, err := m.store.QueryIDs(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete matching: %w", err)
	}

	n := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		removed, err := m.Delete(ctx, id)
		if err != nil {
			return n, err
		}
		if removed {
			n++
		}
	}
	return n, nil
}

// Search returns the documents matching query q, most recently updated
// first with ties broken by id. A nil or empty query matches every
// document. The result is never nil.
func (m *Manager) Search(ctx context.Context, q map[string]any, opts SearchOptions) ([]doc.Document, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	sql, args, err := m.compiler.Compile(q, querysql.Options{
		Size:   opts.Size,
		Offset: opts.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	docs, err := m.store.QueryDocuments(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return docs, nil
}

// Count returns the number of documents matching query q without loading
// them.
func (m *Manager) Count(ctx context.Context, q map[string]any) (int, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}

	sql, args, err := m.compiler.Compile(q, querysql.Options{Count: true})
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}

	n, err := m.store.QueryCount(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}
