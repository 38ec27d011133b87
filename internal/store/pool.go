package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("flatdoc: pool closed")

// Pool shares database handles between users of the same location.
//
// database/sql already hands each goroutine its own connection from the
// handle's pool, so unrelated documents never queue behind one connection
// while SQLite's single-writer lock is still respected. Pool adds reference
// counting per location so independent managers can share one handle and
// the connections close when the last user releases it.
//
// Thread-safety: all methods are safe for concurrent use.
type Pool struct {
	opts Options

	mu      sync.Mutex
	handles map[string]*handle
	closed  bool
}

type handle struct {
	db   *sql.DB
	refs int
}

// NewPool creates a pool that opens locations with opts.
func NewPool(opts Options) *Pool {
	return &Pool{
		opts:    opts,
		handles: make(map[string]*handle),
	}
}

// Acquire returns a Store for location, opening it on first use.
// Each successful Acquire must be paired with Store.Close.
func (p *Pool) Acquire(location string) (*Store, error) {
	key, err := locationKey(location)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	h, ok := p.handles[key]
	if !ok {
		db, err := openDB(location, p.opts)
		if err != nil {
			return nil, err
		}
		h = &handle{db: db}
		p.handles[key] = h
	}
	h.refs++

	var once sync.Once
	var releaseErr error
	return &Store{
		db:       h.db,
		location: key,
		release: func() error {
			once.Do(func() { releaseErr = p.release(key) })
			return releaseErr
		},
	}, nil
}

// release drops one reference and closes the handle when none remain.
func (p *Pool) release(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.handles[key]
	if !ok {
		return nil
	}
	h.refs--
	if h.refs > 0 {
		return nil
	}
	delete(p.handles, key)
	if err := h.db.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	return nil
}

// Len returns the number of open locations.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// Close closes every handle regardless of outstanding references.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for key, h := range p.handles {
		if err := h.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
		delete(p.handles, key)
	}
	p.closed = true
	return errors.Join(errs...)
}
