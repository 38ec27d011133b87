package entry

import (
	"log/slog"
	"runtime"

	"github.com/roach88/flatdoc/internal/doc"
	"github.com/roach88/flatdoc/internal/store"
)

// Condition decides whether an update may replace the stored document.
// It receives the current stored document and must not modify it.
// A nil Condition always allows the update.
type Condition func(old doc.Document) bool

// IfUpdated allows an update only while the stored document still carries
// the updated timestamp ts, the one the caller last read.
func IfUpdated(ts string) Condition {
	return func(old doc.Document) bool {
		return old.Updated() == ts
	}
}

// SearchOptions controls pagination of Search.
type SearchOptions struct {
	// Size is the page size. Zero returns every match.
	Size int

	// Offset skips that many matches in result order
	// (most recently updated first).
	Offset int
}

// Option configures a Manager.
type Option func(*options)

type options struct {
	clock      Clock
	logger     *slog.Logger
	lockShards int
	workers    int
	storeOpts  store.Options
}

func defaultOptions() options {
	return options{
		clock:      SystemClock{},
		logger:     slog.Default(),
		lockShards: DefaultLockShards,
		workers:    runtime.GOMAXPROCS(0),
		storeOpts:  store.DefaultOptions(),
	}
}

// WithClock sets the source of updated timestamps.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the logger. Mutations log at Debug, lifecycle at Info.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLockShards sets the number of per-id lock shards.
// Default: DefaultLockShards
func WithLockShards(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.lockShards = n
		}
	}
}

// WithWorkers bounds the goroutines CreateMany runs at once.
// Default: GOMAXPROCS
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithStoreOptions sets how Open opens the database. Ignored by NewManager,
// whose pool was created with its own options.
func WithStoreOptions(so store.Options) Option {
	return func(o *options) {
		o.storeOpts = so
	}
}
