// Package store provides SQLite-backed storage for flatdoc documents.
//
// Two tables hold every document:
//   - store: one row per document (id, updated, dumps), dumps being the
//     serialized document from doc.Marshal
//   - flat: one row per flattened leaf (id, updated, position, leaf), the
//     inverted index queried by internal/querysql
//
// # Invariants
//
// Index rows never outlive their document:
//   - flat.id REFERENCES store(id) ON DELETE CASCADE with foreign_keys=ON
//   - both tables of one document are only mutated inside one Tx
//
// Deterministic results:
//   - row queries compiled by querysql carry
//     ORDER BY updated DESC, id COLLATE BINARY ASC
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - _txlock=immediate: writers take the write lock at BEGIN
//
// Pragmas travel in the DSN so that every pooled connection has them.
// Either github.com/mattn/go-sqlite3 ("sqlite3") or modernc.org/sqlite
// ("sqlite") can back a Store.
package store
