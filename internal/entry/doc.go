// Package entry implements the document manager: create, get, update,
// delete and search over one flatdoc database.
//
// Every mutation runs as a single SQLite transaction that writes the store
// row and the flat index rows together, so readers never observe a document
// without its index or an index without its document.
//
// # Concurrency
//
// A Manager is safe for concurrent use. Mutations of one id are serialized
// by a fixed-size, sharded lock table keyed by a hash of the id, which keeps
// memory bounded no matter how many ids pass through. Create also takes the
// id's lock so that racing creates of one caller-supplied id see each other.
//
// Update is a compare-and-swap: the current document is read, the caller's
// Condition is evaluated against it and the replacement is written inside
// one transaction. Use IfUpdated for the common optimistic-concurrency case.
//
// # Errors
//
//   - ErrConflict (as *ConflictError): create of an existing id, or an
//     update whose Condition rejected the stored document
//   - ErrNotFound: Get or Update of an absent id
//   - ErrMissingID, ErrInvalidID, ErrInvalidTimestamp: malformed input
//   - flatten.ErrReservedToken, doc.ErrUnsupportedValue: malformed content
//
// Storage errors are returned wrapped and never retried.
package entry
