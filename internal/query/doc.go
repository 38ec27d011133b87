// Package query defines the predicates that can appear as leaves of a query
// document.
//
// A query document has the same nested shape as a stored document. Each
// leaf is either a literal scalar, meaning equality, or a Predicate that
// supplies its own comparison:
//
//	doc.Document{
//	    "status": "open",                               // status = 'open'
//	    "tags":   []any{"go", "db"},                    // tags is 'go' OR 'db'
//	    "meta":   map[string]any{"size": query.Gt(10)}, // meta.size > 10
//	}
//
// # Rendering Contract
//
// A Predicate renders to exactly one boolean SQL expression over a column
// name chosen by the compiler, and returns the parameters that expression
// consumes, in placeholder order. Values are never interpolated into the
// SQL text.
//
//	Eq{Value: 3}.Render("leaf")   // "leaf = ?"          params [3]
//	Range{Low: 1, High: 9}        // "(... leaf > ? AND leaf < ?)"
//
// The compiler groups predicates by path and combines them itself, so new
// operators only have to honour this contract.
//
// # Type Guards
//
// SQLite orders values across storage classes (numbers sort before text),
// so a bare "leaf > 5" would match every string. Ordering operators add a
// typeof() guard derived from their bound so numbers only compare with
// numbers and text with text. Booleans are stored as the integers 0 and 1.
//
// # Operator Syntax
//
// Parse converts operator objects such as {"$gt": 3} in a decoded JSON or
// YAML query into predicates. The CLI uses it; Go callers build predicates
// directly.
package query
