// Package harness runs conformance scenarios against a document store.
//
// Each scenario runs on a fresh in-memory database with a deterministic
// clock, so the trace it produces is reproducible and can be compared
// against a golden file.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	setup:
//	  - { id: a, color: blue }
//	flow:
//	  - op: update
//	    doc: { id: a, color: red }
//	    expect:
//	      doc: { color: red }
//	  - op: search
//	    query: { color: { $in: [red, green] } }
//	    expect:
//	      ids: [a]
//	  - op: create
//	    doc: { id: a }
//	    expect:
//	      outcome: conflict
//	assertions:
//	  - type: count
//	    query: { color: red }
//	    count: 1
//	  - type: document
//	    id: a
//	    expect: { color: red }
//
// Operations: create, get, update, delete, delete_matching, search, count.
// Outcomes: ok (the default), conflict, not_found, invalid, error.
//
// Assertion types:
//   - count: the number of documents matching query
//   - document: the stored document id contains the expect fields
//   - absent: no document is stored under id
//   - leaf_count: the number of index rows of document id
//   - no_orphans: every index row belongs to a stored document
package harness
