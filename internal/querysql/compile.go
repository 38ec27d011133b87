package querysql

import (
	"fmt"
	"maps"
	"strings"

	"github.com/roach88/flatdoc/internal/doc"
	"github.com/roach88/flatdoc/internal/flatten"
	"github.com/roach88/flatdoc/internal/query"
)

// Table and column names shared with internal/store.
const (
	StoreTable = "store"
	FlatTable  = "flat"
)

// Options controls pagination and count mode.
type Options struct {
	// Size is the page size. Zero means unlimited.
	Size int
	// Offset skips that many matches in result order.
	Offset int
	// Count compiles a COUNT(*) query instead of a row query.
	// Size and Offset are ignored.
	Count bool
	// IDsOnly makes a row query return the id column alone.
	IDsOnly bool
}

// SQLCompiler compiles query documents to a single parameterized SQL
// statement over the flat index and the store table.
//
// Every distinct flattened path becomes one group; the alternatives inside a
// group are OR-ed and every group must match at least once:
//
//	SELECT s.id, s.dumps FROM store AS s
//	JOIN (SELECT id FROM flat
//	      WHERE (position = ? AND (<alt> OR <alt>)) OR (position = ? AND (...))
//	      GROUP BY id HAVING COUNT(DISTINCT position) = <groups>) AS m
//	ON m.id = s.id
//	ORDER BY s.updated DESC, s.id COLLATE BINARY ASC
//
// Counting distinct positions rather than rows keeps a multi-valued field
// that satisfies several alternatives from counting as several groups.
//
// Row queries return (id, dumps), or id alone with Options.IDsOnly, and
// always carry ORDER BY. All values are bound parameters.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// group is the set of predicates for one path.
type group struct {
	path  string
	preds []query.Predicate
}

// Compile converts a query document to SQL. A nil or empty query matches
// every stored document. Top-level "id" leaves filter the id column
// directly instead of going through the index.
func (c *SQLCompiler) Compile(q map[string]any, opts Options) (string, []any, error) {
	if opts.Size < 0 || opts.Offset < 0 {
		return "", nil, fmt.Errorf("compile query: negative size or offset")
	}

	idPreds, groups, err := c.collect(q)
	if err != nil {
		return "", nil, fmt.Errorf("compile query: %w", err)
	}

	var sb strings.Builder
	var params []any

	switch {
	case opts.Count:
		sb.WriteString("SELECT COUNT(*) FROM " + StoreTable + " AS s")
	case opts.IDsOnly:
		sb.WriteString("SELECT s.id FROM " + StoreTable + " AS s")
	default:
		sb.WriteString("SELECT s.id, s.dumps FROM " + StoreTable + " AS s")
	}

	if len(groups) > 0 {
		sub, subParams := c.compileMatch(idPreds, groups)
		sb.WriteString(" JOIN (" + sub + ") AS m ON m.id = s.id")
		params = append(params, subParams...)
	} else if len(idPreds) > 0 {
		cond, condParams := anyOf(idPreds, "s.id")
		sb.WriteString(" WHERE " + cond)
		params = append(params, condParams...)
	}

	if opts.Count {
		return sb.String(), params, nil
	}

	sb.WriteString(" ORDER BY " + stableOrderKey())

	switch {
	case opts.Size > 0:
		sb.WriteString(" LIMIT ? OFFSET ?")
		params = append(params, int64(opts.Size), int64(opts.Offset))
	case opts.Offset > 0:
		// SQLite requires LIMIT before OFFSET; -1 means no limit.
		sb.WriteString(" LIMIT -1 OFFSET ?")
		params = append(params, int64(opts.Offset))
	}

	return sb.String(), params, nil
}

// collect flattens the query, separating top-level id filters from indexed
// paths. Groups keep the order in which their path first appears.
func (c *SQLCompiler) collect(q map[string]any) ([]query.Predicate, []*group, error) {
	if len(q) == 0 {
		return nil, nil, nil
	}

	normalized, err := doc.NormalizeQuery(q, query.IsPredicate)
	if err != nil {
		return nil, nil, err
	}
	rest, idPreds := splitID(normalized)

	var groups []*group
	byPath := make(map[string]*group)

	for leaf, err := range flatten.Walk(rest) {
		if err != nil {
			return nil, nil, err
		}
		g, ok := byPath[leaf.Path]
		if !ok {
			g = &group{path: leaf.Path}
			byPath[leaf.Path] = g
			groups = append(groups, g)
		}
		g.preds = append(g.preds, query.Wrap(leaf.Value))
	}

	return idPreds, groups, nil
}

// splitID removes the top-level id filter from q and returns it as
// predicates. Ids are stored as given, so they bypass the flattener and bind
// with query.Exact. Mappings under id stay in the query as indexed paths.
func splitID(q map[string]any) (map[string]any, []query.Predicate) {
	raw, ok := q[doc.FieldID]
	if !ok {
		return q, nil
	}

	var preds []query.Predicate
	var nested []any
	var visit func(v any)
	visit = func(v any) {
		switch val := v.(type) {
		case []any:
			for _, elem := range val {
				visit(elem)
			}
		case map[string]any:
			nested = append(nested, val)
		default:
			preds = append(preds, query.Exact(query.Wrap(val)))
		}
	}
	visit(raw)

	rest := maps.Clone(q)
	delete(rest, doc.FieldID)
	if len(nested) > 0 {
		rest[doc.FieldID] = nested
	}
	return rest, preds
}

// compileMatch builds the subquery selecting ids that satisfy every group.
func (c *SQLCompiler) compileMatch(idPreds []query.Predicate, groups []*group) (string, []any) {
	var where []string
	var params []any

	if len(idPreds) > 0 {
		cond, condParams := anyOf(idPreds, "id")
		where = append(where, cond)
		params = append(params, condParams...)
	}

	alts := make([]string, len(groups))
	for i, g := range groups {
		cond, condParams := anyOf(g.preds, "leaf")
		alts[i] = "(position = ? AND " + cond + ")"
		params = append(params, g.path)
		params = append(params, condParams...)
	}
	where = append(where, "("+strings.Join(alts, " OR ")+")")

	sql := fmt.Sprintf("SELECT id FROM %s WHERE %s GROUP BY id HAVING COUNT(DISTINCT position) = %d",
		FlatTable,
		strings.Join(where, " AND "),
		len(groups))

	return sql, params
}

// anyOf renders predicates over column as a parenthesized disjunction.
func anyOf(preds []query.Predicate, column string) (string, []any) {
	parts := make([]string, len(preds))
	var params []any
	for i, p := range preds {
		parts[i] = p.Render(column)
		params = append(params, p.Params()...)
	}
	return "(" + strings.Join(parts, " OR ") + ")", params
}

// stableOrderKey is the ORDER BY of every row query: most recently updated
// first, id as a binary-collated tiebreaker so pages never overlap.
func stableOrderKey() string {
	return "s.updated DESC, s.id COLLATE BINARY ASC"
}
