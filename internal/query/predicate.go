package query

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/flatdoc/internal/doc"
)

// Predicate is a comparison against one flattened leaf.
type Predicate interface {
	// Render returns a single boolean SQL expression over column.
	Render(column string) string
	// Params returns the values bound by Render's placeholders, in order.
	Params() []any
}

// IsPredicate reports whether v is a Predicate.
func IsPredicate(v any) bool {
	_, ok := v.(Predicate)
	return ok
}

// Wrap returns v unchanged if it is already a Predicate, and Eq{v}
// otherwise.
func Wrap(v any) Predicate {
	if p, ok := v.(Predicate); ok {
		return p
	}
	return Eq{Value: v}
}

// Eq matches leaves equal to Value. A nil Value matches null leaves.
//
// SQLite has no boolean storage class and both drivers bind bool as
// INTEGER, so Eq{true} also matches a leaf holding 1 and Eq{false} one
// holding 0.
type Eq struct{ Value any }

func (p Eq) Render(column string) string {
	if p.Value == nil {
		return column + " IS ?"
	}
	return column + " = ?"
}

func (p Eq) Params() []any { return p.bind(param) }

func (p Eq) bind(b binder) []any { return []any{b(p.Value)} }

// Ne matches leaves not equal to Value.
type Ne struct{ Value any }

func (p Ne) Render(column string) string {
	if p.Value == nil {
		return column + " IS NOT ?"
	}
	return column + " != ?"
}

func (p Ne) Params() []any { return p.bind(param) }

func (p Ne) bind(b binder) []any { return []any{b(p.Value)} }

// CmpOp is an ordering operator.
type CmpOp string

const (
	OpGt  CmpOp = ">"
	OpGte CmpOp = ">="
	OpLt  CmpOp = "<"
	OpLte CmpOp = "<="
)

// Cmp compares leaves against Value with Op.
type Cmp struct {
	Op    CmpOp
	Value any
}

// Gt matches leaves greater than v.
func Gt(v any) Cmp { return Cmp{Op: OpGt, Value: v} }

// Gte matches leaves greater than or equal to v.
func Gte(v any) Cmp { return Cmp{Op: OpGte, Value: v} }

// Lt matches leaves less than v.
func Lt(v any) Cmp { return Cmp{Op: OpLt, Value: v} }

// Lte matches leaves less than or equal to v.
func Lte(v any) Cmp { return Cmp{Op: OpLte, Value: v} }

func (p Cmp) Render(column string) string {
	return guarded(column, p.Value, fmt.Sprintf("%s %s ?", column, p.Op))
}

func (p Cmp) Params() []any { return p.bind(param) }

func (p Cmp) bind(b binder) []any { return []any{b(p.Value)} }

// Range matches leaves strictly between Low and High.
type Range struct{ Low, High any }

func (p Range) Render(column string) string {
	return guarded(column, p.Low, fmt.Sprintf("%s > ? AND %s < ?", column, column))
}

func (p Range) Params() []any { return p.bind(param) }

func (p Range) bind(b binder) []any { return []any{b(p.Low), b(p.High)} }

// Between matches leaves in [Low, High].
type Between struct{ Low, High any }

func (p Between) Render(column string) string {
	return guarded(column, p.Low, column+" BETWEEN ? AND ?")
}

func (p Between) Params() []any { return p.bind(param) }

func (p Between) bind(b binder) []any { return []any{b(p.Low), b(p.High)} }

// Prefix matches text leaves starting with Value (case-sensitive).
type Prefix struct{ Value string }

func (p Prefix) Render(column string) string {
	return fmt.Sprintf("(typeof(%s) = 'text' AND substr(%s, 1, ?) = ?)", column, column)
}

func (p Prefix) Params() []any { return p.bind(param) }

func (p Prefix) bind(b binder) []any {
	s, _ := b(p.Value).(string)
	return []any{int64(utf8.RuneCountInString(s)), s}
}

// Contains matches text leaves containing Value (case-sensitive).
type Contains struct{ Value string }

func (p Contains) Render(column string) string {
	return fmt.Sprintf("(typeof(%s) = 'text' AND instr(%s, ?) > 0)", column, column)
}

func (p Contains) Params() []any { return p.bind(param) }

func (p Contains) bind(b binder) []any { return []any{b(p.Value)} }

// In matches leaves equal to any of Values. An empty In matches nothing.
type In struct{ Values []any }

func (p In) Render(column string) string {
	if len(p.Values) == 0 {
		return "1 = 0"
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(p.Values)), ", ")
	return fmt.Sprintf("%s IN (%s)", column, marks)
}

func (p In) Params() []any { return p.bind(param) }

func (p In) bind(b binder) []any {
	params := make([]any, len(p.Values))
	for i, v := range p.Values {
		params[i] = b(v)
	}
	return params
}

// Not negates a predicate. Within a document it matches any leaf at the
// path that fails P; it does not mean "no leaf matches P".
type Not struct{ P Predicate }

func (p Not) Render(column string) string { return "NOT (" + p.P.Render(column) + ")" }

func (p Not) Params() []any { return p.P.Params() }

func (p Not) bind(b binder) []any { return bindWith(p.P, b) }

// Exact returns p with its values bound as given, skipping the NFC
// normalization applied for the index. It is for columns that keep the
// caller's bytes, such as the document id. Predicates defined outside this
// package are returned unchanged.
func Exact(p Predicate) Predicate {
	if _, ok := p.(bindable); !ok {
		return p
	}
	return exact{p}
}

type exact struct{ p Predicate }

func (e exact) Render(column string) string { return e.p.Render(column) }

func (e exact) Params() []any { return bindWith(e.p, rawParam) }

// binder converts one caller value into a bound parameter.
type binder func(any) any

// bindable is implemented by the predicates of this package.
type bindable interface {
	bind(b binder) []any
}

func bindWith(p Predicate, b binder) []any {
	if bp, ok := p.(bindable); ok {
		return bp.bind(b)
	}
	return p.Params()
}

// param normalizes a bound value the same way document leaves are
// normalized before indexing. Values that cannot be normalized are passed
// through and left for the driver to reject.
func param(v any) any {
	n := rawParam(v)
	if s, ok := n.(string); ok {
		return norm.NFC.String(s)
	}
	return n
}

// rawParam is param without Unicode normalization.
func rawParam(v any) any {
	n, err := doc.NormalizeValue(v)
	if err != nil {
		return v
	}
	return n
}

// guarded prefixes expr with a storage-class check derived from bound.
func guarded(column string, bound any, expr string) string {
	switch param(bound).(type) {
	case int64, float64:
		return fmt.Sprintf("(typeof(%s) IN ('integer', 'real') AND %s)", column, expr)
	case string:
		return fmt.Sprintf("(typeof(%s) = 'text' AND %s)", column, expr)
	default:
		return "(" + expr + ")"
	}
}
