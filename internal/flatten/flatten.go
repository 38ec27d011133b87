// Package flatten turns nested documents into (path, leaf) pairs.
//
// A mapping extends the path with its (escaped) key joined by ".". A
// sequence does not extend the path: every element of a list sits at the
// path of the list itself. This is what lets a query for one value match a
// multi-valued field, and it means the index forgets list positions. Any
// other value is a leaf. Empty mappings and empty sequences produce nothing.
//
// Keys are escaped so that paths split unambiguously on ".": a literal dot
// in a key becomes EscapeToken. A key that already contains EscapeToken
// cannot be escaped reversibly and is rejected with ErrReservedToken.
//
// Keys and string leaves are NFC-normalized, so documents and queries
// written in different Unicode normalization forms produce equal pairs.
package flatten

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/flatdoc/internal/doc"
)

// Separator joins path segments.
const Separator = "."

// EscapeToken replaces a literal Separator inside a key.
const EscapeToken = "~d"

// ErrReservedToken is returned for keys containing EscapeToken.
var ErrReservedToken = errors.New("flatdoc: key contains reserved escape token")

// Leaf is one flattened entry.
type Leaf struct {
	Path  string
	Value any
}

// Walk returns a lazy sequence over the leaves of v in deterministic order
// (mapping keys in sorted order, sequences in element order). The sequence
// is pure and can be ranged over any number of times. On a malformed key it
// yields a single error and stops.
func Walk(v any) iter.Seq2[Leaf, error] {
	return func(yield func(Leaf, error) bool) {
		if err := walk("", v, yield); err != nil && !errors.Is(err, errStop) {
			yield(Leaf{}, err)
		}
	}
}

// Flatten collects Walk(v).
func Flatten(v any) ([]Leaf, error) {
	var leaves []Leaf
	for leaf, err := range Walk(v) {
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}
	return leaves, nil
}

// errStop signals that the consumer stopped ranging.
var errStop = errors.New("stop")

func walk(path string, v any, yield func(Leaf, error) bool) error {
	switch val := v.(type) {
	case doc.Document:
		return walkMap(path, val, yield)
	case map[string]any:
		return walkMap(path, val, yield)
	case []any:
		for _, elem := range val {
			if err := walk(path, elem, yield); err != nil {
				return err
			}
		}
		return nil
	case string:
		if !yield(Leaf{Path: path, Value: norm.NFC.String(val)}, nil) {
			return errStop
		}
		return nil
	default:
		if !yield(Leaf{Path: path, Value: v}, nil) {
			return errStop
		}
		return nil
	}
}

func walkMap(path string, m map[string]any, yield func(Leaf, error) bool) error {
	for _, k := range doc.SortedKeys(m) {
		seg, err := EscapeKey(k)
		if err != nil {
			return err
		}
		if err := walk(JoinPath(path, seg), m[k], yield); err != nil {
			return err
		}
	}
	return nil
}

// EscapeKey normalizes k and replaces literal separators with EscapeToken.
func EscapeKey(k string) (string, error) {
	k = norm.NFC.String(k)
	if strings.Contains(k, EscapeToken) {
		return "", fmt.Errorf("%w: %q", ErrReservedToken, k)
	}
	return strings.ReplaceAll(k, Separator, EscapeToken), nil
}

// UnescapeKey reverses EscapeKey.
func UnescapeKey(seg string) string {
	return strings.ReplaceAll(seg, EscapeToken, Separator)
}

// JoinPath appends an escaped segment to a path.
func JoinPath(path, seg string) string {
	if path == "" {
		return seg
	}
	return path + Separator + seg
}

// SplitPath returns the unescaped keys of a path.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	segs := strings.Split(path, Separator)
	for i, s := range segs {
		segs[i] = UnescapeKey(s)
	}
	return segs
}
