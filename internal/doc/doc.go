// Package doc defines the document value model persisted by flatdoc.
//
// A document is an arbitrarily nested tree of mappings (map[string]any),
// ordered sequences ([]any) and scalars. After Normalize every scalar is one
// of:
//
//   - nil
//   - bool
//   - string
//   - int64 (integral JSON numbers and all Go integer kinds)
//   - float64 (non-integral numbers, float32/float64)
//
// A time.Time becomes a string in TimeLayout, the format of FieldUpdated.
//
// Two fields are managed by the store: FieldID, a string identifier fixed at
// creation, and FieldUpdated, a fixed-width UTC timestamp (TimeLayout) that
// strictly advances on each update. Both are ordinary top-level keys, so they
// are serialized and indexed like any other field.
//
// Marshal produces the persisted form: JSON with keys in RFC 8785 order and
// no HTML escaping. Floats always carry a fraction or exponent so that a
// float64 never reads back as an int64.
//
// This package imports nothing internal.
package doc
