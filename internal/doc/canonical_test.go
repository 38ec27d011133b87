package doc

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    Document
		expected string
	}{
		{"empty", Document{}, `{}`},
		{"string", Document{"a": "hello"}, `{"a":"hello"}`},
		{"int", Document{"a": int64(42)}, `{"a":42}`},
		{"negative int", Document{"a": int64(-100)}, `{"a":-100}`},
		{"float", Document{"a": 1.5}, `{"a":1.5}`},
		{"integral float", Document{"a": 2.0}, `{"a":2.0}`},
		{"bool", Document{"t": true, "f": false}, `{"f":false,"t":true}`},
		{"null", Document{"a": nil}, `{"a":null}`},
		{"nested", Document{"z": map[string]any{"b": int64(1), "a": int64(2)}, "a": []any{"x", int64(1)}}, `{"a":["x",1],"z":{"a":2,"b":1}}`},
		{"no html escape", Document{"a": "<b>&</b>"}, `{"a":"<b>&</b>"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(out))
		})
	}
}

func TestMarshalRejectsUnnormalized(t *testing.T) {
	_, err := Marshal(Document{"a": 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestMarshalUnmarshalPreservesNumberKinds(t *testing.T) {
	d, err := Normalize(map[string]any{
		"int":   7,
		"float": 7.0,
		"big":   int64(9007199254740993), // 2^53 + 1, lost by float64
		"exp":   1e21,
		"list":  []float64{0.5, 3},
	})
	require.NoError(t, err)

	data, err := Marshal(d)
	require.NoError(t, err)

	back, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, d, back)
	assert.IsType(t, int64(0), back["int"])
	assert.IsType(t, float64(0), back["float"])
	assert.Equal(t, int64(9007199254740993), back["big"])
}

func TestUnmarshalRejectsNonObject(t *testing.T) {
	_, err := Unmarshal([]byte(`[1,2]`))
	require.Error(t, err)

	_, err = Unmarshal([]byte(`null`))
	require.Error(t, err)
}

func TestNormalize(t *testing.T) {
	d, err := Normalize(map[string]any{
		"i":    int32(3),
		"u":    uint8(4),
		"f":    float32(0.5),
		"n":    json.Number("12"),
		"nf":   json.Number("1.25"),
		"ss":   []string{"a", "b"},
		"mi":   map[string]int{"x": 1},
		"doc":  Document{"k": "v"},
		"nil":  nil,
		"nils": []string(nil),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3), d["i"])
	assert.Equal(t, int64(4), d["u"])
	assert.Equal(t, 0.5, d["f"])
	assert.Equal(t, int64(12), d["n"])
	assert.Equal(t, 1.25, d["nf"])
	assert.Equal(t, []any{"a", "b"}, d["ss"])
	assert.Equal(t, map[string]any{"x": int64(1)}, d["mi"])
	assert.Equal(t, map[string]any{"k": "v"}, d["doc"])
	assert.Nil(t, d["nil"])
	assert.Equal(t, []any{}, d["nils"])
}

func TestNormalizeTime(t *testing.T) {
	born := time.Date(2001, 12, 14, 21, 59, 43, 100, time.FixedZone("EST", -5*3600))

	d, err := Normalize(map[string]any{
		"born":  born,
		"ptr":   &born,
		"times": []time.Time{born},
	})
	require.NoError(t, err)

	want := "2001-12-15T02:59:43.000000100Z"
	assert.Equal(t, want, d["born"])
	assert.Equal(t, want, d["ptr"])
	assert.Equal(t, []any{want}, d["times"])

	parsed, err := ParseTime(want)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(born))
}

func TestNormalizeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]any
	}{
		{"channel", map[string]any{"c": make(chan int)}},
		{"func", map[string]any{"f": func() {}}},
		{"int map key", map[string]any{"m": map[int]string{1: "a"}}},
		{"uint overflow", map[string]any{"u": uint64(1) << 63}},
		{"nested bad value", map[string]any{"a": []any{map[string]any{"b": make(chan int)}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsupportedValue)
		})
	}
}

func TestNormalizeQueryKeepsMarkedValues(t *testing.T) {
	type marker struct{ v int }
	keep := func(v any) bool {
		_, ok := v.(marker)
		return ok
	}

	q, err := NormalizeQuery(map[string]any{
		"a": marker{1},
		"b": map[string]any{"c": []any{marker{2}, 3}},
	}, keep)
	require.NoError(t, err)

	assert.Equal(t, marker{1}, q["a"])
	assert.Equal(t, []any{marker{2}, int64(3)}, q["b"].(map[string]any)["c"])
}

func TestNormalizeDoesNotAliasInput(t *testing.T) {
	inner := map[string]any{"x": 1}
	d, err := Normalize(map[string]any{"inner": inner})
	require.NoError(t, err)

	inner["x"] = 2
	assert.Equal(t, int64(1), d["inner"].(map[string]any)["x"])
}

func TestSortedKeysUTF16Order(t *testing.T) {
	// U+1F600 (surrogate pair D83D DE00) sorts before U+FF61 in UTF-16,
	// after it in UTF-8.
	m := map[string]int{"｡": 1, "\U0001F600": 2, "a": 3}
	assert.Equal(t, []string{"a", "\U0001F600", "｡"}, SortedKeys(m))
}

func TestCloneIsDeep(t *testing.T) {
	d := Document{"a": map[string]any{"b": []any{int64(1)}}}
	c := d.Clone()
	c["a"].(map[string]any)["b"].([]any)[0] = int64(2)

	assert.Equal(t, int64(1), d["a"].(map[string]any)["b"].([]any)[0])
	assert.Nil(t, Document(nil).Clone())
}

func TestSystemFieldAccessors(t *testing.T) {
	d := Document{FieldID: "abc", FieldUpdated: "2026-01-02T03:04:05.000000000Z"}
	assert.Equal(t, "abc", d.ID())
	assert.Equal(t, "2026-01-02T03:04:05.000000000Z", d.Updated())

	assert.Equal(t, "", Document{FieldID: 42}.ID())
	assert.Equal(t, "", Document{}.Updated())
}

func TestNextTimestamp(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("no previous", func(t *testing.T) {
		assert.Equal(t, "2026-01-02T03:04:05.000000000Z", NextTimestamp(base, ""))
	})

	t.Run("clock moved forward", func(t *testing.T) {
		prev := FormatTime(base.Add(-time.Second))
		assert.Equal(t, FormatTime(base), NextTimestamp(base, prev))
	})

	t.Run("clock stalled", func(t *testing.T) {
		prev := FormatTime(base)
		assert.Equal(t, "2026-01-02T03:04:05.000000001Z", NextTimestamp(base, prev))
	})

	t.Run("clock went backwards", func(t *testing.T) {
		prev := FormatTime(base.Add(time.Hour))
		next := NextTimestamp(base, prev)
		assert.Greater(t, next, prev)
	})

	t.Run("non-UTC input", func(t *testing.T) {
		loc := time.FixedZone("X", 3600)
		assert.Equal(t, "2026-01-02T03:04:05.000000000Z", NextTimestamp(base.In(loc), ""))
	})
}
