package flatten

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flatdoc/internal/doc"
)

func TestFlatten_NestedMaps(t *testing.T) {
	leaves, err := Flatten(map[string]any{
		"b": int64(2),
		"a": map[string]any{
			"y": "deep",
			"x": true,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []Leaf{
		{Path: "a.x", Value: true},
		{Path: "a.y", Value: "deep"},
		{Path: "b", Value: int64(2)},
	}, leaves)
}

func TestFlatten_ListsShareParentPath(t *testing.T) {
	leaves, err := Flatten(map[string]any{
		"tags": []any{"x", "y", []any{"z"}},
		"people": []any{
			map[string]any{"name": "ann"},
			map[string]any{"name": "bob"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []Leaf{
		{Path: "people.name", Value: "ann"},
		{Path: "people.name", Value: "bob"},
		{Path: "tags", Value: "x"},
		{Path: "tags", Value: "y"},
		{Path: "tags", Value: "z"},
	}, leaves)
}

func TestFlatten_EmptyContainersProduceNothing(t *testing.T) {
	leaves, err := Flatten(map[string]any{
		"m":    map[string]any{},
		"l":    []any{},
		"keep": nil,
	})
	require.NoError(t, err)

	assert.Equal(t, []Leaf{{Path: "keep", Value: nil}}, leaves)
}

func TestFlatten_CountsScalarLeaves(t *testing.T) {
	d := doc.Document{
		"id":      "x",
		"updated": "t",
		"a":       map[string]any{"b": []any{int64(1), int64(2), map[string]any{"c": nil}}},
		"d":       []any{},
	}
	leaves, err := Flatten(d)
	require.NoError(t, err)
	assert.Len(t, leaves, 5)
}

func TestFlatten_EscapesDottedKeys(t *testing.T) {
	leaves, err := Flatten(map[string]any{
		"a.b": map[string]any{"c": int64(1)},
		"a":   map[string]any{"b": map[string]any{"c": int64(2)}},
	})
	require.NoError(t, err)
	require.Len(t, leaves, 2)

	paths := []string{leaves[0].Path, leaves[1].Path}
	assert.ElementsMatch(t, []string{"a~db.c", "a.b.c"}, paths)
	assert.NotEqual(t, leaves[0].Path, leaves[1].Path)
}

func TestFlatten_RejectsReservedToken(t *testing.T) {
	_, err := Flatten(map[string]any{
		"ok": map[string]any{"bad~dkey": int64(1)},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReservedToken)
}

func TestFlatten_NFCNormalizesKeysAndStrings(t *testing.T) {
	decomposed := "e\u0301"
	composed := "\u00e9"

	leaves, err := Flatten(map[string]any{decomposed: decomposed})
	require.NoError(t, err)
	require.Len(t, leaves, 1)
	assert.Equal(t, composed, leaves[0].Path)
	assert.Equal(t, composed, leaves[0].Value)
}

func TestWalk_IsRestartable(t *testing.T) {
	seq := Walk(map[string]any{"a": int64(1), "b": []any{"x", "y"}})

	collect := func() []Leaf {
		var out []Leaf
		for leaf, err := range seq {
			require.NoError(t, err)
			out = append(out, leaf)
		}
		return out
	}

	first := collect()
	second := collect()
	assert.Len(t, first, 3)
	assert.Equal(t, first, second)
}

func TestWalk_EarlyBreak(t *testing.T) {
	count := 0
	for range Walk(map[string]any{"a": int64(1), "b": int64(2), "c": int64(3)}) {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestWalk_ErrorIsYieldedOnce(t *testing.T) {
	var errs []error
	var leaves []Leaf
	for leaf, err := range Walk(map[string]any{"a": int64(1), "z~d": int64(2)}) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		leaves = append(leaves, leaf)
	}
	assert.Len(t, leaves, 1)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrReservedToken)
}

func TestWalk_ScalarRoot(t *testing.T) {
	leaves, err := Flatten("solo")
	require.NoError(t, err)
	assert.Equal(t, []Leaf{{Path: "", Value: "solo"}}, leaves)
}

func TestPathHelpers(t *testing.T) {
	seg, err := EscapeKey("a.b")
	require.NoError(t, err)
	assert.Equal(t, "a~db", seg)
	assert.Equal(t, "a.b", UnescapeKey(seg))

	path := JoinPath(JoinPath("", seg), "c")
	assert.Equal(t, "a~db.c", path)
	assert.Equal(t, []string{"a.b", "c"}, SplitPath(path))
	assert.Nil(t, SplitPath(""))
}
