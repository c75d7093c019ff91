package internal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeOptA struct{ val int }
type fakeOptB struct{ val string }

func TestApplyFiltersByType(t *testing.T) {
	opts := []any{fakeOptA{1}, fakeOptB{"x"}, fakeOptA{2}, nil}

	var as []fakeOptA
	for a := range Apply[fakeOptA](opts) {
		as = append(as, a)
	}
	require.Equal(t, []fakeOptA{{1}, {2}}, as)
}

func TestApplyIncludesRestAfterOpts(t *testing.T) {
	opts := []any{fakeOptA{1}}
	rest := []any{fakeOptA{2}, fakeOptB{"y"}}

	var as []fakeOptA
	for a := range Apply[fakeOptA](opts, rest...) {
		as = append(as, a)
	}
	require.Equal(t, []fakeOptA{{1}, {2}}, as)
}

func TestApplyStopsWhenYieldReturnsFalse(t *testing.T) {
	opts := []any{fakeOptA{1}, fakeOptA{2}, fakeOptA{3}}

	var as []fakeOptA
	for a := range Apply[fakeOptA](opts) {
		as = append(as, a)
		if len(as) == 2 {
			break
		}
	}
	require.Equal(t, []fakeOptA{{1}, {2}}, as)
}

func TestApplyEmptyInput(t *testing.T) {
	var as []fakeOptA
	for a := range Apply[fakeOptA]([]any{}) {
		as = append(as, a)
	}
	require.Nil(t, as)
}
