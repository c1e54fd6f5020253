package ranking

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carematch/community-recommender/internal/catalog"
)

func sequentialResult(dim string, communities []catalog.Community) *Result {
	r := &Result{Dimension: dim, Ranks: map[int]float64{}, Reasons: map[int]string{}}
	for i, c := range communities {
		r.Ranks[c.ID] = float64(i + 1)
	}
	return r
}

func TestSelectShortlistKeepsBestK(t *testing.T) {
	communities := make([]catalog.Community, 15)
	for i := range communities {
		communities[i] = catalog.Community{ID: i + 1}
	}

	// Every dimension ranks by id ascending, so the shortlist is ids 1..10.
	results := map[string]*Result{}
	for _, dim := range DeterministicDimensions {
		results[dim] = sequentialResult(dim, communities)
	}

	shortlist := SelectShortlist(communities, results, DefaultWeights(), 10)
	require.Len(t, shortlist, 10)
	for i, c := range shortlist {
		assert.Equal(t, i+1, c.ID)
	}
}

func TestSelectShortlistSmallFieldUntouched(t *testing.T) {
	communities := []catalog.Community{{ID: 1}, {ID: 2}, {ID: 3}}
	results := map[string]*Result{}
	for _, dim := range DeterministicDimensions {
		results[dim] = sequentialResult(dim, communities)
	}

	shortlist := SelectShortlist(communities, results, DefaultWeights(), 10)
	assert.Len(t, shortlist, 3)
}

func TestSelectShortlistRespectsWeights(t *testing.T) {
	communities := []catalog.Community{{ID: 1}, {ID: 2}}

	results := map[string]*Result{
		DimBusiness: {Dimension: DimBusiness, Ranks: map[int]float64{1: 1, 2: 2}},
		DimCost:     {Dimension: DimCost, Ranks: map[int]float64{1: 2, 2: 1}},
	}

	weights := DefaultWeights().Merge(map[string]float64{DimCost: 10})
	shortlist := SelectShortlist(communities, results, weights, 1)
	require.Len(t, shortlist, 1)
	assert.Equal(t, 2, shortlist[0].ID)
}

func TestSelectShortlistNeutralDimensionAddsNoSignal(t *testing.T) {
	communities := make([]catalog.Community, 12)
	for i := range communities {
		communities[i] = catalog.Community{ID: i + 1}
	}

	results := map[string]*Result{}
	for _, dim := range []string{DimBusiness, DimCost, DimDistance} {
		results[dim] = sequentialResult(dim, communities)
	}
	results[DimBudgetEfficiency] = NeutralResult(DimBudgetEfficiency, communities, "n/a")
	results[DimCouple] = NeutralResult(DimCouple, communities, "n/a")

	with := SelectShortlist(communities, results, DefaultWeights(), 10)

	delete(results, DimBudgetEfficiency)
	delete(results, DimCouple)
	without := SelectShortlist(communities, results, DefaultWeights(), 10)

	require.Equal(t, len(without), len(with))
	for i := range with {
		assert.Equal(t, without[i].ID, with[i].ID, fmt.Sprintf("position %d", i))
	}
}
