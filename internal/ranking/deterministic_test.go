package ranking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carematch/community-recommender/internal/catalog"
	"github.com/carematch/community-recommender/internal/extract"
)

type staticDistances map[string]float64

func (d staticDistances) Distance(_ context.Context, _, zip string) (float64, bool) {
	miles, ok := d[zip]
	return miles, ok
}

func fee(v float64) *float64 { return &v }

func assertRankSumInvariant(t *testing.T, res *Result, n int) {
	t.Helper()
	var sum float64
	for _, r := range res.Ranks {
		sum += r
	}
	assert.InDelta(t, float64(n*(n+1))/2, sum, 1e-9, "rank sum for %s", res.Dimension)
}

func TestBusinessRankerOrdersDescending(t *testing.T) {
	communities := []catalog.Community{
		{ID: 1, WillingnessScore: 10, ContractRate: 0.9},
		{ID: 2, WillingnessScore: 10, ContractRate: 0.5},
		{ID: 3, WillingnessScore: 0, ContractRate: 1.0},
	}

	res, err := BusinessRanker{}.Rank(context.Background(), &extract.ClientRequirements{}, communities)
	require.NoError(t, err)

	assert.Equal(t, 1.0, res.Ranks[1])
	assert.Equal(t, 2.0, res.Ranks[2])
	assert.Equal(t, 3.0, res.Ranks[3])
	assertRankSumInvariant(t, res, 3)
	assert.Contains(t, res.Reasons[1], "90% commission")
}

func TestBusinessRankerAverageTies(t *testing.T) {
	communities := []catalog.Community{
		{ID: 1, WillingnessScore: 10, ContractRate: 0.8},
		{ID: 2, WillingnessScore: 10, ContractRate: 0.8},
		{ID: 3, WillingnessScore: 0, ContractRate: 0},
		{ID: 4, WillingnessScore: 0, ContractRate: 0},
	}

	res, err := BusinessRanker{}.Rank(context.Background(), &extract.ClientRequirements{}, communities)
	require.NoError(t, err)

	assert.Equal(t, 1.5, res.Ranks[1])
	assert.Equal(t, 1.5, res.Ranks[2])
	assert.Equal(t, 3.5, res.Ranks[3])
	assert.Equal(t, 3.5, res.Ranks[4])
	assertRankSumInvariant(t, res, 4)
}

func TestCostRankerAmortizesUpfront(t *testing.T) {
	communities := []catalog.Community{
		// 4000 + 2400/24 = 4100 equivalent.
		{ID: 1, MonthlyFee: 4000, Upfront: catalog.UpfrontCosts{Deposit: 1200, MoveInFee: 600, CommunityFee: 600}},
		{ID: 2, MonthlyFee: 4050},
	}

	res, err := CostRanker{}.Rank(context.Background(), &extract.ClientRequirements{}, communities)
	require.NoError(t, err)

	assert.Equal(t, 1.0, res.Ranks[2])
	assert.Equal(t, 2.0, res.Ranks[1])
	assert.Contains(t, res.Reasons[1], "$4,000/month + $100 amortized upfront")
}

func TestCostRankerCountsPetFeeOnlyWithPet(t *testing.T) {
	communities := []catalog.Community{
		{ID: 1, MonthlyFee: 4000, Upfront: catalog.UpfrontCosts{PetFee: 4800}},
		{ID: 2, MonthlyFee: 4100},
	}

	res, err := CostRanker{}.Rank(context.Background(), &extract.ClientRequirements{HasPet: true}, communities)
	require.NoError(t, err)
	// 4000 + 4800/24 = 4200 > 4100.
	assert.Equal(t, 1.0, res.Ranks[2])

	res, err = CostRanker{}.Rank(context.Background(), &extract.ClientRequirements{}, communities)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Ranks[1])
}

func TestDistanceRankerUnknownsTieLast(t *testing.T) {
	communities := []catalog.Community{
		{ID: 1, ZIP: "14618"},
		{ID: 2, ZIP: "99998"},
		{ID: 3, ZIP: "99997"},
		{ID: 4, ZIP: "14534"},
	}
	distances := staticDistances{"14618": 2.5, "14534": 7.1}

	res, err := DistanceRanker{Geocoder: distances}.Rank(context.Background(),
		&extract.ClientRequirements{ResolvedZIP: "14611"}, communities)
	require.NoError(t, err)

	assert.Equal(t, 1.0, res.Ranks[1])
	assert.Equal(t, 2.0, res.Ranks[4])
	// The two unknowns share the average of positions 3 and 4.
	assert.Equal(t, 3.5, res.Ranks[2])
	assert.Equal(t, 3.5, res.Ranks[3])
	assertRankSumInvariant(t, res, 4)
	assert.Contains(t, res.Reasons[1], "2.50 miles from ZIP 14611")
}

func TestDistanceRankerNeutralWithoutLocation(t *testing.T) {
	communities := []catalog.Community{{ID: 1, ZIP: "14618"}, {ID: 2, ZIP: "14534"}}

	res, err := DistanceRanker{Geocoder: staticDistances{}}.Rank(context.Background(),
		&extract.ClientRequirements{}, communities)
	require.NoError(t, err)

	assert.True(t, res.Neutral)
	assert.Equal(t, 1.5, res.Ranks[1])
	assert.Equal(t, 1.5, res.Ranks[2])
}

func TestBudgetEfficiencyNeutralWithoutBudget(t *testing.T) {
	communities := []catalog.Community{
		{ID: 1, MonthlyFee: 4000},
		{ID: 2, MonthlyFee: 5000},
		{ID: 3, MonthlyFee: 3000},
	}

	res, err := BudgetEfficiencyRanker{}.Rank(context.Background(), &extract.ClientRequirements{}, communities)
	require.NoError(t, err)
	assert.True(t, res.Neutral)
	for _, c := range communities {
		assert.Equal(t, 2.0, res.Ranks[c.ID])
	}

	res, err = BudgetEfficiencyRanker{}.Rank(context.Background(),
		&extract.ClientRequirements{BudgetMonthly: 5000}, communities)
	require.NoError(t, err)
	assert.False(t, res.Neutral)
	assert.Equal(t, 1.0, res.Ranks[3])
	assert.Equal(t, 3.0, res.Ranks[2])
	assert.Contains(t, res.Reasons[1], "80.0% of $5,000 budget")
}

func TestCoupleRankerMissingFeeRanksLast(t *testing.T) {
	communities := []catalog.Community{
		{ID: 1, Upfront: catalog.UpfrontCosts{SecondPersonFee: fee(500)}},
		{ID: 2, Upfront: catalog.UpfrontCosts{SecondPersonFee: fee(1000)}},
		{ID: 3},
	}

	res, err := CoupleRanker{}.Rank(context.Background(), &extract.ClientRequirements{IsCouple: true}, communities)
	require.NoError(t, err)

	assert.Equal(t, 1.0, res.Ranks[1])
	assert.Equal(t, 2.0, res.Ranks[2])
	assert.Equal(t, 3.0, res.Ranks[3])
	assert.Equal(t, "No second-person fee on record", res.Reasons[3])
}

func TestCoupleRankerNeutralForSingles(t *testing.T) {
	communities := []catalog.Community{{ID: 1}, {ID: 2}, {ID: 3}}

	res, err := CoupleRanker{}.Rank(context.Background(), &extract.ClientRequirements{}, communities)
	require.NoError(t, err)
	assert.True(t, res.Neutral)
	assert.Equal(t, 2.0, res.Ranks[2])
	assert.Equal(t, "Not applicable (client is single)", res.Reasons[1])
}

func TestDeterministicRankersAreReproducible(t *testing.T) {
	communities := []catalog.Community{
		{ID: 5, MonthlyFee: 4000, WillingnessScore: 10, ContractRate: 0.8},
		{ID: 6, MonthlyFee: 4200, WillingnessScore: 10, ContractRate: 0.8},
		{ID: 7, MonthlyFee: 3900},
	}
	req := &extract.ClientRequirements{BudgetMonthly: 5000}

	for _, ranker := range []Ranker{BusinessRanker{}, CostRanker{}, BudgetEfficiencyRanker{}} {
		first, err := ranker.Rank(context.Background(), req, communities)
		require.NoError(t, err)
		second, err := ranker.Rank(context.Background(), req, communities)
		require.NoError(t, err)
		assert.Equal(t, first.Ranks, second.Ranks, "dimension %s", ranker.Dimension())
	}
}
