package ranking

import (
	"context"
	"fmt"
	"math"

	"github.com/carematch/community-recommender/internal/catalog"
	"github.com/carematch/community-recommender/internal/extract"
)

// upfrontAmortizationMonths spreads one-time move-in costs over two years
// when comparing total cost across communities.
const upfrontAmortizationMonths = 24

// BusinessRanker ranks by willingness to work with placement times the
// contracted commission fraction, higher first.
type BusinessRanker struct{}

func (BusinessRanker) Dimension() string { return DimBusiness }

func (BusinessRanker) Rank(_ context.Context, _ *extract.ClientRequirements, communities []catalog.Community) (*Result, error) {
	items := make([]scored, 0, len(communities))
	for _, c := range communities {
		score := float64(c.WillingnessScore) * c.ContractRate
		items = append(items, scored{
			id: c.ID,
			// Descending by score: negate so the shared ascending sort applies.
			score: -score,
			reason: fmt.Sprintf("Willingness %d/10 x %.0f%% commission = %.2f",
				c.WillingnessScore, c.ContractRate*100, score),
		})
	}

	ranks, reasons := assignAverageRanks(items)
	return &Result{Dimension: DimBusiness, Ranks: ranks, Reasons: reasons}, nil
}

// CostRanker ranks by monthly fee plus amortized upfront costs, cheaper
// first. The pet fee counts only when the client brings a pet.
type CostRanker struct{}

func (CostRanker) Dimension() string { return DimCost }

func (CostRanker) Rank(_ context.Context, req *extract.ClientRequirements, communities []catalog.Community) (*Result, error) {
	items := make([]scored, 0, len(communities))
	for _, c := range communities {
		upfront := c.Upfront.Deposit + c.Upfront.MoveInFee + c.Upfront.CommunityFee
		if req.HasPet {
			upfront += c.Upfront.PetFee
		}
		amortized := upfront / upfrontAmortizationMonths
		total := c.MonthlyFee + amortized

		items = append(items, scored{
			id:    c.ID,
			score: total,
			reason: fmt.Sprintf("%s/month + %s amortized upfront = %s/month equivalent",
				formatUSD(c.MonthlyFee), formatUSD(amortized), formatUSD(total)),
		})
	}

	ranks, reasons := assignAverageRanks(items)
	return &Result{Dimension: DimCost, Ranks: ranks, Reasons: reasons}, nil
}

// DistanceSource computes miles between two postal codes. ok is false when
// either endpoint cannot be geocoded.
type DistanceSource interface {
	Distance(ctx context.Context, zipA, zipB string) (float64, bool)
}

// DistanceRanker ranks by geodesic miles from the client's resolved ZIP.
// Communities that cannot be geocoded sort to the end, tied among
// themselves; a client without a resolvable location neutralizes the
// dimension entirely.
type DistanceRanker struct {
	Geocoder DistanceSource
}

func (DistanceRanker) Dimension() string { return DimDistance }

func (r DistanceRanker) Rank(ctx context.Context, req *extract.ClientRequirements, communities []catalog.Community) (*Result, error) {
	if req.ResolvedZIP == "" {
		return NeutralResult(DimDistance, communities, "Not applicable (no client location)"), nil
	}

	items := make([]scored, 0, len(communities))
	scores := make(map[int]float64, len(communities))

	for _, c := range communities {
		miles, ok := 0.0, false
		if c.ZIP != "" {
			miles, ok = r.Geocoder.Distance(ctx, req.ResolvedZIP, c.ZIP)
		}

		if !ok {
			scores[c.ID] = math.Inf(1)
			items = append(items, scored{
				id:     c.ID,
				score:  math.Inf(1),
				reason: fmt.Sprintf("Distance unknown (ZIP %q could not be geocoded)", c.ZIP),
			})
			continue
		}

		scores[c.ID] = miles
		items = append(items, scored{
			id:     c.ID,
			score:  miles,
			reason: fmt.Sprintf("%.2f miles from ZIP %s", miles, req.ResolvedZIP),
		})
	}

	ranks, reasons := assignAverageRanks(items)
	return &Result{Dimension: DimDistance, Ranks: ranks, Scores: scores, Reasons: reasons}, nil
}

// BudgetEfficiencyRanker ranks by budget utilization, lower first. Without a
// budget the dimension is neutral so it adds no Borda signal.
type BudgetEfficiencyRanker struct{}

func (BudgetEfficiencyRanker) Dimension() string { return DimBudgetEfficiency }

func (BudgetEfficiencyRanker) Rank(_ context.Context, req *extract.ClientRequirements, communities []catalog.Community) (*Result, error) {
	if !req.HasBudget() {
		return NeutralResult(DimBudgetEfficiency, communities, "Not applicable (no budget provided)"), nil
	}

	items := make([]scored, 0, len(communities))
	for _, c := range communities {
		utilization := c.MonthlyFee / req.BudgetMonthly
		items = append(items, scored{
			id:    c.ID,
			score: utilization,
			reason: fmt.Sprintf("%s/month uses %.1f%% of %s budget",
				formatUSD(c.MonthlyFee), utilization*100, formatUSD(req.BudgetMonthly)),
		})
	}

	ranks, reasons := assignAverageRanks(items)
	return &Result{Dimension: DimBudgetEfficiency, Ranks: ranks, Reasons: reasons}, nil
}

// CoupleRanker ranks by the monthly second-person fee, cheaper first, with
// missing fees last. Neutral for single clients.
type CoupleRanker struct{}

func (CoupleRanker) Dimension() string { return DimCouple }

func (CoupleRanker) Rank(_ context.Context, req *extract.ClientRequirements, communities []catalog.Community) (*Result, error) {
	if !req.IsCouple {
		return NeutralResult(DimCouple, communities, "Not applicable (client is single)"), nil
	}

	items := make([]scored, 0, len(communities))
	for _, c := range communities {
		if c.Upfront.SecondPersonFee == nil {
			items = append(items, scored{
				id:     c.ID,
				score:  math.Inf(1),
				reason: "No second-person fee on record",
			})
			continue
		}
		fee := *c.Upfront.SecondPersonFee
		items = append(items, scored{
			id:     c.ID,
			score:  fee,
			reason: fmt.Sprintf("%s/month for second person", formatUSD(fee)),
		})
	}

	ranks, reasons := assignAverageRanks(items)
	return &Result{Dimension: DimCouple, Ranks: ranks, Reasons: reasons}, nil
}
