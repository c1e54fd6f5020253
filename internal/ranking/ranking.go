package ranking

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/carematch/community-recommender/internal/ai"
	"github.com/carematch/community-recommender/internal/catalog"
	"github.com/carematch/community-recommender/internal/extract"
)

// Ranking dimensions. Lower rank is always better.
const (
	DimBusiness         = "business"
	DimCost             = "cost"
	DimDistance         = "distance"
	DimBudgetEfficiency = "budget_efficiency"
	DimCouple           = "couple"
	DimAvailability     = "availability"
	DimAmenity          = "amenity"
	DimHolistic         = "holistic"
)

// DeterministicDimensions run over the full filtered set; AIDimensions run
// over the shortlist only.
var (
	DeterministicDimensions = []string{DimBusiness, DimCost, DimDistance, DimBudgetEfficiency, DimCouple}
	AIDimensions            = []string{DimAvailability, DimAmenity, DimHolistic}
	AllDimensions           = append(append([]string{}, DeterministicDimensions...), AIDimensions...)
)

// NotRankedByAI is the placeholder explanation for degraded AI dimensions.
const NotRankedByAI = "Not ranked by AI"

// Result holds one dimension's ranking over a candidate set.
//
// Neutral marks a dimension that produced no signal: every community holds
// the middle rank (N+1)/2 and the dimension reports null in the result JSON
// while still contributing weight x neutral to the combined score. Degraded
// additionally marks an AI dimension that failed at runtime.
type Result struct {
	Dimension string
	Ranks     map[int]float64
	Scores    map[int]float64
	Reasons   map[int]string
	Neutral   bool
	Degraded  bool
	Usage     ai.Usage
}

// Ranker produces one dimension's Result. Deterministic rankers are pure
// over their inputs; AI rankers suspend on provider calls.
type Ranker interface {
	Dimension() string
	Rank(ctx context.Context, req *extract.ClientRequirements, communities []catalog.Community) (*Result, error)
}

// NeutralRank is the middle rank every community receives when a dimension
// is not applicable.
func NeutralRank(n int) float64 { return float64(n+1) / 2 }

// NeutralResult builds an all-neutral Result with the same reason per row.
func NeutralResult(dimension string, communities []catalog.Community, reason string) *Result {
	r := &Result{
		Dimension: dimension,
		Ranks:     make(map[int]float64, len(communities)),
		Reasons:   make(map[int]string, len(communities)),
		Neutral:   true,
	}
	rank := NeutralRank(len(communities))
	for _, c := range communities {
		r.Ranks[c.ID] = rank
		r.Reasons[c.ID] = reason
	}
	return r
}

// scored pairs a community with the raw score driving one dimension.
type scored struct {
	id     int
	score  float64
	reason string
}

// assignAverageRanks sorts ascending by score and assigns 1-based ranks with
// average-rank tie handling: t items tied from position k all receive
// k + (t-1)/2. Equal scores are grouped by exact equality so identical
// inputs always reproduce identical rank vectors.
func assignAverageRanks(items []scored) (map[int]float64, map[int]string) {
	sort.SliceStable(items, func(a, b int) bool {
		if items[a].score != items[b].score {
			// NaN never occurs here; unknowns are +Inf and sort last.
			return items[a].score < items[b].score
		}
		return items[a].id < items[b].id
	})

	ranks := make(map[int]float64, len(items))
	reasons := make(map[int]string, len(items))

	i := 0
	for i < len(items) {
		j := i
		for j < len(items) && sameScore(items[j].score, items[i].score) {
			j++
		}
		avg := float64(i+1+j) / 2
		for k := i; k < j; k++ {
			ranks[items[k].id] = avg
			reasons[items[k].id] = items[k].reason
		}
		i = j
	}

	return ranks, reasons
}

func sameScore(a, b float64) bool {
	if math.IsInf(a, 1) && math.IsInf(b, 1) {
		return true
	}
	return a == b
}

// formatUSD renders a dollar amount with thousands separators, dropping
// cents when they are zero.
func formatUSD(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}

	whole := int64(v)
	cents := int64(math.Round((v - float64(whole)) * 100))
	if cents == 100 {
		whole++
		cents = 0
	}

	digits := fmt.Sprintf("%d", whole)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}

	out := "$" + b.String()
	if cents > 0 {
		out += fmt.Sprintf(".%02d", cents)
	}
	if neg {
		out = "-" + out
	}
	return out
}
