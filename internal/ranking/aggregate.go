package ranking

import (
	"math"
	"sort"

	"github.com/carematch/community-recommender/internal/catalog"
)

// DefaultRecommendationCount is how many communities a consultation returns.
const DefaultRecommendationCount = 5

// KeyMetrics is the snapshot consultants push into the CRM.
type KeyMetrics struct {
	MonthlyFee    float64  `json:"monthly_fee"`
	DistanceMiles *float64 `json:"distance_miles"`
	EstWaitlist   string   `json:"est_waitlist"`
}

// Recommendation is one emitted community with its full rank profile.
type Recommendation struct {
	FinalRank         int                 `json:"final_rank"`
	CommunityID       int                 `json:"community_id"`
	CommunityName     string              `json:"community_name,omitempty"`
	CombinedRankScore float64             `json:"combined_rank_score"`
	KeyMetrics        KeyMetrics          `json:"key_metrics"`
	Rankings          map[string]*float64 `json:"rankings"`
	Explanations      map[string]string   `json:"explanations"`
}

// Aggregate fuses the per-dimension rank vectors into the final ordering via
// weighted Borda count and emits the best min(limit, K) communities.
//
// Ties break on the holistic rank, then the distance rank, then the lower
// community id, so the final ordering is total and reproducible.
func Aggregate(communities []catalog.Community, results map[string]*Result, weights Weights, limit int) []Recommendation {
	if limit <= 0 {
		limit = DefaultRecommendationCount
	}

	type row struct {
		community catalog.Community
		score     float64
	}

	rows := make([]row, 0, len(communities))
	for _, c := range communities {
		var sum float64
		for _, dim := range AllDimensions {
			res, ok := results[dim]
			if !ok {
				continue
			}
			sum += weights.Of(dim) * res.Ranks[c.ID]
		}
		rows = append(rows, row{community: c, score: sum})
	}

	rankOf := func(dim string, id int) float64 {
		if res, ok := results[dim]; ok {
			return res.Ranks[id]
		}
		return 0
	}

	sort.SliceStable(rows, func(a, b int) bool {
		if rows[a].score != rows[b].score {
			return rows[a].score < rows[b].score
		}
		ha, hb := rankOf(DimHolistic, rows[a].community.ID), rankOf(DimHolistic, rows[b].community.ID)
		if ha != hb {
			return ha < hb
		}
		da, db := rankOf(DimDistance, rows[a].community.ID), rankOf(DimDistance, rows[b].community.ID)
		if da != db {
			return da < db
		}
		return rows[a].community.ID < rows[b].community.ID
	})

	if len(rows) > limit {
		rows = rows[:limit]
	}

	recommendations := make([]Recommendation, 0, len(rows))
	for i, r := range rows {
		rec := Recommendation{
			FinalRank:         i + 1,
			CommunityID:       r.community.ID,
			CommunityName:     r.community.Name,
			CombinedRankScore: r.score,
			KeyMetrics: KeyMetrics{
				MonthlyFee:  r.community.MonthlyFee,
				EstWaitlist: r.community.WaitlistStatus,
			},
			Rankings:     make(map[string]*float64, len(AllDimensions)),
			Explanations: make(map[string]string, len(AllDimensions)),
		}

		if dist, ok := distanceMiles(results, r.community.ID); ok {
			rec.KeyMetrics.DistanceMiles = &dist
		}

		for _, dim := range AllDimensions {
			res, ok := results[dim]
			if !ok {
				continue
			}
			if res.Neutral {
				rec.Rankings[dim] = nil
			} else {
				rank := res.Ranks[r.community.ID]
				rec.Rankings[dim] = &rank
			}
			if reason, ok := res.Reasons[r.community.ID]; ok {
				rec.Explanations[dim] = reason
			}
		}

		recommendations = append(recommendations, rec)
	}

	return recommendations
}

func distanceMiles(results map[string]*Result, id int) (float64, bool) {
	res, ok := results[DimDistance]
	if !ok || res.Scores == nil {
		return 0, false
	}
	miles, ok := res.Scores[id]
	if !ok || math.IsInf(miles, 1) {
		return 0, false
	}
	return miles, true
}
