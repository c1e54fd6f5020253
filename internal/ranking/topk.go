package ranking

import (
	"sort"

	"github.com/carematch/community-recommender/internal/catalog"
)

// DefaultShortlistSize bounds how many communities receive AI ranking.
const DefaultShortlistSize = 10

// SelectShortlist computes the preliminary weighted aggregate over the
// deterministic rank vectors and keeps the best min(k, N) communities for
// AI ranking. Neutral dimensions contribute their neutral rank, so adding
// one never reorders the field.
func SelectShortlist(communities []catalog.Community, results map[string]*Result, weights Weights, k int) []catalog.Community {
	if k <= 0 {
		k = DefaultShortlistSize
	}
	if len(communities) <= k {
		return communities
	}

	type prelim struct {
		community catalog.Community
		score     float64
	}

	scoredRows := make([]prelim, 0, len(communities))
	for _, c := range communities {
		var sum float64
		for _, dim := range DeterministicDimensions {
			res, ok := results[dim]
			if !ok {
				continue
			}
			sum += weights.Of(dim) * res.Ranks[c.ID]
		}
		scoredRows = append(scoredRows, prelim{community: c, score: sum})
	}

	sort.SliceStable(scoredRows, func(a, b int) bool {
		if scoredRows[a].score != scoredRows[b].score {
			return scoredRows[a].score < scoredRows[b].score
		}
		return scoredRows[a].community.ID < scoredRows[b].community.ID
	})

	shortlist := make([]catalog.Community, k)
	for i := range shortlist {
		shortlist[i] = scoredRows[i].community
	}
	return shortlist
}
