package filtering

import (
	"fmt"

	"github.com/carematch/community-recommender/internal/catalog"
	"github.com/carematch/community-recommender/internal/extract"
)

// Availability ceilings per timeline; flexible accepts everything.
const (
	immediateMaxAvailability = 20
	nearTermMaxAvailability  = 60
)

type careLevelFilter struct{}

func (f *careLevelFilter) Name() string { return "care_level" }

func (f *careLevelFilter) Apply(req *extract.ClientRequirements, communities []catalog.Community) ([]catalog.Community, Step, error) {
	if !catalog.ValidCareLevel(req.CareLevel) {
		return nil, Step{}, fmt.Errorf("client care level %q is not set", req.CareLevel)
	}
	kept, step := keep(communities, func(c catalog.Community) bool {
		return c.CareLevel == req.CareLevel
	})
	return kept, step, nil
}

type enhancedFilter struct{}

func (f *enhancedFilter) Name() string { return "enhanced" }

func (f *enhancedFilter) Apply(req *extract.ClientRequirements, communities []catalog.Community) ([]catalog.Community, Step, error) {
	if !req.NeedsEnhanced {
		return communities, Step{Initial: len(communities), Left: len(communities)}, nil
	}
	kept, step := keep(communities, func(c catalog.Community) bool { return c.Enhanced })
	return kept, step, nil
}

type enrichedFilter struct{}

func (f *enrichedFilter) Name() string { return "enriched" }

func (f *enrichedFilter) Apply(req *extract.ClientRequirements, communities []catalog.Community) ([]catalog.Community, Step, error) {
	if !req.NeedsEnriched {
		return communities, Step{Initial: len(communities), Left: len(communities)}, nil
	}
	kept, step := keep(communities, func(c catalog.Community) bool { return c.Enriched })
	return kept, step, nil
}

// budgetFilter checks the monthly fee only; upfront costs are a ranking
// concern, not an eliminating one.
type budgetFilter struct {
	tolerance float64
}

func (f *budgetFilter) Name() string { return "budget" }

func (f *budgetFilter) Apply(req *extract.ClientRequirements, communities []catalog.Community) ([]catalog.Community, Step, error) {
	if !req.HasBudget() {
		return communities, Step{Initial: len(communities), Left: len(communities)}, nil
	}
	limit := req.BudgetMonthly * f.tolerance
	kept, step := keep(communities, func(c catalog.Community) bool {
		return c.MonthlyFee <= limit
	})
	return kept, step, nil
}

type timelineFilter struct{}

func (f *timelineFilter) Name() string { return "timeline" }

func (f *timelineFilter) Apply(req *extract.ClientRequirements, communities []catalog.Community) ([]catalog.Community, Step, error) {
	var ceiling int
	switch req.Timeline {
	case extract.TimelineImmediate:
		ceiling = immediateMaxAvailability
	case extract.TimelineNearTerm:
		ceiling = nearTermMaxAvailability
	default:
		return communities, Step{Initial: len(communities), Left: len(communities)}, nil
	}

	kept, step := keep(communities, func(c catalog.Community) bool {
		return c.AvailabilityScore <= ceiling
	})
	return kept, step, nil
}
