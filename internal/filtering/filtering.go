package filtering

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/carematch/community-recommender/internal/catalog"
	"github.com/carematch/community-recommender/internal/extract"
)

// Filter is one hard-filter step applied to the candidate communities.
type Filter interface {
	Name() string
	Apply(req *extract.ClientRequirements, communities []catalog.Community) ([]catalog.Community, Step, error)
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Config contains configuration settings consumed by the filters. The budget
// tolerance is a deployment contract, not a per-call option.
type Config struct {
	BudgetTolerance float64
}

// Defaults returns the hard-filter chain in its contractual order.
func Defaults(cfg Config) []Filter {
	tolerance := cfg.BudgetTolerance
	if tolerance <= 0 {
		tolerance = 1.0
	}
	return []Filter{
		&careLevelFilter{},
		&enhancedFilter{},
		&enrichedFilter{},
		&budgetFilter{tolerance: tolerance},
		&timelineFilter{},
	}
}

// Run executes the supplied filters sequentially, logging a step summary for
// each, and returns the surviving communities. An empty result is not an
// error: the pipeline reports it as no_matches.
func Run(logger *zap.Logger, req *extract.ClientRequirements, communities []catalog.Community, filters []Filter) ([]catalog.Community, error) {
	for _, f := range filters {
		next, step, err := f.Apply(req, communities)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name(), err)
		}

		logger.Info("filter step",
			zap.String("name", f.Name()),
			zap.Int("initial", step.Initial),
			zap.Int("dropped", step.Dropped),
			zap.Int("left", step.Left),
		)

		communities = next
		if len(communities) == 0 {
			break
		}
	}

	return communities, nil
}

func keep(communities []catalog.Community, pred func(catalog.Community) bool) ([]catalog.Community, Step) {
	initial := len(communities)
	kept := make([]catalog.Community, 0, initial)
	for _, c := range communities {
		if pred(c) {
			kept = append(kept, c)
		}
	}
	return kept, Step{Initial: initial, Dropped: initial - len(kept), Left: len(kept)}
}
