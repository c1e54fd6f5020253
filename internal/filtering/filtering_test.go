package filtering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/carematch/community-recommender/internal/catalog"
	"github.com/carematch/community-recommender/internal/extract"
)

func community(id int, level string, fee float64, availability int) catalog.Community {
	return catalog.Community{
		ID:                id,
		CareLevel:         level,
		MonthlyFee:        fee,
		AvailabilityScore: availability,
	}
}

func runFilters(t *testing.T, req *extract.ClientRequirements, communities []catalog.Community) []catalog.Community {
	t.Helper()
	out, err := Run(zap.NewNop(), req, communities, Defaults(Config{}))
	require.NoError(t, err)
	return out
}

func TestCareLevelFilter(t *testing.T) {
	req := &extract.ClientRequirements{CareLevel: catalog.CareMemoryCare, Timeline: extract.TimelineFlexible}
	out := runFilters(t, req, []catalog.Community{
		community(1, catalog.CareMemoryCare, 6000, 0),
		community(2, catalog.CareAssistedLiving, 4000, 0),
	})

	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].ID)
}

func TestBudgetBoundary(t *testing.T) {
	// The community exactly at budget stays; one dollar over is out.
	req := &extract.ClientRequirements{
		CareLevel:     catalog.CareAssistedLiving,
		BudgetMonthly: 5000,
		Timeline:      extract.TimelineFlexible,
	}
	out := runFilters(t, req, []catalog.Community{
		community(1, catalog.CareAssistedLiving, 5000, 0),
		community(2, catalog.CareAssistedLiving, 5001, 0),
	})

	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].ID)
}

func TestBudgetToleranceIsConfigurable(t *testing.T) {
	req := &extract.ClientRequirements{
		CareLevel:     catalog.CareAssistedLiving,
		BudgetMonthly: 5000,
		Timeline:      extract.TimelineFlexible,
	}
	out, err := Run(zap.NewNop(), req, []catalog.Community{
		community(1, catalog.CareAssistedLiving, 5400, 0),
	}, Defaults(Config{BudgetTolerance: 1.1}))
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestMissingBudgetSkipsFilter(t *testing.T) {
	req := &extract.ClientRequirements{CareLevel: catalog.CareAssistedLiving, Timeline: extract.TimelineFlexible}
	out := runFilters(t, req, []catalog.Community{
		community(1, catalog.CareAssistedLiving, 12000, 0),
	})
	assert.Len(t, out, 1)
}

func TestTimelineBoundary(t *testing.T) {
	req := &extract.ClientRequirements{
		CareLevel: catalog.CareAssistedLiving,
		Timeline:  extract.TimelineNearTerm,
	}
	out := runFilters(t, req, []catalog.Community{
		community(1, catalog.CareAssistedLiving, 4000, 60),
		community(2, catalog.CareAssistedLiving, 4000, 61),
	})

	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].ID)
}

func TestImmediateTimeline(t *testing.T) {
	req := &extract.ClientRequirements{
		CareLevel: catalog.CareAssistedLiving,
		Timeline:  extract.TimelineImmediate,
	}
	out := runFilters(t, req, []catalog.Community{
		community(1, catalog.CareAssistedLiving, 4000, 0),
		community(2, catalog.CareAssistedLiving, 4000, 20),
		community(3, catalog.CareAssistedLiving, 4000, 21),
	})

	assert.Len(t, out, 2)
}

func TestEnhancedEnrichedFilters(t *testing.T) {
	enhanced := community(1, catalog.CareAssistedLiving, 4000, 0)
	enhanced.Enhanced = true
	plain := community(2, catalog.CareAssistedLiving, 4000, 0)

	req := &extract.ClientRequirements{
		CareLevel:     catalog.CareAssistedLiving,
		Timeline:      extract.TimelineFlexible,
		NeedsEnhanced: true,
	}
	out := runFilters(t, req, []catalog.Community{enhanced, plain})
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].ID)

	req.NeedsEnhanced = false
	req.NeedsEnriched = true
	out = runFilters(t, req, []catalog.Community{enhanced, plain})
	assert.Empty(t, out)
}

func TestEmptyResultIsNotAnError(t *testing.T) {
	req := &extract.ClientRequirements{CareLevel: catalog.CareMemoryCare, Timeline: extract.TimelineFlexible}
	out := runFilters(t, req, []catalog.Community{
		community(1, catalog.CareAssistedLiving, 4000, 0),
	})
	assert.Empty(t, out)
}

func TestUnsetCareLevelFails(t *testing.T) {
	req := &extract.ClientRequirements{Timeline: extract.TimelineFlexible}
	_, err := Run(zap.NewNop(), req, []catalog.Community{
		community(1, catalog.CareAssistedLiving, 4000, 0),
	}, Defaults(Config{}))
	assert.Error(t, err)
}
