package extract

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/carematch/community-recommender/internal/ai"
	"github.com/carematch/community-recommender/internal/geo"
)

type stubClient struct {
	response    string
	err         error
	lastSchema  string
	lastMedia   ai.Media
	lastOptions ai.CallOptions
}

func (s *stubClient) ExtractStructured(_ context.Context, media ai.Media, schema string, opts ai.CallOptions) (json.RawMessage, ai.Usage, error) {
	s.lastSchema = schema
	s.lastMedia = media
	s.lastOptions = opts
	if s.err != nil {
		return nil, ai.Usage{}, s.err
	}
	return json.RawMessage(s.response), ai.Usage{InputTokens: 10, OutputTokens: 5}, nil
}

func (s *stubClient) Rank(context.Context, string, ai.CallOptions) ([]ai.RankedItem, ai.Usage, error) {
	return nil, ai.Usage{}, nil
}

func testExtractor(stub *stubClient) *Extractor {
	resolver := geo.NewResolver(map[string]string{"west side of rochester": "14606"})
	return New(stub, resolver, Config{}, zap.NewNop())
}

func TestExtractFullRecord(t *testing.T) {
	stub := &stubClient{response: `{
		"client_name": "Margaret",
		"care_level": "Assisted Living",
		"budget_monthly": 5500,
		"timeline": "immediate",
		"location_preference": "14526",
		"needs_enhanced": true,
		"needs_enriched": false,
		"is_couple": false,
		"has_pet": true,
		"apartment_preference": "1 bedroom",
		"special_notes": "small cat"
	}`}

	req, usage, err := testExtractor(stub).Extract(context.Background(), Input{Text: "..."})
	require.NoError(t, err)

	assert.Equal(t, "Margaret", req.ClientName)
	assert.Equal(t, "Assisted Living", req.CareLevel)
	assert.Equal(t, 5500.0, req.BudgetMonthly)
	assert.Equal(t, TimelineImmediate, req.Timeline)
	assert.Equal(t, "14526", req.ResolvedZIP)
	assert.True(t, req.NeedsEnhanced)
	assert.True(t, req.HasPet)
	assert.Equal(t, "1BR", req.ApartmentPreference)
	assert.Equal(t, 10, usage.InputTokens)
}

func TestExtractResolvesLocalityPhrase(t *testing.T) {
	stub := &stubClient{response: `{"care_level": "Memory Care", "location_preference": "West side of Rochester"}`}

	req, _, err := testExtractor(stub).Extract(context.Background(), Input{Text: "..."})
	require.NoError(t, err)
	assert.Equal(t, "14606", req.ResolvedZIP)
	assert.Equal(t, "West side of Rochester", req.LocationPreference)
}

func TestExtractMissingCareLevelFails(t *testing.T) {
	for _, response := range []string{
		`{"budget_monthly": 4000}`,
		`{"care_level": "Nursing Home"}`,
		`{"care_level": null}`,
	} {
		stub := &stubClient{response: response}
		_, _, err := testExtractor(stub).Extract(context.Background(), Input{Text: "..."})
		assert.ErrorIs(t, err, ErrExtraction, "response %s", response)
	}
}

func TestExtractUnwrapsListResponses(t *testing.T) {
	stub := &stubClient{response: `[{"care_level": "Independent Living"}]`}

	req, _, err := testExtractor(stub).Extract(context.Background(), Input{Text: "..."})
	require.NoError(t, err)
	assert.Equal(t, "Independent Living", req.CareLevel)
}

func TestExtractDefaultsTimelineToFlexible(t *testing.T) {
	stub := &stubClient{response: `{"care_level": "Assisted Living", "timeline": "someday"}`}

	req, _, err := testExtractor(stub).Extract(context.Background(), Input{Text: "..."})
	require.NoError(t, err)
	assert.Equal(t, TimelineFlexible, req.Timeline)
	assert.False(t, req.HasBudget())
}

func TestExtractPassesUnavailableThrough(t *testing.T) {
	stub := &stubClient{err: ai.ErrUnavailable}

	_, _, err := testExtractor(stub).Extract(context.Background(), Input{Text: "..."})
	assert.ErrorIs(t, err, ai.ErrUnavailable)
}

func TestExtractTemperatureByMedia(t *testing.T) {
	stub := &stubClient{response: `{"care_level": "Assisted Living"}`}
	resolver := geo.NewResolver(nil)
	e := New(stub, resolver, Config{TextTemperature: 0.1}, zap.NewNop())

	_, _, err := e.Extract(context.Background(), Input{Text: "..."})
	require.NoError(t, err)
	assert.InDelta(t, 0.1, float64(stub.lastOptions.Temperature), 1e-6)

	_, _, err = e.Extract(context.Background(), Input{Audio: []byte{1}, MIME: "audio/mpeg"})
	require.NoError(t, err)
	assert.Zero(t, stub.lastOptions.Temperature)
}

func TestExtractWeaklyTypedBudget(t *testing.T) {
	stub := &stubClient{response: `{"care_level": "Assisted Living", "budget_monthly": "6000"}`}

	req, _, err := testExtractor(stub).Extract(context.Background(), Input{Text: "..."})
	require.NoError(t, err)
	assert.Equal(t, 6000.0, req.BudgetMonthly)
}
