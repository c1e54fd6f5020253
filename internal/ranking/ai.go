package ranking

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	_ "embed"

	"go.uber.org/zap"

	"github.com/carematch/community-recommender/internal/ai"
	"github.com/carematch/community-recommender/internal/catalog"
	"github.com/carematch/community-recommender/internal/extract"
)

//go:embed prompts/availability.md
var availabilityPrompt string

//go:embed prompts/amenity.md
var amenityPrompt string

//go:embed prompts/holistic.md
var holisticPrompt string

// amenityNotesLimit truncates long free-text amenity descriptions to keep
// ranking prompts small.
const amenityNotesLimit = 150

// aiCaller is shared plumbing for the three AI rankers: it issues the call,
// normalizes whatever ranks come back to 1..K with average ties, and
// degrades to a neutral result instead of failing.
type aiCaller struct {
	client   ai.Client
	deadline time.Duration
	logger   *zap.Logger
}

func (a aiCaller) rank(ctx context.Context, dimension, prompt string, communities []catalog.Community) (*Result, error) {
	items, usage, err := a.client.Rank(ctx, prompt, ai.CallOptions{Temperature: 0, Deadline: a.deadline})
	if err != nil {
		a.logger.Warn("ai ranking degraded to neutral",
			zap.String("dimension", dimension),
			zap.Error(err),
		)
		res := NeutralResult(dimension, communities, NotRankedByAI)
		res.Degraded = true
		res.Usage = usage
		return res, nil
	}

	byID := make(map[int]ai.RankedItem, len(items))
	for _, item := range items {
		byID[item.CommunityID] = item
	}

	rows := make([]scored, 0, len(communities))
	for _, c := range communities {
		item, ok := byID[c.ID]
		if !ok || item.Rank <= 0 {
			rows = append(rows, scored{
				id:     c.ID,
				score:  math.Inf(1),
				reason: "Not ranked by AI (using default)",
			})
			continue
		}
		rows = append(rows, scored{id: c.ID, score: float64(item.Rank), reason: item.Reason})
	}

	ranks, reasons := assignAverageRanks(rows)
	return &Result{Dimension: dimension, Ranks: ranks, Reasons: reasons, Usage: usage}, nil
}

func renderPrompt(template string, vars map[string]string) string {
	for key, val := range vars {
		template = strings.ReplaceAll(template, "{{"+key+"}}", val)
	}
	return template
}

func marshalPayload(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}

// AvailabilityRanker matches nuanced timeline language against each
// community's waitlist reality.
type AvailabilityRanker struct {
	aiCaller
}

func NewAvailabilityRanker(client ai.Client, deadline time.Duration, logger *zap.Logger) *AvailabilityRanker {
	return &AvailabilityRanker{aiCaller{client: client, deadline: deadline, logger: logger}}
}

func (*AvailabilityRanker) Dimension() string { return DimAvailability }

func (r *AvailabilityRanker) Rank(ctx context.Context, req *extract.ClientRequirements, communities []catalog.Community) (*Result, error) {
	type entry struct {
		ID                int    `json:"id"`
		Waitlist          string `json:"waitlist"`
		AvailabilityScore int    `json:"availability_score"`
	}

	payload := make([]entry, 0, len(communities))
	for _, c := range communities {
		payload = append(payload, entry{ID: c.ID, Waitlist: c.WaitlistStatus, AvailabilityScore: c.AvailabilityScore})
	}

	prompt := renderPrompt(availabilityPrompt, map[string]string{
		"TIMELINE":    req.Timeline,
		"NOTES":       orNone(req.SpecialNotes),
		"CARE_LEVEL":  req.CareLevel,
		"COUNT":       strconv.Itoa(len(communities)),
		"COMMUNITIES": marshalPayload(payload),
	})

	return r.rank(ctx, DimAvailability, prompt, communities)
}

// AmenityRanker matches apartment, pet, couple and lifestyle preferences
// against each community's offering.
type AmenityRanker struct {
	aiCaller
}

func NewAmenityRanker(client ai.Client, deadline time.Duration, logger *zap.Logger) *AmenityRanker {
	return &AmenityRanker{aiCaller{client: client, deadline: deadline, logger: logger}}
}

func (*AmenityRanker) Dimension() string { return DimAmenity }

func (r *AmenityRanker) Rank(ctx context.Context, req *extract.ClientRequirements, communities []catalog.Community) (*Result, error) {
	type entry struct {
		ID            int     `json:"id"`
		ApartmentType string  `json:"apartment_type"`
		PetFee        float64 `json:"pet_fee"`
		Enhanced      bool    `json:"enhanced"`
		Enriched      bool    `json:"enriched"`
		Amenities     string  `json:"amenities,omitempty"`
	}

	payload := make([]entry, 0, len(communities))
	for _, c := range communities {
		payload = append(payload, entry{
			ID:            c.ID,
			ApartmentType: c.ApartmentType,
			PetFee:        c.Upfront.PetFee,
			Enhanced:      c.Enhanced,
			Enriched:      c.Enriched,
			Amenities:     amenityNotes(c),
		})
	}

	prompt := renderPrompt(amenityPrompt, map[string]string{
		"APARTMENT":   orNone(req.ApartmentPreference),
		"HAS_PET":     strconv.FormatBool(req.HasPet),
		"IS_COUPLE":   strconv.FormatBool(req.IsCouple),
		"ENHANCED":    strconv.FormatBool(req.NeedsEnhanced),
		"ENRICHED":    strconv.FormatBool(req.NeedsEnriched),
		"NOTES":       orNone(req.SpecialNotes),
		"COUNT":       strconv.Itoa(len(communities)),
		"COMMUNITIES": marshalPayload(payload),
	})

	return r.rank(ctx, DimAmenity, prompt, communities)
}

// HolisticRanker orders the shortlist considering the whole client profile
// plus the seven prior rank vectors, looking for synergies the per-dimension
// views miss.
type HolisticRanker struct {
	aiCaller

	// Prior holds the deterministic and first two AI results; the pipeline
	// sets it after those dimensions complete.
	Prior map[string]*Result
}

func NewHolisticRanker(client ai.Client, deadline time.Duration, logger *zap.Logger) *HolisticRanker {
	return &HolisticRanker{aiCaller: aiCaller{client: client, deadline: deadline, logger: logger}}
}

func (*HolisticRanker) Dimension() string { return DimHolistic }

func (r *HolisticRanker) Rank(ctx context.Context, req *extract.ClientRequirements, communities []catalog.Community) (*Result, error) {
	type entry struct {
		ID            int                `json:"id"`
		MonthlyFee    float64            `json:"monthly_fee"`
		DistanceMiles *float64           `json:"distance_miles"`
		Waitlist      string             `json:"waitlist"`
		PriorRanks    map[string]float64 `json:"prior_ranks"`
	}

	payload := make([]entry, 0, len(communities))
	for _, c := range communities {
		e := entry{
			ID:         c.ID,
			MonthlyFee: c.MonthlyFee,
			Waitlist:   c.WaitlistStatus,
			PriorRanks: make(map[string]float64, len(r.Prior)),
		}
		for dim, res := range r.Prior {
			if res == nil || res.Neutral {
				continue
			}
			if rank, ok := res.Ranks[c.ID]; ok {
				e.PriorRanks[dim] = rank
			}
		}
		if miles, ok := distanceMiles(r.Prior, c.ID); ok {
			e.DistanceMiles = &miles
		}
		payload = append(payload, e)
	}

	budget := "unspecified"
	if req.HasBudget() {
		budget = formatUSD(req.BudgetMonthly) + "/month"
	}
	client := fmt.Sprintf("%s, budget %s, %s timeline, couple=%t, pet=%t",
		req.CareLevel, budget, req.Timeline, req.IsCouple, req.HasPet)

	prompt := renderPrompt(holisticPrompt, map[string]string{
		"CLIENT":      client,
		"NOTES":       orNone(req.SpecialNotes),
		"COUNT":       strconv.Itoa(len(communities)),
		"COMMUNITIES": marshalPayload(payload),
	})

	return r.rank(ctx, DimHolistic, prompt, communities)
}

func amenityNotes(c catalog.Community) string {
	for _, col := range []string{"Amenities", "Msc Fees"} {
		if v, ok := c.Extra[col]; ok {
			runes := []rune(v)
			if len(runes) > amenityNotesLimit {
				return string(runes[:amenityNotesLimit]) + "..."
			}
			return v
		}
	}
	return ""
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}
