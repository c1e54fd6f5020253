package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	_ "embed"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/carematch/community-recommender/internal/ai"
	"github.com/carematch/community-recommender/internal/catalog"
	"github.com/carematch/community-recommender/internal/geo"
)

//go:embed prompt.md
var promptTemplate string

var extractZipRe = regexp.MustCompile(`^\d{5}$`)

// Input is one consultation: either an audio blob with its MIME type or a
// plain transcript.
type Input struct {
	Text  string
	Audio []byte
	MIME  string
}

func (in Input) IsAudio() bool { return len(in.Audio) > 0 }

// Config tunes extraction. Audio always runs at temperature 0; plain text
// may run slightly warmer when configured, at the cost of replay
// determinism.
type Config struct {
	TextTemperature float32
}

// Extractor turns one consultation into a ClientRequirements record using a
// single schema-constrained LLM call.
type Extractor struct {
	client   ai.Client
	resolver *geo.Resolver
	config   Config
	logger   *zap.Logger
}

func New(client ai.Client, resolver *geo.Resolver, config Config, logger *zap.Logger) *Extractor {
	return &Extractor{client: client, resolver: resolver, config: config, logger: logger}
}

// Extract issues exactly one extraction call. It returns ErrExtraction when
// the care level cannot be established and passes ai.ErrUnavailable through
// untouched so the pipeline can distinguish the two failure modes.
func (e *Extractor) Extract(ctx context.Context, in Input) (*ClientRequirements, ai.Usage, error) {
	media := ai.Media{Text: in.Text, Audio: in.Audio, MIME: in.MIME}

	opts := ai.CallOptions{Temperature: 0}
	if !in.IsAudio() {
		opts.Temperature = e.config.TextTemperature
	}

	raw, usage, err := e.client.ExtractStructured(ctx, media, promptTemplate, opts)
	if err != nil {
		return nil, usage, err
	}

	req, err := decodeRequirements(raw)
	if err != nil {
		return nil, usage, err
	}

	if req.LocationPreference != "" && !extractZipRe.MatchString(req.LocationPreference) && e.resolver != nil {
		req.ResolvedZIP = e.resolver.Resolve(req.LocationPreference)
		if req.ResolvedZIP == "" {
			e.logger.Warn("location preference could not be resolved",
				zap.String("location_preference", req.LocationPreference),
			)
		}
	} else if req.LocationPreference != "" {
		req.ResolvedZIP = req.LocationPreference
	}

	e.logger.Info("requirements extracted",
		zap.String("care_level", req.CareLevel),
		zap.String("timeline", req.Timeline),
		zap.Float64("budget_monthly", req.BudgetMonthly),
		zap.String("resolved_zip", req.ResolvedZIP),
		zap.Bool("is_couple", req.IsCouple),
	)

	return req, usage, nil
}

// decodeRequirements maps the model's JSON onto ClientRequirements with weak
// typing so numbers-as-strings and similar looseness survive. Lists are
// unwrapped to their first element, a shape some models produce.
func decodeRequirements(raw json.RawMessage) (*ClientRequirements, error) {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}

	if list, ok := payload.([]any); ok {
		if len(list) == 0 {
			return nil, fmt.Errorf("%w: empty extraction response", ErrExtraction)
		}
		payload = list[0]
	}

	fields, ok := payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: extraction response is not an object", ErrExtraction)
	}

	// Nulls mean "not mentioned"; dropping them lets zero values apply.
	for key, val := range fields {
		if val == nil {
			delete(fields, key)
		}
	}

	var req ClientRequirements
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &req,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(fields); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}

	req.CareLevel = strings.TrimSpace(req.CareLevel)
	if !catalog.ValidCareLevel(req.CareLevel) {
		return nil, fmt.Errorf("%w: care level %q is missing or unknown", ErrExtraction, req.CareLevel)
	}

	req.Timeline = strings.ToLower(strings.TrimSpace(req.Timeline))
	if !ValidTimeline(req.Timeline) {
		req.Timeline = TimelineFlexible
	}

	if req.BudgetMonthly < 0 {
		req.BudgetMonthly = 0
	}

	if req.ApartmentPreference != "" {
		req.ApartmentPreference = catalog.NormalizeApartment(req.ApartmentPreference)
	}
	req.LocationPreference = strings.TrimSpace(req.LocationPreference)

	return &req, nil
}
