package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/carematch/community-recommender/internal/ai"
	"github.com/carematch/community-recommender/internal/catalog"
	"github.com/carematch/community-recommender/internal/extract"
	"github.com/carematch/community-recommender/internal/filtering"
	"github.com/carematch/community-recommender/internal/ranking"
)

const (
	defaultCallDeadline = 30 * time.Second
	defaultTotalBudget  = 180 * time.Second
)

// Config tunes one pipeline instance. All values are deployment contracts,
// not per-call options.
type Config struct {
	Weights         ranking.Weights
	BudgetTolerance float64
	ShortlistSize   int
	CallDeadline    time.Duration
	TotalBudget     time.Duration
	Pricing         Pricing
}

// Options carries the per-consultation knobs collaborators may pass.
type Options struct {
	// Weights overrides only the named dimensions for this consultation.
	Weights map[string]float64
}

// Pipeline orchestrates one consultation end to end: extraction, hard
// filtering, deterministic ranking, shortlisting, AI ranking, aggregation.
// It is safe for concurrent use; consultations share only the read-only
// catalog snapshot and the memoized geocoder.
type Pipeline struct {
	store     *catalog.Store
	geocoder  ranking.DistanceSource
	extractor *extract.Extractor
	aiClient  ai.Client
	config    Config
	logger    *zap.Logger
}

func New(store *catalog.Store, geocoder ranking.DistanceSource, extractor *extract.Extractor, aiClient ai.Client, config Config, logger *zap.Logger) *Pipeline {
	if config.Weights == nil {
		config.Weights = ranking.DefaultWeights()
	}
	if config.ShortlistSize <= 0 {
		config.ShortlistSize = ranking.DefaultShortlistSize
	}
	if config.CallDeadline <= 0 {
		config.CallDeadline = defaultCallDeadline
	}
	if config.TotalBudget <= 0 {
		config.TotalBudget = defaultTotalBudget
	}
	if config.Pricing == (Pricing{}) {
		config.Pricing = DefaultPricing()
	}
	return &Pipeline{
		store:     store,
		geocoder:  geocoder,
		extractor: extractor,
		aiClient:  aiClient,
		config:    config,
		logger:    logger,
	}
}

// Process runs one consultation. It issues exactly one extraction call and
// at most three ranking calls. Extraction failures abort; everything after
// extraction degrades to documented neutral behavior instead of failing.
func (p *Pipeline) Process(ctx context.Context, in extract.Input, opts Options) (*ConsultationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.TotalBudget)
	defer cancel()

	consultationID := uuid.NewString()
	logger := p.logger.With(zap.String("consultation_id", consultationID))

	weights := p.config.Weights
	if len(opts.Weights) > 0 {
		weights = weights.Merge(opts.Weights)
	}

	metrics := &Metrics{Timings: map[string]float64{}}
	start := time.Now()

	setState := func(s State) {
		logger.Info("consultation state", zap.String("state", string(s)))
	}
	setState(StateCreated)

	// Extraction.
	setState(StateExtracting)
	phase := time.Now()
	req, usage, err := p.extractor.Extract(ctx, in)
	metrics.Timings["extraction"] = seconds(time.Since(phase))
	metrics.APICalls++
	metrics.TokenCounts.ExtractionInput = usage.InputTokens
	metrics.TokenCounts.ExtractionOutput = usage.OutputTokens
	if err != nil {
		setState(StateFailed)
		logger.Error("extraction failed", zap.Error(err))
		return nil, err
	}

	result := &ConsultationResult{
		ConsultationID:     consultationID,
		ClientInfo:         req,
		Recommendations:    []ranking.Recommendation{},
		PerformanceMetrics: metrics,
	}

	// Hard filtering over an immutable catalog snapshot.
	setState(StateFiltering)
	phase = time.Now()
	snapshot := p.store.Snapshot()
	filtered, err := filtering.Run(logger, req, snapshot.All(), filtering.Defaults(filtering.Config{
		BudgetTolerance: p.config.BudgetTolerance,
	}))
	metrics.Timings["filtering"] = seconds(time.Since(phase))
	if err != nil {
		setState(StateFailed)
		return nil, err
	}

	if len(filtered) == 0 {
		logger.Warn("no communities passed hard filters")
		result.NoMatches = true
		p.finish(metrics, in, start, setState)
		return result, nil
	}

	// Deterministic rankers, in parallel over the full filtered set.
	setState(StateRankingDet)
	phase = time.Now()
	results := p.runDeterministic(ctx, req, filtered, logger)
	metrics.Timings["ranking_deterministic"] = seconds(time.Since(phase))

	setState(StateShortlisted)
	shortlist := ranking.SelectShortlist(filtered, results, weights, p.config.ShortlistSize)
	logger.Info("shortlist selected",
		zap.Int("candidates", len(filtered)),
		zap.Int("shortlisted", len(shortlist)),
	)

	// AI rankers over the shortlist. Availability and amenity run
	// concurrently; holistic follows because it consumes their ranks.
	setState(StateRankingAI)
	phase = time.Now()
	p.runAI(ctx, req, shortlist, results, metrics, logger)
	metrics.Timings["ranking_ai"] = seconds(time.Since(phase))

	// Weighted Borda aggregation.
	setState(StateAggregating)
	phase = time.Now()
	result.Recommendations = ranking.Aggregate(shortlist, results, weights, ranking.DefaultRecommendationCount)
	metrics.Timings["aggregation"] = seconds(time.Since(phase))

	p.finish(metrics, in, start, setState)

	logger.Info("consultation complete",
		zap.Int("recommendations", len(result.Recommendations)),
		zap.Float64("e2e_seconds", metrics.Timings["e2e_total"]),
		zap.Int("api_calls", metrics.APICalls),
		zap.Strings("ai_ranker_degraded", metrics.AIRankerDegraded),
	)

	return result, nil
}

func (p *Pipeline) finish(metrics *Metrics, in extract.Input, start time.Time, setState func(State)) {
	metrics.Timings["e2e_total"] = seconds(time.Since(start))
	metrics.finalize(p.config.Pricing, in.IsAudio())
	setState(StateDone)
}

// runDeterministic fans the five rule-based rankers out over a worker group.
// A ranker error is replaced by a neutral vector so one bad dimension never
// sinks the consultation.
func (p *Pipeline) runDeterministic(ctx context.Context, req *extract.ClientRequirements, communities []catalog.Community, logger *zap.Logger) map[string]*ranking.Result {
	rankers := []ranking.Ranker{
		ranking.BusinessRanker{},
		ranking.CostRanker{},
		ranking.DistanceRanker{Geocoder: p.geocoder},
		ranking.BudgetEfficiencyRanker{},
		ranking.CoupleRanker{},
	}

	results := make(map[string]*ranking.Result, len(ranking.AllDimensions))
	var mu sync.Mutex
	var g errgroup.Group

	for _, r := range rankers {
		g.Go(func() error {
			res, err := r.Rank(ctx, req, communities)
			if err != nil {
				logger.Warn("deterministic ranker failed, using neutral ranks",
					zap.String("dimension", r.Dimension()),
					zap.Error(err),
				)
				res = ranking.NeutralResult(r.Dimension(), communities, "Ranking unavailable")
			}
			mu.Lock()
			results[res.Dimension] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// runAI executes the three LLM rankers and folds their usage and degradation
// status into the metrics. Failures inside a ranker already degrade to
// neutral, so the group never cancels a peer.
func (p *Pipeline) runAI(ctx context.Context, req *extract.ClientRequirements, shortlist []catalog.Community, results map[string]*ranking.Result, metrics *Metrics, logger *zap.Logger) {
	deadline := p.config.CallDeadline

	first := []ranking.Ranker{
		ranking.NewAvailabilityRanker(p.aiClient, deadline, logger),
		ranking.NewAmenityRanker(p.aiClient, deadline, logger),
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, r := range first {
		g.Go(func() error {
			res, _ := r.Rank(ctx, req, shortlist)
			mu.Lock()
			results[res.Dimension] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	holistic := ranking.NewHolisticRanker(p.aiClient, deadline, logger)
	holistic.Prior = results
	res, _ := holistic.Rank(ctx, req, shortlist)
	results[res.Dimension] = res

	for _, dim := range ranking.AIDimensions {
		r, ok := results[dim]
		if !ok {
			continue
		}
		metrics.APICalls++
		metrics.TokenCounts.RankingInput += r.Usage.InputTokens
		metrics.TokenCounts.RankingOutput += r.Usage.OutputTokens
		if r.Degraded {
			metrics.AIRankerDegraded = append(metrics.AIRankerDegraded, dim)
		}
	}
	sort.Strings(metrics.AIRankerDegraded)
}

func seconds(d time.Duration) float64 {
	return float64(d) / float64(time.Second)
}
