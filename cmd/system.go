package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/carematch/community-recommender/internal/ai"
	"github.com/carematch/community-recommender/internal/ai/gemini"
	"github.com/carematch/community-recommender/internal/catalog"
	"github.com/carematch/community-recommender/internal/crm"
	"github.com/carematch/community-recommender/internal/extract"
	"github.com/carematch/community-recommender/internal/geo"
	"github.com/carematch/community-recommender/internal/pipeline"
	"github.com/carematch/community-recommender/internal/ranking"
	"github.com/carematch/community-recommender/internal/secrets"
)

// system wires the full recommendation core from configuration. It is
// shared by the serve and consult commands.
type system struct {
	store         *catalog.Store
	pipeline      *pipeline.Pipeline
	crm           crm.Writer
	llmConfigured bool
}

func buildSystem(ctx context.Context, config *Config, logger *zap.Logger) (*system, error) {
	if config.Catalog == nil || config.Catalog.File == "" {
		return nil, errors.New("catalog.file is required in the configuration")
	}

	store, err := catalog.Load(config.Catalog.File, logger)
	if err != nil {
		return nil, err
	}

	var resolver *geo.Resolver
	if config.Locations != nil && config.Locations.File != "" {
		resolver, err = geo.LoadResolver(config.Locations.File)
		if err != nil {
			return nil, err
		}
	} else {
		resolver = geo.NewResolver(nil)
		logger.Warn("no locations file configured; only explicit ZIP codes will resolve")
	}

	geocoderCfg := geo.GeocoderConfig{}
	if config.Geocoder != nil {
		geocoderCfg = geo.GeocoderConfig{
			BaseURL:           config.Geocoder.BaseURL,
			UserAgent:         config.Geocoder.UserAgent,
			CacheSize:         config.Geocoder.CacheSize,
			RequestsPerSecond: config.Geocoder.RequestsPerSecond,
		}
	}
	geocoder, err := geo.NewGeocoder(geocoderCfg, logger)
	if err != nil {
		return nil, err
	}

	aiClient, llmConfigured, err := buildAIClient(ctx, config, logger)
	if err != nil {
		return nil, err
	}

	extractCfg := extract.Config{}
	if config.AI != nil {
		extractCfg.TextTemperature = config.AI.TextTemperature
	}
	extractor := extract.New(aiClient, resolver, extractCfg, logger)

	pipelineCfg := pipeline.Config{}
	if config.Pipeline != nil {
		pipelineCfg = pipeline.Config{
			Weights:         ranking.DefaultWeights().Merge(config.Pipeline.Weights),
			BudgetTolerance: config.Pipeline.BudgetTolerance,
			ShortlistSize:   config.Pipeline.ShortlistSize,
			CallDeadline:    config.Pipeline.CallTimeout,
			TotalBudget:     config.Pipeline.TotalBudget,
		}
	}
	if config.Pricing != nil {
		pipelineCfg.Pricing = *config.Pricing
	}

	sys := &system{
		store:         store,
		pipeline:      pipeline.New(store, geocoder, extractor, aiClient, pipelineCfg, logger),
		llmConfigured: llmConfigured,
	}

	if config.CRM != nil && config.CRM.File != "" {
		sys.crm = crm.NewWorkbookWriter(config.CRM.File, logger)
	}

	return sys, nil
}

func buildAIClient(ctx context.Context, config *Config, logger *zap.Logger) (ai.Client, bool, error) {
	if config.AI == nil || config.AI.Gemini == nil {
		logger.Warn("ai provider is not configured; consultations will be unavailable")
		return ai.Unconfigured{}, false, nil
	}

	gcfg := config.AI.Gemini
	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: gcfg.APIKey,
		Env:   "GEMINI_API_KEY",
		File:  gcfg.APIKeyFile,
	})
	if err != nil {
		logger.Warn("gemini api key not found; consultations will be unavailable", zap.Error(err))
		return ai.Unconfigured{}, false, nil
	}

	client, err := gemini.New(ctx, apiKey, gcfg.Model, logger)
	if err != nil {
		return nil, false, fmt.Errorf("initialize gemini client: %w", err)
	}

	logger.Info("gemini client initialized", zap.String("model", client.Model()))
	return client, true, nil
}
