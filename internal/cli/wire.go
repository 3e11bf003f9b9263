package cli

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/connector"
	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/extract"
	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/gps"
	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/ledger"
	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/llm"
	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/projection"
	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/ratelimit"
)

// buildRouter assembles the source connectors in priority order behind the
// shared rate-limit registry, each wrapped with a response cache
func buildRouter(cfg *model.Config, logger *slog.Logger) (*connector.Router, error) {
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("no sources configured")
	}

	limits := ratelimit.NewRegistry(ratelimit.DefaultSourceConfig())
	sources := append([]model.SourceConfig(nil), cfg.Sources...)
	sort.SliceStable(sources, func(i, j int) bool { return sources[i].Priority < sources[j].Priority })

	var connectors []connector.Connector
	for _, src := range sources {
		limits.Configure(src.Name, ratelimit.FromModel(src))

		var c connector.Connector
		switch src.Kind {
		case "api":
			c = connector.NewAPIConnector(src.Name, src.BaseURL, limits, cfg.HTTP.Timeout(), cfg.HTTP.UserAgent)
		case "scrape":
			c = connector.NewScrapeConnector(src.Name, src.BaseURL, limits, cfg.HTTP.Timeout(), cfg.HTTP.UserAgent)
		default:
			return nil, fmt.Errorf("source %s: unknown kind %q (supported: api, scrape)", src.Name, src.Kind)
		}
		if src.CacheTTLSeconds > 0 {
			c = connector.NewCached(c, time.Duration(src.CacheTTLSeconds)*time.Second)
		}
		connectors = append(connectors, c)
	}

	router := connector.NewRouter(connectors, 3, 5*time.Second, logger)
	for _, src := range sources {
		if src.RetryCeiling > 0 || src.BackoffBaseSeconds > 0 {
			router.SetRetryPolicy(src.Name, connector.RetryPolicy{
				Ceiling:     src.RetryCeiling,
				BackoffBase: time.Duration(src.BackoffBaseSeconds) * time.Second,
			})
		}
	}
	return router, nil
}

// openLedger opens the append-only fact store
func openLedger(cfg *model.Config, logger *slog.Logger) (*ledger.Ledger, error) {
	return ledger.Open(ledger.Config{
		Path:       cfg.Ledger.Path,
		SyncWrites: cfg.Ledger.SyncWrites,
		Logger:     logger,
	})
}

// openProjection opens the disposable read model
func openProjection(cfg *model.Config) (*projection.Projection, error) {
	return projection.Open(cfg.Projection.Path)
}

// buildEvaluator picks the configured LLM evaluator, falling back to the
// structural heuristic when no provider is set
func buildEvaluator(cfg *model.Config, logger *slog.Logger) (gps.Evaluator, error) {
	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return nil, err
	}
	if provider == nil {
		logger.Debug("no LLM provider configured, using heuristic evaluator")
		return gps.NewHeuristicEvaluator(), nil
	}
	logger.Debug("using LLM evaluator", "provider", provider.Name())
	return provider, nil
}

// buildExtractor picks the configured LLM extractor, falling back to the
// rule-based extractor when no provider is set
func buildExtractor(cfg *model.Config, logger *slog.Logger) (extract.Extractor, error) {
	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return nil, err
	}
	if provider == nil {
		logger.Debug("no LLM provider configured, using rule-based extractor")
		return extract.NewRuleBased(), nil
	}
	logger.Debug("using LLM extractor", "provider", provider.Name())
	return provider, nil
}
