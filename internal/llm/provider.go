// Package llm provides LLM-backed implementations of the evaluator and
// extractor capabilities. When no provider is configured the rest of the
// system falls back to the rule-based extractor and whatever evaluator the
// caller wires in; nothing here is on the critical path.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
)

// Provider is an LLM backend able to act as both evaluator and extractor
type Provider interface {
	// Name returns the provider name
	Name() string

	// Evaluate scores a fact version against the five-pillar proof standard
	Evaluate(ctx context.Context, fact *model.Fact) (*model.GPSEvaluation, error)

	// Extract derives candidate facts from a fetched record
	Extract(ctx context.Context, detail *model.RecordDetail) ([]model.CandidateFact, error)

	// IsAvailable checks if the provider is properly configured and reachable
	IsAvailable(ctx context.Context) bool
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for the remote API
	APIKey string

	// BaseURL for OpenAI-compatible endpoints
	BaseURL string

	// Timeout for API requests, in seconds
	Timeout int

	// MaxTokens for response generation
	MaxTokens int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Model:     "",
		Timeout:   60,
		MaxTokens: 2000,
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(modelConfig model.LLMConfig) Config {
	return Config{
		Provider:  modelConfig.Provider,
		Model:     modelConfig.Model,
		APIKey:    modelConfig.APIKey,
		BaseURL:   modelConfig.BaseURL,
		Timeout:   modelConfig.TimeoutSeconds,
		MaxTokens: modelConfig.MaxTokens,
	}
}

// NewProvider creates a new LLM provider based on configuration. A nil
// provider with nil error means LLM support is disabled.
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)

	case "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai)", config.Provider)
	}
}

// buildEvaluationPrompt constructs the evaluation prompt. The model must
// answer with a single JSON object and may only reference the fact's own
// citations as searched sources.
func buildEvaluationPrompt(fact *model.Fact) string {
	var sb strings.Builder
	sb.WriteString(`Evaluate the following genealogical fact against the Genealogical Proof Standard.

Score each pillar as SATISFIED, PARTIAL, or FAILED:
1. exhaustive_search - was the search reasonably exhaustive?
2. complete_citation - are the citations complete and accurate?
3. analysis_correlation - is the evidence analyzed and correlated?
4. conflict_resolution - are conflicting pieces of evidence resolved?
5. written_conclusion - does the statement support a soundly reasoned conclusion?

Rules:
- Judge only the evidence listed below. Do not assume unlisted sources exist.
- List any contradicting evidence as a conflict with resolved true/false.
- confidence is your overall belief in the fact, between 0.0 and 1.0.

Answer with ONLY a JSON object of this shape:
{"pillars": {"exhaustive_search": "SATISFIED", "complete_citation": "PARTIAL", "analysis_correlation": "SATISFIED", "conflict_resolution": "SATISFIED", "written_conclusion": "SATISFIED"},
 "sources_missing": ["..."], "conflicts": [{"description": "...", "resolved": false, "resolution": ""}],
 "reasoning": "...", "proof_summary": "...", "confidence": 0.0}

Fact:
`)
	fmt.Fprintf(&sb, "- Subject: %s\n- Statement: %s\n- Current confidence: %.2f\n", fact.Subject, fact.Statement, fact.ConfidenceScore)

	sb.WriteString("\nCitations:\n")
	if len(fact.Sources) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, c := range fact.Sources {
		fmt.Fprintf(&sb, "- %s record %s (%s evidence)\n", c.Repository, c.RecordID, c.EvidenceType)
	}
	for _, a := range fact.Annotations {
		if name, ok := strings.CutPrefix(a, "searched:"); ok {
			fmt.Fprintf(&sb, "\nSource searched during crawl: %s", name)
		}
	}
	return sb.String()
}

// buildExtractionPrompt constructs the extraction prompt
func buildExtractionPrompt(detail *model.RecordDetail) string {
	var sb strings.Builder
	sb.WriteString(`Extract genealogical fact statements from the following source record.

Rules:
- State only what the record itself attests. Never infer or embellish.
- One fact per life event or relationship.
- confidence is your belief the record supports the statement, 0.0 to 1.0.

Answer with ONLY a JSON object of this shape:
{"facts": [{"subject": "...", "statement": "...", "confidence": 0.0}]}

Record:
`)
	fmt.Fprintf(&sb, "- Source: %s\n- Record ID: %s\n- Name: %s\n", detail.Source, detail.RecordID, detail.Name)
	if detail.BirthYear > 0 {
		fmt.Fprintf(&sb, "- Birth year: %d\n", detail.BirthYear)
	}
	if detail.DeathYear > 0 {
		fmt.Fprintf(&sb, "- Death year: %d\n", detail.DeathYear)
	}
	if detail.Place != "" {
		fmt.Fprintf(&sb, "- Place: %s\n", detail.Place)
	}
	for _, rel := range detail.Relations {
		fmt.Fprintf(&sb, "- Relation: %s %s\n", rel.Relation, rel.Name)
	}
	for k, v := range detail.Fields {
		fmt.Fprintf(&sb, "- %s: %s\n", k, v)
	}
	return sb.String()
}
