package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
)

// OpenAIProvider implements the Provider interface for OpenAI models
type OpenAIProvider struct {
	client *openai.Client
	config Config
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// IsAvailable checks if the provider is properly configured and reachable
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	_, err := p.client.ListModels(ctx)
	return err == nil
}

// evaluationAnswer is the JSON shape the model must answer with
type evaluationAnswer struct {
	Pillars        map[string]string `json:"pillars"`
	SourcesMissing []string          `json:"sources_missing"`
	Conflicts      []model.Conflict  `json:"conflicts"`
	Reasoning      string            `json:"reasoning"`
	ProofSummary   string            `json:"proof_summary"`
	Confidence     float64           `json:"confidence"`
}

// Evaluate scores a fact against the proof standard via the Chat Completions
// API, demanding a strict JSON answer
func (p *OpenAIProvider) Evaluate(ctx context.Context, fact *model.Fact) (*model.GPSEvaluation, error) {
	content, err := p.complete(ctx, "You are a meticulous genealogist applying the Genealogical Proof Standard. You answer only with JSON.", buildEvaluationPrompt(fact))
	if err != nil {
		return nil, err
	}

	var answer evaluationAnswer
	if err := json.Unmarshal([]byte(content), &answer); err != nil {
		return nil, fmt.Errorf("malformed evaluation answer: %w", err)
	}
	if answer.Confidence < 0 || answer.Confidence > 1 {
		return nil, fmt.Errorf("evaluation confidence %v out of range", answer.Confidence)
	}

	eval := model.NewGPSEvaluation(fact.FactID, fact.Version, "openai:"+p.model())
	for i := 0; i < model.NumPillars; i++ {
		status, ok := answer.Pillars[model.Pillar(i).String()]
		if !ok {
			return nil, fmt.Errorf("evaluation answer missing pillar %s", model.Pillar(i))
		}
		switch model.PillarStatus(status) {
		case model.PillarSatisfied, model.PillarPartial, model.PillarFailed:
			eval.Pillars[i] = model.PillarStatus(status)
		default:
			return nil, fmt.Errorf("invalid status %q for pillar %s", status, model.Pillar(i))
		}
	}
	eval.SourcesMissing = answer.SourcesMissing
	eval.Conflicts = answer.Conflicts
	eval.Reasoning = answer.Reasoning
	eval.ProofSummary = answer.ProofSummary
	eval.Confidence = answer.Confidence
	for _, c := range fact.Sources {
		eval.SourcesSearched = append(eval.SourcesSearched, c.Repository)
	}
	return eval, nil
}

// extractionAnswer is the JSON shape the model must answer with
type extractionAnswer struct {
	Facts []struct {
		Subject    string  `json:"subject"`
		Statement  string  `json:"statement"`
		Confidence float64 `json:"confidence"`
	} `json:"facts"`
}

// Extract derives candidate facts from a record, citing the record itself
func (p *OpenAIProvider) Extract(ctx context.Context, detail *model.RecordDetail) ([]model.CandidateFact, error) {
	content, err := p.complete(ctx, "You are a genealogical records transcriber. You answer only with JSON.", buildExtractionPrompt(detail))
	if err != nil {
		return nil, err
	}

	var answer extractionAnswer
	if err := json.Unmarshal([]byte(content), &answer); err != nil {
		return nil, fmt.Errorf("malformed extraction answer: %w", err)
	}

	citation := []model.SourceCitation{{
		Repository:   detail.Source,
		RecordID:     detail.RecordID,
		URL:          detail.URL,
		AccessedAt:   time.Now().UTC(),
		EvidenceType: model.EvidenceDirect,
	}}
	var facts []model.CandidateFact
	for _, f := range answer.Facts {
		if f.Subject == "" || f.Statement == "" {
			continue
		}
		facts = append(facts, model.CandidateFact{
			Subject:    f.Subject,
			Statement:  f.Statement,
			Citations:  citation,
			Confidence: f.Confidence,
		})
	}
	return facts, nil
}

// complete runs one chat completion and returns the trimmed answer text
func (p *OpenAIProvider) complete(ctx context.Context, system, prompt string) (string, error) {
	timeout := time.Duration(p.config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxTokens := p.config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2000
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model(),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.1, // Near-deterministic; this is transcription, not prose
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *OpenAIProvider) model() string {
	if p.config.Model != "" {
		return p.config.Model
	}
	return openai.GPT4oMini
}
