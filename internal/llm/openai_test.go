package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
)

func answerServer(t *testing.T, answer string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		resp := openai.ChatCompletionResponse{
			Model: "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: "assistant", Content: answer}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func testProvider(t *testing.T, server *httptest.Server) *OpenAIProvider {
	t.Helper()
	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	return provider
}

func sampleFact() *model.Fact {
	return &model.Fact{
		FactID:    "fact-1",
		Version:   1,
		Subject:   "John Smith",
		Statement: "John Smith born 1842 in County Cork",
		Sources: []model.SourceCitation{
			{Repository: "familysearch", RecordID: "ABCD-123", EvidenceType: model.EvidenceDirect},
		},
		ConfidenceScore: 0.5,
	}
}

func TestOpenAIProvider_Evaluate(t *testing.T) {
	server := answerServer(t, `{
		"pillars": {
			"exhaustive_search": "PARTIAL",
			"complete_citation": "SATISFIED",
			"analysis_correlation": "SATISFIED",
			"conflict_resolution": "SATISFIED",
			"written_conclusion": "SATISFIED"
		},
		"sources_missing": ["civil registration"],
		"conflicts": [{"description": "census age differs", "resolved": false}],
		"reasoning": "single direct source",
		"proof_summary": "not yet proven",
		"confidence": 0.6
	}`)
	provider := testProvider(t, server)

	eval, err := provider.Evaluate(context.Background(), sampleFact())
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if eval.Pillars[model.PillarExhaustiveSearch] != model.PillarPartial {
		t.Errorf("unexpected search pillar: %s", eval.Pillars[model.PillarExhaustiveSearch])
	}
	if eval.Pillars[model.PillarCompleteCitation] != model.PillarSatisfied {
		t.Errorf("unexpected citation pillar: %s", eval.Pillars[model.PillarCompleteCitation])
	}
	if eval.Confidence != 0.6 {
		t.Errorf("unexpected confidence: %v", eval.Confidence)
	}
	if len(eval.UnresolvedConflicts()) != 1 {
		t.Errorf("unexpected conflicts: %+v", eval.Conflicts)
	}
	if eval.FactID != "fact-1" || eval.FactVersion != 1 {
		t.Errorf("evaluation not tied to the fact version: %+v", eval)
	}
	if len(eval.SourcesSearched) != 1 || eval.SourcesSearched[0] != "familysearch" {
		t.Errorf("unexpected sources searched: %v", eval.SourcesSearched)
	}
}

func TestOpenAIProvider_Evaluate_RejectsBadAnswers(t *testing.T) {
	tests := []struct {
		name   string
		answer string
	}{
		{"malformed json", `{broken`},
		{"missing pillar", `{"pillars": {"exhaustive_search": "SATISFIED"}, "confidence": 0.5}`},
		{"invalid status", `{"pillars": {"exhaustive_search": "MAYBE", "complete_citation": "SATISFIED", "analysis_correlation": "SATISFIED", "conflict_resolution": "SATISFIED", "written_conclusion": "SATISFIED"}, "confidence": 0.5}`},
		{"confidence out of range", `{"pillars": {"exhaustive_search": "SATISFIED", "complete_citation": "SATISFIED", "analysis_correlation": "SATISFIED", "conflict_resolution": "SATISFIED", "written_conclusion": "SATISFIED"}, "confidence": 1.5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := testProvider(t, answerServer(t, tt.answer))
			if _, err := provider.Evaluate(context.Background(), sampleFact()); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestOpenAIProvider_Extract(t *testing.T) {
	server := answerServer(t, `{
		"facts": [
			{"subject": "John Smith", "statement": "John Smith born 1842 in County Cork", "confidence": 0.9},
			{"subject": "", "statement": "dropped: no subject", "confidence": 0.9}
		]
	}`)
	provider := testProvider(t, server)

	detail := &model.RecordDetail{
		CandidateRecord: model.CandidateRecord{
			Source: "familysearch", RecordID: "ABCD-123", Name: "John Smith", BirthYear: 1842, Place: "County Cork",
		},
	}
	facts, err := provider.Extract(context.Background(), detail)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("expected 1 fact (empty subject dropped), got %d", len(facts))
	}
	if facts[0].Citations[0].Repository != "familysearch" || facts[0].Citations[0].RecordID != "ABCD-123" {
		t.Errorf("extracted fact must cite its own record: %+v", facts[0].Citations)
	}
}

func TestNewProvider(t *testing.T) {
	if p, err := NewProvider(Config{Provider: ""}); p != nil || err != nil {
		t.Errorf("expected disabled provider, got %v, %v", p, err)
	}
	if _, err := NewProvider(Config{Provider: "mystery"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := NewProvider(Config{Provider: "openai"}); err == nil {
		t.Error("expected error for missing API key")
	}
	if p, err := NewProvider(Config{Provider: "openai", APIKey: "k"}); err != nil || p == nil {
		t.Errorf("expected openai provider, got %v, %v", p, err)
	}
}
