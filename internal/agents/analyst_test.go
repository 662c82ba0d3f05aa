package agents

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gem-assistant/internal/models"
	"gem-assistant/internal/research"
)

type fakeLLM struct {
	response string
	err      error
	prompts  []string
}

func (l *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	l.prompts = append(l.prompts, prompt)
	return l.response, l.err
}

func (l *fakeLLM) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	l.prompts = append(l.prompts, prompt)
	return l.response, l.err
}

type fakeSearch struct {
	mu      sync.Mutex
	hits    []models.SourceSnippet
	err     error
	queries []string
}

func (s *fakeSearch) Search(ctx context.Context, text string, maxResults int) ([]models.SourceSnippet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, text)
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

type memoryEntryStore struct {
	mu      sync.Mutex
	entries map[string]models.ResearchResult
}

func newMemoryEntryStore() *memoryEntryStore {
	return &memoryEntryStore{entries: make(map[string]models.ResearchResult)}
}

func (s *memoryEntryStore) GetResearch(ctx context.Context, key string) (*models.ResearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.entries[key]; ok {
		copied := r
		return &copied, nil
	}
	return nil, nil
}

func (s *memoryEntryStore) PutResearch(ctx context.Context, key string, result models.ResearchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = result
	return nil
}

func (s *memoryEntryStore) DeleteResearch(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func newTestAnalyst(llm LLMClient, search SearchProvider) *Analyst {
	cache := research.NewCache(newMemoryEntryStore(), time.Hour, zerolog.Nop())
	return NewAnalyst(llm, search, cache, 5, zerolog.Nop())
}

func testRanking() models.Ranking {
	return models.Ranking{
		EvaluationDate: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		PeriodStart:    time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		Scores: []models.MomentumScore{
			{InstrumentID: "EIMI", Return: 0.31, Rank: 1},
			{InstrumentID: "CNDX", Return: 0.22, Rank: 2},
		},
	}
}

func TestResearchInstrumentCachesResults(t *testing.T) {
	search := &fakeSearch{hits: []models.SourceSnippet{
		{Title: "EM outlook", URL: "https://example.com/em", Rank: 1},
	}}
	analyst := newTestAnalyst(nil, search)
	inst := models.DefaultUniverse()[0]

	first, err := analyst.ResearchInstrument(context.Background(), inst)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := analyst.ResearchInstrument(context.Background(), inst); err != nil {
		t.Fatal(err)
	}

	if len(search.queries) != 1 {
		t.Errorf("search called %d times, want 1", len(search.queries))
	}
	if !strings.Contains(search.queries[0], inst.ID) {
		t.Errorf("query %q does not name the instrument", search.queries[0])
	}
	if first.Subject != inst.ID || first.Scope != models.ScopeDeepDive {
		t.Errorf("result = %q/%q", first.Subject, first.Scope)
	}
}

func TestMarketOutlookScope(t *testing.T) {
	search := &fakeSearch{}
	analyst := newTestAnalyst(nil, search)

	result, err := analyst.MarketOutlook(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Subject != "global-markets" || result.Scope != models.ScopeOutlook {
		t.Errorf("result = %q/%q", result.Subject, result.Scope)
	}
}

func TestResearchSearchFailurePropagates(t *testing.T) {
	searchErr := stderrors.New("all search sources failed")
	analyst := newTestAnalyst(nil, &fakeSearch{err: searchErr})

	_, err := analyst.ResearchInstrument(context.Background(), models.DefaultUniverse()[0])
	if !stderrors.Is(err, searchErr) {
		t.Fatalf("err = %v, want search error", err)
	}
}

func TestCommentaryUsesLLM(t *testing.T) {
	llm := &fakeLLM{response: "  Momentum favors emerging markets.  "}
	analyst := newTestAnalyst(llm, &fakeSearch{})

	results := []models.ResearchResult{{
		Subject:  "EIMI",
		Scope:    models.ScopeDeepDive,
		Snippets: []models.SourceSnippet{{Title: "EM flows", Snippet: "inflows continue"}},
	}}
	commentary := analyst.Commentary(context.Background(), testRanking(), results)
	if commentary != "Momentum favors emerging markets." {
		t.Errorf("commentary = %q", commentary)
	}

	if len(llm.prompts) != 1 {
		t.Fatalf("llm called %d times", len(llm.prompts))
	}
	prompt := llm.prompts[0]
	for _, want := range []string{"2026-01-10", "EIMI", "+31.00%", "EM flows"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestCommentaryFallsBackWithoutLLM(t *testing.T) {
	analyst := newTestAnalyst(nil, &fakeSearch{})

	commentary := analyst.Commentary(context.Background(), testRanking(), []models.ResearchResult{{
		Snippets: []models.SourceSnippet{{Title: "a"}, {Title: "b"}},
	}})
	if !strings.Contains(commentary, "EIMI") || !strings.Contains(commentary, "CNDX") {
		t.Errorf("commentary = %q", commentary)
	}
	if !strings.Contains(commentary, "2 research sources") {
		t.Errorf("commentary = %q", commentary)
	}
}

func TestCommentaryFallsBackOnLLMError(t *testing.T) {
	llm := &fakeLLM{err: stderrors.New("rate limited")}
	analyst := newTestAnalyst(llm, &fakeSearch{})

	commentary := analyst.Commentary(context.Background(), testRanking(), nil)
	if !strings.Contains(commentary, "EIMI leads the momentum ranking") {
		t.Errorf("fallback commentary = %q", commentary)
	}
}
