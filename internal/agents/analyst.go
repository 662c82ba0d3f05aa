package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"gem-assistant/internal/models"
	"gem-assistant/internal/research"
)

// SearchProvider abstracts the composite web search used to gather
// source material.
type SearchProvider interface {
	Search(ctx context.Context, text string, maxResults int) ([]models.SourceSnippet, error)
}

// Analyst gathers web research for instruments and turns it into
// market commentary. Results flow through the TTL cache so repeat runs
// on the same day never re-pay for search or completion calls.
type Analyst struct {
	llm        LLMClient
	search     SearchProvider
	cache      *research.Cache
	maxResults int
	logger     zerolog.Logger
}

// NewAnalyst creates a research analyst. llm may be nil, in which case
// commentary falls back to a rule-based summary.
func NewAnalyst(llm LLMClient, search SearchProvider, cache *research.Cache, maxResults int, logger zerolog.Logger) *Analyst {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Analyst{
		llm:        llm,
		search:     search,
		cache:      cache,
		maxResults: maxResults,
		logger:     logger.With().Str("component", "analyst").Logger(),
	}
}

// ResearchInstrument gathers and summarizes research for a single
// instrument under the deep-dive scope.
func (a *Analyst) ResearchInstrument(ctx context.Context, inst models.Instrument) (models.ResearchResult, error) {
	queryText := fmt.Sprintf("%s %s ETF outlook analysis", inst.ID, inst.DisplayName)
	return a.cache.GetOrFetch(ctx, inst.ID, models.ScopeDeepDive, func(ctx context.Context) (models.ResearchResult, error) {
		return a.gather(ctx, inst.ID, queryText)
	})
}

// MarketOutlook gathers and summarizes general market research under
// the outlook scope.
func (a *Analyst) MarketOutlook(ctx context.Context) (models.ResearchResult, error) {
	const subject = "global-markets"
	queryText := "global equity bond market outlook momentum"
	return a.cache.GetOrFetch(ctx, subject, models.ScopeOutlook, func(ctx context.Context) (models.ResearchResult, error) {
		return a.gather(ctx, subject, queryText)
	})
}

func (a *Analyst) gather(ctx context.Context, subject, queryText string) (models.ResearchResult, error) {
	snippets, err := a.search.Search(ctx, queryText, a.maxResults)
	if err != nil {
		return models.ResearchResult{}, err
	}
	a.logger.Debug().
		Str("subject", subject).
		Int("snippets", len(snippets)).
		Msg("Gathered research")
	return models.ResearchResult{Subject: subject, Snippets: snippets}, nil
}

// Commentary produces a short market commentary from the ranking and
// gathered research. With no LLM configured it falls back to a
// rule-based summary built from the same inputs.
func (a *Analyst) Commentary(ctx context.Context, ranking models.Ranking, results []models.ResearchResult) string {
	if a.llm == nil {
		return a.ruleBasedCommentary(ranking, results)
	}

	systemPrompt := `You are a market analyst covering a dual momentum ETF rotation strategy.
Summarize the current momentum ranking and the provided research snippets.
Be concise: 2-3 short paragraphs, no financial advice disclaimers.`

	response, err := a.llm.CompleteWithSystem(ctx, systemPrompt, a.buildContext(ranking, results))
	if err != nil {
		a.logger.Warn().Err(err).Msg("LLM commentary failed, using rule-based summary")
		return a.ruleBasedCommentary(ranking, results)
	}
	return strings.TrimSpace(response)
}

// buildContext renders the ranking and snippets as the user prompt.
func (a *Analyst) buildContext(ranking models.Ranking, results []models.ResearchResult) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Evaluation date: %s\n", ranking.EvaluationDate.Format("2006-01-02")))
	sb.WriteString(fmt.Sprintf("Lookback window: %s to %s\n\n",
		ranking.PeriodStart.Format("2006-01-02"), ranking.PeriodEnd.Format("2006-01-02")))

	sb.WriteString("Momentum ranking:\n")
	for _, score := range ranking.Scores {
		sb.WriteString(fmt.Sprintf("  %d. %s: %+.2f%%\n", score.Rank, score.InstrumentID, score.Return*100))
	}

	for _, res := range results {
		if len(res.Snippets) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("\nResearch on %s (%s):\n", res.Subject, res.Scope))
		for _, snip := range res.Snippets {
			sb.WriteString(fmt.Sprintf("  - %s: %s\n", snip.Title, snip.Snippet))
		}
	}

	return sb.String()
}

// ruleBasedCommentary summarizes the ranking without an LLM.
func (a *Analyst) ruleBasedCommentary(ranking models.Ranking, results []models.ResearchResult) string {
	top, ok := ranking.Top()
	if !ok {
		return "No ranking available."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s leads the momentum ranking with a %+.2f%% return over the lookback window.",
		top.InstrumentID, top.Return*100))

	if len(ranking.Scores) > 1 {
		runner := ranking.Scores[1]
		sb.WriteString(fmt.Sprintf(" %s follows at %+.2f%%.", runner.InstrumentID, runner.Return*100))
	}

	var sources int
	for _, res := range results {
		sources += len(res.Snippets)
	}
	if sources > 0 {
		sb.WriteString(fmt.Sprintf(" Based on %d research sources.", sources))
	}
	return sb.String()
}
