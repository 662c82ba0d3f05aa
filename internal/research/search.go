// Package research provides search sources, the composite search
// provider, and the TTL-bound research cache.
package research

import (
	"context"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"gem-assistant/internal/models"
)

// SearchSource queries one concrete search backend.
type SearchSource interface {
	// Name is the source id used for snippet tagging.
	Name() string
	// Query returns up to maxResults raw hits for the text.
	Query(ctx context.Context, text string, maxResults int) ([]models.SourceSnippet, error)
}

// titleSimilarityThreshold is the token-overlap ratio above which two
// titles are treated as the same article.
const titleSimilarityThreshold = 0.8

// CompositeSearchProvider queries sources in configured order and
// merges rather than replaces: when the primary returns fewer than
// maxResults, the next source fills the remainder. Duplicates (same
// normalized URL, or near-identical title) are dropped keeping the
// first occurrence. The call fails only when every source fails;
// zero hits from working sources is success with zero results.
type CompositeSearchProvider struct {
	sources []SearchSource
	logger  zerolog.Logger
}

// NewCompositeSearchProvider creates a composite provider over the
// given ordered sources.
func NewCompositeSearchProvider(sources []SearchSource, logger zerolog.Logger) *CompositeSearchProvider {
	return &CompositeSearchProvider{
		sources: sources,
		logger:  logger.With().Str("component", "search").Logger(),
	}
}

// Search implements the merged multi-source query.
func (p *CompositeSearchProvider) Search(ctx context.Context, text string, maxResults int) ([]models.SourceSnippet, error) {
	var (
		merged   []models.SourceSnippet
		seenURLs = make(map[string]bool)
		failures int
	)

	for _, src := range p.sources {
		if len(merged) >= maxResults {
			break
		}

		remaining := maxResults - len(merged)
		hits, err := src.Query(ctx, text, remaining)
		if err != nil {
			p.logger.Warn().
				Str("source", src.Name()).
				Err(err).
				Msg("Search source failed, trying next")
			failures++
			continue
		}

		for _, hit := range hits {
			if len(merged) >= maxResults {
				break
			}
			key := normalizeURL(hit.URL)
			if key != "" && seenURLs[key] {
				continue
			}
			if titleSeen(merged, hit.Title) {
				continue
			}
			if key != "" {
				seenURLs[key] = true
			}
			hit.SourceID = src.Name()
			hit.Rank = len(merged) + 1
			merged = append(merged, hit)
		}
	}

	if failures == len(p.sources) && len(p.sources) > 0 {
		return nil, &AllSourcesFailedError{Query: text}
	}
	return merged, nil
}

// AllSourcesFailedError reports that every configured search source
// returned an error for a query.
type AllSourcesFailedError struct {
	Query string
}

func (e *AllSourcesFailedError) Error() string {
	return "all search sources failed for query: " + e.Query
}

// normalizeURL reduces a URL to scheme://host/path for dedup, dropping
// the query string and fragment. Returns "" for unparseable URLs.
func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + strings.ToLower(u.Host) + strings.TrimSuffix(u.Path, "/")
}

// titleSeen reports whether a near-identical title is already in the
// merged results.
func titleSeen(merged []models.SourceSnippet, title string) bool {
	for _, m := range merged {
		if titleSimilarity(m.Title, title) >= titleSimilarityThreshold {
			return true
		}
	}
	return false
}

// titleSimilarity is the Jaccard overlap of lowercase title tokens.
func titleSimilarity(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	var common int
	for tok := range ta {
		if tb[tok] {
			common++
		}
	}
	union := len(ta) + len(tb) - common
	return float64(common) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(tok) > 1 {
			set[tok] = true
		}
	}
	return set
}
