package research

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/rs/zerolog"

	"gem-assistant/internal/models"
)

// fakeSearchSource is a scripted search backend for provider tests.
type fakeSearchSource struct {
	name  string
	hits  []models.SourceSnippet
	err   error
	calls int
}

func (s *fakeSearchSource) Name() string { return s.name }

func (s *fakeSearchSource) Query(ctx context.Context, text string, maxResults int) ([]models.SourceSnippet, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.hits) > maxResults {
		return s.hits[:maxResults], nil
	}
	return s.hits, nil
}

func hit(title, url string) models.SourceSnippet {
	return models.SourceSnippet{Title: title, URL: url, Snippet: "..."}
}

func TestSearchMergesToFillAcrossSources(t *testing.T) {
	primary := &fakeSearchSource{name: "serper", hits: []models.SourceSnippet{
		hit("Emerging markets rally continues", "https://example.com/em-rally"),
		hit("Nasdaq futures slip ahead of earnings", "https://example.com/nasdaq"),
	}}
	secondary := &fakeSearchSource{name: "brave", hits: []models.SourceSnippet{
		hit("Bond yields fall on rate cut bets", "https://example.org/bonds"),
		hit("Dollar weakens against basket", "https://example.org/dollar"),
	}}
	provider := NewCompositeSearchProvider([]SearchSource{primary, secondary}, zerolog.Nop())

	results, err := provider.Search(context.Background(), "market outlook", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	wantSources := []string{"serper", "serper", "brave"}
	for i, r := range results {
		if r.SourceID != wantSources[i] {
			t.Errorf("result %d tagged %q, want %q", i, r.SourceID, wantSources[i])
		}
		if r.Rank != i+1 {
			t.Errorf("result %d rank %d, want %d", i, r.Rank, i+1)
		}
	}
}

func TestSearchSkipsSecondaryWhenPrimaryFills(t *testing.T) {
	primary := &fakeSearchSource{name: "serper", hits: []models.SourceSnippet{
		hit("Emerging markets rally continues", "https://example.com/em-rally"),
		hit("Nasdaq futures slip ahead of earnings", "https://example.com/nasdaq"),
	}}
	secondary := &fakeSearchSource{name: "brave"}
	provider := NewCompositeSearchProvider([]SearchSource{primary, secondary}, zerolog.Nop())

	results, err := provider.Search(context.Background(), "market outlook", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if secondary.calls != 0 {
		t.Errorf("secondary called %d times, want 0", secondary.calls)
	}
}

func TestSearchDeduplicatesByURL(t *testing.T) {
	primary := &fakeSearchSource{name: "serper", hits: []models.SourceSnippet{
		hit("Emerging markets rally continues", "https://Example.com/em-rally/"),
	}}
	secondary := &fakeSearchSource{name: "brave", hits: []models.SourceSnippet{
		// Same article, different casing, trailing slash and tracking query.
		hit("EM rally: a closer look today", "https://example.com/em-rally?utm_source=feed"),
		hit("Bond yields fall on rate cut bets", "https://example.org/bonds"),
	}}
	provider := NewCompositeSearchProvider([]SearchSource{primary, secondary}, zerolog.Nop())

	results, err := provider.Search(context.Background(), "emerging markets", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 after URL dedup", len(results))
	}
	if results[0].SourceID != "serper" {
		t.Errorf("first occurrence lost, tagged %q", results[0].SourceID)
	}
}

func TestSearchDeduplicatesByNearIdenticalTitle(t *testing.T) {
	primary := &fakeSearchSource{name: "serper", hits: []models.SourceSnippet{
		hit("Emerging markets rally continues into December", "https://example.com/a"),
	}}
	secondary := &fakeSearchSource{name: "brave", hits: []models.SourceSnippet{
		hit("Emerging markets rally continues into December.", "https://mirror.example.net/b"),
		hit("Bond yields fall on rate cut bets", "https://example.org/bonds"),
	}}
	provider := NewCompositeSearchProvider([]SearchSource{primary, secondary}, zerolog.Nop())

	results, err := provider.Search(context.Background(), "emerging markets", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 after title dedup", len(results))
	}
}

func TestSearchAllSourcesFailed(t *testing.T) {
	primary := &fakeSearchSource{name: "serper", err: stderrors.New("quota exceeded")}
	secondary := &fakeSearchSource{name: "brave", err: stderrors.New("http 503")}
	provider := NewCompositeSearchProvider([]SearchSource{primary, secondary}, zerolog.Nop())

	_, err := provider.Search(context.Background(), "market outlook", 5)
	var failed *AllSourcesFailedError
	if !stderrors.As(err, &failed) {
		t.Fatalf("err = %v, want AllSourcesFailedError", err)
	}
	if failed.Query != "market outlook" {
		t.Errorf("error query = %q", failed.Query)
	}
}

func TestSearchPartialFailureIsSuccess(t *testing.T) {
	primary := &fakeSearchSource{name: "serper", err: stderrors.New("quota exceeded")}
	secondary := &fakeSearchSource{name: "brave"}
	provider := NewCompositeSearchProvider([]SearchSource{primary, secondary}, zerolog.Nop())

	results, err := provider.Search(context.Background(), "market outlook", 5)
	if err != nil {
		t.Fatalf("partial failure should not error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://Example.com/Path/?q=1#frag", "https://example.com/Path"},
		{"http://example.com/path", "http://example.com/path"},
		{"not a url", ""},
	}
	for _, tc := range cases {
		if got := normalizeURL(tc.in); got != tc.want {
			t.Errorf("normalizeURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
