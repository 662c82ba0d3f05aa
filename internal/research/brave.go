package research

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/go-querystring/query"

	"gem-assistant/internal/errors"
	"gem-assistant/internal/models"
	"gem-assistant/pkg/utils"
)

const braveSearchURL = "https://api.search.brave.com/res/v1/web/search"

// BraveSource queries the Brave Search API. Fallback search source.
type BraveSource struct {
	client *http.Client
	apiKey string
	url    string
	retry  utils.RetryConfig
}

// NewBraveSource creates a Brave search source.
func NewBraveSource(apiKey string, client *http.Client) *BraveSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &BraveSource{
		client: client,
		apiKey: apiKey,
		url:    braveSearchURL,
		retry:  utils.DefaultRetryConfig(),
	}
}

// Name implements SearchSource.
func (b *BraveSource) Name() string { return "brave" }

type braveQuery struct {
	Q     string `url:"q"`
	Count int    `url:"count"`
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Query implements SearchSource.
func (b *BraveSource) Query(ctx context.Context, text string, maxResults int) ([]models.SourceSnippet, error) {
	if b.apiKey == "" {
		return nil, errors.New("brave API key not configured")
	}

	params, err := query.Values(braveQuery{Q: text, Count: maxResults})
	if err != nil {
		return nil, fmt.Errorf("encoding brave query: %w", err)
	}
	url := b.url + "?" + params.Encode()

	body, err := utils.RetryWithResult(ctx, b.retry, func() ([]byte, error) {
		return b.get(ctx, url)
	})
	if err != nil {
		return nil, errors.NewTransportError(b.Name(), url, err)
	}

	var parsed braveResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.NewTransportError(b.Name(), url, fmt.Errorf("malformed response: %w", err))
	}

	hits := make([]models.SourceSnippet, 0, len(parsed.Web.Results))
	for _, item := range parsed.Web.Results {
		if len(hits) >= maxResults {
			break
		}
		hits = append(hits, models.SourceSnippet{
			SourceID: b.Name(),
			URL:      item.URL,
			Title:    item.Title,
			Snippet:  item.Description,
		})
	}
	return hits, nil
}

func (b *BraveSource) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Subscription-Token", b.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
