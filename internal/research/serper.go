package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"gem-assistant/internal/errors"
	"gem-assistant/internal/models"
	"gem-assistant/pkg/utils"
)

const serperSearchURL = "https://google.serper.dev/search"

// SerperSource queries the Serper Google search API. Primary search
// source.
type SerperSource struct {
	client *http.Client
	apiKey string
	url    string
	retry  utils.RetryConfig
}

// NewSerperSource creates a Serper search source.
func NewSerperSource(apiKey string, client *http.Client) *SerperSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &SerperSource{
		client: client,
		apiKey: apiKey,
		url:    serperSearchURL,
		retry:  utils.DefaultRetryConfig(),
	}
}

// Name implements SearchSource.
func (s *SerperSource) Name() string { return "serper" }

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// Query implements SearchSource.
func (s *SerperSource) Query(ctx context.Context, text string, maxResults int) ([]models.SourceSnippet, error) {
	if s.apiKey == "" {
		return nil, errors.New("serper API key not configured")
	}

	payload, err := json.Marshal(serperRequest{Q: text, Num: maxResults})
	if err != nil {
		return nil, fmt.Errorf("encoding serper request: %w", err)
	}

	body, err := utils.RetryWithResult(ctx, s.retry, func() ([]byte, error) {
		return s.post(ctx, payload)
	})
	if err != nil {
		return nil, errors.NewTransportError(s.Name(), s.url, err)
	}

	var parsed serperResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.NewTransportError(s.Name(), s.url, fmt.Errorf("malformed response: %w", err))
	}

	hits := make([]models.SourceSnippet, 0, len(parsed.Organic))
	for _, item := range parsed.Organic {
		if len(hits) >= maxResults {
			break
		}
		hits = append(hits, models.SourceSnippet{
			SourceID: s.Name(),
			URL:      item.Link,
			Title:    item.Title,
			Snippet:  item.Snippet,
		})
	}
	return hits, nil
}

func (s *SerperSource) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
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
