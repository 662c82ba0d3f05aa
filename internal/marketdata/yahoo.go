package marketdata

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

const yahooChartURL = "https://query1.finance.yahoo.com/v8/finance/chart/"

// YahooSource fetches daily quotes from the Yahoo Finance chart API.
// Used as the fallback price source.
type YahooSource struct {
	client  *http.Client
	baseURL string
	retry   utils.RetryConfig
}

// NewYahooSource creates a Yahoo Finance price source.
func NewYahooSource(client *http.Client) *YahooSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &YahooSource{
		client:  client,
		baseURL: yahooChartURL,
		retry:   utils.DefaultRetryConfig(),
	}
}

// Name implements PriceSource.
func (y *YahooSource) Name() string { return "yahoo" }

type yahooQuery struct {
	Period1  int64  `url:"period1"`
	Period2  int64  `url:"period2"`
	Interval string `url:"interval"`
	Events   string `url:"events"`
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch implements PriceSource.
func (y *YahooSource) Fetch(ctx context.Context, inst models.Instrument, from, to time.Time) ([]models.PricePoint, error) {
	params, err := query.Values(yahooQuery{
		Period1:  from.Unix(),
		Period2:  to.AddDate(0, 0, 1).Unix(),
		Interval: "1d",
		Events:   "div,split",
	})
	if err != nil {
		return nil, fmt.Errorf("encoding yahoo query: %w", err)
	}
	url := y.baseURL + inst.Ticker(y.Name()) + "?" + params.Encode()

	body, err := utils.RetryWithResult(ctx, y.retry, func() ([]byte, error) {
		return y.get(ctx, url)
	})
	if err != nil {
		return nil, errors.NewTransportError(y.Name(), url, err)
	}

	var parsed yahooChartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.NewDataError(y.Name(), inst.ID, "malformed JSON", err)
	}
	if parsed.Chart.Error != nil {
		return nil, errors.NewDataError(y.Name(), inst.ID, parsed.Chart.Error.Description, nil)
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, errors.NewDataError(y.Name(), inst.ID, "empty chart result", nil)
	}

	result := parsed.Chart.Result[0]
	closes := y.pickCloses(result.Indicators.AdjClose, result.Indicators.Quote)
	if len(closes) != len(result.Timestamp) {
		return nil, errors.NewDataError(y.Name(), inst.ID,
			fmt.Sprintf("timestamp/close length mismatch (%d vs %d)", len(result.Timestamp), len(closes)), nil)
	}

	points := make([]models.PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if closes[i] == nil {
			continue // market holiday placeholder
		}
		points = append(points, models.PricePoint{
			InstrumentID: inst.ID,
			Date:         time.Unix(ts, 0).UTC().Truncate(24 * time.Hour),
			AdjClose:     *closes[i],
			Source:       y.Name(),
		})
	}
	return points, nil
}

// pickCloses prefers the adjusted close series, falling back to the
// raw quote closes when Yahoo omits adjustments.
func (y *YahooSource) pickCloses(
	adj []struct {
		AdjClose []*float64 `json:"adjclose"`
	},
	quote []struct {
		Close []*float64 `json:"close"`
	},
) []*float64 {
	if len(adj) > 0 && len(adj[0].AdjClose) > 0 {
		return adj[0].AdjClose
	}
	if len(quote) > 0 {
		return quote[0].Close
	}
	return nil
}

func (y *YahooSource) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "gem-assistant/0.1")

	resp, err := y.client.Do(req)
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
