package marketdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/go-querystring/query"

	"gem-assistant/internal/errors"
	"gem-assistant/internal/models"
	"gem-assistant/pkg/utils"
)

const stooqBaseURL = "https://stooq.com/q/d/l/"

// StooqSource fetches daily quotes from the Stooq CSV download endpoint.
// Free, no API key required; used as the primary price source.
type StooqSource struct {
	client  *http.Client
	baseURL string
	retry   utils.RetryConfig
}

// NewStooqSource creates a Stooq price source.
func NewStooqSource(client *http.Client) *StooqSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &StooqSource{
		client:  client,
		baseURL: stooqBaseURL,
		retry:   utils.DefaultRetryConfig(),
	}
}

// Name implements PriceSource.
func (s *StooqSource) Name() string { return "stooq" }

type stooqQuery struct {
	Symbol   string `url:"s"`
	From     string `url:"d1"`
	To       string `url:"d2"`
	Interval string `url:"i"`
}

type stooqRow struct {
	Date  string  `csv:"Date"`
	Open  float64 `csv:"Open"`
	High  float64 `csv:"High"`
	Low   float64 `csv:"Low"`
	Close float64 `csv:"Close"`
}

// Fetch implements PriceSource.
func (s *StooqSource) Fetch(ctx context.Context, inst models.Instrument, from, to time.Time) ([]models.PricePoint, error) {
	params, err := query.Values(stooqQuery{
		Symbol:   strings.ToLower(inst.Ticker(s.Name())),
		From:     from.Format("20060102"),
		To:       to.Format("20060102"),
		Interval: "d",
	})
	if err != nil {
		return nil, fmt.Errorf("encoding stooq query: %w", err)
	}
	url := s.baseURL + "?" + params.Encode()

	body, err := utils.RetryWithResult(ctx, s.retry, func() ([]byte, error) {
		return s.get(ctx, url)
	})
	if err != nil {
		return nil, errors.NewTransportError(s.Name(), url, err)
	}

	// Stooq answers "No data" in the body with a 200 status.
	if strings.HasPrefix(strings.TrimSpace(string(body)), "No data") {
		return nil, errors.NewDataError(s.Name(), inst.ID, "no data for ticker", nil)
	}

	var rows []stooqRow
	if err := gocsv.UnmarshalBytes(body, &rows); err != nil {
		return nil, errors.NewDataError(s.Name(), inst.ID, "malformed CSV", err)
	}

	points := make([]models.PricePoint, 0, len(rows))
	for _, row := range rows {
		date, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			return nil, errors.NewDataError(s.Name(), inst.ID, "malformed date "+row.Date, err)
		}
		points = append(points, models.PricePoint{
			InstrumentID: inst.ID,
			Date:         date,
			AdjClose:     row.Close,
			Source:       s.Name(),
		})
	}
	return points, nil
}

func (s *StooqSource) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
