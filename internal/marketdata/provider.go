// Package marketdata provides price history sources and the composite
// provider that aggregates them with ordered fallback.
package marketdata

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"gem-assistant/internal/errors"
	"gem-assistant/internal/models"
)

// PriceSource fetches adjusted daily closes for one instrument.
type PriceSource interface {
	// Name is the provider id used for source tagging and ticker lookup.
	Name() string
	// Fetch returns date-ordered price points covering [from, to].
	Fetch(ctx context.Context, inst models.Instrument, from, to time.Time) ([]models.PricePoint, error)
}

// ValidationConfig controls what the composite provider accepts as a
// complete series from a source.
type ValidationConfig struct {
	// ToleranceDays is how many trading days the series may end before
	// the requested window end and still count as covering it.
	ToleranceDays int
	// MaxGapDays is the largest calendar gap allowed between
	// consecutive points.
	MaxGapDays int
}

// DefaultValidation returns the default series validation settings.
func DefaultValidation() ValidationConfig {
	return ValidationConfig{ToleranceDays: 5, MaxGapDays: 90}
}

// CompositeProvider tries price sources strictly in configured order.
// The first source returning a complete, gap-free series wins; the
// series is tagged with that source's id. If every source fails for an
// instrument the call fails with ErrDataUnavailable.
type CompositeProvider struct {
	sources    []PriceSource
	validation ValidationConfig
	logger     zerolog.Logger
}

// NewCompositeProvider creates a composite provider over the given
// ordered sources.
func NewCompositeProvider(sources []PriceSource, validation ValidationConfig, logger zerolog.Logger) *CompositeProvider {
	return &CompositeProvider{
		sources:    sources,
		validation: validation,
		logger:     logger.With().Str("component", "marketdata").Logger(),
	}
}

// GetPriceHistory fetches the price history for one instrument,
// falling back through the configured sources in order.
func (p *CompositeProvider) GetPriceHistory(ctx context.Context, inst models.Instrument, from, to time.Time) ([]models.PricePoint, error) {
	if len(p.sources) == 0 {
		return nil, errors.Wrap(errors.ErrDataUnavailable, "no price sources configured")
	}

	var lastErr error
	for _, src := range p.sources {
		series, err := src.Fetch(ctx, inst, from, to)
		if err != nil {
			p.logger.Warn().
				Str("provider", src.Name()).
				Str("instrument", inst.ID).
				Err(err).
				Msg("Price source failed, trying next")
			lastErr = err
			continue
		}

		if err := p.validate(series, from, to); err != nil {
			p.logger.Warn().
				Str("provider", src.Name()).
				Str("instrument", inst.ID).
				Err(err).
				Msg("Price source returned incomplete series, trying next")
			lastErr = errors.NewDataError(src.Name(), inst.ID, "incomplete series", err)
			continue
		}

		sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
		for i := range series {
			series[i].InstrumentID = inst.ID
			series[i].Source = src.Name()
		}

		p.logger.Debug().
			Str("provider", src.Name()).
			Str("instrument", inst.ID).
			Int("points", len(series)).
			Msg("Price history fetched")
		return series, nil
	}

	return nil, errors.Wrapf(errors.ErrDataUnavailable, "all price sources failed for %s: %v", inst.ID, lastErr)
}

// validate checks that a series is non-empty, date-ordered after sort,
// covers the requested window within tolerance, and has no gap larger
// than MaxGapDays.
func (p *CompositeProvider) validate(series []models.PricePoint, from, to time.Time) error {
	if len(series) < 2 {
		return errors.New("series too short")
	}

	sorted := make([]models.PricePoint, len(series))
	copy(sorted, series)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	tolerance := time.Duration(p.validation.ToleranceDays) * 24 * time.Hour
	if sorted[0].Date.After(from.Add(tolerance)) {
		return errors.Wrapf(errors.New("window start not covered"),
			"first point %s, requested %s", sorted[0].Date.Format("2006-01-02"), from.Format("2006-01-02"))
	}
	if sorted[len(sorted)-1].Date.Before(to.Add(-tolerance)) {
		return errors.Wrapf(errors.New("window end not covered"),
			"last point %s, requested %s", sorted[len(sorted)-1].Date.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	maxGap := time.Duration(p.validation.MaxGapDays) * 24 * time.Hour
	for i := 1; i < len(sorted); i++ {
		if sorted[i].AdjClose <= 0 {
			return errors.Wrapf(errors.New("non-positive price"), "at %s", sorted[i].Date.Format("2006-01-02"))
		}
		if gap := sorted[i].Date.Sub(sorted[i-1].Date); gap > maxGap {
			return errors.Wrapf(errors.New("gap in series"),
				"%.0f days ending %s", gap.Hours()/24, sorted[i].Date.Format("2006-01-02"))
		}
	}
	if sorted[0].AdjClose <= 0 {
		return errors.New("non-positive price at series start")
	}

	return nil
}
