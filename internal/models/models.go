// Package models defines the core domain types for the momentum assistant.
package models

import (
	"fmt"
	"strings"
	"time"
)

// AssetClass categorizes an instrument for the decision rules.
type AssetClass string

const (
	AssetEquity AssetClass = "equity"
	AssetBond   AssetClass = "bond"
	AssetCash   AssetClass = "cash"
)

// RiskTier is the broad risk bucket of an instrument.
type RiskTier string

const (
	RiskHigh   RiskTier = "high"
	RiskMedium RiskTier = "medium"
	RiskLow    RiskTier = "low"
)

// Instrument is immutable reference data for one tracked ETF.
// Tickers maps a provider id (e.g. "stooq", "yahoo") to the ticker
// form that provider expects.
type Instrument struct {
	ID          string            `mapstructure:"id" json:"id"`
	DisplayName string            `mapstructure:"display_name" json:"display_name"`
	AssetClass  AssetClass        `mapstructure:"asset_class" json:"asset_class"`
	RiskTier    RiskTier          `mapstructure:"risk_tier" json:"risk_tier"`
	Tickers     map[string]string `mapstructure:"tickers" json:"tickers"`
}

// Ticker returns the ticker for the given provider, falling back to
// the instrument id when no provider-specific form is configured.
func (i Instrument) Ticker(provider string) string {
	if t, ok := i.Tickers[provider]; ok && t != "" {
		return t
	}
	return i.ID
}

// DefaultUniverse returns the reference ETF universe used when no
// universe is configured.
func DefaultUniverse() []Instrument {
	return []Instrument{
		{
			ID:          "EIMI",
			DisplayName: "iShares EM IMI (EIMI)",
			AssetClass:  AssetEquity,
			RiskTier:    RiskHigh,
			Tickers:     map[string]string{"yahoo": "EIMI.L", "stooq": "EIMI.UK"},
		},
		{
			ID:          "CNDX",
			DisplayName: "iShares NASDAQ 100 (CNDX)",
			AssetClass:  AssetEquity,
			RiskTier:    RiskHigh,
			Tickers:     map[string]string{"yahoo": "CNDX.L", "stooq": "CNDX.UK"},
		},
		{
			ID:          "CBU0",
			DisplayName: "iShares Treasury 7-10Y (CBU0)",
			AssetClass:  AssetBond,
			RiskTier:    RiskMedium,
			Tickers:     map[string]string{"yahoo": "CBU0.L", "stooq": "CBU0.UK"},
		},
		{
			ID:          "IB01",
			DisplayName: "iShares Treasury 0-1Y (IB01)",
			AssetClass:  AssetCash,
			RiskTier:    RiskLow,
			Tickers:     map[string]string{"yahoo": "IB01.L", "stooq": "IB01.UK"},
		},
	}
}

// FindInstrument looks up an instrument by id or any of its ticker
// forms, case-insensitively.
func FindInstrument(universe []Instrument, ref string) (Instrument, error) {
	norm := strings.ToUpper(ref)
	norm = strings.TrimSuffix(norm, ".L")
	norm = strings.TrimSuffix(norm, ".UK")
	for _, inst := range universe {
		if strings.EqualFold(inst.ID, norm) {
			return inst, nil
		}
		for _, t := range inst.Tickers {
			if strings.EqualFold(t, ref) {
				return inst, nil
			}
		}
	}
	return Instrument{}, fmt.Errorf("unknown instrument: %s", ref)
}

// PricePoint is one adjusted closing price for an instrument,
// tagged with the provider that produced it.
type PricePoint struct {
	InstrumentID string    `json:"instrument_id"`
	Date         time.Time `json:"date"`
	AdjClose     float64   `json:"adj_close"`
	Source       string    `json:"source"`
}

// MomentumScore is the momentum return of one instrument over the
// configured window, with its position in the ranking (1 = best).
type MomentumScore struct {
	InstrumentID   string  `json:"instrument_id"`
	LookbackMonths int     `json:"lookback_months"`
	SkipMonths     int     `json:"skip_months"`
	Return         float64 `json:"return"`
	Rank           int     `json:"rank"`
}

// Ranking holds the ordered momentum scores for one evaluation date.
// Scores are strictly ordered by return descending, ties broken by
// instrument id ascending.
type Ranking struct {
	EvaluationDate time.Time       `json:"evaluation_date"`
	PeriodStart    time.Time       `json:"period_start"`
	PeriodEnd      time.Time       `json:"period_end"`
	Scores         []MomentumScore `json:"scores"`
}

// Top returns the best-ranked score.
func (r Ranking) Top() (MomentumScore, bool) {
	if len(r.Scores) == 0 {
		return MomentumScore{}, false
	}
	return r.Scores[0], true
}

// Score returns the score for the given instrument.
func (r Ranking) Score(instrumentID string) (MomentumScore, bool) {
	for _, s := range r.Scores {
		if s.InstrumentID == instrumentID {
			return s, true
		}
	}
	return MomentumScore{}, false
}

// SignalKind is the action a signal recommends.
type SignalKind string

const (
	SignalBuy  SignalKind = "BUY"
	SignalHold SignalKind = "HOLD"
	SignalSell SignalKind = "SELL"
)

// Signal is one completed recommendation. History is append-only;
// the evaluation date is the logical key.
type Signal struct {
	EvaluationDate time.Time  `json:"evaluation_date"`
	InstrumentID   string     `json:"instrument_id"`
	Kind           SignalKind `json:"kind"`
	Rationale      string     `json:"rationale,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Action renders the signal as a short human-readable action string.
func (s Signal) Action() string {
	return fmt.Sprintf("%s %s", s.Kind, s.InstrumentID)
}

// SourceSnippet is one deduplicated search hit inside a research result.
type SourceSnippet struct {
	SourceID string `json:"source_id"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	Rank     int    `json:"rank"`
}

// Research scopes. A scope qualifies what kind of question a research
// result answers so cache keys for different question types never collide.
const (
	ScopeOutlook  = "outlook"
	ScopeDeepDive = "etf-deep-dive"
)

// ResearchResult is the research gathered for one subject and scope.
type ResearchResult struct {
	Subject     string          `json:"subject"`
	Scope       string          `json:"scope"`
	Snippets    []SourceSnippet `json:"snippets"`
	GeneratedAt time.Time       `json:"generated_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// Expired reports whether the result is past its expiry at now.
func (r ResearchResult) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
