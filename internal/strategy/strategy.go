// Package strategy implements the dual-momentum ranking and signal
// decision rules.
package strategy

import (
	"fmt"
	"sort"
	"time"

	"gem-assistant/internal/models"
)

// Momentum is the classic GEM momentum strategy: rank instruments by
// total return over LookbackMonths ending SkipMonths before the
// evaluation date, skipping the most recent partial month.
type Momentum struct {
	LookbackMonths int
	SkipMonths     int
}

// New creates a Momentum strategy, validating the window parameters.
func New(lookbackMonths, skipMonths int) (*Momentum, error) {
	if lookbackMonths < 1 {
		return nil, fmt.Errorf("lookback months must be >= 1, got %d", lookbackMonths)
	}
	if skipMonths < 0 {
		return nil, fmt.Errorf("skip months must be >= 0, got %d", skipMonths)
	}
	return &Momentum{LookbackMonths: lookbackMonths, SkipMonths: skipMonths}, nil
}

// AnalysisPeriod computes the measurement window for the given
// evaluation date. The window ends on the last day of the month
// SkipMonths before asOf and starts LookbackMonths before that.
//
// Example: asOf = 2026-01-10, skip=1, lookback=12
// → end = 2025-12-31, start = 2024-12-31.
func (m *Momentum) AnalysisPeriod(asOf time.Time) (start, end time.Time) {
	firstOfCurrent := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, asOf.Location())
	firstOfTarget := firstOfCurrent.AddDate(0, -m.SkipMonths, 0)
	end = firstOfTarget.AddDate(0, 1, -1)
	start = end.AddDate(0, -m.LookbackMonths, 0)
	return start, end
}

// TotalReturn computes the momentum return of one price series:
// (last - first) / first over the series endpoints. The series must be
// date-ordered with positive prices.
func TotalReturn(series []models.PricePoint) (float64, error) {
	if len(series) < 2 {
		return 0, fmt.Errorf("need at least 2 price points, got %d", len(series))
	}
	first := series[0].AdjClose
	last := series[len(series)-1].AdjClose
	if first <= 0 || last <= 0 {
		return 0, fmt.Errorf("non-positive price in series (first=%.4f last=%.4f)", first, last)
	}
	return (last - first) / first, nil
}

// BuildRanking computes momentum scores for every instrument in the
// universe and returns them strictly ordered by return descending,
// ties broken by instrument id ascending.
//
// Every instrument must be present in series; a missing or invalid
// series fails the whole ranking because the scores are only
// comparable over a complete universe.
func (m *Momentum) BuildRanking(
	universe []models.Instrument,
	series map[string][]models.PricePoint,
	asOf time.Time,
) (models.Ranking, error) {
	start, end := m.AnalysisPeriod(asOf)

	scores := make([]models.MomentumScore, 0, len(universe))
	for _, inst := range universe {
		s, ok := series[inst.ID]
		if !ok {
			return models.Ranking{}, fmt.Errorf("missing price series for %s", inst.ID)
		}
		ret, err := TotalReturn(s)
		if err != nil {
			return models.Ranking{}, fmt.Errorf("computing return for %s: %w", inst.ID, err)
		}
		scores = append(scores, models.MomentumScore{
			InstrumentID:   inst.ID,
			LookbackMonths: m.LookbackMonths,
			SkipMonths:     m.SkipMonths,
			Return:         ret,
		})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Return != scores[j].Return {
			return scores[i].Return > scores[j].Return
		}
		return scores[i].InstrumentID < scores[j].InstrumentID
	})
	for i := range scores {
		scores[i].Rank = i + 1
	}

	return models.Ranking{
		EvaluationDate: asOf,
		PeriodStart:    start,
		PeriodEnd:      end,
		Scores:         scores,
	}, nil
}

// Decide derives the new signal from the ranking and the prior
// persisted signal. Pure function, no I/O.
//
// Rules:
//   - top instrument is a bond → SELL (defensive, regardless of prior)
//   - no prior signal, or prior held a different instrument → BUY
//   - prior held the top instrument → HOLD
func Decide(ranking models.Ranking, universe []models.Instrument, prior *models.Signal) (models.Signal, error) {
	top, ok := ranking.Top()
	if !ok {
		return models.Signal{}, fmt.Errorf("empty ranking")
	}

	inst, err := models.FindInstrument(universe, top.InstrumentID)
	if err != nil {
		return models.Signal{}, fmt.Errorf("top instrument not in universe: %w", err)
	}

	kind := models.SignalBuy
	switch {
	case inst.AssetClass == models.AssetBond:
		kind = models.SignalSell
	case prior != nil && prior.InstrumentID == top.InstrumentID:
		kind = models.SignalHold
	}

	return models.Signal{
		EvaluationDate: ranking.EvaluationDate,
		InstrumentID:   top.InstrumentID,
		Kind:           kind,
	}, nil
}

// Explain renders a short markdown summary of the ranking and signal,
// used as the default rationale when no LLM commentary is available.
func Explain(ranking models.Ranking, signal models.Signal, universe []models.Instrument) string {
	out := fmt.Sprintf("## Momentum Analysis\n**Period:** %s → %s\n\n### Ranking:\n",
		ranking.PeriodStart.Format("2006-01-02"),
		ranking.PeriodEnd.Format("2006-01-02"))

	for _, s := range ranking.Scores {
		name := s.InstrumentID
		if inst, err := models.FindInstrument(universe, s.InstrumentID); err == nil {
			name = inst.DisplayName
		}
		out += fmt.Sprintf("%d. **%s**: %+.1f%%\n", s.Rank, name, s.Return*100)
	}

	out += fmt.Sprintf("\n### Recommendation: **%s**\n", signal.Action())
	return out
}
