package utils

import (
	"fmt"
	"strings"
)

// FormatPercent renders a fractional return as a signed percentage.
func FormatPercent(fraction float64) string {
	return fmt.Sprintf("%+.2f%%", fraction*100)
}

// StooqChartURL builds a Stooq comparison chart link for the given
// tickers, useful for eyeballing the ranking.
func StooqChartURL(tickers []string) string {
	if len(tickers) == 0 {
		return "https://stooq.com"
	}
	lower := make([]string, len(tickers))
	for i, t := range tickers {
		lower[i] = strings.ToLower(t)
	}
	return "https://stooq.com/q/?s=" + strings.Join(lower, "+")
}
