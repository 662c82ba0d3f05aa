package models

import (
	"testing"
	"time"
)

func TestFindInstrument(t *testing.T) {
	universe := DefaultUniverse()

	cases := []struct {
		ref  string
		want string
	}{
		{"EIMI", "EIMI"},
		{"eimi", "EIMI"},
		{"EIMI.L", "EIMI"},
		{"eimi.uk", "EIMI"},
		{"CBU0", "CBU0"},
	}
	for _, tc := range cases {
		inst, err := FindInstrument(universe, tc.ref)
		if err != nil {
			t.Errorf("FindInstrument(%q): %v", tc.ref, err)
			continue
		}
		if inst.ID != tc.want {
			t.Errorf("FindInstrument(%q) = %s, want %s", tc.ref, inst.ID, tc.want)
		}
	}

	if _, err := FindInstrument(universe, "SPY"); err == nil {
		t.Error("expected error for unknown instrument")
	}
}

func TestTickerFallsBackToID(t *testing.T) {
	inst := Instrument{ID: "EIMI", Tickers: map[string]string{"yahoo": "EIMI.L"}}
	if got := inst.Ticker("yahoo"); got != "EIMI.L" {
		t.Errorf("yahoo ticker = %q", got)
	}
	if got := inst.Ticker("unknown"); got != "EIMI" {
		t.Errorf("fallback ticker = %q", got)
	}
}

func TestRankingLookups(t *testing.T) {
	var empty Ranking
	if _, ok := empty.Top(); ok {
		t.Error("empty ranking has a top score")
	}

	ranking := Ranking{Scores: []MomentumScore{
		{InstrumentID: "EIMI", Return: 0.3, Rank: 1},
		{InstrumentID: "CNDX", Return: 0.2, Rank: 2},
	}}
	top, ok := ranking.Top()
	if !ok || top.InstrumentID != "EIMI" {
		t.Errorf("top = %+v", top)
	}
	score, ok := ranking.Score("CNDX")
	if !ok || score.Rank != 2 {
		t.Errorf("score = %+v", score)
	}
	if _, ok := ranking.Score("CBU0"); ok {
		t.Error("missing instrument reported a score")
	}
}

func TestSignalAction(t *testing.T) {
	s := Signal{InstrumentID: "EIMI", Kind: SignalBuy}
	if got := s.Action(); got != "BUY EIMI" {
		t.Errorf("action = %q", got)
	}
}

func TestResearchResultExpired(t *testing.T) {
	expires := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	r := ResearchResult{ExpiresAt: expires}

	if r.Expired(expires.Add(-time.Second)) {
		t.Error("expired before ExpiresAt")
	}
	if !r.Expired(expires) {
		t.Error("not expired at ExpiresAt")
	}
	if !r.Expired(expires.Add(time.Second)) {
		t.Error("not expired after ExpiresAt")
	}
}
