package workflow

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gem-assistant/internal/errors"
	"gem-assistant/internal/models"
	"gem-assistant/internal/store"
	"gem-assistant/internal/strategy"
)

// ==================== Fakes ====================

type fakePrices struct {
	mu      sync.Mutex
	calls   int
	err     error
	returns map[string]float64
}

func (p *fakePrices) GetPriceHistory(ctx context.Context, inst models.Instrument, from, to time.Time) ([]models.PricePoint, error) {
	p.mu.Lock()
	p.calls++
	err := p.err
	ret := p.returns[inst.ID]
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return []models.PricePoint{
		{InstrumentID: inst.ID, Date: from, AdjClose: 100},
		{InstrumentID: inst.ID, Date: to, AdjClose: 100 * (1 + ret)},
	}, nil
}

type fakeResearcher struct {
	mu         sync.Mutex
	instCalls  int
	outlookErr error
	instErr    error
}

func (r *fakeResearcher) ResearchInstrument(ctx context.Context, inst models.Instrument) (models.ResearchResult, error) {
	r.mu.Lock()
	r.instCalls++
	err := r.instErr
	r.mu.Unlock()
	if err != nil {
		return models.ResearchResult{}, err
	}
	return models.ResearchResult{
		Subject: inst.ID,
		Scope:   models.ScopeDeepDive,
		Snippets: []models.SourceSnippet{
			{Title: inst.DisplayName + " outlook", URL: "https://example.com/" + inst.ID, Rank: 1},
		},
	}, nil
}

func (r *fakeResearcher) MarketOutlook(ctx context.Context) (models.ResearchResult, error) {
	if r.outlookErr != nil {
		return models.ResearchResult{}, r.outlookErr
	}
	return models.ResearchResult{Subject: "global-markets", Scope: models.ScopeOutlook}, nil
}

func (r *fakeResearcher) Commentary(ctx context.Context, ranking models.Ranking, results []models.ResearchResult) string {
	return "momentum remains constructive"
}

type fakeSignalStore struct {
	mu            sync.Mutex
	latest        *models.Signal
	saveSignalErr error
	savedSignals  []models.Signal
	savedRankings []models.Ranking
}

func (s *fakeSignalStore) SaveRanking(ctx context.Context, ranking models.Ranking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedRankings = append(s.savedRankings, ranking)
	return nil
}

func (s *fakeSignalStore) SaveSignal(ctx context.Context, signal models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveSignalErr != nil {
		return s.saveSignalErr
	}
	s.savedSignals = append(s.savedSignals, signal)
	return nil
}

func (s *fakeSignalStore) LatestSignal(ctx context.Context) (*models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, nil
}

type memoryCheckpointStore struct {
	mu      sync.Mutex
	records map[string]store.CheckpointRecord
}

func newMemoryCheckpointStore() *memoryCheckpointStore {
	return &memoryCheckpointStore{records: make(map[string]store.CheckpointRecord)}
}

func (s *memoryCheckpointStore) SaveCheckpoint(ctx context.Context, record store.CheckpointRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.RunID] = record
	return nil
}

func (s *memoryCheckpointStore) GetCheckpoint(ctx context.Context, runID string) (*store.CheckpointRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[runID]; ok {
		return &r, nil
	}
	return nil, nil
}

func (s *memoryCheckpointStore) ListCheckpoints(ctx context.Context, limit int) ([]store.CheckpointRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []store.CheckpointRecord
	for _, r := range s.records {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].UpdatedAt.After(records[j].UpdatedAt) })
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (n *fakeNotifier) SendSignal(ctx context.Context, signal models.Signal) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return n.err
}

// ==================== Helpers ====================

type fixture struct {
	orch        *Orchestrator
	prices      *fakePrices
	researcher  *fakeResearcher
	signals     *fakeSignalStore
	checkpoints *memoryCheckpointStore
	notifier    *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	momentum, err := strategy.New(12, 1)
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		prices: &fakePrices{returns: map[string]float64{
			"EIMI": 0.30, "CNDX": 0.20, "CBU0": 0.02, "IB01": 0.01,
		}},
		researcher:  &fakeResearcher{},
		signals:     &fakeSignalStore{},
		checkpoints: newMemoryCheckpointStore(),
		notifier:    &fakeNotifier{},
	}
	f.orch = NewOrchestrator(Deps{
		Momentum:    momentum,
		Universe:    models.DefaultUniverse(),
		Prices:      f.prices,
		Researcher:  f.researcher,
		Signals:     f.signals,
		Checkpoints: f.checkpoints,
		Notifier:    f.notifier,
		Logger:      zerolog.Nop(),
	})
	return f
}

func fullOptions() Options {
	return Options{
		EvaluationDate:  time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		IncludeResearch: true,
		MaxSubjects:     2,
		SaveToStore:     true,
		Notify:          true,
	}
}

// ==================== Tests ====================

func TestRunFullPipeline(t *testing.T) {
	f := newFixture(t)

	result, err := f.orch.Run(context.Background(), "run-1", fullOptions())
	if err != nil {
		t.Fatal(err)
	}

	if result.Resumed {
		t.Error("fresh run reported as resumed")
	}
	if result.Signal.Kind != models.SignalBuy || result.Signal.InstrumentID != "EIMI" {
		t.Errorf("signal = %s %s, want BUY EIMI", result.Signal.Kind, result.Signal.InstrumentID)
	}
	if result.Degraded {
		t.Error("run degraded without research failures")
	}
	if !result.Notified {
		t.Error("run not notified")
	}
	// Outlook plus two instrument deep dives.
	if len(result.Research) != 3 {
		t.Errorf("got %d research results, want 3", len(result.Research))
	}
	if len(f.signals.savedSignals) != 1 || len(f.signals.savedRankings) != 1 {
		t.Errorf("persisted %d signals, %d rankings", len(f.signals.savedSignals), len(f.signals.savedRankings))
	}
	if f.notifier.calls != 1 {
		t.Errorf("notifier called %d times, want 1", f.notifier.calls)
	}

	cp, err := f.orch.Status(context.Background(), "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if cp.Stage != StageDone {
		t.Errorf("checkpoint stage = %s, want DONE", cp.Stage)
	}
}

func TestRunPriceFailureIsFatalAndResumable(t *testing.T) {
	f := newFixture(t)
	f.prices.err = stderrors.New("all price sources failed")

	_, err := f.orch.Run(context.Background(), "run-1", fullOptions())
	var stageErr *errors.StageError
	if !stderrors.As(err, &stageErr) {
		t.Fatalf("err = %v, want StageError", err)
	}
	if stageErr.Stage != string(StageRanked) {
		t.Errorf("failed stage = %s, want RANKED", stageErr.Stage)
	}

	cp, err := f.orch.Status(context.Background(), "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if !cp.Failed() || cp.FailureStage != StageRanked {
		t.Errorf("failure not recorded: %+v", cp)
	}
	if cp.Stage != StageInitialized {
		t.Errorf("checkpoint advanced past last completed stage: %s", cp.Stage)
	}

	// Fix the provider and resume the same run.
	f.prices.mu.Lock()
	f.prices.err = nil
	f.prices.mu.Unlock()

	result, err := f.orch.Run(context.Background(), "run-1", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Resumed {
		t.Error("second attempt not reported as resumed")
	}
	if result.Signal.InstrumentID != "EIMI" {
		t.Errorf("signal for %s, want EIMI", result.Signal.InstrumentID)
	}

	cp, _ = f.orch.Status(context.Background(), "run-1")
	if cp.Failed() {
		t.Errorf("failure fields not cleared: %+v", cp)
	}
}

func TestResumeSkipsCompletedStages(t *testing.T) {
	f := newFixture(t)
	f.signals.saveSignalErr = stderrors.New("disk full")

	_, err := f.orch.Run(context.Background(), "run-1", fullOptions())
	var stageErr *errors.StageError
	if !stderrors.As(err, &stageErr) {
		t.Fatalf("err = %v, want StageError", err)
	}
	if stageErr.Stage != string(StagePersisted) {
		t.Errorf("failed stage = %s, want PERSISTED", stageErr.Stage)
	}

	priceCalls := f.prices.calls
	researchCalls := f.researcher.instCalls

	f.signals.mu.Lock()
	f.signals.saveSignalErr = nil
	f.signals.mu.Unlock()

	result, err := f.orch.Run(context.Background(), "run-1", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Resumed {
		t.Error("not reported as resumed")
	}
	if f.prices.calls != priceCalls {
		t.Errorf("price provider re-called on resume: %d -> %d", priceCalls, f.prices.calls)
	}
	if f.researcher.instCalls != researchCalls {
		t.Errorf("researcher re-called on resume: %d -> %d", researchCalls, f.researcher.instCalls)
	}
	if len(f.signals.savedSignals) != 1 {
		t.Errorf("persisted %d signals, want 1", len(f.signals.savedSignals))
	}
}

func TestResearchFailureDegradesButCompletes(t *testing.T) {
	f := newFixture(t)
	f.researcher.instErr = stderrors.New("search quota exceeded")

	result, err := f.orch.Run(context.Background(), "run-1", fullOptions())
	if err != nil {
		t.Fatal(err)
	}
	if !result.Degraded {
		t.Error("run not marked degraded")
	}
	// Outlook still succeeded.
	if len(result.Research) != 1 {
		t.Errorf("got %d research results, want 1", len(result.Research))
	}
	if result.Signal.InstrumentID != "EIMI" {
		t.Errorf("signal for %s, want EIMI", result.Signal.InstrumentID)
	}
}

func TestPersistFailureOnlyFatalWhenSaving(t *testing.T) {
	f := newFixture(t)
	f.signals.saveSignalErr = stderrors.New("disk full")

	opts := fullOptions()
	opts.SaveToStore = false
	result, err := f.orch.Run(context.Background(), "run-1", opts)
	if err != nil {
		t.Fatalf("run without SaveToStore must not touch the store: %v", err)
	}
	if len(f.signals.savedSignals) != 0 {
		t.Errorf("persisted %d signals without SaveToStore", len(f.signals.savedSignals))
	}
	if result.Signal.Kind != models.SignalBuy {
		t.Errorf("signal = %s, want BUY", result.Signal.Kind)
	}
}

func TestNotifyFailureNeverFatal(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = stderrors.New("pushover 500")

	result, err := f.orch.Run(context.Background(), "run-1", fullOptions())
	if err != nil {
		t.Fatal(err)
	}
	if result.Notified {
		t.Error("failed delivery reported as notified")
	}

	cp, _ := f.orch.Status(context.Background(), "run-1")
	if cp.Stage != StageDone {
		t.Errorf("stage = %s, want DONE", cp.Stage)
	}
}

func TestRunTerminalAfterDone(t *testing.T) {
	f := newFixture(t)

	if _, err := f.orch.Run(context.Background(), "run-1", fullOptions()); err != nil {
		t.Fatal(err)
	}
	_, err := f.orch.Run(context.Background(), "run-1", Options{})
	if !errors.Is(err, errors.ErrRunTerminal) {
		t.Fatalf("err = %v, want ErrRunTerminal", err)
	}
}

func TestHoldWhenPriorMatchesTop(t *testing.T) {
	f := newFixture(t)
	f.signals.latest = &models.Signal{InstrumentID: "EIMI", Kind: models.SignalBuy}

	result, err := f.orch.Run(context.Background(), "run-1", fullOptions())
	if err != nil {
		t.Fatal(err)
	}
	if result.Signal.Kind != models.SignalHold {
		t.Errorf("signal = %s, want HOLD", result.Signal.Kind)
	}
}

func TestSellWhenBondLeads(t *testing.T) {
	f := newFixture(t)
	f.prices.returns = map[string]float64{
		"EIMI": -0.10, "CNDX": -0.15, "CBU0": 0.05, "IB01": 0.02,
	}

	result, err := f.orch.Run(context.Background(), "run-1", fullOptions())
	if err != nil {
		t.Fatal(err)
	}
	if result.Signal.Kind != models.SignalSell || result.Signal.InstrumentID != "CBU0" {
		t.Errorf("signal = %s %s, want SELL CBU0", result.Signal.Kind, result.Signal.InstrumentID)
	}
}

func TestStatusUnknownRun(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Status(context.Background(), "no-such-run")
	if !errors.Is(err, errors.ErrRunNotFound) {
		t.Fatalf("err = %v, want ErrRunNotFound", err)
	}
}

func TestListRuns(t *testing.T) {
	f := newFixture(t)
	opts := fullOptions()
	if _, err := f.orch.Run(context.Background(), "run-1", opts); err != nil {
		t.Fatal(err)
	}
	if _, err := f.orch.Run(context.Background(), "run-2", opts); err != nil {
		t.Fatal(err)
	}

	runs, err := f.orch.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	cs := newMemoryCheckpointStore()
	ranking := models.Ranking{Scores: []models.MomentumScore{
		{InstrumentID: "EIMI", Return: 0.3, Rank: 1},
	}}
	cp := &Checkpoint{
		RunID:          "run-1",
		Stage:          StageRanked,
		EvaluationDate: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		Options:        fullOptions(),
		Ranking:        &ranking,
	}
	if err := saveCheckpoint(context.Background(), cs, cp); err != nil {
		t.Fatal(err)
	}

	loaded, err := loadCheckpoint(context.Background(), cs, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Stage != StageRanked {
		t.Errorf("stage = %s", loaded.Stage)
	}
	if loaded.Ranking == nil || loaded.Ranking.Scores[0].InstrumentID != "EIMI" {
		t.Errorf("ranking lost: %+v", loaded.Ranking)
	}
	if !loaded.Completed(StageRanked) || loaded.Completed(StageSignaled) {
		t.Error("stage comparison wrong after round trip")
	}
}

func TestRunRejectsCheckpointMissingStageOutputs(t *testing.T) {
	f := newFixture(t)

	// Parses fine and the stage is known, but the outputs SIGNALED
	// implies are absent. Resuming must fail cleanly, not dereference
	// a nil ranking or signal.
	state := []byte(`{"run_id":"run-1","stage":"SIGNALED","evaluation_date":"2026-01-10T00:00:00Z","options":{"save_to_store":true}}`)
	if err := f.checkpoints.SaveCheckpoint(context.Background(), store.CheckpointRecord{
		RunID: "run-1",
		Stage: "SIGNALED",
		State: state,
	}); err != nil {
		t.Fatal(err)
	}

	_, err := f.orch.Run(context.Background(), "run-1", Options{})
	if !errors.Is(err, errors.ErrCheckpointCorrupt) {
		t.Fatalf("err = %v, want ErrCheckpointCorrupt", err)
	}

	// RANKED without a ranking is just as corrupt.
	if err := f.checkpoints.SaveCheckpoint(context.Background(), store.CheckpointRecord{
		RunID: "run-2",
		Stage: "RANKED",
		State: []byte(`{"run_id":"run-2","stage":"RANKED"}`),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.orch.Run(context.Background(), "run-2", Options{}); !errors.Is(err, errors.ErrCheckpointCorrupt) {
		t.Fatalf("err = %v, want ErrCheckpointCorrupt", err)
	}
}

func TestLoadCheckpointCorrupt(t *testing.T) {
	cs := newMemoryCheckpointStore()
	if err := cs.SaveCheckpoint(context.Background(), store.CheckpointRecord{
		RunID: "run-1",
		State: []byte("{not json"),
	}); err != nil {
		t.Fatal(err)
	}

	_, err := loadCheckpoint(context.Background(), cs, "run-1")
	if !errors.Is(err, errors.ErrCheckpointCorrupt) {
		t.Fatalf("err = %v, want ErrCheckpointCorrupt", err)
	}
}
