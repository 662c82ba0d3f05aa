package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"gem-assistant/internal/errors"
	"gem-assistant/internal/logging"
	"gem-assistant/internal/models"
	"gem-assistant/internal/strategy"
)

// PriceProvider fetches validated price history for one instrument.
type PriceProvider interface {
	GetPriceHistory(ctx context.Context, inst models.Instrument, from, to time.Time) ([]models.PricePoint, error)
}

// Researcher gathers research material and renders commentary.
type Researcher interface {
	ResearchInstrument(ctx context.Context, inst models.Instrument) (models.ResearchResult, error)
	MarketOutlook(ctx context.Context) (models.ResearchResult, error)
	Commentary(ctx context.Context, ranking models.Ranking, results []models.ResearchResult) string
}

// SignalStore persists rankings and signals.
type SignalStore interface {
	SaveRanking(ctx context.Context, ranking models.Ranking) error
	SaveSignal(ctx context.Context, signal models.Signal) error
	LatestSignal(ctx context.Context) (*models.Signal, error)
}

// Notifier delivers a finished signal.
type Notifier interface {
	SendSignal(ctx context.Context, signal models.Signal) error
}

// Result is the outcome of a completed run.
type Result struct {
	RunID    string
	Resumed  bool
	Ranking  models.Ranking
	Signal   models.Signal
	Research []models.ResearchResult
	Degraded bool
	Notified bool
}

// Deps wires the orchestrator's collaborators. Researcher and Notifier
// may be nil; the matching stages then advance without doing work.
type Deps struct {
	Momentum        *strategy.Momentum
	Universe        []models.Instrument
	Prices          PriceProvider
	Researcher      Researcher
	Signals         SignalStore
	Checkpoints     CheckpointStore
	Notifier        Notifier
	FetchWorkers    int
	ResearchWorkers int
	Logger          zerolog.Logger
}

// Orchestrator drives a run through the pipeline stages, checkpointing
// after each one so an interrupted run resumes from where it stopped.
type Orchestrator struct {
	momentum        *strategy.Momentum
	universe        []models.Instrument
	prices          PriceProvider
	researcher      Researcher
	signals         SignalStore
	checkpoints     CheckpointStore
	notifier        Notifier
	fetchWorkers    int
	researchWorkers int
	logger          zerolog.Logger
}

// NewOrchestrator creates an orchestrator from its dependencies.
func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.FetchWorkers <= 0 {
		deps.FetchWorkers = 4
	}
	if deps.ResearchWorkers <= 0 {
		deps.ResearchWorkers = 2
	}
	return &Orchestrator{
		momentum:        deps.Momentum,
		universe:        deps.Universe,
		prices:          deps.Prices,
		researcher:      deps.Researcher,
		signals:         deps.Signals,
		checkpoints:     deps.Checkpoints,
		notifier:        deps.Notifier,
		fetchWorkers:    deps.FetchWorkers,
		researchWorkers: deps.ResearchWorkers,
		logger:          deps.Logger.With().Str("component", "workflow").Logger(),
	}
}

// Run executes the pipeline for runID. If a checkpoint for the run
// already exists, completed stages are skipped and their outputs
// reused, so paid provider calls never repeat. A DONE run cannot be
// re-run and returns ErrRunTerminal.
func (o *Orchestrator) Run(ctx context.Context, runID string, opts Options) (*Result, error) {
	logger := logging.WithRun(o.logger, runID)

	cp, err := loadCheckpoint(ctx, o.checkpoints, runID)
	if err != nil {
		return nil, err
	}

	var resumed bool
	if cp == nil {
		evalDate := opts.EvaluationDate
		if evalDate.IsZero() {
			evalDate = time.Now().UTC().Truncate(24 * time.Hour)
		}
		cp = &Checkpoint{
			RunID:          runID,
			Stage:          StageInitialized,
			EvaluationDate: evalDate,
			Options:        opts,
		}
		if err := saveCheckpoint(ctx, o.checkpoints, cp); err != nil {
			return nil, err
		}
		logging.LogStage(logger, runID, string(StageInitialized), true)
	} else {
		if cp.Stage == StageDone {
			return nil, errors.Wrapf(errors.ErrRunTerminal, "run %s already completed", runID)
		}
		resumed = true
		// A resumed run retries from its first incomplete stage with
		// the options it was started with.
		cp.FailureStage = ""
		cp.FailureReason = ""
		logger.Info().Str("stage", string(cp.Stage)).Msg("Resuming run from checkpoint")
	}

	if err := o.runRanked(ctx, cp, logger); err != nil {
		return nil, err
	}
	if err := o.runResearched(ctx, cp, logger); err != nil {
		return nil, err
	}
	if err := o.runSignaled(ctx, cp, logger); err != nil {
		return nil, err
	}
	if err := o.runPersisted(ctx, cp, logger); err != nil {
		return nil, err
	}
	if err := o.runNotified(ctx, cp, logger); err != nil {
		return nil, err
	}

	cp.Stage = StageDone
	if err := saveCheckpoint(ctx, o.checkpoints, cp); err != nil {
		return nil, err
	}
	logging.LogStage(logger, runID, string(StageDone), true)

	return &Result{
		RunID:    runID,
		Resumed:  resumed,
		Ranking:  *cp.Ranking,
		Signal:   *cp.Signal,
		Research: cp.Research,
		Degraded: cp.Degraded,
		Notified: cp.Notified,
	}, nil
}

// Status returns the checkpoint for a run.
func (o *Orchestrator) Status(ctx context.Context, runID string) (*Checkpoint, error) {
	cp, err := loadCheckpoint(ctx, o.checkpoints, runID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, errors.Wrapf(errors.ErrRunNotFound, "run %s", runID)
	}
	return cp, nil
}

// ListRuns returns recent run checkpoints, newest first.
func (o *Orchestrator) ListRuns(ctx context.Context, limit int) ([]Checkpoint, error) {
	records, err := o.checkpoints.ListCheckpoints(ctx, limit)
	if err != nil {
		return nil, err
	}

	runs := make([]Checkpoint, 0, len(records))
	for _, record := range records {
		cp, err := loadCheckpoint(ctx, o.checkpoints, record.RunID)
		if err != nil || cp == nil {
			continue
		}
		runs = append(runs, *cp)
	}
	return runs, nil
}

// fail records the failure on the checkpoint and returns a StageError.
// The checkpoint keeps its last completed stage so a resume retries
// the failed stage.
func (o *Orchestrator) fail(ctx context.Context, cp *Checkpoint, stage Stage, cause error) error {
	cp.FailureStage = stage
	cp.FailureReason = cause.Error()
	if err := saveCheckpoint(ctx, o.checkpoints, cp); err != nil {
		o.logger.Error().Str("run_id", cp.RunID).Err(err).Msg("Failed to checkpoint failure state")
	}
	return errors.NewStageError(cp.RunID, string(stage), cause)
}

// advance marks the stage completed and checkpoints.
func (o *Orchestrator) advance(ctx context.Context, cp *Checkpoint, stage Stage, logger zerolog.Logger) error {
	cp.Stage = stage
	if err := saveCheckpoint(ctx, o.checkpoints, cp); err != nil {
		return err
	}
	logging.LogStage(logger, cp.RunID, string(stage), true)
	return nil
}

// runRanked fetches price history for the whole universe and builds
// the momentum ranking. Any data failure is fatal for the run: scores
// are only comparable over a complete universe.
func (o *Orchestrator) runRanked(ctx context.Context, cp *Checkpoint, logger zerolog.Logger) error {
	if cp.Completed(StageRanked) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start, end := o.momentum.AnalysisPeriod(cp.EvaluationDate)

	var mu sync.Mutex
	series := make(map[string][]models.PricePoint, len(o.universe))

	p := pool.New().WithMaxGoroutines(o.fetchWorkers).WithContext(ctx).WithCancelOnError()
	for _, inst := range o.universe {
		inst := inst
		p.Go(func(ctx context.Context) error {
			points, err := o.prices.GetPriceHistory(ctx, inst, start, end)
			if err != nil {
				return err
			}
			mu.Lock()
			series[inst.ID] = points
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return o.fail(ctx, cp, StageRanked, err)
	}

	ranking, err := o.momentum.BuildRanking(o.universe, series, cp.EvaluationDate)
	if err != nil {
		return o.fail(ctx, cp, StageRanked, err)
	}

	cp.Ranking = &ranking
	return o.advance(ctx, cp, StageRanked, logger)
}

// runResearched gathers research for the top-ranked instruments and a
// market outlook. Research failures never fail the run; they mark it
// degraded and the pipeline continues with whatever was gathered.
func (o *Orchestrator) runResearched(ctx context.Context, cp *Checkpoint, logger zerolog.Logger) error {
	if cp.Completed(StageResearched) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if !cp.Options.IncludeResearch || o.researcher == nil {
		return o.advance(ctx, cp, StageResearched, logger)
	}

	maxSubjects := cp.Options.MaxSubjects
	if maxSubjects <= 0 || maxSubjects > len(cp.Ranking.Scores) {
		maxSubjects = len(cp.Ranking.Scores)
	}

	// Slot 0 is the market outlook, the rest follow ranking order so
	// the fan-in stays deterministic.
	results := make([]*models.ResearchResult, maxSubjects+1)
	var degraded bool
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(o.researchWorkers)
	p.Go(func() {
		res, err := o.researcher.MarketOutlook(ctx)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			logger.Warn().Err(err).Msg("Market outlook research failed")
			degraded = true
			return
		}
		results[0] = &res
	})
	for i := 0; i < maxSubjects; i++ {
		i := i
		score := cp.Ranking.Scores[i]
		p.Go(func() {
			inst, err := models.FindInstrument(o.universe, score.InstrumentID)
			var res models.ResearchResult
			if err == nil {
				res, err = o.researcher.ResearchInstrument(ctx, inst)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn().Str("instrument", score.InstrumentID).Err(err).Msg("Instrument research failed")
				degraded = true
				return
			}
			results[i+1] = &res
		})
	}
	p.Wait()

	cp.Research = cp.Research[:0]
	for _, res := range results {
		if res != nil {
			cp.Research = append(cp.Research, *res)
		}
	}
	cp.Degraded = degraded
	return o.advance(ctx, cp, StageResearched, logger)
}

// runSignaled derives the signal from the ranking and the prior
// persisted signal, and renders its rationale.
func (o *Orchestrator) runSignaled(ctx context.Context, cp *Checkpoint, logger zerolog.Logger) error {
	if cp.Completed(StageSignaled) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	prior, err := o.signals.LatestSignal(ctx)
	if err != nil {
		return o.fail(ctx, cp, StageSignaled, err)
	}

	signal, err := strategy.Decide(*cp.Ranking, o.universe, prior)
	if err != nil {
		return o.fail(ctx, cp, StageSignaled, err)
	}
	signal.CreatedAt = time.Now().UTC()

	signal.Rationale = strategy.Explain(*cp.Ranking, signal, o.universe)
	if o.researcher != nil && len(cp.Research) > 0 {
		if commentary := o.researcher.Commentary(ctx, *cp.Ranking, cp.Research); commentary != "" {
			signal.Rationale += "\n### Commentary\n" + commentary
		}
	}

	if top, ok := cp.Ranking.Top(); ok {
		logging.LogSignal(logger, string(signal.Kind), signal.InstrumentID, top.Return)
	}

	cp.Signal = &signal
	return o.advance(ctx, cp, StageSignaled, logger)
}

// runPersisted saves the ranking and signal when the run asked for it.
// A persistence failure is fatal only because the caller requested the
// save; runs without SaveToStore just advance.
func (o *Orchestrator) runPersisted(ctx context.Context, cp *Checkpoint, logger zerolog.Logger) error {
	if cp.Completed(StagePersisted) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if cp.Options.SaveToStore {
		if err := o.signals.SaveRanking(ctx, *cp.Ranking); err != nil {
			return o.fail(ctx, cp, StagePersisted, err)
		}
		if err := o.signals.SaveSignal(ctx, *cp.Signal); err != nil {
			return o.fail(ctx, cp, StagePersisted, err)
		}
	}
	return o.advance(ctx, cp, StagePersisted, logger)
}

// runNotified sends the signal to the configured channels. Delivery
// failures never fail the run; the outcome is recorded on the
// checkpoint instead.
func (o *Orchestrator) runNotified(ctx context.Context, cp *Checkpoint, logger zerolog.Logger) error {
	if cp.Completed(StageNotified) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if cp.Options.Notify && o.notifier != nil {
		if err := o.notifier.SendSignal(ctx, *cp.Signal); err != nil {
			logger.Warn().Err(err).Msg("Notification delivery failed")
		} else {
			cp.Notified = true
		}
	}
	return o.advance(ctx, cp, StageNotified, logger)
}
