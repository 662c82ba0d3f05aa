// Package workflow runs the signal generation pipeline as a resumable
// stage machine with durable checkpoints.
package workflow

import (
	"context"
	"encoding/json"
	"time"

	"gem-assistant/internal/errors"
	"gem-assistant/internal/models"
	"gem-assistant/internal/store"
)

// Stage identifies the last completed step of a run.
type Stage string

const (
	StageInitialized Stage = "INITIALIZED"
	StageRanked      Stage = "RANKED"
	StageResearched  Stage = "RESEARCHED"
	StageSignaled    Stage = "SIGNALED"
	StagePersisted   Stage = "PERSISTED"
	StageNotified    Stage = "NOTIFIED"
	StageDone        Stage = "DONE"
	StageFailed      Stage = "FAILED"
)

// stageOrder positions each stage in the pipeline. FAILED is not part
// of the progression; a failed run keeps its last completed stage and
// records the failure separately.
var stageOrder = map[Stage]int{
	StageInitialized: 0,
	StageRanked:      1,
	StageResearched:  2,
	StageSignaled:    3,
	StagePersisted:   4,
	StageNotified:    5,
	StageDone:        6,
}

// Options control one run of the pipeline.
type Options struct {
	// EvaluationDate is the as-of date. Zero means today.
	EvaluationDate time.Time `json:"evaluation_date"`
	// IncludeResearch enables the research stage.
	IncludeResearch bool `json:"include_research"`
	// MaxSubjects caps how many top-ranked instruments get researched.
	MaxSubjects int `json:"max_subjects"`
	// SaveToStore persists the ranking and signal.
	SaveToStore bool `json:"save_to_store"`
	// Notify sends the finished signal to the configured channels.
	Notify bool `json:"notify"`
}

// Checkpoint is the full durable state of one run. Stage is the last
// stage that completed; stage outputs are carried so a resumed run
// reuses them instead of recomputing.
type Checkpoint struct {
	RunID          string                  `json:"run_id"`
	Stage          Stage                   `json:"stage"`
	EvaluationDate time.Time               `json:"evaluation_date"`
	Options        Options                 `json:"options"`
	Ranking        *models.Ranking         `json:"ranking,omitempty"`
	Research       []models.ResearchResult `json:"research,omitempty"`
	Signal         *models.Signal          `json:"signal,omitempty"`
	Degraded       bool                    `json:"degraded,omitempty"`
	Notified       bool                    `json:"notified,omitempty"`
	FailureStage   Stage                   `json:"failure_stage,omitempty"`
	FailureReason  string                  `json:"failure_reason,omitempty"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// Completed reports whether the given stage has already run.
func (c *Checkpoint) Completed(stage Stage) bool {
	return stageOrder[c.Stage] >= stageOrder[stage]
}

// Failed reports whether the run's last attempt ended in a failure.
func (c *Checkpoint) Failed() bool {
	return c.FailureStage != ""
}

// CheckpointStore is the persistence surface the orchestrator needs
// for checkpoints.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, record store.CheckpointRecord) error
	GetCheckpoint(ctx context.Context, runID string) (*store.CheckpointRecord, error)
	ListCheckpoints(ctx context.Context, limit int) ([]store.CheckpointRecord, error)
}

// saveCheckpoint serializes and durably writes the checkpoint.
func saveCheckpoint(ctx context.Context, cs CheckpointStore, cp *Checkpoint) error {
	cp.UpdatedAt = time.Now()
	state, err := json.Marshal(cp)
	if err != nil {
		return errors.NewPersistenceError("marshal_checkpoint", cp.RunID, err)
	}
	return cs.SaveCheckpoint(ctx, store.CheckpointRecord{
		RunID:     cp.RunID,
		Stage:     string(cp.Stage),
		State:     state,
		UpdatedAt: cp.UpdatedAt,
	})
}

// loadCheckpoint reads and deserializes the checkpoint for a run,
// returning nil when the run is unknown.
func loadCheckpoint(ctx context.Context, cs CheckpointStore, runID string) (*Checkpoint, error) {
	record, err := cs.GetCheckpoint(ctx, runID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}

	var cp Checkpoint
	if err := json.Unmarshal(record.State, &cp); err != nil {
		return nil, errors.Wrapf(errors.ErrCheckpointCorrupt, "run %s: %v", runID, err)
	}
	if _, ok := stageOrder[cp.Stage]; !ok {
		return nil, errors.Wrapf(errors.ErrCheckpointCorrupt, "run %s: unknown stage %q", runID, cp.Stage)
	}
	// A completed stage implies its output; a checkpoint claiming
	// progress it does not carry cannot be resumed.
	if cp.Completed(StageRanked) && cp.Ranking == nil {
		return nil, errors.Wrapf(errors.ErrCheckpointCorrupt, "run %s: stage %s without a ranking", runID, cp.Stage)
	}
	if cp.Completed(StageSignaled) && cp.Signal == nil {
		return nil, errors.Wrapf(errors.ErrCheckpointCorrupt, "run %s: stage %s without a signal", runID, cp.Stage)
	}
	return &cp, nil
}
