// Package store provides data persistence implementations.
package store

import (
	"context"
	"time"

	"gem-assistant/internal/models"
)

// CheckpointRecord is the durable form of a workflow checkpoint. State
// holds the stage outputs as JSON so the store stays agnostic of the
// workflow's shape.
type CheckpointRecord struct {
	RunID     string
	Stage     string
	State     []byte
	UpdatedAt time.Time
}

// SignalFilter narrows signal history queries.
type SignalFilter struct {
	InstrumentID string
	Since        time.Time
	Limit        int
}

// DataStore is the persistence surface used by the workflow and CLI.
type DataStore interface {
	// SaveRanking stores the ranking for its evaluation date, replacing
	// any prior ranking for the same date.
	SaveRanking(ctx context.Context, ranking models.Ranking) error
	// GetRanking returns the ranking for an evaluation date, or nil.
	GetRanking(ctx context.Context, evaluationDate time.Time) (*models.Ranking, error)

	// SaveSignal stores a signal keyed by evaluation date. Re-saving
	// the same date replaces the row, so repeated runs are idempotent.
	SaveSignal(ctx context.Context, signal models.Signal) error
	// LatestSignal returns the most recent signal, or nil when none.
	LatestSignal(ctx context.Context) (*models.Signal, error)
	// SignalHistory returns signals newest first.
	SignalHistory(ctx context.Context, filter SignalFilter) ([]models.Signal, error)

	// GetResearch returns the cached research for key, or nil.
	GetResearch(ctx context.Context, key string) (*models.ResearchResult, error)
	// PutResearch stores research under key, replacing any prior entry.
	PutResearch(ctx context.Context, key string, result models.ResearchResult) error
	// DeleteResearch removes the research entry for key.
	DeleteResearch(ctx context.Context, key string) error

	// SaveCheckpoint atomically replaces the checkpoint for its run.
	SaveCheckpoint(ctx context.Context, record CheckpointRecord) error
	// GetCheckpoint returns the checkpoint for a run, or nil.
	GetCheckpoint(ctx context.Context, runID string) (*CheckpointRecord, error)
	// ListCheckpoints returns checkpoints newest first.
	ListCheckpoints(ctx context.Context, limit int) ([]CheckpointRecord, error)

	// Close releases the underlying database.
	Close() error
}
