// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrDataUnavailable   = errors.New("price data unavailable")
	ErrCheckpointCorrupt = errors.New("checkpoint corrupt")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrRunNotFound       = errors.New("run not found")
	ErrRunTerminal       = errors.New("run already in a terminal state")
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrTimeout           = errors.New("operation timed out")
)

// TransportError represents a transport-level failure from an external
// provider. Composite providers absorb these and only escalate once
// every configured source is exhausted.
type TransportError struct {
	Provider string
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error [%s] %s: %v", e.Provider, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new TransportError.
func NewTransportError(provider, endpoint string, err error) *TransportError {
	return &TransportError{
		Provider: provider,
		Endpoint: endpoint,
		Err:      err,
	}
}

// DataError represents invalid or incomplete market data from a provider.
type DataError struct {
	Provider     string
	InstrumentID string
	Message      string
	Err          error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.Provider, e.InstrumentID, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.Provider, e.InstrumentID, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(provider, instrumentID, message string, err error) *DataError {
	return &DataError{
		Provider:     provider,
		InstrumentID: instrumentID,
		Message:      message,
		Err:          err,
	}
}

// ResearchDegradedError marks a run that continued without (or with
// partial) research after every search source was exhausted. It is
// recorded, never fatal.
type ResearchDegradedError struct {
	Subject string
	Err     error
}

func (e *ResearchDegradedError) Error() string {
	return fmt.Sprintf("research degraded [%s]: %v", e.Subject, e.Err)
}

func (e *ResearchDegradedError) Unwrap() error {
	return e.Err
}

// NewResearchDegradedError creates a new ResearchDegradedError.
func NewResearchDegradedError(subject string, err error) *ResearchDegradedError {
	return &ResearchDegradedError{Subject: subject, Err: err}
}

// PersistenceError represents a failed write to the signal store.
// Fatal only when persistence was explicitly requested.
type PersistenceError struct {
	Operation string
	Key       string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error [%s] %s: %v", e.Operation, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(operation, key string, err error) *PersistenceError {
	return &PersistenceError{Operation: operation, Key: key, Err: err}
}

// NotificationError represents a failed delivery on a notification
// channel. Always non-fatal; the run records it and completes.
type NotificationError struct {
	Channel string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification error [%s]: %v", e.Channel, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// NewNotificationError creates a new NotificationError.
func NewNotificationError(channel string, err error) *NotificationError {
	return &NotificationError{Channel: channel, Err: err}
}

// StageError represents a failure of one orchestrator stage.
type StageError struct {
	RunID string
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage error [%s] %s: %v", e.RunID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError creates a new StageError.
func NewStageError(runID, stage string, err error) *StageError {
	return &StageError{RunID: runID, Stage: stage, Err: err}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error with the supplied message.
func New(message string) error {
	return errors.New(message)
}
