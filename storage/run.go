// Package storage persists plan runs. Three stores share one contract: an
// in-process map, a SQLite file and a NATS JetStream key-value bucket.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360studio/semtrip/trip"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusProcessing RunStatus = "processing"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
)

// IsTerminal returns true for completed and failed runs.
func (s RunStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StatusChange records a status transition.
type StatusChange struct {
	From      RunStatus `json:"from"`
	To        RunStatus `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// Run is the persisted record of one plan run.
type Run struct {
	ID            string             `json:"run_id"`
	Status        RunStatus          `json:"status"`
	Progress      int                `json:"progress"`
	Stage         trip.Stage         `json:"stage,omitempty"`
	Message       string             `json:"message,omitempty"`
	Request       trip.PlanRequest   `json:"request"`
	Result        *trip.FinishedPlan `json:"result,omitempty"`
	Errors        []trip.StageError  `json:"errors,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
	StatusChanges []StatusChange     `json:"status_changes,omitempty"`
}

// Transition moves the run to status and records the change. Terminal
// statuses also set CompletedAt.
func (r *Run) Transition(status RunStatus, at time.Time) {
	if r.Status != status {
		r.StatusChanges = append(r.StatusChanges, StatusChange{From: r.Status, To: status, Timestamp: at})
	}
	r.Status = status
	r.UpdatedAt = at
	if status.IsTerminal() && r.CompletedAt == nil {
		t := at
		r.CompletedAt = &t
	}
}

// Store persists runs.
type Store interface {
	// Create stores a new run. It returns ErrExists if the ID is taken.
	Create(ctx context.Context, r *Run) error

	// Get returns the run or ErrNotFound.
	Get(ctx context.Context, id string) (*Run, error)

	// Update replaces an existing run. It returns ErrNotFound if the run
	// was never created.
	Update(ctx context.Context, r *Run) error

	// List returns up to limit runs, newest first. A non-positive limit
	// returns every run.
	List(ctx context.Context, limit int) ([]*Run, error)

	// Close releases the store's resources.
	Close() error
}

func marshalRun(r *Run) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal run: %w", err)
	}
	return data, nil
}

func unmarshalRun(data []byte) (*Run, error) {
	var r Run
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &r, nil
}
