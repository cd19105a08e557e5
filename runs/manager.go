// Package runs executes plan requests in the background and exposes their
// status and results for polling.
package runs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/semtrip/events"
	"github.com/c360studio/semtrip/pipeline"
	"github.com/c360studio/semtrip/storage"
	"github.com/c360studio/semtrip/trip"
)

var (
	// ErrNotReady is returned by GetResult while the run is still processing.
	ErrNotReady = errors.New("run not ready")

	// ErrRunFailed is returned by GetResult for a failed run.
	ErrRunFailed = errors.New("run failed")

	// ErrShuttingDown is returned by CreateRun after Shutdown was called.
	ErrShuttingDown = errors.New("run manager is shutting down")
)

const startMessage = "开始生成旅行计划"

// Planner produces a finished plan and reports progress along the way.
type Planner interface {
	RunWithProgress(ctx context.Context, req trip.PlanRequest, report pipeline.ProgressFunc) (*trip.FinishedPlan, error)
}

// Notifier receives a copy of every progress update.
type Notifier interface {
	Publish(ev events.Event) error
}

// Status is the polling view of a run.
type Status struct {
	RunID       string            `json:"run_id"`
	Status      storage.RunStatus `json:"status"`
	Stage       trip.Stage        `json:"stage,omitempty"`
	Progress    int               `json:"progress"`
	Message     string            `json:"message,omitempty"`
	Errors      []trip.StageError `json:"errors,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

func statusOf(r *storage.Run) Status {
	return Status{
		RunID:       r.ID,
		Status:      r.Status,
		Stage:       r.Stage,
		Progress:    r.Progress,
		Message:     r.Message,
		Errors:      r.Errors,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		CompletedAt: r.CompletedAt,
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithNotifier publishes every progress update to n.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		m.notifier = n
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMaxTripDays rejects requests longer than n days. Values below 1
// keep trip.DefaultMaxTripDays.
func WithMaxTripDays(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxDays = n
		}
	}
}

// Manager owns the background runs.
type Manager struct {
	planner  Planner
	store    storage.Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
	maxDays  int

	// base outlives the request that created a run; Shutdown cancels it.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closing bool
	// runLocks serializes store updates of one run.
	runLocks map[string]*sync.Mutex
}

// NewManager creates a manager that executes runs with planner and keeps
// their records in store.
func NewManager(planner Planner, store storage.Store, opts ...Option) (*Manager, error) {
	if planner == nil {
		return nil, errors.New("planner is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	base, cancel := context.WithCancel(context.Background())
	m := &Manager{
		planner:  planner,
		store:    store,
		logger:   slog.Default(),
		now:      time.Now,
		maxDays:  trip.DefaultMaxTripDays,
		base:     base,
		cancel:   cancel,
		runLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// CreateRun validates req, stores a processing run and starts the pipeline
// in the background. An invalid request returns a *trip.ValidationError and
// stores nothing.
func (m *Manager) CreateRun(ctx context.Context, req trip.PlanRequest) (string, error) {
	req = req.Normalized()
	if err := req.ValidateWithin(m.maxDays); err != nil {
		return "", err
	}

	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return "", ErrShuttingDown
	}
	m.wg.Add(1)
	m.mu.Unlock()

	now := m.now().UTC()
	run := &storage.Run{
		ID:        uuid.New().String(),
		Status:    storage.StatusProcessing,
		Progress:  trip.StageValidating.Percent(),
		Stage:     trip.StageValidating,
		Message:   startMessage,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
		StatusChanges: []storage.StatusChange{
			{To: storage.StatusProcessing, Timestamp: now},
		},
	}
	if err := m.store.Create(ctx, run); err != nil {
		m.wg.Done()
		return "", fmt.Errorf("create run: %w", err)
	}

	m.logger.Info("Plan run started",
		"run_id", run.ID,
		"destination", req.Destination,
		"days", req.Days())
	m.notify(run, 0)

	go m.execute(run.ID, req)
	return run.ID, nil
}

func (m *Manager) execute(id string, req trip.PlanRequest) {
	defer m.wg.Done()
	defer m.forget(id)

	var (
		plan *trip.FinishedPlan
		err  error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("Plan run panicked", "run_id", id, "panic", r, "stack", string(debug.Stack()))
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		plan, err = m.planner.RunWithProgress(m.base, req, func(p pipeline.Progress) {
			m.progress(id, p)
		})
	}()

	if err != nil {
		m.fail(id, err)
		return
	}
	// A run cut short by Shutdown is not a finished plan, even when the
	// pipeline managed to finalize one from defaults.
	if cause := m.base.Err(); cause != nil {
		m.fail(id, &trip.PlanFailure{
			Stage:  trip.StageFailed,
			Err:    fmt.Errorf("cancelled by shutdown: %w", cause),
			Errors: plan.Errors,
		})
		return
	}
	m.complete(id, plan)
}

func (m *Manager) lockRun(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.runLocks[id]
	if !ok {
		l = &sync.Mutex{}
		m.runLocks[id] = l
	}
	return l
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	delete(m.runLocks, id)
	m.mu.Unlock()
}

// progress applies a pipeline report. Terminal stages are left to complete
// and fail so the status changes exactly once.
func (m *Manager) progress(id string, p pipeline.Progress) {
	if p.Stage.IsTerminal() {
		return
	}
	l := m.lockRun(id)
	l.Lock()
	defer l.Unlock()

	ctx := context.Background()
	run, err := m.store.Get(ctx, id)
	if err != nil {
		m.logger.Warn("Progress for unknown run", "run_id", id, "error", err)
		return
	}
	if run.Status.IsTerminal() {
		return
	}
	if p.Percent > run.Progress {
		run.Progress = p.Percent
	}
	run.Stage = p.Stage
	if p.Message != "" {
		run.Message = p.Message
	}
	run.UpdatedAt = m.now().UTC()
	if err := m.store.Update(ctx, run); err != nil {
		m.logger.Warn("Failed to store run progress", "run_id", id, "stage", p.Stage, "error", err)
		return
	}
	m.logger.Debug("Plan run progress", "run_id", id, "stage", p.Stage, "progress", run.Progress)
	m.notify(run, p.Day)
}

func (m *Manager) complete(id string, plan *trip.FinishedPlan) {
	l := m.lockRun(id)
	l.Lock()
	defer l.Unlock()

	ctx := context.Background()
	run, err := m.store.Get(ctx, id)
	if err != nil {
		m.logger.Error("Completed run vanished", "run_id", id, "error", err)
		return
	}
	plan.RunID = id
	run.Result = plan
	run.Errors = plan.Errors
	run.Progress = 100
	run.Stage = trip.StageDone
	run.Message = "旅行计划生成完成"
	run.Transition(storage.StatusCompleted, m.now().UTC())
	if err := m.store.Update(ctx, run); err != nil {
		m.logger.Error("Failed to store completed run", "run_id", id, "error", err)
		return
	}
	m.logger.Info("Plan run completed",
		"run_id", id,
		"plan_id", plan.PlanID,
		"days", len(plan.Itinerary),
		"stage_errors", len(plan.Errors))
	m.notify(run, 0)
}

func (m *Manager) fail(id string, cause error) {
	l := m.lockRun(id)
	l.Lock()
	defer l.Unlock()

	ctx := context.Background()
	run, err := m.store.Get(ctx, id)
	if err != nil {
		m.logger.Error("Failed run vanished", "run_id", id, "error", err)
		return
	}
	var failure *trip.PlanFailure
	if errors.As(cause, &failure) {
		run.Errors = failure.Errors
		run.Stage = failure.Stage
	} else {
		run.Stage = trip.StageFailed
	}
	run.Message = cause.Error()
	run.Transition(storage.StatusFailed, m.now().UTC())
	if err := m.store.Update(ctx, run); err != nil {
		m.logger.Error("Failed to store failed run", "run_id", id, "error", err)
		return
	}
	m.logger.Warn("Plan run failed", "run_id", id, "error", cause)
	m.notify(run, 0)
}

func (m *Manager) notify(run *storage.Run, day int) {
	if m.notifier == nil {
		return
	}
	_ = m.notifier.Publish(events.Event{
		RunID:     run.ID,
		Status:    string(run.Status),
		Stage:     run.Stage,
		Progress:  run.Progress,
		Message:   run.Message,
		Day:       day,
		Timestamp: run.UpdatedAt,
	})
}

// GetStatus returns the polling view of a run or storage.ErrNotFound.
func (m *Manager) GetStatus(ctx context.Context, id string) (Status, error) {
	run, err := m.store.Get(ctx, id)
	if err != nil {
		return Status{}, err
	}
	return statusOf(run), nil
}

// GetResult returns the finished plan. It returns ErrNotReady while the run
// is processing, an error wrapping ErrRunFailed for a failed run, and
// storage.ErrNotFound for an unknown id.
func (m *Manager) GetResult(ctx context.Context, id string) (*trip.FinishedPlan, error) {
	run, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch run.Status {
	case storage.StatusCompleted:
		if run.Result == nil {
			return nil, fmt.Errorf("run %s completed without a result", id)
		}
		return run.Result, nil
	case storage.StatusFailed:
		return nil, fmt.Errorf("%w: %s", ErrRunFailed, run.Message)
	default:
		return nil, ErrNotReady
	}
}

// List returns the status of up to limit runs, newest first.
func (m *Manager) List(ctx context.Context, limit int) ([]Status, error) {
	runs, err := m.store.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(runs))
	for _, r := range runs {
		out = append(out, statusOf(r))
	}
	return out, nil
}

// Shutdown stops accepting runs and waits for the running ones. When ctx
// ends first, the runs are cancelled and stored as failed before Shutdown
// returns ctx's error.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.logger.Warn("Cancelling unfinished plan runs")
		m.cancel()
		<-done
		return ctx.Err()
	}
}
