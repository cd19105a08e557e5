// Package pipeline runs a plan request through the ordered planning stages.
// Every stage reads and writes one PlanState. Provider failures inside a
// stage are recorded as stage errors and replaced by fallback data, so a
// run only fails on an invalid request or an unusable final plan.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/semtrip/budget"
	"github.com/c360studio/semtrip/guide"
	"github.com/c360studio/semtrip/llm"
	"github.com/c360studio/semtrip/seed"
	"github.com/c360studio/semtrip/trip"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/c360studio/semtrip/pipeline"

// ErrRunDeadline is recorded when the per-run deadline cut stages short.
var ErrRunDeadline = errors.New("run deadline exceeded")

// LLM is the subset of the LLM client used by the stages.
type LLM interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// WeatherSource produces the weather snapshot for a trip. It never fails.
type WeatherSource interface {
	ForTrip(ctx context.Context, city string, start trip.Date, days int) *trip.WeatherSnapshot
}

// Locator turns a free-text place into a location. It never fails.
type Locator interface {
	Resolve(ctx context.Context, name, destination string) trip.ResolvedLocation
}

// GuideLoader fetches a destination guide.
type GuideLoader interface {
	Load(ctx context.Context, rawURL string) (*guide.Guide, error)
}

// Progress is reported after each stage and each planned day.
type Progress struct {
	Stage   trip.Stage `json:"stage"`
	Percent int        `json:"percent"`
	Message string     `json:"message"`
	Day     int        `json:"day,omitempty"`
}

// ProgressFunc receives progress updates. It is called from the run's
// goroutine and, with day concurrency, from day workers.
type ProgressFunc func(Progress)

// Config tunes the orchestrator.
type Config struct {
	// RunTimeout bounds the enrichment stages. Zero means no deadline.
	RunTimeout time.Duration

	// DayConcurrency is how many days are planned at once.
	DayConcurrency int

	// MaxTripDays rejects longer requests during validation.
	MaxTripDays int
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		RunTimeout:     5 * time.Minute,
		DayConcurrency: 1,
		MaxTripDays:    trip.DefaultMaxTripDays,
	}
}

// Deps are the collaborators of the stages. LLM and Locator are required;
// the rest fall back to built-in data when nil.
type Deps struct {
	LLM     LLM
	Weather WeatherSource
	Locator Locator
	Guides  GuideLoader
	Seeds   *seed.Store
	Budget  *budget.Aggregator
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer sets the tracer used for run and stage spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// WithClock overrides time.Now for plan timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Orchestrator sequences the planning stages.
type Orchestrator struct {
	cfg     Config
	deps    Deps
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// New creates an orchestrator.
func New(cfg Config, deps Deps, opts ...Option) (*Orchestrator, error) {
	if deps.LLM == nil {
		return nil, fmt.Errorf("pipeline: LLM client is required")
	}
	if deps.Locator == nil {
		return nil, fmt.Errorf("pipeline: locator is required")
	}
	if cfg.DayConcurrency < 1 {
		cfg.DayConcurrency = 1
	}
	if cfg.MaxTripDays < 1 {
		cfg.MaxTripDays = trip.DefaultMaxTripDays
	}

	o := &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.deps.Seeds == nil {
		seeds, err := seed.NewStore("", o.logger)
		if err != nil {
			return nil, fmt.Errorf("load seed data: %w", err)
		}
		o.deps.Seeds = seeds
	}
	if o.deps.Budget == nil {
		agg, err := budget.NewAggregator(budget.DefaultRules())
		if err != nil {
			return nil, fmt.Errorf("build budget rules: %w", err)
		}
		o.deps.Budget = agg
	}
	return o, nil
}

// stage is one enrichment step. A returned error is recorded and the run
// continues; the stage has already put fallback data in place.
type stage struct {
	id      trip.Stage
	message string
	run     func(ctx context.Context, s *trip.PlanState, report ProgressFunc) error
}

func (o *Orchestrator) stages() []stage {
	return []stage{
		{trip.StageAnalyzing, "目的地分析完成", o.analyze},
		{trip.StagePlanning, "行程规划完成", o.plan},
		{trip.StageBudgetOptimizing, "预算优化完成", o.optimizeBudget},
		{trip.StagePersonalizing, "个性化推荐完成", o.personalize},
		{trip.StageCollaborating, "协作方案完成", o.collaborate},
	}
}

// Run plans req without progress reporting.
func (o *Orchestrator) Run(ctx context.Context, req trip.PlanRequest) (*trip.FinishedPlan, error) {
	return o.RunWithProgress(ctx, req, nil)
}

// RunWithProgress plans req and reports progress to report when it is not
// nil. The returned error is always a *trip.PlanFailure.
func (o *Orchestrator) RunWithProgress(ctx context.Context, req trip.PlanRequest, report ProgressFunc) (*trip.FinishedPlan, error) {
	if report == nil {
		report = func(Progress) {}
	}

	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("destination", req.Destination),
	))
	defer span.End()

	req = req.Normalized()
	if err := req.ValidateWithin(o.cfg.MaxTripDays); err != nil {
		o.metrics.finished(trip.StageFailed)
		span.SetStatus(codes.Error, err.Error())
		report(Progress{Stage: trip.StageFailed, Message: err.Error()})
		return nil, &trip.PlanFailure{Stage: trip.StageValidating, Err: err}
	}

	state := trip.NewPlanState(req)
	state.Days = req.Days()
	state.Itinerary = make([]trip.DayPlan, state.Days)
	report(Progress{Stage: trip.StageValidating, Percent: trip.StageValidating.Percent(), Message: "请求校验通过"})

	o.logger.Info("Plan run started",
		"destination", state.Destination,
		"days", state.Days,
		"party_size", req.PartySize,
		"tier", req.Tier)

	runCtx := ctx
	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	for _, st := range o.stages() {
		if runCtx.Err() != nil {
			o.recordError(state, st.id, fmt.Errorf("skipped %s and later stages: %w", st.id, interrupted(runCtx)))
			break
		}
		o.runStage(runCtx, state, st, report)
	}

	plan, err := o.finalize(ctx, state)
	if err != nil {
		o.metrics.finished(trip.StageFailed)
		span.SetStatus(codes.Error, err.Error())
		report(Progress{Stage: trip.StageFailed, Message: err.Error()})
		return nil, err
	}

	report(Progress{Stage: trip.StageFinalizing, Percent: trip.StageFinalizing.Percent(), Message: "行程整理完成"})
	state.Stage = trip.StageDone
	o.metrics.finished(trip.StageDone)
	span.SetAttributes(attribute.Int("stage_errors", len(plan.Errors)))
	report(Progress{Stage: trip.StageDone, Percent: trip.StageDone.Percent(), Message: "行程规划完成"})

	o.logger.Info("Plan run finished",
		"plan_id", plan.PlanID,
		"destination", plan.Destination,
		"days", len(plan.Itinerary),
		"budget", plan.BudgetEstimate,
		"stage_errors", len(plan.Errors))
	return plan, nil
}

// runStage executes one stage, turning a returned error or a panic into a
// recorded stage error.
func (o *Orchestrator) runStage(ctx context.Context, state *trip.PlanState, st stage, report ProgressFunc) {
	state.Stage = st.id
	ctx, span := o.tracer.Start(ctx, "pipeline.stage", trace.WithAttributes(
		attribute.String("stage", st.id.String()),
	))
	defer span.End()

	started := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("stage panicked: %v", r)
			}
		}()
		return st.run(ctx, state, report)
	}()
	o.metrics.observe(st.id, time.Since(started))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.recordError(state, st.id, err)
	}
	report(Progress{Stage: st.id, Percent: st.id.Percent(), Message: st.message})
}

// recordError appends a stage error and logs it.
func (o *Orchestrator) recordError(state *trip.PlanState, stage trip.Stage, err error) {
	state.AddError(trip.NewStageError(stage, err))
	o.metrics.stageError(stage)
	o.logger.Warn("Stage fell back to default data",
		"stage", stage,
		"destination", state.Destination,
		"error", err)
}

// finalize assembles the finished plan from whatever the stages produced.
// Missing days are filled from the template and a missing budget is
// computed, so a deadline-cut run still yields a complete plan.
func (o *Orchestrator) finalize(ctx context.Context, state *trip.PlanState) (*trip.FinishedPlan, error) {
	state.Stage = trip.StageFinalizing
	_, span := o.tracer.Start(ctx, "pipeline.stage", trace.WithAttributes(
		attribute.String("stage", trip.StageFinalizing.String()),
	))
	defer span.End()

	req := state.Request
	if state.Destination == "" || req.StartDate.IsZero() || req.EndDate.IsZero() {
		return nil, &trip.PlanFailure{
			Stage:  trip.StageFinalizing,
			Err:    errors.New("plan has no destination or dates"),
			Errors: state.Errors(),
		}
	}

	for i := range state.Itinerary {
		if state.Itinerary[i].Day == 0 {
			state.Itinerary[i] = o.templateDay(state, i+1)
			state.Note(trip.StageFinalizing, "placeholder", fmt.Sprintf("day %d filled from template", i+1))
		}
	}
	if state.Budget == nil {
		summary := o.deps.Budget.Aggregate(state.Itinerary, req.Tier, req.PartySize)
		state.Budget = &summary
	}
	if state.Recommend == nil {
		state.Recommend = []string{}
	}
	if state.CulturalTips == nil {
		state.CulturalTips = []string{}
	}

	info := state.Info
	plan := &trip.FinishedPlan{
		PlanID:          uuid.New().String(),
		Title:           state.Destination + "之旅",
		Destination:     state.Destination,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		PartySize:       req.PartySize,
		Tier:            req.Tier,
		BudgetEstimate:  state.Budget.AdjustedTotal,
		Itinerary:       state.Itinerary,
		Recommendations: state.Recommend,
		Weather:         state.Weather,
		CulturalTips:    state.CulturalTips,
		Info:            &info,
		Budget:          *state.Budget,
		Collaboration:   state.Collaboration,
		Errors:          state.Errors(),
		CreatedAt:       o.now().UTC(),
	}
	return plan, nil
}
