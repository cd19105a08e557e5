package trip

import "sync"

// DiagnosticNote is a provider-specific fact recorded for debugging, such
// as which parse path produced a schedule.
type DiagnosticNote struct {
	Stage  Stage  `json:"stage"`
	Source string `json:"source"`
	Detail string `json:"detail"`
}

// PlanState is the single mutable record threaded through every stage of
// one run. It is owned by one run; the mutex only guards concurrent day
// generation within that run.
type PlanState struct {
	mu sync.Mutex

	Request       PlanRequest
	Days          int
	Destination   string
	Info          DestinationInfo
	Weather       *WeatherSnapshot
	CulturalTips  []string
	Itinerary     []DayPlan
	Budget        *BudgetSummary
	Recommend     []string
	Collaboration *CollaborationPlan
	Stage         Stage

	errors      []StageError
	diagnostics []DiagnosticNote
}

// NewPlanState creates the state for a request.
func NewPlanState(req PlanRequest) *PlanState {
	return &PlanState{
		Request:     req,
		Destination: req.Destination,
		Stage:       StageValidating,
	}
}

// AddError appends a stage error.
func (s *PlanState) AddError(e StageError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, e)
}

// Errors returns a copy of the accumulated stage errors.
func (s *PlanState) Errors() []StageError {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StageError, len(s.errors))
	copy(out, s.errors)
	return out
}

// Note records a diagnostic note.
func (s *PlanState) Note(stage Stage, source, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diagnostics = append(s.diagnostics, DiagnosticNote{Stage: stage, Source: source, Detail: detail})
}

// Diagnostics returns a copy of the recorded notes.
func (s *PlanState) Diagnostics() []DiagnosticNote {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DiagnosticNote, len(s.diagnostics))
	copy(out, s.diagnostics)
	return out
}

// SetDay stores the plan for a 1-based day.
func (s *PlanState) SetDay(d DayPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.Day < 1 || d.Day > len(s.Itinerary) {
		return
	}
	s.Itinerary[d.Day-1] = d
}

// ActivityCosts flattens every activity cost of the itinerary.
func (s *PlanState) ActivityCosts() []float64 {
	var costs []float64
	for _, d := range s.Itinerary {
		for _, a := range d.Activities {
			costs = append(costs, a.Cost)
		}
	}
	return costs
}
