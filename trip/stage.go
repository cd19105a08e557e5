package trip

// Stage is a step of the plan-generation pipeline.
type Stage string

const (
	StageValidating       Stage = "validating"
	StageAnalyzing        Stage = "analyzing"
	StagePlanning         Stage = "planning"
	StageBudgetOptimizing Stage = "budget_optimizing"
	StagePersonalizing    Stage = "personalizing"
	StageCollaborating    Stage = "collaborating"
	StageFinalizing       Stage = "finalizing"
	StageDone             Stage = "done"
	StageFailed           Stage = "failed"
)

// stageOrder lists the non-terminal stages in execution order.
var stageOrder = []Stage{
	StageValidating,
	StageAnalyzing,
	StagePlanning,
	StageBudgetOptimizing,
	StagePersonalizing,
	StageCollaborating,
	StageFinalizing,
}

// Stages returns the ordered stages a run passes through before Done.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// IsValid returns true if s is a known stage.
func (s Stage) IsValid() bool {
	switch s {
	case StageValidating, StageAnalyzing, StagePlanning, StageBudgetOptimizing,
		StagePersonalizing, StageCollaborating, StageFinalizing, StageDone, StageFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for Done and Failed.
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

// CanTransitionTo returns true if the pipeline may move from s to target.
// Any running stage may jump to Finalizing when the run deadline expires.
func (s Stage) CanTransitionTo(target Stage) bool {
	switch s {
	case StageValidating:
		return target == StageAnalyzing || target == StageFailed
	case StageAnalyzing:
		return target == StagePlanning || target == StageFinalizing
	case StagePlanning:
		return target == StageBudgetOptimizing || target == StageFinalizing
	case StageBudgetOptimizing:
		return target == StagePersonalizing || target == StageFinalizing
	case StagePersonalizing:
		return target == StageCollaborating || target == StageFinalizing
	case StageCollaborating:
		return target == StageFinalizing
	case StageFinalizing:
		return target == StageDone || target == StageFailed
	case StageDone, StageFailed:
		return false
	default:
		return false
	}
}

// Next returns the stage following s in normal execution.
func (s Stage) Next() Stage {
	for i, st := range stageOrder {
		if st == s && i+1 < len(stageOrder) {
			return stageOrder[i+1]
		}
	}
	if s == StageFinalizing {
		return StageDone
	}
	return s
}

// Percent is the progress reported once the stage has completed.
func (s Stage) Percent() int {
	switch s {
	case StageValidating:
		return 10
	case StageAnalyzing:
		return 25
	case StagePlanning:
		return 60
	case StageBudgetOptimizing:
		return 70
	case StagePersonalizing:
		return 80
	case StageCollaborating:
		return 90
	case StageFinalizing, StageDone:
		return 100
	default:
		return 0
	}
}
