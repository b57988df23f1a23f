package features

// Stage is a step of the reconstruction pipeline. Stages run in declaration
// order; a stage may read what earlier stages produced in the same pass.
type Stage int

const (
	StageCalendar Stage = iota + 1
	StageLag
	StageRolling
	StageDerived
	StageReindex
)

// Stages lists the producing stages in execution order.
var Stages = []Stage{StageCalendar, StageLag, StageRolling, StageDerived}

func (s Stage) String() string {
	switch s {
	case StageCalendar:
		return "calendar"
	case StageLag:
		return "lag"
	case StageRolling:
		return "rolling"
	case StageDerived:
		return "derived"
	case StageReindex:
		return "reindex"
	default:
		return "unknown"
	}
}
