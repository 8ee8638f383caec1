package switcher

// Phase is one state of the switch transaction state machine.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhasePreparing
	PhaseValidating
	PhaseEnteringCritical
	PhaseSavingState
	PhaseMigratingTasks
	PhaseActivatingNew
	PhaseExitingCritical
	PhaseVerifying
	PhaseComplete
	PhaseFailed
	PhaseRollingBack
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePreparing:
		return "preparing"
	case PhaseValidating:
		return "validating"
	case PhaseEnteringCritical:
		return "entering_critical"
	case PhaseSavingState:
		return "saving_state"
	case PhaseMigratingTasks:
		return "migrating_tasks"
	case PhaseActivatingNew:
		return "activating_new"
	case PhaseExitingCritical:
		return "exiting_critical"
	case PhaseVerifying:
		return "verifying"
	case PhaseComplete:
		return "complete"
	case PhaseFailed:
		return "failed"
	case PhaseRollingBack:
		return "rolling_back"
	default:
		return "unknown"
	}
}

// nextPhases lists the legal forward transitions. Failed is reachable from
// every non-terminal phase; RollingBack only from EnteringCritical onward,
// because nothing has been touched before that.
var nextPhases = map[Phase][]Phase{
	PhaseIdle:             {PhasePreparing},
	PhasePreparing:        {PhaseValidating, PhaseFailed},
	PhaseValidating:       {PhaseEnteringCritical, PhaseFailed},
	PhaseEnteringCritical: {PhaseSavingState, PhaseFailed, PhaseRollingBack},
	PhaseSavingState:      {PhaseMigratingTasks, PhaseFailed, PhaseRollingBack},
	PhaseMigratingTasks:   {PhaseActivatingNew, PhaseFailed, PhaseRollingBack},
	PhaseActivatingNew:    {PhaseExitingCritical, PhaseFailed, PhaseRollingBack},
	PhaseExitingCritical:  {PhaseVerifying, PhaseFailed, PhaseRollingBack},
	PhaseVerifying:        {PhaseComplete, PhaseFailed, PhaseRollingBack},
	PhaseComplete:         {PhaseIdle},
	PhaseFailed:           {PhaseIdle},
	PhaseRollingBack:      {PhaseIdle, PhaseFailed},
}

// canTransition reports whether from → to is a legal phase transition.
func canTransition(from, to Phase) bool {
	for _, p := range nextPhases[from] {
		if p == to {
			return true
		}
	}
	return false
}
