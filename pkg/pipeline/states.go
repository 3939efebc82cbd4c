package pipeline

// State is a job's position in its lifecycle. Transitions are validated;
// a job can never move out of a terminal state or skip backwards.
type State string

const (
	StateQueued       State = "queued"
	StateDownloading  State = "downloading"
	StateSplitting    State = "splitting"
	StateTranscribing State = "transcribing"
	StateMerging      State = "merging"
	StateRendering    State = "rendering"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
)

// validTransitions is the full lifecycle graph. Cancellation is reachable
// from every non-terminal state; failure only from the states that can
// actually fail.
var validTransitions = map[State][]State{
	StateQueued:       {StateDownloading, StateSplitting, StateFailed, StateCancelled},
	StateDownloading:  {StateSplitting, StateFailed, StateCancelled},
	StateSplitting:    {StateTranscribing, StateFailed, StateCancelled},
	StateTranscribing: {StateMerging, StateFailed, StateCancelled},
	StateMerging:      {StateRendering, StateCancelled},
	StateRendering:    {StateCompleted, StateFailed, StateCancelled},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the state ends the job's lifecycle.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

func (s State) String() string {
	return string(s)
}
