package weather

import "time"

// Phase tags the variant held by a ViewState.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseLoading   Phase = "loading"
	PhasePopulated Phase = "populated"
	PhaseFailed    Phase = "failed"
)

// ViewState is the per-mode display state. It is one of Idle, Loading,
// Populated(results) or Failed(err); values are only built through those
// constructors, so loading with leftover results cannot occur.
type ViewState struct {
	phase   Phase
	results []ProviderResult
	err     error
}

func Idle() ViewState {
	return ViewState{phase: PhaseIdle}
}

func Loading() ViewState {
	return ViewState{phase: PhaseLoading}
}

// Populated holds a copy of results in server order. Zero results is a valid
// populated state.
func Populated(results []ProviderResult) ViewState {
	cp := make([]ProviderResult, len(results))
	copy(cp, results)
	return ViewState{phase: PhasePopulated, results: cp}
}

func Failed(err error) ViewState {
	return ViewState{phase: PhaseFailed, err: err}
}

// Phase returns the variant tag. The zero ViewState is Idle.
func (v ViewState) Phase() Phase {
	if v.phase == "" {
		return PhaseIdle
	}
	return v.phase
}

// Results returns the populated results, or nil for every other phase.
func (v ViewState) Results() []ProviderResult {
	if v.phase != PhasePopulated {
		return nil
	}
	return v.results
}

// Err returns the failure cause for Failed, nil otherwise.
func (v ViewState) Err() error {
	return v.err
}

func (v ViewState) IsLoading() bool {
	return v.phase == PhaseLoading
}

// Settled reports whether the state is Populated or Failed.
func (v ViewState) Settled() bool {
	return v.phase == PhasePopulated || v.phase == PhaseFailed
}

// Trigger names what started a collection cycle.
type Trigger string

const (
	TriggerButton   Trigger = "button"
	TriggerAPI      Trigger = "api"
	TriggerSchedule Trigger = "schedule"
)

// ModeOutcome records how one mode settled within a cycle.
type ModeOutcome struct {
	Phase Phase  `json:"phase"`
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

// Cycle is one completed collection run.
type Cycle struct {
	ID         string               `json:"id"`
	Trigger    Trigger              `json:"trigger"`
	StartedAt  time.Time            `json:"startedAt"`
	FinishedAt time.Time            `json:"finishedAt"`
	Outcomes   map[Mode]ModeOutcome `json:"outcomes"`
}

// OutcomeOf summarises a settled ViewState for the cycle history.
func OutcomeOf(v ViewState) ModeOutcome {
	o := ModeOutcome{Phase: v.Phase(), Count: len(v.Results())}
	if err := v.Err(); err != nil {
		o.Error = err.Error()
	}
	return o
}
