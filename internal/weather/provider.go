package weather

import "context"

// Fetcher abstracts the backend weather-aggregation service.
// Fetch returns the provider results for one collection mode in server order.
type Fetcher interface {
	Fetch(ctx context.Context, mode Mode) ([]ProviderResult, error)
}

// Store is the contract the in-memory dashboard store must satisfy.
type Store interface {
	// BeginCycle makes id the current cycle and resets every mode to Idle.
	BeginCycle(id string)
	// SetState stores state for mode unless cycleID is no longer current.
	SetState(cycleID string, mode Mode, state ViewState) error
	State(mode Mode) ViewState
	CurrentCycle() string
	// InProgress reports whether the current cycle is still unsaved.
	InProgress() bool

	// SaveCycle records a finished cycle; saving the current one ends it.
	SaveCycle(c Cycle)
	Cycles() []Cycle
}
