package dashboard

import (
	"github.com/i474232898/weather-dashboard/internal/card"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

// Column is the rendered state of one collection mode.
type Column struct {
	Mode    weather.Mode    `json:"mode"`
	Title   string          `json:"title"`
	Phase   weather.Phase   `json:"phase"`
	Loading bool            `json:"loading"`
	Cards   []card.Card     `json:"cards"`
	Summary weather.Summary `json:"summary"`
}

// Dashboard is everything the page shows, columns in weather.Modes order.
type Dashboard struct {
	CycleID string `json:"cycleId,omitempty"`
	// InProgress is set from BeginCycle until the cycle is saved, including
	// the sync delay when no column is Loading.
	InProgress bool     `json:"inProgress"`
	Columns    []Column `json:"columns"`
}

// Loading reports whether the page is still waiting on the backend: a cycle
// is running or a column has a request in flight.
func (d Dashboard) Loading() bool {
	if d.InProgress {
		return true
	}
	for _, c := range d.Columns {
		if c.Loading {
			return true
		}
	}
	return false
}

// Column returns the column for mode.
func (d Dashboard) Column(mode weather.Mode) (Column, bool) {
	for _, c := range d.Columns {
		if c.Mode == mode {
			return c, true
		}
	}
	return Column{}, false
}
