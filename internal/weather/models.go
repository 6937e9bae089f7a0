package weather

import "fmt"

// ProviderName identifies an external weather data source as reported by the backend.
type ProviderName string

const (
	ProviderWeatherBit     ProviderName = "WeatherBit"
	ProviderWeatherAPI     ProviderName = "WeatherAPI"
	ProviderOpenWeatherMap ProviderName = "OpenWeatherMap"
)

// KnownProviders is the fixed set of provider identifiers the backend reports.
var KnownProviders = []ProviderName{
	ProviderWeatherBit,
	ProviderWeatherAPI,
	ProviderOpenWeatherMap,
}

// IsKnown reports whether p belongs to KnownProviders.
func (p ProviderName) IsKnown() bool {
	for _, k := range KnownProviders {
		if k == p {
			return true
		}
	}
	return false
}

// ProviderResult is one reading from one provider, as returned by the backend.
// Times are milliseconds since the Unix epoch and are displayed verbatim;
// EndTime >= StartTime and ResponseTime == EndTime-StartTime are not enforced.
type ProviderResult struct {
	APIProviderName ProviderName `json:"apiProviderName"`
	Temperature     float64      `json:"temperature"` // Celsius
	StartTime       int64        `json:"startTime"`
	EndTime         int64        `json:"endTime"`
	ResponseTime    int64        `json:"responseTime"`
}

// Mode is a backend collection strategy; each mode gets its own dashboard column.
type Mode string

const (
	ModeAsync Mode = "async"
	ModeSync  Mode = "sync"
)

// Modes lists the modes in column order.
var Modes = []Mode{ModeAsync, ModeSync}

// Title returns the column heading for the mode.
func (m Mode) Title() string {
	switch m {
	case ModeAsync:
		return "Multithreading Response"
	case ModeSync:
		return "Single Thread Response"
	default:
		return string(m)
	}
}

// ParseMode converts a string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAsync, ModeSync:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}
