package store

import (
	"errors"
	"sync"
	"time"

	"github.com/i474232898/weather-dashboard/internal/weather"
)

var (
	// ErrStaleCycle is returned when a state update belongs to a superseded cycle.
	ErrStaleCycle = errors.New("cycle superseded by a newer one")
)

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
// Nothing survives a restart.
type MemoryStore struct {
	mu sync.RWMutex

	cycleID string
	running string // current cycle until it is saved
	states  map[weather.Mode]weather.ViewState

	history []weather.Cycle

	// retention configuration
	maxHistory int           // max number of cycles kept
	maxAge     time.Duration // optional max age of cycles

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		states:     make(map[weather.Mode]weather.ViewState),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// BeginCycle makes id current and resets every known mode to Idle.
func (s *MemoryStore) BeginCycle(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cycleID = id
	s.running = id
	for _, m := range weather.Modes {
		s.states[m] = weather.Idle()
	}
}

// SetState stores state for mode if cycleID is still current.
func (s *MemoryStore) SetState(cycleID string, mode weather.Mode, state weather.ViewState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cycleID != s.cycleID {
		return ErrStaleCycle
	}
	s.states[mode] = state
	return nil
}

// State returns the current state for mode; unknown modes are Idle.
func (s *MemoryStore) State(mode weather.Mode) weather.ViewState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.states[mode]
}

func (s *MemoryStore) CurrentCycle() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cycleID
}

// InProgress reports whether the current cycle has begun but not been saved.
func (s *MemoryStore) InProgress() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.running != ""
}

// SaveCycle appends a finished cycle and enforces retention.
func (s *MemoryStore) SaveCycle(c weather.Cycle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == s.running {
		s.running = ""
	}
	s.history = append(s.history, c)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(s.history) > s.maxHistory {
		over := len(s.history) - s.maxHistory
		s.history = s.history[over:]
	}

	// Enforce retention by age.
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		i := 0
		for ; i < len(s.history); i++ {
			if !s.history[i].FinishedAt.Before(cutoff) {
				break
			}
		}
		s.history = s.history[i:]
	}
}

// Cycles returns the retained history, oldest first.
func (s *MemoryStore) Cycles() []weather.Cycle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]weather.Cycle, len(s.history))
	copy(out, s.history)
	return out
}
