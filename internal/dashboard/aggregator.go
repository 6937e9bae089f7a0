package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/weather-dashboard/internal/card"
	"github.com/i474232898/weather-dashboard/internal/store"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"

	defaultSyncDelay    = time.Second
	defaultCycleTimeout = 30 * time.Second
)

// Recorder receives fetch and cycle measurements.
type Recorder interface {
	ObserveFetch(mode, outcome string, d time.Duration)
	IncCycle(trigger string)
	IncStale(mode string)
}

// Config holds the timing and display settings of the Aggregator.
type Config struct {
	// SyncDelay is how long the sync request waits after the async one is
	// issued. Non-positive values fall back to one second.
	SyncDelay time.Duration
	// CycleTimeout bounds background cycles started with Trigger.
	CycleTimeout time.Duration
	// Location is the display time zone for card timestamps.
	Location *time.Location
}

// Option customises an Aggregator.
type Option func(*Aggregator)

// WithClock replaces the real clock used for the sync delay.
func WithClock(c Clock) Option {
	return func(a *Aggregator) { a.clock = c }
}

// WithIDGenerator replaces uuid-based cycle ids.
func WithIDGenerator(f func() string) Option {
	return func(a *Aggregator) { a.newID = f }
}

// Aggregator owns the per-mode view state and runs collection cycles against the backend.
type Aggregator struct {
	fetcher weather.Fetcher
	store   weather.Store
	logos   *card.LogoCatalog
	metrics Recorder
	logger  *zap.Logger
	cfg     Config

	clock Clock
	newID func() string

	// background cycles started by Trigger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Aggregator.
func New(
	fetcher weather.Fetcher,
	st weather.Store,
	logos *card.LogoCatalog,
	metrics Recorder,
	logger *zap.Logger,
	cfg Config,
	opts ...Option,
) *Aggregator {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.SyncDelay <= 0 {
		cfg.SyncDelay = defaultSyncDelay
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = defaultCycleTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Aggregator{
		fetcher: fetcher,
		store:   st,
		logos:   logos,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		clock:   RealClock(),
		newID:   uuid.NewString,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FetchAsync loads the async column. Failures are logged and leave the column
// Failed; they are never returned.
func (a *Aggregator) FetchAsync(ctx context.Context) {
	a.fetchMode(ctx, a.store.CurrentCycle(), weather.ModeAsync, nil)
}

// FetchSync loads the sync column with the same contract as FetchAsync.
// The column is Loading while its request is in flight.
func (a *Aggregator) FetchSync(ctx context.Context) {
	a.fetchMode(ctx, a.store.CurrentCycle(), weather.ModeSync, nil)
}

// HandleGetWeatherData runs one full collection cycle and returns once both
// columns have settled. The async request is issued at once; the sync request
// is issued after SyncDelay.
func (a *Aggregator) HandleGetWeatherData(ctx context.Context, trigger weather.Trigger) weather.Cycle {
	id, started := a.begin(trigger)
	return a.collect(ctx, id, trigger, started)
}

// Trigger starts a cycle in the background and returns its id. Both columns
// are reset before Trigger returns.
func (a *Aggregator) Trigger(trigger weather.Trigger) string {
	id, started := a.begin(trigger)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(a.ctx, a.cfg.CycleTimeout)
		defer cancel()

		a.collect(ctx, id, trigger, started)
	}()

	return id
}

// Close cancels background cycles and waits for them to finish.
func (a *Aggregator) Close() {
	a.cancel()
	a.wg.Wait()
}

// Snapshot renders the current state of both columns.
func (a *Aggregator) Snapshot() Dashboard {
	d := Dashboard{
		CycleID:    a.store.CurrentCycle(),
		InProgress: a.store.InProgress(),
		Columns: make([]Column, 0, len(weather.Modes)),
	}
	for _, mode := range weather.Modes {
		state := a.store.State(mode)
		results := state.Results()
		d.Columns = append(d.Columns, Column{
			Mode:    mode,
			Title:   mode.Title(),
			Phase:   state.Phase(),
			Loading: state.IsLoading(),
			Cards:   card.RenderAll(results, a.logos, a.cfg.Location),
			Summary: weather.Summarize(results),
		})
	}
	return d
}

// Cycles returns the retained cycle history, oldest first.
func (a *Aggregator) Cycles() []weather.Cycle {
	return a.store.Cycles()
}

func (a *Aggregator) begin(trigger weather.Trigger) (string, time.Time) {
	id := a.newID()
	a.store.BeginCycle(id)
	a.metrics.IncCycle(string(trigger))
	a.logger.Info("collection cycle started", zap.String("cycle", id), zap.String("trigger", string(trigger)))
	return id, time.Now().UTC()
}

func (a *Aggregator) collect(ctx context.Context, id string, trigger weather.Trigger, started time.Time) weather.Cycle {
	var g errgroup.Group
	var asyncState, syncState weather.ViewState

	// The sync delay starts only once the async request is on its way.
	dispatched := make(chan struct{})
	markDispatched := sync.OnceFunc(func() { close(dispatched) })

	g.Go(func() error {
		defer markDispatched()
		asyncState = a.fetchMode(ctx, id, weather.ModeAsync, markDispatched)
		return nil
	})
	g.Go(func() error {
		<-dispatched
		if err := delay(ctx, a.clock, a.cfg.SyncDelay); err != nil {
			syncState = a.settle(id, weather.ModeSync, nil, err)
			return nil
		}
		syncState = a.fetchMode(ctx, id, weather.ModeSync, nil)
		return nil
	})
	// Branches report failures through their view state, never through g.
	_ = g.Wait()

	cycle := weather.Cycle{
		ID:         id,
		Trigger:    trigger,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Outcomes: map[weather.Mode]weather.ModeOutcome{
			weather.ModeAsync: weather.OutcomeOf(asyncState),
			weather.ModeSync:  weather.OutcomeOf(syncState),
		},
	}
	a.store.SaveCycle(cycle)

	a.logger.Info("collection cycle completed",
		zap.String("cycle", id),
		zap.Duration("duration", cycle.FinishedAt.Sub(started)),
		zap.Int("async_count", cycle.Outcomes[weather.ModeAsync].Count),
		zap.Int("sync_count", cycle.Outcomes[weather.ModeSync].Count),
	)
	return cycle
}

// fetchMode moves mode through Loading to Populated or Failed and returns the
// settled state. onDispatch, when set, runs right before the backend call.
func (a *Aggregator) fetchMode(ctx context.Context, cycleID string, mode weather.Mode, onDispatch func()) weather.ViewState {
	if !a.set(cycleID, mode, weather.Loading()) {
		return weather.Idle()
	}
	if onDispatch != nil {
		onDispatch()
	}

	start := time.Now()
	results, err := a.fetcher.Fetch(ctx, mode)
	elapsed := time.Since(start)

	if err != nil {
		a.metrics.ObserveFetch(string(mode), outcomeFailure, elapsed)
	} else {
		a.metrics.ObserveFetch(string(mode), outcomeSuccess, elapsed)
	}

	return a.settle(cycleID, mode, results, err)
}

func (a *Aggregator) settle(cycleID string, mode weather.Mode, results []weather.ProviderResult, err error) weather.ViewState {
	state := weather.Populated(results)
	if err != nil {
		a.logger.Error("error fetching weather data",
			zap.String("cycle", cycleID),
			zap.String("mode", string(mode)),
			zap.Error(err),
		)
		state = weather.Failed(err)
	}

	a.set(cycleID, mode, state)
	return state
}

// set stores state unless the cycle has been superseded.
func (a *Aggregator) set(cycleID string, mode weather.Mode, state weather.ViewState) bool {
	err := a.store.SetState(cycleID, mode, state)
	if err == nil {
		return true
	}
	if errors.Is(err, store.ErrStaleCycle) {
		a.metrics.IncStale(string(mode))
		a.logger.Debug("dropping stale response",
			zap.String("cycle", cycleID),
			zap.String("mode", string(mode)),
			zap.String("phase", string(state.Phase())),
		)
		return false
	}
	a.logger.Error("failed to store view state", zap.String("mode", string(mode)), zap.Error(err))
	return false
}
