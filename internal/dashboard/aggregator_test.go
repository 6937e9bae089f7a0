package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/i474232898/weather-dashboard/internal/backend"
	"github.com/i474232898/weather-dashboard/internal/card"
	"github.com/i474232898/weather-dashboard/internal/metrics"
	"github.com/i474232898/weather-dashboard/internal/store"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu        sync.Mutex
	now       time.Duration
	waiters   []fakeWaiter
	requested []time.Duration
}

type fakeWaiter struct {
	deadline time.Duration
	ch       chan time.Time
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	c.requested = append(c.requested, d)
	c.waiters = append(c.waiters, fakeWaiter{deadline: c.now + d, ch: ch})
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now += d
	pending := c.waiters[:0]
	for _, w := range c.waiters {
		if w.deadline <= c.now {
			w.ch <- time.Unix(0, 0).Add(c.now)
			continue
		}
		pending = append(pending, w)
	}
	c.waiters = pending
}

func (c *fakeClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func (c *fakeClock) Requested() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.requested...)
}

// instantClock fires every timer immediately.
type instantClock struct{}

func (instantClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

type reply struct {
	results []weather.ProviderResult
	err     error
}

type call struct {
	mode  weather.Mode
	reply chan reply
}

// gatedFetcher hands every backend call to the test, which answers it.
type gatedFetcher struct {
	calls chan call
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{calls: make(chan call, 16)}
}

func (f *gatedFetcher) Fetch(ctx context.Context, mode weather.Mode) ([]weather.ProviderResult, error) {
	c := call{mode: mode, reply: make(chan reply, 1)}
	f.calls <- c
	select {
	case r := <-c.reply:
		return r.results, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *gatedFetcher) next(t *testing.T) call {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(waitFor):
		t.Fatal("expected a backend call")
		return call{}
	}
}

func (f *gatedFetcher) assertNoCall(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected %s backend call", c.mode)
	case <-time.After(50 * time.Millisecond):
	}
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, mode weather.Mode) ([]weather.ProviderResult, error) {
	args := m.Called(ctx, mode)
	results, _ := args.Get(0).([]weather.ProviderResult)
	return results, args.Error(1)
}

func newTestAggregator(t *testing.T, f weather.Fetcher, logger *zap.Logger, opts ...Option) (*Aggregator, *metrics.Metrics) {
	t.Helper()

	logos, err := card.NewLogoCatalog(map[string]string{
		"WeatherBit": "/static/logos/weatherbit.svg",
	}, "/static/logos/placeholder.svg")
	require.NoError(t, err)

	m := metrics.New()
	a := New(f, store.NewMemoryStore(10, time.Hour), logos, m, logger, Config{
		SyncDelay:    time.Second,
		CycleTimeout: 5 * time.Second,
		Location:     time.UTC,
	}, opts...)
	t.Cleanup(a.Close)
	return a, m
}

func column(t *testing.T, a *Aggregator, mode weather.Mode) Column {
	t.Helper()
	c, ok := a.Snapshot().Column(mode)
	require.True(t, ok)
	return c
}

func sequentialIDs() func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("cycle-%d", n)
	}
}

func TestHandleGetWeatherDataRendersResultsInOrder(t *testing.T) {
	asyncResults := []weather.ProviderResult{
		{APIProviderName: weather.ProviderWeatherBit, Temperature: 21, StartTime: 1000, EndTime: 1050, ResponseTime: 50},
		{APIProviderName: weather.ProviderOpenWeatherMap, Temperature: 20, StartTime: 1000, EndTime: 1120, ResponseTime: 120},
		{APIProviderName: weather.ProviderWeatherAPI, Temperature: 22, StartTime: 1001, EndTime: 1090, ResponseTime: 89},
	}

	f := new(mockFetcher)
	f.On("Fetch", mock.Anything, weather.ModeAsync).Return(asyncResults, nil).Once()
	f.On("Fetch", mock.Anything, weather.ModeSync).Return([]weather.ProviderResult{}, nil).Once()

	a, m := newTestAggregator(t, f, zap.NewNop(), WithClock(instantClock{}))

	cycle := a.HandleGetWeatherData(context.Background(), weather.TriggerButton)
	f.AssertExpectations(t)

	async := column(t, a, weather.ModeAsync)
	assert.Equal(t, weather.PhasePopulated, async.Phase)
	assert.False(t, async.Loading)
	require.Len(t, async.Cards, 3)
	for i, r := range asyncResults {
		assert.Equal(t, string(r.APIProviderName), async.Cards[i].ProviderName)
	}
	assert.Equal(t, card.Card{
		LogoURL:      "/static/logos/weatherbit.svg",
		ProviderName: "WeatherBit",
		Temperature:  "Temperature: 21°C",
		StartTime:    "Start Time: 12:00:01 AM : 0ms",
		EndTime:      "End Time: 12:00:01 AM : 50ms",
		ResponseTime: "Response Time: 50ms",
	}, async.Cards[0])
	assert.Equal(t, "/static/logos/placeholder.svg", async.Cards[1].LogoURL)
	assert.Equal(t, 3, async.Summary.Count)

	syncCol := column(t, a, weather.ModeSync)
	assert.Equal(t, weather.PhasePopulated, syncCol.Phase)
	assert.False(t, syncCol.Loading)
	assert.Empty(t, syncCol.Cards)
	assert.Equal(t, "Single Thread Response", syncCol.Title)

	assert.Equal(t, weather.ModeOutcome{Phase: weather.PhasePopulated, Count: 3}, cycle.Outcomes[weather.ModeAsync])
	assert.Equal(t, weather.ModeOutcome{Phase: weather.PhasePopulated, Count: 0}, cycle.Outcomes[weather.ModeSync])
	assert.Equal(t, weather.TriggerButton, cycle.Trigger)
	require.Len(t, a.Cycles(), 1)
	assert.Equal(t, cycle.ID, a.Snapshot().CycleID)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues("async", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues("sync", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("button")))
}

func TestSyncIssuedOnlyAfterDelay(t *testing.T) {
	clock := &fakeClock{}
	f := newGatedFetcher()
	a, _ := newTestAggregator(t, f, zap.NewNop(), WithClock(clock))

	done := make(chan weather.Cycle, 1)
	go func() {
		done <- a.HandleGetWeatherData(context.Background(), weather.TriggerAPI)
	}()

	first := f.next(t)
	assert.Equal(t, weather.ModeAsync, first.mode, "async request is issued immediately")

	require.Eventually(t, func() bool { return clock.Waiters() == 1 }, waitFor, tick)
	assert.Equal(t, []time.Duration{time.Second}, clock.Requested())
	f.assertNoCall(t)

	clock.Advance(999 * time.Millisecond)
	f.assertNoCall(t)

	clock.Advance(time.Millisecond)
	second := f.next(t)
	assert.Equal(t, weather.ModeSync, second.mode)

	first.reply <- reply{results: []weather.ProviderResult{}}
	second.reply <- reply{results: []weather.ProviderResult{}}

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("HandleGetWeatherData did not return after both branches settled")
	}
}

// Pins the column lifecycle: sync stays idle during the delay and shows a
// loader only while its own request is in flight.
func TestLoadingPhasesAcrossCycle(t *testing.T) {
	clock := &fakeClock{}
	f := newGatedFetcher()
	a, _ := newTestAggregator(t, f, zap.NewNop(), WithClock(clock))

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.HandleGetWeatherData(context.Background(), weather.TriggerButton)
	}()

	asyncCall := f.next(t)
	require.Eventually(t, func() bool { return clock.Waiters() == 1 }, waitFor, tick)

	assert.True(t, column(t, a, weather.ModeAsync).Loading)
	syncCol := column(t, a, weather.ModeSync)
	assert.Equal(t, weather.PhaseIdle, syncCol.Phase)
	assert.False(t, syncCol.Loading)
	assert.Empty(t, syncCol.Cards)
	assert.True(t, a.Snapshot().Loading())

	clock.Advance(time.Second)
	syncCall := f.next(t)
	assert.True(t, column(t, a, weather.ModeSync).Loading)

	asyncCall.reply <- reply{results: []weather.ProviderResult{{APIProviderName: weather.ProviderWeatherBit}}}
	require.Eventually(t, func() bool {
		return column(t, a, weather.ModeAsync).Phase == weather.PhasePopulated
	}, waitFor, tick)
	assert.Len(t, column(t, a, weather.ModeAsync).Cards, 1)
	assert.True(t, column(t, a, weather.ModeSync).Loading, "sync settles independently")

	syncCall.reply <- reply{results: []weather.ProviderResult{}}
	<-done

	syncCol = column(t, a, weather.ModeSync)
	assert.Equal(t, weather.PhasePopulated, syncCol.Phase)
	assert.False(t, syncCol.Loading)
	assert.Empty(t, syncCol.Cards)
	assert.False(t, a.Snapshot().Loading())
}

// The page keeps refreshing while sync waits out its delay with async already
// settled, otherwise the sync results would never show up.
func TestDashboardLoadingDuringSyncDelay(t *testing.T) {
	clock := &fakeClock{}
	f := newGatedFetcher()
	a, _ := newTestAggregator(t, f, zap.NewNop(), WithClock(clock))

	a.Trigger(weather.TriggerButton)
	asyncCall := f.next(t)
	asyncCall.reply <- reply{results: []weather.ProviderResult{{APIProviderName: weather.ProviderWeatherBit}}}
	require.Eventually(t, func() bool {
		return column(t, a, weather.ModeAsync).Phase == weather.PhasePopulated
	}, waitFor, tick)

	snap := a.Snapshot()
	syncCol, _ := snap.Column(weather.ModeSync)
	assert.Equal(t, weather.PhaseIdle, syncCol.Phase)
	assert.False(t, syncCol.Loading)
	assert.True(t, snap.InProgress)
	assert.True(t, snap.Loading())
	assert.Empty(t, a.Cycles())

	require.Eventually(t, func() bool { return clock.Waiters() == 1 }, waitFor, tick)
	clock.Advance(time.Second)
	f.next(t).reply <- reply{results: []weather.ProviderResult{}}

	require.Eventually(t, func() bool { return len(a.Cycles()) == 1 }, waitFor, tick)
	snap = a.Snapshot()
	assert.False(t, snap.InProgress)
	assert.False(t, snap.Loading())
}

func TestZeroSyncDelayStillIssuesAsyncFirst(t *testing.T) {
	clock := &fakeClock{}
	f := newGatedFetcher()

	logos, err := card.NewLogoCatalog(nil, "/static/logos/placeholder.svg")
	require.NoError(t, err)
	a := New(f, store.NewMemoryStore(10, 0), logos, metrics.New(), zap.NewNop(), Config{}, WithClock(clock))
	t.Cleanup(a.Close)

	for i := 0; i < 20; i++ {
		a.Trigger(weather.TriggerAPI)

		first := f.next(t)
		require.Equal(t, weather.ModeAsync, first.mode, "cycle %d", i)
		require.Eventually(t, func() bool { return clock.Waiters() == 1 }, waitFor, tick)
		f.assertNoCall(t)

		clock.Advance(time.Second)
		second := f.next(t)
		require.Equal(t, weather.ModeSync, second.mode, "cycle %d", i)

		first.reply <- reply{results: []weather.ProviderResult{}}
		second.reply <- reply{results: []weather.ProviderResult{}}
		n := i + 1
		require.Eventually(t, func() bool { return len(a.Cycles()) == n }, waitFor, tick)
	}

	for _, d := range clock.Requested() {
		assert.Equal(t, time.Second, d)
	}
}

func TestFailureIsContainedToMode(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"non-success status", fmt.Errorf("%w: %d", backend.ErrUnexpectedStatus, 503)},
		{"network error", fmt.Errorf("%w: connection refused", backend.ErrTransport)},
		{"malformed body", fmt.Errorf("%w: unexpected EOF", backend.ErrDecode)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.ErrorLevel)

			f := new(mockFetcher)
			f.On("Fetch", mock.Anything, weather.ModeAsync).Return(nil, tt.err).Once()
			f.On("Fetch", mock.Anything, weather.ModeSync).
				Return([]weather.ProviderResult{{APIProviderName: weather.ProviderWeatherAPI}}, nil).Once()

			a, m := newTestAggregator(t, f, zap.New(core), WithClock(instantClock{}))

			var cycle weather.Cycle
			assert.NotPanics(t, func() {
				cycle = a.HandleGetWeatherData(context.Background(), weather.TriggerButton)
			})

			async := column(t, a, weather.ModeAsync)
			assert.Equal(t, weather.PhaseFailed, async.Phase)
			assert.False(t, async.Loading)
			assert.Empty(t, async.Cards)

			syncCol := column(t, a, weather.ModeSync)
			assert.Equal(t, weather.PhasePopulated, syncCol.Phase)
			assert.Len(t, syncCol.Cards, 1)

			require.Equal(t, 1, logs.Len(), "exactly one error log")
			entry := logs.All()[0]
			assert.Equal(t, "async", entry.ContextMap()["mode"])

			assert.Equal(t, tt.err.Error(), cycle.Outcomes[weather.ModeAsync].Error)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues("async", "failure")))
		})
	}
}

func TestFetchAsyncAndFetchSyncOutsideCycle(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)

	f := new(mockFetcher)
	f.On("Fetch", mock.Anything, weather.ModeAsync).
		Return([]weather.ProviderResult{{APIProviderName: weather.ProviderWeatherBit}}, nil).Once()
	f.On("Fetch", mock.Anything, weather.ModeSync).Return(nil, errors.New("boom")).Once()

	a, _ := newTestAggregator(t, f, zap.New(core))

	a.FetchAsync(context.Background())
	a.FetchSync(context.Background())
	f.AssertExpectations(t)

	assert.Len(t, column(t, a, weather.ModeAsync).Cards, 1)
	assert.Equal(t, weather.PhaseFailed, column(t, a, weather.ModeSync).Phase)
	assert.Equal(t, 1, logs.Len())
}

func TestStaleResponseDoesNotOverwriteNewerCycle(t *testing.T) {
	clock := &fakeClock{}
	f := newGatedFetcher()
	a, m := newTestAggregator(t, f, zap.NewNop(), WithClock(clock), WithIDGenerator(sequentialIDs()))

	assert.Equal(t, "cycle-1", a.Trigger(weather.TriggerButton))
	stale := f.next(t)

	assert.Equal(t, "cycle-2", a.Trigger(weather.TriggerButton))
	fresh := f.next(t)

	fresh.reply <- reply{results: []weather.ProviderResult{{APIProviderName: weather.ProviderOpenWeatherMap}}}
	require.Eventually(t, func() bool {
		return column(t, a, weather.ModeAsync).Phase == weather.PhasePopulated
	}, waitFor, tick)

	stale.reply <- reply{results: []weather.ProviderResult{
		{APIProviderName: weather.ProviderWeatherBit},
		{APIProviderName: weather.ProviderWeatherBit},
	}}
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.StaleDropped.WithLabelValues("async")) == 1
	}, waitFor, tick)

	snap := a.Snapshot()
	assert.Equal(t, "cycle-2", snap.CycleID)
	async, _ := snap.Column(weather.ModeAsync)
	require.Len(t, async.Cards, 1)
	assert.Equal(t, "OpenWeatherMap", async.Cards[0].ProviderName)

	// The superseded cycle never dispatches its sync request.
	require.Eventually(t, func() bool { return clock.Waiters() == 2 }, waitFor, tick)
	clock.Advance(time.Second)
	c := f.next(t)
	assert.Equal(t, weather.ModeSync, c.mode)
	c.reply <- reply{results: []weather.ProviderResult{}}
	f.assertNoCall(t)

	require.Eventually(t, func() bool { return len(a.Cycles()) == 2 }, waitFor, tick)
}

func TestCloseCancelsBackgroundCycle(t *testing.T) {
	clock := &fakeClock{}
	f := newGatedFetcher()
	a, _ := newTestAggregator(t, f, zap.NewNop(), WithClock(clock))

	a.Trigger(weather.TriggerSchedule)
	f.next(t)

	a.Close()

	for _, mode := range weather.Modes {
		c := column(t, a, mode)
		assert.Equal(t, weather.PhaseFailed, c.Phase, mode)
		assert.False(t, c.Loading, mode)
	}
	cycles := a.Cycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, weather.TriggerSchedule, cycles[0].Trigger)
	assert.Contains(t, cycles[0].Outcomes[weather.ModeSync].Error, context.Canceled.Error())
}
