package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pegelwacht/pegel-monitor/internal/adapter/gaugexml"
	"github.com/pegelwacht/pegel-monitor/internal/adapter/history"
	"github.com/pegelwacht/pegel-monitor/internal/config"
	"github.com/pegelwacht/pegel-monitor/internal/domain"
	"github.com/pegelwacht/pegel-monitor/internal/observability"
)

// --- stubs ---

type stubFetcher struct {
	fn       func(ctx context.Context) (domain.Reading, error)
	fallback bool
	calls    atomic.Int32
}

func (f *stubFetcher) FetchCurrentLevel(ctx context.Context) (domain.Reading, error) {
	f.calls.Add(1)
	return f.fn(ctx)
}

func (f *stubFetcher) FallbackLatched() bool { return f.fallback }

type stubStore struct {
	mu       sync.Mutex
	saved    []domain.Reading
	latest   *domain.Reading
	failSave bool
}

func (s *stubStore) SaveReading(r domain.Reading) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return false
	}
	s.saved = append(s.saved, r)
	s.latest = &r
	return true
}

func (s *stubStore) LatestReading() *domain.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

func (s *stubStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

type stubSink struct {
	mu      sync.Mutex
	changes []domain.TierChange
	err     error
}

func (s *stubSink) Name() string { return "stub" }

func (s *stubSink) NotifyTierChange(_ context.Context, change domain.TierChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.changes = append(s.changes, change)
	return nil
}

func readingWithLevel(levelCm int) domain.Reading {
	return domain.Reading{
		WaterLevelCm: levelCm,
		Date:         "27. Oktober 2025",
		Time:         "15:25",
		Timestamp:    time.Date(2025, time.October, 27, 15, 25, 0, 0, time.UTC),
	}
}

func newTestMonitor(f Fetcher, s HistoryStore, sinks ...AlertSink) *Monitor {
	cfg := &config.Config{RefreshInterval: time.Minute, AutoRefresh: true}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, f, s, sinks, logger, observability.NewMetricsForTesting())
}

// --- tests ---

func TestRefreshNow_Success(t *testing.T) {
	f := &stubFetcher{fn: func(context.Context) (domain.Reading, error) {
		return readingWithLevel(368), nil
	}}
	store := &stubStore{}
	m := newTestMonitor(f, store)

	require.Error(t, m.CheckReadiness(context.Background()))
	require.NoError(t, m.RefreshNow(context.Background()))

	snap := m.Snapshot()
	assert.Equal(t, StateDisplayed, snap.State)
	require.NotNil(t, snap.Reading)
	assert.Equal(t, 368, snap.Reading.WaterLevelCm)
	require.NotNil(t, snap.Tier)
	assert.Equal(t, "normal", snap.Tier.Name)
	assert.False(t, snap.Cached)
	assert.Empty(t, snap.LastError)
	assert.Equal(t, 1, store.savedCount())
	assert.NoError(t, m.CheckReadiness(context.Background()))
}

func TestRefreshNow_FailureWithoutCache(t *testing.T) {
	fetchErr := &domain.FetchExhaustedError{Attempts: 3, Last: errors.New("boom")}
	f := &stubFetcher{fn: func(context.Context) (domain.Reading, error) {
		return domain.Reading{}, fetchErr
	}}
	m := newTestMonitor(f, &stubStore{})

	err := m.RefreshNow(context.Background())
	require.ErrorIs(t, err, fetchErr)

	snap := m.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Nil(t, snap.Reading)
	assert.Contains(t, snap.LastError, "3 attempts")
	assert.Error(t, m.CheckReadiness(context.Background()))
}

func TestRefreshNow_FailureDegradesToCachedReading(t *testing.T) {
	cached := readingWithLevel(412)
	store := &stubStore{latest: &cached}
	f := &stubFetcher{fn: func(context.Context) (domain.Reading, error) {
		return domain.Reading{}, errors.New("unreachable")
	}}
	m := newTestMonitor(f, store)

	require.Error(t, m.RefreshNow(context.Background()))

	snap := m.Snapshot()
	assert.Equal(t, StateDisplayed, snap.State)
	require.NotNil(t, snap.Reading)
	assert.Equal(t, 412, snap.Reading.WaterLevelCm)
	assert.Equal(t, "warning", snap.Tier.Name)
	assert.True(t, snap.Cached)
	assert.Contains(t, snap.LastError, "unreachable")
	assert.NoError(t, m.CheckReadiness(context.Background()), "cached display counts as ready")
}

func TestRefreshNow_SuccessClearsLastError(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	f := &stubFetcher{fn: func(context.Context) (domain.Reading, error) {
		if fail.Load() {
			return domain.Reading{}, errors.New("transient")
		}
		return readingWithLevel(368), nil
	}}
	m := newTestMonitor(f, &stubStore{})

	require.Error(t, m.RefreshNow(context.Background()))
	assert.NotEmpty(t, m.Snapshot().LastError)

	fail.Store(false)
	require.NoError(t, m.RefreshNow(context.Background()))

	snap := m.Snapshot()
	assert.Empty(t, snap.LastError)
	assert.False(t, snap.Cached)
}

func TestRefreshNow_SaveFailureStillDisplays(t *testing.T) {
	f := &stubFetcher{fn: func(context.Context) (domain.Reading, error) {
		return readingWithLevel(368), nil
	}}
	m := newTestMonitor(f, &stubStore{failSave: true})

	require.NoError(t, m.RefreshNow(context.Background()))
	assert.Equal(t, StateDisplayed, m.Snapshot().State)
}

func TestRefreshNow_TierChangeAlert(t *testing.T) {
	levels := []int{368, 368, 450, 820}
	var i atomic.Int32
	f := &stubFetcher{fn: func(context.Context) (domain.Reading, error) {
		n := int(i.Add(1)) - 1
		return readingWithLevel(levels[n]), nil
	}}
	sink := &stubSink{}
	m := newTestMonitor(f, &stubStore{}, sink)

	for range levels {
		require.NoError(t, m.RefreshNow(context.Background()))
	}

	// First display never alerts; the repeat at the same tier is silent.
	require.Len(t, sink.changes, 2)
	assert.Equal(t, "normal", sink.changes[0].From.Name)
	assert.Equal(t, "warning", sink.changes[0].To.Name)
	assert.Equal(t, 450, sink.changes[0].LevelCm)
	assert.Equal(t, "warning", sink.changes[1].From.Name)
	assert.Equal(t, "danger", sink.changes[1].To.Name)
}

func TestRefreshNow_SinkFailureDoesNotFailCycle(t *testing.T) {
	levels := []int{368, 450}
	var i atomic.Int32
	f := &stubFetcher{fn: func(context.Context) (domain.Reading, error) {
		n := int(i.Add(1)) - 1
		return readingWithLevel(levels[n]), nil
	}}
	sink := &stubSink{err: errors.New("broker down")}
	m := newTestMonitor(f, &stubStore{}, sink)

	require.NoError(t, m.RefreshNow(context.Background()))
	require.NoError(t, m.RefreshNow(context.Background()))
}

func TestRefreshNow_Serialized(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	f := &stubFetcher{fn: func(context.Context) (domain.Reading, error) {
		close(entered)
		<-release
		return readingWithLevel(368), nil
	}}
	m := newTestMonitor(f, &stubStore{})

	done := make(chan error, 1)
	go func() { done <- m.RefreshNow(context.Background()) }()

	<-entered
	err := m.RefreshNow(context.Background())
	assert.ErrorIs(t, err, ErrRefreshInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestRun_AutoRefreshGatesTicks(t *testing.T) {
	fetched := make(chan struct{}, 16)
	f := &stubFetcher{fn: func(context.Context) (domain.Reading, error) {
		fetched <- struct{}{}
		return readingWithLevel(368), nil
	}}

	cfg := &config.Config{RefreshInterval: time.Minute, AutoRefresh: false}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New(cfg, f, &stubStore{}, nil, logger, observability.NewMetricsForTesting())
	fc := clockwork.NewFakeClock()
	m.clock = fc

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	// The startup cycle runs regardless of the gate.
	select {
	case <-fetched:
	case <-time.After(time.Second):
		t.Fatal("startup refresh did not run")
	}

	fc.BlockUntil(1)
	fc.Advance(time.Minute)
	select {
	case <-fetched:
		t.Fatal("tick fired a refresh while auto-refresh was disabled")
	case <-time.After(50 * time.Millisecond):
	}

	m.SetAutoRefresh(true)
	fc.Advance(time.Minute)
	select {
	case <-fetched:
	case <-time.After(time.Second):
		t.Fatal("tick did not fire a refresh after enabling auto-refresh")
	}

	cancel()
	<-done
}

var germanMonthNames = map[time.Month]string{
	time.January: "Januar", time.February: "Februar", time.March: "März",
	time.April: "April", time.May: "Mai", time.June: "Juni",
	time.July: "Juli", time.August: "August", time.September: "September",
	time.October: "Oktober", time.November: "November", time.December: "Dezember",
}

// TestRefreshNow_EndToEnd wires the real fetch client and the real SQLite
// store under the monitor: one refresh against an upstream serving a gauge
// document must end with a displayed, classified, persisted reading.
func TestRefreshNow_EndToEnd(t *testing.T) {
	domain.SetLocation(time.UTC)
	defer domain.SetLocation(nil)

	// Datum/Uhrzeit track the wall clock so the store's age window keeps the
	// reading.
	now := time.Now().UTC()
	doc := fmt.Sprintf("<H><Datum>%d. %s %d</Datum><Uhrzeit>%d:%02d</Uhrzeit><Pegel>4,00</Pegel></H>",
		now.Day(), germanMonthNames[now.Month()], now.Year(), now.Hour(), now.Minute())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(doc))
	}))
	defer srv.Close()

	cfg := &config.Config{
		SourceURL:         srv.URL,
		FetchTimeout:      2 * time.Second,
		MaxRetries:        3,
		RetryDelay:        time.Millisecond,
		RefreshInterval:   time.Minute,
		AutoRefresh:       true,
		DBPath:            filepath.Join(t.TempDir(), "pegel.db"),
		HistoryMaxEntries: 10,
		HistoryMaxAge:     24 * time.Hour,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()

	store, err := history.Open(cfg, logger, metrics)
	require.NoError(t, err)
	defer store.Close()

	client := gaugexml.NewClient(cfg, logger, metrics)
	m := New(cfg, client, store, nil, logger, metrics)

	require.NoError(t, m.RefreshNow(context.Background()))

	snap := m.Snapshot()
	assert.Equal(t, StateDisplayed, snap.State)
	require.NotNil(t, snap.Reading)
	assert.Equal(t, 400, snap.Reading.WaterLevelCm)
	assert.Equal(t, "warning", snap.Tier.Name)
	assert.False(t, snap.Cached)
	assert.False(t, snap.Reading.ApproxTime)

	series := store.HistoricalData(24)
	require.Len(t, series, 1)
	assert.Equal(t, 400, series[0].WaterLevelCm)

	latest := store.LatestReading()
	require.NotNil(t, latest)
	assert.Equal(t, 400, latest.WaterLevelCm)
	assert.NoError(t, m.CheckReadiness(context.Background()))
}

func TestSnapshot_ReportsFallback(t *testing.T) {
	f := &stubFetcher{
		fn: func(context.Context) (domain.Reading, error) {
			return readingWithLevel(368), nil
		},
		fallback: true,
	}
	m := newTestMonitor(f, &stubStore{})
	assert.True(t, m.Snapshot().FallbackActive)
}
