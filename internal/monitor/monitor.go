// Package monitor coordinates fetching, persistence, classification, and
// alerting into serialized refresh cycles.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pegelwacht/pegel-monitor/internal/config"
	"github.com/pegelwacht/pegel-monitor/internal/domain"
	"github.com/pegelwacht/pegel-monitor/internal/observability"
)

// State is the coordinator's position in its refresh lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateLoading   State = "loading"
	StateDisplayed State = "displayed"
	StateError     State = "error"
)

// ErrRefreshInFlight is returned when a refresh is requested while a cycle is
// already running. Cycles are strictly serialized; callers retry later.
var ErrRefreshInFlight = errors.New("refresh cycle already in flight")

// Fetcher retrieves the current gauge reading.
type Fetcher interface {
	FetchCurrentLevel(ctx context.Context) (domain.Reading, error)
	FallbackLatched() bool
}

// HistoryStore is the persistence boundary the monitor writes through.
type HistoryStore interface {
	SaveReading(r domain.Reading) bool
	LatestReading() *domain.Reading
}

// AlertSink receives tier-change notifications. Sink failures are logged and
// counted but never fail the refresh cycle.
type AlertSink interface {
	Name() string
	NotifyTierChange(ctx context.Context, change domain.TierChange) error
}

// Snapshot is a point-in-time copy of the coordinator's observable state.
type Snapshot struct {
	State           State           `json:"state"`
	Reading         *domain.Reading `json:"reading,omitempty"`
	Tier            *domain.Tier    `json:"tier,omitempty"`
	LastUpdated     time.Time       `json:"last_updated,omitzero"`
	Cached          bool            `json:"cached"`
	LastError       string          `json:"last_error,omitempty"`
	AutoRefresh     bool            `json:"auto_refresh"`
	RefreshInterval time.Duration   `json:"refresh_interval"`
	FallbackActive  bool            `json:"fallback_active"`
}

// Monitor drives the periodic refresh loop and owns the displayed state.
type Monitor struct {
	fetcher  Fetcher
	store    HistoryStore
	sinks    []AlertSink
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock
	interval time.Duration

	inFlight atomic.Bool
	ready    atomic.Bool

	mu          sync.Mutex
	state       State
	reading     *domain.Reading
	tier        *domain.Tier
	lastUpdated time.Time
	cached      bool
	lastErr     string
	autoRefresh bool
}

// New creates a Monitor from config and collaborators. Sinks may be empty.
func New(cfg *config.Config, fetcher Fetcher, store HistoryStore, sinks []AlertSink, logger *slog.Logger, metrics *observability.Metrics) *Monitor {
	return &Monitor{
		fetcher:     fetcher,
		store:       store,
		sinks:       sinks,
		logger:      logger,
		metrics:     metrics,
		clock:       clockwork.NewRealClock(),
		interval:    cfg.RefreshInterval,
		state:       StateIdle,
		autoRefresh: cfg.AutoRefresh,
	}
}

// CheckReadiness returns nil once the monitor has displayed at least one
// reading, fresh or cached.
func (m *Monitor) CheckReadiness(_ context.Context) error {
	if !m.ready.Load() {
		return errors.New("monitor has not displayed a reading yet")
	}
	return nil
}

// Run executes the refresh loop until the context is cancelled. One immediate
// cycle runs at startup; after that the ticker drives the cadence. The
// auto-refresh toggle gates whether a tick triggers a cycle, it does not stop
// the ticker. A tick that fires while a cycle is still in flight is skipped,
// never queued.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started",
		"interval", m.interval, "auto_refresh", m.autoRefreshEnabled())
	m.metrics.MonitorRunning.Set(1)
	defer m.metrics.MonitorRunning.Set(0)

	if err := m.RefreshNow(ctx); err != nil && ctx.Err() == nil {
		m.logger.Warn("initial refresh failed", "error", err)
	}

	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			if !m.autoRefreshEnabled() {
				continue
			}
			err := m.RefreshNow(ctx)
			switch {
			case errors.Is(err, ErrRefreshInFlight):
				m.metrics.RefreshSkipped.Inc()
				m.logger.Debug("refresh tick skipped, cycle in flight")
			case err != nil && ctx.Err() == nil:
				m.logger.Warn("scheduled refresh failed", "error", err)
			}
		}
	}
}

// RefreshNow runs one refresh cycle synchronously. Returns
// ErrRefreshInFlight when another cycle holds the slot.
func (m *Monitor) RefreshNow(ctx context.Context) error {
	if !m.inFlight.CompareAndSwap(false, true) {
		return ErrRefreshInFlight
	}
	defer m.inFlight.Store(false)

	return m.runCycle(ctx)
}

// SetAutoRefresh flips the gate evaluated when the timer fires.
func (m *Monitor) SetAutoRefresh(enabled bool) {
	m.mu.Lock()
	changed := m.autoRefresh != enabled
	m.autoRefresh = enabled
	m.mu.Unlock()

	if changed {
		m.logger.Info("auto-refresh toggled", "enabled", enabled)
	}
}

// Snapshot returns a copy of the observable state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		State:           m.state,
		LastUpdated:     m.lastUpdated,
		Cached:          m.cached,
		LastError:       m.lastErr,
		AutoRefresh:     m.autoRefresh,
		RefreshInterval: m.interval,
		FallbackActive:  m.fetcher.FallbackLatched(),
	}
	if m.reading != nil {
		r := *m.reading
		snap.Reading = &r
	}
	if m.tier != nil {
		t := *m.tier
		snap.Tier = &t
	}
	return snap
}

func (m *Monitor) autoRefreshEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.autoRefresh
}

func (m *Monitor) runCycle(ctx context.Context) error {
	m.setState(StateLoading)

	reading, err := m.fetcher.FetchCurrentLevel(ctx)
	if err != nil {
		m.logger.Error("refresh cycle failed", "error", err)
		m.recoverFromFailure(err)
		return err
	}

	if !m.store.SaveReading(reading) {
		// Display still updates; persistence is best-effort.
		m.logger.Warn("reading displayed but not persisted",
			"level_cm", reading.WaterLevelCm)
	}

	tier := domain.ClassifyLevel(reading.WaterLevelCm)
	if reading.OutOfRange {
		m.logger.Warn("reading outside nominal gauge range",
			"level_cm", reading.WaterLevelCm)
	}

	prev := m.display(reading, tier, false)
	m.metrics.RefreshCycles.WithLabelValues("success").Inc()
	m.logger.Info("water level updated",
		"level_cm", reading.WaterLevelCm,
		"tier", tier.Name,
		"timestamp", reading.Timestamp,
		"approx_time", reading.ApproxTime,
	)

	if prev != nil && prev.Name != tier.Name {
		m.notifyTierChange(ctx, domain.TierChange{
			From:    *prev,
			To:      tier,
			LevelCm: reading.WaterLevelCm,
			At:      reading.Timestamp,
		})
	}
	return nil
}

// recoverFromFailure enters the error state, then degrades to the newest
// stored reading as cached display data if one exists.
func (m *Monitor) recoverFromFailure(fetchErr error) {
	latest := m.store.LatestReading()
	if latest == nil {
		m.mu.Lock()
		m.state = StateError
		m.lastErr = fetchErr.Error()
		m.mu.Unlock()
		m.metrics.RefreshCycles.WithLabelValues("error").Inc()
		return
	}

	tier := domain.ClassifyLevel(latest.WaterLevelCm)
	m.mu.Lock()
	m.state = StateDisplayed
	m.reading = latest
	m.tier = &tier
	m.cached = true
	m.lastErr = fetchErr.Error()
	m.mu.Unlock()

	m.publishLevelMetrics(latest.WaterLevelCm, tier)
	m.ready.Store(true)
	m.metrics.RefreshCycles.WithLabelValues("degraded").Inc()
	m.logger.Warn("serving cached reading after fetch failure",
		"level_cm", latest.WaterLevelCm, "timestamp", latest.Timestamp)
}

// display installs a fresh reading and returns the previously displayed tier,
// or nil on the first display.
func (m *Monitor) display(reading domain.Reading, tier domain.Tier, cached bool) *domain.Tier {
	m.mu.Lock()
	prev := m.tier
	m.state = StateDisplayed
	m.reading = &reading
	m.tier = &tier
	m.lastUpdated = m.clock.Now()
	m.cached = cached
	m.lastErr = ""
	m.mu.Unlock()

	m.publishLevelMetrics(reading.WaterLevelCm, tier)
	m.ready.Store(true)
	return prev
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Monitor) publishLevelMetrics(levelCm int, tier domain.Tier) {
	m.metrics.CurrentWaterLevel.Set(float64(levelCm))
	for _, t := range domain.Tiers() {
		v := 0.0
		if t.Name == tier.Name {
			v = 1
		}
		m.metrics.CurrentTier.WithLabelValues(t.Name).Set(v)
	}
}

func (m *Monitor) notifyTierChange(ctx context.Context, change domain.TierChange) {
	m.logger.Info("alert tier changed",
		"from", change.From.Name, "to", change.To.Name, "level_cm", change.LevelCm)

	for _, sink := range m.sinks {
		if err := sink.NotifyTierChange(ctx, change); err != nil {
			m.metrics.AlertsPublished.WithLabelValues(sink.Name(), "error").Inc()
			m.logger.Error("alert delivery failed", "sink", sink.Name(), "error", err)
			continue
		}
		m.metrics.AlertsPublished.WithLabelValues(sink.Name(), "success").Inc()
	}
}
