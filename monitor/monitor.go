package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dwelch/tickstream/shared"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 64
	// storeTimeout is the maximum duration of a signal write.
	storeTimeout = time.Second * 10
)

// SignalStorer defines the requirements for persisting signal lifecycles.
type SignalStorer interface {
	// InsertSignal persists the provided new signal.
	InsertSignal(ctx context.Context, signal *shared.Signal) error
	// UpdateSignalExit persists the terminal outcome of the provided signal.
	UpdateSignalExit(ctx context.Context, signal *shared.Signal) error
	// UpdateSignalPNL persists the running performance of the provided signal.
	UpdateSignalPNL(ctx context.Context, signal *shared.Signal) error
	// ActiveSignals fetches all persisted non-terminal signals.
	ActiveSignals(ctx context.Context) ([]*shared.Signal, error)
}

// ManagerConfig represents the signal monitor configuration.
type ManagerConfig struct {
	// Store persists signal lifecycles.
	Store SignalStorer
	// CurrentPrice fetches the most recent admitted price and whether one
	// is available yet.
	CurrentPrice func() (float64, bool)
	// CheckInterval is the cadence of the reconciliation loop.
	CheckInterval time.Duration
	// UpdateGatePct is the minimum fractional price move since the last
	// persisted update that forces a fresh performance write.
	UpdateGatePct float64
	// UpdateGateInterval is the maximum staleness of a tracked signal before
	// its performance is written regardless of price movement.
	UpdateGateInterval time.Duration
	// Expiry is the maximum lifetime of an active signal.
	Expiry time.Duration
	// Retention is how long terminal signals are kept in memory before
	// housekeeping prunes them.
	Retention time.Duration
	// Logger is the signal monitor logger.
	Logger *zerolog.Logger
}

// ManagerStats is a snapshot of the signal monitor counters.
type ManagerStats struct {
	Tracked   int
	Checks    uint64
	Exits     uint64
	Expired   uint64
	LastCheck time.Time
}

// Manager tracks the lifecycle of open signals, reconciling each against the
// current price on a fixed cadence and persisting outcomes. Tracked signal
// state is mutated only on the Run goroutine; other goroutines relay requests
// through channels.
type Manager struct {
	cfg *ManagerConfig

	signalsMtx sync.RWMutex
	signals    map[string]*shared.Signal
	lastPrices map[string]float64

	entrySignals chan *shared.Signal
	checkSignals chan chan struct{}
	housekeeping chan struct{}

	checks    atomic.Uint64
	exits     atomic.Uint64
	expired   atomic.Uint64
	lastCheck atomic.Time
}

// NewManager initializes a new signal monitor.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	if cfg.CheckInterval <= 0 {
		return nil, fmt.Errorf("check interval must be positive: %s", cfg.CheckInterval)
	}

	return &Manager{
		cfg:          cfg,
		signals:      make(map[string]*shared.Signal),
		lastPrices:   make(map[string]float64),
		entrySignals: make(chan *shared.Signal, bufferSize),
		checkSignals: make(chan chan struct{}, 1),
		housekeeping: make(chan struct{}, 1),
	}, nil
}

// LoadActive restores tracking of persisted non-terminal signals after a
// restart.
func (m *Manager) LoadActive(ctx context.Context) error {
	signals, err := m.cfg.Store.ActiveSignals(ctx)
	if err != nil {
		return fmt.Errorf("loading active signals: %w", err)
	}

	m.signalsMtx.Lock()
	for idx := range signals {
		m.signals[signals[idx].ID] = signals[idx]
	}
	m.signalsMtx.Unlock()

	m.cfg.Logger.Info().Int("signals", len(signals)).Msg("restored active signals")

	return nil
}

// SendEntrySignal relays the provided signal for tracking.
func (m *Manager) SendEntrySignal(signal *shared.Signal) {
	select {
	case m.entrySignals <- signal:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("entry signal channel at capacity: %d/%d",
			len(m.entrySignals), bufferSize)
	}
}

// ForceCheck runs one reconciliation pass outside the fixed cadence and
// waits for it to complete. The pass itself runs on the monitor loop.
func (m *Manager) ForceCheck(ctx context.Context) {
	done := make(chan struct{})

	select {
	case m.checkSignals <- done:
		// do nothing.
	case <-ctx.Done():
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Housekeep requests a housekeeping pass from the monitor loop. A request is
// dropped when one is already pending.
func (m *Manager) Housekeep() {
	select {
	case m.housekeeping <- struct{}{}:
		// do nothing.
	default:
		// A pass is already pending.
	}
}

// handleEntrySignal persists and begins tracking the provided signal.
func (m *Manager) handleEntrySignal(ctx context.Context, signal *shared.Signal) {
	sCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if err := m.cfg.Store.InsertSignal(sCtx, signal); err != nil {
		m.cfg.Logger.Error().Err(err).Str("id", signal.ID).Msg("persisting signal")
		return
	}

	m.signalsMtx.Lock()
	m.signals[signal.ID] = signal
	m.lastPrices[signal.ID] = signal.EntryPrice
	m.signalsMtx.Unlock()

	m.cfg.Logger.Info().Str("id", signal.ID).Str("strategy", signal.Strategy).
		Str("action", signal.Action.String()).
		Str("timeframe", signal.Timeframe.String()).Msg("tracking signal")
}

// exitStatus resolves the terminal status of the provided signal at the
// provided price, if any. Stop hits take precedence over target hits, and
// higher targets over lower ones, so one pass over a large move settles on
// the most conservative loss and the most generous win respectively.
func (m *Manager) exitStatus(signal *shared.Signal, price float64, now time.Time) (shared.SignalStatus, bool) {
	stopHit := func() bool {
		if signal.Action == shared.Buy {
			return price <= signal.StopLoss
		}
		return price >= signal.StopLoss
	}
	targetHit := func(n int) bool {
		target, ok := signal.Target(n)
		if !ok {
			return false
		}
		if signal.Action == shared.Buy {
			return price >= target
		}
		return price <= target
	}

	switch {
	case stopHit():
		return shared.HitStop, true
	case targetHit(3):
		return shared.HitTarget3, true
	case targetHit(2):
		return shared.HitTarget2, true
	case targetHit(1):
		return shared.HitTarget, true
	case now.Sub(signal.CreatedOn) >= m.cfg.Expiry:
		return shared.Expired, true
	default:
		return shared.Active, false
	}
}

// checkSignal reconciles one tracked signal against the provided price. A
// panicking check is contained so one corrupt signal cannot take down the
// monitor loop.
func (m *Manager) checkSignal(ctx context.Context, signal *shared.Signal, price float64, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			m.cfg.Logger.Error().Msgf("checking signal %s panicked: %v", signal.ID, r)
		}
	}()

	m.signalsMtx.RLock()
	lastPrice := m.lastPrices[signal.ID]
	m.signalsMtx.RUnlock()

	status, terminal := m.exitStatus(signal, price, now)
	if !terminal {
		// Gate performance writes on meaningful movement or staleness.
		var movedPct float64
		if lastPrice > 0 {
			movedPct = (price - lastPrice) / lastPrice * 100
			if movedPct < 0 {
				movedPct = -movedPct
			}
		}
		if movedPct < m.cfg.UpdateGatePct && now.Sub(signal.UpdatedOn) < m.cfg.UpdateGateInterval {
			return
		}
	}

	signal.UpdatePNLPercent(price)
	signal.UpdatedOn = now

	m.signalsMtx.Lock()
	m.lastPrices[signal.ID] = price
	m.signalsMtx.Unlock()

	sCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if !terminal {
		if err := m.cfg.Store.UpdateSignalPNL(sCtx, signal); err != nil {
			m.cfg.Logger.Error().Err(err).Str("id", signal.ID).Msg("updating signal performance")
		}
		return
	}

	signal.Status = status
	signal.ExitPrice = price
	signal.ExitTime = now

	if status == shared.Expired {
		m.expired.Inc()
	}
	m.exits.Inc()

	m.cfg.Logger.Info().Str("id", signal.ID).Str("status", status.String()).
		Float64("exit", price).Float64("pnl", signal.PNLPercent).Msg("signal exited")

	if err := m.cfg.Store.UpdateSignalExit(sCtx, signal); err != nil {
		m.cfg.Logger.Error().Err(err).Str("id", signal.ID).Msg("persisting signal exit")
	}
}

// checkAll reconciles every tracked active signal against the current price.
// It reports whether a price was available.
func (m *Manager) checkAll(ctx context.Context) bool {
	price, ok := m.cfg.CurrentPrice()
	if !ok || price <= 0 {
		return false
	}

	now := time.Now().UTC()
	m.checks.Inc()
	m.lastCheck.Store(now)

	m.signalsMtx.RLock()
	active := make([]*shared.Signal, 0, len(m.signals))
	for _, signal := range m.signals {
		if !signal.Status.IsTerminal() {
			active = append(active, signal)
		}
	}
	m.signalsMtx.RUnlock()

	for idx := range active {
		m.checkSignal(ctx, active[idx], price, now)
	}

	return true
}

// housekeep deduplicates tracked signals and prunes stale terminal ones. Of
// active duplicates sharing a strategy, timeframe and direction only the most
// recent survives, the rest are expired in place. It runs on the monitor
// loop, so its exits cannot interleave with a reconciliation pass.
func (m *Manager) housekeep(ctx context.Context) {
	now := time.Now().UTC()

	m.signalsMtx.Lock()
	newest := make(map[string]*shared.Signal)
	for _, signal := range m.signals {
		if signal.Status.IsTerminal() {
			continue
		}

		key := signal.Strategy + "|" + signal.Timeframe.String() + "|" + signal.Action.String()
		current, ok := newest[key]
		if !ok || signal.CreatedOn.After(current.CreatedOn) {
			newest[key] = signal
		}
	}

	var duplicates []*shared.Signal
	for _, signal := range m.signals {
		if signal.Status.IsTerminal() {
			continue
		}

		key := signal.Strategy + "|" + signal.Timeframe.String() + "|" + signal.Action.String()
		if newest[key].ID != signal.ID {
			duplicates = append(duplicates, signal)
		}
	}

	var pruned int
	for id, signal := range m.signals {
		if signal.Status.IsTerminal() && now.Sub(signal.UpdatedOn) >= m.cfg.Retention {
			delete(m.signals, id)
			delete(m.lastPrices, id)
			pruned++
		}
	}
	m.signalsMtx.Unlock()

	for idx := range duplicates {
		signal := duplicates[idx]
		signal.Status = shared.Expired
		signal.ExitPrice = signal.EntryPrice
		signal.ExitTime = now
		signal.UpdatedOn = now

		sCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		if err := m.cfg.Store.UpdateSignalExit(sCtx, signal); err != nil {
			m.cfg.Logger.Error().Err(err).Str("id", signal.ID).Msg("expiring duplicate signal")
		}
		cancel()
	}

	if len(duplicates) > 0 || pruned > 0 {
		m.cfg.Logger.Info().Int("duplicates", len(duplicates)).Int("pruned", pruned).
			Msg("housekeeping complete")
	}
}

// Run manages the lifecycle processes of the signal monitor.
func (m *Manager) Run(ctx context.Context) {
	// Back off the check cadence while no price is available yet.
	wait := &backoff.Backoff{
		Min:    m.cfg.CheckInterval,
		Max:    m.cfg.CheckInterval * 8,
		Factor: 2,
	}

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case signal := <-m.entrySignals:
			m.handleEntrySignal(ctx, signal)
		case done := <-m.checkSignals:
			m.checkAll(ctx)
			close(done)
		case <-m.housekeeping:
			m.housekeep(ctx)
		case <-ticker.C:
			if m.checkAll(ctx) {
				wait.Reset()
				ticker.Reset(m.cfg.CheckInterval)
				continue
			}
			ticker.Reset(wait.Duration())
		case <-ctx.Done():
			return
		}
	}
}

// Tracked returns the number of signals currently held by the monitor.
func (m *Manager) Tracked() int {
	m.signalsMtx.RLock()
	defer m.signalsMtx.RUnlock()

	return len(m.signals)
}

// Stats returns a snapshot of the signal monitor counters.
func (m *Manager) Stats() *ManagerStats {
	return &ManagerStats{
		Tracked:   m.Tracked(),
		Checks:    m.checks.Load(),
		Exits:     m.exits.Load(),
		Expired:   m.expired.Load(),
		LastCheck: m.lastCheck.Load(),
	}
}
