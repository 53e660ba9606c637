package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dwelch/tickstream/shared"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"
)

const (
	// maxFailuresBeforePause is the number of consecutive failed fetches
	// tolerated before the streamer takes an extended pause.
	maxFailuresBeforePause = 10
	// stopTimeout bounds how long Stop waits for the poll loop to exit.
	stopTimeout = time.Second * 10
)

// StreamerConfig represents the tick streamer configuration.
type StreamerConfig struct {
	// Fetcher represents the price source client.
	Fetcher shared.TickerFetcher
	// FetchInterval is the minimum duration between source fetches.
	FetchInterval time.Duration
	// MaxQueueSize is the capacity of the admitted tick snapshot.
	MaxQueueSize int
	// MaxConsecutiveErrors is the source error count that opens the circuit.
	MaxConsecutiveErrors uint32
	// MaxPriceChangePct is the maximum tolerated fractional change versus the
	// last admitted price.
	MaxPriceChangePct float64
	// MinExpectedPrice is the lower bound of the accepted price band.
	MinExpectedPrice float64
	// MaxExpectedPrice is the upper bound of the accepted price band.
	MaxExpectedPrice float64
	// DuplicateEpsilon is the price delta under which two ticks are considered
	// the same observation.
	DuplicateEpsilon float64
	// DuplicateWindow is the time delta under which a near-identical price is
	// rejected as a re-emitted snapshot.
	DuplicateWindow time.Duration
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// StreamerStats represents a snapshot of streamer health counters.
type StreamerStats struct {
	IsRunning         bool
	QueueSize         int
	ConsecutiveErrors uint32
	LastPrice         float64
	Subscribers       int
	Admitted          uint64
	Rejected          uint64
	Duplicates        uint64
}

// Streamer owns the poll loop for the price source and fans admitted ticks
// out to subscribers.
type Streamer struct {
	cfg     *StreamerConfig
	limiter *rate.Limiter
	pause   *backoff.Backoff
	ticks   *TickSnapshot

	subscribersMtx sync.Mutex
	subscribers    []shared.TickSubscriber

	running      atomic.Bool
	apiErrors    atomic.Uint32
	admitted     atomic.Uint64
	rejected     atomic.Uint64
	duplicates   atomic.Uint64
	lastAdmitted atomic.Float64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewStreamer initializes a new tick streamer.
func NewStreamer(cfg *StreamerConfig) *Streamer {
	return &Streamer{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.FetchInterval), 1),
		pause: &backoff.Backoff{
			Min:    time.Minute * 5,
			Max:    time.Minute * 15,
			Factor: 2,
		},
		ticks: NewTickSnapshot(cfg.MaxQueueSize),
		done:  make(chan struct{}),
	}
}

// Subscribe registers the provided subscriber for admitted ticks.
func (s *Streamer) Subscribe(sub shared.TickSubscriber) {
	s.subscribersMtx.Lock()
	defer s.subscribersMtx.Unlock()

	for idx := range s.subscribers {
		if s.subscribers[idx].Name() == sub.Name() {
			return
		}
	}

	s.subscribers = append(s.subscribers, sub)
	s.cfg.Logger.Info().Msgf("subscriber %s added, total: %d", sub.Name(), len(s.subscribers))
}

// Unsubscribe deregisters the named subscriber.
func (s *Streamer) Unsubscribe(name string) {
	s.subscribersMtx.Lock()
	defer s.subscribersMtx.Unlock()

	for idx := range s.subscribers {
		if s.subscribers[idx].Name() == name {
			s.subscribers = append(s.subscribers[:idx], s.subscribers[idx+1:]...)
			s.cfg.Logger.Info().Msgf("subscriber %s removed, total: %d", name, len(s.subscribers))
			return
		}
	}
}

// Recent returns the last n admitted ticks, oldest first.
func (s *Streamer) Recent(n int) []*shared.Tick {
	return s.ticks.LastN(n)
}

// LastPrice returns the last admitted price and whether one exists.
func (s *Streamer) LastPrice() (float64, bool) {
	price := s.lastAdmitted.Load()
	return price, price > 0
}

// Stats returns a snapshot of the streamer health counters.
func (s *Streamer) Stats() StreamerStats {
	s.subscribersMtx.Lock()
	subscribers := len(s.subscribers)
	s.subscribersMtx.Unlock()

	return StreamerStats{
		IsRunning:         s.running.Load(),
		QueueSize:         s.ticks.Count(),
		ConsecutiveErrors: s.apiErrors.Load(),
		LastPrice:         s.lastAdmitted.Load(),
		Subscribers:       subscribers,
		Admitted:          s.admitted.Load(),
		Rejected:          s.rejected.Load(),
		Duplicates:        s.duplicates.Load(),
	}
}

// validateTick asserts the provided tick is a sane price observation. A
// rejection here is a data quality drop and is not counted against the
// error circuit.
func (s *Streamer) validateTick(tick *shared.Tick) error {
	if tick.Price <= 0 {
		return fmt.Errorf("invalid or non-positive price: %.2f", tick.Price)
	}

	if last := s.lastAdmitted.Load(); last > 0 {
		changePct := math.Abs(tick.Price-last) / last
		if changePct > s.cfg.MaxPriceChangePct {
			return fmt.Errorf("price jump too large: %.2f -> %.2f (>%.0f%%)",
				last, tick.Price, s.cfg.MaxPriceChangePct*100)
		}
	}

	if tick.Price < s.cfg.MinExpectedPrice || tick.Price > s.cfg.MaxExpectedPrice {
		return fmt.Errorf("price outside expected band: %.2f (expected %.0f-%.0f)",
			tick.Price, s.cfg.MinExpectedPrice, s.cfg.MaxExpectedPrice)
	}

	return nil
}

// isDuplicate reports whether the provided tick is a re-emission of a
// recently admitted snapshot. A tick is a duplicate when its price is within
// the configured epsilon of an admitted tick inside the duplicate window.
func (s *Streamer) isDuplicate(tick *shared.Tick) bool {
	recent := s.ticks.LastN(s.ticks.Count())
	for idx := len(recent) - 1; idx >= 0; idx-- {
		if tick.Timestamp.Sub(recent[idx].Timestamp) >= s.cfg.DuplicateWindow {
			break
		}
		if math.Abs(tick.Price-recent[idx].Price) < s.cfg.DuplicateEpsilon {
			return true
		}
	}

	return false
}

// dispatch delivers the provided tick to the subscriber, converting a panic
// into an error so one bad subscriber cannot break fan-out to the others.
func (s *Streamer) dispatch(sub shared.TickSubscriber, tick *shared.Tick) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panicked: %v", r)
		}
	}()

	return sub.ProcessTick(tick)
}

// notifySubscribers delivers the provided tick to all subscribers in
// registration order. A failing subscriber is logged and deregistered.
func (s *Streamer) notifySubscribers(tick *shared.Tick) {
	s.subscribersMtx.Lock()
	subs := make([]shared.TickSubscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.subscribersMtx.Unlock()

	for idx := range subs {
		err := s.dispatch(subs[idx], tick)
		if err != nil {
			s.cfg.Logger.Error().Msgf("subscriber %s failed, deregistering: %v", subs[idx].Name(), err)
			s.Unsubscribe(subs[idx].Name())
		}
	}
}

// admitTick accepts the provided tick, pushing it into the snapshot and
// fanning it out to subscribers.
func (s *Streamer) admitTick(tick *shared.Tick) {
	s.ticks.Update(tick)
	s.lastAdmitted.Store(tick.Price)
	s.admitted.Inc()

	s.notifySubscribers(tick)

	s.cfg.Logger.Info().Msgf("tick admitted: $%.2f (%s) change: %.2f%%",
		tick.Price, tick.Source, tick.PriceChangePct)
}

// pollOnce performs a single iteration of the poll loop. It reports whether
// the iteration resulted in a failure that counts towards the extended pause.
func (s *Streamer) pollOnce(ctx context.Context) bool {
	// Throttle fetches to the configured interval.
	if !s.limiter.Allow() {
		return false
	}

	// With the circuit open, skip the fetch attempt entirely and retry on a
	// later cadence.
	if s.apiErrors.Load() >= s.cfg.MaxConsecutiveErrors {
		s.cfg.Logger.Warn().Msgf("price source circuit open (%d consecutive errors), skipping fetch",
			s.apiErrors.Load())
		return true
	}

	fetchCtx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	tick, err := s.cfg.Fetcher.FetchTicker(fetchCtx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false
		}

		errs := s.apiErrors.Inc()
		s.cfg.Logger.Error().Msgf("price source error (#%d): %v", errs, err)
		return true
	}

	if errs := s.apiErrors.Swap(0); errs > 0 {
		s.cfg.Logger.Info().Msgf("price source recovered after %d consecutive errors", errs)
	}

	err = s.validateTick(tick)
	if err != nil {
		s.rejected.Inc()
		s.cfg.Logger.Warn().Msgf("tick rejected: %v", err)
		return true
	}

	if s.isDuplicate(tick) {
		s.duplicates.Inc()
		s.cfg.Logger.Debug().Msgf("duplicate tick ignored: $%.2f", tick.Price)
		return false
	}

	s.admitTick(tick)
	s.pause.Reset()

	return false
}

// Run manages the lifecycle processes of the streamer. The loop never
// terminates on an error, only on context cancellation.
func (s *Streamer) Run(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.cfg.Logger.Warn().Msg("streamer already running")
		return
	}
	defer func() {
		s.running.Store(false)
		close(s.done)
	}()

	var consecutiveFailures int
	for {
		failed := s.pollOnce(ctx)
		switch {
		case failed:
			consecutiveFailures++
		default:
			consecutiveFailures = 0
		}

		wait := s.cfg.FetchInterval
		if consecutiveFailures >= maxFailuresBeforePause {
			wait = s.pause.Duration()
			s.cfg.Logger.Error().Msgf("%d consecutive failures, pausing streaming for %s",
				consecutiveFailures, wait)
			consecutiveFailures = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Start begins the background poll loop. Starting an already running
// streamer is a no-op.
func (s *Streamer) Start() {
	if s.running.Load() {
		s.cfg.Logger.Warn().Msg("streamer already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.Run(ctx)
}

// Stop requests cancellation of the poll loop and waits for it to exit with
// a bounded timeout. Cancellation is cooperative and iteration granular.
func (s *Streamer) Stop() {
	if s.cancel == nil {
		return
	}

	s.cancel()

	select {
	case <-s.done:
	case <-time.After(stopTimeout):
		s.cfg.Logger.Warn().Msg("streamer did not stop gracefully")
	}
}
