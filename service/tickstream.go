package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dwelch/tickstream/database"
	"github.com/dwelch/tickstream/fetch"
	"github.com/dwelch/tickstream/market"
	"github.com/dwelch/tickstream/monitor"
	"github.com/dwelch/tickstream/processor"
	"github.com/dwelch/tickstream/shared"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

const (
	// shutdownTimeout bounds the final buffer flush during shutdown.
	shutdownTimeout = time.Second * 30
	// flushTimeout bounds the periodic buffer flush.
	flushTimeout = time.Second * 10
)

// TickStreamConfig represents the configuration struct for the tick stream
// service.
type TickStreamConfig struct {
	// Market is the tracked market symbol.
	Market string
	// DBEndpoint is the database connection endpoint.
	DBEndpoint string
	// DBUser is the database user.
	DBUser string
	// DBPass is the database user pass.
	DBPass string
	// FetchInterval is the minimum duration between price source fetches.
	FetchInterval time.Duration
	// MaxQueueSize is the capacity of the admitted tick snapshot.
	MaxQueueSize int
	// MaxConsecutiveErrors is the source error count that opens the circuit.
	MaxConsecutiveErrors uint32
	// MaxPriceChangePct is the maximum tolerated fractional price change.
	MaxPriceChangePct float64
	// MinExpectedPrice is the lower bound of the accepted price band.
	MinExpectedPrice float64
	// MaxExpectedPrice is the upper bound of the accepted price band.
	MaxExpectedPrice float64
	// DuplicateEpsilon is the price delta under which ticks are duplicates.
	DuplicateEpsilon float64
	// DuplicateWindow is the time delta scanned for duplicate ticks.
	DuplicateWindow time.Duration
	// BatchSize is the buffered tick count that triggers a flush.
	BatchSize int
	// RollupWindow is the trailing window rollups are computed over.
	RollupWindow time.Duration
	// CheckInterval is the cadence of the signal reconciliation loop.
	CheckInterval time.Duration
	// SignalExpiry is the maximum lifetime of an active signal.
	SignalExpiry time.Duration
	// SignalRetention is how long terminal signals stay in memory.
	SignalRetention time.Duration
	// MinSignalConfidence is the floor below which no signal is relayed.
	MinSignalConfidence float64
	// Cancel is the context cancellation function.
	Cancel context.CancelFunc
}

// Validate asserts the config sane inputs.
func (cfg *TickStreamConfig) Validate() error {
	var errs error

	if cfg.Market == "" {
		errs = errors.Join(errs, fmt.Errorf("market cannot be an empty string"))
	}
	if cfg.DBEndpoint == "" {
		errs = errors.Join(errs, fmt.Errorf("database endpoint cannot be an empty string"))
	}
	if cfg.FetchInterval <= 0 {
		errs = errors.Join(errs, fmt.Errorf("fetch interval must be positive"))
	}
	if cfg.BatchSize < 1 {
		errs = errors.Join(errs, fmt.Errorf("batch size must be positive"))
	}
	if cfg.CheckInterval <= 0 {
		errs = errors.Join(errs, fmt.Errorf("check interval must be positive"))
	}
	if cfg.MinExpectedPrice >= cfg.MaxExpectedPrice {
		errs = errors.Join(errs, fmt.Errorf("price band is inverted or empty"))
	}
	if cfg.Cancel == nil {
		errs = errors.Join(errs, fmt.Errorf("context cancellation function cannot be nil"))
	}

	return errs
}

// TickStream represents the live price streaming and signal generation
// service.
type TickStream struct {
	cfg           *TickStreamConfig
	db            *database.Database
	streamer      *fetch.Streamer
	processor     *processor.Processor
	marketManager *market.Manager
	signalMonitor *monitor.Manager
	scheduler     *gocron.Scheduler
	logger        *zerolog.Logger
	wg            sync.WaitGroup
}

// NewTickStream initializes a new tick stream service.
func NewTickStream(ctx context.Context, cfg *TickStreamConfig) (*TickStream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logger := log.With().Str("service", "tickstream").Logger()

	dbLogger := logger.With().Str("component", "database").Logger()
	db, err := database.NewDatabase(ctx, &database.DatabaseConfig{
		Endpoint: cfg.DBEndpoint,
		User:     cfg.DBUser,
		Pass:     cfg.DBPass,
		Logger:   &dbLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	client := fetch.NewClient(&fetch.ClientConfig{
		Symbol:  cfg.Market,
		BaseURL: fetch.BaseURL,
	})

	streamerLogger := logger.With().Str("component", "streamer").Logger()
	streamer := fetch.NewStreamer(&fetch.StreamerConfig{
		Fetcher:              client,
		FetchInterval:        cfg.FetchInterval,
		MaxQueueSize:         cfg.MaxQueueSize,
		MaxConsecutiveErrors: cfg.MaxConsecutiveErrors,
		MaxPriceChangePct:    cfg.MaxPriceChangePct,
		MinExpectedPrice:     cfg.MinExpectedPrice,
		MaxExpectedPrice:     cfg.MaxExpectedPrice,
		DuplicateEpsilon:     cfg.DuplicateEpsilon,
		DuplicateWindow:      cfg.DuplicateWindow,
		Logger:               &streamerLogger,
	})

	processorLogger := logger.With().Str("component", "processor").Logger()
	proc, err := processor.NewProcessor(&processor.ProcessorConfig{
		Store:        db,
		BatchSize:    cfg.BatchSize,
		RollupWindow: cfg.RollupWindow,
		Logger:       &processorLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating processor: %w", err)
	}

	monitorLogger := logger.With().Str("component", "monitor").Logger()
	signalMonitor, err := monitor.NewManager(&monitor.ManagerConfig{
		Store:              db,
		CurrentPrice:       streamer.LastPrice,
		CheckInterval:      cfg.CheckInterval,
		UpdateGatePct:      0.1,
		UpdateGateInterval: time.Minute * 5,
		Expiry:             cfg.SignalExpiry,
		Retention:          cfg.SignalRetention,
		Logger:             &monitorLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating signal monitor: %w", err)
	}

	marketLogger := logger.With().Str("component", "market").Logger()
	marketMgr, err := market.NewManager(&market.ManagerConfig{
		Market:              cfg.Market,
		Timeframes:          market.DefaultTimeframes(),
		Store:               db,
		SignalEntry:         signalMonitor.SendEntrySignal,
		MinSignalConfidence: cfg.MinSignalConfidence,
		Logger:              &marketLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating market manager: %w", err)
	}

	if err := marketMgr.LoadHistory(ctx); err != nil {
		return nil, fmt.Errorf("loading candle history: %w", err)
	}
	if err := signalMonitor.LoadActive(ctx); err != nil {
		return nil, fmt.Errorf("loading active signals: %w", err)
	}

	streamer.Subscribe(proc)
	streamer.Subscribe(marketMgr)

	service := &TickStream{
		cfg:           cfg,
		db:            db,
		streamer:      streamer,
		processor:     proc,
		marketManager: marketMgr,
		signalMonitor: signalMonitor,
		scheduler:     gocron.NewScheduler(time.UTC),
		logger:        &logger,
	}

	return service, nil
}

// flushBuffered persists any partially filled tick batch so flush latency
// stays bounded when the stream runs slower than the batch size.
func (t *TickStream) flushBuffered(ctx context.Context) {
	fCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()

	if err := t.processor.ForceFlush(fCtx); err != nil {
		t.logger.Error().Err(err).Msg("periodic flush")
	}
}

// scheduleJobs registers the recurring flush, housekeeping and stats jobs.
func (t *TickStream) scheduleJobs(ctx context.Context) error {
	_, err := t.scheduler.Every(1).Minute().Do(func() {
		t.flushBuffered(ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduling periodic flush: %w", err)
	}

	_, err = t.scheduler.Every(1).Hour().Do(t.signalMonitor.Housekeep)
	if err != nil {
		return fmt.Errorf("scheduling signal housekeeping: %w", err)
	}

	_, err = t.scheduler.Every(10).Minutes().Do(func() {
		streamer := t.streamer.Stats()
		proc := t.processor.Stats()
		mkt := t.marketManager.Stats()
		mon := t.signalMonitor.Stats()

		t.logger.Info().
			Uint64("admitted", streamer.Admitted).
			Uint64("rejected", streamer.Rejected).
			Uint64("duplicates", streamer.Duplicates).
			Uint64("inserted", proc.Inserted).
			Uint64("dropped_batches", proc.DroppedBatches).
			Uint64("candles_closed", mkt.CandlesClosed).
			Uint64("signals_relayed", mkt.SignalsRelayed).
			Int("signals_tracked", mon.Tracked).
			Uint64("signal_exits", mon.Exits).
			Msg("service stats")
	})
	if err != nil {
		return fmt.Errorf("scheduling stats job: %w", err)
	}

	return nil
}

// Run handles the lifecycle processes of the tick stream service.
func (t *TickStream) Run(ctx context.Context) {
	if err := t.scheduleJobs(ctx); err != nil {
		t.logger.Error().Err(err).Msg("scheduling jobs")
		t.cfg.Cancel()
		return
	}

	t.scheduler.StartAsync()

	t.wg.Add(2)

	go func() {
		t.streamer.Run(ctx)
		t.wg.Done()
	}()

	go func() {
		t.signalMonitor.Run(ctx)
		t.wg.Done()
	}()

	t.wg.Wait()
	t.scheduler.Stop()

	// Flush any buffered ticks before exiting.
	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := t.processor.ForceFlush(flushCtx); err != nil {
		t.logger.Error().Err(err).Msg("final flush")
	}

	t.logger.Info().Msg("tick stream service stopped")
}

// Recent returns the last n admitted ticks, oldest first.
func (t *TickStream) Recent(n int) []*shared.Tick {
	return t.streamer.Recent(n)
}
