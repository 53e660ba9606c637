package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dwelch/tickstream/shared"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const (
	// flushTimeout is the maximum duration of a batch flush.
	flushTimeout = time.Second * 30
)

// TickStorer defines the requirements for persisting tick batches and the
// rollups derived from them.
type TickStorer interface {
	// InsertTickBatch persists the provided ticks in one transaction and
	// returns the number of rows actually inserted.
	InsertTickBatch(ctx context.Context, ticks []*shared.Tick, keys []shared.IdempotencyKey) (int, error)
	// TrailingTicks fetches persisted ticks newer than the provided cutoff,
	// in chronological order.
	TrailingTicks(ctx context.Context, cutoff time.Time) ([]*shared.Tick, error)
	// InsertRollup persists the provided rollup.
	InsertRollup(ctx context.Context, rollup *shared.RollupAnalytics) error
}

// ProcessorConfig represents the tick processor configuration.
type ProcessorConfig struct {
	// Store is the destination for tick batches and rollups.
	Store TickStorer
	// BatchSize is the buffered tick count that triggers a flush.
	BatchSize int
	// RollupWindow is the trailing window rollups are computed over.
	RollupWindow time.Duration
	// Logger is the processor logger.
	Logger *zerolog.Logger
}

// ProcessorStats is a snapshot of the processor counters.
type ProcessorStats struct {
	Buffered             int
	Flushes              uint64
	Inserted             uint64
	DuplicatesSuppressed uint64
	DroppedBatches       uint64
}

// Processor buffers incoming ticks and persists them in batches. A flush
// clears the buffer whether or not the write succeeded, delivery to storage
// is at most once.
type Processor struct {
	cfg *ProcessorConfig

	bufferMtx sync.Mutex
	buffer    []*shared.Tick
	keys      []shared.IdempotencyKey
	lastKey   shared.IdempotencyKey

	flushes              atomic.Uint64
	inserted             atomic.Uint64
	duplicatesSuppressed atomic.Uint64
	droppedBatches       atomic.Uint64
}

// Ensure Processor implements the TickSubscriber interface.
var _ shared.TickSubscriber = (*Processor)(nil)

// NewProcessor initializes a tick processor.
func NewProcessor(cfg *ProcessorConfig) (*Processor, error) {
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive: %d", cfg.BatchSize)
	}

	return &Processor{
		cfg:    cfg,
		buffer: make([]*shared.Tick, 0, cfg.BatchSize),
		keys:   make([]shared.IdempotencyKey, 0, cfg.BatchSize),
	}, nil
}

// Name identifies the processor as a tick subscriber.
func (p *Processor) Name() string {
	return "processor"
}

// ProcessTick buffers the provided tick, flushing once the batch size is
// reached. Flush failures are logged and absorbed so a storage outage does
// not sever the subscription.
func (p *Processor) ProcessTick(tick *shared.Tick) error {
	key := shared.NewIdempotencyKey(tick)

	p.bufferMtx.Lock()
	if key == p.lastKey {
		p.bufferMtx.Unlock()
		p.duplicatesSuppressed.Inc()
		p.cfg.Logger.Debug().Str("key", string(key)).Msg("suppressed duplicate tick")
		return nil
	}

	p.buffer = append(p.buffer, tick)
	p.keys = append(p.keys, key)
	p.lastKey = key
	full := len(p.buffer) >= p.cfg.BatchSize
	p.bufferMtx.Unlock()

	if !full {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := p.flush(ctx); err != nil {
		p.cfg.Logger.Error().Err(err).Msg("flushing tick batch")
	}

	return nil
}

// ForceFlush persists any buffered ticks immediately.
func (p *Processor) ForceFlush(ctx context.Context) error {
	return p.flush(ctx)
}

// flush drains the buffer and persists the drained batch in one transaction.
// The buffer is cleared before the write so a failed batch is dropped rather
// than retried against a struggling store.
func (p *Processor) flush(ctx context.Context) error {
	p.bufferMtx.Lock()
	if len(p.buffer) == 0 {
		p.bufferMtx.Unlock()
		return nil
	}

	batch := p.buffer
	keys := p.keys
	p.buffer = make([]*shared.Tick, 0, p.cfg.BatchSize)
	p.keys = make([]shared.IdempotencyKey, 0, p.cfg.BatchSize)
	p.bufferMtx.Unlock()

	p.flushes.Inc()

	inserted, err := p.cfg.Store.InsertTickBatch(ctx, batch, keys)
	if err != nil {
		p.droppedBatches.Inc()
		return fmt.Errorf("inserting tick batch of %d: %w", len(batch), err)
	}

	p.inserted.Add(uint64(inserted))
	p.cfg.Logger.Info().Int("batch", len(batch)).Int("inserted", inserted).
		Msg("flushed tick batch")

	if inserted > 0 {
		if err := p.recomputeRollup(ctx); err != nil {
			p.cfg.Logger.Error().Err(err).Msg("recomputing rollup")
		}
	}

	return nil
}

// recomputeRollup summarizes the trailing window of persisted ticks and
// stores the result.
func (p *Processor) recomputeRollup(ctx context.Context) error {
	now := time.Now().UTC()

	ticks, err := p.cfg.Store.TrailingTicks(ctx, now.Add(-p.cfg.RollupWindow))
	if err != nil {
		return fmt.Errorf("fetching trailing ticks: %w", err)
	}

	rollup := shared.NewRollupAnalytics(ticks, now)
	if rollup == nil {
		return nil
	}

	if err := p.cfg.Store.InsertRollup(ctx, rollup); err != nil {
		return fmt.Errorf("inserting rollup: %w", err)
	}

	p.cfg.Logger.Debug().Uint32("datapoints", rollup.DataPoints).
		Float64("avg", rollup.AveragePrice).Msg("stored rollup")

	return nil
}

// Stats returns a snapshot of the processor counters.
func (p *Processor) Stats() *ProcessorStats {
	p.bufferMtx.Lock()
	buffered := len(p.buffer)
	p.bufferMtx.Unlock()

	return &ProcessorStats{
		Buffered:             buffered,
		Flushes:              p.flushes.Load(),
		Inserted:             p.inserted.Load(),
		DuplicatesSuppressed: p.duplicatesSuppressed.Load(),
		DroppedBatches:       p.droppedBatches.Load(),
	}
}
