package service

import (
	"context"
	"testing"
	"time"

	"github.com/dwelch/tickstream/monitor"
	"github.com/dwelch/tickstream/processor"
	"github.com/dwelch/tickstream/shared"
	"github.com/go-co-op/gocron"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
)

type stubTickStore struct {
	batches [][]*shared.Tick
}

func (s *stubTickStore) InsertTickBatch(ctx context.Context, ticks []*shared.Tick, keys []shared.IdempotencyKey) (int, error) {
	s.batches = append(s.batches, ticks)
	return len(ticks), nil
}

func (s *stubTickStore) TrailingTicks(ctx context.Context, cutoff time.Time) ([]*shared.Tick, error) {
	return nil, nil
}

func (s *stubTickStore) InsertRollup(ctx context.Context, rollup *shared.RollupAnalytics) error {
	return nil
}

func newTestService(t *testing.T, store processor.TickStorer) (*TickStream, *processor.Processor) {
	proc, err := processor.NewProcessor(&processor.ProcessorConfig{
		Store:        store,
		BatchSize:    10,
		RollupWindow: time.Hour,
		Logger:       &log.Logger,
	})
	assert.NoError(t, err)

	signalMonitor, err := monitor.NewManager(&monitor.ManagerConfig{
		CheckInterval: time.Second * 30,
		Logger:        &log.Logger,
	})
	assert.NoError(t, err)

	svc := &TickStream{
		processor:     proc,
		signalMonitor: signalMonitor,
		scheduler:     gocron.NewScheduler(time.UTC),
		logger:        &log.Logger,
	}

	return svc, proc
}

func TestScheduleJobs(t *testing.T) {
	svc, _ := newTestService(t, &stubTickStore{})

	// Ensure the flush, housekeeping and stats jobs all register.
	assert.NoError(t, svc.scheduleJobs(context.Background()))
	assert.Equal(t, len(svc.scheduler.Jobs()), 3)
}

func TestFlushBuffered(t *testing.T) {
	store := &stubTickStore{}
	svc, proc := newTestService(t, store)
	ctx := context.Background()

	// Ensure flushing an empty buffer is a no-op.
	svc.flushBuffered(ctx)
	assert.Equal(t, len(store.batches), 0)

	// Ensure a partial batch below the batch size is persisted by the flush
	// job rather than sitting buffered until the stream fills it.
	tick := &shared.Tick{
		Market:    "BTCUSDT",
		Price:     100,
		Volume:    5,
		Timestamp: time.Now().UTC(),
		Source:    "binance",
	}
	assert.NoError(t, proc.ProcessTick(tick))
	assert.Equal(t, proc.Stats().Buffered, 1)

	svc.flushBuffered(ctx)
	assert.Equal(t, len(store.batches), 1)
	assert.Equal(t, len(store.batches[0]), 1)
	assert.Equal(t, proc.Stats().Buffered, 0)
}
