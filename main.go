package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/dwelch/tickstream/service"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

func main() {
	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Printf("loading config: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	streamCfg := service.TickStreamConfig{
		Market:               cfg.Market,
		DBEndpoint:           cfg.DBEndpoint,
		DBUser:               cfg.DBUser,
		DBPass:               cfg.DBPass,
		FetchInterval:        time.Duration(cfg.FetchIntervalSecs) * time.Second,
		MaxQueueSize:         cfg.MaxQueueSize,
		MaxConsecutiveErrors: uint32(cfg.MaxConsecutiveErrors),
		MaxPriceChangePct:    cfg.MaxPriceChangePct,
		MinExpectedPrice:     cfg.MinExpectedPrice,
		MaxExpectedPrice:     cfg.MaxExpectedPrice,
		DuplicateEpsilon:     cfg.DuplicateEpsilon,
		DuplicateWindow:      time.Duration(cfg.DuplicateWindowSecs) * time.Second,
		BatchSize:            cfg.BatchSize,
		RollupWindow:         time.Duration(cfg.RollupWindowMins) * time.Minute,
		CheckInterval:        time.Duration(cfg.CheckIntervalSecs) * time.Second,
		SignalExpiry:         time.Duration(cfg.SignalExpiryHours) * time.Hour,
		SignalRetention:      time.Duration(cfg.SignalRetentionMins) * time.Minute,
		MinSignalConfidence:  cfg.MinSignalConfidence,
		Cancel:               cancel,
	}

	stream, err := service.NewTickStream(ctx, &streamCfg)
	if err != nil {
		log.Printf("creating tick stream service: %v", err)
		return
	}

	go handleTermination(ctx, cancel)
	stream.Run(ctx)
}
