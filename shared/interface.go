package shared

import (
	"context"
)

// TickerFetcher defines the requirements for fetching ticker data from a
// price source.
type TickerFetcher interface {
	// FetchTicker fetches the current ticker snapshot for the configured symbol.
	FetchTicker(ctx context.Context) (*Tick, error)
}

// TickSubscriber defines the requirements for receiving admitted ticks from
// the streamer. Subscribers are invoked synchronously in registration order; a
// subscriber returning an error is deregistered.
type TickSubscriber interface {
	// Name identifies the subscriber for registration and deregistration.
	Name() string
	// ProcessTick processes the provided admitted tick.
	ProcessTick(tick *Tick) error
}
