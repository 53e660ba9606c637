package shared

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

// Tick represents a single price observation for a market.
type Tick struct {
	Market         string
	Price          float64
	Volume         float64
	MarketCap      float64
	PriceChangePct float64
	Timestamp      time.Time
	Source         string
}

// IdempotencyKey identifies a tick by its content. Ticks sharing a key are
// treated as the same observation by downstream consumers.
type IdempotencyKey string

// NewIdempotencyKey derives the idempotency key of the provided tick from its
// timestamp, price and source. The key is computed once and passed alongside
// the tick instead of being recomputed at each layer.
func NewIdempotencyKey(tick *Tick) IdempotencyKey {
	payload := fmt.Sprintf("%s_%v_%s", tick.Timestamp.Format(time.RFC3339Nano), tick.Price, tick.Source)
	sum := md5.Sum([]byte(payload))
	return IdempotencyKey(hex.EncodeToString(sum[:])[:16])
}
