package database

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dwelch/tickstream/shared"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"
)

const (
	// SQL statements.
	createTicksTableSQL   = "CREATE TABLE IF NOT EXISTS ticks (timestamp TEXT, price REAL, volume REAL, market_cap REAL, pct_change REAL, source TEXT, content_hash TEXT)"
	createRollupsTableSQL = "CREATE TABLE IF NOT EXISTS rollup_analytics (window_start TEXT, window_end TEXT, avg_price REAL, min_price REAL, max_price REAL, volatility_pct REAL, total_volume REAL, data_points INTEGER, created_at TEXT)"
	createCandlesTableSQL = "CREATE TABLE IF NOT EXISTS candles (market TEXT, timeframe TEXT, period_start INTEGER, open REAL, high REAL, low REAL, close REAL, volume REAL, tick_count INTEGER, UNIQUE(market, timeframe, period_start))"
	createSignalsTableSQL = "CREATE TABLE IF NOT EXISTS signals (id TEXT PRIMARY KEY, market TEXT, strategy TEXT, timeframe TEXT, action TEXT, entry_price REAL, stop_loss REAL, target_1 REAL, target_2 REAL, target_3 REAL, confidence REAL, status TEXT, created_at TEXT, updated_at TEXT, profit_loss REAL, max_profit REAL, max_drawdown REAL, exit_price REAL, exit_time TEXT)"

	insertTickSQL       = "INSERT OR IGNORE INTO ticks(timestamp, price, volume, market_cap, pct_change, source, content_hash) VALUES(?,?,?,?,?,?,?)"
	trailingTicksSQL    = "SELECT timestamp, price, volume, market_cap, pct_change, source FROM ticks WHERE timestamp > ? ORDER BY timestamp"
	insertRollupSQL     = "INSERT INTO rollup_analytics(window_start, window_end, avg_price, min_price, max_price, volatility_pct, total_volume, data_points, created_at) VALUES(?,?,?,?,?,?,?,?,?)"
	upsertCandleSQL     = "INSERT OR REPLACE INTO candles(market, timeframe, period_start, open, high, low, close, volume, tick_count) VALUES(?,?,?,?,?,?,?,?,?)"
	recentCandlesSQL    = "SELECT period_start, open, high, low, close, volume, tick_count FROM candles WHERE market = ? AND timeframe = ? ORDER BY period_start DESC LIMIT ?"
	insertSignalSQL     = "INSERT INTO signals(id, market, strategy, timeframe, action, entry_price, stop_loss, target_1, target_2, target_3, confidence, status, created_at, updated_at, profit_loss, max_profit, max_drawdown, exit_price, exit_time) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)"
	updateSignalExitSQL = "UPDATE signals SET status = ?, profit_loss = ?, max_profit = ?, max_drawdown = ?, exit_price = ?, exit_time = ?, updated_at = ? WHERE id = ?"
	updateSignalPNLSQL  = "UPDATE signals SET profit_loss = ?, max_profit = ?, max_drawdown = ?, updated_at = ? WHERE id = ?"
	activeSignalsSQL    = "SELECT id, market, strategy, timeframe, action, entry_price, stop_loss, target_1, target_2, target_3, confidence, status, created_at, updated_at, profit_loss, max_profit, max_drawdown FROM signals WHERE status = 'ACTIVE' ORDER BY created_at"
)

// DatabaseConfig is the configuration for the database.
type DatabaseConfig struct {
	// Endpoint represents the database connection endpoint.
	Endpoint string
	// User is the database user.
	User string
	// Pass is the database user pass.
	Pass string
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// Database represents the database connection.
type Database struct {
	cfg    *DatabaseConfig
	client *rqlitehttp.Client
}

// NewDatabase initializes a new database connection. A failure to establish
// the schema here is fatal and aborts startup.
func NewDatabase(ctx context.Context, cfg *DatabaseConfig) (*Database, error) {
	httpc := &http.Client{Timeout: time.Second * 5}
	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating database client: %w", err)
	}

	if cfg.User != "" {
		client.SetBasicAuth(cfg.User, cfg.Pass)
	}

	db := &Database{
		cfg:    cfg,
		client: client,
	}

	err = db.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping database: %w", err)
	}

	return db, nil
}

// bootstrap initializes the database schema.
func (db *Database) bootstrap(ctx context.Context) error {
	resp, err := db.client.Execute(ctx, rqlitehttp.SQLStatements{
		{SQL: createTicksTableSQL},
		{SQL: createRollupsTableSQL},
		{SQL: createCandlesTableSQL},
		{SQL: createSignalsTableSQL},
	}, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("creating schema: %d -> %s", idx, errStr)
	}

	return nil
}

// InsertTickBatch stores the provided ticks in one transaction. Duplicate-like
// rows are ignored per row without aborting the batch. It returns the number
// of rows inserted.
func (db *Database) InsertTickBatch(ctx context.Context, ticks []*shared.Tick, keys []shared.IdempotencyKey) (int, error) {
	if len(ticks) == 0 {
		return 0, nil
	}
	if len(ticks) != len(keys) {
		return 0, fmt.Errorf("tick batch has %d ticks but %d keys", len(ticks), len(keys))
	}

	stmts := make(rqlitehttp.SQLStatements, 0, len(ticks))
	for idx := range ticks {
		tick := ticks[idx]
		stmts = append(stmts, &rqlitehttp.SQLStatement{
			SQL: insertTickSQL,
			PositionalParams: []any{tick.Timestamp.Format(time.RFC3339Nano), tick.Price, tick.Volume,
				tick.MarketCap, tick.PriceChangePct, tick.Source, string(keys[idx])},
		})
	}

	resp, err := db.client.Execute(ctx, stmts, &rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
	if err != nil {
		return 0, err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return 0, fmt.Errorf("inserting tick batch: %d -> %s", idx, errStr)
	}

	var inserted int
	for idx := range resp.Results {
		inserted += int(resp.Results[idx].RowsAffected)
	}

	return inserted, nil
}

// TrailingTicks fetches all ticks persisted after the provided cutoff, in
// chronological order.
func (db *Database) TrailingTicks(ctx context.Context, cutoff time.Time) ([]*shared.Tick, error) {
	resp, err := db.client.QuerySingle(ctx, trailingTicksSQL, cutoff.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}

	results := resp.GetQueryResultsAssoc()
	if len(results) == 0 {
		return nil, nil
	}

	ticks := make([]*shared.Tick, 0, len(results[0].Rows))
	for _, row := range results[0].Rows {
		ts, err := time.Parse(time.RFC3339Nano, asString(row["timestamp"]))
		if err != nil {
			db.cfg.Logger.Error().Msgf("parsing persisted tick timestamp: %v", err)
			continue
		}

		ticks = append(ticks, &shared.Tick{
			Timestamp:      ts,
			Price:          asFloat(row["price"]),
			Volume:         asFloat(row["volume"]),
			MarketCap:      asFloat(row["market_cap"]),
			PriceChangePct: asFloat(row["pct_change"]),
			Source:         asString(row["source"]),
		})
	}

	return ticks, nil
}

// InsertRollup stores the provided rollup analytics row.
func (db *Database) InsertRollup(ctx context.Context, rollup *shared.RollupAnalytics) error {
	resp, err := db.client.Execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL: insertRollupSQL,
			PositionalParams: []any{rollup.WindowStart.Format(time.RFC3339Nano),
				rollup.WindowEnd.Format(time.RFC3339Nano), rollup.AveragePrice, rollup.MinPrice,
				rollup.MaxPrice, rollup.VolatilityPct, rollup.TotalVolume, rollup.DataPoints,
				rollup.CreatedOn.Format(time.RFC3339Nano)},
		},
	}, &rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("inserting rollup: %d -> %s", idx, errStr)
	}

	return nil
}

// UpsertCandle stores the provided closed candle, replacing any previous row
// for the same (market, timeframe, period).
func (db *Database) UpsertCandle(ctx context.Context, candle *shared.Candlestick) error {
	resp, err := db.client.Execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL: upsertCandleSQL,
			PositionalParams: []any{candle.Market, candle.Timeframe.String(), candle.PeriodStart.Unix(),
				candle.Open, candle.High, candle.Low, candle.Close, candle.Volume, candle.TickCount},
		},
	}, &rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("upserting candle: %d -> %s", idx, errStr)
	}

	return nil
}

// RecentCandles fetches the most recent closed candles for the provided market
// and timeframe, in chronological order.
func (db *Database) RecentCandles(ctx context.Context, market string, timeframe shared.Timeframe, limit int) ([]*shared.Candlestick, error) {
	resp, err := db.client.QuerySingle(ctx, recentCandlesSQL, market, timeframe.String(), limit)
	if err != nil {
		return nil, err
	}

	results := resp.GetQueryResultsAssoc()
	if len(results) == 0 {
		return nil, nil
	}

	rows := results[0].Rows
	candles := make([]*shared.Candlestick, 0, len(rows))

	// Rows arrive most recent first, reverse into chronological order.
	for idx := len(rows) - 1; idx >= 0; idx-- {
		row := rows[idx]
		candles = append(candles, &shared.Candlestick{
			Market:      market,
			Timeframe:   timeframe,
			PeriodStart: time.Unix(asInt64(row["period_start"]), 0).UTC(),
			Open:        asFloat(row["open"]),
			High:        asFloat(row["high"]),
			Low:         asFloat(row["low"]),
			Close:       asFloat(row["close"]),
			Volume:      asFloat(row["volume"]),
			TickCount:   uint32(asInt64(row["tick_count"])),
		})
	}

	return candles, nil
}

// InsertSignal stores the provided newly created signal.
func (db *Database) InsertSignal(ctx context.Context, signal *shared.Signal) error {
	target1, _ := signal.Target(1)
	target2, _ := signal.Target(2)
	target3, _ := signal.Target(3)

	resp, err := db.client.Execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL: insertSignalSQL,
			PositionalParams: []any{signal.ID, signal.Market, signal.Strategy, signal.Timeframe.String(),
				signal.Action.String(), signal.EntryPrice, signal.StopLoss, target1, target2, target3,
				signal.Confidence, signal.Status.String(), signal.CreatedOn.Format(time.RFC3339Nano),
				signal.UpdatedOn.Format(time.RFC3339Nano), signal.PNLPercent, signal.MaxProfit,
				signal.MaxDrawdown, signal.ExitPrice, ""},
		},
	}, &rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("inserting signal %s: %d -> %s", signal.ID, idx, errStr)
	}

	return nil
}

// UpdateSignalExit persists the full terminal transition of the provided signal.
func (db *Database) UpdateSignalExit(ctx context.Context, signal *shared.Signal) error {
	if !signal.Status.IsTerminal() {
		db.cfg.Logger.Error().Msgf("unexpected non-terminal signal for exit update: %s", spew.Sdump(signal))
		return fmt.Errorf("signal %s is not terminal", signal.ID)
	}

	resp, err := db.client.Execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL: updateSignalExitSQL,
			PositionalParams: []any{signal.Status.String(), signal.PNLPercent, signal.MaxProfit,
				signal.MaxDrawdown, signal.ExitPrice, signal.ExitTime.Format(time.RFC3339Nano),
				signal.UpdatedOn.Format(time.RFC3339Nano), signal.ID},
		},
	}, &rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("updating signal exit %s: %d -> %s", signal.ID, idx, errStr)
	}

	return nil
}

// UpdateSignalPNL persists only the running P&L of the provided signal, a
// lighter write than a full exit update.
func (db *Database) UpdateSignalPNL(ctx context.Context, signal *shared.Signal) error {
	resp, err := db.client.Execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL: updateSignalPNLSQL,
			PositionalParams: []any{signal.PNLPercent, signal.MaxProfit, signal.MaxDrawdown,
				signal.UpdatedOn.Format(time.RFC3339Nano), signal.ID},
		},
	}, &rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("updating signal pnl %s: %d -> %s", signal.ID, idx, errStr)
	}

	return nil
}

// ActiveSignals fetches all signals still in the active state, used to
// reconstruct the monitor working set after a restart.
func (db *Database) ActiveSignals(ctx context.Context) ([]*shared.Signal, error) {
	resp, err := db.client.QuerySingle(ctx, activeSignalsSQL)
	if err != nil {
		return nil, err
	}

	results := resp.GetQueryResultsAssoc()
	if len(results) == 0 {
		return nil, nil
	}

	signals := make([]*shared.Signal, 0, len(results[0].Rows))
	for _, row := range results[0].Rows {
		timeframe, err := shared.ParseTimeframe(asString(row["timeframe"]))
		if err != nil {
			db.cfg.Logger.Error().Msgf("parsing persisted signal timeframe: %v", err)
			continue
		}

		createdOn, err := time.Parse(time.RFC3339Nano, asString(row["created_at"]))
		if err != nil {
			db.cfg.Logger.Error().Msgf("parsing persisted signal creation time: %v", err)
			continue
		}

		updatedOn, err := time.Parse(time.RFC3339Nano, asString(row["updated_at"]))
		if err != nil {
			updatedOn = createdOn
		}

		targets := make([]float64, 0, 3)
		for _, col := range []string{"target_1", "target_2", "target_3"} {
			if target := asFloat(row[col]); target > 0 {
				targets = append(targets, target)
			}
		}

		signals = append(signals, &shared.Signal{
			ID:          asString(row["id"]),
			Market:      asString(row["market"]),
			Strategy:    asString(row["strategy"]),
			Timeframe:   timeframe,
			Action:      shared.ParseAction(asString(row["action"])),
			EntryPrice:  asFloat(row["entry_price"]),
			StopLoss:    asFloat(row["stop_loss"]),
			Targets:     targets,
			Confidence:  asFloat(row["confidence"]),
			Status:      shared.ParseSignalStatus(asString(row["status"])),
			CreatedOn:   createdOn,
			UpdatedOn:   updatedOn,
			PNLPercent:  asFloat(row["profit_loss"]),
			MaxProfit:   asFloat(row["max_profit"]),
			MaxDrawdown: asFloat(row["max_drawdown"]),
		})
	}

	return signals, nil
}

// asString converts the provided row value to a string.
func asString(value any) string {
	str, _ := value.(string)
	return str
}

// asFloat converts the provided row value to a float64.
func asFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// asInt64 converts the provided row value to an int64.
func asInt64(value any) int64 {
	switch v := value.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}
