package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the configuration struct for the service.
type Config struct {
	// Market is the tracked market symbol.
	Market string
	// DBEndpoint is the database connection endpoint.
	DBEndpoint string
	// DBUser is the database user.
	DBUser string
	// DBPass is the database user pass.
	DBPass string
	// FetchIntervalSecs is the minimum duration between source fetches.
	FetchIntervalSecs int
	// MaxQueueSize is the capacity of the admitted tick snapshot.
	MaxQueueSize int
	// MaxConsecutiveErrors is the source error count that opens the circuit.
	MaxConsecutiveErrors int
	// MaxPriceChangePct is the maximum tolerated fractional price change.
	MaxPriceChangePct float64
	// MinExpectedPrice is the lower bound of the accepted price band.
	MinExpectedPrice float64
	// MaxExpectedPrice is the upper bound of the accepted price band.
	MaxExpectedPrice float64
	// DuplicateEpsilon is the price delta under which ticks are duplicates.
	DuplicateEpsilon float64
	// DuplicateWindowSecs is the time delta scanned for duplicate ticks.
	DuplicateWindowSecs int
	// BatchSize is the buffered tick count that triggers a flush.
	BatchSize int
	// RollupWindowMins is the trailing window rollups are computed over.
	RollupWindowMins int
	// CheckIntervalSecs is the cadence of the signal reconciliation loop.
	CheckIntervalSecs int
	// SignalExpiryHours is the maximum lifetime of an active signal.
	SignalExpiryHours int
	// SignalRetentionMins is how long terminal signals stay in memory.
	SignalRetentionMins int
	// MinSignalConfidence is the floor below which no signal is saved.
	MinSignalConfidence float64

	registeredFlags map[string]bool
}

// setDefaults seeds the config with sane defaults. Environment variables and
// command line flags override them.
func (cfg *Config) setDefaults() {
	cfg.Market = "BTCUSDT"
	cfg.DBEndpoint = "http://localhost:4001"
	cfg.FetchIntervalSecs = 300
	cfg.MaxQueueSize = 1000
	cfg.MaxConsecutiveErrors = 5
	cfg.MaxPriceChangePct = 0.10
	cfg.MinExpectedPrice = 20000
	cfg.MaxExpectedPrice = 200000
	cfg.DuplicateEpsilon = 0.01
	cfg.DuplicateWindowSecs = 60
	cfg.BatchSize = 20
	cfg.RollupWindowMins = 60
	cfg.CheckIntervalSecs = 30
	cfg.SignalExpiryHours = 24
	cfg.SignalRetentionMins = 60
	cfg.MinSignalConfidence = 60
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if cfg.Market == "" {
		errs = errors.Join(errs, fmt.Errorf("market cannot be an empty string"))
	}
	if cfg.DBEndpoint == "" {
		errs = errors.Join(errs, fmt.Errorf("database endpoint cannot be an empty string"))
	}
	if cfg.FetchIntervalSecs <= 0 {
		errs = errors.Join(errs, fmt.Errorf("fetch interval must be positive"))
	}
	if cfg.MaxQueueSize <= 0 {
		errs = errors.Join(errs, fmt.Errorf("queue size must be positive"))
	}
	if cfg.BatchSize <= 0 {
		errs = errors.Join(errs, fmt.Errorf("batch size must be positive"))
	}
	if cfg.CheckIntervalSecs <= 0 {
		errs = errors.Join(errs, fmt.Errorf("check interval must be positive"))
	}
	if cfg.MinExpectedPrice >= cfg.MaxExpectedPrice {
		errs = errors.Join(errs, fmt.Errorf("price band is inverted or empty"))
	}

	return errs
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	switch val.Elem().Kind() {
	case reflect.String:
		def := val.Elem().String()
		if defValue != "" {
			def = defValue
		}
		flag.StringVar(value.(*string), name, def, usage)
	case reflect.Int:
		def := int(val.Elem().Int())
		if defValue != "" {
			def, _ = strconv.Atoi(defValue)
		}
		flag.IntVar(value.(*int), name, def, usage)
	case reflect.Float64:
		def := val.Elem().Float()
		if defValue != "" {
			def, _ = strconv.ParseFloat(defValue, 64)
		}
		flag.Float64Var(value.(*float64), name, def, usage)
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	cfg.setDefaults()

	// Register command line arguments using loaded environment variables as defaults.
	flags := []struct {
		name  string
		value interface{}
		usage string
	}{
		{"market", &cfg.Market, "the tracked market symbol"},
		{"dbendpoint", &cfg.DBEndpoint, "the database connection endpoint"},
		{"dbuser", &cfg.DBUser, "the database user"},
		{"dbpass", &cfg.DBPass, "the database user pass"},
		{"fetchinterval", &cfg.FetchIntervalSecs, "the fetch interval in seconds"},
		{"maxqueuesize", &cfg.MaxQueueSize, "the admitted tick snapshot capacity"},
		{"maxconsecutiveerrors", &cfg.MaxConsecutiveErrors, "the error count that opens the source circuit"},
		{"maxpricechangepct", &cfg.MaxPriceChangePct, "the maximum tolerated fractional price change"},
		{"minexpectedprice", &cfg.MinExpectedPrice, "the lower bound of the accepted price band"},
		{"maxexpectedprice", &cfg.MaxExpectedPrice, "the upper bound of the accepted price band"},
		{"duplicateepsilon", &cfg.DuplicateEpsilon, "the price delta under which ticks are duplicates"},
		{"duplicatewindow", &cfg.DuplicateWindowSecs, "the duplicate scan window in seconds"},
		{"batchsize", &cfg.BatchSize, "the tick count that triggers a batch flush"},
		{"rollupwindow", &cfg.RollupWindowMins, "the rollup trailing window in minutes"},
		{"checkinterval", &cfg.CheckIntervalSecs, "the signal check cadence in seconds"},
		{"signalexpiry", &cfg.SignalExpiryHours, "the maximum active signal lifetime in hours"},
		{"signalretention", &cfg.SignalRetentionMins, "the terminal signal retention in minutes"},
		{"minsignalconfidence", &cfg.MinSignalConfidence, "the confidence floor for saved signals"},
	}

	for idx := range flags {
		err = cfg.registerFlag(flags[idx].name, flags[idx].value, flags[idx].usage)
		if err != nil {
			return err
		}
	}

	// Parse command-line flags.
	flag.Parse()

	return cfg.Validate()
}
