package config

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// AggregateConfig holds configuration for aggregation.
type AggregateConfig struct {
	RPCURL        string
	Input         string
	Window        time.Duration
	PGDSN         string
	BatchSize     int
	StateFile     string
	RecomputeFrom uint64
	MaxRetries    int
	RetryBackoff  time.Duration
	TokenDecimals map[string]string
	LogLevel      string
}

// LoadAggregate merges config file, environment variables, and flags into AggregateConfig.
func LoadAggregate(cfgFile string, flags *pflag.FlagSet) (AggregateConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("in", "./data/typed_events.jsonl")
		v.SetDefault("window", 5*time.Minute)
		v.SetDefault("batch-size", 1000)
		v.SetDefault("max-retries", 3)
		v.SetDefault("retry-backoff", 500*time.Millisecond)
		v.SetDefault("log-level", "info")
	})
	if err != nil {
		return AggregateConfig{}, err
	}

	return AggregateConfig{
		RPCURL:        v.GetString("rpc"),
		Input:         v.GetString("in"),
		Window:        v.GetDuration("window"),
		PGDSN:         v.GetString("pg-dsn"),
		BatchSize:     v.GetInt("batch-size"),
		StateFile:     v.GetString("progress-file"),
		RecomputeFrom: v.GetUint64("recompute-from"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
		TokenDecimals: getStringMap(v, "token-decimals"),
		LogLevel:      v.GetString("log-level"),
	}, nil
}
