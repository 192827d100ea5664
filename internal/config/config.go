// Package config loads sqkvd's process configuration: shard topology,
// size limits, snapshot directory and schedule, sweep interval, and the
// two listen addresses, merging built-in defaults with environment
// overrides through sq_config_combine.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/mariusromeiser/sq_config_combine"
)

// Config holds every tunable of a running sqkvd process.
type Config struct {
	ListenAddr        string
	MetricsListenAddr string

	ShardCount       int
	ShardCapacity    int
	MaxKeyBytes      int
	MaxValueBytes    int

	SnapshotDir             string
	SnapshotIntervalSeconds int
	SnapshotKeep            int
	SweepIntervalMillis     int64
}

// Unbounded disables a size-limit dimension, matching sqkv.Unbounded.
const Unbounded = -1

func defaults() *Config {
	return &Config{
		ListenAddr:        ":6399",
		MetricsListenAddr: ":6400",

		ShardCount:    16,
		ShardCapacity: 10000,
		MaxKeyBytes:   1024,
		MaxValueBytes: 1 << 20,

		SnapshotDir:             "./snapshots",
		SnapshotIntervalSeconds: 300,
		SnapshotKeep:            5,
		SweepIntervalMillis:     1000,
	}
}

// Load merges defaults() with whatever SQKV_* environment variables are
// set, combined via sq_config_combine (defaults first, environment
// values as the user config).
func Load() (*Config, error) {
	userConfig, err := fromEnv()
	if err != nil {
		return nil, err
	}

	sq, err := sq_config_combine.New[Config](defaults(), userConfig)
	if err != nil {
		return nil, fmt.Errorf("config: combine defaults and environment: %w", err)
	}
	combined := sq.Combine()
	return combined, nil
}

func fromEnv() (*Config, error) {
	cfg := &Config{}

	cfg.ListenAddr = os.Getenv("SQKV_LISTEN")
	cfg.MetricsListenAddr = os.Getenv("SQKV_METRICS_LISTEN")
	cfg.SnapshotDir = os.Getenv("SQKV_SNAPSHOT_DIR")

	var err error
	if cfg.ShardCount, err = intEnv("SQKV_SHARDS"); err != nil {
		return nil, err
	}
	if cfg.ShardCapacity, err = intEnv("SQKV_SHARD_CAPACITY"); err != nil {
		return nil, err
	}
	if cfg.MaxKeyBytes, err = intEnv("SQKV_MAX_KEY_BYTES"); err != nil {
		return nil, err
	}
	if cfg.MaxValueBytes, err = intEnv("SQKV_MAX_VALUE_BYTES"); err != nil {
		return nil, err
	}
	if cfg.SnapshotIntervalSeconds, err = intEnv("SQKV_SNAPSHOT_INTERVAL_SECONDS"); err != nil {
		return nil, err
	}
	if cfg.SnapshotKeep, err = intEnv("SQKV_SNAPSHOT_KEEP"); err != nil {
		return nil, err
	}

	if raw := os.Getenv("SQKV_SWEEP_INTERVAL_MILLIS"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: SQKV_SWEEP_INTERVAL_MILLIS: %w", err)
		}
		cfg.SweepIntervalMillis = v
	}

	return cfg, nil
}

func intEnv(name string) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	return v, nil
}
