// Copyright 2025 James Ross
package redisclient

import (
	"runtime"

	"github.com/flyingrobots/event-analytics-engine/internal/config"
	"github.com/redis/go-redis/v9"
)

// New returns a configured go-redis v9 client used as the KV store backend
// for the tiered cache's remote layer and the aggregation engine's counters
// and HyperLogLog sketches.
func New(cfg *config.Config) *redis.Client {
	poolSize := cfg.KVStore.PoolSizeMultiplier * runtime.NumCPU()
	if poolSize <= 0 {
		poolSize = 10 * runtime.NumCPU()
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.KVStore.Addr,
		Username:     cfg.KVStore.Username,
		Password:     cfg.KVStore.Password,
		DB:           cfg.KVStore.DB,
		PoolSize:     poolSize,
		MinIdleConns: cfg.KVStore.MinIdleConns,
		DialTimeout:  cfg.KVStore.DialTimeout,
		ReadTimeout:  cfg.KVStore.ReadTimeout,
		WriteTimeout: cfg.KVStore.WriteTimeout,
		MaxRetries:   cfg.KVStore.MaxRetries,
	})
}
