// Copyright 2025 James Ross
package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("KVSTORE_ADDR")
	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Seeder.InsertWorkers != 4 {
		t.Fatalf("expected default insert workers 4, got %d", cfg.Seeder.InsertWorkers)
	}
	if cfg.KVStore.Addr == "" {
		t.Fatalf("expected default kvstore addr")
	}
	if cfg.Cache.MaxLayers < cfg.Cache.MinLayers {
		t.Fatalf("expected max_layers >= min_layers by default")
	}
}

func TestValidateFails(t *testing.T) {
	cfg := defaultConfig()
	cfg.Cache.MinLayers = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for cache.min_layers < 1")
	}

	cfg = defaultConfig()
	cfg.Cache.MaxLayers = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for max_layers < min_layers")
	}

	cfg = defaultConfig()
	cfg.Cache.OverflowStrategy = "explode"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for invalid overflow_strategy")
	}

	cfg = defaultConfig()
	cfg.Seeder.InsertWorkers = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for seeder.insert_workers < 1")
	}
}
