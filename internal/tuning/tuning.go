package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ChunkEdge    int    `yaml:"chunk_edge"`
	AmbientBlock uint16 `yaml:"ambient_block"`

	Workers     int `yaml:"workers"`
	CycleRateHz int `yaml:"cycle_rate_hz"`

	Cache CacheTuning `yaml:"cache"`

	SnapshotEveryCycles int `yaml:"snapshot_every_cycles"`

	ListenAddr string `yaml:"listen_addr"`
}

type CacheTuning struct {
	MaxLiveChunks                  int `yaml:"max_live_chunks"`
	MaxCompressedPerCyclePerWorker int `yaml:"max_compressed_per_cycle_per_worker"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.applyDefaults()
	if err := t.validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Default returns the tuning used when no file is given.
func Default() Tuning {
	var t Tuning
	t.applyDefaults()
	return t
}

func (t *Tuning) applyDefaults() {
	if t.ChunkEdge == 0 {
		t.ChunkEdge = 16
	}
	if t.Workers == 0 {
		t.Workers = 4
	}
	if t.CycleRateHz == 0 {
		t.CycleRateHz = 20
	}
	if t.Cache.MaxLiveChunks == 0 {
		t.Cache.MaxLiveChunks = 100000
	}
	if t.Cache.MaxCompressedPerCyclePerWorker == 0 {
		t.Cache.MaxCompressedPerCyclePerWorker = 50
	}
	if t.SnapshotEveryCycles == 0 {
		t.SnapshotEveryCycles = 1200
	}
	if t.ListenAddr == "" {
		t.ListenAddr = ":8080"
	}
}

func (t *Tuning) validate() error {
	if t.ChunkEdge < 2 || t.ChunkEdge&(t.ChunkEdge-1) != 0 {
		return fmt.Errorf("chunk_edge must be a power of two >= 2, got %d", t.ChunkEdge)
	}
	if t.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", t.Workers)
	}
	if t.CycleRateHz < 1 {
		return fmt.Errorf("cycle_rate_hz must be >= 1, got %d", t.CycleRateHz)
	}
	if t.Cache.MaxLiveChunks < 1 {
		return fmt.Errorf("cache.max_live_chunks must be >= 1, got %d", t.Cache.MaxLiveChunks)
	}
	if t.Cache.MaxCompressedPerCyclePerWorker < 1 {
		return fmt.Errorf("cache.max_compressed_per_cycle_per_worker must be >= 1, got %d", t.Cache.MaxCompressedPerCyclePerWorker)
	}
	return nil
}
