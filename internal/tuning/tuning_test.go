package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeFile(t, "chunk_edge: 32\n")
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ChunkEdge != 32 {
		t.Fatalf("chunk_edge = %d, want 32", got.ChunkEdge)
	}
	if got.Workers != 4 {
		t.Fatalf("workers default = %d, want 4", got.Workers)
	}
	if got.Cache.MaxLiveChunks != 100000 {
		t.Fatalf("max_live_chunks default = %d, want 100000", got.Cache.MaxLiveChunks)
	}
	if got.ListenAddr != ":8080" {
		t.Fatalf("listen_addr default = %q", got.ListenAddr)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeFile(t, `
chunk_edge: 8
ambient_block: 0
workers: 2
cycle_rate_hz: 10
cache:
  max_live_chunks: 64
  max_compressed_per_cycle_per_worker: 4
snapshot_every_cycles: 100
`)
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ChunkEdge != 8 || got.Workers != 2 || got.CycleRateHz != 10 {
		t.Fatalf("unexpected tuning: %+v", got)
	}
	if got.Cache.MaxLiveChunks != 64 || got.Cache.MaxCompressedPerCyclePerWorker != 4 {
		t.Fatalf("unexpected cache tuning: %+v", got.Cache)
	}
}

func TestLoadRejectsBadChunkEdge(t *testing.T) {
	for _, body := range []string{"chunk_edge: 1\n", "chunk_edge: 12\n", "workers: -1\n"} {
		if _, err := Load(writeFile(t, body)); err == nil {
			t.Fatalf("expected validation error for %q", body)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
