// Package metrics provides Prometheus metrics for the voxel engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the Prometheus registry for all engine metrics.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// EngineMetrics holds the metrics published by one engine instance.
type EngineMetrics struct {
	// Store state (gauges)
	LiveChunks       prometheus.Gauge
	CompressedChunks prometheus.Gauge
	IndexEntries     prometheus.Gauge

	// Per-cycle work (counters)
	CyclesTotal        prometheus.Counter
	DirtyChunksTotal   prometheus.Counter
	OctreesBuilt       prometheus.Counter
	EmptyChunksRemoved prometheus.Counter
	ChunksEvicted      prometheus.Counter
	CachesFlushed      prometheus.Counter
	RegenSkipped       prometheus.Counter

	CycleDuration prometheus.Histogram
}

// NewEngineMetrics registers engine metrics with reg. Call once per registry.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	f := promauto.With(reg)
	return &EngineMetrics{
		LiveChunks: f.NewGauge(prometheus.GaugeOpts{
			Name: "voxelgrid_live_chunks",
			Help: "Decompressed chunks currently held by the store.",
		}),
		CompressedChunks: f.NewGauge(prometheus.GaugeOpts{
			Name: "voxelgrid_compressed_chunks",
			Help: "Compressed chunks currently held by the store.",
		}),
		IndexEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "voxelgrid_index_entries",
			Help: "Chunks present in the spatial index.",
		}),
		CyclesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "voxelgrid_cycles_total",
			Help: "Completed engine cycles.",
		}),
		DirtyChunksTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "voxelgrid_dirty_chunks_total",
			Help: "Chunk keys flushed as dirty across all cycles.",
		}),
		OctreesBuilt: f.NewCounter(prometheus.CounterOpts{
			Name: "voxelgrid_octrees_built_total",
			Help: "Occupancy octrees rebuilt for dirty chunks.",
		}),
		EmptyChunksRemoved: f.NewCounter(prometheus.CounterOpts{
			Name: "voxelgrid_empty_chunks_removed_total",
			Help: "Chunks removed from the map after becoming entirely empty.",
		}),
		ChunksEvicted: f.NewCounter(prometheus.CounterOpts{
			Name: "voxelgrid_chunks_evicted_total",
			Help: "Live chunks evicted and compressed by cache pressure.",
		}),
		CachesFlushed: f.NewCounter(prometheus.CounterOpts{
			Name: "voxelgrid_local_cache_chunks_flushed_total",
			Help: "Worker-cache chunks folded back into the live store.",
		}),
		RegenSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "voxelgrid_regen_skipped_total",
			Help: "Dirty chunk keys skipped because the chunk was absent from the store.",
		}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxelgrid_cycle_duration_seconds",
			Help:    "Wall time of one full engine cycle.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
	}
}
