// Package engine runs the volume maintenance cycle: it drains buffered edits
// into the chunk store, rebuilds occupancy octrees for the chunks those edits
// touched, keeps the spatial index in sync, and applies cache pressure.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"voxelgrid.dev/internal/bvt"
	"voxelgrid.dev/internal/mapio"
	"voxelgrid.dev/internal/metrics"
	"voxelgrid.dev/internal/volume"
)

// Config wires an engine together. Map and Workers are required; everything
// else has a usable zero value.
type Config[V volume.Voxel, I volume.TypeInfo] struct {
	Map     *volume.Map[V, I]
	Workers int
	Cache   mapio.CacheConfig

	Log      zerolog.Logger
	Metrics  *metrics.EngineMetrics
	CycleLog CycleLogger

	CycleRateHz int
}

// CycleStats summarizes the work done by one cycle.
type CycleStats struct {
	Cycle         uint64        `json:"cycle"`
	Dirty         int           `json:"dirty"`
	Rebuilt       int           `json:"rebuilt"`
	Skipped       int           `json:"skipped"`
	Indexed       int           `json:"indexed"`
	Unindexed     int           `json:"unindexed"`
	EmptyRemoved  int           `json:"empty_removed"`
	CachesFlushed int           `json:"caches_flushed"`
	Evicted       int           `json:"evicted"`
	Live          int           `json:"live"`
	Compressed    int           `json:"compressed"`
	IndexLen      int           `json:"index_len"`
	Duration      time.Duration `json:"duration_ns"`
}

// CycleLogger receives the stats of every completed cycle.
type CycleLogger interface {
	LogCycle(CycleStats) error
}

// Engine owns the map and everything derived from it. All mutating methods
// except edit submission must be called from the coordinator goroutine; edit
// submission is safe from any goroutine.
type Engine[V volume.Voxel, I volume.TypeInfo] struct {
	m      *volume.Map[V, I]
	buf    *mapio.EditBuffer[V]
	editor *mapio.Editor[V]
	tree   *bvt.Tree
	empty  *mapio.EmptyChunks
	caches []*volume.LocalCache[V]

	workers  int
	cacheCfg mapio.CacheConfig
	rateHz   int

	log      zerolog.Logger
	met      *metrics.EngineMetrics
	cycleLog CycleLogger

	cycle     atomic.Uint64
	lastDirty []volume.ChunkKey
	stop      chan struct{}
	exec      chan func()

	subMu  sync.Mutex
	subSeq int
	subs   map[int]chan CycleStats
}

func New[V volume.Voxel, I volume.TypeInfo](cfg Config[V, I]) (*Engine[V, I], error) {
	if cfg.Map == nil {
		return nil, fmt.Errorf("engine: nil map")
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("engine: workers must be >= 1, got %d", cfg.Workers)
	}
	if cfg.Cache == (mapio.CacheConfig{}) {
		cfg.Cache = mapio.DefaultCacheConfig()
	}
	if cfg.CycleRateHz == 0 {
		cfg.CycleRateHz = 20
	}
	buf := mapio.NewEditBuffer[V]()
	caches := make([]*volume.LocalCache[V], cfg.Workers)
	for i := range caches {
		caches[i] = volume.NewLocalCache[V]()
	}
	return &Engine[V, I]{
		m:        cfg.Map,
		buf:      buf,
		editor:   mapio.NewEditor(buf, cfg.Map.Chunks.Edge()),
		tree:     bvt.NewTree(cfg.Map.Chunks.Edge()),
		empty:    &mapio.EmptyChunks{},
		caches:   caches,
		workers:  cfg.Workers,
		cacheCfg: cfg.Cache,
		rateHz:   cfg.CycleRateHz,
		log:      cfg.Log,
		met:      cfg.Metrics,
		cycleLog: cfg.CycleLog,
		stop:     make(chan struct{}),
		exec:     make(chan func(), 64),
		subs:     make(map[int]chan CycleStats),
	}, nil
}

// Editor returns the shared edit front end. Safe for concurrent use.
func (e *Engine[V, I]) Editor() *mapio.Editor[V] { return e.editor }

// SubmitEdit buffers values over a chunk-local region of the chunk at key.
// Safe for concurrent use; the write lands at the next cycle's flush.
func (e *Engine[V, I]) SubmitEdit(key volume.ChunkKey, region volume.Extent, values []V) error {
	return e.buf.Submit(key, region, values)
}

// LastDirty returns the dirty keys of the most recently completed cycle.
// Coordinator only.
func (e *Engine[V, I]) LastDirty() []volume.ChunkKey { return e.lastDirty }

// Map returns the engine's map.
func (e *Engine[V, I]) Map() *volume.Map[V, I] { return e.m }

// Index returns the spatial index. Coordinator only.
func (e *Engine[V, I]) Index() *bvt.Tree { return e.tree }

// Cycles returns the number of completed cycles.
func (e *Engine[V, I]) Cycles() uint64 { return e.cycle.Load() }

// Run executes cycles at the configured rate until ctx is cancelled or Stop
// is called.
func (e *Engine[V, I]) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(e.rateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stop:
			return nil
		case fn := <-e.exec:
			fn()
		case <-ticker.C:
			if err := e.Cycle(); err != nil {
				return err
			}
		}
	}
}

func (e *Engine[V, I]) Stop() { close(e.stop) }

// Do runs fn on the coordinator goroutine between cycles and waits for it.
// It is how request handlers reach coordinator-only state while Run is
// active.
func (e *Engine[V, I]) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		fn()
		close(done)
	}
	select {
	case e.exec <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stop:
		return fmt.Errorf("engine: stopped")
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stop:
		return fmt.Errorf("engine: stopped")
	}
}

// ResumeAt sets the cycle counter when resuming from a snapshot. Call before
// the first Cycle.
func (e *Engine[V, I]) ResumeAt(cycle uint64) { e.cycle.Store(cycle) }

// Reindex rebuilds the spatial index from every chunk in the store. Used
// after a snapshot restore, when the store is populated but nothing is
// indexed yet. Coordinator only.
func (e *Engine[V, I]) Reindex() error {
	store := e.m.Chunks
	keys := store.Keys()

	octs := make([]*bvt.Octree, len(keys))
	errs := make([]error, len(keys))
	mapio.ForkJoin(e.workers, len(keys), func(worker, i int) {
		reader := store.Reader(e.caches[worker])
		ch, err := reader.Chunk(keys[i])
		if err != nil || ch == nil {
			errs[i] = err
			return
		}
		view := e.m.InfoView(ch)
		octs[i] = bvt.BuildOctree(ch.Edge, func(x, y, z int) bool {
			return !view.EmptyAt(x, y, z)
		})
	})
	for i, key := range keys {
		if errs[i] != nil {
			return fmt.Errorf("engine: reindex %v: %w", key, errs[i])
		}
		if octs[i] == nil || octs[i].Empty() {
			continue
		}
		e.tree.Insert(key, octs[i])
	}
	mapio.FlushLocalCaches(store, e.caches)
	return nil
}

// Cycle runs one full maintenance pass. The phase order is load-bearing:
// empty chunks marked while rebuilding octrees must leave the store before
// the next flush can merge edits into them, and local caches must be folded
// back before eviction so recency reflects this cycle's reads.
func (e *Engine[V, I]) Cycle() error {
	start := time.Now()
	store := e.m.Chunks

	dirty, err := e.buf.Flush(store)
	if err != nil {
		return fmt.Errorf("engine: flush: %w", err)
	}
	keys := dirty.Keys()
	e.lastDirty = keys

	octs := make([]*bvt.Octree, len(keys))
	errs := make([]error, len(keys))
	mapio.ForkJoin(e.workers, len(keys), func(worker, i int) {
		reader := store.Reader(e.caches[worker])
		ch, err := reader.Chunk(keys[i])
		if err != nil {
			errs[i] = err
			return
		}
		if ch == nil {
			return
		}
		view := e.m.InfoView(ch)
		octs[i] = bvt.BuildOctree(ch.Edge, func(x, y, z int) bool {
			return !view.EmptyAt(x, y, z)
		})
	})

	var stats CycleStats
	stats.Dirty = len(keys)
	for i, key := range keys {
		if errs[i] != nil {
			return fmt.Errorf("engine: rebuild %v: %w", key, errs[i])
		}
		if octs[i] == nil {
			// The chunk vanished between flush and rebuild. Nothing removes
			// chunks mid-cycle, so this points at a caller bypassing the
			// coordinator.
			e.log.Warn().Str("chunk", key.String()).Msg("dirty chunk absent from store, skipping")
			stats.Skipped++
			continue
		}
		stats.Rebuilt++
		if octs[i].Empty() {
			if e.tree.Remove(key) {
				stats.Unindexed++
			}
			e.empty.Mark(key)
			continue
		}
		e.tree.Insert(key, octs[i])
		stats.Indexed++
	}

	stats.EmptyRemoved = mapio.RemoveEmpty(e.empty, store)
	stats.CachesFlushed = mapio.FlushLocalCaches(store, e.caches)
	stats.Evicted = mapio.CompressLRU(store, e.cacheCfg, e.workers)

	stats.Cycle = e.cycle.Add(1)
	stats.Live = store.LenLive()
	stats.Compressed = store.LenCompressed()
	stats.IndexLen = e.tree.Len()
	stats.Duration = time.Since(start)

	e.publish(stats)
	return nil
}

func (e *Engine[V, I]) publish(stats CycleStats) {
	if e.met != nil {
		e.met.CyclesTotal.Inc()
		e.met.DirtyChunksTotal.Add(float64(stats.Dirty))
		e.met.OctreesBuilt.Add(float64(stats.Rebuilt))
		e.met.RegenSkipped.Add(float64(stats.Skipped))
		e.met.EmptyChunksRemoved.Add(float64(stats.EmptyRemoved))
		e.met.CachesFlushed.Add(float64(stats.CachesFlushed))
		e.met.ChunksEvicted.Add(float64(stats.Evicted))
		e.met.LiveChunks.Set(float64(stats.Live))
		e.met.CompressedChunks.Set(float64(stats.Compressed))
		e.met.IndexEntries.Set(float64(stats.IndexLen))
		e.met.CycleDuration.Observe(stats.Duration.Seconds())
	}
	if e.cycleLog != nil {
		if err := e.cycleLog.LogCycle(stats); err != nil {
			e.log.Error().Err(err).Msg("cycle log write failed")
		}
	}
	if stats.Dirty > 0 || stats.Evicted > 0 {
		e.log.Debug().
			Uint64("cycle", stats.Cycle).
			Int("dirty", stats.Dirty).
			Int("rebuilt", stats.Rebuilt).
			Int("empty_removed", stats.EmptyRemoved).
			Int("evicted", stats.Evicted).
			Dur("took", stats.Duration).
			Msg("cycle")
	}

	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		sendLatest(ch, stats)
	}
}

// Subscribe registers a listener for cycle stats. Slow listeners lose old
// entries rather than stalling the coordinator.
func (e *Engine[V, I]) Subscribe() (int, <-chan CycleStats) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.subSeq++
	id := e.subSeq
	ch := make(chan CycleStats, 8)
	e.subs[id] = ch
	return id, ch
}

func (e *Engine[V, I]) Unsubscribe(id int) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	if ch, ok := e.subs[id]; ok {
		delete(e.subs, id)
		close(ch)
	}
}

func sendLatest(ch chan CycleStats, s CycleStats) {
	select {
	case ch <- s:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}
