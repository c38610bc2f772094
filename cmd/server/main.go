package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"voxelgrid.dev/internal/catalogs"
	"voxelgrid.dev/internal/engine"
	"voxelgrid.dev/internal/logx"
	"voxelgrid.dev/internal/mapio"
	"voxelgrid.dev/internal/metrics"
	"voxelgrid.dev/internal/persistence/indexdb"
	persistlog "voxelgrid.dev/internal/persistence/log"
	"voxelgrid.dev/internal/persistence/snapshot"
	"voxelgrid.dev/internal/transport/httpapi"
	"voxelgrid.dev/internal/transport/observer"
	"voxelgrid.dev/internal/tuning"
	"voxelgrid.dev/internal/volume"
)

func main() {
	var (
		addr       = flag.String("addr", "", "http listen address (default: tuning listen_addr)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (cycle stats + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := logx.NewLogger()

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn().Str("path", tp).Msg("tuning not found, using defaults")
			tune = tuning.Default()
		} else {
			logger.Fatal().Err(err).Msg("load tuning")
		}
	}

	cat, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("load catalogs")
	}
	if int(tune.AmbientBlock) >= len(cat.Palette) {
		logger.Fatal().Uint16("ambient_block", tune.AmbientBlock).Msg("ambient block outside palette")
	}

	_ = os.MkdirAll(*dataDir, 0o755)

	store, err := volume.NewStore(volume.StoreConfig[catalogs.Block]{
		ChunkEdge:   tune.ChunkEdge,
		Ambient:     catalogs.Block(tune.AmbientBlock),
		DecodeVoxel: catalogs.DecodeBlock,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("chunk store")
	}
	m, err := volume.NewMap(store, cat.VoxelPalette())
	if err != nil {
		logger.Fatal().Err(err).Msg("voxel map")
	}

	// Secondary index (does not affect the edit path).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index.sqlite"))
		if err != nil {
			logger.Fatal().Err(err).Msg("open index db")
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(cat, tune); err != nil {
			logger.Warn().Err(err).Msg("index db: upsert catalogs")
		}
	}

	cycleLog := persistlog.NewCycleLogger(*dataDir)
	defer cycleLog.Close()

	em := metrics.NewEngineMetrics(metrics.Registry)

	eng, err := engine.New(engine.Config[catalogs.Block, catalogs.BlockInfo]{
		Map:     m,
		Workers: tune.Workers,
		Cache: mapio.CacheConfig{
			MaxLiveChunks:                  tune.Cache.MaxLiveChunks,
			MaxCompressedPerCyclePerWorker: tune.Cache.MaxCompressedPerCyclePerWorker,
		},
		Log:         logger,
		Metrics:     em,
		CycleLog:    multiCycleLogger{a: cycleLog, b: idx},
		CycleRateHz: tune.CycleRateHz,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("engine")
	}

	// Resume from snapshot.
	snapDir := filepath.Join(*dataDir, "snapshots")
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad, err = snapshot.Latest(snapDir)
		if err != nil {
			logger.Fatal().Err(err).Msg("scan snapshots")
		}
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatal().Err(err).Str("path", snapshotToLoad).Msg("read snapshot")
		}
		if snap.Header.PaletteDigest != "" && snap.Header.PaletteDigest != cat.PaletteDigest {
			logger.Fatal().Str("snapshot", snap.Header.PaletteDigest).Str("catalog", cat.PaletteDigest).Msg("palette digest mismatch")
		}
		if err := snapshot.Restore(store, snap); err != nil {
			logger.Fatal().Err(err).Msg("restore snapshot")
		}
		if err := eng.Reindex(); err != nil {
			logger.Fatal().Err(err).Msg("reindex")
		}
		eng.ResumeAt(snap.Header.Cycle)
		logger.Info().
			Str("snapshot", filepath.Base(snapshotToLoad)).
			Uint64("cycle", snap.Header.Cycle).
			Int("chunks", len(snap.Chunks)).
			Msg("resumed from snapshot")
	}

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("engine stopped")
		}
	}()

	if tune.SnapshotEveryCycles > 0 {
		go snapshotLoop(ctx, eng, store, cat, idx, snapDir, uint64(tune.SnapshotEveryCycles), logger)
	}

	blockIDs := make([]string, len(cat.Palette))
	for i, info := range cat.Palette {
		blockIDs[i] = info.ID
	}
	obsSrv := observer.NewServer(eng, blockIDs, cat.PaletteDigest, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obsSrv.WSHandler())
	mux.Handle("/", httpapi.NewRouter(logger, eng))

	listen := strings.TrimSpace(*addr)
	if listen == "" {
		listen = tune.ListenAddr
	}
	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info().Str("addr", listen).Int("chunk_edge", tune.ChunkEdge).Int("workers", tune.Workers).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("listen and serve")
	}
}

// snapshotLoop captures the volume every snapshotEvery cycles. The capture
// itself runs on the coordinator; the disk write happens here.
func snapshotLoop(
	ctx context.Context,
	eng *engine.Engine[catalogs.Block, catalogs.BlockInfo],
	store *volume.Store[catalogs.Block],
	cat *catalogs.BlockCatalog,
	idx *indexdb.SQLiteIndex,
	snapDir string,
	snapshotEvery uint64,
	logger zerolog.Logger,
) {
	id, stats := eng.Subscribe()
	defer eng.Unsubscribe(id)

	var lastSnap uint64
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-stats:
			if !ok {
				return
			}
			if st.Cycle < lastSnap+snapshotEvery {
				continue
			}
			var (
				snap snapshot.SnapshotV1
				err  error
			)
			doErr := eng.Do(ctx, func() {
				snap, err = snapshot.Capture(store, st.Cycle, cat.PaletteDigest)
			})
			if doErr != nil {
				return
			}
			if err != nil {
				logger.Error().Err(err).Msg("snapshot capture")
				continue
			}
			lastSnap = st.Cycle
			path := filepath.Join(snapDir, snapshot.Filename(st.Cycle))
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				logger.Error().Err(err).Str("path", path).Msg("snapshot write")
				continue
			}
			logger.Info().Uint64("cycle", st.Cycle).Int("chunks", len(snap.Chunks)).Msg("snapshot written")
			if idx != nil {
				idx.RecordSnapshot(path, snap)
			}
		}
	}
}

// multiCycleLogger fans cycle stats out to the JSONL log and the sqlite
// index. A nil index is skipped.
type multiCycleLogger struct {
	a *persistlog.CycleLogger
	b *indexdb.SQLiteIndex
}

func (m multiCycleLogger) LogCycle(st engine.CycleStats) error {
	err := m.a.LogCycle(st)
	if m.b != nil {
		_ = m.b.LogCycle(st)
	}
	return err
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
