// Package indexdb maintains a queryable SQLite index of cycle stats and
// snapshot locations. Writes go through a single async writer goroutine so
// the coordinator never blocks on the database.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelgrid.dev/internal/catalogs"
	"voxelgrid.dev/internal/engine"
	"voxelgrid.dev/internal/persistence/snapshot"
	"voxelgrid.dev/internal/tuning"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqCycle reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	cycle    engine.CycleStats
	snapshot snapshotRow
}

type snapshotRow struct {
	Cycle  uint64
	Path   string
	Chunks int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// High buffer: bursty cycles must not stall the coordinator.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS cycles (
			cycle INTEGER PRIMARY KEY,
			dirty INTEGER NOT NULL,
			rebuilt INTEGER NOT NULL,
			empty_removed INTEGER NOT NULL,
			evicted INTEGER NOT NULL,
			live INTEGER NOT NULL,
			compressed INTEGER NOT NULL,
			index_len INTEGER NOT NULL,
			duration_ns INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			cycle INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			chunks INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// LogCycle implements engine.CycleLogger. Entries are dropped if the indexer
// falls behind; JSONL logs remain the source of truth.
func (s *SQLiteIndex) LogCycle(stats engine.CycleStats) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqCycle, cycle: stats}:
	default:
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Cycle:  snap.Header.Cycle,
		Path:   path,
		Chunks: len(snap.Chunks),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
	}
}

// UpsertCatalogs stores the block palette and the tuning actually applied,
// keyed by digest, so a replay can verify it runs against the same world.
func (s *SQLiteIndex) UpsertCatalogs(cat *catalogs.BlockCatalog, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if b, _ := json.Marshal(cat.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "blocks_palette", digest: cat.PaletteDigest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LatestSnapshot returns the path and cycle of the most recent recorded
// snapshot, or "" if none.
func (s *SQLiteIndex) LatestSnapshot() (string, uint64, error) {
	var path string
	var cycle int64
	err := s.db.QueryRow(`SELECT path, cycle FROM snapshots ORDER BY cycle DESC LIMIT 1`).Scan(&path, &cycle)
	if err == sql.ErrNoRows {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	return path, uint64(cycle), nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertCycle, _ := s.db.Prepare(`INSERT OR REPLACE INTO cycles(cycle,dirty,rebuilt,empty_removed,evicted,live,compressed,index_len,duration_ns,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(cycle,path,chunks) VALUES(?,?,?)`)
	defer func() {
		if insertCycle != nil {
			_ = insertCycle.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqCycle:
			c := r.cycle
			raw, _ := json.Marshal(c)
			if insertCycle != nil {
				if _, err := tx.Stmt(insertCycle).Exec(
					int64(c.Cycle),
					c.Dirty,
					c.Rebuilt,
					c.EmptyRemoved,
					c.Evicted,
					c.Live,
					c.Compressed,
					c.IndexLen,
					int64(c.Duration),
					string(raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(
					int64(sn.Cycle),
					sn.Path,
					sn.Chunks,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
