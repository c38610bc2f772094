// Package snapshot persists the full chunk volume to disk and restores it.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"voxelgrid.dev/internal/volume"
)

type Header struct {
	Version       int    `json:"version"`
	Cycle         uint64 `json:"cycle"`
	PaletteDigest string `json:"palette_digest,omitempty"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	ChunkEdge int    `json:"chunk_edge"`
	AmbientID uint16 `json:"ambient_id"`

	Chunks []ChunkV1 `json:"chunks"`
}

type ChunkV1 struct {
	Key    [3]int   `json:"key"`
	Blocks []uint16 `json:"blocks"`
}

// Capture exports every chunk of the store, compressed chunks included,
// into a snapshot. Coordinator only.
func Capture[V volume.Voxel](store *volume.Store[V], cycle uint64, paletteDigest string) (SnapshotV1, error) {
	snap := SnapshotV1{
		Header:    Header{Version: 1, Cycle: cycle, PaletteDigest: paletteDigest},
		ChunkEdge: store.Edge(),
		AmbientID: uint16(store.Ambient().TypeIndex()),
	}
	err := store.ForEach(func(key volume.ChunkKey, data []V) error {
		blocks := make([]uint16, len(data))
		for i, v := range data {
			blocks[i] = uint16(v.TypeIndex())
		}
		snap.Chunks = append(snap.Chunks, ChunkV1{Key: [3]int{key.X, key.Y, key.Z}, Blocks: blocks})
		return nil
	})
	if err != nil {
		return snap, fmt.Errorf("snapshot: export: %w", err)
	}
	return snap, nil
}

// Restore loads every snapshot chunk into the store. The store must be empty
// and match the snapshot's chunk edge.
func Restore[V volume.Voxel](store *volume.Store[V], snap SnapshotV1) error {
	if snap.ChunkEdge != store.Edge() {
		return fmt.Errorf("snapshot: chunk edge %d does not match store edge %d", snap.ChunkEdge, store.Edge())
	}
	if store.LenLive()+store.LenCompressed() != 0 {
		return fmt.Errorf("snapshot: restore into non-empty store")
	}
	edge := store.Edge()
	region := volume.Extent{Shape: volume.Point{X: edge, Y: edge, Z: edge}}
	codec := store.Codec()
	for _, cv := range snap.Chunks {
		if len(cv.Blocks) != edge*edge*edge {
			return fmt.Errorf("snapshot: chunk %v has %d voxels, want %d", cv.Key, len(cv.Blocks), edge*edge*edge)
		}
		values := make([]V, len(cv.Blocks))
		for i, id := range cv.Blocks {
			values[i] = codec.Decode(id)
		}
		key := volume.ChunkKey{X: cv.Key[0], Y: cv.Key[1], Z: cv.Key[2]}
		if err := store.WriteRegion(key, region, values); err != nil {
			return fmt.Errorf("snapshot: chunk %v: %w", cv.Key, err)
		}
	}
	return nil
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Read header line (ignore it, gob also contains the header).
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// Filename returns the canonical snapshot file name for a cycle.
func Filename(cycle uint64) string {
	return fmt.Sprintf("snap-%012d.zst", cycle)
}

// Latest returns the newest snapshot file in dir by name, or "" if none.
// Snapshot filenames embed the cycle number zero-padded, so lexical order is
// cycle order.
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) == ".zst" {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}
