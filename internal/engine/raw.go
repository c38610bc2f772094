package engine

import (
	"context"
	"fmt"

	"voxelgrid.dev/internal/volume"
)

// Params describes the fixed shape of a running engine for clients.
type Params struct {
	ChunkEdge   int    `json:"chunk_edge"`
	PaletteLen  int    `json:"palette_len"`
	Workers     int    `json:"workers"`
	CycleRateHz int    `json:"cycle_rate_hz"`
	AmbientID   uint16 `json:"ambient_id"`
}

func (e *Engine[V, I]) Params() Params {
	return Params{
		ChunkEdge:   e.m.Chunks.Edge(),
		PaletteLen:  e.m.Palette.Len(),
		Workers:     e.workers,
		CycleRateHz: e.rateHz,
		AmbientID:   uint16(e.m.Chunks.Ambient().TypeIndex()),
	}
}

// decodeIDs validates wire type ids against the palette and converts them to
// voxels. Out-of-range ids in a request are a client error, not a panic.
func (e *Engine[V, I]) decodeIDs(ids []uint16) ([]V, error) {
	out := make([]V, len(ids))
	codec := e.m.Chunks.Codec()
	n := e.m.Palette.Len()
	for i, id := range ids {
		if int(id) >= n {
			return nil, fmt.Errorf("engine: type id %d out of palette range [0,%d)", id, n)
		}
		out[i] = codec.Decode(id)
	}
	return out, nil
}

// SubmitEditRaw buffers a write of wire type ids over a world-space extent.
// Safe for concurrent use; the write lands at the next cycle's flush.
func (e *Engine[V, I]) SubmitEditRaw(ext volume.Extent, ids []uint16) error {
	values, err := e.decodeIDs(ids)
	if err != nil {
		return err
	}
	return e.editor.WriteExtent(ext, values)
}

// FillExtentRaw buffers a uniform fill of one wire type id.
func (e *Engine[V, I]) FillExtentRaw(ext volume.Extent, id uint16) error {
	values, err := e.decodeIDs([]uint16{id})
	if err != nil {
		return err
	}
	return e.editor.FillExtent(ext, values[0])
}

// Query returns the keys of indexed chunks whose bounds overlap ext,
// in sorted order. Coordinator only.
func (e *Engine[V, I]) Query(ext volume.Extent) []volume.ChunkKey {
	return e.tree.Query(ext)
}

// ReadChunkRaw returns the wire type ids of the chunk at key in canonical
// order, or nil if the chunk is absent. Coordinator only; reads through the
// shared store and count as LRU accesses.
func (e *Engine[V, I]) ReadChunkRaw(key volume.ChunkKey) ([]uint16, error) {
	ch, err := e.m.Chunks.Get(key)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, nil
	}
	ids := make([]uint16, len(ch.Data))
	for i, v := range ch.Data {
		ids[i] = uint16(v.TypeIndex())
	}
	return ids, nil
}

// QueryCtx is Query routed through the coordinator; safe from any goroutine
// while Run is active.
func (e *Engine[V, I]) QueryCtx(ctx context.Context, ext volume.Extent) ([]volume.ChunkKey, error) {
	var keys []volume.ChunkKey
	if err := e.Do(ctx, func() { keys = e.Query(ext) }); err != nil {
		return nil, err
	}
	return keys, nil
}

// ReadChunkCtx is ReadChunkRaw routed through the coordinator; safe from any
// goroutine while Run is active.
func (e *Engine[V, I]) ReadChunkCtx(ctx context.Context, key volume.ChunkKey) ([]uint16, error) {
	var (
		ids []uint16
		err error
	)
	if doErr := e.Do(ctx, func() { ids, err = e.ReadChunkRaw(key) }); doErr != nil {
		return nil, doErr
	}
	return ids, err
}
