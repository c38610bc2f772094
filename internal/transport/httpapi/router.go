// Package httpapi serves the edit and query API over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"strconv"

	"github.com/rs/zerolog"

	"voxelgrid.dev/internal/engine"
	"voxelgrid.dev/internal/volume"
)

// Engine is the subset of the engine the HTTP API needs. Edit submission is
// buffered and safe from handler goroutines; queries and chunk reads are
// routed through the coordinator.
type Engine interface {
	Params() engine.Params
	SubmitEditRaw(ext volume.Extent, ids []uint16) error
	FillExtentRaw(ext volume.Extent, id uint16) error
	QueryCtx(ctx context.Context, ext volume.Extent) ([]volume.ChunkKey, error)
	ReadChunkCtx(ctx context.Context, key volume.ChunkKey) ([]uint16, error)
}

type Handler struct {
	eng Engine
	log zerolog.Logger
}

// EditRequest writes an explicit block per voxel of the extent, x fastest.
type EditRequest struct {
	Min    [3]int   `json:"min"`
	Shape  [3]int   `json:"shape"`
	Blocks []uint16 `json:"blocks"`
}

// FillRequest writes one block over the whole extent.
type FillRequest struct {
	Min   [3]int `json:"min"`
	Shape [3]int `json:"shape"`
	Block uint16 `json:"block"`
}

type QueryRequest struct {
	Min   [3]int `json:"min"`
	Shape [3]int `json:"shape"`
}

type QueryResponse struct {
	Keys [][3]int `json:"keys"`
}

type ChunkResponse struct {
	Key    [3]int   `json:"key"`
	Edge   int      `json:"edge"`
	Blocks []uint16 `json:"blocks"`
}

func NewRouter(log zerolog.Logger, eng Engine) http.Handler {
	h := &Handler{eng: eng, log: log}

	mux := http.NewServeMux()
	mux.Handle("/healthz", http.HandlerFunc(h.health))
	mux.Handle("/readyz", http.HandlerFunc(h.health))
	mux.Handle("/v1/params", http.HandlerFunc(h.params))
	mux.Handle("/v1/edit", http.HandlerFunc(h.edit))
	mux.Handle("/v1/fill", http.HandlerFunc(h.fill))
	mux.Handle("/v1/query", http.HandlerFunc(h.query))
	mux.Handle("/v1/chunk", http.HandlerFunc(h.chunk))

	// pprof endpoints
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return RequestID(AccessLog(log, mux))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) params(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, h.eng.Params())
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	ext := toExtent(req.Min, req.Shape)
	if err := h.eng.SubmitEditRaw(ext, req.Blocks); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) fill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req FillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	ext := toExtent(req.Min, req.Shape)
	if err := h.eng.FillExtentRaw(ext, req.Block); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	keys, err := h.eng.QueryCtx(r.Context(), toExtent(req.Min, req.Shape))
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	resp := QueryResponse{Keys: make([][3]int, len(keys))}
	for i, k := range keys {
		resp.Keys[i] = [3]int{k.X, k.Y, k.Z}
	}
	writeJSON(w, resp)
}

func (h *Handler) chunk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key, ok := keyFromQuery(r)
	if !ok {
		http.Error(w, "x, y, z query params required", http.StatusBadRequest)
		return
	}
	ids, err := h.eng.ReadChunkCtx(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if ids == nil {
		http.Error(w, "chunk not found", http.StatusNotFound)
		return
	}
	writeJSON(w, ChunkResponse{
		Key:    [3]int{key.X, key.Y, key.Z},
		Edge:   h.eng.Params().ChunkEdge,
		Blocks: ids,
	})
}

func keyFromQuery(r *http.Request) (volume.ChunkKey, bool) {
	q := r.URL.Query()
	var out [3]int
	for i, name := range []string{"x", "y", "z"} {
		v, err := strconv.Atoi(q.Get(name))
		if err != nil {
			return volume.ChunkKey{}, false
		}
		out[i] = v
	}
	return volume.ChunkKey{X: out[0], Y: out[1], Z: out[2]}, true
}

func toExtent(min, shape [3]int) volume.Extent {
	return volume.Extent{
		Min:   volume.Point{X: min[0], Y: min[1], Z: min[2]},
		Shape: volume.Point{X: shape[0], Y: shape[1], Z: shape[2]},
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
