package observerproto_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelgrid.dev/internal/engine"
	"voxelgrid.dev/internal/observerproto"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	subscribeSchema := compile("subscribe.schema.json")
	bootstrapSchema := compile("bootstrap.schema.json")
	cycleSchema := compile("cycle.schema.json")

	var sub any
	_ = json.Unmarshal([]byte(`{
	  "type":"SUBSCRIBE",
	  "protocol_version":"0.1"
	}`), &sub)
	validate(subscribeSchema, sub)

	var boot any
	_ = json.Unmarshal([]byte(`{
	  "type":"BOOTSTRAP",
	  "protocol_version":"0.1",
	  "cycle":120,
	  "params":{
	    "chunk_edge":16,
	    "palette_len":4,
	    "workers":4,
	    "cycle_rate_hz":20,
	    "ambient_id":0
	  },
	  "block_palette":["AIR","DIRT","STONE"],
	  "palette_digest":"deadbeef"
	}`), &boot)
	// The response has no "type" field; strip before validating.
	if m, ok := boot.(map[string]any); ok {
		delete(m, "type")
	}
	validate(bootstrapSchema, boot)

	var cyc any
	_ = json.Unmarshal([]byte(`{
	  "type":"CYCLE",
	  "protocol_version":"0.1",
	  "stats":{
	    "cycle":7,
	    "dirty":3,
	    "rebuilt":3,
	    "skipped":0,
	    "indexed":2,
	    "unindexed":1,
	    "empty_removed":1,
	    "caches_flushed":0,
	    "evicted":0,
	    "live":42,
	    "compressed":8,
	    "index_len":49,
	    "duration_ns":1500000
	  }}`), &cyc)
	validate(cycleSchema, cyc)
}

// The declared Go types must serialize into what the schemas accept.
func TestSchemas_MatchGoTypes(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", name))
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	roundTrip := func(v any) any {
		t.Helper()
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return out
	}

	boot := observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		Cycle:           5,
		Params:          engine.Params{ChunkEdge: 16, PaletteLen: 2, Workers: 4, CycleRateHz: 20},
		BlockPalette:    []string{"AIR", "STONE"},
	}
	if err := compile("bootstrap.schema.json").Validate(roundTrip(boot)); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	cyc := observerproto.CycleMsg{
		Type:            "CYCLE",
		ProtocolVersion: observerproto.Version,
		Stats:           engine.CycleStats{Cycle: 1, Dirty: 2, Rebuilt: 2, Live: 2, IndexLen: 2},
	}
	if err := compile("cycle.schema.json").Validate(roundTrip(cyc)); err != nil {
		t.Fatalf("cycle: %v", err)
	}
}
