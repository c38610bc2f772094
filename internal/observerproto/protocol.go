// Package observerproto defines the wire messages of the observer API.
package observerproto

import "voxelgrid.dev/internal/engine"

// Version is the observer protocol version.
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be
// re-sent as a keepalive.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string        `json:"protocol_version"`
	Cycle           uint64        `json:"cycle"`
	Params          engine.Params `json:"params"`
	BlockPalette    []string      `json:"block_palette"`
	PaletteDigest   string        `json:"palette_digest,omitempty"`
}

// Server -> Client. Sent after every completed cycle.
type CycleMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	Stats           engine.CycleStats `json:"stats"`
}
