package volume

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"voxelgrid.dev/internal/encoding"
)

// Codec turns chunk voxel data into an opaque compressed payload and back.
// The transform is lossless: Decompress(Compress(data)) is identical to data.
// A Codec is safe for concurrent use; compression of evicted chunks runs in
// parallel across workers.
type Codec[V Voxel] struct {
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	decode func(uint16) V
}

// NewCodec builds a codec for voxel type V. decode reconstructs a voxel from
// its stored type index.
func NewCodec[V Voxel](decode func(uint16) V) (*Codec[V], error) {
	if decode == nil {
		return nil, fmt.Errorf("codec: nil decode func")
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("codec: new encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("codec: new decoder: %w", err)
	}
	return &Codec[V]{enc: enc, dec: dec, decode: decode}, nil
}

// Decode reconstructs a voxel from its stored type index.
func (c *Codec[V]) Decode(id uint16) V { return c.decode(id) }

// Compress encodes voxel data as zstd over a varint RLE of type indices.
func (c *Codec[V]) Compress(data []V) []byte {
	ids := make([]uint16, len(data))
	for i, v := range data {
		ids[i] = uint16(v.TypeIndex())
	}
	raw := encoding.AppendRLE(nil, ids)
	return c.enc.EncodeAll(raw, nil)
}

// Decompress reverses Compress. n is the expected voxel count; a payload
// decoding to any other count is corrupt. Payloads are internally produced,
// so failures here are fatal for the chunk operation, not retried.
func (c *Codec[V]) Decompress(payload []byte, n int) ([]V, error) {
	raw, err := c.dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("codec: zstd: %w", err)
	}
	ids, err := encoding.DecodeRLE(raw, n)
	if err != nil {
		return nil, fmt.Errorf("codec: rle: %w", err)
	}
	data := make([]V, n)
	for i, id := range ids {
		data[i] = c.decode(id)
	}
	return data, nil
}
