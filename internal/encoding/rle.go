package encoding

import (
	"encoding/binary"
	"fmt"
)

// AppendRLE appends a run-length encoding of a sequence of palette ids to dst
// and returns the extended slice. The encoding is (id, run_len) varint pairs.
// Chunk interiors are dominated by long runs of a single type, so this
// typically shrinks a chunk by an order of magnitude before compression.
func AppendRLE(dst []byte, ids []uint16) []byte {
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(ids) {
		id := ids[i]
		run := 1
		for j := i + 1; j < len(ids) && ids[j] == id; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(id))
		dst = append(dst, tmp[:n]...)
		n = binary.PutUvarint(tmp[:], uint64(run))
		dst = append(dst, tmp[:n]...)

		i += run
	}
	return dst
}

// DecodeRLE decodes varint (id, run_len) pairs into exactly want ids.
func DecodeRLE(raw []byte, want int) ([]uint16, error) {
	out := make([]uint16, 0, want)
	for i := 0; i < len(raw); {
		id, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if id > 0xFFFF {
			return nil, fmt.Errorf("voxel id too large: %d", id)
		}
		if int(run) > want-len(out) {
			return nil, fmt.Errorf("run overflows chunk: %d ids, want %d", len(out)+int(run), want)
		}
		for k := 0; k < int(run); k++ {
			out = append(out, uint16(id))
		}
	}
	if len(out) != want {
		return nil, fmt.Errorf("short chunk: %d ids, want %d", len(out), want)
	}
	return out, nil
}
