// Package catalogs loads the block catalog that defines the voxel palette.
package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"voxelgrid.dev/internal/volume"
)

// Block is a voxel value, an index into the block palette.
type Block uint16

func (b Block) TypeIndex() int { return int(b) }

// BlockInfo is the palette metadata for one block type.
type BlockInfo struct {
	ID    string `json:"id"`
	Empty bool   `json:"empty"`
	Solid bool   `json:"solid"`
}

func (i BlockInfo) IsEmpty() bool { return i.Empty }

type BlockCatalog struct {
	Palette       []BlockInfo
	Index         map[string]Block
	PaletteDigest string
	DefsDigest    string
}

// Air is the ambient block, always palette id 0.
const Air Block = 0

func Load(configDir string) (*BlockCatalog, error) {
	var c BlockCatalog
	if err := loadBlocks(filepath.Join(configDir, "blocks.json"), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func loadBlocks(path string, out *BlockCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []BlockInfo
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	byID := map[string]BlockInfo{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("blocks.json: empty id")
		}
		if _, dup := byID[d.ID]; dup {
			return fmt.Errorf("blocks.json: duplicate id %q", d.ID)
		}
		byID[d.ID] = d
	}

	// Ensure AIR exists, is empty, and is palette id 0.
	air, ok := byID["AIR"]
	if !ok {
		return fmt.Errorf("blocks.json: missing AIR")
	}
	if !air.Empty {
		return fmt.Errorf("blocks.json: AIR must be empty")
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		if id != "AIR" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	ids = append([]string{"AIR"}, ids...)

	out.Palette = make([]BlockInfo, len(ids))
	out.Index = make(map[string]Block, len(ids))
	for i, id := range ids {
		out.Palette[i] = byID[id]
		out.Index[id] = Block(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

// VoxelPalette adapts the catalog for use by the volume layer.
func (c *BlockCatalog) VoxelPalette() volume.Palette[BlockInfo] {
	return volume.Palette[BlockInfo]{Infos: c.Palette}
}

// Resolve maps a block id string to its palette index.
func (c *BlockCatalog) Resolve(id string) (Block, bool) {
	b, ok := c.Index[id]
	return b, ok
}

// DecodeBlock reconstructs a Block from its wire id.
func DecodeBlock(id uint16) Block { return Block(id) }

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
