package world

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
)

type ChunkKey struct {
	CX int
	CZ int
}

// ChunkKeyOf returns the chunk containing block column (x, z).
func ChunkKeyOf(x, z int) ChunkKey {
	return ChunkKey{CX: floorDiv(x, ChunkSize), CZ: floorDiv(z, ChunkSize)}
}

func (k ChunkKey) Less(o ChunkKey) bool {
	if k.CX != o.CX {
		return k.CX < o.CX
	}
	return k.CZ < o.CZ
}

type Block uint16

const (
	Air Block = iota
	Stone
	Dirt
	Grass
	Log
	SignPost
	WallSign
	Bedrock
)

var blockNames = [...]string{"AIR", "STONE", "DIRT", "GRASS", "LOG", "SIGN_POST", "WALL_SIGN", "BEDROCK"}

func (b Block) String() string {
	if int(b) < len(blockNames) {
		return blockNames[b]
	}
	return "UNKNOWN"
}

func (b Block) IsSign() bool { return b == SignPost || b == WallSign }

// Chunk stores the blocks that differ from generated terrain.
type Chunk struct {
	CX, CZ int
	Edits  map[Vec3i]Block

	dirty bool
	hash  [32]byte
}

func (c *Chunk) Set(p Vec3i, b Block, generated Block) {
	if b == generated {
		if _, ok := c.Edits[p]; !ok {
			return
		}
		delete(c.Edits, p)
		c.dirty = true
		return
	}
	if cur, ok := c.Edits[p]; ok && cur == b {
		return
	}
	c.Edits[p] = b
	c.dirty = true
}

func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		keys := make([]Vec3i, 0, len(c.Edits))
		for p := range c.Edits {
			keys = append(keys, p)
		}
		sort.Slice(keys, func(i, j int) bool {
			a, b := keys[i], keys[j]
			if a.Y != b.Y {
				return a.Y < b.Y
			}
			if a.Z != b.Z {
				return a.Z < b.Z
			}
			return a.X < b.X
		})
		h := sha256.New()
		var tmp [14]byte
		for _, p := range keys {
			binary.LittleEndian.PutUint32(tmp[0:], uint32(int32(p.X)))
			binary.LittleEndian.PutUint32(tmp[4:], uint32(int32(p.Y)))
			binary.LittleEndian.PutUint32(tmp[8:], uint32(int32(p.Z)))
			binary.LittleEndian.PutUint16(tmp[12:], uint16(c.Edits[p]))
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

type WorldGen struct {
	Seed        int64
	GroundLevel int // y of the top solid layer
	MinY        int
	MaxY        int
}

func DefaultGen(seed int64) WorldGen {
	return WorldGen{Seed: seed, GroundLevel: 63, MinY: 0, MaxY: 255}
}

// generated returns the untouched terrain block at p.
func (g WorldGen) generated(p Vec3i) Block {
	switch {
	case p.Y < g.MinY || p.Y > g.MaxY:
		return Air
	case p.Y == g.MinY:
		return Bedrock
	case p.Y < g.GroundLevel-3:
		return Stone
	case p.Y < g.GroundLevel:
		return Dirt
	case p.Y == g.GroundLevel:
		return Grass
	}
	return Air
}

type ChunkStore struct {
	gen WorldGen
	// Accessed only from the owner loop goroutine.
	chunks map[ChunkKey]*Chunk
}

func NewChunkStore(gen WorldGen) *ChunkStore {
	return &ChunkStore{
		gen:    gen,
		chunks: map[ChunkKey]*Chunk{},
	}
}

func (s *ChunkStore) GetBlock(pos Vec3i) Block {
	if ch, ok := s.chunks[ChunkKeyOf(pos.X, pos.Z)]; ok {
		if b, ok := ch.Edits[pos]; ok {
			return b
		}
	}
	return s.gen.generated(pos)
}

func (s *ChunkStore) SetBlock(pos Vec3i, b Block) {
	if pos.Y < s.gen.MinY || pos.Y > s.gen.MaxY {
		return
	}
	ch := s.getOrCreateChunk(ChunkKeyOf(pos.X, pos.Z))
	ch.Set(pos, b, s.gen.generated(pos))
}

func (s *ChunkStore) Digest(k ChunkKey) [32]byte {
	return s.getOrCreateChunk(k).Digest()
}

func (s *ChunkStore) getOrCreateChunk(k ChunkKey) *Chunk {
	if ch, ok := s.chunks[k]; ok {
		return ch
	}
	ch := &Chunk{
		CX:    k.CX,
		CZ:    k.CZ,
		Edits: map[Vec3i]Block{},
		dirty: true,
	}
	s.chunks[k] = ch
	return ch
}
