package world

import (
	"fmt"
	"strings"
)

type Vec3i struct {
	X int
	Y int
	Z int
}

func (v Vec3i) ToArray() [3]int { return [3]int{v.X, v.Y, v.Z} }

func (v Vec3i) Add(o Vec3i) Vec3i { return Vec3i{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

func Manhattan(a, b Vec3i) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y) + abs(a.Z-b.Z)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Location is a block position inside a named world. The world does not need
// to be loaded for a Location to be valid.
type Location struct {
	World string
	X     int
	Y     int
	Z     int
}

func LocationOf(world string, p Vec3i) Location {
	return Location{World: world, X: p.X, Y: p.Y, Z: p.Z}
}

func (l Location) Pos() Vec3i { return Vec3i{X: l.X, Y: l.Y, Z: l.Z} }

func (l Location) Chunk() ChunkKey { return ChunkKeyOf(l.X, l.Z) }

func (l Location) Relative(face BlockFace) Location {
	return LocationOf(l.World, l.Pos().Add(face.Offset()))
}

func (l Location) String() string {
	return fmt.Sprintf("%s,%d,%d,%d", l.World, l.X, l.Y, l.Z)
}

// BlockFace is the side of a block a placement targets.
type BlockFace int

const (
	FaceSelf BlockFace = iota
	FaceUp
	FaceDown
	FaceNorth
	FaceSouth
	FaceEast
	FaceWest
)

var faceNames = [...]string{"SELF", "UP", "DOWN", "NORTH", "SOUTH", "EAST", "WEST"}

func (f BlockFace) String() string {
	if f < 0 || int(f) >= len(faceNames) {
		return "UNKNOWN"
	}
	return faceNames[f]
}

func (f BlockFace) Offset() Vec3i {
	switch f {
	case FaceUp:
		return Vec3i{Y: 1}
	case FaceDown:
		return Vec3i{Y: -1}
	case FaceNorth:
		return Vec3i{Z: -1}
	case FaceSouth:
		return Vec3i{Z: 1}
	case FaceEast:
		return Vec3i{X: 1}
	case FaceWest:
		return Vec3i{X: -1}
	}
	return Vec3i{}
}

// IsHorizontal reports whether the face points sideways (wall-mounted placements).
func (f BlockFace) IsHorizontal() bool {
	return f == FaceNorth || f == FaceSouth || f == FaceEast || f == FaceWest
}

func ParseBlockFace(s string) (BlockFace, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, n := range faceNames {
		if n == s {
			return BlockFace(i), true
		}
	}
	return FaceSelf, false
}
