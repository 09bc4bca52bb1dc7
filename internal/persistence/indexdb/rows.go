package indexdb

import (
	"sort"
	"strconv"

	"github.com/TomCreeper/Shopkeepers/internal/section"
	"github.com/TomCreeper/Shopkeepers/internal/sim/world"
)

// Row is the indexed summary of one saved shopkeeper.
type Row struct {
	ID         int
	UniqueID   string
	Name       string
	World      string
	X, Y, Z    int
	CX, CZ     int
	Type       string
	ObjectType string
	Owner      string
	OwnerUUID  string
}

// RowsFromSave extracts index rows from a save tree, ordered by id. Entries
// without a numeric id are skipped.
func RowsFromSave(root *section.Section) []Row {
	var rows []Row
	for _, key := range root.Keys() {
		sec := root.Section(key)
		if sec == nil {
			continue
		}
		id, err := strconv.Atoi(key)
		if err != nil || id <= 0 {
			continue
		}
		r := Row{
			ID:        id,
			UniqueID:  sec.String("uniqueId", ""),
			Name:      sec.String("name", ""),
			World:     sec.String("world", ""),
			X:         sec.Int("x", 0),
			Y:         sec.Int("y", 0),
			Z:         sec.Int("z", 0),
			Type:      sec.String("type", ""),
			Owner:     sec.String("owner", ""),
			OwnerUUID: sec.String("owner uuid", ""),
		}
		k := world.ChunkKeyOf(r.X, r.Z)
		r.CX, r.CZ = k.CX, k.CZ
		if obj := sec.Section("object"); obj != nil {
			r.ObjectType = obj.String("type", "")
		} else {
			r.ObjectType = sec.String("object", "")
		}
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows
}

// Match reports whether r passes the filter, mirroring List for rows read
// straight from a save file.
func (f Filter) Match(r Row) bool {
	return (f.World == "" || r.World == f.World) &&
		(f.Type == "" || r.Type == f.Type) &&
		(f.OwnerUUID == "" || r.OwnerUUID == f.OwnerUUID)
}
