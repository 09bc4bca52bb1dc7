// Package sign implements shop objects represented by a sign block.
package sign

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/TomCreeper/Shopkeepers/internal/section"
	"github.com/TomCreeper/Shopkeepers/internal/settings"
	"github.com/TomCreeper/Shopkeepers/internal/shopobject"
	"github.com/TomCreeper/Shopkeepers/internal/sim/world"
	"github.com/TomCreeper/Shopkeepers/internal/text"
)

const (
	TypeID     = "sign"
	Permission = "shopkeeper.sign"
)

// NewType returns the sign object type. Sign blocks are removed on chunk
// unload and placed again on chunk load.
func NewType(log *zap.Logger, worlds *world.Worlds, cfg *settings.Settings) *shopobject.Type {
	t := &shopobject.Type{
		ID:            TypeID,
		Permission:    Permission,
		DisplayName:   func() string { return cfg.Messages.ShopObjectTypeSign },
		Prefixes:      []string{"sign"},
		NeedsSpawning: true,
		Enabled:       func() bool { return cfg.EnableSignShops },
	}
	t.ValidSpawnLocation = func(loc world.Location, face world.BlockFace) bool {
		w, ok := worlds.Resolve(loc)
		if !ok || !w.IsEmpty(loc.Pos()) {
			return false
		}
		if face == world.FaceUp && !cfg.EnableSignPostShops {
			return false
		}
		return face == world.FaceUp || face.IsHorizontal()
	}
	t.New = func(owner shopobject.Owner, c *shopobject.Creation) (shopobject.ShopObject, error) {
		o := &Object{typ: t, log: log, worlds: worlds, owner: owner, facing: world.FaceSouth}
		if c != nil {
			switch {
			case c.TargetedFace == world.FaceUp:
				o.post = true
			case c.TargetedFace.IsHorizontal():
				o.facing = c.TargetedFace
			default:
				return nil, fmt.Errorf("sign cannot face %s", c.TargetedFace)
			}
		}
		return o, nil
	}
	return t
}

type Object struct {
	typ    *shopobject.Type
	log    *zap.Logger
	worlds *world.Worlds
	owner  shopobject.Owner

	facing world.BlockFace
	post   bool
	lines  [4]string

	// placed is the location the block was placed at while spawned.
	placed *world.Location
}

func (o *Object) Type() *shopobject.Type { return o.typ }

func (o *Object) ObjectID() string {
	if o.placed == nil {
		return ""
	}
	return ObjectIDAt(*o.placed)
}

func ObjectIDAt(loc world.Location) string {
	return TypeID + ":" + loc.String()
}

func (o *Object) Facing() world.BlockFace { return o.facing }
func (o *Object) IsPost() bool            { return o.post }
func (o *Object) Lines() [4]string        { return o.lines }

func (o *Object) Load(sec *section.Section) error {
	if sec == nil {
		return nil
	}
	if raw := sec.String("signFacing", ""); raw != "" {
		f, ok := world.ParseBlockFace(raw)
		if !ok || !f.IsHorizontal() {
			o.log.Warn("invalid sign facing, using SOUTH",
				zap.Int("shopkeeper", o.owner.ID()), zap.String("facing", raw))
			f = world.FaceSouth
			o.owner.MarkDirty()
		}
		o.facing = f
	}
	o.post = sec.Bool("signPost", false)
	return nil
}

func (o *Object) Save(sec *section.Section) {
	sec.Set("signFacing", o.facing.String())
	if o.post {
		sec.Set("signPost", true)
	}
}

func (o *Object) Setup() {
	o.updateLines()
}

func (o *Object) block() world.Block {
	if o.post {
		return world.SignPost
	}
	return world.WallSign
}

func (o *Object) Spawn() bool {
	loc := shopobject.OwnerLocation(o.owner)
	w, ok := o.worlds.Resolve(loc)
	if !ok || !w.IsChunkLoaded(loc.Chunk()) {
		return false
	}
	cur := w.Block(loc.Pos())
	if cur != world.Air && !cur.IsSign() {
		return false
	}
	w.SetBlock(loc.Pos(), o.block())
	o.placed = &loc
	o.updateLines()
	return true
}

func (o *Object) Despawn() {
	if o.placed == nil {
		return
	}
	loc := *o.placed
	o.placed = nil
	w, ok := o.worlds.Resolve(loc)
	if !ok {
		return
	}
	if w.Block(loc.Pos()).IsSign() {
		w.SetBlock(loc.Pos(), world.Air)
	}
}

func (o *Object) IsActive() bool {
	if o.placed == nil {
		return false
	}
	w, ok := o.worlds.Resolve(*o.placed)
	if !ok || !w.IsChunkLoaded(o.placed.Chunk()) {
		return false
	}
	return w.Block(o.placed.Pos()).IsSign()
}

func (o *Object) Check() bool {
	loc := shopobject.OwnerLocation(o.owner)
	w, ok := o.worlds.Resolve(loc)
	if !ok || !w.IsChunkLoaded(loc.Chunk()) {
		return false
	}
	if o.IsActive() {
		return false
	}
	o.log.Warn("sign shop is missing its sign, respawning",
		zap.Int("shopkeeper", o.owner.ID()), zap.String("location", loc.String()))
	o.placed = nil
	return o.Spawn()
}

func (o *Object) OnChunkLoad(bool) {}

// OnChunkUnload does nothing; the registry despawns signs on chunk unload.
func (o *Object) OnChunkUnload(bool) {}

func (o *Object) SetName(name string) {
	o.updateLines()
}

func (o *Object) updateLines() {
	o.lines = [4]string{"[SHOP]", text.Colorize(o.owner.Name()), "", ""}
}

func (o *Object) Remove() { o.Despawn() }

func (o *Object) Delete() { o.Despawn() }
