// Package shopkeeper implements the shopkeeper entity together with its
// creation and load pipelines.
//
// A shopkeeper is created through exactly one of two paths: from a creation
// request (ShopType.HandleCreation / ShopType.Create) or from a saved section
// (ShopType.Load). All methods must be called from the owner loop goroutine.
package shopkeeper

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TomCreeper/Shopkeepers/internal/actor"
	"github.com/TomCreeper/Shopkeepers/internal/section"
	"github.com/TomCreeper/Shopkeepers/internal/settings"
	"github.com/TomCreeper/Shopkeepers/internal/shopobject"
	"github.com/TomCreeper/Shopkeepers/internal/sim/world"
	"github.com/TomCreeper/Shopkeepers/internal/text"
	"github.com/TomCreeper/Shopkeepers/internal/ui"
)

// MaxNameLength is the longest name a shopkeeper can have, in runes.
const MaxNameLength = settings.MaxNameLengthLimit

// ChunkCoords identifies the chunk of a world a shopkeeper is located in.
type ChunkCoords struct {
	World string
	CX    int
	CZ    int
}

func ChunkCoordsOf(worldName string, x, z int) ChunkCoords {
	k := world.ChunkKeyOf(x, z)
	return ChunkCoords{World: worldName, CX: k.CX, CZ: k.CZ}
}

func (c ChunkCoords) Key() world.ChunkKey { return world.ChunkKey{CX: c.CX, CZ: c.CZ} }

func (c ChunkCoords) String() string { return fmt.Sprintf("%s,%d,%d", c.World, c.CX, c.CZ) }

type Shopkeeper struct {
	env *Env
	typ *ShopType

	id        int
	uniqueID  uuid.UUID
	worldName string
	x, y, z   int
	chunk     ChunkCoords
	name      string

	object  shopobject.ShopObject
	variant Variant

	dirty        bool
	dirtyVersion uint64
	valid        bool

	uiHandlers map[string]ui.Handler
	uiActive   bool
}

func newShopkeeper(env *Env, typ *ShopType, id int) *Shopkeeper {
	return &Shopkeeper{
		env:        env,
		typ:        typ,
		id:         id,
		variant:    typ.newVariant(),
		uiHandlers: map[string]ui.Handler{},
		uiActive:   true,
	}
}

func (sk *Shopkeeper) initOnCreation(data CreationData) error {
	if data.Location.World == "" {
		return &CreateError{Shopkeeper: sk.id, Reason: "missing spawn world"}
	}
	if data.ObjectType == nil {
		return &CreateError{Shopkeeper: sk.id, Reason: "missing shop object type"}
	}
	sk.uniqueID = uuid.New()
	sk.worldName = data.Location.World
	sk.x, sk.y, sk.z = data.Location.X, data.Location.Y, data.Location.Z
	sk.updateChunkCoords()
	if data.Name != "" {
		sk.name = sk.trimName(text.Colorize(data.Name))
	}

	obj, err := data.ObjectType.New(sk, &shopobject.Creation{
		Creator:      data.Creator,
		Location:     data.Location,
		TargetedFace: data.TargetedFace,
	})
	if err != nil {
		return &CreateError{Shopkeeper: sk.id, Reason: "could not create shop object", Err: err}
	}
	sk.object = obj

	if err := sk.variant.InitOnCreation(sk, data); err != nil {
		return &CreateError{Shopkeeper: sk.id, Reason: "invalid creation data", Err: err}
	}
	// New shopkeepers are always dirty.
	sk.MarkDirty()
	sk.commonSetup()
	return nil
}

func (sk *Shopkeeper) initOnLoad(sec *section.Section) error {
	if err := sk.loadFromSaveData(sec); err != nil {
		return err
	}
	sk.commonSetup()
	return nil
}

func (sk *Shopkeeper) commonSetup() {
	sk.setup()
	sk.postSetup()
}

// setup runs the type specific setup first, so the default trading handler
// only fills in when the variant did not register one.
func (sk *Shopkeeper) setup() {
	sk.variant.Setup(sk)
	if _, ok := sk.UIHandler(ui.Trading); !ok {
		sk.RegisterUIHandler(&ui.TradingHandler{Recipes: sk.variant.TradingRecipes})
	}
}

func (sk *Shopkeeper) postSetup() {
	sk.object.Setup()
}

// Serialize writes the shopkeeper into sec. Everything inserted is a copy, so
// sec can be encoded after the shopkeeper changed again.
func (sk *Shopkeeper) Serialize(sec *section.Section) {
	sec.Set("uniqueId", sk.uniqueID.String())
	sec.Set("name", text.Decolorize(sk.name))
	sec.Set("world", sk.worldName)
	sec.Set("x", sk.x)
	sec.Set("y", sk.y)
	sec.Set("z", sk.z)
	sec.Set("type", sk.typ.ID)

	objSec := sec.CreateSection("object")
	objSec.Set("type", sk.object.Type().ID)
	sk.object.Save(objSec)

	sk.variant.Save(sec)
}

// Save marks the shopkeeper dirty and requests a save as soon as possible.
func (sk *Shopkeeper) Save() {
	sk.MarkDirty()
	sk.env.Storage.Save()
}

// SaveDelayed marks the shopkeeper dirty and requests a coalesced save.
func (sk *Shopkeeper) SaveDelayed() {
	sk.MarkDirty()
	sk.env.Storage.SaveDelayed()
}

// MarkDirty flags unsaved changes. While the shopkeeper is not registered yet
// the registry informs the storage once registration succeeded.
func (sk *Shopkeeper) MarkDirty() {
	sk.dirty = true
	sk.dirtyVersion++
	if sk.valid && sk.env.Storage != nil {
		sk.env.Storage.MarkDirty()
	}
}

func (sk *Shopkeeper) IsDirty() bool { return sk.dirty }

// DirtyVersion changes on every MarkDirty. Storage captures it when
// serializing and hands it back to OnSaveAcknowledged.
func (sk *Shopkeeper) DirtyVersion() uint64 { return sk.dirtyVersion }

// OnSaveAcknowledged clears the dirty flag after a durable write, unless the
// shopkeeper was marked dirty again after version was captured.
func (sk *Shopkeeper) OnSaveAcknowledged(version uint64) bool {
	if version != sk.dirtyVersion {
		return false
	}
	sk.dirty = false
	return true
}

func (sk *Shopkeeper) IsValid() bool { return sk.valid }

// InformAdded is called by the registry once the shopkeeper was added.
// Registering twice is a caller bug.
func (sk *Shopkeeper) InformAdded(cause AddedCause) {
	if sk.valid {
		panic(fmt.Sprintf("shopkeeper %d: added twice", sk.id))
	}
	sk.valid = true
	sk.env.Log.Debug("shopkeeper added", zap.Int("id", sk.id), zap.Stringer("cause", cause))
}

// InformRemoval is called by the registry before the shopkeeper is removed.
func (sk *Shopkeeper) InformRemoval(cause RemovalCause) {
	if !sk.valid {
		panic(fmt.Sprintf("shopkeeper %d: removed while not registered", sk.id))
	}
	sk.CloseAllWindows()
	sk.object.Remove()
	if cause == RemovedDelete {
		sk.object.Delete()
	}
	sk.valid = false
}

// Delete removes the shopkeeper permanently.
func (sk *Shopkeeper) Delete() {
	sk.MarkDirty()
	sk.env.Registry.DeleteShopkeeper(sk)
}

func (sk *Shopkeeper) ID() int             { return sk.id }
func (sk *Shopkeeper) UniqueID() uuid.UUID { return sk.uniqueID }
func (sk *Shopkeeper) Type() *ShopType     { return sk.typ }
func (sk *Shopkeeper) Variant() Variant    { return sk.variant }
func (sk *Shopkeeper) WorldName() string   { return sk.worldName }
func (sk *Shopkeeper) X() int              { return sk.x }
func (sk *Shopkeeper) Y() int              { return sk.y }
func (sk *Shopkeeper) Z() int              { return sk.z }

func (sk *Shopkeeper) ChunkCoords() ChunkCoords { return sk.chunk }

func (sk *Shopkeeper) PositionString() string {
	return fmt.Sprintf("%s,%d,%d,%d", sk.worldName, sk.x, sk.y, sk.z)
}

// StoredLocation returns the stored location regardless of world state.
func (sk *Shopkeeper) StoredLocation() world.Location {
	return world.Location{World: sk.worldName, X: sk.x, Y: sk.y, Z: sk.z}
}

// Location returns the location if the shopkeeper's world is loaded.
func (sk *Shopkeeper) Location() (world.Location, bool) {
	loc := sk.StoredLocation()
	if _, ok := sk.env.Worlds.Resolve(loc); !ok {
		return world.Location{}, false
	}
	return loc, true
}

// SetLocation changes the stored location. Spawned objects move on their
// next spawn, externally managed ones are moved right away.
func (sk *Shopkeeper) SetLocation(loc world.Location) {
	sk.MarkDirty()
	old := sk.chunk
	sk.x, sk.y, sk.z = loc.X, loc.Y, loc.Z
	sk.worldName = loc.World
	sk.updateChunkCoords()
	if m, ok := sk.object.(shopobject.Mover); ok {
		m.Move()
	}
	sk.env.Registry.OnShopkeeperMove(sk, old)
}

func (sk *Shopkeeper) updateChunkCoords() {
	sk.chunk = ChunkCoordsOf(sk.worldName, sk.x, sk.z)
}

// Shop object delegation.

func (sk *Shopkeeper) ShopObject() shopobject.ShopObject { return sk.object }
func (sk *Shopkeeper) NeedsSpawning() bool               { return sk.object.Type().NeedsSpawning }
func (sk *Shopkeeper) IsActive() bool                    { return sk.object.IsActive() }
func (sk *Shopkeeper) ObjectID() string                  { return sk.object.ObjectID() }
func (sk *Shopkeeper) Spawn() bool                       { return sk.object.Spawn() }
func (sk *Shopkeeper) Despawn()                          { sk.object.Despawn() }
func (sk *Shopkeeper) OnChunkLoad(worldSaving bool)      { sk.object.OnChunkLoad(worldSaving) }
func (sk *Shopkeeper) OnChunkUnload(worldSaving bool)    { sk.object.OnChunkUnload(worldSaving) }

// Check reports whether the shop object had to be respawned, which may have changed its object id.
func (sk *Shopkeeper) Check() bool { return sk.object.Check() }

// Naming.

func (sk *Shopkeeper) Name() string { return sk.name }

func (sk *Shopkeeper) SetName(name string) {
	name = sk.trimName(text.Colorize(name))
	sk.name = name
	sk.object.SetName(name)
	sk.MarkDirty()
}

// IsValidName checks a player supplied name against the configured pattern and length.
func (sk *Shopkeeper) IsValidName(name string) bool {
	max := MaxNameLength
	if s := sk.env.Settings; s != nil {
		max = s.MaxNameLength
		if !s.NameMatches(name) {
			return false
		}
	}
	return text.RuneLen(name) <= max
}

func (sk *Shopkeeper) trimName(name string) string {
	trimmed, cut := text.Truncate(name, MaxNameLength)
	if !cut {
		return name
	}
	sk.env.Log.Warn("shopkeeper name too long, trimming",
		zap.Int("id", sk.id),
		zap.Int("max", MaxNameLength),
		zap.String("name", name),
		zap.String("trimmed", trimmed))
	return trimmed
}

// User interfaces.

func (sk *Shopkeeper) IsUIActive() bool { return sk.uiActive }
func (sk *Shopkeeper) ActivateUI()      { sk.uiActive = true }
func (sk *Shopkeeper) DeactivateUI()    { sk.uiActive = false }

// RegisterUIHandler replaces any handler previously registered for the same UI type.
func (sk *Shopkeeper) RegisterUIHandler(h ui.Handler) {
	if h == nil {
		panic("shopkeeper: nil ui handler")
	}
	sk.uiHandlers[h.Type().ID] = h
}

func (sk *Shopkeeper) UIHandler(t ui.Type) (ui.Handler, bool) {
	h, ok := sk.uiHandlers[t.ID]
	return h, ok
}

func (sk *Shopkeeper) OpenWindow(t ui.Type, a actor.Actor) bool {
	if !sk.uiActive || !sk.valid {
		return false
	}
	h, ok := sk.UIHandler(t)
	if !ok {
		return false
	}
	return sk.env.UI.Request(sk.id, h, a)
}

func (sk *Shopkeeper) OpenTradingWindow(a actor.Actor) bool { return sk.OpenWindow(ui.Trading, a) }
func (sk *Shopkeeper) OpenEditorWindow(a actor.Actor) bool  { return sk.OpenWindow(ui.Editor, a) }

func (sk *Shopkeeper) CloseAllWindows() {
	if sk.env.UI != nil {
		sk.env.UI.CloseAll(sk.id)
	}
}

// OnPlayerInteraction opens the editor for sneaking actors and the trading window otherwise.
func (sk *Shopkeeper) OnPlayerInteraction(a actor.Actor) bool {
	if a.IsSneaking() {
		return sk.OpenEditorWindow(a)
	}
	return sk.OpenTradingWindow(a)
}

func (sk *Shopkeeper) String() string {
	return fmt.Sprintf("shopkeeper %d (%s at %s)", sk.id, sk.typ.ID, sk.PositionString())
}
