// Package citizen implements shop objects backed by NPCs of the citizens subsystem.
package citizen

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TomCreeper/Shopkeepers/internal/citizens"
	"github.com/TomCreeper/Shopkeepers/internal/section"
	"github.com/TomCreeper/Shopkeepers/internal/settings"
	"github.com/TomCreeper/Shopkeepers/internal/shopobject"
)

const (
	TypeID     = "citizen"
	Permission = "shopkeeper.citizen"
)

// NewType returns the citizen object type. Spawning is handled by the NPC
// subsystem, so the registry never spawns or despawns these objects.
func NewType(log *zap.Logger, npcs *citizens.Manager, cfg *settings.Settings) *shopobject.Type {
	t := &shopobject.Type{
		ID:            TypeID,
		Permission:    Permission,
		DisplayName:   func() string { return cfg.Messages.ShopObjectTypeCitizen },
		Prefixes:      []string{"citizen", "npc"},
		NeedsSpawning: false,
		Enabled:       func() bool { return cfg.EnableCitizenShops && npcs.IsEnabled() },
	}
	t.New = func(owner shopobject.Owner, _ *shopobject.Creation) (shopobject.ShopObject, error) {
		return &Object{typ: t, log: log, npcs: npcs, owner: owner}, nil
	}
	return t
}

var _ shopobject.Mover = (*Object)(nil)

type Object struct {
	typ   *shopobject.Type
	log   *zap.Logger
	npcs  *citizens.Manager
	owner shopobject.Owner

	npc uuid.UUID
}

func (o *Object) Type() *shopobject.Type { return o.typ }

func (o *Object) NPC() uuid.UUID { return o.npc }

func (o *Object) ObjectID() string {
	if o.npc == uuid.Nil {
		return ""
	}
	return o.typ.CreateObjectID(o.npc.String())
}

// Load accepts the NPC unique id, or the legacy integer id which is resolved
// through the NPC subsystem and rewritten on the next save.
func (o *Object) Load(sec *section.Section) error {
	if sec == nil {
		return nil
	}
	raw, ok := sec.Get("npcId")
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		if id, err := uuid.Parse(v); err == nil {
			o.npc = id
			return nil
		}
	case int:
		if id, ok := o.npcs.ByLegacyID(v); ok {
			o.npc = id
			o.owner.MarkDirty()
			return nil
		}
	}
	o.log.Warn("invalid npc id, a new npc will be created",
		zap.Int("shopkeeper", o.owner.ID()), zap.Any("npcId", raw))
	o.owner.MarkDirty()
	return nil
}

func (o *Object) Save(sec *section.Section) {
	if o.npc != uuid.Nil {
		sec.Set("npcId", o.npc.String())
	}
}

// Setup creates the NPC if the shopkeeper has none yet.
func (o *Object) Setup() {
	if o.npc != uuid.Nil {
		if _, ok := o.npcs.NPC(o.npc); ok {
			o.npcs.AttachTrait(o.npc, o.owner.ID())
			return
		}
	}
	o.createNPC()
}

func (o *Object) createNPC() bool {
	if !o.npcs.IsEnabled() {
		return false
	}
	id, err := o.npcs.CreateNPC(shopobject.OwnerLocation(o.owner), o.owner.Name())
	if err != nil {
		o.log.Warn("could not create npc", zap.Int("shopkeeper", o.owner.ID()), zap.Error(err))
		return false
	}
	o.npc = id
	o.npcs.AttachTrait(id, o.owner.ID())
	o.owner.MarkDirty()
	return true
}

func (o *Object) Spawn() bool { return o.IsActive() }

func (o *Object) Despawn() {}

func (o *Object) IsActive() bool {
	return o.npc != uuid.Nil && o.npcs.IsSpawned(o.npc)
}

// Check recreates the NPC if it was removed behind our back.
func (o *Object) Check() bool {
	if !o.npcs.IsEnabled() {
		return false
	}
	if o.npc != uuid.Nil {
		if _, ok := o.npcs.NPC(o.npc); ok {
			return false
		}
	}
	o.log.Warn("npc of shopkeeper is missing, recreating", zap.Int("shopkeeper", o.owner.ID()))
	return o.createNPC()
}

func (o *Object) OnChunkLoad(bool)   {}
func (o *Object) OnChunkUnload(bool) {}

func (o *Object) SetName(name string) {
	o.npcs.Rename(o.npc, name)
}

// Move follows the shopkeeper to its new location.
func (o *Object) Move() {
	o.npcs.Teleport(o.npc, shopobject.OwnerLocation(o.owner))
}

func (o *Object) Remove() {
	o.npcs.AttachTrait(o.npc, 0)
}

func (o *Object) Delete() {
	if o.npc != uuid.Nil {
		o.npcs.RemoveNPC(o.npc)
		o.npc = uuid.Nil
	}
}
