// Package shopobject defines the in-world representation a shopkeeper
// delegates to, and the registry of representation types.
package shopobject

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/TomCreeper/Shopkeepers/internal/actor"
	"github.com/TomCreeper/Shopkeepers/internal/section"
	"github.com/TomCreeper/Shopkeepers/internal/sim/world"
	"github.com/TomCreeper/Shopkeepers/internal/text"
)

// Owner is the shopkeeper side of the delegation.
type Owner interface {
	ID() int
	UniqueID() uuid.UUID
	WorldName() string
	X() int
	Y() int
	Z() int
	Name() string
	MarkDirty()
}

func OwnerLocation(o Owner) world.Location {
	return world.Location{World: o.WorldName(), X: o.X(), Y: o.Y(), Z: o.Z()}
}

// Creation carries the creation request into the object constructor. It is
// nil when the object is constructed for loading.
type Creation struct {
	Creator      actor.Actor
	Location     world.Location
	TargetedFace world.BlockFace
}

type ShopObject interface {
	Type() *Type
	// ObjectID identifies the spawned object, or "" while it has none.
	ObjectID() string

	Load(sec *section.Section) error
	// Save writes into sec. Values must be copies; sec may be encoded later on another goroutine.
	Save(sec *section.Section)
	Setup()

	Spawn() bool
	Despawn()
	IsActive() bool
	// Check verifies the spawned object and respawns it if needed. It reports
	// whether the object had to be respawned.
	Check() bool

	OnChunkLoad(worldSaving bool)
	OnChunkUnload(worldSaving bool)

	SetName(name string)

	// Remove cleans up when the shopkeeper is removed from the registry.
	Remove()
	// Delete cleans up when the shopkeeper is permanently deleted.
	Delete()
}

// Mover is implemented by objects that exist independently of spawning and
// must follow their shopkeeper when it changes location.
type Mover interface {
	Move()
}

type Type struct {
	ID          string
	Permission  string
	DisplayName func() string
	// Prefixes are additional normalized identifier prefixes accepted by Matches.
	Prefixes      []string
	NeedsSpawning bool

	Enabled            func() bool
	ValidSpawnLocation func(loc world.Location, face world.BlockFace) bool
	New                func(owner Owner, c *Creation) (ShopObject, error)
}

func (t *Type) String() string { return t.ID }

func (t *Type) Name() string {
	if t.DisplayName == nil {
		return t.ID
	}
	return t.DisplayName()
}

func (t *Type) IsEnabled() bool {
	return t.Enabled == nil || t.Enabled()
}

func (t *Type) HasPermission(a actor.Actor) bool {
	return a.HasPermission(t.Permission)
}

func (t *Type) IsValidSpawnLocation(loc world.Location, face world.BlockFace) bool {
	if t.ValidSpawnLocation == nil {
		return true
	}
	return t.ValidSpawnLocation(loc, face)
}

// CreateObjectID builds "<type>:<suffix>".
func (t *Type) CreateObjectID(suffix string) string {
	return t.ID + ":" + suffix
}

// Matches reports whether identifier refers to this type after normalization.
func (t *Type) Matches(identifier string) bool {
	id := text.Normalize(identifier)
	if id == "" {
		return false
	}
	if id == t.ID {
		return true
	}
	for _, p := range t.Prefixes {
		if strings.HasPrefix(id, p) {
			return true
		}
	}
	return false
}

type Registry struct {
	types map[string]*Type
	order []string
}

func NewRegistry() *Registry {
	return &Registry{types: map[string]*Type{}}
}

// Register panics on duplicate identifiers.
func (r *Registry) Register(t *Type) {
	if t == nil || t.ID == "" {
		panic("shopobject: register type without id")
	}
	if _, ok := r.types[t.ID]; ok {
		panic(fmt.Sprintf("shopobject: type %q already registered", t.ID))
	}
	r.types[t.ID] = t
	r.order = append(r.order, t.ID)
}

// Get returns the type with exactly this identifier.
func (r *Registry) Get(id string) (*Type, bool) {
	t, ok := r.types[id]
	return t, ok
}

// Match resolves identifier via the types' alias rules, in registration order.
func (r *Registry) Match(identifier string) (*Type, bool) {
	for _, id := range r.order {
		if t := r.types[id]; t.Matches(identifier) {
			return t, true
		}
	}
	return nil, false
}

func (r *Registry) All() []*Type {
	out := make([]*Type, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.types[id])
	}
	return out
}

func (r *Registry) IDs() []string {
	ids := append([]string(nil), r.order...)
	sort.Strings(ids)
	return ids
}
