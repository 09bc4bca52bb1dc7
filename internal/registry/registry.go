// Package registry indexes registered shopkeepers by id, unique id, chunk and
// shop object id, and spawns or despawns their shop objects as chunks load
// and unload.
package registry

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TomCreeper/Shopkeepers/internal/observability/metrics"
	"github.com/TomCreeper/Shopkeepers/internal/section"
	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper"
	"github.com/TomCreeper/Shopkeepers/internal/sim/world"
)

type Registry struct {
	env     *shopkeeper.Env
	types   *shopkeeper.ShopTypes
	log     *zap.Logger
	metrics *metrics.Metrics

	lastID     int
	byID       map[int]*shopkeeper.Shopkeeper
	byUUID     map[uuid.UUID]*shopkeeper.Shopkeeper
	byChunk    map[shopkeeper.ChunkCoords][]*shopkeeper.Shopkeeper
	byObjectID map[string]*shopkeeper.Shopkeeper
	// active maps shopkeeper id to the object id it was indexed under.
	active map[int]string
}

var _ shopkeeper.Registry = (*Registry)(nil)
var _ world.Listener = (*Registry)(nil)

func New(env *shopkeeper.Env, types *shopkeeper.ShopTypes, m *metrics.Metrics) *Registry {
	return &Registry{
		env:        env,
		types:      types,
		log:        env.Log.Named("registry"),
		metrics:    m,
		byID:       map[int]*shopkeeper.Shopkeeper{},
		byUUID:     map[uuid.UUID]*shopkeeper.Shopkeeper{},
		byChunk:    map[shopkeeper.ChunkCoords][]*shopkeeper.Shopkeeper{},
		byObjectID: map[string]*shopkeeper.Shopkeeper{},
		active:     map[int]string{},
	}
}

func (r *Registry) ShopTypes() *shopkeeper.ShopTypes { return r.types }

// CreateShopkeeper constructs, registers and, if its chunk is loaded, spawns
// a new shopkeeper. It does not run the player checks of ShopType.HandleCreation.
func (r *Registry) CreateShopkeeper(data shopkeeper.CreationData) (*shopkeeper.Shopkeeper, error) {
	if data.ShopType == nil {
		return nil, &shopkeeper.CreateError{Reason: "missing shop type"}
	}
	id := r.lastID + 1
	sk, err := data.ShopType.Create(r.env, id, data)
	if err != nil {
		return nil, err
	}
	r.lastID = id
	r.add(sk, shopkeeper.AddedCreated)
	return sk, nil
}

func (r *Registry) add(sk *shopkeeper.Shopkeeper, cause shopkeeper.AddedCause) {
	if _, ok := r.byID[sk.ID()]; ok {
		panic(fmt.Sprintf("registry: shopkeeper id %d already registered", sk.ID()))
	}
	r.byID[sk.ID()] = sk
	r.byUUID[sk.UniqueID()] = sk
	cc := sk.ChunkCoords()
	r.byChunk[cc] = append(r.byChunk[cc], sk)

	sk.InformAdded(cause)
	// Marked dirty before it was valid, so the storage was not told yet.
	if sk.IsDirty() && r.env.Storage != nil {
		r.env.Storage.MarkDirty()
	}
	r.env.Events.Fire(shopkeeper.AddedEvent{Shopkeeper: sk, Cause: cause})

	if r.isChunkLoaded(cc) {
		r.activate(sk)
	}
	r.updateGauges()
}

// DeleteShopkeeper removes sk permanently. The storage drops it on the next save.
func (r *Registry) DeleteShopkeeper(sk *shopkeeper.Shopkeeper) {
	r.remove(sk, shopkeeper.RemovedDelete)
}

func (r *Registry) remove(sk *shopkeeper.Shopkeeper, cause shopkeeper.RemovalCause) {
	if r.byID[sk.ID()] != sk {
		return
	}
	r.deactivate(sk)
	sk.InformRemoval(cause)

	delete(r.byID, sk.ID())
	if r.byUUID[sk.UniqueID()] == sk {
		delete(r.byUUID, sk.UniqueID())
	}
	r.removeFromChunk(sk, sk.ChunkCoords())
	r.env.Events.Fire(shopkeeper.RemovedEvent{Shopkeeper: sk, Cause: cause})
	r.updateGauges()
}

// UnloadAll removes every shopkeeper without deleting it, e.g. on shutdown.
func (r *Registry) UnloadAll() {
	for _, sk := range r.All() {
		r.remove(sk, shopkeeper.RemovedUnload)
	}
}

func (r *Registry) removeFromChunk(sk *shopkeeper.Shopkeeper, cc shopkeeper.ChunkCoords) {
	list := r.byChunk[cc]
	for i, other := range list {
		if other == sk {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.byChunk, cc)
		return
	}
	r.byChunk[cc] = list
}

// OnShopkeeperMove updates the chunk index and activation after a location change.
func (r *Registry) OnShopkeeperMove(sk *shopkeeper.Shopkeeper, old shopkeeper.ChunkCoords) {
	if r.byID[sk.ID()] != sk {
		return
	}
	cc := sk.ChunkCoords()
	if cc != old {
		r.removeFromChunk(sk, old)
		r.byChunk[cc] = append(r.byChunk[cc], sk)
	}
	// Respawn at the new location.
	r.deactivate(sk)
	if r.isChunkLoaded(cc) {
		r.activate(sk)
	}
	r.updateGauges()
}

func (r *Registry) isChunkLoaded(cc shopkeeper.ChunkCoords) bool {
	w, ok := r.env.Worlds.World(cc.World)
	return ok && w.IsChunkLoaded(cc.Key())
}

// activate spawns the shop object if needed and indexes its object id. A
// failed spawn leaves the shopkeeper registered but inactive.
func (r *Registry) activate(sk *shopkeeper.Shopkeeper) {
	if _, ok := r.active[sk.ID()]; ok {
		return
	}
	if sk.NeedsSpawning() && !sk.IsActive() {
		if !sk.Spawn() {
			r.log.Warn("could not spawn shopkeeper",
				zap.Int("id", sk.ID()), zap.String("location", sk.PositionString()))
			return
		}
	}
	objectID := sk.ObjectID()
	r.active[sk.ID()] = objectID
	if objectID != "" {
		r.byObjectID[objectID] = sk
	}
	r.env.Events.Fire(shopkeeper.ActivatedEvent{Shopkeeper: sk})
}

func (r *Registry) deactivate(sk *shopkeeper.Shopkeeper) {
	objectID, ok := r.active[sk.ID()]
	if !ok {
		return
	}
	delete(r.active, sk.ID())
	if objectID != "" && r.byObjectID[objectID] == sk {
		delete(r.byObjectID, objectID)
	}
	if sk.NeedsSpawning() {
		sk.Despawn()
	}
	r.env.Events.Fire(shopkeeper.DeactivatedEvent{Shopkeeper: sk})
}

func (r *Registry) WorldLoaded(w *world.World) {
	for _, k := range w.LoadedChunkKeys() {
		r.ChunkLoaded(w, k)
	}
}

func (r *Registry) WorldUnloaded(w *world.World) {
	for _, sk := range r.All() {
		if sk.WorldName() == w.Name() {
			r.deactivate(sk)
		}
	}
	r.updateGauges()
}

func (r *Registry) ChunkLoaded(w *world.World, k world.ChunkKey) {
	cc := shopkeeper.ChunkCoords{World: w.Name(), CX: k.CX, CZ: k.CZ}
	list := r.InChunk(cc)
	if len(list) == 0 {
		return
	}
	for _, sk := range list {
		sk.OnChunkLoad(w.Saving())
		r.reactivate(sk)
	}
	r.updateGauges()
}

// ChunkUnloaded despawns the chunk's shop objects, except while the world is
// only being saved.
func (r *Registry) ChunkUnloaded(w *world.World, k world.ChunkKey) {
	cc := shopkeeper.ChunkCoords{World: w.Name(), CX: k.CX, CZ: k.CZ}
	list := r.InChunk(cc)
	if len(list) == 0 {
		return
	}
	saving := w.Saving()
	for _, sk := range list {
		sk.OnChunkUnload(saving)
		if !saving {
			r.deactivate(sk)
		}
	}
	r.updateGauges()
}

// reactivate activates sk, or refreshes its object index if it is already active.
func (r *Registry) reactivate(sk *shopkeeper.Shopkeeper) {
	if _, ok := r.active[sk.ID()]; ok && !sk.IsActive() && sk.NeedsSpawning() {
		r.forget(sk)
	}
	r.activate(sk)
}

func (r *Registry) forget(sk *shopkeeper.Shopkeeper) {
	objectID := r.active[sk.ID()]
	delete(r.active, sk.ID())
	if objectID != "" && r.byObjectID[objectID] == sk {
		delete(r.byObjectID, objectID)
	}
}

// CheckActive verifies the shop objects in loaded chunks, respawning broken
// ones and retrying failed spawns. It returns how many objects were respawned.
func (r *Registry) CheckActive() int {
	respawned := 0
	for _, sk := range r.All() {
		if !r.isChunkLoaded(sk.ChunkCoords()) {
			continue
		}
		oldID, wasActive := r.active[sk.ID()]
		if !wasActive {
			r.activate(sk)
			if _, ok := r.active[sk.ID()]; ok {
				respawned++
			}
			continue
		}
		if !sk.Check() {
			if sk.NeedsSpawning() && !sk.IsActive() {
				// Respawn failed; retried through activate on the next pass.
				r.log.Warn("could not respawn shopkeeper",
					zap.Int("id", sk.ID()), zap.String("location", sk.PositionString()))
				r.forget(sk)
				r.env.Events.Fire(shopkeeper.DeactivatedEvent{Shopkeeper: sk})
			}
			continue
		}
		respawned++
		if newID := sk.ObjectID(); newID != oldID {
			if oldID != "" && r.byObjectID[oldID] == sk {
				delete(r.byObjectID, oldID)
			}
			if newID != "" {
				r.byObjectID[newID] = sk
			}
			r.active[sk.ID()] = newID
		}
	}
	if respawned > 0 {
		r.log.Info("respawned shop objects", zap.Int("count", respawned))
		r.metrics.AddRespawns(respawned)
	}
	r.updateGauges()
	return respawned
}

// Lookups.

func (r *Registry) ByID(id int) (*shopkeeper.Shopkeeper, bool) {
	sk, ok := r.byID[id]
	return sk, ok
}

func (r *Registry) ByUniqueID(id uuid.UUID) (*shopkeeper.Shopkeeper, bool) {
	sk, ok := r.byUUID[id]
	return sk, ok
}

func (r *Registry) ByObjectID(objectID string) (*shopkeeper.Shopkeeper, bool) {
	sk, ok := r.byObjectID[objectID]
	return sk, ok
}

func (r *Registry) InChunk(cc shopkeeper.ChunkCoords) []*shopkeeper.Shopkeeper {
	list := r.byChunk[cc]
	out := make([]*shopkeeper.Shopkeeper, len(list))
	copy(out, list)
	return out
}

func (r *Registry) ShopkeepersAtLocation(loc world.Location) []*shopkeeper.Shopkeeper {
	var out []*shopkeeper.Shopkeeper
	for _, sk := range r.byChunk[shopkeeper.ChunkCoordsOf(loc.World, loc.X, loc.Z)] {
		if sk.X() == loc.X && sk.Y() == loc.Y && sk.Z() == loc.Z {
			out = append(out, sk)
		}
	}
	return out
}

func (r *Registry) ShopkeepersOwnedBy(owner uuid.UUID) []*shopkeeper.Shopkeeper {
	var out []*shopkeeper.Shopkeeper
	for _, sk := range r.All() {
		if id, ok := shopkeeper.OwnerOf(sk); ok && id == owner {
			out = append(out, sk)
		}
	}
	return out
}

// All returns the registered shopkeepers ordered by id.
func (r *Registry) All() []*shopkeeper.Shopkeeper {
	out := make([]*shopkeeper.Shopkeeper, 0, len(r.byID))
	for _, sk := range r.byID {
		out = append(out, sk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (r *Registry) Count() int { return len(r.byID) }

func (r *Registry) ActiveCount() int { return len(r.active) }

func (r *Registry) IsActive(sk *shopkeeper.Shopkeeper) bool {
	_, ok := r.active[sk.ID()]
	return ok
}

func (r *Registry) updateGauges() {
	r.metrics.SetCounts(len(r.byID), len(r.active))
}

// LoadFailure records a saved shopkeeper that could not be loaded.
type LoadFailure struct {
	Key string
	Err error
}

type LoadReport struct {
	Loaded   int
	Dirty    int
	Failures []LoadFailure
}

// LoadAll registers every shopkeeper section of root. The keys are the
// shopkeeper ids; non-section keys (like the data version) are skipped. One
// shopkeeper failing to load does not affect the others.
func (r *Registry) LoadAll(root *section.Section) LoadReport {
	var rep LoadReport
	for _, key := range root.Keys() {
		sec := root.Section(key)
		if sec == nil {
			continue
		}
		sk, err := r.loadOne(key, sec)
		r.metrics.ObserveLoad(err)
		if err != nil {
			r.log.Warn("could not load shopkeeper", zap.String("id", key), zap.Error(err))
			rep.Failures = append(rep.Failures, LoadFailure{Key: key, Err: err})
			continue
		}
		rep.Loaded++
		if sk.IsDirty() {
			rep.Dirty++
		}
	}
	r.log.Info("loaded shopkeepers",
		zap.Int("loaded", rep.Loaded),
		zap.Int("failed", len(rep.Failures)),
		zap.Int("dirty", rep.Dirty))
	return rep
}

func (r *Registry) loadOne(key string, sec *section.Section) (*shopkeeper.Shopkeeper, error) {
	id, err := strconv.Atoi(key)
	if err != nil || id <= 0 {
		return nil, &shopkeeper.CreateError{Reason: fmt.Sprintf("invalid shopkeeper id %q", key)}
	}
	// Reserved even if loading fails, the storage keeps the data under this id.
	if id > r.lastID {
		r.lastID = id
	}
	if _, ok := r.byID[id]; ok {
		return nil, &shopkeeper.CreateError{Shopkeeper: id, Reason: "duplicate shopkeeper id"}
	}
	if uid := savedUniqueID(sec); uid != uuid.Nil {
		if other, ok := r.byUUID[uid]; ok {
			return nil, &shopkeeper.CreateError{
				Shopkeeper: id,
				Reason:     fmt.Sprintf("duplicate unique id (used by shopkeeper %d)", other.ID()),
			}
		}
	}
	typ, corrected, err := r.types.Resolve(id, sec)
	if err != nil {
		return nil, err
	}
	sk, err := typ.Load(r.env, id, sec)
	if err != nil {
		return nil, err
	}
	if corrected {
		sk.MarkDirty()
	}
	r.add(sk, shopkeeper.AddedLoaded)
	return sk, nil
}

// savedUniqueID returns the stored unique id, or uuid.Nil if it is missing or
// invalid. Invalid ids are regenerated on load and cannot collide.
func savedUniqueID(sec *section.Section) uuid.UUID {
	id, err := uuid.Parse(sec.String("uniqueId", ""))
	if err != nil {
		return uuid.Nil
	}
	return id
}
