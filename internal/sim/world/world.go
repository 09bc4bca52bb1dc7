package world

import (
	"sort"
)

// Listener receives chunk and world lifecycle notifications. Callbacks run
// synchronously on the owner loop goroutine and must not block.
type Listener interface {
	WorldLoaded(w *World)
	WorldUnloaded(w *World)
	ChunkLoaded(w *World, key ChunkKey)
	ChunkUnloaded(w *World, key ChunkKey)
}

// World is one named, chunked world.
// All state must be accessed only from the owner loop goroutine.
type World struct {
	name   string
	owner  *Worlds
	chunks *ChunkStore
	loaded map[ChunkKey]bool
	saving bool
}

func (w *World) Name() string { return w.name }

// Saving reports whether chunk unloads are happening as part of a world save.
func (w *World) Saving() bool { return w.saving }

func (w *World) Block(pos Vec3i) Block { return w.chunks.GetBlock(pos) }

func (w *World) SetBlock(pos Vec3i, b Block) { w.chunks.SetBlock(pos, b) }

func (w *World) IsEmpty(pos Vec3i) bool { return w.chunks.GetBlock(pos) == Air }

func (w *World) ChunkDigest(k ChunkKey) [32]byte { return w.chunks.Digest(k) }

func (w *World) IsChunkLoaded(k ChunkKey) bool { return w.loaded[k] }

func (w *World) LoadedChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(w.loaded))
	for k := range w.loaded {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// LoadChunk marks the chunk loaded and notifies listeners. Loading an already
// loaded chunk is a no-op.
func (w *World) LoadChunk(k ChunkKey) {
	if w.loaded[k] {
		return
	}
	w.loaded[k] = true
	for _, l := range w.owner.listeners {
		l.ChunkLoaded(w, k)
	}
}

func (w *World) UnloadChunk(k ChunkKey) {
	if !w.loaded[k] {
		return
	}
	for _, l := range w.owner.listeners {
		l.ChunkUnloaded(w, k)
	}
	delete(w.loaded, k)
}

// LoadArea loads every chunk within radius chunks of the block position.
func (w *World) LoadArea(center Vec3i, radius int) {
	c := ChunkKeyOf(center.X, center.Z)
	for dz := -radius; dz <= radius; dz++ {
		for dx := -radius; dx <= radius; dx++ {
			w.LoadChunk(ChunkKey{CX: c.CX + dx, CZ: c.CZ + dz})
		}
	}
}

// Save unloads all chunks with the saving flag set, the way a full world
// save flushes chunks, and loads them again afterwards.
func (w *World) Save() {
	keys := w.LoadedChunkKeys()
	w.saving = true
	for _, k := range keys {
		w.UnloadChunk(k)
	}
	w.saving = false
	for _, k := range keys {
		w.LoadChunk(k)
	}
}

// Worlds tracks the currently loaded worlds.
type Worlds struct {
	worlds    map[string]*World
	listeners []Listener
}

func NewWorlds() *Worlds {
	return &Worlds{worlds: map[string]*World{}}
}

func (ws *Worlds) AddListener(l Listener) {
	ws.listeners = append(ws.listeners, l)
}

// Load loads (or returns the already loaded) world with the given name.
func (ws *Worlds) Load(name string, gen WorldGen) *World {
	if w, ok := ws.worlds[name]; ok {
		return w
	}
	w := &World{
		name:   name,
		owner:  ws,
		chunks: NewChunkStore(gen),
		loaded: map[ChunkKey]bool{},
	}
	ws.worlds[name] = w
	for _, l := range ws.listeners {
		l.WorldLoaded(w)
	}
	return w
}

// Unload unloads all chunks of the world and then the world itself.
func (ws *Worlds) Unload(name string) bool {
	w, ok := ws.worlds[name]
	if !ok {
		return false
	}
	for _, k := range w.LoadedChunkKeys() {
		w.UnloadChunk(k)
	}
	for _, l := range ws.listeners {
		l.WorldUnloaded(w)
	}
	delete(ws.worlds, name)
	return true
}

func (ws *Worlds) World(name string) (*World, bool) {
	w, ok := ws.worlds[name]
	return w, ok
}

func (ws *Worlds) Names() []string {
	out := make([]string, 0, len(ws.worlds))
	for n := range ws.worlds {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the world of loc if it is loaded.
func (ws *Worlds) Resolve(loc Location) (*World, bool) {
	return ws.World(loc.World)
}
