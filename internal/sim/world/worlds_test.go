package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	events []string
}

func (l *recordingListener) WorldLoaded(w *World)   { l.events = append(l.events, "world+"+w.Name()) }
func (l *recordingListener) WorldUnloaded(w *World) { l.events = append(l.events, "world-"+w.Name()) }
func (l *recordingListener) ChunkLoaded(w *World, k ChunkKey) {
	l.events = append(l.events, "chunk+")
}
func (l *recordingListener) ChunkUnloaded(w *World, k ChunkKey) {
	if w.Saving() {
		l.events = append(l.events, "chunk-saving")
		return
	}
	l.events = append(l.events, "chunk-")
}

func TestWorlds_LifecycleNotifications(t *testing.T) {
	ws := NewWorlds()
	l := &recordingListener{}
	ws.AddListener(l)

	w := ws.Load("w", DefaultGen(1))
	require.Same(t, w, ws.Load("w", DefaultGen(2)))
	w.LoadChunk(ChunkKey{0, 0})
	w.LoadChunk(ChunkKey{0, 0})
	assert.True(t, w.IsChunkLoaded(ChunkKey{0, 0}))

	w.Save()
	assert.True(t, w.IsChunkLoaded(ChunkKey{0, 0}))
	assert.False(t, w.Saving())

	require.True(t, ws.Unload("w"))
	assert.False(t, ws.Unload("w"))
	_, ok := ws.World("w")
	assert.False(t, ok)

	assert.Equal(t, []string{"world+w", "chunk+", "chunk-saving", "chunk+", "chunk-", "world-w"}, l.events)
}

func TestWorld_LoadArea(t *testing.T) {
	ws := NewWorlds()
	w := ws.Load("w", DefaultGen(1))
	w.LoadArea(Vec3i{X: 20, Z: -3}, 1)
	keys := w.LoadedChunkKeys()
	require.Len(t, keys, 9)
	assert.Equal(t, ChunkKey{CX: 0, CZ: -2}, keys[0])
	assert.Equal(t, ChunkKey{CX: 2, CZ: 0}, keys[8])
}

func TestLocation_RelativeAndChunk(t *testing.T) {
	l := Location{World: "w", X: -1, Y: 64, Z: 16}
	assert.Equal(t, ChunkKey{CX: -1, CZ: 1}, l.Chunk())
	assert.Equal(t, Location{World: "w", X: -1, Y: 65, Z: 16}, l.Relative(FaceUp))
	assert.Equal(t, "w,-1,64,16", l.String())

	f, ok := ParseBlockFace("north")
	require.True(t, ok)
	assert.True(t, f.IsHorizontal())
	assert.False(t, FaceUp.IsHorizontal())
}
