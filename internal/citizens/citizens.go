// Package citizens is the NPC subsystem that owns citizen shop objects.
// NPCs spawn on their own whenever their chunk is loaded.
package citizens

import (
	"errors"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TomCreeper/Shopkeepers/internal/sim/world"
)

var ErrDisabled = errors.New("citizens: npc subsystem disabled")

type NPC struct {
	ID       uuid.UUID
	LegacyID int
	Name     string
	Location world.Location
	// Shopkeeper is the id of the shopkeeper bound through the shopkeeper trait, or 0.
	Shopkeeper int
}

type Manager struct {
	log     *zap.Logger
	worlds  *world.Worlds
	enabled bool

	npcs       map[uuid.UUID]*NPC
	byLegacy   map[int]uuid.UUID
	nextLegacy int
}

func New(log *zap.Logger, worlds *world.Worlds) *Manager {
	return &Manager{
		log:        log,
		worlds:     worlds,
		npcs:       map[uuid.UUID]*NPC{},
		byLegacy:   map[int]uuid.UUID{},
		nextLegacy: 1,
	}
}

func (m *Manager) IsEnabled() bool { return m != nil && m.enabled }

// Enable turns the subsystem on if citizen shops are wanted at all.
func (m *Manager) Enable(wanted bool) {
	if !wanted {
		return
	}
	m.enabled = true
	m.log.Info("npc subsystem enabled", zap.Int("npcs", len(m.npcs)))
}

func (m *Manager) Disable() {
	m.enabled = false
}

func (m *Manager) CreateNPC(loc world.Location, name string) (uuid.UUID, error) {
	if !m.IsEnabled() {
		return uuid.Nil, ErrDisabled
	}
	npc := &NPC{
		ID:       uuid.New(),
		LegacyID: m.nextLegacy,
		Name:     name,
		Location: loc,
	}
	m.nextLegacy++
	m.npcs[npc.ID] = npc
	m.byLegacy[npc.LegacyID] = npc.ID
	return npc.ID, nil
}

func (m *Manager) NPC(id uuid.UUID) (*NPC, bool) {
	npc, ok := m.npcs[id]
	return npc, ok
}

// ByLegacyID resolves the integer ids used before NPCs had unique ids.
func (m *Manager) ByLegacyID(legacy int) (uuid.UUID, bool) {
	id, ok := m.byLegacy[legacy]
	return id, ok
}

func (m *Manager) RemoveNPC(id uuid.UUID) bool {
	npc, ok := m.npcs[id]
	if !ok {
		return false
	}
	delete(m.npcs, id)
	delete(m.byLegacy, npc.LegacyID)
	return true
}

func (m *Manager) Rename(id uuid.UUID, name string) {
	if npc, ok := m.npcs[id]; ok {
		npc.Name = name
	}
}

func (m *Manager) Teleport(id uuid.UUID, loc world.Location) {
	if npc, ok := m.npcs[id]; ok {
		npc.Location = loc
	}
}

func (m *Manager) AttachTrait(id uuid.UUID, shopkeeper int) {
	if npc, ok := m.npcs[id]; ok {
		npc.Shopkeeper = shopkeeper
	}
}

// IsSpawned reports whether the NPC exists and its chunk is loaded.
func (m *Manager) IsSpawned(id uuid.UUID) bool {
	if !m.IsEnabled() {
		return false
	}
	npc, ok := m.npcs[id]
	if !ok {
		return false
	}
	w, ok := m.worlds.Resolve(npc.Location)
	return ok && w.IsChunkLoaded(npc.Location.Chunk())
}

// CleanupUnusedTraits detaches the shopkeeper trait from NPCs whose
// shopkeeper no longer exists and returns how many were detached.
func (m *Manager) CleanupUnusedTraits(exists func(shopkeeper int) bool) int {
	if !m.IsEnabled() {
		return 0
	}
	n := 0
	for _, npc := range m.npcs {
		if npc.Shopkeeper != 0 && !exists(npc.Shopkeeper) {
			npc.Shopkeeper = 0
			n++
		}
	}
	if n > 0 {
		m.log.Info("removed unused shopkeeper traits", zap.Int("count", n))
	}
	return n
}

func (m *Manager) IDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m.npcs))
	for id := range m.npcs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
