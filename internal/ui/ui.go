// Package ui tracks which shop windows actors have open.
package ui

import (
	"sort"

	"github.com/google/uuid"

	"github.com/TomCreeper/Shopkeepers/internal/actor"
)

const (
	PermTrade  = "shopkeeper.trade"
	PermBypass = "shopkeeper.bypass"
	PermAdmin  = "shopkeeper.admin"
)

type Type struct {
	ID         string
	Permission string
}

var (
	Trading = Type{ID: "trading", Permission: PermTrade}
	Editor  = Type{ID: "editor"}
)

// Recipe is one trade offer: the result and up to two required items.
type Recipe struct {
	Result string
	Item1  string
	Item2  string
}

type Handler interface {
	Type() Type
	CanOpen(a actor.Actor) bool
	Open(a actor.Actor) bool
}

// TradingHandler shows the recipes returned by Recipes at open time.
type TradingHandler struct {
	Recipes func() []Recipe
}

func (h *TradingHandler) Type() Type { return Trading }

func (h *TradingHandler) CanOpen(a actor.Actor) bool {
	return a.HasPermission(Trading.Permission)
}

func (h *TradingHandler) Open(a actor.Actor) bool {
	if h.Recipes == nil {
		return true
	}
	return len(h.Recipes()) > 0
}

// EditorHandler lets the owner, or anyone with the bypass permission, edit a
// shop. Shops without owner require the admin permission.
type EditorHandler struct {
	Owner uuid.UUID
}

func (h *EditorHandler) Type() Type { return Editor }

func (h *EditorHandler) CanOpen(a actor.Actor) bool {
	if a.HasPermission(PermBypass) {
		return true
	}
	if h.Owner == uuid.Nil {
		return a.HasPermission(PermAdmin)
	}
	return a.UniqueID() == h.Owner
}

func (h *EditorHandler) Open(actor.Actor) bool { return true }

type Session struct {
	Owner   int
	Type    Type
	Actor   actor.Actor
	Handler Handler
}

// Manager keeps at most one open window per actor.
type Manager struct {
	sessions map[uuid.UUID]Session
}

func NewManager() *Manager {
	return &Manager{sessions: map[uuid.UUID]Session{}}
}

// Request opens the window of h for a on behalf of shopkeeper owner. Any
// window a already has open is closed first.
func (m *Manager) Request(owner int, h Handler, a actor.Actor) bool {
	if h == nil || a == nil {
		return false
	}
	if !h.CanOpen(a) {
		return false
	}
	m.Close(a)
	if !h.Open(a) {
		return false
	}
	m.sessions[a.UniqueID()] = Session{Owner: owner, Type: h.Type(), Actor: a, Handler: h}
	return true
}

func (m *Manager) Session(a actor.Actor) (Session, bool) {
	s, ok := m.sessions[a.UniqueID()]
	return s, ok
}

func (m *Manager) Close(a actor.Actor) {
	delete(m.sessions, a.UniqueID())
}

// CloseAll closes every window of shopkeeper owner and returns how many were open.
func (m *Manager) CloseAll(owner int) int {
	n := 0
	for id, s := range m.sessions {
		if s.Owner == owner {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

func (m *Manager) Viewers(owner int) []actor.Actor {
	var out []actor.Actor
	for _, s := range m.sessions {
		if s.Owner == owner {
			out = append(out, s.Actor)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
