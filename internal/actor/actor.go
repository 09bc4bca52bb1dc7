// Package actor defines who requests shop creation and opens shop windows.
package actor

import (
	"strings"

	"github.com/google/uuid"

	"github.com/TomCreeper/Shopkeepers/internal/text"
)

type Actor interface {
	Name() string
	UniqueID() uuid.UUID
	HasPermission(perm string) bool
	SendMessage(msg string)
	IsSneaking() bool
}

// Player is an in-memory actor. It records every message it receives.
type Player struct {
	name     string
	id       uuid.UUID
	perms    map[string]bool
	op       bool
	sneaking bool
	messages []string
}

func NewPlayer(name string, perms ...string) *Player {
	p := &Player{
		name:  name,
		id:    uuid.New(),
		perms: map[string]bool{},
	}
	for _, perm := range perms {
		p.perms[perm] = true
	}
	return p
}

// NewOperator returns a player that holds every permission.
func NewOperator(name string) *Player {
	p := NewPlayer(name)
	p.op = true
	return p
}

func (p *Player) Name() string        { return p.name }
func (p *Player) UniqueID() uuid.UUID { return p.id }
func (p *Player) IsSneaking() bool    { return p.sneaking }

func (p *Player) SetSneaking(v bool) { p.sneaking = v }

func (p *Player) Grant(perm string)  { p.perms[perm] = true }
func (p *Player) Revoke(perm string) { delete(p.perms, perm) }

// HasPermission treats an empty permission as granted.
func (p *Player) HasPermission(perm string) bool {
	if perm == "" || p.op {
		return true
	}
	return p.perms[perm]
}

// SendMessage colorizes msg and records one entry per line. Empty messages are dropped.
func (p *Player) SendMessage(msg string) {
	if msg == "" {
		return
	}
	for _, line := range strings.Split(text.Colorize(msg), "\n") {
		p.messages = append(p.messages, line)
	}
}

func (p *Player) Messages() []string {
	out := make([]string, len(p.messages))
	copy(out, p.messages)
	return out
}

func (p *Player) LastMessage() string {
	if len(p.messages) == 0 {
		return ""
	}
	return p.messages[len(p.messages)-1]
}

func (p *Player) ClearMessages() { p.messages = nil }

// SendMessage sends msg to a with the placeholder pairs replaced.
func SendMessage(a Actor, msg string, args ...string) {
	if a == nil || msg == "" {
		return
	}
	a.SendMessage(text.ReplaceArgs(msg, args...))
}
