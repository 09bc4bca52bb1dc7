package shopkeeper

import "github.com/TomCreeper/Shopkeepers/internal/events"

const (
	EventCreate      = "shopkeeper.create"
	EventAdded       = "shopkeeper.added"
	EventRemoved     = "shopkeeper.removed"
	EventActivated   = "shopkeeper.activated"
	EventDeactivated = "shopkeeper.deactivated"
)

type AddedCause int

const (
	AddedCreated AddedCause = iota
	AddedLoaded
)

func (c AddedCause) String() string {
	if c == AddedLoaded {
		return "loaded"
	}
	return "created"
}

type RemovalCause int

const (
	RemovedDelete RemovalCause = iota
	RemovedUnload
)

func (c RemovalCause) String() string {
	if c == RemovedUnload {
		return "unload"
	}
	return "delete"
}

// CreateEvent is fired before a player creates a shopkeeper. Cancelling it
// vetoes the creation.
type CreateEvent struct {
	events.Cancel
	Data CreationData
}

func (*CreateEvent) Name() string { return EventCreate }

type AddedEvent struct {
	Shopkeeper *Shopkeeper
	Cause      AddedCause
}

func (AddedEvent) Name() string { return EventAdded }

type RemovedEvent struct {
	Shopkeeper *Shopkeeper
	Cause      RemovalCause
}

func (RemovedEvent) Name() string { return EventRemoved }

// ActivatedEvent is fired when the shop object of a shopkeeper was spawned.
type ActivatedEvent struct {
	Shopkeeper *Shopkeeper
}

func (ActivatedEvent) Name() string { return EventActivated }

type DeactivatedEvent struct {
	Shopkeeper *Shopkeeper
}

func (DeactivatedEvent) Name() string { return EventDeactivated }
