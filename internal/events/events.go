// Package events is a synchronous event bus. Handlers run on the goroutine
// that fires the event, in subscription order.
package events

type Event interface {
	Name() string
}

type Cancellable interface {
	Event
	Cancelled() bool
	SetCancelled(bool)
}

// Cancel can be embedded to make an event cancellable.
type Cancel struct {
	cancelled bool
}

func (c *Cancel) Cancelled() bool     { return c.cancelled }
func (c *Cancel) SetCancelled(v bool) { c.cancelled = v }

type Handler func(Event)

type Bus struct {
	byName map[string][]Handler
	all    []Handler
}

func NewBus() *Bus {
	return &Bus{byName: map[string][]Handler{}}
}

func (b *Bus) Subscribe(name string, h Handler) {
	b.byName[name] = append(b.byName[name], h)
}

// SubscribeAll registers h for every event.
func (b *Bus) SubscribeAll(h Handler) {
	b.all = append(b.all, h)
}

// Fire delivers e and reports whether it was cancelled. Catch-all handlers
// observe the event after the named handlers.
func (b *Bus) Fire(e Event) bool {
	if b == nil {
		return false
	}
	for _, h := range b.byName[e.Name()] {
		h(e)
	}
	for _, h := range b.all {
		h(e)
	}
	if c, ok := e.(Cancellable); ok {
		return c.Cancelled()
	}
	return false
}
