package voice

import (
	"sync"
)

// Emitter is a handler registry that engine implementations embed to satisfy
// [Engine.On]. Handlers for a kind are invoked in registration order.
//
// Emitter is safe for concurrent use. Handlers are called without the lock
// held, so a handler may unsubscribe itself.
type Emitter struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[EventKind][]registration
}

type registration struct {
	id uint64
	h  Handler
}

// On implements [Engine.On].
func (e *Emitter) On(kind EventKind, h Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handlers == nil {
		e.handlers = make(map[EventKind][]registration)
	}
	e.nextID++
	id := e.nextID
	e.handlers[kind] = append(e.handlers[kind], registration{id: id, h: h})

	var once sync.Once
	return func() {
		once.Do(func() { e.off(kind, id) })
	}
}

func (e *Emitter) off(kind EventKind, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	regs := e.handlers[kind]
	for i, r := range regs {
		if r.id == id {
			e.handlers[kind] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(e.handlers[kind]) == 0 {
		delete(e.handlers, kind)
	}
}

// Emit delivers ev to every handler registered for ev.Kind.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	regs := make([]registration, len(e.handlers[ev.Kind]))
	copy(regs, e.handlers[ev.Kind])
	e.mu.Unlock()

	for _, r := range regs {
		r.h(ev)
	}
}

// HandlerCount returns the number of live registrations across all kinds.
func (e *Emitter) HandlerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, regs := range e.handlers {
		n += len(regs)
	}
	return n
}
