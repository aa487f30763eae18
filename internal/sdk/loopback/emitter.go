package loopback

import (
	"slices"
	"sync"

	"github.com/matheus3301/msgr/internal/sdk"
)

// emitter queues events and delivers them from a single pump goroutine so a
// source's handlers observe events sequentially and in emission order.
// Events emitted while nobody is subscribed are held until a handler exists.
type emitter struct {
	mu       sync.Mutex
	handlers map[int]sdk.Handler
	next     int
	queue    []sdk.Event
	wake     chan struct{}
	started  bool
}

func (e *emitter) init() {
	e.handlers = make(map[int]sdk.Handler)
	e.wake = make(chan struct{}, 1)
}

// Emit queues an event for delivery to the current handlers.
func (e *emitter) Emit(evt sdk.Event) {
	e.mu.Lock()
	e.queue = append(e.queue, evt)
	e.mu.Unlock()
	e.signal()
}

// Subscribe installs h. Held events are delivered asynchronously.
func (e *emitter) Subscribe(h sdk.Handler) func() {
	e.mu.Lock()
	id := e.next
	e.next++
	e.handlers[id] = h
	if !e.started {
		e.started = true
		go e.pump()
	}
	e.mu.Unlock()
	e.signal()

	return func() {
		e.mu.Lock()
		delete(e.handlers, id)
		e.mu.Unlock()
	}
}

func (e *emitter) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *emitter) pump() {
	for range e.wake {
		for {
			e.mu.Lock()
			if len(e.queue) == 0 || len(e.handlers) == 0 {
				e.mu.Unlock()
				break
			}
			evt := e.queue[0]
			e.queue = e.queue[1:]
			ids := make([]int, 0, len(e.handlers))
			for id := range e.handlers {
				ids = append(ids, id)
			}
			slices.Sort(ids)
			hs := make([]sdk.Handler, 0, len(ids))
			for _, id := range ids {
				hs = append(hs, e.handlers[id])
			}
			e.mu.Unlock()

			for _, h := range hs {
				h(evt)
			}
		}
	}
}
