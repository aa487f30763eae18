// Package bridge fans the events of the notification connection and every
// conversation channel into one ordered stream for the update loop.
package bridge

import (
	"sync"

	"github.com/matheus3301/msgr/internal/sdk"
	"go.uber.org/zap"
)

// OriginGlobal tags events from the notification connection. Channel events
// carry the channel's session ID.
const OriginGlobal = ""

// Event is an SDK event tagged with where it came from.
type Event struct {
	Origin  string
	Payload sdk.Event
}

type source interface {
	Subscribe(h sdk.Handler) (unsubscribe func())
}

type request struct {
	origin string
	src    source // nil detaches
	ack    chan struct{}
}

// Bridge owns the subscriptions. Events of one origin keep their order;
// events of different origins interleave. A producer blocks while the
// outbound buffer is full, so nothing accepted is dropped before Close.
type Bridge struct {
	control chan request
	out     chan Event
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	logger  *zap.Logger
}

// New starts a bridge whose outbound stream buffers bufSize events.
func New(bufSize int, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bridge{
		control: make(chan request),
		out:     make(chan Event, bufSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  logger.Named("bridge"),
	}
	go b.run()
	return b
}

// Events is the single outbound stream.
func (b *Bridge) Events() <-chan Event { return b.out }

// AttachConnection forwards conn's events as OriginGlobal, replacing any
// previously attached connection.
func (b *Bridge) AttachConnection(conn sdk.Conn) {
	b.submit(request{origin: OriginGlobal, src: conn})
}

// AttachChannel forwards ch's events tagged with its session ID.
func (b *Bridge) AttachChannel(ch sdk.Channel) {
	b.submit(request{origin: ch.SessionID(), src: ch})
}

// Detach stops forwarding events of origin. Events the source emits after
// Detach returns are not forwarded.
func (b *Bridge) Detach(origin string) {
	b.submit(request{origin: origin})
}

// Close unsubscribes every source and releases blocked producers. Events
// still buffered remain readable.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
	<-b.stopped
}

// submit hands req to the run goroutine and waits until it is applied.
func (b *Bridge) submit(req request) {
	req.ack = make(chan struct{})
	select {
	case b.control <- req:
		<-req.ack
	case <-b.done:
	}
}

func (b *Bridge) run() {
	defer close(b.stopped)
	subs := make(map[string]func())
	for {
		select {
		case req := <-b.control:
			if unsub, ok := subs[req.origin]; ok {
				unsub()
				delete(subs, req.origin)
			}
			if req.src == nil {
				b.logger.Debug("source detached", zap.String("origin", req.origin))
				close(req.ack)
				continue
			}
			origin := req.origin
			subs[origin] = req.src.Subscribe(func(evt sdk.Event) {
				b.forward(Event{Origin: origin, Payload: evt})
			})
			b.logger.Debug("source attached", zap.String("origin", origin))
			close(req.ack)
		case <-b.done:
			for _, unsub := range subs {
				unsub()
			}
			return
		}
	}
}

func (b *Bridge) forward(evt Event) {
	select {
	case b.out <- evt:
	case <-b.done:
	}
}
