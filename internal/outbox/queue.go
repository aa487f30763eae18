// Package outbox sends over conversation channels. Jobs for one channel run
// strictly one after another; different channels proceed concurrently.
package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/msgr/internal/bus"
	"github.com/matheus3301/msgr/internal/sdk"
	"go.uber.org/zap"
)

// Job is one outbound operation on a channel.
type Job struct {
	Label string // e.g. "text", "nudge", "typing"
	MsgID string // set for log entries; success publishes message.sent
	Run   func(ctx context.Context, ch sdk.Channel) error
	Done  func(err error) // optional, called from the worker
}

// SendFailed is the payload of message.send_failed.
type SendFailed struct {
	Channel string
	Label   string
	MsgID   string
	Err     error
}

// Sent is the payload of message.sent.
type Sent struct {
	Channel string
	MsgID   string
}

// Queue runs one worker per busy channel. Failed jobs are not retried and
// never hold up the jobs queued behind them. Only failures of jobs carrying
// a MsgID are published; the rest are logged.
type Queue struct {
	bus    bus.Publisher
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	lanes   map[string]*lane
	stopped bool
	wg      sync.WaitGroup
}

type lane struct {
	ch   sdk.Channel
	jobs []Job
}

// NewQueue creates an idle queue.
func NewQueue(b bus.Publisher, logger *zap.Logger) *Queue {
	if b == nil {
		b = bus.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		bus:    b,
		logger: logger.Named("outbox"),
		ctx:    ctx,
		cancel: cancel,
		lanes:  make(map[string]*lane),
	}
}

// Enqueue appends jobs to ch's lane as one batch, in order.
func (q *Queue) Enqueue(ch sdk.Channel, jobs ...Job) {
	if len(jobs) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		q.logger.Warn("outbox stopped, dropping jobs", zap.Int("count", len(jobs)))
		return
	}
	id := ch.SessionID()
	l, ok := q.lanes[id]
	if !ok {
		l = &lane{ch: ch}
		q.lanes[id] = l
		q.wg.Add(1)
		go q.work(id, l)
	}
	l.jobs = append(l.jobs, jobs...)
}

// Wait blocks until every lane has drained.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Stop cancels in-flight jobs, abandons queued ones and waits for workers.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	q.cancel()
	q.wg.Wait()
}

func (q *Queue) work(id string, l *lane) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if len(l.jobs) == 0 {
			delete(q.lanes, id)
			q.mu.Unlock()
			return
		}
		job := l.jobs[0]
		l.jobs[0] = Job{}
		l.jobs = l.jobs[1:]
		q.mu.Unlock()

		q.run(id, l.ch, job)
	}
}

func (q *Queue) run(id string, ch sdk.Channel, job Job) {
	if err := q.ctx.Err(); err != nil {
		if job.Done != nil {
			job.Done(err)
		}
		return
	}

	err := job.Run(q.ctx, ch)
	switch {
	case err != nil && job.MsgID == "":
		q.logger.Debug("channel operation failed",
			zap.String("channel", id),
			zap.String("job", job.Label),
			zap.Error(err))
	case err != nil:
		q.logger.Warn("send failed",
			zap.String("channel", id),
			zap.String("job", job.Label),
			zap.String("msg_id", job.MsgID),
			zap.Error(err))
		q.bus.Publish(bus.Event{
			Kind:      bus.MessageSendFailed,
			Timestamp: time.Now(),
			Payload:   SendFailed{Channel: id, Label: job.Label, MsgID: job.MsgID, Err: err},
		})
	case job.MsgID != "":
		q.bus.Publish(bus.Event{
			Kind:      bus.MessageSent,
			Timestamp: time.Now(),
			Payload:   Sent{Channel: id, MsgID: job.MsgID},
		})
	}
	if job.Done != nil {
		job.Done(err)
	}
}
