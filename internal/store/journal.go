package store

import (
	"sync"

	"go.uber.org/zap"
)

// Journal applies writes on a single background goroutine in submission
// order. Submitting never blocks; failures are logged and dropped.
type Journal struct {
	db     *DB
	logger *zap.Logger

	mu     sync.Mutex
	queue  []journalEntry
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

type journalEntry struct {
	label string
	fn    func(*DB) error
}

// NewJournal starts a journal writing to db.
func NewJournal(db *DB, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	j := &Journal{
		db:     db,
		logger: logger.Named("journal"),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go j.run()
	return j
}

// Submit queues fn. Calls after Close are ignored.
func (j *Journal) Submit(label string, fn func(*DB) error) {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		j.logger.Warn("write after close dropped", zap.String("op", label))
		return
	}
	j.queue = append(j.queue, journalEntry{label: label, fn: fn})
	j.mu.Unlock()

	select {
	case j.wake <- struct{}{}:
	default:
	}
}

// InsertMessage queues m for insertion.
func (j *Journal) InsertMessage(m Message) {
	j.Submit("insert message", func(db *DB) error { return db.InsertMessage(&m) })
}

// Flush blocks until everything submitted before the call has been applied.
func (j *Journal) Flush() {
	done := make(chan struct{})
	j.Submit("flush", func(*DB) error {
		close(done)
		return nil
	})
	select {
	case <-done:
	case <-j.done:
	}
}

// Close applies the remaining queue and stops the writer.
func (j *Journal) Close() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		<-j.done
		return
	}
	j.closed = true
	j.mu.Unlock()

	select {
	case j.wake <- struct{}{}:
	default:
	}
	<-j.done
}

func (j *Journal) run() {
	defer close(j.done)
	for range j.wake {
		for {
			j.mu.Lock()
			if len(j.queue) == 0 {
				closed := j.closed
				j.mu.Unlock()
				if closed {
					return
				}
				break
			}
			entry := j.queue[0]
			j.queue[0] = journalEntry{}
			j.queue = j.queue[1:]
			j.mu.Unlock()

			if err := entry.fn(j.db); err != nil {
				j.logger.Error("journal write failed", zap.String("op", entry.label), zap.Error(err))
			}
		}
	}
}
