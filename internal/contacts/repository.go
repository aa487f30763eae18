// Package contacts holds the shared contact directory. It is the only state
// read and written from several goroutines; everything it returns is a copy.
package contacts

import (
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Repository maps contact identifiers to contacts.
type Repository struct {
	mu       sync.RWMutex
	contacts map[string]Contact
	logger   *zap.Logger
}

// NewRepository creates an empty repository.
func NewRepository(logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		contacts: make(map[string]Contact),
		logger:   logger.Named("contacts"),
	}
}

// Get returns a snapshot of the contact with the given identifier.
func (r *Repository) Get(id string) (Contact, bool) {
	var (
		c     Contact
		found bool
	)
	r.read(func() {
		c, found = r.contacts[id]
		if found {
			c = c.Clone()
		}
	})
	return c, found
}

// All returns snapshots of every contact ordered by identifier.
func (r *Repository) All() []Contact {
	var out []Contact
	r.read(func() {
		out = make([]Contact, 0, len(r.contacts))
		for _, c := range r.contacts {
			out = append(out, c.Clone())
		}
	})
	slices.SortFunc(out, func(a, b Contact) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Len returns the number of contacts.
func (r *Repository) Len() int {
	n := 0
	r.read(func() { n = len(r.contacts) })
	return n
}

// AddMany inserts the given contacts, replacing any with the same identifier.
func (r *Repository) AddMany(contacts []Contact) {
	r.write(func() {
		for _, c := range contacts {
			r.contacts[c.ID] = c.Clone()
		}
	})
}

// UpdateMany replaces the stored record of every given contact.
func (r *Repository) UpdateMany(contacts []Contact) {
	r.AddMany(contacts)
}

// Modify applies fn to the stored contact under the write lock, creating a
// placeholder first when id is unknown, and returns the resulting snapshot.
// fn must not call back into the repository.
func (r *Repository) Modify(id string, fn func(c *Contact)) Contact {
	var out Contact
	r.write(func() {
		c, ok := r.contacts[id]
		if !ok {
			c = Placeholder(id)
		}
		c = c.Clone()
		fn(&c)
		c.ID = id
		r.contacts[id] = c
		out = c.Clone()
	})
	return out
}

// Remove deletes the contact. Removing an unknown identifier is a no-op.
func (r *Repository) Remove(id string) {
	r.write(func() {
		delete(r.contacts, id)
	})
}

// read and write keep the UI available if a critical section panics: the
// lock is released by the deferred unlock and the caller sees an empty result.
func (r *Repository) read(fn func()) {
	defer r.recoverPanic("read")
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn()
}

func (r *Repository) write(fn func()) {
	defer r.recoverPanic("write")
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

func (r *Repository) recoverPanic(op string) {
	if p := recover(); p != nil {
		r.logger.Error("contact repository operation panicked", zap.String("op", op), zap.Any("panic", p))
	}
}
