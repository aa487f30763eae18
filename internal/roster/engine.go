// Package roster keeps the contact repository and its on-disk cache in step
// with the notification connection.
package roster

import (
	"fmt"
	"time"

	"github.com/matheus3301/msgr/internal/bus"
	"github.com/matheus3301/msgr/internal/contacts"
	"github.com/matheus3301/msgr/internal/sdk"
	"github.com/matheus3301/msgr/internal/store"
	"go.uber.org/zap"
)

// Loader reads the cached roster.
type Loader interface {
	ListContacts() ([]store.Contact, error)
}

// Writer applies cache writes off the caller's goroutine.
type Writer interface {
	Submit(label string, fn func(*store.DB) error)
}

// Updated is the payload of contact.updated.
type Updated struct {
	Contacts []contacts.Contact
}

// Engine ingests global-origin events into the repository.
type Engine struct {
	repo   *contacts.Repository
	writer Writer
	bus    bus.Publisher
	logger *zap.Logger
}

// NewEngine creates a roster engine. writer may be nil to skip caching.
func NewEngine(repo *contacts.Repository, writer Writer, b bus.Publisher, logger *zap.Logger) *Engine {
	if b == nil {
		b = bus.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		repo:   repo,
		writer: writer,
		bus:    b,
		logger: logger.Named("roster"),
	}
}

// Load fills the repository from the cache. Cached contacts start offline.
func (e *Engine) Load(l Loader) error {
	cached, err := l.ListContacts()
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	out := make([]contacts.Contact, 0, len(cached))
	for _, c := range cached {
		out = append(out, fromStore(c))
	}
	e.repo.AddMany(out)
	e.logger.Info("roster loaded", zap.Int("contacts", len(out)))
	return nil
}

// Handle applies evt if it is a roster event and reports whether it was.
func (e *Engine) Handle(evt sdk.Event) bool {
	switch evt := evt.(type) {
	case sdk.ContactListReceived:
		e.syncList(evt.Contacts)
	case sdk.PresenceChanged:
		c := e.repo.Modify(evt.ID, func(c *contacts.Contact) {
			if evt.DisplayName != "" {
				c.DisplayName = evt.DisplayName
			}
			if evt.Status == sdk.Offline || evt.Status == "" {
				c.Status = nil
			} else {
				st := evt.Status
				c.Status = &st
			}
			if c.DisplayPictureRef != evt.DisplayPictureRef {
				c.DisplayPictureRef = evt.DisplayPictureRef
				c.DisplayPicture = nil
			}
		})
		e.updated(c)
	case sdk.PersonalMessageChanged:
		c := e.repo.Modify(evt.ID, func(c *contacts.Contact) {
			text := evt.Text
			c.PersonalMessage = &text
		})
		e.updated(c)
	default:
		return false
	}
	return true
}

// syncList replaces list membership and names while keeping what presence
// updates already told us.
func (e *Engine) syncList(entries []sdk.ContactEntry) {
	out := make([]contacts.Contact, 0, len(entries))
	for _, entry := range entries {
		c, ok := e.repo.Get(entry.ID)
		if !ok {
			c = contacts.Placeholder(entry.ID)
		}
		if entry.DisplayName != "" {
			c.DisplayName = entry.DisplayName
		}
		c.Lists = entry.Lists
		out = append(out, c)
	}
	e.repo.UpdateMany(out)
	e.logger.Info("contact list received", zap.Int("contacts", len(out)))
	e.updated(out...)
}

// Remove drops a contact from the repository and the cache.
func (e *Engine) Remove(id string) {
	e.repo.Remove(id)
	e.submit("delete contact", func(db *store.DB) error { return db.DeleteContact(id) })
	e.bus.Publish(bus.Event{Kind: bus.ContactRemoved, Timestamp: time.Now(), Payload: id})
}

// SetDisplayPicture caches a processed thumbnail for id.
func (e *Engine) SetDisplayPicture(id string, thumbnail []byte) {
	c := e.repo.Modify(id, func(c *contacts.Contact) {
		c.DisplayPicture = thumbnail
	})
	e.submit("cache display picture", func(db *store.DB) error {
		return db.SetContactDisplayPicture(id, thumbnail)
	})
	e.bus.Publish(bus.Event{Kind: bus.ContactDisplayPicture, Timestamp: time.Now(), Payload: c})
}

func (e *Engine) updated(cs ...contacts.Contact) {
	rows := make([]store.Contact, 0, len(cs))
	for _, c := range cs {
		rows = append(rows, toStore(c))
	}
	e.submit("upsert contacts", func(db *store.DB) error { return db.UpsertContacts(rows) })
	e.bus.Publish(bus.Event{Kind: bus.ContactUpdated, Timestamp: time.Now(), Payload: Updated{Contacts: cs}})
}

func (e *Engine) submit(label string, fn func(*store.DB) error) {
	if e.writer != nil {
		e.writer.Submit(label, fn)
	}
}

func toStore(c contacts.Contact) store.Contact {
	return store.Contact{
		ID:                c.ID,
		DisplayName:       c.DisplayName,
		Lists:             int(c.Lists),
		PersonalMessage:   c.PersonalMessage,
		DisplayPictureRef: c.DisplayPictureRef,
		DisplayPicture:    c.DisplayPicture,
	}
}

func fromStore(c store.Contact) contacts.Contact {
	return contacts.Contact{
		ID:                c.ID,
		DisplayName:       c.DisplayName,
		Lists:             sdk.ListFlags(c.Lists),
		PersonalMessage:   c.PersonalMessage,
		DisplayPictureRef: c.DisplayPictureRef,
		DisplayPicture:    c.DisplayPicture,
	}
}
