package roster

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/msgr/internal/bus"
	"github.com/matheus3301/msgr/internal/contacts"
	"github.com/matheus3301/msgr/internal/sdk"
	"github.com/matheus3301/msgr/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func setup(t *testing.T) (*Engine, *contacts.Repository, *store.DB, *store.Journal, *bus.Bus) {
	t.Helper()
	db := testDB(t)
	j := store.NewJournal(db, nil)
	t.Cleanup(j.Close)
	repo := contacts.NewRepository(nil)
	b := bus.New()
	return NewEngine(repo, j, b, nil), repo, db, j, b
}

func TestContactListSync(t *testing.T) {
	e, repo, db, j, b := setup(t)
	ch, unsub := b.Subscribe("contact.", 10)
	defer unsub()

	handled := e.Handle(sdk.ContactListReceived{Contacts: []sdk.ContactEntry{
		{ID: "bob@x.io", DisplayName: "Bob", Lists: sdk.ForwardList | sdk.AllowList},
		{ID: "eve@x.io", DisplayName: "Eve", Lists: sdk.BlockList},
	}})
	if !handled {
		t.Fatal("ContactListReceived not handled")
	}

	bob, ok := repo.Get("bob@x.io")
	if !ok || bob.DisplayName != "Bob" || !bob.Lists.Has(sdk.AllowList) {
		t.Errorf("bob = %+v, %v", bob, ok)
	}
	if repo.Len() != 2 {
		t.Errorf("repo.Len() = %d, want 2", repo.Len())
	}

	j.Flush()
	cached, err := db.ListContacts()
	if err != nil {
		t.Fatal(err)
	}
	if len(cached) != 2 {
		t.Errorf("cached %d contacts, want 2", len(cached))
	}

	select {
	case evt := <-ch:
		if evt.Kind != bus.ContactUpdated {
			t.Errorf("event kind = %q, want %s", evt.Kind, bus.ContactUpdated)
		}
		if n := len(evt.Payload.(Updated).Contacts); n != 2 {
			t.Errorf("updated %d contacts, want 2", n)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for contact.updated")
	}
}

func TestPresenceForUnknownContactSynthesizes(t *testing.T) {
	e, repo, _, _, _ := setup(t)

	e.Handle(sdk.PresenceChanged{ID: "new@x.io", Status: sdk.Away})

	c, ok := repo.Get("new@x.io")
	if !ok {
		t.Fatal("contact not synthesized")
	}
	if c.DisplayName != "new@x.io" {
		t.Errorf("DisplayName = %q, want identifier", c.DisplayName)
	}
	if c.Presence() != sdk.Away {
		t.Errorf("Presence() = %s, want AWY", c.Presence())
	}
}

func TestPresenceOfflineClearsStatus(t *testing.T) {
	e, repo, _, _, _ := setup(t)

	e.Handle(sdk.PresenceChanged{ID: "bob@x.io", DisplayName: "Bob", Status: sdk.Busy})
	e.Handle(sdk.PresenceChanged{ID: "bob@x.io", Status: sdk.Offline})

	c, _ := repo.Get("bob@x.io")
	if c.Status != nil {
		t.Errorf("Status = %v, want nil", *c.Status)
	}
	if c.DisplayName != "Bob" {
		t.Errorf("DisplayName = %q, want Bob kept", c.DisplayName)
	}
}

func TestListSyncKeepsPresence(t *testing.T) {
	e, repo, _, _, _ := setup(t)

	e.Handle(sdk.PresenceChanged{ID: "bob@x.io", Status: sdk.Busy, DisplayPictureRef: "obj1"})
	e.Handle(sdk.ContactListReceived{Contacts: []sdk.ContactEntry{{ID: "bob@x.io", DisplayName: "Bob", Lists: sdk.ForwardList}}})

	c, _ := repo.Get("bob@x.io")
	if c.Presence() != sdk.Busy || c.DisplayPictureRef != "obj1" || c.DisplayName != "Bob" {
		t.Errorf("contact = %+v", c)
	}
}

func TestNewPictureRefDropsCachedPicture(t *testing.T) {
	e, repo, _, _, _ := setup(t)

	e.Handle(sdk.PresenceChanged{ID: "bob@x.io", Status: sdk.Online, DisplayPictureRef: "obj1"})
	e.SetDisplayPicture("bob@x.io", []byte("thumb"))
	e.Handle(sdk.PresenceChanged{ID: "bob@x.io", Status: sdk.Online, DisplayPictureRef: "obj1"})
	if c, _ := repo.Get("bob@x.io"); !c.HasCachedPicture() {
		t.Error("same ref should keep cached picture")
	}

	e.Handle(sdk.PresenceChanged{ID: "bob@x.io", Status: sdk.Online, DisplayPictureRef: "obj2"})
	if c, _ := repo.Get("bob@x.io"); c.HasCachedPicture() {
		t.Error("new ref should drop cached picture")
	}
}

func TestPersonalMessage(t *testing.T) {
	e, repo, _, _, _ := setup(t)

	e.Handle(sdk.PersonalMessageChanged{ID: "bob@x.io", Text: "at the beach"})

	c, _ := repo.Get("bob@x.io")
	if c.PersonalMessage == nil || *c.PersonalMessage != "at the beach" {
		t.Errorf("PersonalMessage = %v", c.PersonalMessage)
	}
}

func TestNonRosterEventsIgnored(t *testing.T) {
	e, repo, _, _, _ := setup(t)

	if e.Handle(sdk.Nudge{From: "bob@x.io"}) {
		t.Error("Nudge should not be handled by roster")
	}
	if repo.Len() != 0 {
		t.Errorf("repo.Len() = %d, want 0", repo.Len())
	}
}

func TestRemoveAndReload(t *testing.T) {
	e, repo, db, j, b := setup(t)
	ch, unsub := b.Subscribe(bus.ContactRemoved, 1)
	defer unsub()

	e.Handle(sdk.ContactListReceived{Contacts: []sdk.ContactEntry{{ID: "a@x.io"}, {ID: "b@x.io"}}})
	e.SetDisplayPicture("a@x.io", []byte("thumb"))
	e.Remove("b@x.io")
	j.Flush()

	if _, ok := repo.Get("b@x.io"); ok {
		t.Error("b still in repository")
	}
	if evt := <-ch; evt.Payload != "b@x.io" {
		t.Errorf("removed payload = %v", evt.Payload)
	}

	fresh := contacts.NewRepository(nil)
	if err := NewEngine(fresh, nil, nil, nil).Load(db); err != nil {
		t.Fatal(err)
	}
	if fresh.Len() != 1 {
		t.Fatalf("reloaded %d contacts, want 1", fresh.Len())
	}
	a, _ := fresh.Get("a@x.io")
	if string(a.DisplayPicture) != "thumb" {
		t.Errorf("DisplayPicture = %q, want thumb", a.DisplayPicture)
	}
	if a.Status != nil {
		t.Error("cached contacts must start offline")
	}
}
