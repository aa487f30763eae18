package contacts

import (
	"bytes"

	"github.com/matheus3301/msgr/internal/sdk"
)

// Contact is a directory entry. ID never changes once created; every other
// field is replaced wholesale on update.
type Contact struct {
	ID              string
	DisplayName     string
	Lists           sdk.ListFlags
	Status          *sdk.Presence // nil means offline
	PersonalMessage *string

	// DisplayPictureRef is the object reference the contact advertises.
	DisplayPictureRef string
	// DisplayPicture is the locally cached thumbnail, if any.
	DisplayPicture []byte
}

// Placeholder synthesizes a contact for an identifier nobody has described yet.
func Placeholder(id string) Contact {
	return Contact{ID: id, DisplayName: id}
}

// Name returns the display name, falling back to the identifier.
func (c Contact) Name() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.ID
}

// Presence returns the contact's status, Offline when unknown.
func (c Contact) Presence() sdk.Presence {
	if c.Status == nil {
		return sdk.Offline
	}
	return *c.Status
}

// HasCachedPicture reports whether a thumbnail is cached locally.
func (c Contact) HasCachedPicture() bool {
	return len(c.DisplayPicture) > 0
}

// Clone returns a deep copy sharing no memory with c.
func (c Contact) Clone() Contact {
	out := c
	if c.Status != nil {
		s := *c.Status
		out.Status = &s
	}
	if c.PersonalMessage != nil {
		pm := *c.PersonalMessage
		out.PersonalMessage = &pm
	}
	if c.DisplayPicture != nil {
		out.DisplayPicture = bytes.Clone(c.DisplayPicture)
	}
	return out
}
