package conversation

import (
	"github.com/matheus3301/msgr/internal/contacts"
	"github.com/matheus3301/msgr/internal/sdk"
)

// Bus payloads. Conversation is the ID of the publishing session.

// Appended is published on conversation.message_appended.
type Appended struct {
	Conversation string
	Entry        Entry
}

// Notification is published on conversation.notification when a message
// arrives while the conversation is not focused.
type Notification struct {
	Conversation string
	Title        string
	Body         string
}

// Focused is published on conversation.contact_focused.
type Focused struct {
	Conversation string
	Contact      contacts.Contact
}

// Typing is published on conversation.typing. Active is false when the
// indicator is cleared.
type Typing struct {
	Conversation string
	ID           string
	Name         string
	Active       bool
}

// TitleChanged is published on conversation.title_changed.
type TitleChanged struct {
	Conversation string
	Title        string
}

// Closed is published on conversation.closed.
type Closed struct {
	Conversation string
}

// Messages a session posts back to its owning loop from other goroutines.

// TypingExpired fires when a typing timer runs out. Stale generations are
// ignored.
type TypingExpired struct {
	Conversation string
	Remote       bool
	Gen          uint64
}

// ChannelOpened reports the outcome of asking the service for a channel to
// re-invite Invitee on.
type ChannelOpened struct {
	Conversation string
	Invitee      string
	Channel      sdk.Channel
	Err          error
}

// InviteFailed reports a failed invite on an existing channel.
type InviteFailed struct {
	Conversation string
	Channel      string
	Invitee      string
	Err          error
}
