package bus

import "time"

// Event kinds. Subscribers filter on the prefix before the dot.
const (
	SessionStatusChanged   = "session.status_changed"
	SessionSignedIn        = "session.signed_in"
	SessionSignedOut       = "session.signed_out"
	SessionSignInFailed    = "session.sign_in_failed"
	SessionSignInCancelled = "session.sign_in_cancelled"

	ConversationOpened          = "conversation.opened"
	ConversationMessageAppended = "conversation.message_appended"
	ConversationNotification    = "conversation.notification"
	ConversationContactFocused  = "conversation.contact_focused"
	ConversationTyping          = "conversation.typing"
	ConversationTitleChanged    = "conversation.title_changed"
	ConversationClosed          = "conversation.closed"

	MessageSent       = "message.sent"
	MessageSendFailed = "message.send_failed"

	ContactUpdated        = "contact.updated"
	ContactRemoved        = "contact.removed"
	ContactDisplayPicture = "contact.display_picture"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(evt Event)
}

// Nop discards everything published to it.
type Nop struct{}

func (Nop) Publish(Event) {}
