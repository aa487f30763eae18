package sdk

// Event is any notification emitted by a connection or channel.
type Event interface {
	isEvent()
}

// Redirected is emitted when the service asks the client to move servers.
type Redirected struct {
	Host string
	Port int
}

// ContactEntry is one row of the synchronized contact list.
type ContactEntry struct {
	ID          string
	DisplayName string
	Lists       ListFlags
}

// ContactListReceived carries the full contact list after sign-in.
type ContactListReceived struct {
	Contacts []ContactEntry
}

// PresenceChanged reports a contact's new status. DisplayPictureRef is the
// object reference of the picture the contact advertises, if any.
type PresenceChanged struct {
	ID                string
	DisplayName       string
	Status            Presence
	DisplayPictureRef string
}

type PersonalMessageChanged struct {
	ID   string
	Text string
}

// ChannelInvited is emitted on the notification connection when a contact
// pulls the user into a new conversation channel.
type ChannelInvited struct {
	Inviter string
	Channel Channel
}

type TextMessage struct {
	From string
	Text FormattedText
}

type Nudge struct {
	From string
}

type TypingNotification struct {
	From string
}

type ParticipantJoined struct {
	ID string
}

type ParticipantLeft struct {
	ID string
}

// DisplayPictureData delivers raw picture bytes requested earlier.
type DisplayPictureData struct {
	ID   string
	Data []byte
}

// Disconnected is emitted when the notification connection drops.
type Disconnected struct {
	Reason string
}

func (Redirected) isEvent()             {}
func (ContactListReceived) isEvent()    {}
func (PresenceChanged) isEvent()        {}
func (PersonalMessageChanged) isEvent() {}
func (ChannelInvited) isEvent()         {}
func (TextMessage) isEvent()            {}
func (Nudge) isEvent()                  {}
func (TypingNotification) isEvent()     {}
func (ParticipantJoined) isEvent()      {}
func (ParticipantLeft) isEvent()        {}
func (DisplayPictureData) isEvent()     {}
func (Disconnected) isEvent()           {}
