package store

// User is the cached profile of a signed-in account.
type User struct {
	ID              string
	PersonalMessage *string
	DisplayPicture  []byte
}

// Contact is the cached roster entry of a contact.
type Contact struct {
	ID                string
	DisplayName       string
	Lists             int
	PersonalMessage   *string
	DisplayPictureRef string
	DisplayPicture    []byte
}

// Message kinds.
const (
	KindText  = "text"
	KindNudge = "nudge"
)

// Message is one conversation log entry. Peer is the contact the
// conversation was opened with.
type Message struct {
	ID         int64
	Peer       string
	MsgID      string
	SenderID   string
	SenderName string
	Receiver   string
	Body       string
	Kind       string
	Style      int
	Color      string
	Incoming   bool
	Timestamp  int64
}
