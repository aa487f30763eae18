// Package sdk declares the narrow surface of the messaging SDK that the
// client orchestrates. The wire protocol lives behind these interfaces.
package sdk

import (
	"context"
	"fmt"
	"strings"
)

// Presence is an availability state of the user or a contact.
type Presence string

const (
	Online      Presence = "NLN"
	Busy        Presence = "BSY"
	Away        Presence = "AWY"
	BeRightBack Presence = "BRB"
	OnThePhone  Presence = "PHN"
	OutToLunch  Presence = "LUN"
	Invisible   Presence = "HDN"
	Offline     Presence = "FLN"
)

var presenceNames = map[string]Presence{
	"online":     Online,
	"busy":       Busy,
	"away":       Away,
	"brb":        BeRightBack,
	"phone":      OnThePhone,
	"lunch":      OutToLunch,
	"invisible":  Invisible,
	"appear-off": Invisible,
	"offline":    Offline,
}

// ParsePresence accepts either a friendly name ("busy") or a protocol code ("BSY").
func ParsePresence(s string) (Presence, error) {
	if p, ok := presenceNames[strings.ToLower(s)]; ok {
		return p, nil
	}
	switch p := Presence(strings.ToUpper(s)); p {
	case Online, Busy, Away, BeRightBack, OnThePhone, OutToLunch, Invisible, Offline:
		return p, nil
	}
	return "", fmt.Errorf("unknown presence %q", s)
}

// ListFlags is the membership bitmask of a contact.
type ListFlags uint8

const (
	ForwardList ListFlags = 1 << iota
	AllowList
	BlockList
	ReverseList
	PendingList
)

func (f ListFlags) Has(flag ListFlags) bool { return f&flag != 0 }

// FontStyle is the style bitmask carried with a text message.
type FontStyle uint8

const (
	Bold FontStyle = 1 << iota
	Italic
	Underline
	Strikethrough
)

// Color is an RGB text color.
type Color struct {
	R, G, B uint8
}

// FormattedText is a message body with its font attributes.
type FormattedText struct {
	Text  string
	Style FontStyle
	Color Color
}

// LoginRequest carries everything the service needs to authenticate.
type LoginRequest struct {
	Identifier    string
	Credential    string
	AuthEndpoint  string
	ClientName    string
	ClientVersion string
}

// Redirect instructs the client to reconnect elsewhere before logging in.
type Redirect struct {
	Host string
	Port int
}

func (r Redirect) String() string { return fmt.Sprintf("%s:%d", r.Host, r.Port) }

// Handler receives events from a connection or channel.
//
// Implementations invoke a source's handler sequentially, in emission order,
// and never from inside Subscribe. Events emitted before the first Subscribe
// on a channel are held and delivered once a handler is installed.
type Handler func(Event)

// Dialer opens transports to the notification service.
type Dialer interface {
	Connect(ctx context.Context, host string, port int) (Conn, error)
}

// Conn is a live transport to the notification service.
type Conn interface {
	Login(ctx context.Context, req LoginRequest) (*Redirect, error)
	SetPresence(ctx context.Context, p Presence) error
	SetPersonalMessage(ctx context.Context, text string) error
	SetDisplayPicture(ctx context.Context, data []byte) (hash string, err error)
	OpenChannel(ctx context.Context) (Channel, error)
	Disconnect()
	Subscribe(h Handler) (unsubscribe func())
}

// Channel is a per-conversation switchboard session.
type Channel interface {
	SessionID() string
	Invite(ctx context.Context, id string) error
	SendTextMessage(ctx context.Context, text FormattedText) error
	SendNudge(ctx context.Context) error
	SendTypingNotification(ctx context.Context, id string) error
	RequestDisplayPicture(ctx context.Context, id, objectRef string) error
	Disconnect()
	Subscribe(h Handler) (unsubscribe func())
}
