package conversation

import (
	"fmt"
	"time"

	"github.com/matheus3301/msgr/internal/sdk"
	"github.com/matheus3301/msgr/internal/store"
)

// Kind distinguishes log entries.
type Kind int

const (
	KindText Kind = iota
	KindNudge
)

func (k Kind) String() string {
	if k == KindNudge {
		return store.KindNudge
	}
	return store.KindText
}

// Format holds the per-message formatting flags.
type Format struct {
	Bold          bool
	Italic        bool
	Underline     bool
	Strikethrough bool
	Color         sdk.Color
}

// Style packs the flags into an SDK font style.
func (f Format) Style() sdk.FontStyle {
	var s sdk.FontStyle
	if f.Bold {
		s |= sdk.Bold
	}
	if f.Italic {
		s |= sdk.Italic
	}
	if f.Underline {
		s |= sdk.Underline
	}
	if f.Strikethrough {
		s |= sdk.Strikethrough
	}
	return s
}

// FormatOf unpacks SDK formatting.
func FormatOf(style sdk.FontStyle, c sdk.Color) Format {
	return Format{
		Bold:          style&sdk.Bold != 0,
		Italic:        style&sdk.Italic != 0,
		Underline:     style&sdk.Underline != 0,
		Strikethrough: style&sdk.Strikethrough != 0,
		Color:         c,
	}
}

// Entry is one line of the conversation log.
type Entry struct {
	ID         string
	Kind       Kind
	Author     string
	AuthorName string
	Receiver   string // empty when there is no single recipient
	Text       string
	Format     Format
	Incoming   bool
	Timestamp  time.Time
}

// FormattedText is what goes over the wire for a text entry.
func (e Entry) FormattedText() sdk.FormattedText {
	return sdk.FormattedText{Text: e.Text, Style: e.Format.Style(), Color: e.Format.Color}
}

func (e Entry) toStore(peer string) store.Message {
	return store.Message{
		Peer:       peer,
		MsgID:      e.ID,
		SenderID:   e.Author,
		SenderName: e.AuthorName,
		Receiver:   e.Receiver,
		Body:       e.Text,
		Kind:       e.Kind.String(),
		Style:      int(e.Format.Style()),
		Color:      fmt.Sprintf("#%02x%02x%02x", e.Format.Color.R, e.Format.Color.G, e.Format.Color.B),
		Incoming:   e.Incoming,
		Timestamp:  e.Timestamp.UnixMilli(),
	}
}

// EntryFromStore rebuilds a log entry from its persisted form.
func EntryFromStore(m store.Message) Entry {
	var c sdk.Color
	if _, err := fmt.Sscanf(m.Color, "#%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		c = sdk.Color{}
	}
	kind := KindText
	if m.Kind == store.KindNudge {
		kind = KindNudge
	}
	return Entry{
		ID:         m.MsgID,
		Kind:       kind,
		Author:     m.SenderID,
		AuthorName: m.SenderName,
		Receiver:   m.Receiver,
		Text:       m.Body,
		Format:     FormatOf(sdk.FontStyle(m.Style), c),
		Incoming:   m.Incoming,
		Timestamp:  time.UnixMilli(m.Timestamp),
	}
}
