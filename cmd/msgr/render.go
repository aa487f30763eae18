package main

import (
	"io"

	"github.com/fatih/color"
	"github.com/matheus3301/msgr/internal/bus"
	"github.com/matheus3301/msgr/internal/contacts"
	"github.com/matheus3301/msgr/internal/conversation"
	"github.com/matheus3301/msgr/internal/messenger"
	"github.com/matheus3301/msgr/internal/outbox"
	"github.com/matheus3301/msgr/internal/roster"
	"github.com/matheus3301/msgr/internal/status"
)

type renderer struct {
	w        io.Writer
	info     *color.Color
	incoming *color.Color
	outgoing *color.Color
	notice   *color.Color
	failure  *color.Color
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{
		w:        w,
		info:     color.New(color.FgCyan),
		incoming: color.New(color.FgGreen, color.Bold),
		outgoing: color.New(color.FgBlue),
		notice:   color.New(color.FgYellow),
		failure:  color.New(color.FgRed),
	}
}

func (r *renderer) run(events <-chan bus.Event) {
	for evt := range events {
		r.render(evt)
	}
}

func (r *renderer) render(evt bus.Event) {
	switch p := evt.Payload.(type) {
	case status.StatusChange:
		r.info.Fprintf(r.w, "-- %s\n", p.To)
	case messenger.SignedIn:
		r.info.Fprintf(r.w, "-- signed in as %s (%s)\n", p.Account, p.Presence)
	case messenger.SignInFailed:
		r.failure.Fprintf(r.w, "-- sign-in failed: %v\n", p.Err)
	case messenger.SignedOut:
		r.notice.Fprintf(r.w, "-- signed out: %s\n", p.Reason)
	case messenger.Opened:
		r.info.Fprintf(r.w, "-- conversation with %s\n", p.Title)
	case conversation.Appended:
		r.entry(p.Conversation, p.Entry)
	case conversation.Notification:
		r.notice.Fprintf(r.w, "[%s] %s: %s\n", p.Conversation, sanitize(p.Title), sanitize(p.Body))
	case conversation.Typing:
		if p.Active {
			r.info.Fprintf(r.w, "[%s] %s is typing...\n", p.Conversation, sanitize(p.Name))
		}
	case conversation.TitleChanged:
		r.info.Fprintf(r.w, "[%s] now talking to %s\n", p.Conversation, p.Title)
	case conversation.Focused:
		r.info.Fprintf(r.w, "[%s] %s is %s\n", p.Conversation, p.Contact.Name(), p.Contact.Presence())
	case conversation.Closed:
		r.info.Fprintf(r.w, "[%s] closed\n", p.Conversation)
	case outbox.SendFailed:
		r.failure.Fprintf(r.w, "-- %s %s not delivered: %v\n", p.Label, p.MsgID, p.Err)
	case roster.Updated:
		for _, c := range p.Contacts {
			r.info.Fprintf(r.w, "-- %s is %s\n", c.Name(), c.Presence())
		}
	case contacts.Contact:
		r.info.Fprintf(r.w, "-- got display picture of %s\n", p.Name())
	default:
		switch evt.Kind {
		case bus.SessionSignInCancelled:
			r.notice.Fprintf(r.w, "-- sign-in cancelled\n")
		case bus.ContactRemoved:
			r.info.Fprintf(r.w, "-- removed %v\n", p)
		}
	}
}

func (r *renderer) entry(conv string, e conversation.Entry) {
	ts := e.Timestamp.Format("15:04")
	c := r.outgoing
	if e.Incoming {
		c = r.incoming
	}
	if e.Kind == conversation.KindNudge {
		c = r.notice
	}
	text := e.Text
	if text == "" && e.Kind == conversation.KindNudge {
		text = "(nudge)"
	}
	c.Fprintf(r.w, "[%s %s] %s: %s\n", conv, ts, sanitize(e.AuthorName), sanitize(text))
}
