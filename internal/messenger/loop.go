// Package messenger runs the update loop: the single goroutine that owns
// every conversation session and applies user intents, SDK events and the
// results of background work in arrival order.
package messenger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/msgr/internal/avatar"
	"github.com/matheus3301/msgr/internal/bridge"
	"github.com/matheus3301/msgr/internal/bus"
	"github.com/matheus3301/msgr/internal/clock"
	"github.com/matheus3301/msgr/internal/contacts"
	"github.com/matheus3301/msgr/internal/conversation"
	"github.com/matheus3301/msgr/internal/outbox"
	"github.com/matheus3301/msgr/internal/roster"
	"github.com/matheus3301/msgr/internal/sdk"
	"github.com/matheus3301/msgr/internal/signin"
	"github.com/matheus3301/msgr/internal/status"
	"github.com/matheus3301/msgr/internal/store"
	"go.uber.org/zap"
)

// ErrSignedOut is reported when a channel is needed while no connection is up.
var ErrSignedOut = errors.New("not signed in")

// Authenticator performs a sign-in.
type Authenticator interface {
	SignIn(ctx context.Context, creds signin.Credentials) (*signin.Handle, error)
}

// Journal persists log entries and profile writes in the background.
type Journal interface {
	conversation.History
	Submit(label string, fn func(*store.DB) error)
}

// HistoryReader loads persisted conversation history.
type HistoryReader interface {
	SelectMessageHistory(peer string, limit int) ([]store.Message, error)
}

// Deps are the loop's collaborators. Journal, History and Machine may be nil.
type Deps struct {
	Auth     Authenticator
	Bridge   *bridge.Bridge
	Roster   *roster.Engine
	Contacts *contacts.Repository
	Outbox   *outbox.Queue
	Avatars  *avatar.Pool
	Journal  Journal
	History  HistoryReader
	Machine  *status.Machine
	Bus      bus.Publisher
	Clock    clock.Clock

	TypingTimeout time.Duration
	HistoryLimit  int
	Logger        *zap.Logger
}

type signInDone struct {
	account string
	handle  *signin.Handle
	err     error
}

type historyLoaded struct {
	conversation string
	messages     []store.Message
	err          error
}

// Loop is the update loop.
type Loop struct {
	deps   Deps
	logger *zap.Logger

	intents chan Intent
	inbox   chan any
	done    chan struct{}
	conn    *currentConn

	// Owned by the Run goroutine.
	ctx          context.Context
	sessions     map[string]*conversation.Session
	byChannel    map[string]*conversation.Session
	handle       *signin.Handle
	cancelSignIn context.CancelFunc
}

// New creates a loop. Call Run to start it.
func New(deps Deps) *Loop {
	if deps.Bus == nil {
		deps.Bus = bus.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Loop{
		deps:      deps,
		logger:    deps.Logger.Named("messenger"),
		intents:   make(chan Intent, 16),
		inbox:     make(chan any, 64),
		done:      make(chan struct{}),
		conn:      &currentConn{},
		sessions:  make(map[string]*conversation.Session),
		byChannel: make(map[string]*conversation.Session),
	}
}

// Send hands an intent to the loop. It returns false once the loop has
// stopped.
func (l *Loop) Send(in Intent) bool {
	select {
	case l.intents <- in:
		return true
	case <-l.done:
		return false
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) post(msg any) {
	select {
	case l.inbox <- msg:
	case <-l.done:
	}
}

// Run processes intents, events and results until ctx is cancelled. It must
// be called once.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	l.ctx = ctx
	l.logger.Info("update loop started")
	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			l.logger.Info("update loop stopped")
			return ctx.Err()
		case in := <-l.intents:
			l.handleIntent(in)
		case evt := <-l.deps.Bridge.Events():
			l.route(evt)
		case msg := <-l.inbox:
			l.handleMessage(msg)
		}
	}
}

func (l *Loop) handleIntent(in Intent) {
	switch in := in.(type) {
	case SignIn:
		l.signIn(in.Credentials)
	case CancelSignIn:
		if l.cancelSignIn != nil {
			l.logger.Info("cancelling sign-in")
			l.cancelSignIn()
		}
	case SignOut:
		l.signOut("signed out by user")
	case OpenConversation:
		l.session(in.Contact)
	case CloseConversation:
		l.closeSession(in.Conversation)
	case RemoveContact:
		l.deps.Roster.Remove(in.Contact)
	default:
		l.sessionIntent(in)
	}
}

func (l *Loop) sessionIntent(in Intent) {
	var id string
	switch in := in.(type) {
	case Submit:
		id = in.Conversation
	case Keystroke:
		id = in.Conversation
	case SendNudge:
		id = in.Conversation
	case ToggleFormat:
		id = in.Conversation
	case SetColor:
		id = in.Conversation
	case Focus:
		id = in.Conversation
	case Blur:
		id = in.Conversation
	}
	s, ok := l.sessions[id]
	if !ok {
		l.logger.Warn("intent for unknown conversation", zap.String("conversation", id))
		return
	}
	switch in := in.(type) {
	case Submit:
		s.Submit(in.Text)
	case Keystroke:
		s.Keystroke()
	case SendNudge:
		s.SendNudge()
	case ToggleFormat:
		s.ToggleFormat(in.Style)
	case SetColor:
		s.SetColor(in.Color)
	case Focus:
		s.Focus()
	case Blur:
		s.Blur()
	}
}

func (l *Loop) handleMessage(msg any) {
	switch msg := msg.(type) {
	case signInDone:
		l.signInDone(msg)
	case historyLoaded:
		l.historyLoaded(msg)
	case avatar.Result:
		if msg.Err == nil {
			l.deps.Roster.SetDisplayPicture(msg.ID, msg.Thumbnail)
		}
	case conversation.TypingExpired:
		if s, ok := l.sessions[msg.Conversation]; ok {
			s.HandleTimer(msg)
		}
	case conversation.ChannelOpened:
		l.channelOpened(msg)
	case conversation.InviteFailed:
		if s, ok := l.sessions[msg.Conversation]; ok && s.InviteFailed(msg) && l.byChannel[msg.Channel] == s {
			delete(l.byChannel, msg.Channel)
			l.deps.Bridge.Detach(msg.Channel)
		}
	default:
		l.logger.Warn("unknown loop message", zap.Any("message", msg))
	}
}

// route dispatches a bridge event by origin.
func (l *Loop) route(evt bridge.Event) {
	if pic, ok := evt.Payload.(sdk.DisplayPictureData); ok {
		l.processPicture(pic)
		return
	}
	if evt.Origin == bridge.OriginGlobal {
		l.routeGlobal(evt.Payload)
		return
	}
	s, ok := l.byChannel[evt.Origin]
	if !ok {
		l.logger.Debug("event for unowned channel", zap.String("channel", evt.Origin))
		return
	}
	s.HandleEvent(evt.Origin, evt.Payload)
	if _, ok := evt.Payload.(sdk.Disconnected); ok {
		delete(l.byChannel, evt.Origin)
		l.deps.Bridge.Detach(evt.Origin)
	}
}

func (l *Loop) routeGlobal(evt sdk.Event) {
	switch evt := evt.(type) {
	case sdk.ChannelInvited:
		s := l.session(evt.Inviter)
		l.attach(s, evt.Channel)
	case sdk.Disconnected:
		l.signOut(evt.Reason)
	case sdk.Redirected:
		l.logger.Debug("redirect outside sign-in ignored", zap.String("host", evt.Host), zap.Int("port", evt.Port))
	default:
		if !l.deps.Roster.Handle(evt) {
			l.logger.Debug("unhandled event", zap.String("type", fmt.Sprintf("%T", evt)))
		}
	}
}

func (l *Loop) attach(s *conversation.Session, ch sdk.Channel) {
	s.AddChannel(ch)
	l.byChannel[ch.SessionID()] = s
	l.deps.Bridge.AttachChannel(ch)
}

// session returns the open conversation with contact, creating it and
// starting a history load when there is none.
func (l *Loop) session(contact string) *conversation.Session {
	if s, ok := l.sessions[contact]; ok {
		return s
	}
	peer, ok := l.deps.Contacts.Get(contact)
	if !ok {
		peer = contacts.Placeholder(contact)
	}
	s := conversation.New(conversation.Config{
		ID:            contact,
		Self:          l.self(),
		Peer:          &peer,
		Contacts:      l.deps.Contacts,
		History:       l.history(),
		Outbox:        l.deps.Outbox,
		Channels:      l.conn,
		Bus:           l.deps.Bus,
		Clock:         l.deps.Clock,
		Post:          l.post,
		TypingTimeout: l.deps.TypingTimeout,
		Logger:        l.deps.Logger,
	})
	l.sessions[contact] = s
	l.publish(bus.ConversationOpened, Opened{Conversation: contact, Title: s.Title()})
	l.logger.Info("conversation opened", zap.String("conversation", contact))

	if l.deps.History != nil {
		reader, limit := l.deps.History, l.deps.HistoryLimit
		go func() {
			msgs, err := reader.SelectMessageHistory(contact, limit)
			l.post(historyLoaded{conversation: contact, messages: msgs, err: err})
		}()
	}
	return s
}

func (l *Loop) history() conversation.History {
	if l.deps.Journal == nil {
		return nil
	}
	return l.deps.Journal
}

func (l *Loop) self() contacts.Contact {
	if l.handle == nil {
		return contacts.Contact{}
	}
	if c, ok := l.deps.Contacts.Get(l.handle.ID); ok {
		return c
	}
	return contacts.Placeholder(l.handle.ID)
}

func (l *Loop) historyLoaded(msg historyLoaded) {
	if msg.err != nil {
		l.logger.Warn("history load failed", zap.String("conversation", msg.conversation), zap.Error(msg.err))
		return
	}
	s, ok := l.sessions[msg.conversation]
	if !ok {
		return
	}
	entries := make([]conversation.Entry, 0, len(msg.messages))
	for _, m := range msg.messages {
		entries = append(entries, conversation.EntryFromStore(m))
	}
	s.LoadHistory(entries)
	l.logger.Debug("history loaded", zap.String("conversation", msg.conversation), zap.Int("entries", len(entries)))
}

func (l *Loop) channelOpened(msg conversation.ChannelOpened) {
	s, ok := l.sessions[msg.Conversation]
	if !ok {
		if msg.Channel != nil {
			go msg.Channel.Disconnect()
		}
		return
	}
	if msg.Err == nil {
		l.byChannel[msg.Channel.SessionID()] = s
		l.deps.Bridge.AttachChannel(msg.Channel)
	}
	s.ChannelOpened(msg)
}

func (l *Loop) closeSession(id string) {
	s, ok := l.sessions[id]
	if !ok {
		return
	}
	for origin, owner := range l.byChannel {
		if owner == s {
			delete(l.byChannel, origin)
			l.deps.Bridge.Detach(origin)
		}
	}
	s.Close()
	delete(l.sessions, id)
	l.logger.Info("conversation closed", zap.String("conversation", id))
}

func (l *Loop) processPicture(pic sdk.DisplayPictureData) {
	if l.deps.Avatars == nil {
		return
	}
	l.deps.Avatars.Process(l.ctx, pic.ID, pic.Data, func(r avatar.Result) { l.post(r) })
}

func (l *Loop) signIn(creds signin.Credentials) {
	if l.cancelSignIn != nil || l.handle != nil {
		l.logger.Warn("sign-in already in progress or complete", zap.String("account", creds.Identifier))
		return
	}
	ctx, cancel := context.WithCancel(l.ctx)
	l.cancelSignIn = cancel
	auth := l.deps.Auth
	go func() {
		h, err := auth.SignIn(ctx, creds)
		l.post(signInDone{account: creds.Identifier, handle: h, err: err})
	}()
}

func (l *Loop) signInDone(msg signInDone) {
	if l.cancelSignIn != nil {
		l.cancelSignIn()
		l.cancelSignIn = nil
	}
	switch {
	case msg.err == nil:
		l.handle = msg.handle
		l.conn.set(msg.handle.Conn)
		l.deps.Bridge.AttachConnection(msg.handle.Conn)
		self := l.self()
		for _, s := range l.sessions {
			s.SetSelf(self)
		}
		l.saveProfile(msg.handle)
		l.publish(bus.SessionSignedIn, SignedIn{
			Account:         msg.handle.ID,
			Presence:        msg.handle.Presence,
			PersonalMessage: msg.handle.PersonalMessage,
		})
	case errors.Is(msg.err, signin.ErrCancelled):
		l.publish(bus.SessionSignInCancelled, msg.account)
	default:
		l.logger.Warn("sign-in failed", zap.String("account", msg.account), zap.Error(msg.err))
		l.publish(bus.SessionSignInFailed, SignInFailed{Account: msg.account, Err: msg.err})
	}
}

func (l *Loop) saveProfile(h *signin.Handle) {
	if l.deps.Journal == nil {
		return
	}
	u := store.User{ID: h.ID, DisplayPicture: h.DisplayPicture}
	if h.PersonalMessage != "" {
		pm := h.PersonalMessage
		u.PersonalMessage = &pm
	}
	l.deps.Journal.Submit("upsert user", func(db *store.DB) error { return db.UpsertUser(&u) })
}

func (l *Loop) signOut(reason string) {
	if l.handle == nil {
		return
	}
	account := l.handle.ID
	conn := l.handle.Conn
	l.handle = nil
	l.conn.set(nil)
	l.deps.Bridge.Detach(bridge.OriginGlobal)
	go conn.Disconnect()
	if err := l.deps.Machine.Transition(status.SignedOut); err != nil {
		l.logger.Debug("status transition skipped", zap.Error(err))
	}
	l.logger.Info("signed out", zap.String("account", account), zap.String("reason", reason))
	l.publish(bus.SessionSignedOut, SignedOut{Account: account, Reason: reason})
}

func (l *Loop) shutdown() {
	if l.cancelSignIn != nil {
		l.cancelSignIn()
	}
	for id := range l.sessions {
		l.closeSession(id)
	}
	if l.handle != nil {
		l.signOut("shutting down")
	}
}

func (l *Loop) publish(kind string, payload any) {
	l.deps.Bus.Publish(bus.Event{Kind: kind, Timestamp: l.deps.Clock.Now(), Payload: payload})
}

// currentConn lets sessions open channels on whichever connection is up
// when they ask.
type currentConn struct {
	mu   sync.Mutex
	conn sdk.Conn
}

func (c *currentConn) set(conn sdk.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *currentConn) OpenChannel(ctx context.Context) (sdk.Channel, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, ErrSignedOut
	}
	return conn.OpenChannel(ctx)
}
