// Package conversation models one open conversation: the channels behind
// it, who is in it, what was said, and who is typing.
//
// A Session is not safe for concurrent use. It belongs to the update loop;
// work it starts elsewhere reports back through Config.Post.
package conversation

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/msgr/internal/bus"
	"github.com/matheus3301/msgr/internal/clock"
	"github.com/matheus3301/msgr/internal/contacts"
	"github.com/matheus3301/msgr/internal/outbox"
	"github.com/matheus3301/msgr/internal/sdk"
	"github.com/matheus3301/msgr/internal/store"
	"go.uber.org/zap"
)

// NudgeTemplate renders an incoming nudge; the argument is the sender's name.
const NudgeTemplate = "%s just sent you a nudge!"

// DefaultTypingTimeout applies when Config.TypingTimeout is zero.
const DefaultTypingTimeout = 5 * time.Second

// History persists log entries. Failures are the implementation's concern.
type History interface {
	InsertMessage(m store.Message)
}

// Sender runs channel operations in per-channel order.
type Sender interface {
	Enqueue(ch sdk.Channel, jobs ...outbox.Job)
}

// ChannelOpener asks the service for a fresh channel.
type ChannelOpener interface {
	OpenChannel(ctx context.Context) (sdk.Channel, error)
}

// Config wires a session to its collaborators.
type Config struct {
	ID       string            // conversation key
	Self     contacts.Contact  // the signed-in user
	Peer     *contacts.Contact // contact the user opened the conversation with, if any
	Contacts *contacts.Repository
	History  History
	Outbox   Sender
	Channels ChannelOpener // nil while signed out
	Bus      bus.Publisher
	Clock    clock.Clock
	Post     func(msg any)

	TypingTimeout time.Duration
	Logger        *zap.Logger
}

// Session is one conversation.
type Session struct {
	cfg    Config
	logger *zap.Logger

	channels     map[string]sdk.Channel
	order        []string
	participants map[string]contacts.Contact
	memberOf     map[string]string // participant -> channel
	lastKnown    *contacts.Contact

	log      []Entry
	pending  []Entry
	format   Format
	focused  bool
	inviting bool
	closed   bool
	title    string

	selfTyping   bool
	selfGen      uint64
	selfTimer    clock.Timer
	remoteTyping string
	remoteGen    uint64
	remoteTimer  clock.Timer
}

// New creates a session with no channels.
func New(cfg Config) *Session {
	if cfg.Bus == nil {
		cfg.Bus = bus.Nop{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Post == nil {
		cfg.Post = func(any) {}
	}
	if cfg.TypingTimeout <= 0 {
		cfg.TypingTimeout = DefaultTypingTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &Session{
		cfg:          cfg,
		logger:       cfg.Logger.Named("conversation").With(zap.String("conversation", cfg.ID)),
		channels:     make(map[string]sdk.Channel),
		participants: make(map[string]contacts.Contact),
		memberOf:     make(map[string]string),
	}
	if cfg.Peer != nil {
		peer := cfg.Peer.Clone()
		s.lastKnown = &peer
	}
	s.title = s.Title()
	return s
}

// ID is the conversation key.
func (s *Session) ID() string { return s.cfg.ID }

// AddChannel makes ch one of the session's channels.
func (s *Session) AddChannel(ch sdk.Channel) {
	id := ch.SessionID()
	if _, ok := s.channels[id]; ok {
		return
	}
	s.channels[id] = ch
	s.order = append(s.order, id)
	s.logger.Debug("channel added", zap.String("channel", id))
}

// HandleEvent applies an event that arrived on one of the session's channels.
func (s *Session) HandleEvent(channelID string, evt sdk.Event) {
	if s.closed {
		return
	}
	if _, ok := s.channels[channelID]; !ok {
		s.logger.Debug("event for foreign channel ignored", zap.String("channel", channelID))
		return
	}
	switch evt := evt.(type) {
	case sdk.ParticipantJoined:
		s.participantJoined(channelID, evt.ID)
	case sdk.ParticipantLeft:
		s.participantLeft(channelID, evt.ID)
	case sdk.TextMessage:
		s.receive(KindText, evt.From, evt.Text)
	case sdk.Nudge:
		s.receive(KindNudge, evt.From, sdk.FormattedText{})
	case sdk.TypingNotification:
		s.remoteTypingStarted(evt.From)
	case sdk.Disconnected:
		s.channelClosed(channelID)
	}
}

func (s *Session) participantJoined(channelID, id string) {
	if id == s.cfg.Self.ID {
		return
	}
	c, ok := s.lookup(id)
	if !ok {
		c = contacts.Placeholder(id)
	}
	wasEmpty := len(s.participants) == 0
	s.participants[id] = c
	s.memberOf[id] = channelID
	s.inviting = false
	s.publishTitle()

	if wasEmpty && len(s.pending) > 0 {
		s.flush(s.channels[channelID])
	}
}

func (s *Session) participantLeft(channelID, id string) {
	c, ok := s.participants[id]
	if !ok || s.memberOf[id] != channelID {
		return
	}
	delete(s.participants, id)
	delete(s.memberOf, id)
	if len(s.participants) == 0 {
		s.lastKnown = &c
	}
	if s.remoteTyping == id {
		s.clearRemoteTyping()
	}
	s.publishTitle()
}

func (s *Session) channelClosed(channelID string) {
	for _, id := range s.participantIDs() {
		s.participantLeft(channelID, id)
	}
	delete(s.channels, channelID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == channelID })
	s.logger.Debug("channel closed", zap.String("channel", channelID))
}

// flush moves the pending buffer into the log and sends it over ch as one
// batch, oldest first.
func (s *Session) flush(ch sdk.Channel) {
	batch := s.pending
	s.pending = nil
	jobs := make([]outbox.Job, 0, len(batch))
	for _, e := range batch {
		s.record(e)
		jobs = append(jobs, s.sendJob(e))
	}
	s.logger.Debug("pending messages flushed", zap.Int("count", len(batch)))
	s.cfg.Outbox.Enqueue(ch, jobs...)
}

// Submit sends text, or buffers it until someone is there to receive it.
// It reports whether text was non-empty after trimming.
func (s *Session) Submit(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || s.closed {
		return false
	}
	s.dispatch(s.newEntry(KindText, text))
	return true
}

// SendNudge sends a nudge the same way Submit sends text.
func (s *Session) SendNudge() {
	if s.closed {
		return
	}
	s.dispatch(s.newEntry(KindNudge, ""))
}

func (s *Session) newEntry(kind Kind, text string) Entry {
	return Entry{
		ID:         uuid.NewString(),
		Kind:       kind,
		Author:     s.cfg.Self.ID,
		AuthorName: s.cfg.Self.Name(),
		Receiver:   s.receiver(),
		Text:       text,
		Format:     s.format,
		Timestamp:  s.cfg.Clock.Now(),
	}
}

func (s *Session) dispatch(e Entry) {
	targets := s.targets()
	if len(targets) == 0 {
		s.pending = append(s.pending, e)
		s.reinvite()
		return
	}
	s.record(e)
	for _, ch := range targets {
		s.cfg.Outbox.Enqueue(ch, s.sendJob(e))
	}
}

// receiver is the sole participant, nobody when there are several, and the
// last known participant when the conversation is empty.
func (s *Session) receiver() string {
	switch len(s.participants) {
	case 0:
		if s.lastKnown != nil {
			return s.lastKnown.ID
		}
		return ""
	case 1:
		for id := range s.participants {
			return id
		}
	}
	return ""
}

// targets lists the channels that have at least one participant, in the
// order they were added.
func (s *Session) targets() []sdk.Channel {
	used := make(map[string]bool, len(s.memberOf))
	for _, ch := range s.memberOf {
		used[ch] = true
	}
	var out []sdk.Channel
	for _, id := range s.order {
		if used[id] {
			out = append(out, s.channels[id])
		}
	}
	return out
}

func (s *Session) sendJob(e Entry) outbox.Job {
	job := outbox.Job{Label: e.Kind.String(), MsgID: e.ID}
	if e.Kind == KindNudge {
		job.Run = func(ctx context.Context, ch sdk.Channel) error { return ch.SendNudge(ctx) }
	} else {
		text := e.FormattedText()
		job.Run = func(ctx context.Context, ch sdk.Channel) error { return ch.SendTextMessage(ctx, text) }
	}
	return job
}

// reinvite asks the last known participant back, on the newest channel if
// one is still open, otherwise on a freshly opened one.
func (s *Session) reinvite() {
	if s.inviting || s.lastKnown == nil {
		return
	}
	invitee := s.lastKnown.ID
	if n := len(s.order); n > 0 {
		s.inviting = true
		s.invite(s.channels[s.order[n-1]], invitee)
		return
	}
	if s.cfg.Channels == nil {
		s.logger.Warn("cannot open a channel while signed out")
		return
	}
	s.inviting = true
	opener, post, conv := s.cfg.Channels, s.cfg.Post, s.cfg.ID
	go func() {
		ch, err := opener.OpenChannel(context.Background())
		post(ChannelOpened{Conversation: conv, Invitee: invitee, Channel: ch, Err: err})
	}()
}

func (s *Session) invite(ch sdk.Channel, invitee string) {
	post, conv, channelID := s.cfg.Post, s.cfg.ID, ch.SessionID()
	s.cfg.Outbox.Enqueue(ch, outbox.Job{
		Label: "invite",
		Run:   func(ctx context.Context, ch sdk.Channel) error { return ch.Invite(ctx, invitee) },
		Done: func(err error) {
			if err != nil {
				post(InviteFailed{Conversation: conv, Channel: channelID, Invitee: invitee, Err: err})
			}
		},
	})
}

// ChannelOpened completes a reinvite that needed a new channel.
func (s *Session) ChannelOpened(msg ChannelOpened) {
	if msg.Err != nil {
		s.inviting = false
		s.logger.Warn("could not open channel", zap.String("invitee", msg.Invitee), zap.Error(msg.Err))
		return
	}
	s.AddChannel(msg.Channel)
	s.invite(msg.Channel, msg.Invitee)
}

// InviteFailed lets the next submission try again. An empty channel the
// invite failed on is dropped so the retry opens a fresh one; the result
// reports whether that happened.
func (s *Session) InviteFailed(msg InviteFailed) bool {
	s.inviting = false
	s.logger.Warn("invite failed", zap.String("invitee", msg.Invitee), zap.String("channel", msg.Channel), zap.Error(msg.Err))
	ch, ok := s.channels[msg.Channel]
	if !ok || slices.Contains(s.targets(), ch) {
		return false
	}
	delete(s.channels, msg.Channel)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == msg.Channel })
	go s.disconnect(msg.Channel, ch)
	return true
}

// SetSelf replaces the signed-in user's identity, for sessions opened before
// sign-in completed.
func (s *Session) SetSelf(self contacts.Contact) {
	s.cfg.Self = self
	if _, ok := s.participants[self.ID]; ok {
		delete(s.participants, self.ID)
		delete(s.memberOf, self.ID)
		s.publishTitle()
	}
}

// Self returns the signed-in user's identity.
func (s *Session) Self() contacts.Contact { return s.cfg.Self.Clone() }

// Keystroke sends a typing notification unless one was sent within the
// typing timeout.
func (s *Session) Keystroke() {
	if s.closed || s.selfTyping {
		return
	}
	targets := s.targets()
	if len(targets) == 0 {
		return
	}
	s.selfTyping = true
	self := s.cfg.Self.ID
	for _, ch := range targets {
		s.cfg.Outbox.Enqueue(ch, outbox.Job{
			Label: "typing",
			Run:   func(ctx context.Context, ch sdk.Channel) error { return ch.SendTypingNotification(ctx, self) },
		})
	}
	s.selfGen++
	s.selfTimer = s.arm(TypingExpired{Conversation: s.cfg.ID, Gen: s.selfGen})
}

// HandleTimer applies a typing timer expiry.
func (s *Session) HandleTimer(msg TypingExpired) {
	if msg.Remote {
		if msg.Gen == s.remoteGen && s.remoteTyping != "" {
			s.clearRemoteTyping()
		}
		return
	}
	if msg.Gen == s.selfGen {
		s.selfTyping = false
		s.selfTimer = nil
	}
}

func (s *Session) arm(msg TypingExpired) clock.Timer {
	post := s.cfg.Post
	return s.cfg.Clock.AfterFunc(s.cfg.TypingTimeout, func() { post(msg) })
}

func (s *Session) remoteTypingStarted(id string) {
	if id == s.cfg.Self.ID || s.remoteTyping != "" {
		return
	}
	s.remoteTyping = id
	s.remoteGen++
	s.remoteTimer = s.arm(TypingExpired{Conversation: s.cfg.ID, Remote: true, Gen: s.remoteGen})
	s.publish(bus.ConversationTyping, Typing{Conversation: s.cfg.ID, ID: id, Name: s.resolve(id), Active: true})
}

func (s *Session) clearRemoteTyping() {
	if s.remoteTimer != nil {
		s.remoteTimer.Stop()
		s.remoteTimer = nil
	}
	s.remoteGen++
	id := s.remoteTyping
	s.remoteTyping = ""
	s.publish(bus.ConversationTyping, Typing{Conversation: s.cfg.ID, ID: id, Name: s.resolve(id)})
}

func (s *Session) receive(kind Kind, from string, text sdk.FormattedText) {
	if from == s.remoteTyping {
		s.clearRemoteTyping()
	}
	name := s.resolve(from)
	e := Entry{
		ID:         uuid.NewString(),
		Kind:       kind,
		Author:     from,
		AuthorName: name,
		Receiver:   s.cfg.Self.ID,
		Text:       text.Text,
		Format:     FormatOf(text.Style, text.Color),
		Incoming:   true,
		Timestamp:  s.cfg.Clock.Now(),
	}
	if kind == KindNudge {
		e.Text = fmt.Sprintf(NudgeTemplate, name)
	}
	s.record(e)
	if !s.focused {
		s.publish(bus.ConversationNotification, Notification{Conversation: s.cfg.ID, Title: name, Body: e.Text})
	}
}

// record persists e and appends it to the log.
func (s *Session) record(e Entry) {
	if s.cfg.History != nil {
		s.cfg.History.InsertMessage(e.toStore(s.cfg.ID))
	}
	s.log = append(s.log, e)
	s.publish(bus.ConversationMessageAppended, Appended{Conversation: s.cfg.ID, Entry: e})
}

// Focus marks the conversation as watched, fetches missing display pictures
// and announces which contact is in focus.
func (s *Session) Focus() {
	if s.closed {
		return
	}
	s.focused = true
	for _, id := range s.participantIDs() {
		c := s.participants[id]
		if fresh, ok := s.lookup(id); ok {
			c = fresh
			s.participants[id] = fresh
		}
		if c.DisplayPictureRef == "" || c.HasCachedPicture() {
			continue
		}
		ref := c.DisplayPictureRef
		s.cfg.Outbox.Enqueue(s.channels[s.memberOf[id]], outbox.Job{
			Label: "display picture",
			Run:   func(ctx context.Context, ch sdk.Channel) error { return ch.RequestDisplayPicture(ctx, id, ref) },
		})
	}

	switch {
	case len(s.participants) == 1:
		for _, c := range s.participants {
			s.publish(bus.ConversationContactFocused, Focused{Conversation: s.cfg.ID, Contact: c})
		}
	case len(s.participants) == 0 && s.lastKnown != nil:
		s.publish(bus.ConversationContactFocused, Focused{Conversation: s.cfg.ID, Contact: *s.lastKnown})
	}
}

// Blur makes later incoming messages raise notifications.
func (s *Session) Blur() {
	s.focused = false
}

// ToggleFormat flips the given style flags for subsequent messages.
func (s *Session) ToggleFormat(style sdk.FontStyle) {
	s.format = FormatOf(s.format.Style()^style, s.format.Color)
}

// SetColor sets the text color for subsequent messages.
func (s *Session) SetColor(c sdk.Color) {
	s.format.Color = c
}

// LoadHistory puts previously persisted entries in front of the log.
func (s *Session) LoadHistory(entries []Entry) {
	seen := make(map[string]bool, len(s.log))
	for _, e := range s.log {
		seen[e.ID] = true
	}
	history := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !seen[e.ID] {
			history = append(history, e)
		}
	}
	s.log = append(history, s.log...)
}

// Close disconnects every channel, each independently of the others.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.selfTimer != nil {
		s.selfTimer.Stop()
	}
	if s.remoteTimer != nil {
		s.remoteTimer.Stop()
	}
	for _, id := range s.order {
		go s.disconnect(id, s.channels[id])
	}
	s.publish(bus.ConversationClosed, Closed{Conversation: s.cfg.ID})
}

func (s *Session) disconnect(id string, ch sdk.Channel) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Warn("channel disconnect panicked", zap.String("channel", id), zap.Any("panic", p))
		}
	}()
	ch.Disconnect()
}

// Title names the conversation after its participants, or the last one.
func (s *Session) Title() string {
	if len(s.participants) > 0 {
		names := make([]string, 0, len(s.participants))
		for _, id := range s.participantIDs() {
			names = append(names, s.participants[id].Name())
		}
		return strings.Join(names, ", ")
	}
	if s.lastKnown != nil {
		return s.lastKnown.Name()
	}
	return s.cfg.ID
}

func (s *Session) publishTitle() {
	if t := s.Title(); t != s.title {
		s.title = t
		s.publish(bus.ConversationTitleChanged, TitleChanged{Conversation: s.cfg.ID, Title: t})
	}
}

func (s *Session) resolve(id string) string {
	return ResolveName(id, s.participants, s.lastKnown, s.cfg.Contacts)
}

func (s *Session) lookup(id string) (contacts.Contact, bool) {
	if s.cfg.Contacts == nil {
		return contacts.Contact{}, false
	}
	return s.cfg.Contacts.Get(id)
}

func (s *Session) publish(kind string, payload any) {
	s.cfg.Bus.Publish(bus.Event{Kind: kind, Timestamp: s.cfg.Clock.Now(), Payload: payload})
}

func (s *Session) participantIDs() []string {
	ids := make([]string, 0, len(s.participants))
	for id := range s.participants {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Log returns a copy of the message log.
func (s *Session) Log() []Entry { return slices.Clone(s.log) }

// Pending returns a copy of the messages waiting for a participant.
func (s *Session) Pending() []Entry { return slices.Clone(s.pending) }

// Participants returns the current participants ordered by identifier.
func (s *Session) Participants() []contacts.Contact {
	out := make([]contacts.Contact, 0, len(s.participants))
	for _, id := range s.participantIDs() {
		out = append(out, s.participants[id].Clone())
	}
	return out
}

// LastKnown returns the last known participant.
func (s *Session) LastKnown() (contacts.Contact, bool) {
	if s.lastKnown == nil {
		return contacts.Contact{}, false
	}
	return s.lastKnown.Clone(), true
}

// Channels returns the session's channels in the order they were added.
func (s *Session) Channels() []sdk.Channel {
	out := make([]sdk.Channel, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.channels[id])
	}
	return out
}

func (s *Session) Format() Format       { return s.format }
func (s *Session) Focused() bool        { return s.focused }
func (s *Session) SelfTyping() bool     { return s.selfTyping }
func (s *Session) RemoteTyping() string { return s.remoteTyping }
func (s *Session) Closed() bool         { return s.closed }
