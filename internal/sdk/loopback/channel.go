package loopback

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/matheus3301/msgr/internal/sdk"
)

// Channel is a fake conversation channel.
type Channel struct {
	emitter

	svc *Service
	id  string

	mu              sync.Mutex
	participants    []string
	invites         []string
	texts           []sdk.FormattedText
	nudges          int
	typing          []string
	pictureRequests []string
	disconnected    bool
}

var _ sdk.Channel = (*Channel)(nil)

func newChannel(s *Service) *Channel {
	ch := &Channel{svc: s, id: uuid.NewString()}
	ch.emitter.init()
	return ch
}

func (ch *Channel) SessionID() string { return ch.id }

func (ch *Channel) Invite(_ context.Context, id string) error {
	if err := ch.svc.check(OpInvite); err != nil {
		return err
	}
	ch.mu.Lock()
	ch.invites = append(ch.invites, id)
	ch.mu.Unlock()
	if ch.svc.echoing() {
		ch.Join(id)
	}
	return nil
}

func (ch *Channel) SendTextMessage(_ context.Context, text sdk.FormattedText) error {
	if err := ch.svc.check(OpSendText); err != nil {
		return err
	}
	ch.mu.Lock()
	ch.texts = append(ch.texts, text)
	peers := append([]string(nil), ch.participants...)
	ch.mu.Unlock()

	if ch.svc.echoing() {
		for _, p := range peers {
			ch.Emit(sdk.TypingNotification{From: p})
			ch.Emit(sdk.TextMessage{From: p, Text: sdk.FormattedText{Text: "echo: " + text.Text}})
		}
	}
	return nil
}

func (ch *Channel) SendNudge(_ context.Context) error {
	if err := ch.svc.check(OpSendNudge); err != nil {
		return err
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.nudges++
	return nil
}

func (ch *Channel) SendTypingNotification(_ context.Context, id string) error {
	if err := ch.svc.check(OpTyping); err != nil {
		return err
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.typing = append(ch.typing, id)
	return nil
}

func (ch *Channel) RequestDisplayPicture(_ context.Context, id, _ string) error {
	if err := ch.svc.check(OpRequestPicture); err != nil {
		return err
	}
	ch.mu.Lock()
	ch.pictureRequests = append(ch.pictureRequests, id)
	ch.mu.Unlock()
	if data := ch.svc.picture(id); data != nil {
		ch.Emit(sdk.DisplayPictureData{ID: id, Data: data})
	}
	return nil
}

func (ch *Channel) Disconnect() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.disconnected = true
}

// Join adds id to the channel and emits ParticipantJoined.
func (ch *Channel) Join(id string) {
	ch.mu.Lock()
	if !slices.Contains(ch.participants, id) {
		ch.participants = append(ch.participants, id)
	}
	ch.mu.Unlock()
	ch.Emit(sdk.ParticipantJoined{ID: id})
}

// Leave removes id from the channel and emits ParticipantLeft.
func (ch *Channel) Leave(id string) {
	ch.mu.Lock()
	ch.participants = slices.DeleteFunc(ch.participants, func(p string) bool { return p == id })
	ch.mu.Unlock()
	ch.Emit(sdk.ParticipantLeft{ID: id})
}

func (ch *Channel) Invites() []string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return append([]string(nil), ch.invites...)
}

func (ch *Channel) Texts() []sdk.FormattedText {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return append([]sdk.FormattedText(nil), ch.texts...)
}

func (ch *Channel) Nudges() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.nudges
}

func (ch *Channel) TypingNotifications() []string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return append([]string(nil), ch.typing...)
}

func (ch *Channel) PictureRequests() []string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return append([]string(nil), ch.pictureRequests...)
}

func (ch *Channel) Disconnected() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.disconnected
}
