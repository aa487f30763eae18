package loopback

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"sync"

	"github.com/matheus3301/msgr/internal/sdk"
)

// Conn is a fake notification connection.
type Conn struct {
	emitter

	svc  *Service
	addr string

	mu              sync.Mutex
	identifier      string
	presence        sdk.Presence
	personalMessage *string
	picture         []byte
	disconnected    bool
	channels        []*Channel
}

var _ sdk.Conn = (*Conn)(nil)

func newConn(s *Service, addr string) *Conn {
	c := &Conn{svc: s, addr: addr}
	c.emitter.init()
	return c
}

// Addr is the "host:port" this connection was dialed to.
func (c *Conn) Addr() string { return c.addr }

func (c *Conn) Login(_ context.Context, req sdk.LoginRequest) (*sdk.Redirect, error) {
	c.svc.mu.Lock()
	c.svc.logins++
	redirect, redirected := c.svc.redirects[c.addr]
	contacts := append([]sdk.ContactEntry(nil), c.svc.contacts...)
	c.svc.mu.Unlock()

	if err := c.svc.check(OpLogin); err != nil {
		return nil, err
	}
	if redirected {
		return &redirect, nil
	}

	c.mu.Lock()
	c.identifier = req.Identifier
	c.mu.Unlock()

	if len(contacts) > 0 {
		c.Emit(sdk.ContactListReceived{Contacts: contacts})
		for _, entry := range contacts {
			c.Emit(sdk.PresenceChanged{ID: entry.ID, DisplayName: entry.DisplayName, Status: sdk.Online})
		}
	}
	return nil, nil
}

func (c *Conn) SetPresence(_ context.Context, p sdk.Presence) error {
	if err := c.svc.check(OpSetPresence); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presence = p
	return nil
}

func (c *Conn) SetPersonalMessage(_ context.Context, text string) error {
	if err := c.svc.check(OpSetPersonalMessage); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.personalMessage = &text
	return nil
}

func (c *Conn) SetDisplayPicture(_ context.Context, data []byte) (string, error) {
	if err := c.svc.check(OpSetDisplayPicture); err != nil {
		return "", err
	}
	sum := sha1.Sum(data)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.picture = append([]byte(nil), data...)
	return hex.EncodeToString(sum[:]), nil
}

func (c *Conn) OpenChannel(_ context.Context) (sdk.Channel, error) {
	if err := c.svc.check(OpOpenChannel); err != nil {
		return nil, err
	}
	ch := newChannel(c.svc)
	c.mu.Lock()
	c.channels = append(c.channels, ch)
	c.mu.Unlock()
	return ch, nil
}

func (c *Conn) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

// InviteFrom simulates inviter opening a conversation with the user. The
// inviter is already a participant when the channel is handed over.
func (c *Conn) InviteFrom(inviter string) *Channel {
	ch := newChannel(c.svc)
	c.mu.Lock()
	c.channels = append(c.channels, ch)
	c.mu.Unlock()
	ch.Join(inviter)
	c.Emit(sdk.ChannelInvited{Inviter: inviter, Channel: ch})
	return ch
}

func (c *Conn) Identifier() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identifier
}

func (c *Conn) Presence() sdk.Presence {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.presence
}

// PersonalMessage returns the last personal message set and whether one was set.
func (c *Conn) PersonalMessage() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.personalMessage == nil {
		return "", false
	}
	return *c.personalMessage, true
}

func (c *Conn) DisplayPicture() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.picture
}

func (c *Conn) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

func (c *Conn) Channels() []*Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Channel(nil), c.channels...)
}
