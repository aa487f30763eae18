// Package loopback is an in-process messaging service implementing the sdk
// interfaces. It records every call, can script redirects, failures and
// stalls, and optionally echoes conversations back for local demos.
package loopback

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/matheus3301/msgr/internal/sdk"
)

// Op names an SDK operation for scripting failures and stalls.
type Op string

const (
	OpConnect            Op = "connect"
	OpLogin              Op = "login"
	OpSetPresence        Op = "set_presence"
	OpSetPersonalMessage Op = "set_personal_message"
	OpSetDisplayPicture  Op = "set_display_picture"
	OpOpenChannel        Op = "open_channel"
	OpInvite             Op = "invite"
	OpSendText           Op = "send_text"
	OpSendNudge          Op = "send_nudge"
	OpTyping             Op = "typing"
	OpRequestPicture     Op = "request_picture"
)

// Service is the fake server side. It implements sdk.Dialer.
type Service struct {
	mu        sync.Mutex
	redirects map[string]sdk.Redirect
	failures  map[Op]error
	holds     map[Op]chan struct{}
	stalled   map[Op]int
	echo      bool
	contacts  []sdk.ContactEntry
	pictures  map[string][]byte
	connects  []string
	logins    int
	conns     []*Conn
}

var _ sdk.Dialer = (*Service)(nil)

// NewService creates a service with no scripted behavior.
func NewService() *Service {
	return &Service{
		redirects: make(map[string]sdk.Redirect),
		failures:  make(map[Op]error),
		holds:     make(map[Op]chan struct{}),
		stalled:   make(map[Op]int),
		pictures:  make(map[string][]byte),
	}
}

// Redirect makes logins on from ("host:port") answer with a redirect to to.
func (s *Service) Redirect(from string, to sdk.Redirect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirects[from] = to
}

// Fail makes every subsequent op return err. A nil err clears the failure.
func (s *Service) Fail(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Hold stalls op until release is called. Stalled calls ignore their context,
// which lets tests observe work that completes after a caller gave up.
func (s *Service) Hold(op Op) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[op] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.holds[op] == ch {
				delete(s.holds, op)
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Echo makes invited contacts join immediately and answer every message.
func (s *Service) Echo(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.echo = on
}

// SetContacts is delivered as a contact list, with every contact online,
// after each successful login.
func (s *Service) SetContacts(entries []sdk.ContactEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = append([]sdk.ContactEntry(nil), entries...)
}

// ServePicture sets the bytes returned when id's display picture is requested.
func (s *Service) ServePicture(id string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pictures[id] = data
}

// Stalled returns the number of op calls currently waiting on a Hold.
func (s *Service) Stalled(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stalled[op]
}

// Connects returns every address dialed, in order.
func (s *Service) Connects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.connects...)
}

// Logins returns the number of login attempts.
func (s *Service) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// Conns returns every connection created, in order.
func (s *Service) Conns() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Conn(nil), s.conns...)
}

// OpenConns counts connections that were never disconnected.
func (s *Service) OpenConns() int {
	n := 0
	for _, c := range s.Conns() {
		if !c.Disconnected() {
			n++
		}
	}
	return n
}

// Connect implements sdk.Dialer.
func (s *Service) Connect(ctx context.Context, host string, port int) (sdk.Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	s.mu.Lock()
	s.connects = append(s.connects, addr)
	s.mu.Unlock()

	if err := s.check(OpConnect); err != nil {
		return nil, err
	}
	c := newConn(s, addr)
	s.mu.Lock()
	s.conns = append(s.conns, c)
	s.mu.Unlock()
	return c, nil
}

func (s *Service) check(op Op) error {
	s.mu.Lock()
	hold := s.holds[op]
	s.mu.Unlock()
	if hold != nil {
		s.mu.Lock()
		s.stalled[op]++
		s.mu.Unlock()
		<-hold
		s.mu.Lock()
		s.stalled[op]--
		s.mu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[op]; err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Service) echoing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.echo
}

func (s *Service) picture(id string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pictures[id]
}
