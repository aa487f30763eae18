// Package signin drives a credential sign-in from the first connect to a
// primed, ready connection.
package signin

import (
	"context"
	"errors"

	"github.com/matheus3301/msgr/internal/config"
	"github.com/matheus3301/msgr/internal/sdk"
	"github.com/matheus3301/msgr/internal/status"
	"github.com/matheus3301/msgr/internal/store"
	"go.uber.org/zap"
)

// UserStore looks up the cached profile of the signing-in account.
type UserStore interface {
	SelectUser(id string) (*store.User, error)
}

// Credentials are what the user typed.
type Credentials struct {
	Identifier string
	Password   string
	Presence   sdk.Presence // empty means the configured initial presence
}

// Handle is a signed-in, primed connection.
type Handle struct {
	ID              string
	Presence        sdk.Presence
	PersonalMessage string
	DisplayPicture  []byte
	Conn            sdk.Conn
}

// Orchestrator signs accounts in.
type Orchestrator struct {
	dialer   sdk.Dialer
	users    UserStore
	settings config.Settings
	machine  *status.Machine
	logger   *zap.Logger
}

// New creates an orchestrator. users and machine may be nil.
func New(dialer sdk.Dialer, users UserStore, settings config.Settings, machine *status.Machine, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		dialer:   dialer,
		users:    users,
		settings: settings,
		machine:  machine,
		logger:   logger.Named("signin"),
	}
}

// SignIn connects, authenticates (following at most one redirect) and primes
// the account. It returns a handle only once priming completed; otherwise it
// returns ErrCancelled or an *SdkError and leaves no transport open.
func (o *Orchestrator) SignIn(ctx context.Context, creds Credentials) (h *Handle, err error) {
	log := o.logger.With(zap.String("account", creds.Identifier))
	defer func() {
		switch {
		case errors.Is(err, ErrCancelled):
			log.Info("sign-in cancelled")
			o.transition(status.SignedOut)
		case err != nil:
			log.Warn("sign-in failed", zap.Error(err))
			o.transition(status.Error)
		}
	}()

	conn, err := o.authenticate(ctx, creds, o.settings.Host, o.settings.Port, log)
	if err != nil {
		return nil, err
	}

	h, err = o.prime(ctx, conn, creds, log)
	if err != nil {
		conn.Disconnect()
		return nil, err
	}
	o.transition(status.Ready)
	log.Info("signed in", zap.String("presence", string(h.Presence)))
	return h, nil
}

// authenticate returns a logged-in connection. On error nothing is left open.
func (o *Orchestrator) authenticate(ctx context.Context, creds Credentials, host string, port int, log *zap.Logger) (sdk.Conn, error) {
	conn, redirect, err := o.attempt(ctx, creds, host, port)
	if err != nil {
		return nil, err
	}
	if redirect == nil {
		return conn, nil
	}

	log.Info("redirected", zap.String("from", o.settings.Host), zap.Stringer("to", redirect))
	conn.Disconnect()
	o.transition(status.Redirecting)

	conn, redirect, err = o.attempt(ctx, creds, redirect.Host, redirect.Port)
	if err != nil {
		return nil, err
	}
	if redirect != nil {
		conn.Disconnect()
		return nil, &SdkError{Op: "login", Err: ErrUnexpectedRedirect}
	}
	return conn, nil
}

// attempt is one connect and login round against host.
func (o *Orchestrator) attempt(ctx context.Context, creds Credentials, host string, port int) (sdk.Conn, *sdk.Redirect, error) {
	o.transition(status.Connecting)
	conn, err := race(ctx, func(ctx context.Context) (sdk.Conn, error) {
		return o.dialer.Connect(ctx, host, port)
	}, func(c sdk.Conn) {
		c.Disconnect()
	})
	if err != nil {
		return nil, nil, wrap("connect", err)
	}

	o.transition(status.Authenticating)
	req := sdk.LoginRequest{
		Identifier:    creds.Identifier,
		Credential:    creds.Password,
		AuthEndpoint:  o.settings.AuthEndpoint,
		ClientName:    o.settings.ClientName,
		ClientVersion: o.settings.ClientVersion,
	}
	redirect, err := race(ctx, func(ctx context.Context) (*sdk.Redirect, error) {
		return conn.Login(ctx, req)
	}, nil)
	if err != nil {
		conn.Disconnect()
		return nil, nil, wrap("login", err)
	}
	return conn, redirect, nil
}

func (o *Orchestrator) prime(ctx context.Context, conn sdk.Conn, creds Credentials, log *zap.Logger) (*Handle, error) {
	o.transition(status.Priming)

	h := &Handle{ID: creds.Identifier, Conn: conn}
	if o.users != nil {
		user, err := o.users.SelectUser(creds.Identifier)
		if err != nil {
			log.Warn("cached profile unavailable", zap.Error(err))
		} else if user != nil {
			h.DisplayPicture = user.DisplayPicture
			if user.PersonalMessage != nil {
				h.PersonalMessage = *user.PersonalMessage
			}
		}
	}

	if len(h.DisplayPicture) > 0 {
		hash, err := race(ctx, func(ctx context.Context) (string, error) {
			return conn.SetDisplayPicture(ctx, h.DisplayPicture)
		}, nil)
		if err != nil {
			return nil, wrap("set display picture", err)
		}
		log.Debug("display picture uploaded", zap.String("hash", hash))
	}

	h.Presence = creds.Presence
	if h.Presence == "" {
		p, err := sdk.ParsePresence(o.settings.InitialPresence)
		if err != nil {
			p = sdk.Online
		}
		h.Presence = p
	}
	if err := call(ctx, func(ctx context.Context) error { return conn.SetPresence(ctx, h.Presence) }); err != nil {
		return nil, wrap("set presence", err)
	}
	if err := call(ctx, func(ctx context.Context) error { return conn.SetPersonalMessage(ctx, h.PersonalMessage) }); err != nil {
		return nil, wrap("set personal message", err)
	}
	return h, nil
}

func (o *Orchestrator) transition(to status.State) {
	if err := o.machine.Transition(to); err != nil {
		o.logger.Debug("status transition rejected", zap.Error(err))
	}
}

func wrap(op string, err error) error {
	if errors.Is(err, ErrCancelled) {
		return ErrCancelled
	}
	return &SdkError{Op: op, Err: err}
}
