package signin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/msgr/internal/bus"
	"github.com/matheus3301/msgr/internal/config"
	"github.com/matheus3301/msgr/internal/sdk"
	"github.com/matheus3301/msgr/internal/sdk/loopback"
	"github.com/matheus3301/msgr/internal/status"
	"github.com/matheus3301/msgr/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers map[string]*store.User

func (f fakeUsers) SelectUser(id string) (*store.User, error) {
	return f[id], nil
}

type brokenUsers struct{}

func (brokenUsers) SelectUser(string) (*store.User, error) {
	return nil, errors.New("database is locked")
}

func settings() config.Settings {
	s := (*config.Config)(nil).Settings()
	s.Host, s.Port = "primary", 1863
	return s
}

var creds = Credentials{Identifier: "alice@example.com", Password: "secret"}

func TestSignInHappyPath(t *testing.T) {
	svc := loopback.NewService()
	b := bus.New()
	events, unsub := b.Subscribe(bus.SessionStatusChanged, 32)
	defer unsub()
	machine := status.NewMachine(b)

	h, err := New(svc, nil, settings(), machine, nil).SignIn(context.Background(), creds)
	require.NoError(t, err)

	conn := h.Conn.(*loopback.Conn)
	assert.Equal(t, "alice@example.com", h.ID)
	assert.Equal(t, sdk.Online, h.Presence)
	assert.Equal(t, sdk.Online, conn.Presence())
	pm, set := conn.PersonalMessage()
	assert.True(t, set)
	assert.Equal(t, "", pm)
	assert.Nil(t, conn.DisplayPicture())
	assert.Equal(t, status.Ready, machine.Current())

	var states []status.State
	for len(events) > 0 {
		states = append(states, (<-events).Payload.(status.StatusChange).To)
	}
	assert.Equal(t, []status.State{status.Connecting, status.Authenticating, status.Priming, status.Ready}, states)
}

func TestSignInFollowsRedirect(t *testing.T) {
	svc := loopback.NewService()
	svc.Redirect("primary:1863", sdk.Redirect{Host: "ns7", Port: 1864})

	h, err := New(svc, nil, settings(), status.NewMachine(nil), nil).SignIn(context.Background(), creds)
	require.NoError(t, err)

	assert.Equal(t, []string{"primary:1863", "ns7:1864"}, svc.Connects())
	assert.Equal(t, 2, svc.Logins())
	conns := svc.Conns()
	require.Len(t, conns, 2)
	assert.True(t, conns[0].Disconnected())
	assert.False(t, conns[1].Disconnected())
	assert.Same(t, conns[1], h.Conn)
}

func TestSignInSecondRedirectFails(t *testing.T) {
	svc := loopback.NewService()
	svc.Redirect("primary:1863", sdk.Redirect{Host: "ns7", Port: 1864})
	svc.Redirect("ns7:1864", sdk.Redirect{Host: "ns8", Port: 1864})
	machine := status.NewMachine(nil)

	h, err := New(svc, nil, settings(), machine, nil).SignIn(context.Background(), creds)
	require.Nil(t, h)

	var sdkErr *SdkError
	require.ErrorAs(t, err, &sdkErr)
	assert.ErrorIs(t, err, ErrUnexpectedRedirect)
	assert.Equal(t, 0, svc.OpenConns())
	assert.Equal(t, status.Error, machine.Current())
}

func TestSignInLoginFailure(t *testing.T) {
	svc := loopback.NewService()
	denied := errors.New("911 authentication failed")
	svc.Fail(loopback.OpLogin, denied)
	machine := status.NewMachine(nil)

	_, err := New(svc, nil, settings(), machine, nil).SignIn(context.Background(), creds)

	var sdkErr *SdkError
	require.ErrorAs(t, err, &sdkErr)
	assert.Equal(t, "login", sdkErr.Op)
	assert.ErrorIs(t, err, denied)
	assert.NotErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 0, svc.OpenConns())
	assert.Equal(t, status.Error, machine.Current())
}

func TestSignInConnectFailure(t *testing.T) {
	svc := loopback.NewService()
	svc.Fail(loopback.OpConnect, errors.New("connection refused"))

	_, err := New(svc, nil, settings(), nil, nil).SignIn(context.Background(), creds)

	var sdkErr *SdkError
	require.ErrorAs(t, err, &sdkErr)
	assert.Equal(t, "connect", sdkErr.Op)
	assert.Equal(t, 0, svc.Logins())
}

func TestSignInPrimingFailuresDisconnect(t *testing.T) {
	tests := []struct {
		op     loopback.Op
		wantOp string
	}{
		{loopback.OpSetDisplayPicture, "set display picture"},
		{loopback.OpSetPresence, "set presence"},
		{loopback.OpSetPersonalMessage, "set personal message"},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			svc := loopback.NewService()
			svc.Fail(tt.op, errors.New("server error"))
			users := fakeUsers{creds.Identifier: {ID: creds.Identifier, DisplayPicture: []byte("png")}}

			h, err := New(svc, users, settings(), nil, nil).SignIn(context.Background(), creds)
			require.Nil(t, h)

			var sdkErr *SdkError
			require.ErrorAs(t, err, &sdkErr)
			assert.Equal(t, tt.wantOp, sdkErr.Op)
			assert.Equal(t, 0, svc.OpenConns())
		})
	}
}

func TestSignInPrimesFromCachedProfile(t *testing.T) {
	svc := loopback.NewService()
	pm := "out for lunch"
	users := fakeUsers{creds.Identifier: {ID: creds.Identifier, PersonalMessage: &pm, DisplayPicture: []byte("png")}}
	withPresence := creds
	withPresence.Presence = sdk.Busy

	h, err := New(svc, users, settings(), nil, nil).SignIn(context.Background(), withPresence)
	require.NoError(t, err)

	conn := h.Conn.(*loopback.Conn)
	assert.Equal(t, []byte("png"), conn.DisplayPicture())
	assert.Equal(t, sdk.Busy, conn.Presence())
	got, _ := conn.PersonalMessage()
	assert.Equal(t, "out for lunch", got)
	assert.Equal(t, "out for lunch", h.PersonalMessage)
	assert.Equal(t, []byte("png"), h.DisplayPicture)
}

func TestSignInToleratesProfileLookupFailure(t *testing.T) {
	svc := loopback.NewService()

	h, err := New(svc, brokenUsers{}, settings(), nil, nil).SignIn(context.Background(), creds)
	require.NoError(t, err)
	assert.Equal(t, "", h.PersonalMessage)
}

func TestSignInCancelMidConnect(t *testing.T) {
	svc := loopback.NewService()
	release := svc.Hold(loopback.OpConnect)
	machine := status.NewMachine(nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := New(svc, nil, settings(), machine, nil).SignIn(ctx, creds)
		done <- err
	}()
	require.Eventually(t, func() bool { return len(svc.Connects()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
		var sdkErr *SdkError
		assert.False(t, errors.As(err, &sdkErr))
	case <-time.After(time.Second):
		t.Fatal("SignIn did not return after cancel")
	}
	assert.Equal(t, status.SignedOut, machine.Current())

	// The connect completes later and must be torn down.
	release()
	require.Eventually(t, func() bool { return len(svc.Conns()) == 1 && svc.OpenConns() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, svc.Logins())
}

func TestSignInCancelMidLogin(t *testing.T) {
	svc := loopback.NewService()
	release := svc.Hold(loopback.OpLogin)
	defer release()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := New(svc, nil, settings(), nil, nil).SignIn(ctx, creds)
		done <- err
	}()
	require.Eventually(t, func() bool { return svc.Logins() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("SignIn did not return after cancel")
	}
	assert.Equal(t, 0, svc.OpenConns())
}

func TestSignInAlreadyCancelled(t *testing.T) {
	svc := loopback.NewService()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(svc, nil, settings(), nil, nil).SignIn(ctx, creds)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, svc.Connects())
}

func TestSignInCancelDuringRedirectReconnect(t *testing.T) {
	svc := loopback.NewService()
	svc.Redirect("primary:1863", sdk.Redirect{Host: "ns7", Port: 1864})
	releaseLogin := svc.Hold(loopback.OpLogin)
	defer releaseLogin()
	machine := status.NewMachine(nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := New(svc, nil, settings(), machine, nil).SignIn(ctx, creds)
		done <- err
	}()

	// Stall the second dial only: hold connect while the first login waits.
	require.Eventually(t, func() bool { return svc.Stalled(loopback.OpLogin) == 1 }, time.Second, 5*time.Millisecond)
	releaseConnect := svc.Hold(loopback.OpConnect)
	defer releaseConnect()
	releaseLogin()
	require.Eventually(t, func() bool { return svc.Stalled(loopback.OpConnect) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"primary:1863", "ns7:1864"}, svc.Connects())
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("SignIn did not return after cancel")
	}
	assert.Equal(t, status.SignedOut, machine.Current())

	releaseConnect()
	require.Eventually(t, func() bool { return len(svc.Conns()) == 2 && svc.OpenConns() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, svc.Logins())
}

func TestSignInCancelDuringPriming(t *testing.T) {
	for _, op := range []loopback.Op{loopback.OpSetDisplayPicture, loopback.OpSetPresence, loopback.OpSetPersonalMessage} {
		t.Run(string(op), func(t *testing.T) {
			svc := loopback.NewService()
			release := svc.Hold(op)
			defer release()
			users := fakeUsers{creds.Identifier: {ID: creds.Identifier, DisplayPicture: []byte("png")}}
			machine := status.NewMachine(nil)
			ctx, cancel := context.WithCancel(context.Background())

			done := make(chan error, 1)
			go func() {
				h, err := New(svc, users, settings(), machine, nil).SignIn(ctx, creds)
				if h != nil {
					t.Error("handle returned for a cancelled sign-in")
				}
				done <- err
			}()
			require.Eventually(t, func() bool { return svc.Stalled(op) == 1 }, time.Second, 5*time.Millisecond)
			cancel()

			select {
			case err := <-done:
				assert.ErrorIs(t, err, ErrCancelled)
			case <-time.After(time.Second):
				t.Fatal("SignIn did not return after cancel")
			}
			assert.Equal(t, 0, svc.OpenConns())
			assert.Equal(t, status.SignedOut, machine.Current())
		})
	}
}
