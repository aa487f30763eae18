package bridge

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/matheus3301/msgr/internal/sdk"
	"github.com/matheus3301/msgr/internal/sdk/loopback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*loopback.Conn, *loopback.Channel, *loopback.Channel) {
	t.Helper()
	svc := loopback.NewService()
	ctx := context.Background()
	conn, err := svc.Connect(ctx, "h", 1)
	require.NoError(t, err)
	a, err := conn.OpenChannel(ctx)
	require.NoError(t, err)
	b, err := conn.OpenChannel(ctx)
	require.NoError(t, err)
	return conn.(*loopback.Conn), a.(*loopback.Channel), b.(*loopback.Channel)
}

func next(t *testing.T, b *Bridge) Event {
	t.Helper()
	select {
	case evt := <-b.Events():
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for bridged event")
		return Event{}
	}
}

func TestPerOriginOrderPreserved(t *testing.T) {
	conn, chA, chB := setup(t)
	b := New(4, nil)
	defer b.Close()
	b.AttachConnection(conn)
	b.AttachChannel(chA)
	b.AttachChannel(chB)

	const n = 100
	for i := 0; i < n; i++ {
		conn.Emit(sdk.PersonalMessageChanged{ID: "bob@x", Text: fmt.Sprint(i)})
		chA.Emit(sdk.Nudge{From: fmt.Sprint(i)})
		chB.Emit(sdk.ParticipantJoined{ID: fmt.Sprint(i)})
	}

	seen := map[string][]string{}
	for i := 0; i < 3*n; i++ {
		evt := next(t, b)
		switch p := evt.Payload.(type) {
		case sdk.PersonalMessageChanged:
			seen[evt.Origin] = append(seen[evt.Origin], p.Text)
		case sdk.Nudge:
			seen[evt.Origin] = append(seen[evt.Origin], p.From)
		case sdk.ParticipantJoined:
			seen[evt.Origin] = append(seen[evt.Origin], p.ID)
		}
	}

	for _, origin := range []string{OriginGlobal, chA.SessionID(), chB.SessionID()} {
		got := seen[origin]
		require.Len(t, got, n, "origin %q", origin)
		for i, v := range got {
			assert.Equal(t, fmt.Sprint(i), v, "origin %q position %d", origin, i)
		}
	}
}

func TestBackpressureDropsNothing(t *testing.T) {
	_, ch, _ := setup(t)
	b := New(1, nil)
	defer b.Close()
	b.AttachChannel(ch)

	const n = 50
	for i := 0; i < n; i++ {
		ch.Emit(sdk.Nudge{From: fmt.Sprint(i)})
	}
	// Give the producer time to fill the buffer and block.
	time.Sleep(20 * time.Millisecond)

	for i := 0; i < n; i++ {
		evt := next(t, b)
		assert.Equal(t, ch.SessionID(), evt.Origin)
		assert.Equal(t, sdk.Nudge{From: fmt.Sprint(i)}, evt.Payload)
	}
}

func TestDetachStopsForwarding(t *testing.T) {
	_, ch, other := setup(t)
	b := New(8, nil)
	defer b.Close()
	b.AttachChannel(ch)
	b.AttachChannel(other)

	ch.Emit(sdk.Nudge{From: "before"})
	assert.Equal(t, sdk.Nudge{From: "before"}, next(t, b).Payload)

	b.Detach(ch.SessionID())
	ch.Emit(sdk.Nudge{From: "after"})
	other.Emit(sdk.Nudge{From: "marker"})

	evt := next(t, b)
	assert.Equal(t, other.SessionID(), evt.Origin)
	assert.Equal(t, sdk.Nudge{From: "marker"}, evt.Payload)
	select {
	case evt := <-b.Events():
		t.Errorf("unexpected event after detach: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReattachReplacesConnection(t *testing.T) {
	svc := loopback.NewService()
	first, err := svc.Connect(context.Background(), "h", 1)
	require.NoError(t, err)
	second, err := svc.Connect(context.Background(), "h", 2)
	require.NoError(t, err)

	b := New(8, nil)
	defer b.Close()
	b.AttachConnection(first)
	b.AttachConnection(second)

	first.(*loopback.Conn).Emit(sdk.Disconnected{Reason: "old"})
	second.(*loopback.Conn).Emit(sdk.Disconnected{Reason: "new"})

	evt := next(t, b)
	assert.Equal(t, OriginGlobal, evt.Origin)
	assert.Equal(t, sdk.Disconnected{Reason: "new"}, evt.Payload)
}

func TestCloseReleasesBlockedProducer(t *testing.T) {
	_, ch, _ := setup(t)
	b := New(1, nil)
	b.AttachChannel(ch)

	for i := 0; i < 5; i++ {
		ch.Emit(sdk.Nudge{From: fmt.Sprint(i)})
	}
	time.Sleep(20 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		b.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked")
	}

	// Attach after Close must not block either.
	b.AttachChannel(ch)
	b.Close()
}
