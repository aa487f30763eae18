package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/msgr/internal/bus"
	"github.com/matheus3301/msgr/internal/sdk"
	"github.com/matheus3301/msgr/internal/sdk/loopback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openChannel(t *testing.T, svc *loopback.Service) *loopback.Channel {
	t.Helper()
	conn, err := svc.Connect(context.Background(), "h", 1)
	require.NoError(t, err)
	ch, err := conn.OpenChannel(context.Background())
	require.NoError(t, err)
	return ch.(*loopback.Channel)
}

func text(body, msgID string) Job {
	return Job{
		Label: "text",
		MsgID: msgID,
		Run: func(ctx context.Context, ch sdk.Channel) error {
			return ch.SendTextMessage(ctx, sdk.FormattedText{Text: body})
		},
	}
}

func TestJobsRunInOrderPerChannel(t *testing.T) {
	svc := loopback.NewService()
	ch := openChannel(t, svc)
	logger, _ := zap.NewDevelopment()
	q := NewQueue(nil, logger)
	defer q.Stop()

	var jobs []Job
	for i := 0; i < 20; i++ {
		jobs = append(jobs, text(fmt.Sprint(i), ""))
	}
	q.Enqueue(ch, jobs[:10]...)
	q.Enqueue(ch, jobs[10:]...)
	q.Wait()

	texts := ch.Texts()
	require.Len(t, texts, 20)
	for i, txt := range texts {
		assert.Equal(t, fmt.Sprint(i), txt.Text)
	}
}

func TestFailureIsIsolatedAndPublished(t *testing.T) {
	svc := loopback.NewService()
	ch := openChannel(t, svc)
	b := bus.New()
	events, unsub := b.Subscribe("message.", 10)
	defer unsub()
	q := NewQueue(b, nil)
	defer q.Stop()

	boom := errors.New("switchboard closed")
	var doneErrs []error
	var mu sync.Mutex
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		doneErrs = append(doneErrs, err)
	}
	failing := Job{Label: "text", MsgID: "m1", Run: func(context.Context, sdk.Channel) error { return boom }, Done: record}
	ok := text("second", "m2")
	ok.Done = record

	q.Enqueue(ch, failing, ok)
	q.Wait()

	require.Len(t, events, 2)
	failed := <-events
	assert.Equal(t, bus.MessageSendFailed, failed.Kind)
	payload := failed.Payload.(SendFailed)
	assert.Equal(t, "m1", payload.MsgID)
	assert.Equal(t, ch.SessionID(), payload.Channel)
	assert.ErrorIs(t, payload.Err, boom)

	sent := <-events
	assert.Equal(t, bus.MessageSent, sent.Kind)
	assert.Equal(t, Sent{Channel: ch.SessionID(), MsgID: "m2"}, sent.Payload)

	assert.Len(t, ch.Texts(), 1)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, doneErrs, 2)
	assert.ErrorIs(t, doneErrs[0], boom)
	assert.NoError(t, doneErrs[1])
}

func TestFailureWithoutMsgIDIsQuiet(t *testing.T) {
	svc := loopback.NewService()
	ch := openChannel(t, svc)
	svc.Fail(loopback.OpTyping, errors.New("not in channel"))
	b := bus.New()
	events, unsub := b.Subscribe("message.", 10)
	defer unsub()
	q := NewQueue(b, nil)
	defer q.Stop()

	q.Enqueue(ch, Job{Label: "typing", Run: func(ctx context.Context, ch sdk.Channel) error {
		return ch.SendTypingNotification(ctx, "alice@x")
	}})
	q.Wait()

	assert.Empty(t, events)
}

func TestChannelsProceedIndependently(t *testing.T) {
	svc := loopback.NewService()
	slow := openChannel(t, svc)
	fast := openChannel(t, svc)
	q := NewQueue(nil, nil)
	defer q.Stop()

	release := make(chan struct{})
	q.Enqueue(slow, Job{Label: "stall", Run: func(context.Context, sdk.Channel) error {
		<-release
		return nil
	}})
	q.Enqueue(fast, text("hi", ""))

	require.Eventually(t, func() bool { return len(fast.Texts()) == 1 }, time.Second, 5*time.Millisecond)
	close(release)
	q.Wait()
}

func TestStopAbandonsQueuedJobs(t *testing.T) {
	svc := loopback.NewService()
	ch := openChannel(t, svc)
	q := NewQueue(nil, nil)

	started := make(chan struct{})
	q.Enqueue(ch, Job{Label: "stall", Run: func(ctx context.Context, _ sdk.Channel) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}})
	abandoned := make(chan error, 1)
	q.Enqueue(ch, Job{Label: "text", Run: func(context.Context, sdk.Channel) error {
		t.Error("queued job ran after Stop")
		return nil
	}, Done: func(err error) { abandoned <- err }})

	<-started
	q.Stop()
	assert.ErrorIs(t, <-abandoned, context.Canceled)

	q.Enqueue(ch, text("late", ""))
	q.Wait()
	assert.Empty(t, ch.Texts())
}
