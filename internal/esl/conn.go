package esl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/percipia/eslgo"
	"github.com/percipia/eslgo/command"
)

// eventBuffer bounds how many undelivered events the reader goroutine
// may queue before dropping. A full buffer means the run loop has
// stalled for far longer than the 1s tick budget.
const eventBuffer = 4096

// conn adapts an eslgo inbound connection to the Conn interface.
// eslgo delivers events from its own reader goroutine; the adapter
// funnels them into a channel so the orchestrator can consume them
// single-threaded with a bounded wait.
type conn struct {
	inner  *eslgo.Conn
	events chan *eslgo.Event
	closed chan struct{}
}

// Dial establishes the control session. Failure here is fatal to
// startup; there is no retry.
func Dial(address, password string) (Conn, error) {
	c := &conn{
		events: make(chan *eslgo.Event, eventBuffer),
		closed: make(chan struct{}),
	}
	inner, err := eslgo.Dial(address, password, c.onDisconnect)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	c.inner = inner
	inner.RegisterEventListener(eslgo.EventListenAll, c.onEvent)
	return c, nil
}

// onEvent runs on eslgo's reader goroutine. Blocking here would stall
// the library's read loop, so a full buffer drops the event instead.
// A dropped CHANNEL_HANGUP strands its session in the caller's table
// and can block normal termination, so the drop is logged loudly and
// the buffer is sized well past any realistic stall.
func (c *conn) onEvent(ev *eslgo.Event) {
	select {
	case c.events <- ev:
	default:
		slog.Warn("[ESL] Event buffer full, dropping event", "event", ev.GetName())
	}
}

func (c *conn) onDisconnect() {
	close(c.closed)
}

func (c *conn) API(ctx context.Context, cmd string, args string) error {
	_, err := c.inner.SendCommand(ctx, command.API{Command: cmd, Arguments: args})
	if err != nil {
		return fmt.Errorf("api %s: %w", cmd, err)
	}
	return nil
}

func (c *conn) BgAPI(ctx context.Context, cmd string, args string) error {
	_, err := c.inner.SendCommand(ctx, command.API{Command: cmd, Arguments: args, Background: true})
	if err != nil {
		return fmt.Errorf("bgapi %s: %w", cmd, err)
	}
	return nil
}

func (c *conn) Subscribe(ctx context.Context, names ...string) error {
	_, err := c.inner.SendCommand(ctx, command.Event{Format: "plain", Listen: names})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

func (c *conn) RecvEventTimed(ctx context.Context, timeout time.Duration) (Event, error) {
	// Events already queued take precedence over a disconnect signal
	// so nothing delivered before the drop is lost.
	select {
	case ev := <-c.events:
		return wrapEvent(ev), nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-c.events:
		return wrapEvent(ev), nil
	case <-timer.C:
		return nil, nil
	case <-c.closed:
		return nil, ErrDisconnected
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *conn) Close() {
	c.inner.ExitAndClose()
}

// event wraps an eslgo event behind the Event interface.
type event struct {
	inner *eslgo.Event
}

func wrapEvent(ev *eslgo.Event) Event {
	return &event{inner: ev}
}

func (e *event) Name() string {
	return e.inner.GetName()
}

func (e *event) Header(name string) string {
	return e.inner.GetHeader(name)
}
