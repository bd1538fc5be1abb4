// Package esl is the boundary to the switch's event socket. The
// orchestrator only sees the Conn and Event interfaces defined here;
// the wire protocol lives in the eslgo-backed adapter.
package esl

import (
	"context"
	"errors"
	"time"
)

// ErrDisconnected is returned by RecvEventTimed once the switch has
// dropped the control connection. It is terminal; callers must not
// retry the receive.
var ErrDisconnected = errors.New("esl: server disconnected")

// Header names used by the call lifecycle events.
const (
	HeaderEventName   = "Event-Name"
	HeaderCallUUID    = "Channel-Call-UUID"
	HeaderDirection   = "Call-Direction"
	HeaderHangupCause = "Hangup-Cause"
)

// Lifecycle event names the load generator subscribes to.
const (
	EventChannelOriginate = "CHANNEL_ORIGINATE"
	EventChannelAnswer    = "CHANNEL_ANSWER"
	EventChannelHangup    = "CHANNEL_HANGUP"
)

// Event is a single notification delivered by the switch.
type Event interface {
	// Name returns the Event-Name header.
	Name() string
	// Header returns the named header value, empty if absent.
	Header(name string) string
}

// Conn is the control session with the switch. Commands are
// fire-and-forget from the caller's point of view: an error means the
// command could not be written, not that the switch rejected it.
type Conn interface {
	// API issues a synchronous api command (e.g. "fsctl sps 10").
	API(ctx context.Context, cmd string, args string) error

	// BgAPI issues a background api command. Used for originate so
	// command issuance never blocks on call setup.
	BgAPI(ctx context.Context, cmd string, args string) error

	// Subscribe registers interest in the named event types.
	Subscribe(ctx context.Context, names ...string) error

	// RecvEventTimed blocks up to timeout for the next event. A nil
	// event with nil error means the timeout elapsed. ErrDisconnected
	// means the switch dropped the connection.
	RecvEventTimed(ctx context.Context, timeout time.Duration) (Event, error)

	// Close tears down the control session.
	Close()
}
