// Package loadgen contains the session orchestrator: a rate-limited
// origination scheduler combined with an event-driven session state
// machine. One goroutine owns all state; the timer queue and the
// bounded transport wait cooperate inside a single run loop.
package loadgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sebas/loadcall/internal/esl"
	"github.com/sebas/loadcall/internal/timerq"
)

// Timer priorities. Forced hangups run before a rate tick due at the
// same instant so freed capacity is visible to the tick.
const (
	prioHangup = 1
	prioTick   = 2
	prioReport = 3
)

// tickInterval is the rate-control re-arm period.
const tickInterval = time.Second

// Config is the immutable load profile for a run.
type Config struct {
	Rate            int           // Originations per tick
	Limit           int           // Max concurrent live sessions
	MaxSessions     int           // Total sessions to originate
	Duration        time.Duration // Session lifetime before forced hangup
	OriginateString string        // Originate command template
	ReportInterval  time.Duration // Progress log cadence, 0 disables
}

// Session is one outbound call attempt, keyed by the UUID the switch
// assigns at origination.
type Session struct {
	ID       string
	Answered bool

	// hangupToken cancels the scheduled forced hangup when the call
	// ends on its own first.
	hangupToken timerq.Token
}

// Orchestrator owns the session table, the run counters, and the
// termination decision. Not safe for concurrent use; Run is the only
// entry point once started.
type Orchestrator struct {
	cfg    Config
	conn   esl.Conn
	timers *timerq.Queue

	sessions     map[string]*Session
	hangupCauses map[string]uint64

	totalOriginated uint64
	totalAnswered   uint64
	totalFailed     uint64

	// commandsIssued counts originate commands sent, so a tick never
	// requests more calls than MaxSessions even before confirmations
	// arrive.
	commandsIssued uint64

	terminate bool

	// ctx is the run context, held so timer actions can issue
	// commands without plumbing it through the queue.
	ctx context.Context
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock injects a clock for the timer queue. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.timers = timerq.NewWithClock(now)
	}
}

// New creates an orchestrator over an established control connection.
func New(cfg Config, conn esl.Conn, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:          cfg,
		conn:         conn,
		timers:       timerq.New(),
		sessions:     make(map[string]*Session),
		hangupCauses: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Prepare raises the switch's own rate and concurrency ceilings so
// they do not obstruct the test, lowers switch log verbosity, and
// subscribes to the lifecycle events the state machine consumes.
func (o *Orchestrator) Prepare(ctx context.Context) error {
	if err := o.conn.API(ctx, "fsctl", fmt.Sprintf("sps %d", o.cfg.Rate*10)); err != nil {
		return err
	}
	if err := o.conn.API(ctx, "fsctl", fmt.Sprintf("max_sessions %d", o.cfg.Limit*10)); err != nil {
		return err
	}
	if err := o.conn.API(ctx, "fsctl", "loglevel warning"); err != nil {
		return err
	}
	return o.conn.Subscribe(ctx,
		esl.EventChannelOriginate,
		esl.EventChannelAnswer,
		esl.EventChannelHangup,
	)
}

// Run drives the load until the termination condition holds, the
// switch disconnects, or ctx is cancelled. It always returns on the
// clean shutdown path so the caller can report final counters.
func (o *Orchestrator) Run(ctx context.Context) {
	o.ctx = ctx
	o.timers.Schedule(0, prioTick, o.originateTick)
	if o.cfg.ReportInterval > 0 {
		o.timers.Schedule(o.cfg.ReportInterval, prioReport, o.progressReport)
	}

	for {
		o.timers.RunReady()

		budget, ok := o.timers.NextDelay()
		if !ok || budget == 0 {
			// Zero would busy-spin against the transport, and an
			// empty queue must still wake up to notice disconnects.
			budget = time.Second
		}

		ev, err := o.conn.RecvEventTimed(ctx, budget)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			slog.Info("[Orchestrator] Interrupted, shutting down")
			return
		case errors.Is(err, esl.ErrDisconnected):
			o.handleDisconnect()
		default:
			slog.Error("[Orchestrator] Receive failed, shutting down", "error", err)
			o.terminate = true
		}

		if ev != nil {
			o.dispatch(ev)
		}
		if o.terminate {
			return
		}
	}
}

// originateTick issues up to Rate origination commands, bounded by the
// concurrency deficit and the remaining total budget, then re-arms
// itself one tick later. Once MaxSessions originations have been
// observed it stops re-arming.
func (o *Orchestrator) originateTick() {
	if o.totalOriginated >= uint64(o.cfg.MaxSessions) {
		slog.Info("[Orchestrator] Done originating", "total", o.totalOriginated)
		return
	}

	live := len(o.sessions)
	issued := 0
	for i := 0; i < o.cfg.Rate; i++ {
		if live >= o.cfg.Limit {
			break
		}
		if o.commandsIssued >= uint64(o.cfg.MaxSessions) {
			break
		}
		if err := o.conn.BgAPI(o.ctx, "originate", o.cfg.OriginateString); err != nil {
			slog.Error("[Orchestrator] Originate command failed", "error", err)
			break
		}
		o.commandsIssued++
		live++
		issued++
	}

	slog.Debug("[Orchestrator] Originate tick", "issued", issued, "live", live)
	o.timers.Schedule(tickInterval, prioTick, o.originateTick)
}

// progressReport logs a counters snapshot and re-arms itself.
func (o *Orchestrator) progressReport() {
	if o.terminate {
		return
	}
	slog.Info("[Orchestrator] Progress",
		"originated", o.totalOriginated,
		"answered", o.totalAnswered,
		"failed", o.totalFailed,
		"live", len(o.sessions),
	)
	o.timers.Schedule(o.cfg.ReportInterval, prioReport, o.progressReport)
}

// dispatch routes one lifecycle event to its handler. Handler failures
// and panics are contained here: the event is dropped, the loop and
// the counters stay intact.
func (o *Orchestrator) dispatch(ev esl.Event) {
	name := eventField(ev.Name)

	var err error
	switch name {
	case esl.EventChannelOriginate:
		err = o.safely(o.handleOriginate, ev)
	case esl.EventChannelAnswer:
		err = o.safely(o.handleAnswer, ev)
	case esl.EventChannelHangup:
		err = o.safely(o.handleHangup, ev)
	default:
		slog.Error("[Orchestrator] Unknown event", "event", name)
		return
	}
	if err != nil {
		slog.Error("[Orchestrator] Failed to process event",
			"event", name,
			"call_uuid", eventField(func() string { return ev.Header(esl.HeaderCallUUID) }),
			"error", err,
		)
	}
}

// safely invokes a handler, converting a panic into a handler error.
func (o *Orchestrator) safely(h func(esl.Event) error, ev esl.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ev)
}

// eventField reads one event accessor, tolerating payloads whose
// accessor itself panics.
func eventField(get func() string) (v string) {
	defer func() {
		if recover() != nil {
			v = "unavailable"
		}
	}()
	return get()
}

// handleOriginate creates a session for a confirmed outbound call and
// arms its forced hangup. Non-outbound legs are the far end of calls
// looped back on the device under test and are ignored.
func (o *Orchestrator) handleOriginate(ev esl.Event) error {
	if ev.Header(esl.HeaderDirection) != "outbound" {
		return nil
	}
	uuid := ev.Header(esl.HeaderCallUUID)
	if uuid == "" {
		return fmt.Errorf("originate event without %s", esl.HeaderCallUUID)
	}
	if _, exists := o.sessions[uuid]; exists {
		slog.Error("[Orchestrator] Duplicated originate for session", "call_uuid", uuid)
		return nil
	}

	s := &Session{ID: uuid}
	s.hangupToken = o.timers.Schedule(o.cfg.Duration, prioHangup, func() {
		o.forceHangup(uuid)
	})
	o.sessions[uuid] = s
	o.totalOriginated++

	slog.Debug("[Orchestrator] Originated session", "call_uuid", uuid)
	return nil
}

// handleAnswer marks a live session answered.
func (o *Orchestrator) handleAnswer(ev esl.Event) error {
	uuid := ev.Header(esl.HeaderCallUUID)
	s, ok := o.sessions[uuid]
	if !ok {
		return nil
	}
	if !s.Answered {
		s.Answered = true
		o.totalAnswered++
	}
	slog.Debug("[Orchestrator] Answered session", "call_uuid", uuid)
	return nil
}

// handleHangup records the hangup cause, retires the session, and
// checks the normal-completion condition.
func (o *Orchestrator) handleHangup(ev esl.Event) error {
	uuid := ev.Header(esl.HeaderCallUUID)
	s, ok := o.sessions[uuid]
	if !ok {
		return nil
	}

	cause := ev.Header(esl.HeaderHangupCause)
	if cause == "" {
		cause = "UNSPECIFIED"
	}
	o.hangupCauses[cause]++
	if !s.Answered {
		o.totalFailed++
	}
	o.timers.Cancel(s.hangupToken)
	delete(o.sessions, uuid)

	slog.Debug("[Orchestrator] Hung up session", "call_uuid", uuid, "cause", cause)

	if o.totalOriginated >= uint64(o.cfg.MaxSessions) && len(o.sessions) == 0 {
		o.terminate = true
	}
	return nil
}

// handleDisconnect flags termination after the switch drops the
// control connection. No reconnect is attempted.
func (o *Orchestrator) handleDisconnect() {
	slog.Error("[Orchestrator] Disconnected from server")
	o.terminate = true
}

// forceHangup asks the switch to clear a session that reached its
// configured lifetime. The hangup is a request; the state transition
// happens when the hangup event arrives through the normal path.
func (o *Orchestrator) forceHangup(uuid string) {
	if _, ok := o.sessions[uuid]; !ok {
		return
	}
	slog.Debug("[Orchestrator] Forcing hangup", "call_uuid", uuid)
	if err := o.conn.API(o.ctx, "uuid_kill", uuid+" NORMAL_CLEARING"); err != nil {
		slog.Error("[Orchestrator] Hangup command failed", "call_uuid", uuid, "error", err)
	}
}
