package timerq

import (
	"testing"
	"time"
)

// fakeClock is a manually advanced clock for deterministic tests.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestRunReadyOrdering(t *testing.T) {
	clk := newFakeClock()
	q := NewWithClock(clk.Now)

	var got []string
	q.Schedule(3*time.Second, 1, func() { got = append(got, "c") })
	q.Schedule(1*time.Second, 1, func() { got = append(got, "a") })
	q.Schedule(2*time.Second, 1, func() { got = append(got, "b") })

	clk.Advance(5 * time.Second)
	q.RunReady()

	want := "abc"
	if joined(got) != want {
		t.Errorf("execution order = %q, want %q", joined(got), want)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d after full drain, want 0", q.Len())
	}
}

func TestPriorityTieBreak(t *testing.T) {
	clk := newFakeClock()
	q := NewWithClock(clk.Now)

	var got []string
	q.Schedule(time.Second, 2, func() { got = append(got, "low") })
	q.Schedule(time.Second, 1, func() { got = append(got, "high") })

	clk.Advance(time.Second)
	q.RunReady()

	if len(got) != 2 || got[0] != "high" || got[1] != "low" {
		t.Errorf("execution order = %v, want [high low]", got)
	}
}

func TestCancel(t *testing.T) {
	clk := newFakeClock()
	q := NewWithClock(clk.Now)

	ran := false
	tok := q.Schedule(time.Second, 1, func() { ran = true })

	if !q.Cancel(tok) {
		t.Error("Cancel(pending) = false, want true")
	}
	if q.Cancel(tok) {
		t.Error("Cancel(already cancelled) = true, want false")
	}

	clk.Advance(2 * time.Second)
	q.RunReady()
	if ran {
		t.Error("cancelled action ran")
	}
}

func TestCancelAfterRun(t *testing.T) {
	clk := newFakeClock()
	q := NewWithClock(clk.Now)

	tok := q.Schedule(0, 1, func() {})
	q.RunReady()

	if q.Cancel(tok) {
		t.Error("Cancel(executed) = true, want false")
	}
}

func TestNextDelay(t *testing.T) {
	clk := newFakeClock()
	q := NewWithClock(clk.Now)

	if _, ok := q.NextDelay(); ok {
		t.Error("NextDelay() on empty queue returned ok=true")
	}

	q.Schedule(3*time.Second, 1, func() {})
	if d, ok := q.NextDelay(); !ok || d != 3*time.Second {
		t.Errorf("NextDelay() = %v, %v, want 3s, true", d, ok)
	}

	clk.Advance(5 * time.Second)
	if d, ok := q.NextDelay(); !ok || d != 0 {
		t.Errorf("NextDelay() overdue = %v, %v, want 0, true", d, ok)
	}
}

// An action that re-arms itself must not run twice in one drain, even
// when it re-schedules with zero delay.
func TestSingleSampleDrainBound(t *testing.T) {
	clk := newFakeClock()
	q := NewWithClock(clk.Now)

	runs := 0
	var tick func()
	tick = func() {
		runs++
		q.Schedule(0, 1, tick)
	}
	q.Schedule(0, 1, tick)

	q.RunReady()
	if runs != 1 {
		t.Fatalf("re-arming action ran %d times in one drain, want 1", runs)
	}

	// The re-scheduled entry is eligible on the next drain.
	q.RunReady()
	if runs != 2 {
		t.Errorf("re-arming action ran %d times after second drain, want 2", runs)
	}
}

// An action may cancel another entry that is due in the same drain;
// the cancelled action must not run.
func TestCancelDuringDrain(t *testing.T) {
	clk := newFakeClock()
	q := NewWithClock(clk.Now)

	ran := false
	var victim Token
	q.Schedule(time.Second, 1, func() { q.Cancel(victim) })
	victim = q.Schedule(time.Second, 2, func() { ran = true })

	clk.Advance(time.Second)
	q.RunReady()

	if ran {
		t.Error("action cancelled mid-drain still ran")
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d after drain, want 0", q.Len())
	}
}

func TestRunReadyLeavesFutureEntries(t *testing.T) {
	clk := newFakeClock()
	q := NewWithClock(clk.Now)

	ran := 0
	q.Schedule(time.Second, 1, func() { ran++ })
	q.Schedule(10*time.Second, 1, func() { ran++ })

	clk.Advance(time.Second)
	q.RunReady()

	if ran != 1 {
		t.Errorf("ran %d entries, want 1", ran)
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}
}

func joined(s []string) string {
	out := ""
	for _, v := range s {
		out += v
	}
	return out
}
