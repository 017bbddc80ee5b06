package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dreamsxin/ramnotify/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func direct(f func()) { f() }

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward, running due timers in order
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		c.now = next.at
		c.mu.Unlock()

		next.f()
	}
}

// Pending counts armed timers that have not fired
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeLauncher struct {
	mu       sync.Mutex
	commands []string
	pending  []func(types.CommandResult)
}

func (l *fakeLauncher) Launch(command string, onDone func(types.CommandResult)) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.commands = append(l.commands, command)
	l.pending = append(l.pending, onDone)
	return fmt.Sprintf("run-%d", len(l.commands))
}

func (l *fakeLauncher) Commands() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.commands...)
}

// Finish completes the i-th launch with the given exit code
func (l *fakeLauncher) Finish(i, code int) {
	l.mu.Lock()
	onDone := l.pending[i]
	command := l.commands[i]
	l.mu.Unlock()
	onDone(types.CommandResult{ID: fmt.Sprintf("run-%d", i+1), Command: command, ExitCode: &code})
}

type notification struct {
	title   string
	message string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *fakeNotifier) Notify(_ context.Context, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{title, message})
	return nil
}

func (n *fakeNotifier) Sent() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

type fakeSampler struct {
	mu       sync.Mutex
	physical types.MemoryReading
	swap     types.MemoryReading
	err      error
	// onSample runs before each reading, outside the lock
	onSample func()
}

func (s *fakeSampler) Set(physicalPct, swapPct uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.physical = types.MemoryReading{Total: 100, Used: physicalPct, Available: 100 - physicalPct}
	s.swap = types.MemoryReading{Total: 100, Used: swapPct, Available: 100 - swapPct}
}

func (s *fakeSampler) Sample(context.Context) (types.MemoryReading, types.MemoryReading, error) {
	s.mu.Lock()
	hook := s.onSample
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.physical, s.swap, s.err
}

type recordingObserver struct {
	NopObserver
	mu         sync.Mutex
	statuses   []types.Status
	thresholds []int
	states     []bool
	finished   []types.CommandResult
}

func (o *recordingObserver) StatusUpdated(s types.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, s)
}

func (o *recordingObserver) ThresholdChanged(_ types.Resource, percent int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.thresholds = append(o.thresholds, percent)
}

func (o *recordingObserver) CommandStateChanged(_ types.Resource, running bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, running)
}

func (o *recordingObserver) CommandFinished(_ types.Resource, res types.CommandResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, res)
}

type overrunRecorder struct {
	NopRecorder
	mu       sync.Mutex
	overruns []time.Duration
}

func (r *overrunRecorder) TickOverrun(elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overruns = append(r.overruns, elapsed)
}

func (r *overrunRecorder) Overruns() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.overruns...)
}
