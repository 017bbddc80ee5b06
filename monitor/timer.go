package monitor

import (
	"log/slog"
	"time"
)

// DefaultRepeatDelay is used when a timer is given a non-positive delay
const DefaultRepeatDelay = time.Minute

// Dispatcher runs f on the owner's serialized context
type Dispatcher func(f func())

// RepeatingTimer 可重复触发的定时器
// Start, Stop and ChangeDelay must be called from the dispatcher context.
// A firing that was already scheduled when Stop or Start ran is dropped.
type RepeatingTimer struct {
	id       string
	clock    Clock
	dispatch Dispatcher
	onFire   func(*RepeatingTimer)
	logger   *slog.Logger

	delay   time.Duration
	pending Stopper
	gen     uint64
}

// NewRepeatingTimer creates a stopped timer
func NewRepeatingTimer(id string, delay time.Duration, clock Clock, dispatch Dispatcher, onFire func(*RepeatingTimer), logger *slog.Logger) *RepeatingTimer {
	if logger == nil {
		logger = slog.Default()
	}
	t := &RepeatingTimer{
		id:       id,
		clock:    clock,
		dispatch: dispatch,
		onFire:   onFire,
		logger:   logger,
	}
	t.ChangeDelay(delay)
	return t
}

// ID returns the timer name used in logs
func (t *RepeatingTimer) ID() string {
	return t.id
}

// Start arms the timer. A running timer restarts its delay from now.
func (t *RepeatingTimer) Start() {
	restarted := t.cancel()

	t.gen++
	gen := t.gen
	t.pending = t.clock.AfterFunc(t.delay, func() {
		t.dispatch(func() { t.fire(gen) })
	})

	if restarted {
		t.logger.Debug("repeat timer restarted", "timer", t.id, "delay", t.delay)
	} else {
		t.logger.Info("repeat timer started", "timer", t.id, "delay", t.delay)
	}
}

// Stop disarms the timer and reports whether it was running
func (t *RepeatingTimer) Stop() bool {
	if !t.cancel() {
		return false
	}
	t.logger.Info("repeat timer stopped", "timer", t.id)
	return true
}

// ChangeDelay sets the delay for the next Start; an in-flight wait is untouched
func (t *RepeatingTimer) ChangeDelay(d time.Duration) {
	if d <= 0 {
		d = DefaultRepeatDelay
	}
	t.delay = d
}

// Delay returns the delay used by the next Start
func (t *RepeatingTimer) Delay() time.Duration {
	return t.delay
}

// IsRunning reports whether a firing is pending
func (t *RepeatingTimer) IsRunning() bool {
	return t.pending != nil
}

func (t *RepeatingTimer) cancel() bool {
	if t.pending == nil {
		return false
	}
	t.pending.Stop()
	t.pending = nil
	t.gen++
	return true
}

func (t *RepeatingTimer) fire(gen uint64) {
	if gen != t.gen || t.pending == nil {
		return
	}
	t.pending = nil
	t.logger.Debug("repeat timer fired", "timer", t.id)
	if t.onFire != nil {
		t.onFire(t)
	}
}
