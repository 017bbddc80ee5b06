package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRepeatingTimerFiresAfterDelay(t *testing.T) {
	clock := newFakeClock()
	fired := 0
	timer := NewRepeatingTimer("test", time.Minute, clock, direct, func(*RepeatingTimer) { fired++ }, quietLogger())

	assert.False(t, timer.IsRunning())
	timer.Start()
	assert.True(t, timer.IsRunning())

	clock.Advance(59 * time.Second)
	assert.Equal(t, 0, fired)

	clock.Advance(time.Second)
	assert.Equal(t, 1, fired)
	assert.False(t, timer.IsRunning(), "the callback decides whether to reschedule")
}

func TestRepeatingTimerCallbackReschedules(t *testing.T) {
	clock := newFakeClock()
	fired := 0
	timer := NewRepeatingTimer("test", time.Minute, clock, direct, func(rt *RepeatingTimer) {
		fired++
		rt.Start()
	}, quietLogger())

	timer.Start()
	clock.Advance(5 * time.Minute)
	assert.Equal(t, 5, fired)
	assert.True(t, timer.IsRunning())

	assert.True(t, timer.Stop())
	clock.Advance(5 * time.Minute)
	assert.Equal(t, 5, fired)
}

func TestRepeatingTimerStartRestarts(t *testing.T) {
	clock := newFakeClock()
	fired := 0
	timer := NewRepeatingTimer("test", time.Minute, clock, direct, func(*RepeatingTimer) { fired++ }, quietLogger())

	timer.Start()
	clock.Advance(40 * time.Second)
	timer.Start()
	clock.Advance(40 * time.Second)
	assert.Equal(t, 0, fired, "restart moves the deadline")

	clock.Advance(20 * time.Second)
	assert.Equal(t, 1, fired, "restart does not double arm")
	clock.Advance(10 * time.Minute)
	assert.Equal(t, 1, fired)
}

func TestRepeatingTimerStopIdempotent(t *testing.T) {
	clock := newFakeClock()
	timer := NewRepeatingTimer("test", time.Minute, clock, direct, nil, quietLogger())

	assert.False(t, timer.Stop(), "never started")
	timer.Start()
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
}

func TestRepeatingTimerChangeDelayAppliesToNextStart(t *testing.T) {
	clock := newFakeClock()
	fired := 0
	timer := NewRepeatingTimer("test", time.Minute, clock, direct, func(*RepeatingTimer) { fired++ }, quietLogger())

	timer.Start()
	timer.ChangeDelay(10 * time.Minute)
	clock.Advance(time.Minute)
	assert.Equal(t, 1, fired, "in-flight wait keeps its delay")

	timer.Start()
	clock.Advance(9 * time.Minute)
	assert.Equal(t, 1, fired)
	clock.Advance(time.Minute)
	assert.Equal(t, 2, fired)

	timer.ChangeDelay(0)
	assert.Equal(t, DefaultRepeatDelay, timer.Delay())
}

func TestRepeatingTimerDropsStaleFiring(t *testing.T) {
	clock := newFakeClock()
	var queued []func()
	queue := func(f func()) { queued = append(queued, f) }

	fired := 0
	timer := NewRepeatingTimer("test", time.Minute, clock, queue, func(*RepeatingTimer) { fired++ }, quietLogger())

	timer.Start()
	clock.Advance(time.Minute)
	assert.Len(t, queued, 1, "firing waits for the dispatcher")

	timer.Stop()
	for _, f := range queued {
		f()
	}
	assert.Equal(t, 0, fired)
}
