package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamsxin/ramnotify/config"
	"github.com/dreamsxin/ramnotify/types"
)

type engineFixture struct {
	engine   *Engine
	store    *config.Store
	sampler  *fakeSampler
	launcher *fakeLauncher
	notifier *fakeNotifier
	clock    *fakeClock
	observer *recordingObserver
	recorder *overrunRecorder
}

func newEngineFixture(t *testing.T, edit func(*types.Config)) *engineFixture {
	t.Helper()

	store := config.NewStore(filepath.Join(t.TempDir(), "settings.json"), quietLogger())
	require.NoError(t, store.Load())
	if edit != nil {
		store.Update(edit)
	}

	f := &engineFixture{
		store:    store,
		sampler:  &fakeSampler{},
		launcher: &fakeLauncher{},
		notifier: &fakeNotifier{},
		clock:    newFakeClock(),
		observer: &recordingObserver{},
		recorder: &overrunRecorder{},
	}
	engine, err := NewEngine(Options{
		Sampler:  f.sampler,
		Store:    store,
		Launcher: f.launcher,
		Notifier: f.notifier,
		Recorder: f.recorder,
		Clock:    f.clock,
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	engine.Subscribe(f.observer)
	t.Cleanup(engine.Stop)
	f.engine = engine
	return f
}

func TestNewEngineValidatesOptions(t *testing.T) {
	_, err := NewEngine(Options{})
	assert.Error(t, err)

	store := config.NewStore(filepath.Join(t.TempDir(), "s.json"), quietLogger())
	_, err = NewEngine(Options{Sampler: &fakeSampler{}, Store: store})
	assert.Error(t, err, "launcher is required")
}

func TestEngineTickPhysicalTakesNotificationPriority(t *testing.T) {
	f := newEngineFixture(t, func(c *types.Config) {
		c.Virtual.Notify = true
		c.Swap.Notify = true
		c.Swap.Percent = 50
	})
	f.sampler.Set(95, 70)

	status, err := f.engine.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Physical.Over)
	assert.True(t, status.Swap.Over)

	sent := f.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].message, "Physical memory")
}

func TestEngineSwapCustomCapClamps(t *testing.T) {
	f := newEngineFixture(t, func(c *types.Config) {
		c.Swap.CustomSize = true
		c.Swap.CustomSizeMax = 4
	})
	f.sampler.physical = types.MemoryReading{Total: 16 << 30, Used: 4 << 30}
	f.sampler.swap = types.MemoryReading{Total: 8 << 30, Used: 5 << 30}

	status, err := f.engine.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100.0, status.Swap.Percent)
	assert.Equal(t, 25.0, status.Physical.Percent)

	points := f.engine.History().GetHistory(0)
	require.Len(t, points, 1)
	assert.Equal(t, uint64(4)<<30, points[0].SwapMax)
}

func TestEngineSampleFailureSkipsTick(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.sampler.err = errors.New("no procfs")

	_, err := f.engine.Tick(context.Background())
	assert.Error(t, err)
	assert.Empty(t, f.engine.History().GetHistory(0))
}

func TestEngineVisibilityGatesStatusUpdates(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.sampler.Set(10, 10)
	ctx := context.Background()

	_, err := f.engine.Tick(ctx)
	require.NoError(t, err)
	assert.Empty(t, f.observer.statuses)

	_, err = f.engine.ForceUpdate(ctx)
	require.NoError(t, err)
	assert.Len(t, f.observer.statuses, 1)

	f.engine.SetVisible(true)
	assert.Len(t, f.observer.statuses, 2, "becoming visible pushes the last status")

	_, err = f.engine.Tick(ctx)
	require.NoError(t, err)
	assert.Len(t, f.observer.statuses, 3)
}

func TestEngineMutatorsTakeEffectImmediately(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.sampler.Set(85, 0)
	ctx := context.Background()

	status, err := f.engine.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, status.Physical.Over)

	f.engine.SetThresholdPercent(types.ResourcePhysical, 80)
	assert.Equal(t, []int{80}, f.observer.thresholds)
	assert.Equal(t, 80, f.engine.Status().Physical.Threshold)

	status, err = f.engine.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, status.Physical.Over)

	f.engine.SetThresholdPercent(types.ResourcePhysical, 500)
	assert.Equal(t, types.MaxPercent, f.engine.Config().Virtual.Percent, "values are normalized")

	f.engine.SetRefreshRate(1000)
	assert.Equal(t, time.Second, f.engine.RefreshInterval())
}

func TestEngineCommandLifecycle(t *testing.T) {
	f := newEngineFixture(t, func(c *types.Config) {
		c.Virtual.CommandEnabled = true
		c.Virtual.Command = "free-memory"
	})
	f.sampler.Set(95, 0)
	ctx := context.Background()

	_, err := f.engine.Tick(ctx)
	require.NoError(t, err)
	assert.Empty(t, f.launcher.Commands())

	status, err := f.engine.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"free-memory"}, f.launcher.Commands())
	assert.True(t, status.Physical.Busy)
	assert.Equal(t, []bool{true}, f.observer.states)

	assert.False(t, f.engine.RunCommandNow(types.ResourcePhysical, ""), "slot is shared with manual runs")

	f.launcher.Finish(0, 0)
	assert.False(t, f.engine.Status().Physical.Busy)
	assert.Equal(t, []bool{true, false}, f.observer.states)
	require.Len(t, f.observer.finished, 1)
	assert.Equal(t, 0, *f.observer.finished[0].ExitCode)

	assert.True(t, f.engine.RunCommandNow(types.ResourcePhysical, "echo manual"))
	assert.Equal(t, "echo manual", f.launcher.Commands()[1])
}

func TestEngineApplyAndCancel(t *testing.T) {
	f := newEngineFixture(t, nil)

	f.engine.SetThresholdPercent(types.ResourceSwap, 42)
	require.NoError(t, f.engine.Apply())

	f.engine.SetThresholdPercent(types.ResourceSwap, 77)
	assert.Equal(t, 77, f.engine.Config().Swap.Percent)

	require.NoError(t, f.engine.Cancel())
	assert.Equal(t, 42, f.engine.Config().Swap.Percent)
	assert.Equal(t, []int{42, 77, 42}, f.observer.thresholds)
}

func TestEngineApplyPropagatesSaveError(t *testing.T) {
	store := config.NewStore(filepath.Join(t.TempDir(), "missing", "x", "settings.json"), quietLogger())
	engine, err := NewEngine(Options{
		Sampler:  &fakeSampler{},
		Store:    store,
		Launcher: &fakeLauncher{},
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, engine.Apply(), "missing directories are created")

	blocked := config.NewStore(filepath.Join(store.Path(), "settings.json"), quietLogger())
	engine, err = NewEngine(Options{
		Sampler:  &fakeSampler{},
		Store:    blocked,
		Launcher: &fakeLauncher{},
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	assert.Error(t, engine.Apply())
}

func TestEngineStartStop(t *testing.T) {
	f := newEngineFixture(t, func(c *types.Config) { c.RefreshRateMS = 500 })
	f.sampler.Set(10, 10)

	f.engine.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.engine.Start(ctx))
	assert.Error(t, f.engine.Start(ctx))

	f.waitArmed(t)
	f.clock.Advance(0)
	assert.Eventually(t, func() bool {
		return f.ticks() == 1
	}, 2*time.Second, time.Millisecond)

	f.engine.Stop()
	f.engine.Stop()
	require.NoError(t, f.engine.Start(ctx), "restart after stop")
}

// waitArmed blocks until the tick loop has scheduled its next firing
func (f *engineFixture) waitArmed(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.clock.Pending() == 1
	}, 2*time.Second, time.Millisecond)
}

func (f *engineFixture) ticks() int {
	return len(f.engine.History().GetHistory(0))
}

func TestEngineTickOverrunReschedulesWithoutBacklog(t *testing.T) {
	f := newEngineFixture(t, func(c *types.Config) { c.RefreshRateMS = 500 })
	f.sampler.Set(10, 10)
	f.sampler.onSample = func() { f.clock.Advance(1200 * time.Millisecond) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.engine.Start(ctx))

	f.waitArmed(t)
	f.clock.Advance(0)
	f.waitArmed(t)
	require.Equal(t, 1, f.ticks())
	require.Equal(t, []time.Duration{1200 * time.Millisecond}, f.recorder.Overruns())

	// an overrun schedules the next tick at once, and only one
	f.clock.Advance(0)
	f.waitArmed(t)
	assert.Equal(t, 2, f.ticks())
	assert.Len(t, f.recorder.Overruns(), 2)

	f.sampler.onSample = nil
	f.clock.Advance(0)
	f.waitArmed(t)
	assert.Equal(t, 3, f.ticks())
	assert.Len(t, f.recorder.Overruns(), 2, "a fast tick is not an overrun")
}

func TestEngineRefreshRateAppliesNextTick(t *testing.T) {
	f := newEngineFixture(t, func(c *types.Config) { c.RefreshRateMS = 1000 })
	f.sampler.Set(10, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.engine.Start(ctx))

	f.waitArmed(t)
	f.clock.Advance(0)
	f.waitArmed(t)
	require.Equal(t, 1, f.ticks())

	// the tick already scheduled keeps the old cadence
	f.engine.SetRefreshRate(5000)
	f.clock.Advance(time.Second)
	f.waitArmed(t)
	require.Equal(t, 2, f.ticks())

	f.clock.Advance(4999 * time.Millisecond)
	assert.Equal(t, 2, f.ticks())
	f.clock.Advance(time.Millisecond)
	f.waitArmed(t)
	assert.Equal(t, 3, f.ticks())
	assert.Empty(t, f.recorder.Overruns())
}

func TestEngineStopDisarmsRepeatTimers(t *testing.T) {
	f := newEngineFixture(t, func(c *types.Config) {
		c.Virtual.CommandEnabled = true
		c.Virtual.Command = "x"
		c.Virtual.CommandRepeatMinutes = 1
	})
	f.sampler.Set(95, 0)

	_, err := f.engine.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, f.engine.physical.TimerRunning())

	f.engine.Stop()
	assert.False(t, f.engine.physical.TimerRunning())
	f.clock.Advance(time.Hour)
	assert.Empty(t, f.launcher.Commands())
}
