package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dreamsxin/ramnotify/config"
	"github.com/dreamsxin/ramnotify/system"
	"github.com/dreamsxin/ramnotify/types"
	"github.com/dreamsxin/ramnotify/util"
)

// gaugeWidth is the number of cells in the text gauge
const gaugeWidth = 20

// Options 引擎配置
type Options struct {
	Sampler     system.Sampler
	Store       *config.Store
	Launcher    Launcher
	Notifier    Notifier
	Recorder    Recorder
	Clock       Clock
	Logger      *slog.Logger
	HistorySize int
}

// Engine drives sampling and both threshold monitors.
// Every state change runs under one lock, including timer firings and
// command completions, so monitors never see concurrent mutation.
type Engine struct {
	mu       sync.Mutex
	sampler  system.Sampler
	store    *config.Store
	recorder Recorder
	clock    Clock
	logger   *slog.Logger

	cfg        types.Config
	physical   *ThresholdMonitor
	swap       *ThresholdMonitor
	notifyCool *CoolTime
	history    *system.History
	status     types.Status
	visible    bool

	observers []Observer
	events    []func(Observer)

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewEngine 创建监控引擎
func NewEngine(opts Options) (*Engine, error) {
	if opts.Sampler == nil {
		return nil, fmt.Errorf("sampler is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("settings store is required")
	}
	if opts.Launcher == nil {
		return nil, fmt.Errorf("command launcher is required")
	}
	if opts.Recorder == nil {
		opts.Recorder = NopRecorder{}
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	e := &Engine{
		sampler:  opts.Sampler,
		store:    opts.Store,
		recorder: opts.Recorder,
		clock:    opts.Clock,
		logger:   opts.Logger,
		cfg:      opts.Store.Config(),
		history:  system.NewHistory(opts.HistorySize),
	}

	deps := MonitorDeps{
		Clock:    opts.Clock,
		Dispatch: e.dispatch,
		Launcher: opts.Launcher,
		Notifier: opts.Notifier,
		Recorder: opts.Recorder,
		Logger:   opts.Logger,
	}
	e.physical = NewThresholdMonitor(types.ResourcePhysical, e.cfg.Virtual, deps)
	e.swap = NewThresholdMonitor(types.ResourceSwap, e.cfg.Swap.ThresholdConfig, deps)
	for _, m := range e.monitors() {
		m.trigger.onState = e.commandStateChanged
		m.trigger.onFinish = e.commandFinished
	}
	e.notifyCool = NewCoolTime(opts.Clock, e.cfg.NotifyCooldown())
	return e, nil
}

// Subscribe registers a presentation observer
func (e *Engine) Subscribe(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Start 启动采样循环
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("engine is already running")
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	go e.loop(ctx, e.stopCh, e.doneCh)

	e.logger.Info("memory monitor started", "refresh", e.cfg.RefreshInterval())
	return nil
}

// Run starts the loop and blocks until ctx is done
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	e.Stop()
	return nil
}

// Stop ends the loop and disarms both repeat timers.
// It is safe to call repeatedly or without Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	var done chan struct{}
	if e.running {
		e.running = false
		close(e.stopCh)
		done = e.doneCh
	}
	e.mu.Unlock()

	if done != nil {
		<-done
		e.logger.Info("memory monitor stopped")
	}
	e.dispatch(func() {
		for _, m := range e.monitors() {
			m.Shutdown()
		}
	})
}

func (e *Engine) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	fire := make(chan struct{}, 1)
	schedule := func(d time.Duration) Stopper {
		return e.clock.AfterFunc(d, func() {
			select {
			case fire <- struct{}{}:
			default:
			}
		})
	}

	timer := schedule(0)
	defer func() { timer.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-fire:
		}

		started := e.clock.Now()
		_, _ = e.Tick(ctx)

		// the interval is read per tick so a cadence change applies to the next firing
		interval := e.RefreshInterval()
		elapsed := e.clock.Now().Sub(started)
		next := interval - elapsed
		if next <= 0 {
			e.logger.Warn("tick overran refresh interval",
				"elapsed", elapsed,
				"interval", interval)
			e.recorder.TickOverrun(elapsed)
			next = 0
		}
		timer = schedule(next)
	}
}

// Tick samples memory once and evaluates both monitors, physical first.
// A sampling failure skips the evaluation.
func (e *Engine) Tick(ctx context.Context) (types.Status, error) {
	return e.tick(ctx, false)
}

// ForceUpdate ticks now and pushes the status to observers even when hidden
func (e *Engine) ForceUpdate(ctx context.Context) (types.Status, error) {
	return e.tick(ctx, true)
}

func (e *Engine) tick(ctx context.Context, force bool) (types.Status, error) {
	physical, swap, err := e.sampler.Sample(ctx)
	if err != nil {
		e.recorder.SampleFailed()
		e.logger.Warn("memory sample failed, tick skipped", slog.Any("error", err))
		return e.Status(), err
	}

	var status types.Status
	e.dispatch(func() {
		status = e.evaluate(ctx, physical, swap, force)
	})
	return status, nil
}

func (e *Engine) evaluate(ctx context.Context, physical, swap types.MemoryReading, force bool) types.Status {
	now := e.clock.Now()
	capBytes := e.cfg.Swap.CapBytes()
	physicalPct := physical.Percent()
	swapPct := system.SwapPercent(swap, capBytes)

	pe := e.physical.Evaluate(ctx, physicalPct, e.notifyCool, false)
	e.swap.Evaluate(ctx, swapPct, e.notifyCool, pe.Notified)

	swapMax := swap.Total
	if capBytes > 0 {
		swapMax = capBytes
	}
	e.history.Add(types.HistoryPoint{
		Timestamp:    now,
		PhysicalUsed: physical.Used,
		PhysicalMax:  physical.Total,
		SwapUsed:     swap.Used,
		SwapMax:      swapMax,
	})

	e.status = types.Status{
		Timestamp: now,
		Physical:  e.resourceStatus(e.physical, physicalPct, physical),
		Swap:      e.resourceStatus(e.swap, swapPct, swap),
		IconLevel: types.IconLevel(e.cfg.TaskBarIcon, physicalPct, swapPct),
	}
	e.recorder.ObserveStatus(e.status)

	if e.visible || force {
		status := e.status
		e.emit(func(o Observer) { o.StatusUpdated(status) })
	}
	return e.status
}

func (e *Engine) resourceStatus(m *ThresholdMonitor, pct float64, reading types.MemoryReading) types.ResourceStatus {
	return types.ResourceStatus{
		Resource:  m.Resource(),
		Name:      m.Resource().Label(),
		Percent:   pct,
		Reading:   reading,
		Threshold: m.Config().Percent,
		Over:      m.WasOver(),
		Busy:      m.CommandBusy(),
		Gauge:     util.GaugeBar(pct, gaugeWidth),
	}
}

// Status returns the last evaluated status
func (e *Engine) Status() types.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// History returns the usage history behind the chart
func (e *Engine) History() *system.History {
	return e.history
}

// Config returns the live settings
func (e *Engine) Config() types.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// RefreshInterval is the current tick cadence
func (e *Engine) RefreshInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.RefreshInterval()
}

// SetVisible records whether the presentation layer is shown.
// Becoming visible pushes the current status at once.
func (e *Engine) SetVisible(visible bool) {
	e.dispatch(func() {
		was := e.visible
		e.visible = visible
		if visible && !was {
			status := e.status
			e.emit(func(o Observer) { o.StatusUpdated(status) })
		}
	})
}

// SetThresholdPercent changes the alert limit of r
func (e *Engine) SetThresholdPercent(r types.Resource, percent int) {
	e.updateThreshold(r, func(t *types.ThresholdConfig) { t.Percent = percent })
}

// SetNotify toggles notifications for r
func (e *Engine) SetNotify(r types.Resource, enabled bool) {
	e.updateThreshold(r, func(t *types.ThresholdConfig) { t.Notify = enabled })
}

// SetCommandEnabled toggles the threshold command for r
func (e *Engine) SetCommandEnabled(r types.Resource, enabled bool) {
	e.updateThreshold(r, func(t *types.ThresholdConfig) { t.CommandEnabled = enabled })
}

// SetCommand replaces the command text for r
func (e *Engine) SetCommand(r types.Resource, command string) {
	e.updateThreshold(r, func(t *types.ThresholdConfig) { t.Command = command })
}

// SetCommandDelay sets the command cooldown of r in seconds
func (e *Engine) SetCommandDelay(r types.Resource, seconds int) {
	e.updateThreshold(r, func(t *types.ThresholdConfig) { t.CommandDelaySeconds = seconds })
}

// SetCommandRepeat sets the repeat interval of r in minutes, 0 disables repeating
func (e *Engine) SetCommandRepeat(r types.Resource, minutes int) {
	e.updateThreshold(r, func(t *types.ThresholdConfig) { t.CommandRepeatMinutes = minutes })
}

// SetSwapCustomCap enables or disables the user defined swap size
func (e *Engine) SetSwapCustomCap(enabled bool, gigabytes int) {
	e.update(func(c *types.Config) {
		c.Swap.CustomSize = enabled
		c.Swap.CustomSizeMax = gigabytes
	})
}

// SetRefreshRate changes the tick cadence; it applies from the next scheduled tick
func (e *Engine) SetRefreshRate(ms int) {
	e.update(func(c *types.Config) { c.RefreshRateMS = ms })
}

// SetNotifyCooldown changes the shared notification gate
func (e *Engine) SetNotifyCooldown(ms int) {
	e.update(func(c *types.Config) { c.NotifyCoolMS = ms })
}

// SetIconMode selects the tray gauge
func (e *Engine) SetIconMode(mode types.IconMode) {
	e.update(func(c *types.Config) { c.TaskBarIcon = mode })
}

// SetProcessListEnabled toggles the process list window
func (e *Engine) SetProcessListEnabled(enabled bool) {
	e.update(func(c *types.Config) { c.EnableProcessList = enabled })
}

// RunCommandNow launches command for r, or the configured one when empty.
// It bypasses cooldown and hysteresis and reports false while a run is outstanding.
func (e *Engine) RunCommandNow(r types.Resource, command string) bool {
	var started bool
	e.dispatch(func() {
		started = e.monitor(r).RunNow(command)
	})
	return started
}

// Apply saves the working settings and re-arms the repeat timers
func (e *Engine) Apply() error {
	if err := e.store.Save(); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	e.dispatch(func() {
		for _, m := range e.monitors() {
			m.Rearm()
		}
	})
	e.logger.Info("settings saved", slog.String("path", e.store.Path()))
	return nil
}

// Cancel discards unsaved edits and restores the settings on disk
func (e *Engine) Cancel() error {
	if err := e.store.Reload(); err != nil {
		return fmt.Errorf("reload settings: %w", err)
	}
	cfg := e.store.Config()
	e.dispatch(func() { e.apply(cfg) })
	return nil
}

func (e *Engine) updateThreshold(r types.Resource, fn func(*types.ThresholdConfig)) {
	e.update(func(c *types.Config) {
		t := c.Threshold(r)
		fn(&t)
		c.SetThreshold(r, t)
	})
}

func (e *Engine) update(fn func(*types.Config)) {
	e.dispatch(func() {
		e.apply(e.store.Update(fn))
	})
}

func (e *Engine) apply(cfg types.Config) {
	prev := e.cfg
	e.cfg = cfg

	e.physical.SetConfig(cfg.Virtual)
	e.swap.SetConfig(cfg.Swap.ThresholdConfig)
	e.notifyCool.SetCooldown(cfg.NotifyCooldown())

	e.status.Physical.Threshold = cfg.Virtual.Percent
	e.status.Swap.Threshold = cfg.Swap.Percent
	for _, r := range []types.Resource{types.ResourcePhysical, types.ResourceSwap} {
		percent := cfg.Threshold(r).Percent
		if prev.Threshold(r).Percent != percent {
			res := r
			e.emit(func(o Observer) { o.ThresholdChanged(res, percent) })
		}
	}
}

func (e *Engine) commandStateChanged(r types.Resource, running bool) {
	if r == types.ResourceSwap {
		e.status.Swap.Busy = running
	} else {
		e.status.Physical.Busy = running
	}
	e.emit(func(o Observer) { o.CommandStateChanged(r, running) })
}

func (e *Engine) commandFinished(r types.Resource, res types.CommandResult) {
	e.emit(func(o Observer) { o.CommandFinished(r, res) })
}

func (e *Engine) monitor(r types.Resource) *ThresholdMonitor {
	if r == types.ResourceSwap {
		return e.swap
	}
	return e.physical
}

func (e *Engine) monitors() []*ThresholdMonitor {
	return []*ThresholdMonitor{e.physical, e.swap}
}

// emit queues an observer callback; it must be called with the lock held
func (e *Engine) emit(ev func(Observer)) {
	e.events = append(e.events, ev)
}

// dispatch runs f under the engine lock, then delivers queued observer
// callbacks after the lock is released
func (e *Engine) dispatch(f func()) {
	e.mu.Lock()
	f()
	events := e.events
	e.events = nil
	observers := append([]Observer(nil), e.observers...)
	e.mu.Unlock()

	for _, ev := range events {
		for _, o := range observers {
			ev(o)
		}
	}
}
