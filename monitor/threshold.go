package monitor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dreamsxin/ramnotify/types"
)

// NotificationTitle is the title of every threshold notification
const NotificationTitle = "Memory alert"

// Evaluation is the outcome of one tick for one resource
type Evaluation struct {
	Percent      float64
	Over         bool
	Notified     bool
	CommandFired bool
	TimerArmed   bool
}

// ThresholdMonitor 单个资源的阈值状态机
// All methods must be called from the engine's dispatcher context.
type ThresholdMonitor struct {
	resource    types.Resource
	cfg         types.ThresholdConfig
	wasOver     bool
	commandCool *CoolTime
	timer       *RepeatingTimer
	trigger     *Trigger
	notifier    Notifier
	recorder    Recorder
	logger      *slog.Logger
}

// MonitorDeps are the collaborators shared by both resource monitors
type MonitorDeps struct {
	Clock    Clock
	Dispatch Dispatcher
	Launcher Launcher
	Notifier Notifier
	Recorder Recorder
	Logger   *slog.Logger
}

// NewThresholdMonitor creates a monitor that starts below threshold
func NewThresholdMonitor(resource types.Resource, cfg types.ThresholdConfig, deps MonitorDeps) *ThresholdMonitor {
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	if deps.Recorder == nil {
		deps.Recorder = NopRecorder{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	logger := deps.Logger.With("resource", resource.String())

	m := &ThresholdMonitor{
		resource:    resource,
		cfg:         cfg,
		commandCool: NewCoolTime(deps.Clock, cfg.CommandCooldown()),
		trigger:     NewTrigger(resource, deps.Launcher, deps.Dispatch, deps.Recorder, logger),
		notifier:    deps.Notifier,
		recorder:    deps.Recorder,
		logger:      logger,
	}
	m.timer = NewRepeatingTimer(resource.String()+"-command", cfg.RepeatInterval(), deps.Clock, deps.Dispatch, m.onRepeat, logger)
	return m
}

// Resource returns the monitored resource
func (m *ThresholdMonitor) Resource() types.Resource {
	return m.resource
}

// Config returns the live threshold settings
func (m *ThresholdMonitor) Config() types.ThresholdConfig {
	return m.cfg
}

// WasOver reports whether the last evaluation was over threshold
func (m *ThresholdMonitor) WasOver() bool {
	return m.wasOver
}

// CommandBusy reports whether this resource's command is running
func (m *ThresholdMonitor) CommandBusy() bool {
	return m.trigger.Busy()
}

// TimerRunning reports whether the repeat timer is armed
func (m *ThresholdMonitor) TimerRunning() bool {
	return m.timer.IsRunning()
}

// Evaluate runs one tick. notifyGate is shared by both resources; when
// notifyTaken is set a higher priority resource already notified this tick.
func (m *ThresholdMonitor) Evaluate(ctx context.Context, percent float64, notifyGate *CoolTime, notifyTaken bool) Evaluation {
	over := percent >= float64(m.cfg.Percent)
	ev := Evaluation{Percent: percent, Over: over}

	if over {
		if m.cfg.Notify && !notifyTaken && notifyGate.IsCool() {
			notifyGate.MarkFired()
			m.notify(ctx, percent)
			ev.Notified = true
		}

		// the command needs two consecutive over ticks
		if m.wasOver && m.cfg.CommandEnabled && m.commandCool.IsCool() {
			m.commandCool.MarkFired()
			ev.CommandFired = m.trigger.Fire(m.cfg.Command, ReasonThreshold)
		}
	}

	m.wasOver = over

	if !over {
		m.timer.Stop()
		return ev
	}
	if m.cfg.RepeatEnabled() && !m.timer.IsRunning() {
		m.timer.ChangeDelay(m.cfg.RepeatInterval())
		m.timer.Start()
		ev.TimerArmed = true
	}
	return ev
}

// SetConfig applies new settings to live state. The repeat timer is only
// re-armed when its schedule changed.
func (m *ThresholdMonitor) SetConfig(cfg types.ThresholdConfig) {
	old := m.cfg
	m.cfg = cfg
	m.commandCool.SetCooldown(cfg.CommandCooldown())

	if old.RepeatEnabled() == cfg.RepeatEnabled() && old.RepeatInterval() == cfg.RepeatInterval() {
		return
	}
	m.timer.Stop()
	m.timer.ChangeDelay(cfg.RepeatInterval())
	if cfg.RepeatEnabled() && m.wasOver {
		m.timer.Start()
	}
}

// Rearm restarts the repeat timer from now when it should be running
func (m *ThresholdMonitor) Rearm() {
	m.timer.Stop()
	m.timer.ChangeDelay(m.cfg.RepeatInterval())
	if m.cfg.RepeatEnabled() && m.wasOver {
		m.timer.Start()
	}
}

// RunNow launches command, or the configured command when empty, ignoring
// cooldown and hysteresis. It is a no-op while a command is running.
func (m *ThresholdMonitor) RunNow(command string) bool {
	if command == "" {
		command = m.cfg.Command
	}
	return m.trigger.Fire(command, ReasonManual)
}

// Shutdown disarms the repeat timer
func (m *ThresholdMonitor) Shutdown() {
	m.timer.Stop()
}

func (m *ThresholdMonitor) onRepeat(t *RepeatingTimer) {
	t.Start()
	m.trigger.Fire(m.cfg.Command, ReasonRepeat)
}

func (m *ThresholdMonitor) notify(ctx context.Context, percent float64) {
	m.recorder.Notified(m.resource)
	if m.notifier == nil {
		return
	}
	msg := fmt.Sprintf("%s usage is %d%%!", m.resource.Label(), int(percent))
	if err := m.notifier.Notify(ctx, NotificationTitle, msg); err != nil {
		m.logger.Warn("notification failed", slog.Any("error", err))
	}
}
