package monitor

import (
	"log/slog"

	"github.com/dreamsxin/ramnotify/types"
)

// Trigger reasons reported to the Recorder
const (
	ReasonThreshold = "threshold"
	ReasonRepeat    = "repeat"
	ReasonManual    = "manual"
)

// Trigger owns the command slot of one resource.
// Automatic and manual runs share the slot, so at most one command per
// resource is outstanding. The busy flag is cleared only by the completion.
type Trigger struct {
	resource types.Resource
	launcher Launcher
	dispatch Dispatcher
	recorder Recorder
	logger   *slog.Logger

	busy     bool
	onState  func(types.Resource, bool)
	onFinish func(types.Resource, types.CommandResult)
}

// NewTrigger creates an idle trigger
func NewTrigger(resource types.Resource, launcher Launcher, dispatch Dispatcher, recorder Recorder, logger *slog.Logger) *Trigger {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{
		resource: resource,
		launcher: launcher,
		dispatch: dispatch,
		recorder: recorder,
		logger:   logger,
	}
}

// Busy reports whether a command is in flight
func (t *Trigger) Busy() bool {
	return t.busy
}

// Fire launches command unless one is already running or the command is empty.
// It reports whether a launch was started.
func (t *Trigger) Fire(command, reason string) bool {
	if command == "" {
		t.logger.Debug("no command configured", "reason", reason)
		return false
	}
	if t.busy {
		t.logger.Debug("command still running, skipped", "reason", reason)
		return false
	}

	t.busy = true
	t.recorder.CommandStarted(t.resource, reason)
	if t.onState != nil {
		t.onState(t.resource, true)
	}

	id := t.launcher.Launch(command, func(res types.CommandResult) {
		t.dispatch(func() { t.complete(res) })
	})
	t.logger.Info("command launched",
		"reason", reason,
		"id", id,
		"command", command)
	return true
}

func (t *Trigger) complete(res types.CommandResult) {
	t.busy = false

	if res.Launched() {
		t.logger.Info("command finished",
			"id", res.ID,
			"exit_code", *res.ExitCode,
			"duration", res.Duration)
	} else {
		t.logger.Error("command failed to launch",
			"id", res.ID,
			"command", res.Command,
			"error", res.Err)
	}

	t.recorder.CommandFinished(t.resource, res)
	if t.onFinish != nil {
		t.onFinish(t.resource, res)
	}
	if t.onState != nil {
		t.onState(t.resource, false)
	}
}
