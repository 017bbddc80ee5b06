package monitor

import (
	"context"
	"time"

	"github.com/dreamsxin/ramnotify/types"
)

// Launcher starts a shell command without blocking and calls onDone exactly
// once, from another goroutine, when it ends or fails to launch.
// It returns the invocation id.
type Launcher interface {
	Launch(command string, onDone func(types.CommandResult)) string
}

// Notifier delivers a desktop style notification. Rate limiting is done by the engine.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// Recorder receives engine events for metrics
type Recorder interface {
	ObserveStatus(status types.Status)
	Notified(resource types.Resource)
	CommandStarted(resource types.Resource, reason string)
	CommandFinished(resource types.Resource, res types.CommandResult)
	TickOverrun(elapsed time.Duration)
	SampleFailed()
}

// Observer is the presentation layer subscription.
// Callbacks run outside the engine lock and may call back into the engine.
type Observer interface {
	StatusUpdated(status types.Status)
	ThresholdChanged(resource types.Resource, percent int)
	CommandStateChanged(resource types.Resource, running bool)
	CommandFinished(resource types.Resource, res types.CommandResult)
}

// NopObserver can be embedded to implement only some callbacks
type NopObserver struct{}

func (NopObserver) StatusUpdated(types.Status)                          {}
func (NopObserver) ThresholdChanged(types.Resource, int)                {}
func (NopObserver) CommandStateChanged(types.Resource, bool)            {}
func (NopObserver) CommandFinished(types.Resource, types.CommandResult) {}

// NopRecorder discards every event
type NopRecorder struct{}

func (NopRecorder) ObserveStatus(types.Status)                          {}
func (NopRecorder) Notified(types.Resource)                             {}
func (NopRecorder) CommandStarted(types.Resource, string)               {}
func (NopRecorder) CommandFinished(types.Resource, types.CommandResult) {}
func (NopRecorder) TickOverrun(time.Duration)                           {}
func (NopRecorder) SampleFailed()                                       {}
