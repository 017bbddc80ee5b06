package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/dreamsxin/ramnotify/types"
	"github.com/dreamsxin/ramnotify/util"
)

// CommandRunner launches user commands through the shell in their own
// process group and reports each completion through a callback
type CommandRunner struct {
	logger  *slog.Logger
	mu      sync.Mutex
	running map[string]*exec.Cmd
	wg      sync.WaitGroup
}

// NewCommandRunner creates a new CommandRunner instance
func NewCommandRunner(logger *slog.Logger) *CommandRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandRunner{
		logger:  logger,
		running: make(map[string]*exec.Cmd),
	}
}

// Launch starts command in the background and returns its invocation id.
// onDone is called once from the worker goroutine. A non-zero exit is a
// normal completion; only a failure to start leaves ExitCode nil.
func (r *CommandRunner) Launch(command string, onDone func(types.CommandResult)) string {
	id := util.GenerateUUID()

	r.wg.Add(1)
	go r.run(id, command, onDone)
	return id
}

func (r *CommandRunner) run(id, command string, onDone func(types.CommandResult)) {
	defer r.wg.Done()

	started := time.Now()
	res := types.CommandResult{ID: id, Command: command}

	cmd := shellCommand(command)
	if err := cmd.Start(); err != nil {
		res.Err = fmt.Errorf("failed to start command: %w", err)
		res.Duration = time.Since(started)
		r.logger.Error("command launch failed", "id", id, slog.Any("error", err))
		if onDone != nil {
			onDone(res)
		}
		return
	}

	r.mu.Lock()
	r.running[id] = cmd
	r.mu.Unlock()

	err := cmd.Wait()

	r.mu.Lock()
	delete(r.running, id)
	r.mu.Unlock()

	res.Duration = time.Since(started)
	if cmd.ProcessState != nil {
		code := cmd.ProcessState.ExitCode()
		res.ExitCode = &code
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		res.Err = err
	}

	if onDone != nil {
		onDone(res)
	}
}

// Running returns the number of commands still in flight
func (r *CommandRunner) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// Wait blocks until every launched command has completed or ctx ends
func (r *CommandRunner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait for commands: %w", ctx.Err())
	case <-done:
		return nil
	}
}

// Shutdown kills the process groups of outstanding commands and waits up to
// timeout for their completions to be delivered
func (r *CommandRunner) Shutdown(timeout time.Duration) {
	r.mu.Lock()
	for id, cmd := range r.running {
		if err := killGroup(cmd); err != nil {
			r.logger.Warn("failed to stop command", "id", id, slog.Any("error", err))
		}
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := r.Wait(ctx); err != nil {
		r.logger.Warn("commands still running at shutdown", "count", r.Running())
	}
}
