package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/dreamsxin/ramnotify/types"
)

var (
	// ErrProcessGone is returned when the pid no longer names a live process
	ErrProcessGone = errors.New("process no longer exists")
	// ErrAccessDenied is returned when the OS refuses the operation
	ErrAccessDenied = errors.New("access denied")
)

// DefaultPollInterval is how often WaitExit checks the pid
const DefaultPollInterval = 100 * time.Millisecond

// LaunchSpec is what a restart needs to start an equivalent process
type LaunchSpec struct {
	Cmdline []string
	Cwd     string
	Env     []string
}

// ProcessController acts on arbitrary OS processes by pid.
// Every call re-resolves the pid, so a stale snapshot is never trusted.
type ProcessController struct {
	logger       *slog.Logger
	pollInterval time.Duration
}

// NewProcessController 创建进程控制器
func NewProcessController(logger *slog.Logger) *ProcessController {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessController{
		logger:       logger,
		pollInterval: DefaultPollInterval,
	}
}

// Resolve looks the pid up again
func (c *ProcessController) Resolve(ctx context.Context, pid int32) (*process.Process, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, classify(pid, err)
	}
	return p, nil
}

// Describe captures a fresh record for pid
func (c *ProcessController) Describe(ctx context.Context, pid int32) (types.ProcessRecord, error) {
	p, err := c.Resolve(ctx, pid)
	if err != nil {
		return types.ProcessRecord{}, err
	}
	return Record(ctx, p)
}

// Record reads name, memory and command line of p. Fields the OS refuses
// to expose stay zero; only a vanished process is an error.
func Record(ctx context.Context, p *process.Process) (types.ProcessRecord, error) {
	rec := types.ProcessRecord{PID: p.Pid}

	name, err := p.NameWithContext(ctx)
	if err != nil {
		if err := classify(p.Pid, err); errors.Is(err, ErrProcessGone) {
			return rec, err
		}
	}
	rec.Name = name

	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		if err := classify(p.Pid, err); errors.Is(err, ErrProcessGone) {
			return rec, err
		}
	} else {
		rec.ResidentBytes = mem.RSS
		rec.VirtualBytes = mem.VMS
	}

	if cmdline, err := p.CmdlineSliceWithContext(ctx); err == nil {
		rec.Cmdline = cmdline
	}
	return rec, nil
}

// Terminate asks the process to exit
func (c *ProcessController) Terminate(ctx context.Context, pid int32) error {
	p, err := c.Resolve(ctx, pid)
	if err != nil {
		return err
	}
	if err := p.TerminateWithContext(ctx); err != nil {
		return classify(pid, err)
	}
	c.logger.Info("process terminated", "pid", pid)
	return nil
}

// Kill forcibly ends the process
func (c *ProcessController) Kill(ctx context.Context, pid int32) error {
	p, err := c.Resolve(ctx, pid)
	if err != nil {
		return err
	}
	if err := p.KillWithContext(ctx); err != nil {
		return classify(pid, err)
	}
	c.logger.Info("process killed", "pid", pid)
	return nil
}

// WaitExit polls until pid is gone or timeout passes. It reports whether
// the process exited; a timeout is not an error.
func (c *ProcessController) WaitExit(ctx context.Context, pid int32, timeout time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		if c.exited(ctx, pid) {
			return true, nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return false, nil
			}
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// exited treats a zombie as gone since it will never run again
func (c *ProcessController) exited(ctx context.Context, pid int32) bool {
	exists, err := process.PidExistsWithContext(ctx, pid)
	if err != nil {
		return false
	}
	if !exists {
		return true
	}
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return errors.Is(err, process.ErrorProcessNotRunning)
	}
	status, err := p.StatusWithContext(ctx)
	if err != nil {
		return false
	}
	return slices.Contains(status, process.Zombie)
}

// Capture records command line, working directory and environment of pid
func (c *ProcessController) Capture(ctx context.Context, pid int32) (LaunchSpec, error) {
	p, err := c.Resolve(ctx, pid)
	if err != nil {
		return LaunchSpec{}, err
	}

	var spec LaunchSpec
	if spec.Cmdline, err = p.CmdlineSliceWithContext(ctx); err != nil {
		return LaunchSpec{}, classify(pid, err)
	}
	if spec.Cwd, err = p.CwdWithContext(ctx); err != nil {
		return LaunchSpec{}, classify(pid, err)
	}
	if spec.Env, err = p.EnvironWithContext(ctx); err != nil {
		return LaunchSpec{}, classify(pid, err)
	}
	return spec, nil
}

// Launch starts a detached process from spec and returns its pid.
// The child is reaped in the background.
func (c *ProcessController) Launch(spec LaunchSpec) (int32, error) {
	if len(spec.Cmdline) == 0 {
		return 0, fmt.Errorf("empty command line")
	}

	cmd := exec.Command(spec.Cmdline[0], spec.Cmdline[1:]...)
	cmd.Dir = spec.Cwd
	cmd.Env = spec.Env
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", spec.Cmdline[0], err)
	}
	pid := int32(cmd.Process.Pid)

	go func() {
		err := cmd.Wait()
		c.logger.Debug("relaunched process exited", "pid", pid, slog.Any("error", err))
	}()

	c.logger.Info("process launched", "pid", pid, "command", spec.Cmdline[0])
	return pid, nil
}

// classify maps OS errors onto ErrProcessGone and ErrAccessDenied
func classify(pid int32, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrProcessGone), errors.Is(err, ErrAccessDenied):
		return err
	case errors.Is(err, process.ErrorProcessNotRunning),
		errors.Is(err, os.ErrProcessDone),
		isNoSuchProcess(err):
		return fmt.Errorf("pid %d: %w", pid, ErrProcessGone)
	case errors.Is(err, os.ErrPermission), isAccessDenied(err):
		return fmt.Errorf("pid %d: %w: %v", pid, ErrAccessDenied, err)
	default:
		return fmt.Errorf("pid %d: %w", pid, err)
	}
}
