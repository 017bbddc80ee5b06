package processlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dreamsxin/ramnotify/manager"
	"github.com/dreamsxin/ramnotify/system"
	"github.com/dreamsxin/ramnotify/types"
)

// ErrEmptyCmdline is returned when a restart target has no captured command line
var ErrEmptyCmdline = errors.New("process command line is unavailable")

// DefaultExitTimeout bounds the wait for a signalled process to exit
const DefaultExitTimeout = 5 * time.Second

// ProcessControl is the OS side of the process actions
type ProcessControl interface {
	Describe(ctx context.Context, pid int32) (types.ProcessRecord, error)
	Terminate(ctx context.Context, pid int32) error
	Kill(ctx context.Context, pid int32) error
	WaitExit(ctx context.Context, pid int32, timeout time.Duration) (bool, error)
	Capture(ctx context.Context, pid int32) (manager.LaunchSpec, error)
	Launch(spec manager.LaunchSpec) (int32, error)
}

// Confirmer asks the user before a destructive action
type Confirmer interface {
	Confirm(ctx context.Context, action types.Action, target types.ProcessRecord) bool
}

// ConfirmFunc adapts a function to Confirmer
type ConfirmFunc func(ctx context.Context, action types.Action, target types.ProcessRecord) bool

// Confirm calls f
func (f ConfirmFunc) Confirm(ctx context.Context, action types.Action, target types.ProcessRecord) bool {
	return f(ctx, action, target)
}

// ProcessList owns the process table and the actions on its rows
type ProcessList struct {
	table       *Table
	scanner     *Scanner
	sampler     system.Sampler
	control     ProcessControl
	confirmer   Confirmer
	exitTimeout time.Duration
	logger      *slog.Logger

	actionMu sync.Mutex
	progress atomic.Pointer[scanProgress]
}

// scanProgress counts the processes read by one scan
type scanProgress struct {
	count atomic.Int64
}

// Options 进程列表配置
type Options struct {
	Scanner     *Scanner
	Sampler     system.Sampler
	Control     ProcessControl
	Confirmer   Confirmer
	ExitTimeout time.Duration
	Logger      *slog.Logger
}

// New creates a process list with an empty table
func New(opts Options) (*ProcessList, error) {
	if opts.Scanner == nil {
		return nil, fmt.Errorf("scanner is required")
	}
	if opts.Sampler == nil {
		return nil, fmt.Errorf("sampler is required")
	}
	if opts.Control == nil {
		return nil, fmt.Errorf("process control is required")
	}
	if opts.Confirmer == nil {
		return nil, fmt.Errorf("confirmer is required")
	}
	if opts.ExitTimeout <= 0 {
		opts.ExitTimeout = DefaultExitTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &ProcessList{
		table:       NewTable(),
		scanner:     opts.Scanner,
		sampler:     opts.Sampler,
		control:     opts.Control,
		confirmer:   opts.Confirmer,
		exitTimeout: opts.ExitTimeout,
		logger:      opts.Logger,
	}, nil
}

// Table returns the owned table
func (l *ProcessList) Table() *Table {
	return l.table
}

// Scanning reports whether a refresh is in flight
func (l *ProcessList) Scanning() bool {
	return l.scanner.Scanning()
}

// Refresh scans all processes and replaces the table
func (l *ProcessList) Refresh(ctx context.Context, progress Progress) error {
	p, track := l.track(progress)
	l.progress.Store(p)
	records, err := l.scanner.Scan(ctx, track)
	if err != nil {
		return err
	}
	return l.ingest(ctx, records)
}

// RefreshAsync starts a scan and ingests its result in the background
func (l *ProcessList) RefreshAsync(ctx context.Context, progress Progress, done func(error)) error {
	p, track := l.track(progress)
	err := l.scanner.Start(ctx, track, func(records map[int32]types.ProcessRecord, err error) {
		if err == nil {
			err = l.ingest(ctx, records)
		}
		if err != nil {
			l.logger.Warn("process scan failed", slog.Any("error", err))
		}
		if done != nil {
			done(err)
		}
	})
	if err == nil {
		l.progress.Store(p)
	}
	return err
}

// Scanned returns the number of processes read by the latest scan so far
func (l *ProcessList) Scanned() int {
	p := l.progress.Load()
	if p == nil {
		return 0
	}
	return int(p.count.Load())
}

func (l *ProcessList) track(progress Progress) (*scanProgress, Progress) {
	p := &scanProgress{}
	return p, func(n int) {
		p.count.Store(int64(n))
		if progress != nil {
			progress(n)
		}
	}
}

func (l *ProcessList) ingest(ctx context.Context, records map[int32]types.ProcessRecord) error {
	physical, swap, err := l.sampler.Sample(ctx)
	if err != nil {
		return fmt.Errorf("read aggregate usage: %w", err)
	}
	l.table.Ingest(records, physical.Used, swap.Used)
	l.logger.Info("process list refreshed", "processes", len(records))
	return nil
}

// Terminate asks pid to exit
func (l *ProcessList) Terminate(ctx context.Context, pid int32) types.ActionResult {
	return l.act(ctx, types.ActionTerminate, pid)
}

// Kill forcibly ends pid
func (l *ProcessList) Kill(ctx context.Context, pid int32) types.ActionResult {
	return l.act(ctx, types.ActionKill, pid)
}

// Restart kills pid and starts the same command line in the same
// directory and environment
func (l *ProcessList) Restart(ctx context.Context, pid int32) types.ActionResult {
	return l.act(ctx, types.ActionRestart, pid)
}

func (l *ProcessList) act(ctx context.Context, action types.Action, pid int32) types.ActionResult {
	l.actionMu.Lock()
	defer l.actionMu.Unlock()

	res := types.ActionResult{Action: action, PID: pid}
	logger := l.logger.With("action", action.String(), "pid", pid)

	row, ok := l.table.Lookup(pid)
	if !ok {
		res.Outcome = types.OutcomeFailed
		res.Err = fmt.Errorf("pid %d is not in the process list", pid)
		res.Message = res.Err.Error()
		return res
	}

	// the table is a stale snapshot; the live process must still exist
	if _, err := l.control.Describe(ctx, pid); err != nil {
		return l.failed(logger, res, err)
	}

	if action == types.ActionRestart && len(row.Cmdline) == 0 {
		res.Outcome = types.OutcomeFailed
		res.Err = ErrEmptyCmdline
		res.Message = "Could not read the process command line"
		return res
	}

	if !l.confirmer.Confirm(ctx, action, row.ProcessRecord) {
		res.Outcome = types.OutcomeCancelled
		return res
	}

	var err error
	switch action {
	case types.ActionTerminate:
		err = l.control.Terminate(ctx, pid)
	case types.ActionKill:
		err = l.control.Kill(ctx, pid)
	case types.ActionRestart:
		res.NewPID, err = l.restart(ctx, pid, row.Cmdline)
	}
	if err != nil {
		return l.failed(logger, res, err)
	}

	exited, err := l.control.WaitExit(ctx, pid, l.exitTimeout)
	if err != nil || !exited {
		res.Outcome = types.OutcomeInconclusive
		res.Err = err
		res.Message = fmt.Sprintf("Process %d did not exit within %s", pid, l.exitTimeout)
		logger.Warn("process still running after signal", "timeout", l.exitTimeout)
		return res
	}

	l.table.Remove(pid)
	res.Outcome = types.OutcomeSucceeded
	logger.Info("process action completed")

	if res.NewPID != 0 {
		rec, err := l.control.Describe(ctx, res.NewPID)
		if err != nil {
			logger.Warn("failed to read restarted process", "new_pid", res.NewPID, slog.Any("error", err))
			return res
		}
		l.table.Append(rec)
	}
	return res
}

// restart captures the launch context before the kill, since it is lost afterwards
func (l *ProcessList) restart(ctx context.Context, pid int32, cmdline []string) (int32, error) {
	spec, err := l.control.Capture(ctx, pid)
	if err != nil {
		return 0, err
	}
	spec.Cmdline = cmdline

	if err := l.control.Kill(ctx, pid); err != nil {
		return 0, err
	}
	newPID, err := l.control.Launch(spec)
	if err != nil {
		return 0, fmt.Errorf("relaunch: %w", err)
	}
	return newPID, nil
}

func (l *ProcessList) failed(logger *slog.Logger, res types.ActionResult, err error) types.ActionResult {
	res.Err = err
	switch {
	case errors.Is(err, manager.ErrProcessGone):
		res.Outcome = types.OutcomeAlreadyGone
		res.Message = "The process was not found"
		l.table.Remove(res.PID)
		logger.Info("process already gone")
	case errors.Is(err, manager.ErrAccessDenied):
		res.Outcome = types.OutcomeAccessDenied
		res.Message = fmt.Sprintf("Access denied: %v", err)
		logger.Warn("process action denied", slog.Any("error", err))
	default:
		res.Outcome = types.OutcomeFailed
		res.Message = fmt.Sprintf("Operation failed: %v", err)
		logger.Error("process action failed", slog.Any("error", err))
	}
	return res
}
