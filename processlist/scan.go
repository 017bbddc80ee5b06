package processlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/dreamsxin/ramnotify/types"
	"github.com/dreamsxin/ramnotify/util"
)

// ErrScanInProgress is returned when a scan is requested while one runs
var ErrScanInProgress = errors.New("process scan already in progress")

// DefaultScanTimeout bounds a whole enumeration
const DefaultScanTimeout = 60 * time.Second

// WorkerCommand builds the command of the isolated enumeration worker
type WorkerCommand func(ctx context.Context) (*exec.Cmd, error)

// SelfWorker re-executes the running binary with the hidden worker subcommand
func SelfWorker() WorkerCommand {
	return func(ctx context.Context) (*exec.Cmd, error) {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
		return exec.CommandContext(ctx, exe, WorkerArg), nil
	}
}

// Progress receives the number of processes read so far
type Progress func(count int)

// ScanRecorder receives scan timings for metrics
type ScanRecorder interface {
	ObserveScan(elapsed time.Duration, count int, err error)
}

type nopScanRecorder struct{}

func (nopScanRecorder) ObserveScan(time.Duration, int, error) {}

// Scanner supervises the worker process. Enumeration runs out of process
// so a hanging or crashing process query cannot stall the caller.
type Scanner struct {
	command  WorkerCommand
	timeout  time.Duration
	recorder ScanRecorder
	logger   *slog.Logger

	mu     sync.Mutex
	active bool
}

// NewScanner creates a scanner; timeout <= 0 uses DefaultScanTimeout
func NewScanner(command WorkerCommand, timeout time.Duration, recorder ScanRecorder, logger *slog.Logger) *Scanner {
	if command == nil {
		command = SelfWorker()
	}
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	if recorder == nil {
		recorder = nopScanRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		command:  command,
		timeout:  timeout,
		recorder: recorder,
		logger:   logger,
	}
}

// Scanning reports whether a scan is in flight
func (s *Scanner) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Scan enumerates processes and blocks until the worker reports completion
func (s *Scanner) Scan(ctx context.Context, progress Progress) (map[int32]types.ProcessRecord, error) {
	if !s.begin() {
		return nil, ErrScanInProgress
	}
	defer s.end()
	return s.scan(ctx, progress)
}

// Start runs a scan in the background and hands the result to done
func (s *Scanner) Start(ctx context.Context, progress Progress, done func(map[int32]types.ProcessRecord, error)) error {
	if !s.begin() {
		return ErrScanInProgress
	}
	go func() {
		defer s.end()
		records, err := s.scan(ctx, progress)
		if done != nil {
			done(records, err)
		}
	}()
	return nil
}

func (s *Scanner) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return false
	}
	s.active = true
	return true
}

func (s *Scanner) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}

func (s *Scanner) scan(ctx context.Context, progress Progress) (records map[int32]types.ProcessRecord, err error) {
	started := time.Now()
	defer func() {
		s.recorder.ObserveScan(time.Since(started), len(records), err)
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd, err := s.command(ctx)
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start scan worker: %w", err)
	}
	// the worker is killed once its output is consumed, whatever state it is in
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	logger := s.logger.With("scan", util.ShortID())
	logger.Debug("scan worker started", "pid", cmd.Process.Pid)

	records = make(map[int32]types.ProcessRecord)
	dec := json.NewDecoder(stdout)
	for {
		var line workerLine
		if err := dec.Decode(&line); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("scan aborted after %d processes: %w", len(records), ctx.Err())
			}
			return nil, fmt.Errorf("read scan worker output: %w", err)
		}
		if line.Error != "" {
			return nil, fmt.Errorf("scan worker: %s", line.Error)
		}
		if line.Done {
			break
		}
		if line.Record == nil {
			continue
		}
		records[line.Record.PID] = *line.Record
		if progress != nil {
			progress(len(records))
		}
	}

	logger.Debug("scan finished", "processes", len(records), "elapsed", time.Since(started))
	return records, nil
}
