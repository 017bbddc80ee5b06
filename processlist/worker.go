package processlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/dreamsxin/ramnotify/manager"
	"github.com/dreamsxin/ramnotify/types"
)

// WorkerArg is the hidden subcommand that runs WriteSnapshot
const WorkerArg = "scan-worker"

// workerLine is one JSON line of the worker protocol: a record per
// process, then a final line with Done set
type workerLine struct {
	Record *types.ProcessRecord `json:"record,omitempty"`
	Done   bool                 `json:"done,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// WriteSnapshot enumerates every process and streams the records to w.
// It runs inside the isolated worker process.
func WriteSnapshot(ctx context.Context, w io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	enc := json.NewEncoder(w)

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		_ = enc.Encode(workerLine{Error: err.Error()})
		return fmt.Errorf("list processes: %w", err)
	}

	written := 0
	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := manager.Record(ctx, p)
		if err != nil {
			if !errors.Is(err, manager.ErrProcessGone) {
				logger.Debug("skipping process", "pid", p.Pid, slog.Any("error", err))
			}
			continue
		}
		if err := enc.Encode(workerLine{Record: &rec}); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		written++
	}

	if err := enc.Encode(workerLine{Done: true}); err != nil {
		return fmt.Errorf("write done marker: %w", err)
	}
	logger.Debug("snapshot written", "processes", written)
	return nil
}
