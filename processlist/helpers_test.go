package processlist

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamsxin/ramnotify/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptWorker prints lines, then runs tail (if any) in place of the shell
func scriptWorker(lines []string, tail string) WorkerCommand {
	return func(ctx context.Context) (*exec.Cmd, error) {
		script := `printf '%s\n' "$@"`
		if tail != "" {
			script += "; exec " + tail
		}
		args := append([]string{"-c", script, "sh"}, lines...)
		return exec.CommandContext(ctx, "sh", args...), nil
	}
}

func recordLine(t *testing.T, rec types.ProcessRecord) string {
	t.Helper()
	data, err := json.Marshal(workerLine{Record: &rec})
	require.NoError(t, err)
	return string(data)
}
