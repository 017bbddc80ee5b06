package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dreamsxin/ramnotify/manager"
	"github.com/dreamsxin/ramnotify/processlist"
	"github.com/dreamsxin/ramnotify/system"
	"github.com/dreamsxin/ramnotify/types"
	"github.com/dreamsxin/ramnotify/util"
)

func newProcessList(cfg envConfig, sampler system.Sampler, recorder processlist.ScanRecorder, confirmer processlist.Confirmer, logger *slog.Logger) (*processlist.ProcessList, error) {
	return processlist.New(processlist.Options{
		Scanner:     processlist.NewScanner(processlist.SelfWorker(), cfg.ScanTimeout, recorder, logger),
		Sampler:     sampler,
		Control:     manager.NewProcessController(logger),
		Confirmer:   confirmer,
		ExitTimeout: cfg.ExitTimeout,
		Logger:      logger,
	})
}

func newPsCmd(cfg *envConfig) *cobra.Command {
	var (
		sortBy     string
		descending bool
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List processes by memory use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, ok := types.ParseSortKey(sortBy)
			if !ok {
				return fmt.Errorf("unknown sort column %q", sortBy)
			}
			if !cmd.Flags().Changed("desc") {
				descending = key.DefaultDescending()
			}

			logger := newLogger(os.Stderr, cfg.LogLevel)
			list, err := newProcessList(*cfg, system.NewMemorySampler(), nil, processlist.ConfirmFunc(refuse), logger)
			if err != nil {
				return err
			}
			progress := func(n int) {
				logger.Debug("scanning processes", slog.Int("count", n))
			}
			if err := list.Refresh(cmd.Context(), progress); err != nil {
				return err
			}

			list.Table().Sort(key, descending)
			return printTable(cmd.OutOrStdout(), list.Table().Rows(), limit)
		},
	}
	cmd.Flags().StringVar(&sortBy, "sort", types.SortByResident.String(), "sort column (pid, name, physical, virtual)")
	cmd.Flags().BoolVar(&descending, "desc", false, "sort descending")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n rows")
	return cmd
}

func printTable(w io.Writer, rows []types.ProcessRow, limit int) error {
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := color.New(color.Bold)
	header.Fprintln(tw, "PID\tNAME\tPHYSICAL\t%\tVIRTUAL\t%\tCOMMAND")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.1f\t%s\t%.1f\t%s\n",
			r.PID, r.Name,
			util.FormatMB(r.ResidentBytes), r.ResidentPercent,
			util.FormatMB(r.VirtualBytes), r.VirtualPercent,
			r.CommandLine())
	}
	return tw.Flush()
}

func newActionCmd(cfg *envConfig, action types.Action) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   action.String() + " <pid>",
		Short: actionShort(action),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.ParseInt(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid pid %q", args[0])
			}

			logger := newLogger(os.Stderr, cfg.LogLevel)
			confirmer := &terminalConfirmer{
				in:          cmd.InOrStdin(),
				out:         cmd.ErrOrStderr(),
				assumeYes:   yes,
				interactive: term.IsTerminal(int(os.Stdin.Fd())),
			}
			list, err := newProcessList(*cfg, system.NewMemorySampler(), nil, confirmer, logger)
			if err != nil {
				return err
			}

			res := runAction(cmd.Context(), list, manager.NewProcessController(logger), action, int32(pid))
			return reportAction(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

type describer interface {
	Describe(ctx context.Context, pid int32) (types.ProcessRecord, error)
}

// runAction loads just the target row instead of scanning every process
func runAction(ctx context.Context, list *processlist.ProcessList, d describer, action types.Action, pid int32) types.ActionResult {
	rec, err := d.Describe(ctx, pid)
	if err != nil {
		res := types.ActionResult{Action: action, PID: pid, Message: err.Error(), Err: err}
		switch {
		case errors.Is(err, manager.ErrProcessGone):
			res.Outcome = types.OutcomeAlreadyGone
		case errors.Is(err, manager.ErrAccessDenied):
			res.Outcome = types.OutcomeAccessDenied
		default:
			res.Outcome = types.OutcomeFailed
		}
		return res
	}
	list.Table().Append(rec)

	switch action {
	case types.ActionKill:
		return list.Kill(ctx, pid)
	case types.ActionRestart:
		return list.Restart(ctx, pid)
	default:
		return list.Terminate(ctx, pid)
	}
}

func reportAction(w io.Writer, res types.ActionResult) error {
	switch res.Outcome {
	case types.OutcomeSucceeded:
		if res.NewPID != 0 {
			fmt.Fprintf(w, "%s %d: ok, new pid %d\n", res.Action, res.PID, res.NewPID)
		} else {
			fmt.Fprintf(w, "%s %d: ok\n", res.Action, res.PID)
		}
		return nil
	case types.OutcomeCancelled:
		fmt.Fprintf(w, "%s %d: cancelled\n", res.Action, res.PID)
		return nil
	}
	if res.Err != nil {
		return fmt.Errorf("%s %d: %s: %w", res.Action, res.PID, res.Outcome, res.Err)
	}
	return fmt.Errorf("%s %d: %s: %s", res.Action, res.PID, res.Outcome, res.Message)
}

func actionShort(action types.Action) string {
	switch action {
	case types.ActionKill:
		return "Kill a process"
	case types.ActionRestart:
		return "Kill a process and start it again with the same command line"
	default:
		return "Ask a process to exit"
	}
}

func newWorkerCmd(cfg *envConfig) *cobra.Command {
	return &cobra.Command{
		Use:    processlist.WorkerArg,
		Short:  "Stream a process snapshot to stdout",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(os.Stderr, cfg.LogLevel)
			return processlist.WriteSnapshot(cmd.Context(), cmd.OutOrStdout(), logger)
		},
	}
}
