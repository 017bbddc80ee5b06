package types

import (
	"strings"
	"time"
)

// ProcessRecord is a point-in-time capture of an OS process.
// It goes stale as soon as it is taken.
type ProcessRecord struct {
	PID           int32    `json:"pid"`
	Name          string   `json:"name"`
	ResidentBytes uint64   `json:"rss"`
	VirtualBytes  uint64   `json:"vms"`
	Cmdline       []string `json:"cmdline"`
}

// CommandLine joins the captured argv for display
func (p ProcessRecord) CommandLine() string {
	return strings.Join(p.Cmdline, " ")
}

// ProcessRow is a table row with gauges relative to the current aggregate usage
type ProcessRow struct {
	ProcessRecord
	ResidentPercent float64 `json:"rss_percent"`
	VirtualPercent  float64 `json:"vms_percent"`
}

// SortKey selects the process table column to order by
type SortKey int

const (
	SortByPID SortKey = iota
	SortByName
	SortByResident
	SortByVirtual
)

// String returns the column name
func (k SortKey) String() string {
	switch k {
	case SortByPID:
		return "pid"
	case SortByName:
		return "name"
	case SortByResident:
		return "physical"
	case SortByVirtual:
		return "virtual"
	default:
		return "unknown"
	}
}

// DefaultDescending is the direction applied when a column is first selected.
// Memory columns show the biggest consumers first.
func (k SortKey) DefaultDescending() bool {
	return k == SortByResident || k == SortByVirtual
}

// ParseSortKey maps a column name back to a SortKey
func ParseSortKey(s string) (SortKey, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pid":
		return SortByPID, true
	case "name":
		return SortByName, true
	case "physical", "rss", "resident":
		return SortByResident, true
	case "virtual", "vms":
		return SortByVirtual, true
	}
	return SortByPID, false
}

// Action is a process control request
type Action int

const (
	ActionTerminate Action = iota
	ActionKill
	ActionRestart
)

// String returns the action verb
func (a Action) String() string {
	switch a {
	case ActionTerminate:
		return "terminate"
	case ActionKill:
		return "kill"
	case ActionRestart:
		return "restart"
	default:
		return "unknown"
	}
}

// ActionOutcome classifies how a process action ended
type ActionOutcome int

const (
	OutcomeSucceeded ActionOutcome = iota
	OutcomeAlreadyGone
	OutcomeAccessDenied
	OutcomeFailed
	OutcomeInconclusive
	OutcomeCancelled
)

// String returns the outcome name
func (o ActionOutcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeAlreadyGone:
		return "already_gone"
	case OutcomeAccessDenied:
		return "access_denied"
	case OutcomeFailed:
		return "failed"
	case OutcomeInconclusive:
		return "inconclusive"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ActionResult is returned by every process action
type ActionResult struct {
	Action  Action        `json:"action"`
	Outcome ActionOutcome `json:"outcome"`
	PID     int32         `json:"pid"`
	NewPID  int32         `json:"new_pid,omitempty"`
	Message string        `json:"message,omitempty"`
	Err     error         `json:"-"`
}

// Removed reports whether the table row was dropped
func (r ActionResult) Removed() bool {
	return r.Outcome == OutcomeSucceeded || r.Outcome == OutcomeAlreadyGone
}

// CommandResult reports the end of an external command run.
// A nil ExitCode with Err set means the command could not be launched.
type CommandResult struct {
	ID       string        `json:"id"`
	Command  string        `json:"command"`
	ExitCode *int          `json:"exit_code,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Launched reports whether the command actually ran
func (r CommandResult) Launched() bool {
	return r.ExitCode != nil
}
