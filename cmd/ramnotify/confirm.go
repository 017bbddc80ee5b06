package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dreamsxin/ramnotify/types"
)

// terminalConfirmer asks on the terminal before acting on a process
type terminalConfirmer struct {
	in          io.Reader
	out         io.Writer
	assumeYes   bool
	interactive bool
}

func (c *terminalConfirmer) Confirm(_ context.Context, action types.Action, target types.ProcessRecord) bool {
	if c.assumeYes {
		return true
	}
	if !c.interactive {
		fmt.Fprintln(c.out, "stdin is not a terminal, pass --yes to confirm")
		return false
	}

	fmt.Fprintf(c.out, "Are you sure you want to %s process %d (%s)? [y/N] ", action, target.PID, target.Name)
	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
