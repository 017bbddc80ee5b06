package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// ErrUnsupported is returned by Desktop on platforms without a notifier command
var ErrUnsupported = errors.New("desktop notifications are not supported on this platform")

// Sink receives (title, message) pairs. Rate limiting is the caller's job.
type Sink interface {
	Notify(ctx context.Context, title, message string) error
}

// Console writes notifications as highlighted lines
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	title *color.Color
}

// NewConsole 创建控制台通知
func NewConsole(w io.Writer) *Console {
	return &Console{
		w:     w,
		title: color.New(color.FgHiRed, color.Bold),
	}
}

// Notify prints the notification
func (c *Console) Notify(_ context.Context, title, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "%s %s\n", c.title.Sprintf("[%s]", title), message)
	return err
}

// CommandBuilder returns the OS command that shows a notification
type CommandBuilder func(ctx context.Context, title, message string) (*exec.Cmd, error)

// Desktop shows notifications through the platform notifier.
// The notifier is started and reaped in the background.
type Desktop struct {
	build  CommandBuilder
	logger *slog.Logger
}

// NewDesktop picks notify-send, osascript or a PowerShell balloon by OS
func NewDesktop(logger *slog.Logger) *Desktop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Desktop{build: platformCommand(runtime.GOOS), logger: logger}
}

// Notify launches the notifier
func (d *Desktop) Notify(ctx context.Context, title, message string) error {
	cmd, err := d.build(ctx, title, message)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start notifier: %w", err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			d.logger.Warn("notifier exited with error", slog.Any("error", err))
		}
	}()
	return nil
}

func platformCommand(goos string) CommandBuilder {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return func(_ context.Context, title, message string) (*exec.Cmd, error) {
			return exec.Command("notify-send", "--app-name=ramnotify", title, message), nil
		}
	case "darwin":
		return func(_ context.Context, title, message string) (*exec.Cmd, error) {
			script := fmt.Sprintf("display notification %s with title %s", appleQuote(message), appleQuote(title))
			return exec.Command("osascript", "-e", script), nil
		}
	case "windows":
		return func(_ context.Context, title, message string) (*exec.Cmd, error) {
			script := fmt.Sprintf(balloonScript, psQuote(title), psQuote(message))
			return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script), nil
		}
	default:
		return func(context.Context, string, string) (*exec.Cmd, error) {
			return nil, ErrUnsupported
		}
	}
}

const balloonScript = `Add-Type -AssemblyName System.Windows.Forms;` +
	`$n = New-Object System.Windows.Forms.NotifyIcon;` +
	`$n.Icon = [System.Drawing.SystemIcons]::Warning;` +
	`$n.Visible = $true;` +
	`$n.ShowBalloonTip(10000, %s, %s, 'Warning');` +
	`Start-Sleep -Seconds 10; $n.Dispose()`

func appleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Multi fans a notification out to every sink
type Multi []Sink

// Notify delivers to all sinks and joins their errors
func (m Multi) Notify(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, title, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
