package main

import (
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/dreamsxin/ramnotify/types"
)

const svcName = "ramnotify"

type envConfig struct {
	LogLevel    string        `env:"RAMNOTIFY_LOG_LEVEL"    envDefault:"info"`
	ConfigPath  string        `env:"RAMNOTIFY_CONFIG"       envDefault:"settings.json"`
	HTTPAddr    string        `env:"RAMNOTIFY_HTTP_ADDR"`
	ScanTimeout time.Duration `env:"RAMNOTIFY_SCAN_TIMEOUT" envDefault:"60s"`
	ExitTimeout time.Duration `env:"RAMNOTIFY_EXIT_TIMEOUT" envDefault:"5s"`
}

func main() {
	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if err := newRootCmd(&cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *envConfig) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   svcName,
		Short: "Memory usage notifier",
		Long: `ramnotify watches physical and swap memory usage, notifies when a threshold
is crossed and can run a command to free memory.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), *cfg)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "settings file")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flags.DurationVar(&cfg.ScanTimeout, "scan-timeout", cfg.ScanTimeout, "process scan timeout")
	flags.DurationVar(&cfg.ExitTimeout, "exit-timeout", cfg.ExitTimeout, "how long to wait for a process to exit")
	rootCmd.Flags().StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP listen address, empty disables the API")

	rootCmd.AddCommand(
		newPsCmd(cfg),
		newActionCmd(cfg, types.ActionTerminate),
		newActionCmd(cfg, types.ActionKill),
		newActionCmd(cfg, types.ActionRestart),
		newWorkerCmd(cfg),
	)
	return rootCmd
}

// newLogger builds the JSON logger; an unknown level falls back to info
func newLogger(w io.Writer, levelText string) *slog.Logger {
	var level slog.Level
	levelErr := level.UnmarshalText([]byte(levelText))
	if levelErr != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	if levelErr != nil {
		logger.Warn("invalid log level, using info", slog.String("level", levelText))
	}
	return logger
}
