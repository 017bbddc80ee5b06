package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/dreamsxin/ramnotify/types"
)

// legacyRefreshPresets is the index table used by the old integer refresh_rate key.
var legacyRefreshPresets = []int{
	500,
	1000,
	1000 * 5,
	1000 * 10,
	1000 * 30,
	1000 * 60,
	1000 * 60 * 5,
}

// Store keeps the in-memory working copy of the settings and persists it on demand.
// The working copy may diverge from disk until Save; Reload discards edits.
type Store struct {
	mu       sync.RWMutex
	path     string
	cfg      types.Config
	firstRun bool
	logger   *slog.Logger
}

// NewStore creates a store for the settings file at path. Call Load before use.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		cfg:    types.DefaultConfig(),
		logger: logger,
	}
}

// Path returns the settings file location
func (s *Store) Path() string {
	return s.path
}

// Load reads the settings file. A missing file is created with defaults and marks first run.
// A malformed file is logged and treated as empty.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.cfg = types.DefaultConfig()
		s.firstRun = true
		if err := s.persist(); err != nil {
			return err
		}
		s.logger.Info("Wrote default settings", slog.String("path", s.path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}

	s.firstRun = false
	s.cfg = Parse(data, s.logger)
	return nil
}

// Reload discards unsaved edits by reading the file again
func (s *Store) Reload() error {
	return s.Load()
}

// Save writes the working copy to disk
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist()
}

// FirstRun reports whether the last Load created the settings file
func (s *Store) FirstRun() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.firstRun
}

// Config returns a copy of the working settings
func (s *Store) Config() types.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Update mutates the working copy; the result is normalized into valid ranges
func (s *Store) Update(fn func(*types.Config)) types.Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.cfg)
	s.cfg = Normalize(s.cfg)
	return s.cfg
}

func (s *Store) persist() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("ensure settings directory: %w", err)
	}

	cfg := s.cfg
	cfg.Version = types.ConfigVersion
	bytes, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", s.path, time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, bytes, 0o644); err != nil {
		return fmt.Errorf("write temp settings: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}

// Parse decodes settings leniently: unknown keys are ignored, missing, zero or
// mistyped values fall back to defaults, and malformed JSON yields all defaults.
func Parse(data []byte, logger *slog.Logger) types.Config {
	if logger == nil {
		logger = slog.Default()
	}

	var root map[string]any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &root); err != nil {
			logger.Warn("Malformed settings file, using defaults", slog.Any("error", err))
			root = nil
		}
	}

	def := types.DefaultConfig()
	cfg := def

	virtual := section(root, "virtual")
	cfg.Virtual = parseThreshold(virtual)

	swap := section(root, "swap")
	cfg.Swap.ThresholdConfig = parseThreshold(swap)
	cfg.Swap.CustomSize = boolField(swap, "custom_size")
	cfg.Swap.CustomSizeMax = intField(swap, "custom_size_max", types.MinCustomCapGB)

	cfg.NotifyCoolMS = intField(root, "notify_cool_ms", def.NotifyCoolMS)
	cfg.TaskBarIcon = types.IconMode(intField(root, "task_bar_icon", int(types.IconSimple)))
	cfg.EnableProcessList = boolField(root, "enable_processlist_app")

	cfg.RefreshRateMS = def.RefreshRateMS
	if v, ok := root["refresh_rate_ms"]; ok {
		if n, ok := toInt(v); ok {
			cfg.RefreshRateMS = n
		}
	} else if v, ok := root["refresh_rate"]; ok {
		if n, ok := toInt(v); ok {
			cfg.RefreshRateMS = legacyRefreshPresets[clamp(n, 0, len(legacyRefreshPresets)-1)]
		}
	}

	return Normalize(cfg)
}

// Normalize clamps every field into its documented range
func Normalize(cfg types.Config) types.Config {
	cfg.Version = types.ConfigVersion
	cfg.Virtual = normalizeThreshold(cfg.Virtual)
	cfg.Swap.ThresholdConfig = normalizeThreshold(cfg.Swap.ThresholdConfig)
	cfg.Swap.CustomSizeMax = clamp(cfg.Swap.CustomSizeMax, types.MinCustomCapGB, types.MaxCustomCapGB)
	cfg.TaskBarIcon = types.IconMode(clamp(int(cfg.TaskBarIcon), int(types.IconSimple), int(types.IconVirtual)))
	if cfg.RefreshRateMS <= 0 {
		cfg.RefreshRateMS = types.DefaultRefreshMS
	}
	if cfg.NotifyCoolMS < 0 {
		cfg.NotifyCoolMS = types.DefaultNotifyCoolMS
	}
	return cfg
}

func normalizeThreshold(t types.ThresholdConfig) types.ThresholdConfig {
	t.Percent = clamp(t.Percent, types.MinPercent, types.MaxPercent)
	t.CommandRepeatMinutes = clamp(t.CommandRepeatMinutes, 0, types.MaxRepeatMinutes)
	if t.CommandDelaySeconds < 0 {
		t.CommandDelaySeconds = 0
	}
	return t
}

func parseThreshold(m map[string]any) types.ThresholdConfig {
	return types.ThresholdConfig{
		Percent:              intField(m, "percentage", types.DefaultPercent),
		Notify:               boolField(m, "notify"),
		CommandEnabled:       boolField(m, "call_command"),
		Command:              stringField(m, "command"),
		CommandDelaySeconds:  intField(m, "command_call_delay", types.DefaultCommandDelay),
		CommandRepeatMinutes: intField(m, "command_call_repeat", 0),
	}
}

func section(root map[string]any, key string) map[string]any {
	if root == nil {
		return nil
	}
	m, _ := root[key].(map[string]any)
	return m
}

// intField returns def for missing, zero or non-numeric values
func intField(m map[string]any, key string, def int) int {
	v, ok := m[key]
	if !ok {
		return def
	}
	n, ok := toInt(v)
	if !ok || n == 0 {
		return def
	}
	return n
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int(x), true
	case string:
		n, err := strconv.Atoi(x)
		if err != nil {
			return 0, false
		}
		return n, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func boolField(m map[string]any, key string) bool {
	switch x := m[key].(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return false
}

func stringField(m map[string]any, key string) string {
	switch x := m[key].(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
