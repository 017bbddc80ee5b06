package types

import "time"

// Limits for persisted threshold settings
const (
	MinPercent          = 1
	MaxPercent          = 100
	MaxRepeatMinutes    = 99999999
	MinCustomCapGB      = 1
	MaxCustomCapGB      = 1024
	DefaultPercent      = 90
	DefaultCommandDelay = 10
	DefaultRefreshMS    = 5000
	DefaultNotifyCoolMS = 1000 * 60 * 30
	ConfigVersion       = 1
)

// IconMode selects what the tray icon gauge shows
type IconMode int

const (
	IconSimple IconMode = iota
	IconPhysical
	IconVirtual
)

// ThresholdConfig 单个资源的阈值配置
type ThresholdConfig struct {
	Percent              int    `json:"percentage"`
	Notify               bool   `json:"notify"`
	CommandEnabled       bool   `json:"call_command"`
	Command              string `json:"command"`
	CommandDelaySeconds  int    `json:"command_call_delay"`
	CommandRepeatMinutes int    `json:"command_call_repeat"`
}

// RepeatEnabled reports whether the repeating command timer should run while over threshold
func (c ThresholdConfig) RepeatEnabled() bool {
	return c.CommandEnabled && c.CommandRepeatMinutes > 0
}

// RepeatInterval is the delay between repeated command runs
func (c ThresholdConfig) RepeatInterval() time.Duration {
	return time.Duration(c.CommandRepeatMinutes) * time.Minute
}

// CommandCooldown is the minimum gap between threshold driven command runs
func (c ThresholdConfig) CommandCooldown() time.Duration {
	return time.Duration(c.CommandDelaySeconds) * time.Second
}

// SwapConfig adds the custom cap to the swap thresholds
type SwapConfig struct {
	ThresholdConfig
	CustomSize    bool `json:"custom_size"`
	CustomSizeMax int  `json:"custom_size_max"`
}

// CapBytes returns the custom swap cap in bytes, or 0 when disabled
func (c SwapConfig) CapBytes() uint64 {
	if !c.CustomSize || c.CustomSizeMax <= 0 {
		return 0
	}
	return uint64(c.CustomSizeMax) << 30
}

// Config 持久化的全部设置
type Config struct {
	Version           int             `json:"version"`
	Virtual           ThresholdConfig `json:"virtual"`
	Swap              SwapConfig      `json:"swap"`
	TaskBarIcon       IconMode        `json:"task_bar_icon"`
	RefreshRateMS     int             `json:"refresh_rate_ms"`
	NotifyCoolMS      int             `json:"notify_cool_ms"`
	EnableProcessList bool            `json:"enable_processlist_app"`
}

// Threshold returns the threshold settings of the given resource
func (c Config) Threshold(r Resource) ThresholdConfig {
	if r == ResourceSwap {
		return c.Swap.ThresholdConfig
	}
	return c.Virtual
}

// SetThreshold replaces the threshold settings of the given resource
func (c *Config) SetThreshold(r Resource, t ThresholdConfig) {
	if r == ResourceSwap {
		c.Swap.ThresholdConfig = t
		return
	}
	c.Virtual = t
}

// RefreshInterval is the tick cadence
func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshRateMS) * time.Millisecond
}

// NotifyCooldown is the shared notification gate
func (c Config) NotifyCooldown() time.Duration {
	return time.Duration(c.NotifyCoolMS) * time.Millisecond
}

// DefaultThreshold returns the threshold defaults for a fresh install
func DefaultThreshold() ThresholdConfig {
	return ThresholdConfig{
		Percent:             DefaultPercent,
		CommandDelaySeconds: DefaultCommandDelay,
	}
}

// DefaultConfig returns the settings written on first run
func DefaultConfig() Config {
	return Config{
		Version: ConfigVersion,
		Virtual: DefaultThreshold(),
		Swap: SwapConfig{
			ThresholdConfig: DefaultThreshold(),
			CustomSizeMax:   MinCustomCapGB,
		},
		TaskBarIcon:   IconSimple,
		RefreshRateMS: DefaultRefreshMS,
		NotifyCoolMS:  DefaultNotifyCoolMS,
	}
}
