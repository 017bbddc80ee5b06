package types

import (
	"math"
	"time"
)

// Resource identifies one of the two monitored memory pools
type Resource int

const (
	// ResourcePhysical is RAM
	ResourcePhysical Resource = iota
	// ResourceSwap is swap, shown as "logical" memory
	ResourceSwap
)

// String returns the resource name used in logs, metrics and config sections
func (r Resource) String() string {
	switch r {
	case ResourcePhysical:
		return "physical"
	case ResourceSwap:
		return "swap"
	default:
		return "unknown"
	}
}

// Label returns the human readable resource label
func (r Resource) Label() string {
	if r == ResourceSwap {
		return "Logical memory"
	}
	return "Physical memory"
}

// MemoryReading 内存使用快照
type MemoryReading struct {
	Total     uint64 `json:"total"`
	Used      uint64 `json:"used"`
	Available uint64 `json:"available"`
}

// Percent returns used/total*100, or 0 when total is unknown
func (m MemoryReading) Percent() float64 {
	if m.Total == 0 {
		return 0
	}
	return float64(m.Used) / float64(m.Total) * 100
}

// ResourceStatus is what the presentation layer renders for one resource
type ResourceStatus struct {
	Resource  Resource      `json:"-"`
	Name      string        `json:"name"`
	Percent   float64       `json:"percent"`
	Reading   MemoryReading `json:"reading"`
	Threshold int           `json:"threshold"`
	Over      bool          `json:"over"`
	Busy      bool          `json:"command_running"`
	Gauge     string        `json:"gauge"`
}

// Status 每次采样后的整体状态
type Status struct {
	Timestamp time.Time      `json:"timestamp"`
	Physical  ResourceStatus `json:"physical"`
	Swap      ResourceStatus `json:"swap"`
	IconLevel int            `json:"icon_level"`
}

// HistoryPoint 历史曲线上的一个点
type HistoryPoint struct {
	Timestamp    time.Time `json:"timestamp"`
	PhysicalUsed uint64    `json:"physical_used"`
	PhysicalMax  uint64    `json:"physical_total"`
	SwapUsed     uint64    `json:"swap_used"`
	SwapMax      uint64    `json:"swap_total"`
}

// ChartData 图表数据
type ChartData struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// Dataset 数据集
type Dataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	Max             float64   `json:"max"`
	BorderColor     string    `json:"borderColor,omitempty"`
	BackgroundColor string    `json:"backgroundColor,omitempty"`
	Fill            bool      `json:"fill,omitempty"`
}

// IconLevel maps the configured tray icon mode to a gauge level 0..10.
// Halves round to even.
func IconLevel(mode IconMode, physicalPercent, swapPercent float64) int {
	var pct float64
	switch mode {
	case IconPhysical:
		pct = physicalPercent
	case IconVirtual:
		pct = swapPercent
	default:
		return 0
	}
	level := int(math.RoundToEven(pct / 10))
	if level < 0 {
		return 0
	}
	if level > 10 {
		return 10
	}
	return level
}
