package system

import (
	"fmt"
	"sync"

	"github.com/dreamsxin/ramnotify/types"
)

// DefaultHistorySize is the number of points kept for the usage chart
const DefaultHistorySize = 60

// History 内存使用历史，供双曲线图表使用
type History struct {
	mu     sync.RWMutex
	size   int
	points []types.HistoryPoint
}

// NewHistory creates a bounded history; size <= 0 uses DefaultHistorySize
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{
		size:   size,
		points: make([]types.HistoryPoint, 0, size),
	}
}

// Add appends a point, dropping the oldest once full
func (h *History) Add(p types.HistoryPoint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.points = append(h.points, p)
	if len(h.points) > h.size {
		h.points = h.points[len(h.points)-h.size:]
	}
}

// GetHistory 获取历史数据
func (h *History) GetHistory(count int) []types.HistoryPoint {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if count <= 0 || count > len(h.points) {
		count = len(h.points)
	}

	start := len(h.points) - count
	result := make([]types.HistoryPoint, count)
	copy(result, h.points[start:])
	return result
}

// GetChartData builds the dual-line chart in megabytes, swap first so physical draws on top
func (h *History) GetChartData(count int) (*types.ChartData, error) {
	history := h.GetHistory(count)
	if len(history) == 0 {
		return nil, fmt.Errorf("no data available")
	}

	chartData := &types.ChartData{
		Labels: make([]string, len(history)),
	}
	for i, p := range history {
		chartData.Labels[i] = p.Timestamp.Format("15:04:05")
	}

	last := history[len(history)-1]
	chartData.Datasets = []types.Dataset{
		{
			Label:           "Logical memory (MB)",
			Data:            extractSwapData(history),
			Max:             toMB(last.SwapMax),
			BorderColor:     "rgb(210, 162, 39)",
			BackgroundColor: "rgba(210, 162, 39, 0.16)",
			Fill:            true,
		},
		{
			Label:           "Physical memory (MB)",
			Data:            extractPhysicalData(history),
			Max:             toMB(last.PhysicalMax),
			BorderColor:     "rgb(170, 80, 180)",
			BackgroundColor: "rgba(170, 80, 180, 0.27)",
			Fill:            true,
		},
	}
	return chartData, nil
}

func extractPhysicalData(history []types.HistoryPoint) []float64 {
	result := make([]float64, len(history))
	for i, p := range history {
		result[i] = toMB(p.PhysicalUsed)
	}
	return result
}

func extractSwapData(history []types.HistoryPoint) []float64 {
	result := make([]float64, len(history))
	for i, p := range history {
		result[i] = toMB(p.SwapUsed)
	}
	return result
}

func toMB(b uint64) float64 {
	return float64(b) / (1024 * 1024)
}
