package util

import (
	"fmt"
	"strings"
)

// FormatBytes 格式化字节大小为人类可读的格式
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatMB renders a byte count in megabytes with one decimal, as shown in process rows
func FormatMB(bytes uint64) string {
	return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
}

// GaugeBar draws a text gauge of width cells for percent
func GaugeBar(percent float64, width int) string {
	if width <= 0 {
		return "[]"
	}
	filled := int(percent / 100 * float64(width))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}
