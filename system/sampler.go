package system

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/dreamsxin/ramnotify/types"
)

// Sampler reads current physical and swap usage from the OS
type Sampler interface {
	Sample(ctx context.Context) (physical, swap types.MemoryReading, err error)
}

// MemorySampler is the gopsutil backed Sampler
type MemorySampler struct {
	virtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	swapMemory    func(ctx context.Context) (*mem.SwapMemoryStat, error)
}

// NewMemorySampler 创建内存采样器
func NewMemorySampler() *MemorySampler {
	return &MemorySampler{
		virtualMemory: mem.VirtualMemoryWithContext,
		swapMemory:    mem.SwapMemoryWithContext,
	}
}

// Sample returns both readings. Physical used is total minus available.
func (s *MemorySampler) Sample(ctx context.Context) (types.MemoryReading, types.MemoryReading, error) {
	vm, err := s.virtualMemory(ctx)
	if err != nil {
		return types.MemoryReading{}, types.MemoryReading{}, fmt.Errorf("failed to read memory stats: %w", err)
	}
	sw, err := s.swapMemory(ctx)
	if err != nil {
		return types.MemoryReading{}, types.MemoryReading{}, fmt.Errorf("failed to read swap stats: %w", err)
	}

	physical := types.MemoryReading{
		Total:     vm.Total,
		Available: vm.Available,
	}
	if vm.Total > vm.Available {
		physical.Used = vm.Total - vm.Available
	}

	swap := types.MemoryReading{
		Total:     sw.Total,
		Used:      sw.Used,
		Available: sw.Free,
	}
	return physical, swap, nil
}

// SwapPercent computes swap usage. With a non-zero cap the percent is taken
// against the cap and clamped to 0..100, since a user cap can be smaller than
// actual usage. Without a cap the OS total is used.
func SwapPercent(swap types.MemoryReading, capBytes uint64) float64 {
	if capBytes == 0 {
		return swap.Percent()
	}
	pct := float64(swap.Used) / float64(capBytes) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
