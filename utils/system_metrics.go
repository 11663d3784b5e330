package utils

import (
	"context"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"attendguard/logger"
)

type SystemSnapshot struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// GetCPUUsage returns the CPU usage since the previous call as a percentage
func GetCPUUsage() float64 {
	percentage, err := cpu.Percent(0, false)
	if err != nil {
		logger.Warn(context.Background()).Err(err).Msg("error getting CPU usage")
		return 0
	}
	if len(percentage) > 0 {
		return percentage[0]
	}
	return 0
}

// GetMemoryUsage returns the used share of physical memory as a percentage
func GetMemoryUsage() float64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		logger.Warn(context.Background()).Err(err).Msg("error getting memory usage")
		return 0
	}
	return vm.UsedPercent
}

func GetSystemSnapshot() SystemSnapshot {
	return SystemSnapshot{
		CPUPercent:    GetCPUUsage(),
		MemoryPercent: GetMemoryUsage(),
	}
}
