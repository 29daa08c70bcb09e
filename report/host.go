package report

import (
	"runtime"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"
	"go.uber.org/zap"
)

// HostInfo describes the machine clusterbench ran on.
type HostInfo struct {
	Arch       string
	Hostname   string
	Platform   string
	Kernel     string
	CPUModel   string
	CPUCount   int
	CPUFreqMHz float64
	RAMBytes   uint64
}

// CollectHostInfo gathers what it can about the local host. Fields it cannot read are left zero.
func CollectHostInfo() *HostInfo {
	info := &HostInfo{Arch: runtime.GOARCH}

	hostStat, err := host.Info()
	if err != nil {
		zap.L().Debug("reading host info failed", zap.Error(err))
	} else {
		info.Hostname = hostStat.Hostname
		info.Platform = hostStat.Platform
		info.Kernel = hostStat.KernelVersion
	}

	cpuStat, err := cpu.Info()
	if err != nil {
		zap.L().Debug("reading cpu info failed", zap.Error(err))
	} else if len(cpuStat) > 0 {
		totalFreq := 0.0
		for _, c := range cpuStat {
			totalFreq += c.Mhz
		}
		info.CPUModel = cpuStat[0].ModelName
		info.CPUFreqMHz = totalFreq / float64(len(cpuStat))
	}
	count, err := cpu.Counts(true)
	if err == nil {
		info.CPUCount = count
	}

	vmStat, err := mem.VirtualMemory()
	if err != nil {
		zap.L().Debug("reading memory info failed", zap.Error(err))
	} else {
		info.RAMBytes = vmStat.Total
	}
	return info
}
