package systemmonitor

import (
	"strconv"
	"strings"
	"time"

	"github.com/Octogonapus/ClusterBench/report"
)

// Column order of the aggregate "cpu" line in /proc/stat.
const (
	cpuUser = iota
	cpuNice
	cpuSystem
	cpuIdle
	cpuIowait
	cpuIrq
	cpuSoftIrq
	cpuSteal
	cpuGuest
	cpuGuestNice
	cpuColumns
)

type cpuTimes [cpuColumns]int

// total excludes guest time, which the kernel already counts in user and nice.
func (c *cpuTimes) total() int {
	sum := 0
	for i := cpuUser; i <= cpuSteal; i++ {
		sum += c[i]
	}
	return sum
}

func parseCPUTimes(buf []byte) *cpuTimes {
	for _, line := range strings.Split(string(buf), "\n") {
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		parts := strings.Fields(line)[1:]
		var c cpuTimes
		for i := 0; i < cpuColumns && i < len(parts); i++ {
			c[i], _ = strconv.Atoi(parts[i])
		}
		return &c
	}
	return nil
}

func (mon *systemMonitor) appendCPUMetrics(now time.Time, curr, prev *cpuTimes) {
	delta := float64(curr.total() - prev.total())
	if delta <= 0 {
		return
	}
	pct := func(v int) report.Measurement[float64] {
		return report.Measurement[float64]{Time: now.Unix(), Value: 100 * float64(v) / delta}
	}
	d := func(i int) int { return curr[i] - prev[i] }

	mon.sm.CpuUsageUser = append(mon.sm.CpuUsageUser, pct(d(cpuUser)-d(cpuGuest)))
	mon.sm.CpuUsageNice = append(mon.sm.CpuUsageNice, pct(d(cpuNice)-d(cpuGuestNice)))
	mon.sm.CpuUsageSystem = append(mon.sm.CpuUsageSystem, pct(d(cpuSystem)))
	mon.sm.CpuUsageIdle = append(mon.sm.CpuUsageIdle, pct(d(cpuIdle)))
	mon.sm.CpuUsageIowait = append(mon.sm.CpuUsageIowait, pct(d(cpuIowait)))
	mon.sm.CpuUsageIrq = append(mon.sm.CpuUsageIrq, pct(d(cpuIrq)))
	mon.sm.CpuUsageSoftIrq = append(mon.sm.CpuUsageSoftIrq, pct(d(cpuSoftIrq)))
	mon.sm.CpuUsageSteal = append(mon.sm.CpuUsageSteal, pct(d(cpuSteal)))
	mon.sm.CpuUsageGuest = append(mon.sm.CpuUsageGuest, pct(d(cpuGuest)))
	mon.sm.CpuUsageGuestNice = append(mon.sm.CpuUsageGuestNice, pct(d(cpuGuestNice)))
}
