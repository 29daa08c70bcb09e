package systemmonitor

import (
	"strconv"
	"strings"
	"time"

	"github.com/Octogonapus/ClusterBench/report"
)

type memInfo struct {
	total, free, available, buffers, cached int
	swapTotal, swapFree, swapCached         int
}

// parseMemInfo reads /proc/meminfo into bytes.
func parseMemInfo(buf []byte) memInfo {
	var m memInfo
	for _, line := range strings.Split(string(buf), "\n") {
		parts := strings.Fields(line)
		if len(parts) != 3 {
			continue
		}
		kb, _ := strconv.Atoi(parts[1])
		b := kb * 1024
		switch strings.TrimSuffix(parts[0], ":") {
		case "MemTotal":
			m.total = b
		case "MemFree":
			m.free = b
		case "MemAvailable":
			m.available = b
		case "Buffers":
			m.buffers = b
		case "Cached", "SReclaimable":
			m.cached += b
		case "SwapTotal":
			m.swapTotal = b
		case "SwapFree":
			m.swapFree = b
		case "SwapCached":
			m.swapCached = b
		}
	}
	return m
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return 100 * float64(part) / float64(whole)
}

func (mon *systemMonitor) appendMemoryMetrics(now time.Time, m memInfo) {
	if m.total == 0 {
		return
	}
	t := now.Unix()
	used := m.total - m.free - m.buffers - m.cached
	swapUsed := m.swapTotal - m.swapFree - m.swapCached

	mon.sm.MemTotalBytes = append(mon.sm.MemTotalBytes, report.Measurement[int]{Time: t, Value: m.total})
	mon.sm.MemUsedBytes = append(mon.sm.MemUsedBytes, report.Measurement[int]{Time: t, Value: used})
	mon.sm.MemUsedPct = append(mon.sm.MemUsedPct, report.Measurement[float64]{Time: t, Value: percent(used, m.total)})
	mon.sm.MemAvailBytes = append(mon.sm.MemAvailBytes, report.Measurement[int]{Time: t, Value: m.available})
	mon.sm.MemAvailPct = append(mon.sm.MemAvailPct, report.Measurement[float64]{Time: t, Value: percent(m.available, m.total)})
	mon.sm.SwapTotalBytes = append(mon.sm.SwapTotalBytes, report.Measurement[int]{Time: t, Value: m.swapTotal})
	mon.sm.SwapUsedBytes = append(mon.sm.SwapUsedBytes, report.Measurement[int]{Time: t, Value: swapUsed})
	mon.sm.SwapUsedPct = append(mon.sm.SwapUsedPct, report.Measurement[float64]{Time: t, Value: percent(swapUsed, m.swapTotal)})
}
