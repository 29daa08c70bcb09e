package systemmonitor

import (
	"strconv"
	"strings"
	"time"

	"github.com/Octogonapus/ClusterBench/report"
)

const sectorBytes = 512

type diskCounters struct {
	reads, sectorsRead, writes, sectorsWritten, inProgress, ioTimeMs int
}

// parseDiskStats reads /proc/diskstats keyed by device name. Partitions and loop devices are included;
// consumers filter by name.
func parseDiskStats(buf []byte) map[string]diskCounters {
	out := map[string]diskCounters{}
	for _, line := range strings.Split(string(buf), "\n") {
		parts := strings.Fields(line)
		if len(parts) < 14 {
			continue
		}
		field := func(i int) int {
			v, _ := strconv.Atoi(parts[i])
			return v
		}
		out[parts[2]] = diskCounters{
			reads:          field(3),
			sectorsRead:    field(5),
			writes:         field(7),
			sectorsWritten: field(9),
			inProgress:     field(11),
			ioTimeMs:       field(12),
		}
	}
	return out
}

func (mon *systemMonitor) appendDiskIOMetrics(now time.Time, curr, prev map[string]diskCounters, elapsedSec float64) {
	if elapsedSec <= 0 {
		return
	}
	rate := func(c, p int) int { return int(float64(c-p) / elapsedSec) }
	for dev, c := range curr {
		p, ok := prev[dev]
		if !ok {
			continue
		}
		m := func(v int) report.DeviceMeasurement[int] {
			return report.DeviceMeasurement[int]{DeviceName: dev, Measurement: report.Measurement[int]{Time: now.Unix(), Value: v}}
		}
		mon.sm.DiskReadBytesPerSec = append(mon.sm.DiskReadBytesPerSec, m(rate(c.sectorsRead, p.sectorsRead)*sectorBytes))
		mon.sm.DiskWriteBytesPerSec = append(mon.sm.DiskWriteBytesPerSec, m(rate(c.sectorsWritten, p.sectorsWritten)*sectorBytes))
		mon.sm.DiskReadsPerSec = append(mon.sm.DiskReadsPerSec, m(rate(c.reads, p.reads)))
		mon.sm.DiskWritesPerSec = append(mon.sm.DiskWritesPerSec, m(rate(c.writes, p.writes)))
		mon.sm.DiskIOTimeMs = append(mon.sm.DiskIOTimeMs, m(c.ioTimeMs-p.ioTimeMs))
		mon.sm.DiskIopsInProgress = append(mon.sm.DiskIopsInProgress, m(c.inProgress))
	}
}
