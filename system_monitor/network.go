package systemmonitor

import (
	"strconv"
	"strings"
	"time"

	"github.com/Octogonapus/ClusterBench/report"
)

type netCounters struct {
	recvBytes, recvPackets, sentBytes, sentPackets int
}

// parseNetDev reads /proc/net/dev keyed by interface name.
func parseNetDev(buf []byte) map[string]netCounters {
	out := map[string]netCounters{}
	for _, line := range strings.Split(string(buf), "\n") {
		iface, rest, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		parts := strings.Fields(rest)
		if len(parts) != 16 {
			continue
		}
		field := func(i int) int {
			v, _ := strconv.Atoi(parts[i])
			return v
		}
		out[strings.TrimSpace(iface)] = netCounters{
			recvBytes:   field(0),
			recvPackets: field(1),
			sentBytes:   field(8),
			sentPackets: field(9),
		}
	}
	return out
}

func (mon *systemMonitor) appendNetworkMetrics(now time.Time, curr, prev map[string]netCounters, elapsedSec float64) {
	if elapsedSec <= 0 {
		return
	}
	for iface, c := range curr {
		p, ok := prev[iface]
		if !ok {
			continue
		}
		m := func(v int) report.DeviceMeasurement[int] {
			return report.DeviceMeasurement[int]{DeviceName: iface, Measurement: report.Measurement[int]{Time: now.Unix(), Value: v}}
		}
		mon.sm.NetBytesSentPerSec = append(mon.sm.NetBytesSentPerSec, m(int(float64(c.sentBytes-p.sentBytes)/elapsedSec)))
		mon.sm.NetBytesRecvPerSec = append(mon.sm.NetBytesRecvPerSec, m(int(float64(c.recvBytes-p.recvBytes)/elapsedSec)))
		mon.sm.NetPacketsSent = append(mon.sm.NetPacketsSent, m(c.sentPackets-p.sentPackets))
		mon.sm.NetPacketsRecv = append(mon.sm.NetPacketsRecv, m(c.recvPackets-p.recvPackets))
	}
}
