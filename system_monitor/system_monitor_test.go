package systemmonitor

import (
	"errors"
	"testing"
	"time"

	"github.com/Octogonapus/ClusterBench/target/targettest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const procStat1 = "cpu  100 0 100 800 0 0 0 0 0 0\ncpu0 100 0 100 800 0 0 0 0 0 0\n"
const procStat2 = "cpu  150 0 150 900 0 0 0 0 0 0\ncpu0 150 0 150 900 0 0 0 0 0 0\n"

const memInfoFixture = `MemTotal:        1000 kB
MemFree:          200 kB
MemAvailable:     600 kB
Buffers:          100 kB
Cached:           200 kB
SwapCached:         0 kB
SwapTotal:        400 kB
SwapFree:         300 kB
SReclaimable:       0 kB
`

const diskStats1 = "   8       0 sda 10 0 100 0 20 0 200 0 0 50 0 0 0 0 0 0 0\n"
const diskStats2 = "   8       0 sda 20 0 300 0 40 0 600 0 2 150 0 0 0 0 0 0 0\n"

const netDev1 = `Inter-|   Receive                                                |  Transmit
 face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed
  eth0:    1000      10    0    0    0     0          0         0     2000      20    0    0    0     0       0          0
`
const netDev2 = `Inter-|   Receive                                                |  Transmit
 face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed
  eth0:    3000      15    0    0    0     0          0         0     6000      30    0    0    0     0       0          0
`

func TestParseCPUTimes(t *testing.T) {
	c := parseCPUTimes([]byte(procStat1))
	require.NotNil(t, c)
	assert.Equal(t, 800, c[cpuIdle])
	assert.Equal(t, 1000, c.total())
	assert.Nil(t, parseCPUTimes([]byte("intr 1 2 3\n")))
}

func TestParseMemInfo(t *testing.T) {
	m := parseMemInfo([]byte(memInfoFixture))
	assert.Equal(t, 1000*1024, m.total)
	assert.Equal(t, 600*1024, m.available)
	assert.Equal(t, 200*1024, m.cached)
}

func TestSampleComputesRates(t *testing.T) {
	tgt := targettest.New()
	mon := NewSystemMonitor(tgt).(*systemMonitor)

	tgt.Responses["/proc/stat"] = targettest.Response{Output: procStat1}
	tgt.Responses["/proc/meminfo"] = targettest.Response{Output: memInfoFixture}
	tgt.Responses["/proc/diskstats"] = targettest.Response{Output: diskStats1}
	tgt.Responses["/proc/net/dev"] = targettest.Response{Output: netDev1}
	mon.sample()
	mon.prevTime = mon.prevTime.Add(-2 * time.Second)

	tgt.Responses["/proc/stat"] = targettest.Response{Output: procStat2}
	tgt.Responses["/proc/diskstats"] = targettest.Response{Output: diskStats2}
	tgt.Responses["/proc/net/dev"] = targettest.Response{Output: netDev2}
	mon.sample()

	sm := mon.GetSystemMeasurements()
	require.Len(t, sm.CpuUsageUser, 1)
	assert.InDelta(t, 25.0, sm.CpuUsageUser[0].Value, 0.01)
	assert.InDelta(t, 50.0, sm.CpuUsageIdle[0].Value, 0.01)

	require.Len(t, sm.MemTotalBytes, 2)
	assert.Equal(t, 1000*1024, sm.MemTotalBytes[0].Value)
	assert.InDelta(t, 50.0, sm.MemUsedPct[0].Value, 0.01)
	assert.InDelta(t, 25.0, sm.SwapUsedPct[0].Value, 0.01)

	require.Len(t, sm.DiskReadBytesPerSec, 1)
	assert.Equal(t, "sda", sm.DiskReadBytesPerSec[0].DeviceName)
	assert.InDelta(t, 100*sectorBytes, sm.DiskReadBytesPerSec[0].Measurement.Value, 2*sectorBytes)
	assert.InDelta(t, 5, sm.DiskReadsPerSec[0].Measurement.Value, 1)
	assert.Equal(t, 2, sm.DiskIopsInProgress[0].Measurement.Value)

	require.Len(t, sm.NetBytesRecvPerSec, 1)
	assert.Equal(t, "eth0", sm.NetBytesRecvPerSec[0].DeviceName)
	assert.InDelta(t, 1000, sm.NetBytesRecvPerSec[0].Measurement.Value, 10)
	assert.Equal(t, 10, sm.NetPacketsSent[0].Measurement.Value)
}

func TestSampleSkipsUnreadableFiles(t *testing.T) {
	tgt := targettest.New()
	tgt.Responses["/proc/meminfo"] = targettest.Response{Err: errors.New("permission denied")}
	tgt.Responses["/proc/stat"] = targettest.Response{Output: procStat1}
	mon := NewSystemMonitor(tgt).(*systemMonitor)
	mon.sample()
	assert.Empty(t, mon.GetSystemMeasurements().MemTotalBytes)
	assert.NotNil(t, mon.prevCPU)
}

func TestStartStop(t *testing.T) {
	loop := loopTime
	loopTime = 5 * time.Millisecond
	t.Cleanup(func() { loopTime = loop })

	tgt := targettest.New()
	tgt.Responses["/proc/stat"] = targettest.Response{Err: errors.New("no such file")}
	require.Error(t, NewSystemMonitor(tgt).StartMonitoring())

	tgt = targettest.New()
	tgt.Responses["/proc/meminfo"] = targettest.Response{Output: memInfoFixture}
	mon := NewSystemMonitor(tgt)
	require.NoError(t, mon.StartMonitoring())
	time.Sleep(30 * time.Millisecond)
	mon.StopMonitoring()
	mon.WaitUntilStopped()
	assert.NotEmpty(t, mon.GetSystemMeasurements().MemTotalBytes)
}
