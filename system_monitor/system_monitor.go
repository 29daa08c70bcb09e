package systemmonitor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Octogonapus/ClusterBench/report"
	"github.com/Octogonapus/ClusterBench/target"
	"go.uber.org/zap"
)

// SystemMonitor samples CPU, memory, disk and network counters of a host while a benchmark runs.
type SystemMonitor interface {
	StartMonitoring() error
	StopMonitoring()
	WaitUntilStopped()
	GetSystemMeasurements() *report.SystemMeasurements
}

type systemMonitor struct {
	target target.Target
	stop   *atomic.Bool
	wg     *sync.WaitGroup
	mu     sync.Mutex
	sm     *report.SystemMeasurements

	prevCPU  *cpuTimes
	prevDisk map[string]diskCounters
	prevNet  map[string]netCounters
	prevTime time.Time
}

func NewSystemMonitor(t target.Target) SystemMonitor {
	return &systemMonitor{
		target: t,
		stop:   &atomic.Bool{},
		wg:     &sync.WaitGroup{},
		sm:     &report.SystemMeasurements{},
	}
}

var loopTime = 1 * time.Second
var maxJitter = 1 * time.Second

func (mon *systemMonitor) StartMonitoring() error {
	_, err := mon.target.RunCommand("cat /proc/stat")
	if err != nil {
		return fmt.Errorf("reading /proc/stat on %s failed: %w", mon.target, err)
	}
	mon.stop.Store(false)
	mon.wg.Add(1)
	go mon.runMonitor()
	return nil
}

func (mon *systemMonitor) StopMonitoring() {
	mon.stop.Store(true)
}

func (mon *systemMonitor) WaitUntilStopped() {
	mon.wg.Wait()
}

func (mon *systemMonitor) GetSystemMeasurements() *report.SystemMeasurements {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	return mon.sm
}

func (mon *systemMonitor) runMonitor() {
	defer mon.wg.Done()
	lastWakeTime := time.Now()
	for !mon.stop.Load() {
		jitter := time.Since(lastWakeTime) - loopTime
		if jitter > maxJitter {
			zap.L().Warn("system monitor jitter exceeded maximum", zap.Duration("jitter", jitter), zap.Duration("max", maxJitter))
		}
		lastWakeTime = time.Now()
		mon.sample()
		time.Sleep(loopTime)
	}
	zap.L().Debug("system monitor stopped", zap.String("target", mon.target.String()))
}

// sample reads every counter file once. A file that cannot be read is skipped for this sample.
func (mon *systemMonitor) sample() {
	now := time.Now()
	mon.mu.Lock()
	defer mon.mu.Unlock()

	if buf := mon.read("/proc/stat"); buf != nil {
		curr := parseCPUTimes(buf)
		if curr != nil && mon.prevCPU != nil {
			mon.appendCPUMetrics(now, curr, mon.prevCPU)
		}
		mon.prevCPU = curr
	}
	if buf := mon.read("/proc/meminfo"); buf != nil {
		mon.appendMemoryMetrics(now, parseMemInfo(buf))
	}

	elapsed := now.Sub(mon.prevTime).Seconds()
	if buf := mon.read("/proc/diskstats"); buf != nil {
		curr := parseDiskStats(buf)
		if mon.prevDisk != nil {
			mon.appendDiskIOMetrics(now, curr, mon.prevDisk, elapsed)
		}
		mon.prevDisk = curr
	}
	if buf := mon.read("/proc/net/dev"); buf != nil {
		curr := parseNetDev(buf)
		if mon.prevNet != nil {
			mon.appendNetworkMetrics(now, curr, mon.prevNet, elapsed)
		}
		mon.prevNet = curr
	}
	mon.prevTime = now
}

func (mon *systemMonitor) read(path string) []byte {
	buf, err := mon.target.RunCommand("cat " + path)
	if err != nil {
		zap.L().Warn("system monitor failed to read counters", zap.String("path", path), zap.Error(err))
		return nil
	}
	return buf
}
