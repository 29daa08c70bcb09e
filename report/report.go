package report

type Measurement[T any] struct {
	Time  int64
	Value T
}

type DeviceMeasurement[T any] struct {
	DeviceName  string
	Measurement Measurement[T]
}

type SystemMeasurements struct {
	CpuUsageUser      []Measurement[float64]
	CpuUsageSystem    []Measurement[float64]
	CpuUsageIdle      []Measurement[float64]
	CpuUsageNice      []Measurement[float64]
	CpuUsageIowait    []Measurement[float64]
	CpuUsageIrq       []Measurement[float64]
	CpuUsageSoftIrq   []Measurement[float64]
	CpuUsageSteal     []Measurement[float64]
	CpuUsageGuest     []Measurement[float64]
	CpuUsageGuestNice []Measurement[float64]

	MemTotalBytes  []Measurement[int]
	MemUsedBytes   []Measurement[int]
	MemUsedPct     []Measurement[float64]
	MemAvailBytes  []Measurement[int]
	MemAvailPct    []Measurement[float64]
	SwapTotalBytes []Measurement[int]
	SwapUsedBytes  []Measurement[int]
	SwapUsedPct    []Measurement[float64]

	DiskReadBytesPerSec  []DeviceMeasurement[int]
	DiskWriteBytesPerSec []DeviceMeasurement[int]
	DiskReadsPerSec      []DeviceMeasurement[int]
	DiskWritesPerSec     []DeviceMeasurement[int]
	DiskIOTimeMs         []DeviceMeasurement[int]
	DiskIopsInProgress   []DeviceMeasurement[int]

	NetBytesSentPerSec []DeviceMeasurement[int]
	NetBytesRecvPerSec []DeviceMeasurement[int]
	NetPacketsSent     []DeviceMeasurement[int]
	NetPacketsRecv     []DeviceMeasurement[int]
}

// Units understood by the summary printer.
const (
	UnitSeconds = "s"
	UnitRecords = "records"
	UnitOps     = "ops/sec"
	UnitBytes   = "bytes"
	UnitRate    = "bytes/sec"
	UnitMicros  = "us"
	UnitMillis  = "ms"
	UnitCount   = ""
)

// Metric is one named result of a repetition, e.g. "Query time" or "[READ] AverageLatency".
type Metric struct {
	Name  string
	Value float64
	Unit  string
}

type BenchmarkReport struct {
	Name               string
	Type               string
	Input              map[string]any
	Error              string    // non-empty iff the benchmark failed
	TotalTimeSec       []float64 // one entry for each repetition
	Metrics            [][]Metric
	Metadata           []any // one entry for each repetition
	Host               *HostInfo
	SystemMeasurements *SystemMeasurements
	StartedAt          int64
}

// Failed reports whether the benchmark failed.
func (r *BenchmarkReport) Failed() bool {
	return r.Error != ""
}
