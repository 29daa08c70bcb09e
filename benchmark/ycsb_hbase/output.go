package ycsb_hbase

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"github.com/Octogonapus/ClusterBench/report"
)

var reported = map[string]string{
	"RunTime(ms)":               "ms",
	"Throughput(ops/sec)":       report.UnitOps,
	"Operations":                report.UnitCount,
	"AverageLatency(us)":        report.UnitMicros,
	"MinLatency(us)":            report.UnitMicros,
	"MaxLatency(us)":            report.UnitMicros,
	"95thPercentileLatency(us)": report.UnitMicros,
	"99thPercentileLatency(us)": report.UnitMicros,
}

// parseOutput collects the "[SECTION], Metric, value" lines YCSB prints when it finishes.
func parseOutput(out []byte) []report.Metric {
	var metrics []report.Metric
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "[") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 3 {
			continue
		}
		section := strings.TrimSpace(parts[0])
		name := strings.TrimSpace(parts[1])
		unit, ok := reported[name]
		if !ok || section == "[CLEANUP]" {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			continue
		}
		metrics = append(metrics, report.Metric{Name: section + " " + name, Value: v, Unit: unit})
	}
	return metrics
}
