package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/Octogonapus/ClusterBench/util"
	"github.com/dustin/go-humanize"
)

// FormatValue renders a metric value for its unit.
func FormatValue(m Metric) string {
	switch m.Unit {
	case UnitSeconds:
		return fmt.Sprintf("%.2f seconds", m.Value)
	case UnitRecords:
		return humanize.Comma(int64(m.Value)) + " records"
	case UnitOps:
		return humanize.CommafWithDigits(m.Value, 2) + " ops/sec"
	case UnitBytes:
		return humanize.IBytes(uint64(m.Value))
	case UnitRate:
		return humanize.IBytes(uint64(m.Value)) + "/s"
	case UnitMicros:
		return fmt.Sprintf("%.2f us", m.Value)
	case UnitMillis:
		return fmt.Sprintf("%.2f ms", m.Value)
	case UnitCount:
		if m.Value == float64(int64(m.Value)) {
			return humanize.Comma(int64(m.Value))
		}
		return humanize.CommafWithDigits(m.Value, 2)
	default:
		return fmt.Sprintf("%s %s", humanize.CommafWithDigits(m.Value, 2), m.Unit)
	}
}

// PrintSummary writes the "Benchmark Summary" block for one repetition.
func PrintSummary(w io.Writer, metrics []Metric, totalTimeSec float64) {
	width := 0
	for _, m := range metrics {
		width = max(width, len(m.Name))
	}
	fmt.Fprintln(w)
	util.Banner(w, "Benchmark Summary")
	for _, m := range metrics {
		fmt.Fprintf(w, "%s:%s %s\n", m.Name, strings.Repeat(" ", width-len(m.Name)), FormatValue(m))
	}
	fmt.Fprintf(w, "Total time: %.2f seconds\n", totalTimeSec)
	util.Rule(w)
}

// PrintReport writes one summary per completed repetition, then the error if the benchmark failed.
func PrintReport(w io.Writer, rep *BenchmarkReport) {
	for i, total := range rep.TotalTimeSec {
		if len(rep.TotalTimeSec) > 1 {
			fmt.Fprintf(w, "\n%s: repetition %d of %d\n", rep.Name, i+1, len(rep.TotalTimeSec))
		}
		var metrics []Metric
		if i < len(rep.Metrics) {
			metrics = rep.Metrics[i]
		}
		PrintSummary(w, metrics, total)
	}
	if rep.Failed() {
		fmt.Fprintf(w, "\n%s failed: %s\n", rep.Name, rep.Error)
	}
}
