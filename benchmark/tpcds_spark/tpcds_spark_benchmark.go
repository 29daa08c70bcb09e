package tpcds_spark

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/Octogonapus/ClusterBench/benchmark"
	"github.com/Octogonapus/ClusterBench/benchmark/tpcds"
	"github.com/Octogonapus/ClusterBench/cluster"
	"github.com/Octogonapus/ClusterBench/report"
	"github.com/Octogonapus/ClusterBench/util"
	"github.com/docker/go-units"
	"go.uber.org/zap"
)

//go:embed q99.py.tmpl
var scriptTemplate string

var script = template.Must(template.New("q99.py").Parse(scriptTemplate))

type bmark struct {
	input *TPCDSSparkInput
}

type TPCDSSparkInput struct {
	Name   string
	Master string
	Image  string
	// HDFS path the query result is written to. Removed at the start of every run.
	Output            string
	ShufflePartitions int
	ExecutorMemory    string
	ExecutorCores     int
	tpcds.DataInput   `mapstructure:",squash"`
}

type scriptData struct {
	Master            string
	BasePath          string
	ScaleFactor       int
	ShufflePartitions int
	Tables            []tpcds.Table
	Query             string
	Output            string
}

func init() {
	benchmark.RegisterBenchmark("tpcds-spark", func(a map[string]any) (benchmark.Benchmark, error) {
		input := &TPCDSSparkInput{}
		err := benchmark.DecodeInput(a, input)
		if err != nil {
			return nil, fmt.Errorf("can't convert input to TPCDSSparkInput: %w", err)
		}
		return NewTPCDSSparkBenchmark(input)
	})
}

func NewTPCDSSparkBenchmark(input *TPCDSSparkInput) (benchmark.Benchmark, error) {
	if input.Name == "" {
		input.Name = "tpcds-spark"
	}
	if input.Master == "" {
		input.Master = "spark://localhost:7077"
	}
	if input.Image == "" {
		input.Image = cluster.DefaultSparkImage
	}
	if input.ShufflePartitions == 0 {
		input.ShufflePartitions = 64
	}
	if input.ExecutorMemory == "" {
		input.ExecutorMemory = "1g"
	}
	if input.ExecutorCores == 0 {
		input.ExecutorCores = 1
	}
	_, err := units.RAMInBytes(input.ExecutorMemory)
	if err != nil {
		return nil, fmt.Errorf("invalid executor memory %q: %w", input.ExecutorMemory, err)
	}
	input.WithDefaults()
	return &bmark{input: input}, nil
}

func (b *bmark) GetName() string { return b.input.Name }

func (b *bmark) GetInput() map[string]any { return util.StructMap(b.input) }

func (b *bmark) Generate(ctx *benchmark.BenchmarkContext) error {
	return tpcds.Generate(ctx, &b.input.DataInput)
}

func (b *bmark) Prepare(ctx *benchmark.BenchmarkContext) error {
	ctx.Printf("Preparing TPC-DS data...\n  Scale factor: %d\n  HDFS base: %s\n", b.input.ScaleFactor, b.input.HDFSBase)
	return tpcds.EnsureData(ctx, &b.input.DataInput)
}

func (b *bmark) Cleanup(ctx *benchmark.BenchmarkContext) error {
	if b.input.Output == "" {
		return nil
	}
	ctx.Printf("Removing previous output at %s...\n", b.input.Output)
	var out bytes.Buffer
	err := ctx.Env.Engine.Exec(ctx.Ctx, b.input.Namenode, []string{"hdfs", "dfs", "-rm", "-r", "-f", b.input.Output}, nil, &out, &out)
	if err != nil {
		return fmt.Errorf("removing %s failed: %s: %w", b.input.Output, util.LastNonEmptyLine(out.Bytes()), err)
	}
	return nil
}

func (b *bmark) Run(ctx *benchmark.BenchmarkContext) (*benchmark.BenchmarkOutput, error) {
	ctx.Printf("Running TPC-DS Query 99 benchmark...\n  Master: %s\n  Scale factor: %d\n  HDFS base: %s\n",
		b.input.Master, b.input.ScaleFactor, b.input.HDFSBase)
	err := b.Cleanup(ctx)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = script.Execute(&buf, scriptData{
		Master:            b.input.Master,
		BasePath:          fmt.Sprintf("%s/raw/sf%d", b.input.HDFSBase, b.input.ScaleFactor),
		ScaleFactor:       b.input.ScaleFactor,
		ShufflePartitions: b.input.ShufflePartitions,
		Tables:            tpcds.Tables,
		Query:             strings.TrimSpace(tpcds.Query99),
		Output:            b.input.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering the PySpark script failed: %w", err)
	}

	var out bytes.Buffer
	start := time.Now()
	err = cluster.SparkSubmitReader(ctx.Ctx, ctx.Env, &cluster.SparkSubmitInput{
		Image:          b.input.Image,
		Master:         b.input.Master,
		Script:         fmt.Sprintf("tpcds_q99_sf%d.py", b.input.ScaleFactor),
		ExecutorMemory: b.input.ExecutorMemory,
		ExecutorCores:  b.input.ExecutorCores,
	}, &buf, io.MultiWriter(ctx.Writer(), &out))
	if err != nil {
		return nil, fmt.Errorf("spark-submit failed: %w", err)
	}
	total := time.Since(start).Seconds()

	metrics, err := parseOutput(out.Bytes())
	if err != nil {
		return nil, err
	}
	zap.L().Debug("parsed spark output", zap.Any("metrics", metrics))
	return &benchmark.BenchmarkOutput{TotalTimeSec: total, Metrics: metrics}, nil
}

var (
	loadTimeRe  = regexp.MustCompile(`(?m)^Load time:\s+([0-9.]+) seconds`)
	queryTimeRe = regexp.MustCompile(`(?m)^Query time:\s+([0-9.]+) seconds`)
	rowsRe      = regexp.MustCompile(`(?m)^Rows: (\d+)`)
)

// parseOutput reads the timing lines the PySpark script prints.
func parseOutput(out []byte) ([]report.Metric, error) {
	var metrics []report.Metric
	for _, m := range []struct {
		re   *regexp.Regexp
		name string
		unit string
	}{
		{loadTimeRe, "Load time", report.UnitSeconds},
		{queryTimeRe, "Query time", report.UnitSeconds},
		{rowsRe, "Rows returned", report.UnitCount},
	} {
		match := m.re.FindSubmatch(out)
		if match == nil {
			continue
		}
		v, err := strconv.ParseFloat(string(match[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %s failed: %w", m.name, err)
		}
		metrics = append(metrics, report.Metric{Name: m.name, Value: v, Unit: m.unit})
	}
	if len(metrics) == 0 {
		return nil, fmt.Errorf("no timings in spark-submit output: %s", util.LastNonEmptyLine(out))
	}
	return metrics, nil
}
