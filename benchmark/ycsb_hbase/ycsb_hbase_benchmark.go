package ycsb_hbase

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Octogonapus/ClusterBench/benchmark"
	"github.com/Octogonapus/ClusterBench/cluster"
	"github.com/Octogonapus/ClusterBench/report"
	"github.com/Octogonapus/ClusterBench/util"
	"github.com/alessio/shellescape"
	"go.uber.org/zap"
)

var Workloads = map[string]string{
	"a": "Update heavy (50% read, 50% update)",
	"b": "Read heavy (95% read, 5% update)",
	"c": "Read only (100% read)",
	"d": "Read latest (95% read, 5% insert)",
	"e": "Short ranges (95% scan, 5% insert)",
	"f": "Read-modify-write (50% read, 50% RMW)",
}

type bmark struct {
	input   *YCSBHBaseInput
	binding string
}

type YCSBHBaseInput struct {
	Name           string
	ZooKeeper      string
	Table          string
	Workload       string
	RecordCount    int
	OperationCount int
	Threads        int
	YCSBDir        string
	Version        string
	// HBase master container the hbase shell runs in.
	Master string
	// Overrides the release download URL.
	DownloadURL string
}

func init() {
	benchmark.RegisterBenchmark("ycsb-hbase", func(a map[string]any) (benchmark.Benchmark, error) {
		input := &YCSBHBaseInput{}
		err := benchmark.DecodeInput(a, input)
		if err != nil {
			return nil, fmt.Errorf("can't convert input to YCSBHBaseInput: %w", err)
		}
		return NewYCSBHBaseBenchmark(input)
	})
}

func NewYCSBHBaseBenchmark(input *YCSBHBaseInput) (benchmark.Benchmark, error) {
	if input.Name == "" {
		input.Name = "ycsb-hbase"
	}
	if input.ZooKeeper == "" {
		input.ZooKeeper = "localhost:2181"
	}
	if input.Table == "" {
		input.Table = "usertable"
	}
	if input.Workload == "" {
		input.Workload = "a"
	}
	input.Workload = strings.ToLower(input.Workload)
	if _, ok := Workloads[input.Workload]; !ok {
		return nil, fmt.Errorf("unknown YCSB workload %q", input.Workload)
	}
	if input.RecordCount == 0 {
		input.RecordCount = 10000
	}
	if input.OperationCount == 0 {
		input.OperationCount = 10000
	}
	if input.Threads == 0 {
		input.Threads = 1
	}
	if input.YCSBDir == "" {
		input.YCSBDir = "/tmp/ycsb"
	}
	if input.Version == "" {
		input.Version = "0.17.0"
	}
	if input.Master == "" {
		input.Master = "hbase-master"
	}
	bind, err := binding(input.Version)
	if err != nil {
		return nil, err
	}
	return &bmark{input: input, binding: bind}, nil
}

func (b *bmark) GetName() string { return b.input.Name }

func (b *bmark) GetInput() map[string]any { return util.StructMap(b.input) }

func (b *bmark) shell(ctx *benchmark.BenchmarkContext, commands string) (string, error) {
	ctx.Printf("+ echo %s | hbase shell\n", shellescape.Quote(commands))
	return cluster.HBaseShell(ctx.Ctx, ctx.Env, b.input.Master, commands)
}

func (b *bmark) dropTable(ctx *benchmark.BenchmarkContext) error {
	ctx.Printf("Cleaning up table '%s' from HBase...\n", b.input.Table)
	out, err := b.shell(ctx, fmt.Sprintf("disable '%s'; drop '%s'", b.input.Table, b.input.Table))
	if strings.Contains(out, "TableNotFoundException") || strings.Contains(out, "does not exist") {
		ctx.Printf("Table '%s' does not exist (already clean)\n", b.input.Table)
		return nil
	}
	if err != nil {
		return fmt.Errorf("dropping table %s failed: %s: %w", b.input.Table, util.LastNonEmptyLine([]byte(out)), err)
	}
	ctx.Printf("Table '%s' dropped\n", b.input.Table)
	return nil
}

func (b *bmark) createTable(ctx *benchmark.BenchmarkContext) error {
	ctx.Printf("Creating table '%s' in HBase...\n", b.input.Table)
	out, err := b.shell(ctx, fmt.Sprintf("create '%s', 'family'", b.input.Table))
	if strings.Contains(out, "TableExistsException") || strings.Contains(out, "already exists") {
		ctx.Printf("Table '%s' already exists\n", b.input.Table)
		return nil
	}
	if err != nil {
		return fmt.Errorf("creating table %s failed: %s: %w", b.input.Table, util.LastNonEmptyLine([]byte(out)), err)
	}
	ctx.Printf("Table '%s' created\n", b.input.Table)
	return nil
}

func (b *bmark) resetTable(ctx *benchmark.BenchmarkContext) error {
	err := b.dropTable(ctx)
	if err != nil {
		return err
	}
	return b.createTable(ctx)
}

func (b *bmark) Cleanup(ctx *benchmark.BenchmarkContext) error {
	return b.dropTable(ctx)
}

func (b *bmark) Prepare(ctx *benchmark.BenchmarkContext) error {
	ctx.Printf("Preparing YCSB data...\n  ZooKeeper: %s\n  Table: %s\n  YCSB dir: %s\n", b.input.ZooKeeper, b.input.Table, b.input.YCSBDir)
	err := b.Init(ctx)
	if err != nil {
		return err
	}
	err = b.resetTable(ctx)
	if err != nil {
		return err
	}
	ctx.Printf("\nYCSB data preparation complete. You can now run the benchmark.\n")
	return nil
}

func (b *bmark) Load(ctx *benchmark.BenchmarkContext) error {
	err := b.resetTable(ctx)
	if err != nil {
		return err
	}
	_, err = b.ycsb(ctx, "load", b.input.Workload)
	return err
}

func (b *bmark) Run(ctx *benchmark.BenchmarkContext) (*benchmark.BenchmarkOutput, error) {
	return b.ycsb(ctx, "run", b.input.Workload)
}

// RunAll loads workload a into a fresh table, then runs every workload against it.
func (b *bmark) RunAll(ctx *benchmark.BenchmarkContext) (*benchmark.BenchmarkOutput, error) {
	err := b.resetTable(ctx)
	if err != nil {
		return nil, err
	}
	all := &benchmark.BenchmarkOutput{}
	out, err := b.ycsb(ctx, "load", "a")
	if err != nil {
		return nil, err
	}
	merge(all, "load a", out)

	letters := make([]string, 0, len(Workloads))
	for w := range Workloads {
		letters = append(letters, w)
	}
	sort.Strings(letters)
	for _, w := range letters {
		out, err := b.ycsb(ctx, "run", w)
		if err != nil {
			return nil, err
		}
		merge(all, "run "+w, out)
	}
	return all, nil
}

func merge(all *benchmark.BenchmarkOutput, phase string, out *benchmark.BenchmarkOutput) {
	all.TotalTimeSec += out.TotalTimeSec
	for _, m := range out.Metrics {
		all.Metrics = append(all.Metrics, report.Metric{Name: phase + " " + m.Name, Value: m.Value, Unit: m.Unit})
	}
}

func (b *bmark) command(phase, workload string) string {
	zkHost, zkPort := util.SplitHostPort(b.input.ZooKeeper, "2181")
	args := []string{
		path.Join(b.input.YCSBDir, "bin", "ycsb.sh"), phase, b.binding,
		"-P", path.Join(b.input.YCSBDir, "workloads", "workload"+workload),
		"-p", "hbase.zookeeper.quorum=" + zkHost,
		"-p", "hbase.zookeeper.property.clientPort=" + zkPort,
		"-p", "table=" + b.input.Table,
		"-p", "columnfamily=family",
		"-p", "recordcount=" + strconv.Itoa(b.input.RecordCount),
		"-p", "operationcount=" + strconv.Itoa(b.input.OperationCount),
		"-threads", strconv.Itoa(b.input.Threads),
		"-s",
	}
	return shellescape.QuoteCommand(args)
}

func (b *bmark) ycsb(ctx *benchmark.BenchmarkContext, phase, workload string) (*benchmark.BenchmarkOutput, error) {
	if !b.installed(ctx) {
		return nil, fmt.Errorf("YCSB not found at %s, run init first", b.input.YCSBDir)
	}
	ctx.Printf("\n")
	ctx.Banner(fmt.Sprintf("YCSB %s - Workload %s: %s", strings.ToUpper(phase), strings.ToUpper(workload), Workloads[workload]))
	ctx.Printf("  ZooKeeper: %s\n  Table: %s\n  Record count: %d\n  Operation count: %d\n  Threads: %d\n\n",
		b.input.ZooKeeper, b.input.Table, b.input.RecordCount, b.input.OperationCount, b.input.Threads)

	cmd := b.command(phase, workload)
	ctx.Printf("+ %s\n", cmd)
	var out bytes.Buffer
	start := time.Now()
	err := ctx.Local.StreamCommand(cmd, io.MultiWriter(ctx.Writer(), &out))
	elapsed := time.Since(start).Seconds()
	if err != nil {
		return nil, fmt.Errorf("ycsb %s failed: %w", phase, err)
	}
	ctx.Printf("\n%s completed in %.2f seconds\n", strings.ToUpper(phase), elapsed)

	metrics := parseOutput(out.Bytes())
	zap.L().Debug("parsed YCSB output", zap.String("phase", phase), zap.Int("metrics", len(metrics)))
	return &benchmark.BenchmarkOutput{TotalTimeSec: elapsed, Metrics: metrics}, nil
}
