package tpcc_mysql

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"time"

	"github.com/Octogonapus/ClusterBench/benchmark"
	"github.com/Octogonapus/ClusterBench/benchmark/mysqldb"
	"github.com/Octogonapus/ClusterBench/container"
	"github.com/Octogonapus/ClusterBench/report"
	"github.com/Octogonapus/ClusterBench/util"
	"go.uber.org/zap"
)

const (
	DefaultImage = "severalnines/sysbench:latest"
	workload     = "/usr/share/sysbench/oltp_read_write.lua"
)

type bmark struct {
	input *TPCCMySQLInput
}

type TPCCMySQLInput struct {
	Name          string
	mysqldb.Input `mapstructure:",squash"`
	// sysbench image
	Image     string
	Tables    int
	TableSize int
	Threads   int
	// Seconds the run phase lasts.
	Duration       int
	ReportInterval int
}

func init() {
	benchmark.RegisterBenchmark("tpcc-mysql", func(a map[string]any) (benchmark.Benchmark, error) {
		input := &TPCCMySQLInput{}
		err := benchmark.DecodeInput(a, input)
		if err != nil {
			return nil, fmt.Errorf("can't convert input to TPCCMySQLInput: %w", err)
		}
		return NewTPCCMySQLBenchmark(input)
	})
}

func NewTPCCMySQLBenchmark(input *TPCCMySQLInput) (benchmark.Benchmark, error) {
	if input.Name == "" {
		input.Name = "tpcc-mysql"
	}
	input.WithDefaults("tpcc")
	if input.Image == "" {
		input.Image = DefaultImage
	}
	if input.Tables == 0 {
		input.Tables = 10
	}
	if input.TableSize == 0 {
		input.TableSize = 10000
	}
	if input.Threads == 0 {
		input.Threads = 1
	}
	if input.Duration == 0 {
		input.Duration = 20
	}
	if input.ReportInterval == 0 {
		input.ReportInterval = 10
	}
	err := input.Validate()
	if err != nil {
		return nil, err
	}
	return &bmark{input: input}, nil
}

func (b *bmark) GetName() string { return b.input.Name }

func (b *bmark) GetInput() map[string]any {
	in := util.StructMap(b.input)
	delete(in, "Password")
	return in
}

func (b *bmark) Init(ctx *benchmark.BenchmarkContext) error {
	ctx.Printf("Pulling sysbench image: %s\n", b.input.Image)
	err := ctx.Env.Engine.Pull(ctx.Ctx, b.input.Image, ctx.Writer())
	if err != nil {
		return err
	}
	ctx.Printf("Init complete.\n")
	return nil
}

// resetDatabase waits for the server, then drops and recreates the benchmark database.
func (b *bmark) resetDatabase(ctx *benchmark.BenchmarkContext) error {
	host, err := ctx.Env.ResolveHost(b.input.Host)
	if err != nil {
		return err
	}
	db, err := b.input.Open(ctx.Env, "")
	if err != nil {
		return err
	}
	defer db.Close()
	ctx.Printf("Waiting for MySQL at %s:%d...\n", host, b.input.Port)
	err = mysqldb.WaitReady(ctx.Ctx, db)
	if err != nil {
		return err
	}
	ctx.Printf("Cleaning up database '%s'...\n", b.input.Database)
	err = mysqldb.ResetDatabase(ctx.Ctx, db, b.input.Database)
	if err != nil {
		return err
	}
	ctx.Printf("Database '%s' recreated\n", b.input.Database)
	return nil
}

func (b *bmark) Cleanup(ctx *benchmark.BenchmarkContext) error {
	return b.resetDatabase(ctx)
}

func (b *bmark) Prepare(ctx *benchmark.BenchmarkContext) error {
	ctx.Printf("Preparing TPC-C data...\n  Database: %s\n  Tables: %d\n  Table size: %d rows each\n",
		b.input.Database, b.input.Tables, b.input.TableSize)
	err := b.resetDatabase(ctx)
	if err != nil {
		return err
	}
	ctx.Printf("\nCreating and populating tables...\n")
	err = b.sysbench(ctx, "prepare", ctx.Writer())
	if err != nil {
		return err
	}
	ctx.Printf("\nTPC-C data preparation complete. You can now run the benchmark.\n")
	return nil
}

func (b *bmark) Run(ctx *benchmark.BenchmarkContext) (*benchmark.BenchmarkOutput, error) {
	ctx.Printf("Running TPC-C benchmark...\n  Database: %s\n  Tables: %d\n  Table size: %d\n  Threads: %d\n  Duration: %ds\n",
		b.input.Database, b.input.Tables, b.input.TableSize, b.input.Threads, b.input.Duration)

	db, err := b.input.Open(ctx.Env, "")
	if err != nil {
		return nil, err
	}
	err = mysqldb.WaitReady(ctx.Ctx, db)
	db.Close()
	if err != nil {
		return nil, err
	}

	ctx.Printf("\n")
	ctx.Banner("TPC-C BENCHMARK (OLTP Read/Write)")
	var out bytes.Buffer
	start := time.Now()
	err = b.sysbench(ctx, "run", io.MultiWriter(ctx.Writer(), &out))
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start).Seconds()

	metrics, err := parseOutput(out.Bytes())
	if err != nil {
		return nil, err
	}
	return &benchmark.BenchmarkOutput{TotalTimeSec: elapsed, Metrics: metrics}, nil
}

func (b *bmark) sysbenchSpec(host, action string) *container.Spec {
	threads := b.input.Threads
	if action != "run" {
		threads = 1
	}
	cmd := []string{
		"sysbench",
		"--mysql-host=" + host,
		"--mysql-port=" + strconv.Itoa(b.input.Port),
		"--mysql-user=" + b.input.User,
		"--mysql-password=" + b.input.Password,
		"--mysql-db=" + b.input.Database,
		"--tables=" + strconv.Itoa(b.input.Tables),
		"--table-size=" + strconv.Itoa(b.input.TableSize),
		"--threads=" + strconv.Itoa(threads),
		"--db-driver=mysql",
	}
	if action == "run" {
		cmd = append(cmd,
			"--time="+strconv.Itoa(b.input.Duration),
			"--report-interval="+strconv.Itoa(b.input.ReportInterval))
	}
	return &container.Spec{
		Image:       b.input.Image,
		HostNetwork: true,
		Cmd:         append(cmd, workload, action),
	}
}

func (b *bmark) sysbench(ctx *benchmark.BenchmarkContext, action string, stdout io.Writer) error {
	host, err := ctx.Env.ResolveHost(b.input.Host)
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	err = ctx.Env.Engine.RunOnce(ctx.Ctx, b.sysbenchSpec(host, action), stdout, &stderr)
	if err != nil {
		zap.L().Error("sysbench failed", zap.String("action", action), zap.String("stderr", stderr.String()))
		return fmt.Errorf("sysbench %s failed: %s: %w", action, util.LastNonEmptyLine(stderr.Bytes()), err)
	}
	return nil
}

var (
	perSecRegex  = regexp.MustCompile(`(?m)^\s*(transactions|queries|ignored errors|reconnects):\s+(\d+)\s+\(([\d.]+) per sec\.\)`)
	latencyRegex = regexp.MustCompile(`(?m)^\s*(min|avg|max|95th percentile):\s+([\d.]+)`)
	totalRegex   = regexp.MustCompile(`(?m)^\s*total time:\s+([\d.]+)s`)
)

var perSecNames = map[string]string{
	"transactions":   "Transactions",
	"queries":        "Queries",
	"ignored errors": "Ignored errors",
	"reconnects":     "Reconnects",
}

// parseOutput reads the final statistics block sysbench prints after a run.
func parseOutput(out []byte) ([]report.Metric, error) {
	var metrics []report.Metric
	for _, m := range perSecRegex.FindAllSubmatch(out, -1) {
		name := perSecNames[string(m[1])]
		count, _ := strconv.ParseFloat(string(m[2]), 64)
		rate, _ := strconv.ParseFloat(string(m[3]), 64)
		metrics = append(metrics, report.Metric{Name: name, Value: count, Unit: report.UnitCount})
		if name == "Transactions" || name == "Queries" {
			metrics = append(metrics, report.Metric{Name: name + " per second", Value: rate, Unit: report.UnitOps})
		}
	}
	if len(metrics) == 0 {
		return nil, fmt.Errorf("sysbench printed no statistics: %s", util.LastNonEmptyLine(out))
	}

	// the latency block follows its header, so interval reports never match
	if i := bytes.Index(out, []byte("Latency (ms):")); i >= 0 {
		for _, m := range latencyRegex.FindAllSubmatch(out[i:], -1) {
			v, _ := strconv.ParseFloat(string(m[2]), 64)
			metrics = append(metrics, report.Metric{Name: "Latency " + string(m[1]), Value: v, Unit: report.UnitMillis})
		}
	}
	if m := totalRegex.FindSubmatch(out); m != nil {
		v, _ := strconv.ParseFloat(string(m[1]), 64)
		metrics = append(metrics, report.Metric{Name: "sysbench total time", Value: v, Unit: report.UnitSeconds})
	}
	return metrics, nil
}
