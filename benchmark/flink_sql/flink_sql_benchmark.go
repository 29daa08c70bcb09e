package flink_sql

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/Octogonapus/ClusterBench/benchmark"
	"github.com/Octogonapus/ClusterBench/cluster"
	"github.com/Octogonapus/ClusterBench/report"
	"github.com/Octogonapus/ClusterBench/util"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

//go:embed sql/*.sql.tmpl
var sqlFiles embed.FS

var templates = template.Must(template.ParseFS(sqlFiles, "sql/*.sql.tmpl"))

var Workloads = map[string]string{
	"identity":  "Pass-through (baseline throughput)",
	"wordcount": "Stateful word counting (GROUP BY)",
	"window":    "Range-based aggregation (GROUP BY with SUM)",
}

var workloadOrder = []string{"identity", "wordcount", "window"}

const jobPrefix = "clusterbench-"

// Job tracking budget.
var (
	PollAttempts = 60
	PollInterval = 2 * time.Second
)

type bmark struct {
	input *FlinkSQLInput
}

type FlinkSQLInput struct {
	Name     string
	Workload string
	// JobManager REST host. Detected from the cluster target when empty.
	Host        string
	Port        int
	Records     int
	Parallelism int
	// JobManager container the SQL client runs in.
	JobManager string
}

type sqlData struct {
	Host        string
	Port        int
	Parallelism int
	Records     int
	JobName     string
}

func init() {
	benchmark.RegisterBenchmark("flink-sql", func(a map[string]any) (benchmark.Benchmark, error) {
		input := &FlinkSQLInput{}
		err := benchmark.DecodeInput(a, input)
		if err != nil {
			return nil, fmt.Errorf("can't convert input to FlinkSQLInput: %w", err)
		}
		return NewFlinkSQLBenchmark(input)
	})
}

func NewFlinkSQLBenchmark(input *FlinkSQLInput) (benchmark.Benchmark, error) {
	if input.Name == "" {
		input.Name = "flink-sql"
	}
	if input.Workload == "" {
		input.Workload = "identity"
	}
	if _, ok := Workloads[input.Workload]; !ok && input.Workload != "all" {
		return nil, fmt.Errorf("unknown Flink workload %q", input.Workload)
	}
	if input.Port == 0 {
		input.Port = 8081
	}
	if input.Records == 0 {
		input.Records = 100000
	}
	if input.Parallelism == 0 {
		input.Parallelism = 1
	}
	if input.JobManager == "" {
		input.JobManager = cluster.DefaultFlinkJobManager
	}
	return &bmark{input: input}, nil
}

func (b *bmark) GetName() string { return b.input.Name }

func (b *bmark) GetInput() map[string]any { return util.StructMap(b.input) }

func (b *bmark) client(ctx *benchmark.BenchmarkContext) (*restClient, string, error) {
	host, err := ctx.Env.ResolveHost(b.input.Host)
	if err != nil {
		return nil, "", err
	}
	return newRESTClient(host, b.input.Port), host, nil
}

// cancelJobs cancels RUNNING jobs whose name matches.
func (b *bmark) cancelJobs(ctx *benchmark.BenchmarkContext, match func(name string) bool) error {
	c, _, err := b.client(ctx)
	if err != nil {
		return err
	}
	jobs, err := c.Jobs(ctx.Ctx)
	if err != nil {
		return fmt.Errorf("listing Flink jobs failed: %w", err)
	}
	for _, j := range jobs {
		if j.State != StateRunning || !match(j.Name) {
			continue
		}
		ctx.Printf("Cancelling job %s (%s)...\n", j.ID, j.Name)
		err = c.Cancel(ctx.Ctx, j.ID)
		if err != nil {
			return fmt.Errorf("cancelling job %s failed: %w", j.ID, err)
		}
	}
	return nil
}

func (b *bmark) Cancel(ctx *benchmark.BenchmarkContext) error {
	ctx.Printf("Cleaning up Flink jobs for idempotent reruns...\n")
	err := b.cancelJobs(ctx, func(name string) bool { return strings.HasPrefix(name, jobPrefix) })
	if err != nil {
		return err
	}
	ctx.Printf("Cleanup complete\n")
	return nil
}

func (b *bmark) Cleanup(ctx *benchmark.BenchmarkContext) error {
	return b.Cancel(ctx)
}

// Prepare has nothing to set up: every workload generates its data with the datagen connector.
func (b *bmark) Prepare(ctx *benchmark.BenchmarkContext) error {
	return nil
}

func (b *bmark) Run(ctx *benchmark.BenchmarkContext) (*benchmark.BenchmarkOutput, error) {
	if b.input.Workload == "all" {
		return b.RunAll(ctx)
	}
	return b.runWorkload(ctx, b.input.Workload)
}

func (b *bmark) RunAll(ctx *benchmark.BenchmarkContext) (*benchmark.BenchmarkOutput, error) {
	all := &benchmark.BenchmarkOutput{}
	for _, w := range workloadOrder {
		out, err := b.runWorkload(ctx, w)
		if err != nil {
			return nil, err
		}
		all.TotalTimeSec += out.TotalTimeSec
		for _, m := range out.Metrics {
			all.Metrics = append(all.Metrics, report.Metric{Name: w + " " + m.Name, Value: m.Value, Unit: m.Unit})
		}
	}
	return all, nil
}

func (b *bmark) renderSQL(workload, host string) ([]byte, error) {
	var buf bytes.Buffer
	err := templates.ExecuteTemplate(&buf, workload+".sql.tmpl", sqlData{
		Host:        host,
		Port:        b.input.Port,
		Parallelism: b.input.Parallelism,
		Records:     b.input.Records,
		JobName:     jobPrefix + workload,
	})
	return buf.Bytes(), err
}

func (b *bmark) runWorkload(ctx *benchmark.BenchmarkContext, workload string) (*benchmark.BenchmarkOutput, error) {
	ctx.Printf("\n")
	ctx.Banner(fmt.Sprintf("Running %s benchmark: %s", workload, Workloads[workload]))
	ctx.Printf("  Records: %s\n  Parallelism: %d\n", humanize.Comma(int64(b.input.Records)), b.input.Parallelism)

	jobName := jobPrefix + workload
	err := b.cancelJobs(ctx, func(name string) bool { return name == jobName })
	if err != nil {
		return nil, err
	}

	c, host, err := b.client(ctx)
	if err != nil {
		return nil, err
	}
	sql, err := b.renderSQL(workload, host)
	if err != nil {
		return nil, fmt.Errorf("rendering %s SQL failed: %w", workload, err)
	}

	existing := map[string]bool{}
	jobs, err := c.Jobs(ctx.Ctx)
	if err != nil {
		return nil, fmt.Errorf("listing Flink jobs failed: %w", err)
	}
	for _, j := range jobs {
		existing[j.ID] = true
	}

	ctx.Printf("Submitting %s job...\n", workload)
	start := time.Now()
	err = cluster.FlinkSQL(ctx.Ctx, ctx.Env, b.input.JobManager, sql, ctx.Writer())
	if err != nil {
		return nil, err
	}

	ctx.Printf("Waiting for job to complete...\n")
	job, err := b.waitForJob(ctx, c, jobName, existing)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start).Seconds()
	return b.summarize(ctx, workload, job, elapsed)
}

// waitForJob polls for the job the SQL client submitted until it reaches a terminal state. A nil job
// means the job never appeared, which happens when the client runs it to completion before the first poll
// and Flink has already archived it.
func (b *bmark) waitForJob(ctx *benchmark.BenchmarkContext, c *restClient, jobName string, existing map[string]bool) (*JobDetails, error) {
	var id string
	for i := 0; i < PollAttempts; i++ {
		select {
		case <-ctx.Ctx.Done():
			return nil, ctx.Ctx.Err()
		case <-time.After(PollInterval):
		}

		if id == "" {
			jobs, err := c.Jobs(ctx.Ctx)
			if err != nil {
				zap.L().Debug("polling Flink jobs failed", zap.Error(err))
				continue
			}
			for _, j := range jobs {
				if !existing[j.ID] && j.Name == jobName {
					id = j.ID
					break
				}
			}
			if id == "" {
				continue
			}
		}

		job, err := c.Job(ctx.Ctx, id)
		if err != nil {
			zap.L().Debug("polling Flink job failed", zap.String("job", id), zap.Error(err))
			continue
		}
		if job.Terminal() {
			return job, nil
		}
		zap.L().Debug("job still running", zap.String("job", id), zap.String("state", job.State))
	}
	if id == "" {
		zap.L().Warn("submitted job never appeared in the job list", zap.String("name", jobName))
		return nil, nil
	}
	return nil, fmt.Errorf("job %s did not finish within %s: %w", id, time.Duration(PollAttempts)*PollInterval, cluster.ErrNotReady)
}

func (b *bmark) summarize(ctx *benchmark.BenchmarkContext, workload string, job *JobDetails, elapsed float64) (*benchmark.BenchmarkOutput, error) {
	ctx.Printf("\n")
	ctx.Banner("BENCHMARK RESULTS: " + strings.ToUpper(workload))
	if job == nil {
		ctx.Printf("Job completed (SQL client returned success)\nTotal Time: %.2fs\n", elapsed)
		return &benchmark.BenchmarkOutput{TotalTimeSec: elapsed}, nil
	}
	ctx.Printf("\nJob Status: %s\nTotal Time: %.2fs\n", job.State, elapsed)
	if job.State != StateFinished {
		return nil, fmt.Errorf("job %s ended %s", job.ID, job.State)
	}

	var bytesIn, bytesOut, recordsOut int64
	for _, v := range job.Vertices {
		bytesIn += v.Metrics.ReadBytes
		bytesOut += v.Metrics.WriteBytes
		recordsOut += v.Metrics.WriteRecords
	}
	duration := float64(job.Duration) / 1000
	if duration <= 0 {
		duration = elapsed
	}
	// datagen sources do not report read-records in batch mode
	records := float64(b.input.Records)
	throughput := records / duration

	ctx.Printf("\nPerformance Metrics:\n  Records Processed: %s\n  Processing Time:   %.2fs\n  Throughput:        %s records/sec\n",
		humanize.Comma(int64(records)), duration, humanize.Comma(int64(throughput)))
	return &benchmark.BenchmarkOutput{
		TotalTimeSec: elapsed,
		Metrics: []report.Metric{
			{Name: "Records processed", Value: records, Unit: report.UnitRecords},
			{Name: "Processing time", Value: duration, Unit: report.UnitSeconds},
			{Name: "Throughput", Value: throughput, Unit: "records/sec"},
			{Name: "Records written", Value: float64(recordsOut), Unit: report.UnitRecords},
			{Name: "Bytes read", Value: float64(bytesIn), Unit: report.UnitBytes},
			{Name: "Bytes written", Value: float64(bytesOut), Unit: report.UnitBytes},
		},
		Metadata: map[string]string{"jobID": job.ID, "jobName": job.Name},
	}, nil
}
