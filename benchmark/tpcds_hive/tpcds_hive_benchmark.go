package tpcds_hive

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Octogonapus/ClusterBench/benchmark"
	"github.com/Octogonapus/ClusterBench/benchmark/tpcds"
	"github.com/Octogonapus/ClusterBench/cluster"
	"github.com/Octogonapus/ClusterBench/util"
	"go.uber.org/zap"
)

type bmark struct {
	input *TPCDSHiveInput
}

type TPCDSHiveInput struct {
	Name            string
	HiveServer2     string
	Image           string
	Database        string
	tpcds.DataInput `mapstructure:",squash"`
}

func init() {
	benchmark.RegisterBenchmark("tpcds-hive", func(a map[string]any) (benchmark.Benchmark, error) {
		input := &TPCDSHiveInput{}
		err := benchmark.DecodeInput(a, input)
		if err != nil {
			return nil, fmt.Errorf("can't convert input to TPCDSHiveInput: %w", err)
		}
		return NewTPCDSHiveBenchmark(input), nil
	})
}

func NewTPCDSHiveBenchmark(input *TPCDSHiveInput) benchmark.Benchmark {
	if input.Name == "" {
		input.Name = "tpcds-hive"
	}
	if input.HiveServer2 == "" {
		input.HiveServer2 = "localhost:10000"
	}
	if input.Image == "" {
		input.Image = cluster.DefaultHiveImage
	}
	if input.Database == "" {
		input.Database = "default"
	}
	input.WithDefaults()
	return &bmark{input: input}
}

func (b *bmark) GetName() string { return b.input.Name }

func (b *bmark) GetInput() map[string]any { return util.StructMap(b.input) }

func (b *bmark) Generate(ctx *benchmark.BenchmarkContext) error {
	return tpcds.Generate(ctx, &b.input.DataInput)
}

func (b *bmark) Prepare(ctx *benchmark.BenchmarkContext) error {
	ctx.Printf("Preparing TPC-DS data...\n  Scale factor: %d\n  HDFS base: %s\n", b.input.ScaleFactor, b.input.HDFSBase)
	err := tpcds.EnsureData(ctx, &b.input.DataInput)
	if err != nil {
		return err
	}
	ctx.Printf("\nData preparation complete. You can now run the benchmark.\n")
	return nil
}

func (b *bmark) Cleanup(ctx *benchmark.BenchmarkContext) error {
	ctx.Printf("Cleaning up TPC-DS tables from Hive...\n  HiveServer2: %s\n", b.input.HiveServer2)
	err := b.beeline(ctx, cleanupScript(), io.Discard)
	if err != nil {
		return fmt.Errorf("dropping TPC-DS tables failed: %w", err)
	}
	ctx.Printf("Cleanup complete\n")
	return nil
}

func (b *bmark) Run(ctx *benchmark.BenchmarkContext) (*benchmark.BenchmarkOutput, error) {
	ctx.Banner("TPC-DS Query 99 Benchmark (Hive)")
	ctx.Printf("HiveServer2: %s\nHDFS base: %s\nScale factor: %d\nDatabase: %s\n",
		b.input.HiveServer2, b.input.HDFSBase, b.input.ScaleFactor, b.input.Database)

	start := time.Now()
	ctx.Printf("\nCleaning up previous tables...\n")
	err := b.Cleanup(ctx)
	if err != nil {
		return nil, err
	}
	err = b.beeline(ctx, queryScript(&b.input.DataInput), ctx.Writer(), "--verbose=true")
	if err != nil {
		return nil, fmt.Errorf("running Query 99 failed: %w", err)
	}
	return &benchmark.BenchmarkOutput{TotalTimeSec: time.Since(start).Seconds()}, nil
}

// beeline writes script to a temporary file and runs it through beeline in a throwaway container.
func (b *bmark) beeline(ctx *benchmark.BenchmarkContext, script string, stdout io.Writer, args ...string) error {
	f, err := os.CreateTemp("", "tpcds-hive-*.sql")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	_, err = f.WriteString(script)
	f.Close()
	if err != nil {
		return err
	}

	spec, err := cluster.BeelineSpec(ctx.Env, b.input.Image, b.input.HiveServer2, append([]string{"-f", f.Name()}, args...))
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	err = ctx.Env.Engine.RunOnce(ctx.Ctx, spec, stdout, &stderr)
	if err != nil {
		zap.L().Error("beeline failed", zap.String("script", filepath.Base(f.Name())), zap.String("stderr", stderr.String()))
		return fmt.Errorf("%s: %w", util.LastNonEmptyLine(stderr.Bytes()), err)
	}
	return nil
}

func dropStatements() string {
	var sb strings.Builder
	for _, t := range tpcds.Tables {
		fmt.Fprintf(&sb, "DROP TABLE IF EXISTS %s;\n", t.Name)
	}
	return sb.String()
}

func cleanupScript() string {
	return "-- Drop all TPC-DS tables\n" + dropStatements() + "SHOW TABLES;\n"
}

func createStatement(in *tpcds.DataInput, t *tpcds.Table) string {
	return fmt.Sprintf(`CREATE EXTERNAL TABLE IF NOT EXISTS %s (
    %s
)
ROW FORMAT DELIMITED
FIELDS TERMINATED BY '|'
STORED AS TEXTFILE
LOCATION '%s';
`, t.Name, t.Schema(",\n    "), in.Location(t.Name))
}

func queryScript(in *tpcds.DataInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "-- TPC-DS Query 99, scale factor %d, HDFS base %s\n\n", in.ScaleFactor, in.HDFSBase)
	sb.WriteString("SET hive.cli.print.header=true;\nSET hive.resultset.use.unique.column.names=false;\n\n")
	sb.WriteString(dropStatements())
	sb.WriteString("\n")
	for i := range tpcds.Tables {
		sb.WriteString(createStatement(in, &tpcds.Tables[i]))
	}
	sb.WriteString("\n")
	for _, t := range tpcds.Tables {
		fmt.Fprintf(&sb, "SELECT COUNT(*) AS %s_count FROM %s;\n", t.Name, t.Name)
	}
	sb.WriteString("\n")
	sb.WriteString(strings.TrimSpace(tpcds.Query99))
	sb.WriteString(";\n")
	return sb.String()
}
