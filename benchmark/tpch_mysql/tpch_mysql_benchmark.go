package tpch_mysql

import (
	"embed"
	"fmt"
	"io"
	"path"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/Octogonapus/ClusterBench/benchmark"
	"github.com/Octogonapus/ClusterBench/benchmark/mysqldb"
	"github.com/Octogonapus/ClusterBench/container"
	"github.com/Octogonapus/ClusterBench/report"
	"github.com/Octogonapus/ClusterBench/util"
	"github.com/alessio/shellescape"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

const (
	DefaultScaleFactor = 0.5
	DefaultDBGenDir    = "/tmp/tpch-dbgen"
	DefaultBuildImage  = "gcc:11"

	dbgenRepo = "https://github.com/electrum/tpch-dbgen.git"
)

// Tables in creation and load order.
var Tables = []string{"nation", "region", "part", "supplier", "partsupp", "customer", "orders", "lineitem"}

// Queries maps a query number to its title.
var Queries = map[int]string{
	1:  "Pricing Summary Report",
	6:  "Forecasting Revenue Change",
	14: "Promotion Effect",
}

var queryOrder = []int{1, 6, 14}

type bmark struct {
	input *TPCHMySQLInput
}

type TPCHMySQLInput struct {
	Name          string
	mysqldb.Input `mapstructure:",squash"`
	ScaleFactor   float64
	DBGenDir      string
	// Where dbgen's .tbl files are kept. Defaults to /tmp/tpch_sf<SF>.
	DataDir string
	// Image dbgen is compiled in. Newer GCC versions reject the dbgen sources.
	BuildImage string
	// Query Run executes. RunAll executes every query.
	Query int
}

func init() {
	benchmark.RegisterBenchmark("tpch-mysql", func(a map[string]any) (benchmark.Benchmark, error) {
		input := &TPCHMySQLInput{}
		err := benchmark.DecodeInput(a, input)
		if err != nil {
			return nil, fmt.Errorf("can't convert input to TPCHMySQLInput: %w", err)
		}
		return NewTPCHMySQLBenchmark(input)
	})
}

func NewTPCHMySQLBenchmark(input *TPCHMySQLInput) (benchmark.Benchmark, error) {
	if input.Name == "" {
		input.Name = "tpch-mysql"
	}
	input.WithDefaults("tpch")
	if input.ScaleFactor == 0 {
		input.ScaleFactor = DefaultScaleFactor
	}
	if input.DBGenDir == "" {
		input.DBGenDir = DefaultDBGenDir
	}
	if input.DataDir == "" {
		input.DataDir = "/tmp/tpch_sf" + formatScale(input.ScaleFactor)
	}
	if input.BuildImage == "" {
		input.BuildImage = DefaultBuildImage
	}
	if input.Query == 0 {
		input.Query = 1
	}
	if _, ok := Queries[input.Query]; !ok {
		return nil, fmt.Errorf("query %d not supported, available: %v", input.Query, queryOrder)
	}
	err := input.Validate()
	if err != nil {
		return nil, err
	}
	return &bmark{input: input}, nil
}

func formatScale(sf float64) string {
	return strconv.FormatFloat(sf, 'f', -1, 64)
}

func (b *bmark) GetName() string { return b.input.Name }

func (b *bmark) GetInput() map[string]any {
	in := util.StructMap(b.input)
	delete(in, "Password")
	return in
}

func (b *bmark) run(ctx *benchmark.BenchmarkContext, cmd string) error {
	ctx.Printf("+ %s\n", cmd)
	return ctx.Local.StreamCommand(cmd, ctx.Writer())
}

func (b *bmark) dbgenBuilt(ctx *benchmark.BenchmarkContext) bool {
	_, err := ctx.Local.RunCommand("test -x " + shellescape.Quote(path.Join(b.input.DBGenDir, "dbgen")))
	return err == nil
}

// Init clones dbgen and compiles it in the build image. The directory is bind mounted, so the engine must
// run on the local machine.
func (b *bmark) Init(ctx *benchmark.BenchmarkContext) error {
	if b.dbgenBuilt(ctx) {
		ctx.Printf("TPC-H dbgen already exists at %s\n", b.input.DBGenDir)
		return nil
	}
	ctx.Printf("Downloading and building TPC-H dbgen...\n")
	dir := shellescape.Quote(b.input.DBGenDir)
	err := b.run(ctx, fmt.Sprintf("rm -rf %s && git clone %s %s", dir, dbgenRepo, dir))
	if err != nil {
		return fmt.Errorf("cloning dbgen failed: %w", err)
	}

	ctx.Printf("Building dbgen with %s...\n", b.input.BuildImage)
	err = ctx.Env.Engine.Pull(ctx.Ctx, b.input.BuildImage, ctx.Writer())
	if err != nil {
		return err
	}
	spec := &container.Spec{
		Image:      b.input.BuildImage,
		Binds:      []string{b.input.DBGenDir + ":/build"},
		WorkingDir: "/build",
		Cmd:        []string{"make", fmt.Sprintf("-j%d", runtime.NumCPU())},
	}
	err = ctx.Env.Engine.RunOnce(ctx.Ctx, spec, ctx.Writer(), ctx.Writer())
	if err != nil {
		return fmt.Errorf("building dbgen failed: %w", err)
	}
	ctx.Printf("TPC-H dbgen built at %s\n", b.input.DBGenDir)
	return nil
}

func (b *bmark) Generate(ctx *benchmark.BenchmarkContext) error {
	err := b.Init(ctx)
	if err != nil {
		return err
	}
	ctx.Printf("Generating TPC-H data (scale factor: %s)...\n", formatScale(b.input.ScaleFactor))
	dir := shellescape.Quote(b.input.DBGenDir)
	out := shellescape.Quote(b.input.DataDir)
	steps := []string{
		"mkdir -p " + out,
		fmt.Sprintf("cd %s && ./dbgen -s %s -f", dir, formatScale(b.input.ScaleFactor)),
		fmt.Sprintf("mv %s/*.tbl %s/", dir, out),
	}
	for _, step := range steps {
		err := b.run(ctx, step)
		if err != nil {
			return fmt.Errorf("generating TPC-H data failed: %w", err)
		}
	}
	ctx.Printf("Data generated in %s\n", b.input.DataDir)
	return nil
}

func (b *bmark) resetDatabase(ctx *benchmark.BenchmarkContext) error {
	db, err := b.input.Open(ctx.Env, "")
	if err != nil {
		return err
	}
	defer db.Close()
	ctx.Printf("Waiting for MySQL...\n")
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

var createRegex = regexp.MustCompile(`(?m)^CREATE TABLE (\w+)`)

// schema returns the CREATE TABLE statements keyed by table name.
func schema() (map[string]string, error) {
	raw, err := sqlFiles.ReadFile("sql/schema.sql")
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	for _, stmt := range strings.Split(string(raw), ";") {
		stmt = strings.TrimSpace(stmt)
		m := createRegex.FindStringSubmatch(stmt)
		if m != nil {
			out[m[1]] = stmt
		}
	}
	return out, nil
}

func (b *bmark) Prepare(ctx *benchmark.BenchmarkContext) error {
	ctx.Printf("Preparing TPC-H data...\n  Database: %s\n  Scale factor: %s\n", b.input.Database, formatScale(b.input.ScaleFactor))

	err := b.Generate(ctx)
	if err != nil {
		return err
	}
	err = b.resetDatabase(ctx)
	if err != nil {
		return err
	}

	db, err := b.input.Open(ctx.Env, b.input.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	ddl, err := schema()
	if err != nil {
		return err
	}
	ctx.Printf("\nCreating tables...\n")
	for _, t := range Tables {
		_, err = db.ExecContext(ctx.Ctx, ddl[t])
		if err != nil {
			return fmt.Errorf("creating %s failed: %w", t, err)
		}
		ctx.Printf("  Created: %s\n", t)
	}

	ctx.Printf("\nLoading data...\n")
	for _, t := range Tables {
		src := path.Join(b.input.DataDir, t+".tbl")
		_, err := ctx.Local.RunCommand("test -f " + shellescape.Quote(src))
		if err != nil {
			ctx.Printf("  Skipping %s (no data file)\n", t)
			continue
		}
		n, err := mysqldb.LoadTable(ctx.Ctx, db, t, func() io.Reader {
			pr, pw := io.Pipe()
			go func() {
				pw.CloseWithError(ctx.Local.CopyFileFrom(src, pw))
			}()
			return pr
		})
		if err != nil {
			return err
		}
		ctx.Printf("  Loaded: %s (%s rows)\n", t, humanize.Comma(n))
	}
	ctx.Printf("\nTPC-H data preparation complete. You can now run the benchmark.\n")
	return nil
}

func readQuery(q int) (string, error) {
	raw, err := sqlFiles.ReadFile(fmt.Sprintf("sql/q%d.sql", q))
	if err != nil {
		return "", fmt.Errorf("query %d not supported: %w", q, err)
	}
	return string(raw), nil
}

func (b *bmark) Run(ctx *benchmark.BenchmarkContext) (*benchmark.BenchmarkOutput, error) {
	return b.runQueries(ctx, []int{b.input.Query}, 0)
}

func (b *bmark) RunAll(ctx *benchmark.BenchmarkContext) (*benchmark.BenchmarkOutput, error) {
	ctx.Printf("Running all TPC-H queries...\n")
	return b.runQueries(ctx, queryOrder, 10)
}

// runQueries times each query in order. maxRows limits how many result rows are printed.
func (b *bmark) runQueries(ctx *benchmark.BenchmarkContext, queries []int, maxRows int) (*benchmark.BenchmarkOutput, error) {
	db, err := b.input.Open(ctx.Env, b.input.Database)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	err = mysqldb.WaitReady(ctx.Ctx, db)
	if err != nil {
		return nil, err
	}

	out := &benchmark.BenchmarkOutput{}
	for _, q := range queries {
		sql, err := readQuery(q)
		if err != nil {
			return nil, err
		}
		ctx.Printf("\n")
		ctx.Banner(fmt.Sprintf("TPC-H QUERY %d: %s", q, strings.ToUpper(Queries[q])))
		res, err := mysqldb.TimedQuery(ctx.Ctx, db, sql)
		if err != nil {
			return nil, fmt.Errorf("query %d failed: %w", q, err)
		}
		res.Print(ctx.Writer(), maxRows)
		elapsed := res.Elapsed.Seconds()
		zap.L().Debug("query finished", zap.Int("query", q), zap.Duration("elapsed", res.Elapsed), zap.Int("rows", len(res.Rows)))
		ctx.Printf("Query time: %.2fs\n", elapsed)
		out.TotalTimeSec += elapsed
		out.Metrics = append(out.Metrics, report.Metric{Name: fmt.Sprintf("Query %d time", q), Value: elapsed, Unit: report.UnitSeconds})
	}
	if len(queries) > 1 {
		out.Metrics = append(out.Metrics, report.Metric{Name: "Total query time", Value: out.TotalTimeSec, Unit: report.UnitSeconds})
	}
	return out, nil
}
