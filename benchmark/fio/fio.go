package fio

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"text/template"
	"time"

	"github.com/Octogonapus/ClusterBench/benchmark"
	"github.com/Octogonapus/ClusterBench/report"
	"github.com/Octogonapus/ClusterBench/util"
	"github.com/alessio/shellescape"
	units "github.com/docker/go-units"
	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultDirectory = "/tmp/clusterbench-fio"
	testFile         = "fio_testfile"
)

type Profile struct {
	Name        string
	RW          string
	Description string
	BlockSize   string
	IODepth     int
	Direct      int
	IOEngine    string
}

func newProfile(name, rw, bs, description string) Profile {
	return Profile{Name: name, RW: rw, BlockSize: bs, Description: description, IODepth: 32, Direct: 1, IOEngine: "libaio"}
}

var Profiles = map[string]Profile{
	"seqread":   newProfile("seqread", "read", "128k", "Sequential read"),
	"seqwrite":  newProfile("seqwrite", "write", "128k", "Sequential write"),
	"randread":  newProfile("randread", "randread", "4k", "Random read (4K)"),
	"randwrite": newProfile("randwrite", "randwrite", "4k", "Random write (4K)"),
	"randrw":    newProfile("randrw", "randrw", "4k", "Random read/write mix (4K)"),
}

var profileOrder = []string{"seqread", "seqwrite", "randread", "randwrite", "randrw"}

var jobTemplate = template.Must(template.New("job").Parse(`[{{.Profile.Name}}]
rw={{.Profile.RW}}
bs={{.Profile.BlockSize}}
size={{.Size}}
runtime={{.Runtime}}
time_based=1
numjobs={{.NumJobs}}
iodepth={{.Profile.IODepth}}
direct={{.Profile.Direct}}
ioengine={{.Profile.IOEngine}}
group_reporting=1
directory={{.Directory}}
filename=` + testFile + `
`))

type bmark struct {
	input *FioInput
}

type FioInput struct {
	Name string
	// A key of Profiles, or "all".
	Profile string
	// Test file size, e.g. 512M or 1G.
	Size string
	// Seconds each profile runs.
	Runtime int
	NumJobs int
	// Directory on the target holding the test file.
	Directory string
}

func init() {
	benchmark.RegisterBenchmark("fio", func(a map[string]any) (benchmark.Benchmark, error) {
		input := &FioInput{}
		err := benchmark.DecodeInput(a, input)
		if err != nil {
			return nil, fmt.Errorf("can't convert input to FioInput: %w", err)
		}
		return NewFioBenchmark(input)
	})
}

func NewFioBenchmark(input *FioInput) (benchmark.Benchmark, error) {
	if input.Name == "" {
		input.Name = "fio"
	}
	if input.Profile == "" {
		input.Profile = "randrw"
	}
	if _, ok := Profiles[input.Profile]; !ok && input.Profile != "all" {
		return nil, fmt.Errorf("unknown fio profile %q", input.Profile)
	}
	if input.Size == "" {
		input.Size = "512M"
	}
	if _, err := units.RAMInBytes(input.Size); err != nil {
		return nil, fmt.Errorf("invalid size %q: %w", input.Size, err)
	}
	if input.Runtime == 0 {
		input.Runtime = 10
	}
	if input.NumJobs == 0 {
		input.NumJobs = 1
	}
	if input.Directory == "" {
		input.Directory = DefaultDirectory
	}
	return &bmark{input: input}, nil
}

func (b *bmark) GetName() string { return b.input.Name }

func (b *bmark) GetInput() map[string]any { return util.StructMap(b.input) }

// Init checks that fio is installed on the target.
func (b *bmark) Init(ctx *benchmark.BenchmarkContext) error {
	out, err := ctx.Env.Target.RunCommand("fio --version")
	if err != nil {
		return fmt.Errorf("fio is not installed on %s, install it with `sudo apt install fio`: %w", ctx.Env.Target, err)
	}
	ctx.Printf("Found %s\n", strings.TrimSpace(string(out)))
	return nil
}

func (b *bmark) Prepare(ctx *benchmark.BenchmarkContext) error {
	_, err := ctx.Env.Target.RunCommand("mkdir -p " + shellescape.Quote(b.input.Directory))
	if err != nil {
		return fmt.Errorf("creating %s failed: %w", b.input.Directory, err)
	}
	return nil
}

func (b *bmark) Cleanup(ctx *benchmark.BenchmarkContext) error {
	dir := shellescape.Quote(b.input.Directory)
	_, err := ctx.Env.Target.RunCommand(fmt.Sprintf("rm -f %s/%s %s/*.fio", dir, testFile, dir))
	if err != nil {
		return fmt.Errorf("removing fio files from %s failed: %w", b.input.Directory, err)
	}
	return nil
}

func (b *bmark) profiles() []Profile {
	if b.input.Profile != "all" {
		return []Profile{Profiles[b.input.Profile]}
	}
	out := make([]Profile, len(profileOrder))
	for i, name := range profileOrder {
		out[i] = Profiles[name]
	}
	return out
}

func (b *bmark) Run(ctx *benchmark.BenchmarkContext) (*benchmark.BenchmarkOutput, error) {
	err := b.Prepare(ctx)
	if err != nil {
		return nil, err
	}
	ctx.Printf("Running fio benchmarks in: %s\nFile size: %s, Runtime: %ds, Jobs: %d\n",
		b.input.Directory, b.input.Size, b.input.Runtime, b.input.NumJobs)

	profiles := b.profiles()
	out := &benchmark.BenchmarkOutput{}
	start := time.Now()
	for _, p := range profiles {
		ctx.Printf("\nRunning %s...\n", p.Description)
		res, err := b.runProfile(ctx, p)
		if err != nil {
			return nil, err
		}
		res.print(ctx)
		prefix := ""
		if len(profiles) > 1 {
			prefix = p.Name + " "
		}
		out.Metrics = append(out.Metrics, res.metrics(prefix)...)
	}
	out.TotalTimeSec = time.Since(start).Seconds()
	return out, nil
}

type jobData struct {
	Profile   Profile
	Size      string
	Runtime   int
	NumJobs   int
	Directory string
}

func (b *bmark) jobFile(p Profile) ([]byte, error) {
	var buf bytes.Buffer
	err := jobTemplate.Execute(&buf, jobData{
		Profile:   p,
		Size:      b.input.Size,
		Runtime:   b.input.Runtime,
		NumJobs:   b.input.NumJobs,
		Directory: b.input.Directory,
	})
	return buf.Bytes(), err
}

func (b *bmark) runProfile(ctx *benchmark.BenchmarkContext, p Profile) (*Result, error) {
	job, err := b.jobFile(p)
	if err != nil {
		return nil, err
	}
	jobPath := path.Join(b.input.Directory, p.Name+"-"+util.Randstring(8)+".fio")
	err = ctx.Env.Target.CopyFileTo(bytes.NewReader(job), jobPath)
	if err != nil {
		return nil, fmt.Errorf("writing job file %s failed: %w", jobPath, err)
	}
	defer func() {
		_, err := ctx.Env.Target.RunCommand(fmt.Sprintf("rm -f %s %s",
			shellescape.Quote(jobPath), shellescape.Quote(path.Join(b.input.Directory, testFile))))
		if err != nil {
			zap.L().Warn("removing fio files failed", zap.String("profile", p.Name), zap.Error(err))
		}
	}()

	raw, err := ctx.Env.Target.RunCommand(shellescape.QuoteCommand([]string{"fio", jobPath, "--output-format=json"}))
	if err != nil {
		return nil, fmt.Errorf("fio %s failed: %s: %w", p.Name, util.LastNonEmptyLine(raw), err)
	}
	return parseOutput(raw, p)
}

type latency struct {
	Mean       float64            `json:"mean"`
	Percentile map[string]float64 `json:"percentile"`
}

type ioStats struct {
	IOBytes int64   `json:"io_bytes"`
	IOPS    float64 `json:"iops"`
	BW      float64 `json:"bw_bytes"`
	Lat     latency `json:"lat_ns"`
	CLat    latency `json:"clat_ns"`
}

type fioOutput struct {
	Jobs []struct {
		Read  ioStats `json:"read"`
		Write ioStats `json:"write"`
	} `json:"jobs"`
}

// OpResult holds the statistics of one direction. Latencies are in nanoseconds.
type OpResult struct {
	Operation  string
	IOPS       float64
	BWBytes    float64
	LatNsMean  float64
	LatNsP99   float64
	hasTraffic bool
}

type Result struct {
	Profile Profile
	Read    OpResult
	Write   OpResult
}

func opResult(op string, s ioStats) OpResult {
	return OpResult{
		Operation:  op,
		IOPS:       s.IOPS,
		BWBytes:    s.BW,
		LatNsMean:  s.Lat.Mean,
		LatNsP99:   s.CLat.Percentile["99.000000"],
		hasTraffic: s.IOBytes > 0,
	}
}

// parseOutput reads fio's JSON report. fio may print warnings before and after the JSON document.
func parseOutput(raw []byte, p Profile) (*Result, error) {
	i := bytes.IndexByte(raw, '{')
	if i < 0 {
		return nil, fmt.Errorf("fio printed no JSON report: %s", util.LastNonEmptyLine(raw))
	}
	var out fioOutput
	err := json.NewDecoder(bytes.NewReader(raw[i:])).Decode(&out)
	if err != nil {
		return nil, fmt.Errorf("decoding fio report failed: %w", err)
	}
	if len(out.Jobs) == 0 {
		return nil, fmt.Errorf("fio report has no jobs")
	}
	job := out.Jobs[0]
	return &Result{
		Profile: p,
		Read:    opResult("read", job.Read),
		Write:   opResult("write", job.Write),
	}, nil
}

func (r *Result) ops() []OpResult {
	var out []OpResult
	for _, op := range []OpResult{r.Read, r.Write} {
		if op.hasTraffic {
			out = append(out, op)
		}
	}
	return out
}

func (r *Result) metrics(prefix string) []report.Metric {
	var out []report.Metric
	for _, op := range r.ops() {
		name := prefix + op.Operation + " "
		out = append(out,
			report.Metric{Name: name + "IOPS", Value: op.IOPS, Unit: report.UnitOps},
			report.Metric{Name: name + "bandwidth", Value: op.BWBytes, Unit: report.UnitRate},
			report.Metric{Name: name + "latency avg", Value: op.LatNsMean / 1000, Unit: report.UnitMicros},
			report.Metric{Name: name + "latency p99", Value: op.LatNsP99 / 1000, Unit: report.UnitMicros},
		)
	}
	return out
}

func formatIOPS(n float64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.2fM", n/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.2fK", n/1_000)
	default:
		return fmt.Sprintf("%.2f", n)
	}
}

func (r *Result) print(ctx *benchmark.BenchmarkContext) {
	ctx.Printf("\n")
	ctx.Banner(fmt.Sprintf("Profile: %s (%s)\nBlock Size: %s", r.Profile.Description, r.Profile.Name, r.Profile.BlockSize))
	for _, op := range r.ops() {
		ctx.Printf("\n  %s:\n", strings.ToUpper(op.Operation))
		ctx.Printf("    IOPS:        %s\n", formatIOPS(op.IOPS))
		ctx.Printf("    Bandwidth:   %s/s\n", humanize.IBytes(uint64(op.BWBytes)))
		ctx.Printf("    Latency avg: %.2f us\n", op.LatNsMean/1000)
		ctx.Printf("    Latency p99: %.2f us\n", op.LatNsP99/1000)
	}
}
