package benchmark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/Octogonapus/ClusterBench/cluster"
	"github.com/Octogonapus/ClusterBench/report"
	"github.com/Octogonapus/ClusterBench/target"
	"github.com/Octogonapus/ClusterBench/util"
	"github.com/mitchellh/mapstructure"
)

// ErrUnknownBenchmark is returned when a type name has no registered benchmark.
var ErrUnknownBenchmark = errors.New("unknown benchmark type")

type BenchmarkContext struct {
	Ctx context.Context
	// Engine and container host the cluster runs on.
	Env *cluster.Env
	// The machine clusterbench runs on. Tools are downloaded and data is generated here.
	Local target.Target
	// Operator-facing output.
	Out io.Writer
}

func (c *BenchmarkContext) Printf(format string, args ...any) {
	if c.Out != nil {
		fmt.Fprintf(c.Out, format, args...)
	}
}

// Banner prints a title between rule lines.
func (c *BenchmarkContext) Banner(title string) {
	if c.Out != nil {
		util.Banner(c.Out, title)
	}
}

// Writer returns Out, or a writer that discards everything when Out is unset.
func (c *BenchmarkContext) Writer() io.Writer {
	if c.Out == nil {
		return io.Discard
	}
	return c.Out
}

// Every benchmark is idempotent: Prepare and Run can be repeated without Cleanup in between, and
// teardown of a resource that is already gone succeeds.
type Benchmark interface {
	// Tear down everything Prepare and Run created.
	Cleanup(*BenchmarkContext) error

	// Drop and recreate the benchmark's data set.
	Prepare(*BenchmarkContext) error

	// Run the timed workload once. Leftovers of a previous run are removed first.
	Run(*BenchmarkContext) (*BenchmarkOutput, error)

	// A human-friendly name the user can set for this benchmark. Only used for debugging/printing.
	GetName() string

	// Any input given to this benchmark by the user. Included in the benchmark's report. Not used for anything else.
	GetInput() map[string]any
}

// Initializer is implemented by benchmarks that install tools or pull images before Prepare.
type Initializer interface {
	Init(*BenchmarkContext) error
}

// Loader is implemented by benchmarks with a load phase separate from Prepare.
type Loader interface {
	Load(*BenchmarkContext) error
}

// Generator is implemented by benchmarks that generate their data set locally.
type Generator interface {
	Generate(*BenchmarkContext) error
}

// Canceller is implemented by benchmarks whose work outlives the process, such as submitted jobs.
type Canceller interface {
	Cancel(*BenchmarkContext) error
}

// AllRunner is implemented by benchmarks whose run-all is more than Cleanup, Prepare and Run.
type AllRunner interface {
	RunAll(*BenchmarkContext) (*BenchmarkOutput, error)
}

type BenchmarkOutput struct {
	TotalTimeSec float64
	Metrics      []report.Metric
	Metadata     any
}

type benchmarkType string

type benchmarkFactory func(map[string]any) (Benchmark, error)

var benchmarks map[benchmarkType]benchmarkFactory

// All benchmarks must register themselves at module load time so that deserialization can create a benchmark of that type.
func RegisterBenchmark(btype string, f benchmarkFactory) {
	if benchmarks == nil {
		benchmarks = map[benchmarkType]benchmarkFactory{}
	}
	benchmarks[benchmarkType(btype)] = f
}

type SerializedBenchmark struct {
	Type  string
	Input map[string]any
}

func DeserializeBenchmark(sb *SerializedBenchmark) (Benchmark, error) {
	f, ok := benchmarks[benchmarkType(sb.Type)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBenchmark, sb.Type)
	}
	return f(sb.Input)
}

// BenchmarkTypes lists the registered type names in sorted order.
func BenchmarkTypes() []string {
	out := make([]string, 0, len(benchmarks))
	for b := range benchmarks {
		out = append(out, string(b))
	}
	sort.Strings(out)
	return out
}

// DecodeInput decodes a plan-file or CLI input map into a driver's input struct. Strings are
// converted to numbers and booleans where the struct asks for them.
func DecodeInput(a map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(a)
}
