package benchmark

import (
	"errors"
	"fmt"
	"time"

	"github.com/Octogonapus/ClusterBench/report"
	systemmonitor "github.com/Octogonapus/ClusterBench/system_monitor"
	"go.uber.org/zap"
)

type RunnerInput struct {
	// Number of timed repetitions. Values below 1 mean 1.
	Runs int
	// Sample /proc on the cluster target while the benchmark runs.
	Monitor bool
	// Registered type name, recorded in the report.
	Type string
}

// Actions a plan step or CLI subcommand can ask of a benchmark. "all" is cleanup, prepare, then run.
var Actions = []string{"init", "generate", "prepare", "load", "run", "run-all", "cleanup", "cancel", "all"}

// ErrUnsupportedAction is returned when a benchmark does not implement the phase an action needs.
var ErrUnsupportedAction = errors.New("action not supported")

type benchmarkRunner struct {
	b     Benchmark
	input RunnerInput
	sm    systemmonitor.SystemMonitor
}

// Wraps a benchmark with the machinery shared by every driver: repetitions, the system monitor and
// the report. Create one via NewBenchmarkRunner.
type BenchmarkRunner interface {
	Prepare(ctx *BenchmarkContext) error
	Cleanup(ctx *BenchmarkContext) error

	// Run the benchmark Runs times. Stops at the first failed repetition; the failure is recorded
	// in the report's Error field.
	Run(ctx *BenchmarkContext) *report.BenchmarkReport

	// Like Run, but a single cleanup → prepare → run cycle, or the benchmark's own RunAll.
	RunAll(ctx *BenchmarkContext) *report.BenchmarkReport

	// Do performs one of Actions. Actions that time the benchmark return its report, which is also
	// returned when the benchmark failed.
	Do(ctx *BenchmarkContext, action string) (*report.BenchmarkReport, error)
}

func NewBenchmarkRunner(b Benchmark, input RunnerInput) BenchmarkRunner {
	input.Runs = max(input.Runs, 1)
	return &benchmarkRunner{b: b, input: input}
}

func (br *benchmarkRunner) Prepare(ctx *BenchmarkContext) error {
	zap.L().Info("preparing benchmark", zap.String("name", br.b.GetName()))
	err := br.b.Prepare(ctx)
	if err != nil {
		return fmt.Errorf("preparing %s failed: %w", br.b.GetName(), err)
	}
	return nil
}

func (br *benchmarkRunner) Cleanup(ctx *BenchmarkContext) error {
	zap.L().Info("cleaning up benchmark", zap.String("name", br.b.GetName()))
	err := br.b.Cleanup(ctx)
	if err != nil {
		return fmt.Errorf("cleaning up %s failed: %w", br.b.GetName(), err)
	}
	return nil
}

func (br *benchmarkRunner) Do(ctx *BenchmarkContext, action string) (*report.BenchmarkReport, error) {
	name := br.b.GetName()
	unsupported := fmt.Errorf("%s: %w: %s", name, ErrUnsupportedAction, action)
	var rep *report.BenchmarkReport
	switch action {
	case "init":
		i, ok := br.b.(Initializer)
		if !ok {
			ctx.Printf("%s has nothing to initialize\n", name)
			return nil, nil
		}
		return nil, i.Init(ctx)
	case "generate":
		g, ok := br.b.(Generator)
		if !ok {
			return nil, unsupported
		}
		return nil, g.Generate(ctx)
	case "load":
		l, ok := br.b.(Loader)
		if !ok {
			return nil, unsupported
		}
		return nil, l.Load(ctx)
	case "cancel":
		c, ok := br.b.(Canceller)
		if !ok {
			return nil, unsupported
		}
		return nil, c.Cancel(ctx)
	case "prepare":
		return nil, br.Prepare(ctx)
	case "cleanup":
		return nil, br.Cleanup(ctx)
	case "run":
		rep = br.Run(ctx)
	case "run-all":
		rep = br.RunAll(ctx)
	case "all":
		if err := br.Cleanup(ctx); err != nil {
			return nil, err
		}
		if err := br.Prepare(ctx); err != nil {
			return nil, err
		}
		rep = br.Run(ctx)
	default:
		return nil, fmt.Errorf("unknown action %q (valid actions: %v)", action, Actions)
	}
	report.PrintReport(ctx.Writer(), rep)
	if rep.Failed() {
		return rep, fmt.Errorf("%s failed: %s", name, rep.Error)
	}
	return rep, nil
}

func (br *benchmarkRunner) newReport() *report.BenchmarkReport {
	return &report.BenchmarkReport{
		Name:      br.b.GetName(),
		Type:      br.input.Type,
		Input:     br.b.GetInput(),
		Host:      report.CollectHostInfo(),
		StartedAt: time.Now().Unix(),
	}
}

func (br *benchmarkRunner) Run(ctx *BenchmarkContext) *report.BenchmarkReport {
	return br.monitored(ctx, func(rep *report.BenchmarkReport) {
		for i := 0; i < br.input.Runs; i++ {
			zap.L().Info("starting benchmark", zap.String("name", br.b.GetName()), zap.Int("run", i+1), zap.Int("runs", br.input.Runs))
			out, err := br.b.Run(ctx)
			if err != nil {
				rep.Error = fmt.Errorf("running benchmark failed: %w", err).Error()
				return
			}
			record(rep, out)
		}
	})
}

func (br *benchmarkRunner) RunAll(ctx *BenchmarkContext) *report.BenchmarkReport {
	return br.monitored(ctx, func(rep *report.BenchmarkReport) {
		var out *BenchmarkOutput
		var err error
		if all, ok := br.b.(AllRunner); ok {
			out, err = all.RunAll(ctx)
		} else {
			out, err = br.cycle(ctx)
		}
		if err != nil {
			rep.Error = err.Error()
			return
		}
		record(rep, out)
	})
}

func (br *benchmarkRunner) cycle(ctx *BenchmarkContext) (*BenchmarkOutput, error) {
	if err := br.Cleanup(ctx); err != nil {
		return nil, err
	}
	if err := br.Prepare(ctx); err != nil {
		return nil, err
	}
	out, err := br.b.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("running benchmark failed: %w", err)
	}
	return out, nil
}

func (br *benchmarkRunner) monitored(ctx *BenchmarkContext, body func(*report.BenchmarkReport)) *report.BenchmarkReport {
	rep := br.newReport()
	if br.input.Monitor && ctx.Env != nil && ctx.Env.Target != nil {
		br.sm = systemmonitor.NewSystemMonitor(ctx.Env.Target)
		err := br.sm.StartMonitoring()
		if err != nil {
			rep.Error = fmt.Errorf("starting SystemMonitor failed: %w", err).Error()
			return rep
		}
	}

	body(rep)

	if br.sm != nil {
		br.sm.StopMonitoring()
		br.sm.WaitUntilStopped()
		rep.SystemMeasurements = br.sm.GetSystemMeasurements()
	}
	if rep.Failed() {
		zap.L().Error("benchmark failed", zap.String("name", br.b.GetName()), zap.String("error", rep.Error))
	} else {
		zap.L().Info("finished benchmark", zap.String("name", br.b.GetName()))
	}
	return rep
}

func record(rep *report.BenchmarkReport, out *BenchmarkOutput) {
	if out == nil {
		out = &BenchmarkOutput{}
	}
	rep.TotalTimeSec = append(rep.TotalTimeSec, out.TotalTimeSec)
	rep.Metrics = append(rep.Metrics, out.Metrics)
	rep.Metadata = append(rep.Metadata, out.Metadata)
}
