package benchmarkorchestrator

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/Octogonapus/ClusterBench/benchmark"
	"github.com/Octogonapus/ClusterBench/cluster"
	resultstore "github.com/Octogonapus/ClusterBench/result_store"
	"github.com/Octogonapus/ClusterBench/target"
	"github.com/Octogonapus/ClusterBench/util"
	"go.uber.org/zap"
)

var clusterActions = []string{"init", "start", "stop"}

type PlanOrchestratorInput struct {
	Env   *cluster.Env
	Local target.Target
	Out   io.Writer
	// Optional. Every benchmark report is saved here.
	Store resultstore.Store
}

type plannedStep struct {
	step    *Step
	manager *cluster.Manager
	runner  benchmark.BenchmarkRunner
}

type planOrchestrator struct {
	input *PlanOrchestratorInput
	steps []*plannedStep
}

func NewPlanOrchestrator(input *PlanOrchestratorInput) BenchmarkOrchestrator {
	return &planOrchestrator{input: input}
}

func (o *planOrchestrator) AddStep(s *Step) error {
	ps := &plannedStep{step: s}
	switch s.Kind {
	case KindCluster:
		if !slices.Contains(clusterActions, s.Action) {
			return fmt.Errorf("step %s: unknown cluster action %q (valid actions: %v)", s, s.Action, clusterActions)
		}
		fw, err := cluster.DeserializeFramework(&cluster.SerializedFramework{Type: s.Type, Input: s.Input})
		if err != nil {
			return fmt.Errorf("step %s: %w", s, err)
		}
		if s.Name != "" && s.Role == "" {
			return fmt.Errorf("step %s: name %q needs a role: every role would share one container", s, s.Name)
		}
		if s.Role != "" && !slices.Contains(fw.Roles(), s.Role) {
			return fmt.Errorf("step %s: %s has no role %q (valid roles: %v)", s, fw.GetName(), s.Role, fw.Roles())
		}
		ps.manager = cluster.NewManager(fw, o.input.Env)
	case KindBenchmark:
		if !slices.Contains(benchmark.Actions, s.Action) {
			return fmt.Errorf("step %s: unknown benchmark action %q (valid actions: %v)", s, s.Action, benchmark.Actions)
		}
		b, err := benchmark.DeserializeBenchmark(&benchmark.SerializedBenchmark{Type: s.Type, Input: s.Input})
		if err != nil {
			return fmt.Errorf("step %s: %w", s, err)
		}
		ps.runner = benchmark.NewBenchmarkRunner(b, benchmark.RunnerInput{Runs: s.Runs, Monitor: s.Monitor, Type: s.Type})
	default:
		return fmt.Errorf("step %s: unknown kind %q (valid kinds: %s, %s)", s, s.Kind, KindCluster, KindBenchmark)
	}
	o.steps = append(o.steps, ps)
	return nil
}

func (o *planOrchestrator) Run(ctx context.Context) (*Report, error) {
	rep := &Report{}
	for i, ps := range o.steps {
		if o.input.Out != nil {
			util.Banner(o.input.Out, fmt.Sprintf("Step %d/%d: %s", i+1, len(o.steps), ps.step))
		}
		zap.L().Info("running plan step", zap.Int("index", i+1), zap.Stringer("step", ps.step))
		var err error
		if ps.manager != nil {
			err = o.runClusterStep(ctx, ps)
		} else {
			err = o.runBenchmarkStep(ctx, ps, rep)
		}
		if err != nil {
			return rep, fmt.Errorf("step %d (%s) failed: %w", i+1, ps.step, err)
		}
	}
	return rep, nil
}

func (o *planOrchestrator) runClusterStep(ctx context.Context, ps *plannedStep) error {
	m := ps.manager
	roles := m.Framework().Roles()
	if ps.step.Role != "" {
		roles = []string{ps.step.Role}
	}
	switch ps.step.Action {
	case "init":
		return m.Init(ctx)
	case "start":
		for _, role := range roles {
			err := m.Start(ctx, role, ps.step.Name, ps.step.Wait)
			if err != nil {
				return err
			}
		}
	case "stop":
		// dependents go first
		for i := len(roles) - 1; i >= 0; i-- {
			err := m.Stop(ctx, roles[i], ps.step.Name)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *planOrchestrator) runBenchmarkStep(ctx context.Context, ps *plannedStep, rep *Report) error {
	bctx := &benchmark.BenchmarkContext{Ctx: ctx, Env: o.input.Env, Local: o.input.Local, Out: o.input.Out}
	br, err := ps.runner.Do(bctx, ps.step.Action)
	if br == nil {
		return err
	}
	rep.Reports = append(rep.Reports, br)
	if o.input.Store != nil {
		saveErr := o.input.Store.Save(ctx, br)
		if saveErr != nil {
			zap.L().Error("saving report failed", zap.String("benchmark", br.Name), zap.Error(saveErr))
			if err == nil {
				err = saveErr
			}
		}
	}
	return err
}
