package main

import (
	"fmt"
	"os"

	"github.com/Octogonapus/ClusterBench/benchmark"
	benchmarkorchestrator "github.com/Octogonapus/ClusterBench/benchmark_orchestrator"
	"github.com/Octogonapus/ClusterBench/report"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var actionHelp = map[string]string{
	"init":     "Install tools and pull images",
	"generate": "Generate the data set locally",
	"prepare":  "Drop and recreate the data set",
	"load":     "Drop, recreate and load the data set",
	"run":      "Run the timed workload",
	"run-all":  "Run every workload or query",
	"cleanup":  "Remove everything prepare and run created",
	"cancel":   "Cancel work left running by the benchmark",
	"all":      "Cleanup, prepare, then run",
}

func newBenchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run benchmark drivers against running clusters",
	}
	for _, btype := range benchmark.BenchmarkTypes() {
		cmd.AddCommand(newDriverCommand(a, btype))
	}
	return cmd
}

func newDriverCommand(a *app, btype string) *cobra.Command {
	var runs int
	var monitor bool
	cmd := &cobra.Command{
		Use:   btype,
		Short: fmt.Sprintf("The %s benchmark", btype),
	}
	flags := append([]inputFlag{{name: "name", usage: "Name recorded in the report."}}, benchFlags[btype]...)
	addInputFlags(cmd.PersistentFlags(), flags)
	cmd.PersistentFlags().IntVar(&runs, "runs", 1, "Timed repetitions of run.")
	cmd.PersistentFlags().BoolVar(&monitor, "monitor", false, "Sample CPU, memory, disk and network on the target while running.")

	for _, action := range benchmark.Actions {
		action := action
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: actionHelp[action],
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				input, err := buildInput(cmd, flags)
				if err != nil {
					return err
				}
				b, err := benchmark.DeserializeBenchmark(&benchmark.SerializedBenchmark{Type: btype, Input: input})
				if err != nil {
					return err
				}
				runner := benchmark.NewBenchmarkRunner(b, benchmark.RunnerInput{Runs: runs, Monitor: monitor, Type: btype})
				ctx := &benchmark.BenchmarkContext{Ctx: cmd.Context(), Env: a.env, Local: a.local, Out: a.out}
				rep, err := runner.Do(ctx, action)
				if rep != nil {
					saveErr := a.save(cmd, rep)
					if err == nil {
						err = saveErr
					}
				}
				return err
			},
		})
	}
	return cmd
}

func (a *app) save(cmd *cobra.Command, rep *report.BenchmarkReport) error {
	store, err := a.openStore(cmd.Context())
	if err != nil || store == nil {
		return err
	}
	defer store.Close()
	err = store.Save(cmd.Context(), rep)
	if err != nil {
		return fmt.Errorf("saving report failed: %w", err)
	}
	zap.L().Info("saved report", zap.String("benchmark", rep.Name), zap.String("results", a.flags.results))
	return nil
}

func newPlanCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <file>",
		Short: "Run the cluster and benchmark steps of a YAML or JSON plan in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			plan, err := benchmarkorchestrator.LoadPlan(f)
			if err != nil {
				return err
			}

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			o := benchmarkorchestrator.NewPlanOrchestrator(&benchmarkorchestrator.PlanOrchestratorInput{
				Env:   a.env,
				Local: a.local,
				Out:   a.out,
				Store: store,
			})
			for _, s := range plan.Steps {
				err = o.AddStep(s)
				if err != nil {
					return err
				}
			}
			rep, err := o.Run(cmd.Context())
			if rep != nil {
				fmt.Fprintf(a.out, "Plan produced %d benchmark report(s).\n", len(rep.Reports))
			}
			return err
		},
	}
}
