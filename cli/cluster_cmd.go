package main

import (
	"fmt"
	"os"

	"github.com/Octogonapus/ClusterBench/cluster"
	"github.com/spf13/cobra"
)

func (a *app) manager(cmd *cobra.Command, ftype string) (*cluster.Manager, error) {
	input, err := buildInput(cmd, engineFlags[ftype])
	if err != nil {
		return nil, err
	}
	fw, err := cluster.DeserializeFramework(&cluster.SerializedFramework{Type: ftype, Input: input})
	if err != nil {
		return nil, err
	}
	return cluster.NewManager(fw, a.env), nil
}

// roles returns the role named by args, or every role of the framework. A container name only
// identifies one role, so it cannot be combined with all roles.
func roles(m *cluster.Manager, args []string, name string) ([]string, error) {
	if len(args) > 0 {
		return args[:1], nil
	}
	if name != "" {
		return nil, fmt.Errorf("--name %s needs a role: every role would share one container", name)
	}
	return m.Framework().Roles(), nil
}

func newClusterCommand(a *app, ftype string) *cobra.Command {
	// for the help text and the optional subcommands
	sample, err := cluster.DeserializeFramework(&cluster.SerializedFramework{Type: ftype})
	if err != nil {
		panic(fmt.Errorf("%s: %w", ftype, err))
	}

	cmd := &cobra.Command{
		Use:   ftype,
		Short: fmt.Sprintf("Manage %s roles (%v)", ftype, sample.Roles()),
	}
	addInputFlags(cmd.PersistentFlags(), engineFlags[ftype])

	var name string
	var wait bool
	var follow bool
	var tail string

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Pull the images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd, ftype)
			if err != nil {
				return err
			}
			return m.Init(cmd.Context())
		},
	})

	start := &cobra.Command{
		Use:   "start [role]",
		Short: "Start one role, or every role in order. An existing container with the same name is replaced.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd, ftype)
			if err != nil {
				return err
			}
			rs, err := roles(m, args, name)
			if err != nil {
				return err
			}
			for _, role := range rs {
				err = m.Start(cmd.Context(), role, name, wait)
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
	start.Flags().BoolVar(&wait, "wait", false, "Wait for the role's dependencies to accept connections first.")
	cmd.AddCommand(start)

	cmd.AddCommand(&cobra.Command{
		Use:   "stop [role]",
		Short: "Remove one role's container, or every role's in reverse order. Missing containers are fine.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd, ftype)
			if err != nil {
				return err
			}
			rs, err := roles(m, args, name)
			if err != nil {
				return err
			}
			for i := len(rs) - 1; i >= 0; i-- {
				err = m.Stop(cmd.Context(), rs[i], name)
				if err != nil {
					return err
				}
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status [role]",
		Short: "Show whether the role containers are running",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd, ftype)
			if err != nil {
				return err
			}
			rs, err := roles(m, args, name)
			if err != nil {
				return err
			}
			for _, role := range rs {
				_, err = m.Status(cmd.Context(), role, name)
				if err != nil {
					return err
				}
			}
			return nil
		},
	})

	logs := &cobra.Command{
		Use:   "logs <role>",
		Short: "Print a role's container logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd, ftype)
			if err != nil {
				return err
			}
			return m.Logs(cmd.Context(), args[0], name, follow, tail)
		},
	}
	logs.Flags().BoolVarP(&follow, "follow", "f", false, "Follow the log output.")
	logs.Flags().StringVar(&tail, "tail", "all", "Number of lines to show from the end.")
	cmd.AddCommand(logs)

	cmd.AddCommand(&cobra.Command{
		Use:   "exec <role> -- <command>...",
		Short: "Run a command inside a running role container",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd, ftype)
			if err != nil {
				return err
			}
			return m.Exec(cmd.Context(), args[0], name, args[1:])
		},
	})

	if _, ok := sample.(cluster.Commander); ok {
		cmd.AddCommand(&cobra.Command{
			Use:   "cmd -- <args>...",
			Short: fmt.Sprintf("Run the %s client once in a throwaway container", ftype),
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := a.manager(cmd, ftype)
				if err != nil {
					return err
				}
				return m.Cmd(cmd.Context(), args)
			},
		})
	}
	if _, ok := sample.(cluster.Sheller); ok {
		cmd.AddCommand(&cobra.Command{
			Use:   "shell",
			Short: fmt.Sprintf("Open an interactive %s client", ftype),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := a.manager(cmd, ftype)
				if err != nil {
					return err
				}
				return m.Shell(cmd.Context())
			},
		})
	}

	switch ftype {
	case "spark":
		cmd.AddCommand(newSparkSubmitCommand(a))
	case "flink":
		cmd.AddCommand(newFlinkSubmitCommand(a), newFlinkSQLCommand(a))
	}

	cmd.PersistentFlags().StringVar(&name, "name", "", "Container name. Defaults to the role's standard name.")
	return cmd
}

func newSparkSubmitCommand(a *app) *cobra.Command {
	input := &cluster.SparkSubmitInput{}
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Run a PySpark script with spark-submit in a throwaway container",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			input.Image, _ = cmd.Flags().GetString("image")
			input.Master, _ = cmd.Flags().GetString("master")
			if input.Master == "" {
				host, err := a.env.ResolveHost("")
				if err != nil {
					return err
				}
				input.Master = fmt.Sprintf("spark://%s:7077", host)
			}
			return cluster.SparkSubmit(cmd.Context(), a.env, input, a.out)
		},
	}
	cmd.Flags().StringVar(&input.Script, "script", "", "Local path of the PySpark script.")
	cmd.Flags().StringVar(&input.ExecutorMemory, "executor-memory", "1g", "Executor memory.")
	cmd.Flags().IntVar(&input.ExecutorCores, "executor-cores", 1, "Executor cores.")
	cmd.MarkFlagRequired("script")
	return cmd
}

func newFlinkSubmitCommand(a *app) *cobra.Command {
	input := &cluster.FlinkSubmitInput{}
	cmd := &cobra.Command{
		Use:   "submit [-- <job args>...]",
		Short: "Copy a jar into the JobManager and run it with flink run",
		RunE: func(cmd *cobra.Command, args []string) error {
			input.Args = args
			return cluster.FlinkSubmit(cmd.Context(), a.env, input)
		},
	}
	cmd.Flags().StringVar(&input.Jar, "jar", "", "Local path of the job jar.")
	cmd.Flags().StringVar(&input.JobManager, "address", "localhost:8081", "JobManager REST address passed to flink run -m.")
	cmd.Flags().IntVarP(&input.Parallelism, "parallelism", "p", 4, "Job parallelism.")
	cmd.Flags().StringVarP(&input.Class, "class", "c", "", "Entry class.")
	cmd.Flags().StringVar(&input.Container, "container", cluster.DefaultFlinkJobManager, "JobManager container.")
	cmd.MarkFlagRequired("jar")
	return cmd
}

func newFlinkSQLCommand(a *app) *cobra.Command {
	var file, containerName string
	cmd := &cobra.Command{
		Use:   "sql",
		Short: "Run a SQL script with the embedded Flink SQL client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			return cluster.FlinkSQL(cmd.Context(), a.env, containerName, sql, a.out)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "SQL script.")
	cmd.Flags().StringVar(&containerName, "container", cluster.DefaultFlinkJobManager, "JobManager container.")
	cmd.MarkFlagRequired("file")
	return cmd
}
