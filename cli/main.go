package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/Octogonapus/ClusterBench/benchmark/fio"
	_ "github.com/Octogonapus/ClusterBench/benchmark/flink_sql"
	_ "github.com/Octogonapus/ClusterBench/benchmark/tpcc_mysql"
	_ "github.com/Octogonapus/ClusterBench/benchmark/tpcds_hive"
	_ "github.com/Octogonapus/ClusterBench/benchmark/tpcds_spark"
	_ "github.com/Octogonapus/ClusterBench/benchmark/tpch_mysql"
	_ "github.com/Octogonapus/ClusterBench/benchmark/ycsb_hbase"
	"github.com/Octogonapus/ClusterBench/cluster"
	"github.com/Octogonapus/ClusterBench/config"
	"github.com/Octogonapus/ClusterBench/container"
	"github.com/Octogonapus/ClusterBench/logging"
	resultstore "github.com/Octogonapus/ClusterBench/result_store"
	"github.com/Octogonapus/ClusterBench/target"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type globalFlags struct {
	logLevel   string
	dockerHost string
	hostIP     string
	sshHost    string
	sshUser    string
	sshKey     string
	sshPort    int
	results    string
}

// app holds what every subcommand shares. It is built once the flags are parsed.
type app struct {
	flags globalFlags
	out   io.Writer
	env   *cluster.Env
	local target.Target
	ssh   *target.SSHTarget
}

func (a *app) setUp(cmd *cobra.Command, args []string) error {
	_, err := logging.Setup(a.flags.logLevel)
	if err != nil {
		return err
	}

	engine, err := container.NewDockerEngine(&container.DockerEngineInput{Endpoint: a.flags.dockerHost, Echo: a.out})
	if err != nil {
		return err
	}

	a.local = target.NewLocalTarget()
	var t target.Target = a.local
	if a.flags.sshHost != "" {
		a.ssh, err = target.NewSSHTarget(&target.SSHTargetInput{
			User:    a.flags.sshUser,
			Host:    a.flags.sshHost,
			SSHPort: a.flags.sshPort,
			KeyPath: a.flags.sshKey,
		})
		if err != nil {
			return err
		}
		t = a.ssh
	}
	zap.L().Debug("environment ready", zap.Stringer("target", t), zap.String("docker", a.flags.dockerHost))

	a.env = &cluster.Env{Engine: engine, Target: t, Out: a.out, HostIP: a.flags.hostIP}
	return nil
}

func (a *app) tearDown() {
	if a.ssh != nil {
		a.ssh.Close()
	}
	zap.L().Sync()
}

// openStore returns the configured result store, or nil when --results is empty.
func (a *app) openStore(ctx context.Context) (resultstore.Store, error) {
	return resultstore.Open(ctx, a.flags.results, a.out)
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:               "clusterbench",
		Short:             "Stand up containerized data clusters and benchmark them",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setUp,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.logLevel, "log-level", config.StringEnv(config.EnvLogLevel, "info"), "Log level: debug, info, warn or error.")
	pf.StringVar(&a.flags.dockerHost, "docker-host", config.StringEnv(config.EnvDockerHost, ""), "Docker daemon endpoint. Uses the standard Docker environment when empty.")
	pf.StringVar(&a.flags.hostIP, "host-ip", config.StringEnv(config.EnvHostIP, ""), "Address advertised by cluster roles. Detected with `hostname -I` on the target when empty.")
	pf.StringVar(&a.flags.sshHost, "ssh-host", config.StringEnv(config.EnvSSHHost, ""), "Run host commands over SSH on this host instead of locally.")
	pf.StringVar(&a.flags.sshUser, "ssh-user", config.StringEnv(config.EnvSSHUser, "root"), "SSH user.")
	pf.StringVar(&a.flags.sshKey, "ssh-key", config.StringEnv(config.EnvSSHKey, ""), "SSH private key.")
	pf.IntVar(&a.flags.sshPort, "ssh-port", config.IntEnv(config.EnvSSHPort, 22), "SSH port.")
	pf.StringVar(&a.flags.results, "results", config.StringEnv(config.EnvResults, ""), "Where reports are saved: a directory, file://, s3://bucket/prefix or a libsql URL.")

	for _, ftype := range cluster.FrameworkTypes() {
		root.AddCommand(newClusterCommand(a, ftype))
	}
	root.AddCommand(newBenchCommand(a))
	root.AddCommand(newPlanCommand(a))
	return root
}

func main() {
	err := config.LoadDotEnv(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{out: os.Stdout}
	err = newRootCommand(a).ExecuteContext(ctx)
	stop()
	a.tearDown()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
