package main

import (
	"fmt"
	"strings"

	"github.com/Octogonapus/ClusterBench/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// inputFlag is a string flag copied into a framework or benchmark input map when set. The input key is
// the flag name without dashes; mapstructure matches it against field names case-insensitively, so
// "data-dir" fills DataDir and "record-count" fills RecordCount.
type inputFlag struct {
	name  string
	usage string
	// Environment variable used when the flag is not given.
	env string
}

func (f inputFlag) key() string {
	return strings.ReplaceAll(f.name, "-", "")
}

var (
	hostFlag    = inputFlag{name: "host", usage: "Advertised host or IP. Detected from the target when empty."}
	portFlag    = inputFlag{name: "port", usage: "Service port."}
	imageFlag   = inputFlag{name: "image", usage: "Container image."}
	dataDirFlag = inputFlag{name: "data-dir", usage: "Host directory mounted into the container."}

	mysqlFlags = []inputFlag{
		hostFlag, portFlag,
		{name: "user", usage: "MySQL user."},
		{name: "password", usage: "MySQL password.", env: config.EnvMySQLPassword},
		{name: "database", usage: "Database that is dropped and recreated."},
	}
	tpcdsDataFlags = []inputFlag{
		{name: "scale-factor", usage: "TPC-DS scale factor."},
		{name: "hdfs-base", usage: "HDFS directory holding the raw tables."},
		{name: "local-dir", usage: "Where dsdgen writes .dat files."},
		{name: "kit-dir", usage: "tpcds-kit checkout."},
		{name: "namenode", usage: "Namenode container that runs hdfs dfs."},
		{name: "namenode-data-dir", usage: "Host directory mounted into the namenode."},
	}
)

var engineFlags = map[string][]inputFlag{
	"hdfs": {
		imageFlag, hostFlag, portFlag, dataDirFlag,
		{name: "web-ui-port", usage: "Namenode web UI port."},
		{name: "namenode", usage: "Namenode URL (hdfs://host:port) for datanodes and clients."},
	},
	"spark": {
		imageFlag, hostFlag, portFlag,
		{name: "web-ui-port", usage: "Master web UI port."},
		{name: "master", usage: "Master URL (spark://host:port) a worker registers with."},
		{name: "local-ip", usage: "Worker's advertised address."},
		{name: "cores", usage: "Worker cores."},
		{name: "memory", usage: "Worker memory, e.g. 1g."},
	},
	"hive": {
		imageFlag, hostFlag, portFlag, dataDirFlag,
		{name: "hdfs", usage: "HDFS namenode URL for the warehouse."},
		{name: "metastore-port", usage: "Metastore thrift port."},
		{name: "db-driver", usage: "Metastore database: derby, postgres or mysql."},
		{name: "db-url", usage: "Metastore JDBC URL."},
		{name: "db-user", usage: "Metastore database user."},
		{name: "db-password", usage: "Metastore database password."},
		{name: "metastore", usage: "Remote metastore URI (thrift://host:port) for HiveServer2."},
		{name: "hiveserver2", usage: "HiveServer2 address (host:port) used by cmd and shell."},
	},
	"hbase": {
		imageFlag, hostFlag, dataDirFlag,
		{name: "zookeeper", usage: "ZooKeeper quorum address (host:port)."},
		{name: "zk-port", usage: "Port of the zookeeper role."},
		{name: "master-host", usage: "Master address for region servers."},
		{name: "rs-port", usage: "Region server RPC port."},
		{name: "rs-info-port", usage: "Region server info port."},
		{name: "hdfs", usage: "HDFS namenode URL for hbase.rootdir."},
		{name: "heap-size", usage: "HBASE_HEAPSIZE, e.g. 1g."},
	},
	"flink": {
		imageFlag, hostFlag,
		{name: "rpc-port", usage: "JobManager RPC port."},
		{name: "web-ui-port", usage: "REST and web UI port."},
		{name: "jobmanager", usage: "JobManager RPC address (host:port) a TaskManager registers with."},
		{name: "local-ip", usage: "TaskManager's advertised address."},
		{name: "slots", usage: "Task slots per TaskManager."},
		{name: "memory", usage: "TaskManager process memory, e.g. 2g."},
	},
	"mysql": {
		imageFlag, hostFlag, portFlag, dataDirFlag,
		{name: "root-password", usage: "Root password.", env: config.EnvMySQLPassword},
		{name: "database", usage: "Database created on first start."},
		{name: "user", usage: "Client user for cmd."},
	},
}

var benchFlags = map[string][]inputFlag{
	"tpcds-hive": append([]inputFlag{
		imageFlag,
		{name: "hiveserver2", usage: "HiveServer2 address (host:port)."},
		{name: "database", usage: "Hive database."},
	}, tpcdsDataFlags...),
	"tpcds-spark": append([]inputFlag{
		imageFlag,
		{name: "master", usage: "Spark master URL."},
		{name: "output", usage: "Where Query 99 results are written."},
		{name: "shuffle-partitions", usage: "spark.sql.shuffle.partitions."},
		{name: "executor-memory", usage: "Executor memory, e.g. 1g."},
		{name: "executor-cores", usage: "Executor cores."},
	}, tpcdsDataFlags...),
	"ycsb-hbase": {
		{name: "zookeeper", usage: "ZooKeeper quorum address (host:port)."},
		{name: "master", usage: "HBase master container that runs the shell."},
		{name: "table", usage: "HBase table."},
		{name: "workload", usage: "YCSB workload a-f."},
		{name: "record-count", usage: "Records loaded."},
		{name: "operation-count", usage: "Operations per run."},
		{name: "threads", usage: "YCSB client threads."},
		{name: "ycsb-dir", usage: "Where YCSB is installed."},
		{name: "version", usage: "YCSB version."},
	},
	"flink-sql": {
		hostFlag, portFlag,
		{name: "workload", usage: "identity, wordcount, window or all."},
		{name: "records", usage: "Records generated per job."},
		{name: "parallelism", usage: "Job parallelism."},
		{name: "jobmanager", usage: "JobManager container the SQL client runs in."},
	},
	"tpcc-mysql": append([]inputFlag{
		imageFlag,
		{name: "tables", usage: "sysbench tables."},
		{name: "table-size", usage: "Rows per table."},
		{name: "threads", usage: "sysbench threads."},
		{name: "duration", usage: "Run time in seconds."},
		{name: "report-interval", usage: "Seconds between interim reports."},
	}, mysqlFlags...),
	"tpch-mysql": append([]inputFlag{
		{name: "scale-factor", usage: "dbgen scale factor."},
		{name: "dbgen-dir", usage: "tpch-dbgen checkout."},
		{name: "data-dir", usage: "Where dbgen writes .tbl files."},
		{name: "build-image", usage: "Image dbgen is compiled in."},
		{name: "query", usage: "Query run by run: 1, 6 or 14."},
	}, mysqlFlags...),
	"fio": {
		{name: "profile", usage: "seqread, seqwrite, randread, randwrite, randrw or all."},
		{name: "size", usage: "Test file size, e.g. 512M."},
		{name: "runtime", usage: "Seconds per profile."},
		{name: "numjobs", usage: "Parallel fio jobs."},
		{name: "directory", usage: "Directory holding the test file."},
	},
}

func addInputFlags(fs *pflag.FlagSet, flags []inputFlag) {
	for _, f := range flags {
		fs.String(f.name, "", f.usage)
	}
	fs.StringToString("set", nil, "Extra input fields as Key=Value pairs.")
}

// buildInput collects the flags the user set, then their environment fallbacks, then --set pairs.
func buildInput(cmd *cobra.Command, flags []inputFlag) (map[string]any, error) {
	input := map[string]any{}
	for _, f := range flags {
		if cmd.Flags().Changed(f.name) {
			v, err := cmd.Flags().GetString(f.name)
			if err != nil {
				return nil, err
			}
			input[f.key()] = v
		} else if f.env != "" {
			if v := config.StringEnv(f.env, ""); v != "" {
				input[f.key()] = v
			}
		}
	}
	set, err := cmd.Flags().GetStringToString("set")
	if err != nil {
		return nil, err
	}
	for k, v := range set {
		if k == "" {
			return nil, fmt.Errorf("--set needs Key=Value pairs")
		}
		input[k] = v
	}
	return input, nil
}
