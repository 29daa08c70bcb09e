package fio

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Octogonapus/ClusterBench/benchmark"
	"github.com/Octogonapus/ClusterBench/cluster"
	"github.com/Octogonapus/ClusterBench/container/containertest"
	"github.com/Octogonapus/ClusterBench/report"
	"github.com/Octogonapus/ClusterBench/target/targettest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const randrwReport = `note: both iodepth >= 1 and synchronous I/O engine are selected, queue depth will be capped at 1
{
  "fio version" : "fio-3.28",
  "jobs" : [
    {
      "jobname" : "randrw",
      "read" : {
        "io_bytes" : 104857600,
        "bw_bytes" : 10485760,
        "iops" : 2560.5,
        "clat_ns" : {
          "mean" : 11000.0,
          "percentile" : {
            "1.000000" : 5000,
            "99.000000" : 42000
          }
        },
        "lat_ns" : {
          "mean" : 12000.0
        }
      },
      "write" : {
        "io_bytes" : 52428800,
        "bw_bytes" : 5242880,
        "iops" : 1280.0,
        "clat_ns" : {
          "mean" : 20000.0,
          "percentile" : {
            "99.000000" : 80000
          }
        },
        "lat_ns" : {
          "mean" : 21000.0
        }
      }
    }
  ]
}
`

const seqreadReport = `{"jobs": [{"read": {"io_bytes": 1, "bw_bytes": 1073741824, "iops": 8192, "clat_ns": {"percentile": {"99.000000": 1000}}, "lat_ns": {"mean": 500}}, "write": {"io_bytes": 0}}]}`

func TestParseOutput(t *testing.T) {
	res, err := parseOutput([]byte(randrwReport), Profiles["randrw"])
	require.NoError(t, err)
	assert.Equal(t, []report.Metric{
		{Name: "read IOPS", Value: 2560.5, Unit: report.UnitOps},
		{Name: "read bandwidth", Value: 10485760, Unit: report.UnitRate},
		{Name: "read latency avg", Value: 12, Unit: report.UnitMicros},
		{Name: "read latency p99", Value: 42, Unit: report.UnitMicros},
		{Name: "write IOPS", Value: 1280, Unit: report.UnitOps},
		{Name: "write bandwidth", Value: 5242880, Unit: report.UnitRate},
		{Name: "write latency avg", Value: 21, Unit: report.UnitMicros},
		{Name: "write latency p99", Value: 80, Unit: report.UnitMicros},
	}, res.metrics(""))

	res, err = parseOutput([]byte(seqreadReport), Profiles["seqread"])
	require.NoError(t, err)
	assert.Len(t, res.metrics("seqread "), 4)
	assert.Equal(t, "seqread read IOPS", res.metrics("seqread ")[0].Name)

	_, err = parseOutput([]byte("fio: failed to open /dev/null\n"), Profiles["seqread"])
	require.ErrorContains(t, err, "failed to open")
	_, err = parseOutput([]byte(`{"jobs": []}`), Profiles["seqread"])
	require.Error(t, err)
}

func TestParseOutputTrailingWarnings(t *testing.T) {
	raw := randrwReport + "fio: file hash not empty on exit\nfio: 1 job failed to close {fd}\n"
	res, err := parseOutput([]byte(raw), Profiles["randrw"])
	require.NoError(t, err)
	assert.Equal(t, 2560.5, res.Read.IOPS)
	assert.Equal(t, 1280.0, res.Write.IOPS)
}

func TestFormatIOPS(t *testing.T) {
	assert.Equal(t, "512.00", formatIOPS(512))
	assert.Equal(t, "2.56K", formatIOPS(2560))
	assert.Equal(t, "1.50M", formatIOPS(1_500_000))
}

func TestJobFile(t *testing.T) {
	b, err := NewFioBenchmark(&FioInput{Size: "1G", Runtime: 30, NumJobs: 4, Directory: "/mnt/nvme"})
	require.NoError(t, err)
	job, err := b.(*bmark).jobFile(Profiles["seqwrite"])
	require.NoError(t, err)
	assert.Equal(t, `[seqwrite]
rw=write
bs=128k
size=1G
runtime=30
time_based=1
numjobs=4
iodepth=32
direct=1
ioengine=libaio
group_reporting=1
directory=/mnt/nvme
filename=fio_testfile
`, string(job))
}

func TestInputValidation(t *testing.T) {
	_, err := NewFioBenchmark(&FioInput{Profile: "mixed"})
	require.ErrorContains(t, err, "mixed")
	_, err = NewFioBenchmark(&FioInput{Size: "lots"})
	require.ErrorContains(t, err, "lots")
}

func newContext(remote *targettest.FakeTarget) *benchmark.BenchmarkContext {
	return &benchmark.BenchmarkContext{
		Ctx:   context.Background(),
		Env:   &cluster.Env{Engine: containertest.New(), Target: remote},
		Local: targettest.New(),
		Out:   &bytes.Buffer{},
	}
}

func TestRunOnTarget(t *testing.T) {
	remote := targettest.New()
	remote.Responses["--output-format=json"] = targettest.Response{Output: randrwReport}
	ctx := newContext(remote)
	b, err := NewFioBenchmark(&FioInput{})
	require.NoError(t, err)

	out, err := b.Run(ctx)
	require.NoError(t, err)
	assert.Len(t, out.Metrics, 8)
	var jobPath string
	for name := range remote.Files {
		if strings.HasPrefix(name, "/tmp/clusterbench-fio/randrw-") && strings.HasSuffix(name, ".fio") {
			jobPath = name
		}
	}
	require.NotEmpty(t, jobPath)
	assert.Len(t, jobPath, len("/tmp/clusterbench-fio/randrw-")+8+len(".fio"))
	assert.Contains(t, string(remote.Files[jobPath]), "rw=randrw")
	assert.True(t, remote.Ran("mkdir -p /tmp/clusterbench-fio"))
	assert.True(t, remote.Ran("fio "+jobPath+" --output-format=json"))
	assert.True(t, remote.Ran("rm -f "+jobPath+" /tmp/clusterbench-fio/fio_testfile"))
	assert.Contains(t, ctx.Out.(*bytes.Buffer).String(), "Profile: Random read/write mix (4K) (randrw)")
}

func TestRunAllProfiles(t *testing.T) {
	remote := targettest.New()
	remote.Responses["--output-format=json"] = targettest.Response{Output: seqreadReport}
	b, err := NewFioBenchmark(&FioInput{Profile: "all"})
	require.NoError(t, err)

	out, err := b.Run(newContext(remote))
	require.NoError(t, err)
	assert.Len(t, out.Metrics, 4*len(profileOrder))
	assert.Equal(t, "randrw read latency p99", out.Metrics[len(out.Metrics)-1].Name)
}

func TestRunFailure(t *testing.T) {
	remote := targettest.New()
	remote.Responses["--output-format=json"] = targettest.Response{Output: "fio: engine libaio not loadable\n", Err: errors.New("exit status 1")}
	b, err := NewFioBenchmark(&FioInput{})
	require.NoError(t, err)

	_, err = b.Run(newContext(remote))
	require.ErrorContains(t, err, "libaio not loadable")
	// the test file is removed even when fio fails
	assert.True(t, remote.Ran("fio_testfile"))
}

func TestInitRequiresFio(t *testing.T) {
	remote := targettest.New()
	remote.Responses["fio --version"] = targettest.Response{Err: errors.New("command not found")}
	b, err := NewFioBenchmark(&FioInput{})
	require.NoError(t, err)
	require.ErrorContains(t, b.(benchmark.Initializer).Init(newContext(remote)), "fio is not installed")
}
