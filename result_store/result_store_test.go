package resultstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Octogonapus/ClusterBench/report"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *report.BenchmarkReport {
	return &report.BenchmarkReport{
		Name:         "ycsb hbase/a",
		Type:         "ycsb-hbase",
		Input:        map[string]any{"Workload": "a"},
		TotalTimeSec: []float64{1.5, 2.5},
		Metrics: [][]report.Metric{
			{{Name: "[OVERALL] Throughput(ops/sec)", Value: 1000, Unit: report.UnitOps}},
			{{Name: "[OVERALL] Throughput(ops/sec)", Value: 1100, Unit: report.UnitOps}},
		},
		StartedAt: 1718000000,
	}
}

func TestReportKey(t *testing.T) {
	assert.Equal(t, "ycsb_hbase_a/1718000000", reportKey(sampleReport()))
	assert.Equal(t, "benchmark/0", reportKey(&report.BenchmarkReport{}))
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, "", io.Discard)
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = Open(ctx, "results", io.Discard)
	require.NoError(t, err)
	assert.Equal(t, &fileStore{dir: "results"}, s)

	s, err = Open(ctx, "file:///var/lib/clusterbench", io.Discard)
	require.NoError(t, err)
	assert.Equal(t, &fileStore{dir: "/var/lib/clusterbench"}, s)

	t.Setenv("AWS_REGION", "us-east-1")
	s, err = Open(ctx, "s3://bench-results/runs/2024", io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "bench-results", s.(*s3Store).bucket)
	assert.Equal(t, "runs/2024", s.(*s3Store).prefix)

	_, err = Open(ctx, "ftp://example.com/results", io.Discard)
	require.ErrorContains(t, err, "unsupported")
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	require.NoError(t, s.Save(context.Background(), sampleReport()))
	require.NoError(t, s.Close())

	buf, err := os.ReadFile(filepath.Join(dir, "ycsb_hbase_a", "1718000000.json"))
	require.NoError(t, err)
	var got report.BenchmarkReport
	require.NoError(t, json.Unmarshal(buf, &got))
	assert.Equal(t, "ycsb-hbase", got.Type)
	assert.Equal(t, []float64{1.5, 2.5}, got.TotalTimeSec)
}

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string]string
	err     error
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*input.Bucket+"/"+*input.Key] = string(body)
	return &manager.UploadOutput{}, nil
}

func TestS3StoreUploadsReportAndSummary(t *testing.T) {
	up := &fakeUploader{objects: map[string]string{}}
	var progress bytes.Buffer
	s := newS3Store("bucket", "runs", up, &progress)

	rep := sampleReport()
	require.NoError(t, s.Save(context.Background(), rep))
	keys := []string{}
	for k := range up.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{
		"bucket/runs/ycsb_hbase_a/1718000000/report.json",
		"bucket/runs/ycsb_hbase_a/1718000000/summary.txt",
	}, keys)
	assert.Contains(t, up.objects["bucket/runs/ycsb_hbase_a/1718000000/summary.txt"], "Benchmark Summary")
	assert.Contains(t, progress.String(), "Uploading results:")

	rep.SystemMeasurements = &report.SystemMeasurements{}
	require.NoError(t, s.Save(context.Background(), rep))
	assert.Contains(t, up.objects, "bucket/runs/ycsb_hbase_a/1718000000/measurements.json")
}

func TestS3StoreReportsUploadErrors(t *testing.T) {
	s := newS3Store("bucket", "", &fakeUploader{err: errors.New("AccessDenied")}, nil)
	require.ErrorContains(t, s.Save(context.Background(), sampleReport()), "AccessDenied")
}

func TestLibsqlStore(t *testing.T) {
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	old := connect
	var gotURL string
	connect = func(url string) (*sqlx.DB, error) {
		gotURL = url
		return sqlx.NewDb(raw, "libsql"), nil
	}
	t.Cleanup(func() { connect = old })

	mock.ExpectExec(createTable).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insertReport).
		WithArgs("ycsb hbase/a", "ycsb-hbase", int64(1718000000), 1, "boom", 4.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectClose()

	s, err := Open(context.Background(), "libsql://results-org.turso.io?authToken=secret", io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "libsql://results-org.turso.io?authToken=secret", gotURL)

	rep := sampleReport()
	rep.Error = "boom"
	require.NoError(t, s.Save(context.Background(), rep))
	require.NoError(t, s.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}
