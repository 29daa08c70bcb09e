package tpch_mysql

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Octogonapus/ClusterBench/benchmark"
	"github.com/Octogonapus/ClusterBench/benchmark/mysqldb/mysqldbtest"
	"github.com/Octogonapus/ClusterBench/cluster"
	"github.com/Octogonapus/ClusterBench/container/containertest"
	"github.com/Octogonapus/ClusterBench/target/targettest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (sqlmock.Sqlmock, *containertest.FakeEngine, *targettest.FakeTarget, *benchmark.BenchmarkContext) {
	mock := mysqldbtest.Mock(t)
	eng := containertest.New()
	local := targettest.New()
	ctx := &benchmark.BenchmarkContext{
		Ctx:   context.Background(),
		Env:   &cluster.Env{Engine: eng, Target: targettest.New(), HostIP: "10.0.0.1"},
		Local: local,
		Out:   &bytes.Buffer{},
	}
	return mock, eng, local, ctx
}

func TestDefaults(t *testing.T) {
	b, err := NewTPCHMySQLBenchmark(&TPCHMySQLInput{})
	require.NoError(t, err)
	in := b.(*bmark).input
	assert.Equal(t, 0.5, in.ScaleFactor)
	assert.Equal(t, "/tmp/tpch_sf0.5", in.DataDir)
	assert.Equal(t, "tpch", in.Database)
	assert.Equal(t, 1, in.Query)
	assert.NotContains(t, b.GetInput(), "Password")

	_, err = NewTPCHMySQLBenchmark(&TPCHMySQLInput{Query: 2})
	require.ErrorContains(t, err, "query 2 not supported")
}

func TestSchemaCoversEveryTable(t *testing.T) {
	ddl, err := schema()
	require.NoError(t, err)
	require.Len(t, ddl, len(Tables))
	for _, table := range Tables {
		assert.True(t, strings.HasPrefix(ddl[table], "CREATE TABLE "+table+" ("), table)
		assert.Contains(t, ddl[table], "PRIMARY KEY")
	}
}

func TestEveryQueryIsEmbedded(t *testing.T) {
	for _, q := range queryOrder {
		sql, err := readQuery(q)
		require.NoError(t, err)
		assert.Contains(t, sql, "lineitem")
	}
}

func TestInitSkipsExistingDBGen(t *testing.T) {
	_, eng, local, ctx := setup(t)
	b, err := NewTPCHMySQLBenchmark(&TPCHMySQLInput{})
	require.NoError(t, err)

	require.NoError(t, b.(benchmark.Initializer).Init(ctx))
	assert.False(t, local.Ran("git clone"))
	assert.Empty(t, eng.OneOffs)
}

func TestInitClonesAndBuilds(t *testing.T) {
	_, eng, local, ctx := setup(t)
	local.Responses["test -x"] = targettest.Response{Err: errors.New("exit status 1")}
	b, err := NewTPCHMySQLBenchmark(&TPCHMySQLInput{})
	require.NoError(t, err)

	require.NoError(t, b.(benchmark.Initializer).Init(ctx))
	assert.True(t, local.Ran("git clone https://github.com/electrum/tpch-dbgen.git /tmp/tpch-dbgen"))
	require.Len(t, eng.OneOffs, 1)
	spec := eng.OneOffs[0]
	assert.Equal(t, DefaultBuildImage, spec.Image)
	assert.Equal(t, []string{"/tmp/tpch-dbgen:/build"}, spec.Binds)
	assert.Equal(t, "/build", spec.WorkingDir)
	assert.Equal(t, "make", spec.Cmd[0])
	assert.Contains(t, eng.Pulled, DefaultBuildImage)
}

func TestPrepareCreatesAndLoadsTables(t *testing.T) {
	mock, _, local, ctx := setup(t)
	local.Responses["lineitem.tbl"] = targettest.Response{Err: errors.New("exit status 1")}
	b, err := NewTPCHMySQLBenchmark(&TPCHMySQLInput{})
	require.NoError(t, err)

	ddl, err := schema()
	require.NoError(t, err)
	mysqldbtest.ExpectReset(mock, "tpch")
	for _, table := range Tables {
		mock.ExpectExec(ddl[table]).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	for _, table := range Tables[:len(Tables)-1] {
		mock.ExpectExec("LOAD DATA LOCAL INFILE 'Reader::clusterbench_" + table + "' INTO TABLE `" + table + "` FIELDS TERMINATED BY '|' LINES TERMINATED BY '|\\n'").
			WillReturnResult(sqlmock.NewResult(0, 5))
	}

	require.NoError(t, b.Prepare(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
	assert.True(t, local.Ran("./dbgen -s 0.5 -f"))
	assert.True(t, local.Ran("mv /tmp/tpch-dbgen/*.tbl /tmp/tpch_sf0.5/"))
	assert.Contains(t, ctx.Out.(*bytes.Buffer).String(), "Skipping lineitem (no data file)")
}

func TestRunTimesQuery(t *testing.T) {
	mock, _, _, ctx := setup(t)
	b, err := NewTPCHMySQLBenchmark(&TPCHMySQLInput{Query: 6})
	require.NoError(t, err)

	sql, err := readQuery(6)
	require.NoError(t, err)
	mock.ExpectQuery(sql).WillReturnRows(sqlmock.NewRows([]string{"revenue"}).AddRow("123.45"))

	out, err := b.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, out.Metrics, 1)
	assert.Equal(t, "Query 6 time", out.Metrics[0].Name)
	assert.Contains(t, ctx.Out.(*bytes.Buffer).String(), "TPC-H QUERY 6: FORECASTING REVENUE CHANGE")
	assert.Contains(t, ctx.Out.(*bytes.Buffer).String(), "123.45")
}

func TestRunAllRunsEveryQuery(t *testing.T) {
	mock, _, _, ctx := setup(t)
	b, err := NewTPCHMySQLBenchmark(&TPCHMySQLInput{})
	require.NoError(t, err)

	for _, q := range queryOrder {
		sql, err := readQuery(q)
		require.NoError(t, err)
		mock.ExpectQuery(sql).WillReturnRows(sqlmock.NewRows([]string{"x"}).AddRow(1))
	}

	out, err := b.(benchmark.AllRunner).RunAll(ctx)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	names := []string{}
	for _, m := range out.Metrics {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"Query 1 time", "Query 6 time", "Query 14 time", "Total query time"}, names)
}

func TestRunFailsOnQueryError(t *testing.T) {
	mock, _, _, ctx := setup(t)
	b, err := NewTPCHMySQLBenchmark(&TPCHMySQLInput{})
	require.NoError(t, err)

	sql, err := readQuery(1)
	require.NoError(t, err)
	mock.ExpectQuery(sql).WillReturnError(errors.New("Table 'tpch.lineitem' doesn't exist"))

	_, err = b.Run(ctx)
	require.ErrorContains(t, err, "doesn't exist")
}
