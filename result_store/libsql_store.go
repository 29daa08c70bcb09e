package resultstore

import (
	"context"
	"fmt"

	"github.com/Octogonapus/ClusterBench/report"
	"github.com/jmoiron/sqlx"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	"go.uber.org/zap"
)

// connect opens the libsql database. Tests replace it.
var connect = func(url string) (*sqlx.DB, error) {
	return sqlx.Open("libsql", url)
}

const createTable = `CREATE TABLE IF NOT EXISTS benchmark_reports (
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	error TEXT,
	total_time_sec REAL NOT NULL,
	report TEXT NOT NULL
)`

const insertReport = `INSERT INTO benchmark_reports (name, type, started_at, failed, error, total_time_sec, report) VALUES (?, ?, ?, ?, ?, ?, ?)`

type libsqlStore struct {
	db *sqlx.DB
}

// NewLibsqlStore stores reports as rows of benchmark_reports, creating the table if it is missing.
// Turso URLs carry their auth token as an authToken query parameter.
func NewLibsqlStore(ctx context.Context, url string) (Store, error) {
	db, err := connect(url)
	if err != nil {
		return nil, fmt.Errorf("opening result database failed: %w", err)
	}
	_, err = db.ExecContext(ctx, createTable)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating benchmark_reports failed: %w", err)
	}
	return &libsqlStore{db: db}, nil
}

func (s *libsqlStore) Save(ctx context.Context, rep *report.BenchmarkReport) error {
	buf, err := marshal(rep)
	if err != nil {
		return err
	}
	total := 0.0
	for _, t := range rep.TotalTimeSec {
		total += t
	}
	failed := 0
	if rep.Failed() {
		failed = 1
	}
	_, err = s.db.ExecContext(ctx, insertReport, rep.Name, rep.Type, rep.StartedAt, failed, rep.Error, total, string(buf))
	if err != nil {
		return fmt.Errorf("inserting report %s failed: %w", rep.Name, err)
	}
	zap.L().Info("saved report", zap.String("name", rep.Name), zap.Int64("startedAt", rep.StartedAt))
	return nil
}

func (s *libsqlStore) Close() error {
	return s.db.Close()
}
