// Package mysqldb holds what the MySQL benchmarks share: connecting, waiting for the server, resetting
// the benchmark database, bulk loading and timed queries.
package mysqldb

import (
	"context"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Octogonapus/ClusterBench/cluster"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Readiness budget for the server.
var (
	WaitBudget   = 60 * time.Second
	WaitInterval = 2 * time.Second
)

// Connect opens a connection pool for a DSN. Tests replace it to hand out sqlmock connections.
var Connect = func(dsn string) (*sqlx.DB, error) {
	return sqlx.Open("mysql", dsn)
}

var identRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Input is the connection part of every MySQL benchmark input.
type Input struct {
	// Server host. Detected from the cluster target when empty.
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

func (in *Input) WithDefaults(database string) {
	if in.Port == 0 {
		in.Port = 3306
	}
	if in.User == "" {
		in.User = "root"
	}
	if in.Password == "" {
		in.Password = cluster.DefaultMySQLPassword
	}
	if in.Database == "" {
		in.Database = database
	}
}

func (in *Input) Validate() error {
	if !identRegex.MatchString(in.Database) {
		return fmt.Errorf("invalid database name %q", in.Database)
	}
	return nil
}

// DSN builds the driver DSN for host. An empty database connects without selecting one.
func (in *Input) DSN(host, database string) string {
	cfg := mysql.NewConfig()
	cfg.User = in.User
	cfg.Passwd = in.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(in.Port))
	cfg.DBName = database
	cfg.AllowNativePasswords = true
	cfg.Timeout = 5 * time.Second
	return cfg.FormatDSN()
}

// Open connects to the server and, when database is set, selects it.
func (in *Input) Open(env *cluster.Env, database string) (*sqlx.DB, error) {
	host, err := env.ResolveHost(in.Host)
	if err != nil {
		return nil, err
	}
	db, err := Connect(in.DSN(host, database))
	if err != nil {
		return nil, fmt.Errorf("connecting to MySQL at %s:%d failed: %w", host, in.Port, err)
	}
	return db, nil
}

// WaitReady pings the server until it answers or the budget is spent.
func WaitReady(ctx context.Context, db *sqlx.DB) error {
	deadline := time.Now().Add(WaitBudget)
	for {
		err := db.PingContext(ctx)
		if err == nil {
			return nil
		}
		zap.L().Debug("MySQL not ready", zap.Error(err))
		if time.Now().Add(WaitInterval).After(deadline) {
			return fmt.Errorf("MySQL did not answer within %s: %w: %w", WaitBudget, cluster.ErrNotReady, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(WaitInterval):
		}
	}
}

// ResetDatabase drops and recreates a database.
func ResetDatabase(ctx context.Context, db *sqlx.DB, name string) error {
	if !identRegex.MatchString(name) {
		return fmt.Errorf("invalid database name %q", name)
	}
	_, err := db.ExecContext(ctx, "DROP DATABASE IF EXISTS `"+name+"`")
	if err != nil {
		return fmt.Errorf("dropping database %s failed: %w", name, err)
	}
	_, err = db.ExecContext(ctx, "CREATE DATABASE `"+name+"`")
	if err != nil {
		return fmt.Errorf("creating database %s failed: %w", name, err)
	}
	return nil
}

// LoadTable bulk loads '|' separated rows produced by open into table. Rows end in "|\n".
func LoadTable(ctx context.Context, db *sqlx.DB, table string, open func() io.Reader) (int64, error) {
	if !identRegex.MatchString(table) {
		return 0, fmt.Errorf("invalid table name %q", table)
	}
	handler := "clusterbench_" + table
	mysql.RegisterReaderHandler(handler, open)
	defer mysql.DeregisterReaderHandler(handler)

	res, err := db.ExecContext(ctx, fmt.Sprintf(
		"LOAD DATA LOCAL INFILE 'Reader::%s' INTO TABLE `%s` FIELDS TERMINATED BY '|' LINES TERMINATED BY '|\\n'",
		handler, table))
	if err != nil {
		return 0, fmt.Errorf("loading %s failed: %w", table, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// QueryResult is a timed query's outcome.
type QueryResult struct {
	Columns []string
	Rows    [][]string
	Elapsed time.Duration
}

// TimedQuery runs query and reads every row. Elapsed covers execution and reading the result.
func TimedQuery(ctx context.Context, db *sqlx.DB, query string) (*QueryResult, error) {
	start := time.Now()
	rows, err := db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &QueryResult{Columns: cols}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}
		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = formatValue(v)
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// Print writes the result as a table, truncated to maxRows rows. maxRows <= 0 prints everything.
func (r *QueryResult) Print(w io.Writer, maxRows int) {
	if len(r.Rows) == 0 {
		fmt.Fprintln(w, "No results")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(r.Columns, "\t"))
	for i, row := range r.Rows {
		if maxRows > 0 && i == maxRows {
			fmt.Fprintf(tw, "... %d more rows\n", len(r.Rows)-maxRows)
			break
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}
