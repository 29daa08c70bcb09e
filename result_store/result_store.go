package resultstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/Octogonapus/ClusterBench/report"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Persists benchmark reports.
type Store interface {
	Save(ctx context.Context, rep *report.BenchmarkReport) error
	Close() error
}

// Open selects a backend from a results URL:
//   - s3://bucket/prefix uploads to S3;
//   - libsql://, http:// and https:// insert into a libsql database;
//   - file://dir or a plain path writes JSON files.
//
// An empty URL returns a nil Store. Stores that report progress write it to out.
func Open(ctx context.Context, rawURL string, out io.Writer) (Store, error) {
	if rawURL == "" {
		return nil, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return NewFileStore(rawURL), nil
	}
	switch u.Scheme {
	case "file":
		return NewFileStore(u.Host + u.Path), nil
	case "s3":
		return NewS3Store(ctx, u.Host, strings.TrimPrefix(u.Path, "/"), out)
	case "libsql", "http", "https":
		return NewLibsqlStore(ctx, rawURL)
	default:
		return nil, fmt.Errorf("unsupported result store %q", rawURL)
	}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// reportKey names a report by benchmark name and start time, e.g. "ycsb-hbase/1718000000".
func reportKey(rep *report.BenchmarkReport) string {
	name := unsafeChars.ReplaceAllString(rep.Name, "_")
	if name == "" {
		name = "benchmark"
	}
	return path.Join(name, fmt.Sprint(rep.StartedAt))
}

func marshal(rep *report.BenchmarkReport) ([]byte, error) {
	buf, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding report %s failed: %w", rep.Name, err)
	}
	return buf, nil
}
