package resultstore

import (
	"context"
	"os"
	"path/filepath"

	"github.com/Octogonapus/ClusterBench/report"
	"go.uber.org/zap"
)

type fileStore struct {
	dir string
}

// NewFileStore writes each report to <dir>/<name>/<started at>.json.
func NewFileStore(dir string) Store {
	return &fileStore{dir: dir}
}

func (s *fileStore) Save(ctx context.Context, rep *report.BenchmarkReport) error {
	buf, err := marshal(rep)
	if err != nil {
		return err
	}
	p := filepath.Join(s.dir, filepath.FromSlash(reportKey(rep))+".json")
	err = os.MkdirAll(filepath.Dir(p), 0o755)
	if err != nil {
		return err
	}
	err = os.WriteFile(p, buf, 0o644)
	if err != nil {
		return err
	}
	zap.L().Info("saved report", zap.String("path", p))
	return nil
}

func (s *fileStore) Close() error { return nil }
