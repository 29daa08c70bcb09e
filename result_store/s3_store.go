package resultstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/Octogonapus/ClusterBench/report"
	"github.com/alitto/pond"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

const uploadWorkers = 4

// uploader is the part of manager.Uploader the store uses.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type s3Store struct {
	bucket   string
	prefix   string
	uploader uploader
	out      io.Writer
}

// NewS3Store uploads under s3://bucket/prefix using the default AWS credential chain.
// Upload progress is drawn on out.
func NewS3Store(ctx context.Context, bucket, prefix string, out io.Writer) (Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 result store needs a bucket")
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config failed: %w", err)
	}
	up := manager.NewUploader(s3.NewFromConfig(cfg), func(u *manager.Uploader) {
		u.PartSize = 1024 * 1024 * 10
	})
	return newS3Store(bucket, prefix, up, out), nil
}

func newS3Store(bucket, prefix string, up uploader, out io.Writer) *s3Store {
	if out == nil {
		out = io.Discard
	}
	return &s3Store{bucket: bucket, prefix: prefix, uploader: up, out: out}
}

// objects renders everything uploaded for one report, keyed by file name.
func objects(rep *report.BenchmarkReport) (map[string][]byte, error) {
	buf, err := marshal(rep)
	if err != nil {
		return nil, err
	}
	var summary bytes.Buffer
	report.PrintReport(&summary, rep)
	out := map[string][]byte{
		"report.json": buf,
		"summary.txt": summary.Bytes(),
	}
	if rep.SystemMeasurements != nil {
		m, err := json.Marshal(rep.SystemMeasurements)
		if err != nil {
			return nil, err
		}
		out["measurements.json"] = m
	}
	return out, nil
}

// Save uploads the report JSON, the printed summary and the raw system measurements.
func (s *s3Store) Save(ctx context.Context, rep *report.BenchmarkReport) error {
	objs, err := objects(rep)
	if err != nil {
		return err
	}
	base := path.Join(s.prefix, reportKey(rep))

	errChan := make(chan error, len(objs))
	pool := pond.New(uploadWorkers, 0, pond.MinWorkers(uploadWorkers))
	p := progressbar.NewOptions(len(objs),
		progressbar.OptionSetWriter(s.out),
		progressbar.OptionSetDescription("Uploading results:"),
		progressbar.OptionSetWidth(10),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(s.out) }),
	)
	for name, body := range objs {
		body := body
		key := path.Join(base, name)
		pool.Submit(func() {
			defer p.Add(1)
			_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
				Bucket: &s.bucket,
				Key:    &key,
				Body:   bytes.NewReader(body),
			})
			if err != nil {
				zap.L().Error("uploading result failed", zap.String("key", key), zap.Error(err))
				errChan <- err
			}
		})
	}
	pool.StopAndWait()
	p.Finish()

	select {
	case err := <-errChan:
		return fmt.Errorf("some results failed to upload: %w", err)
	default:
		zap.L().Info("saved report", zap.String("bucket", s.bucket), zap.String("prefix", base))
		return nil
	}
}

func (s *s3Store) Close() error { return nil }
