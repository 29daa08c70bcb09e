package flink_sql

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/json-iterator/go"
)

// Job states reported by the Flink REST API.
const (
	StateRunning  = "RUNNING"
	StateFinished = "FINISHED"
	StateFailed   = "FAILED"
	StateCanceled = "CANCELED"
)

type JobOverview struct {
	ID       string `json:"jid"`
	Name     string `json:"name"`
	State    string `json:"state"`
	Duration int64  `json:"duration"`
}

type Vertex struct {
	Name    string `json:"name"`
	Metrics struct {
		ReadRecords  int64 `json:"read-records"`
		WriteRecords int64 `json:"write-records"`
		ReadBytes    int64 `json:"read-bytes"`
		WriteBytes   int64 `json:"write-bytes"`
	} `json:"metrics"`
}

type JobDetails struct {
	ID       string   `json:"jid"`
	Name     string   `json:"name"`
	State    string   `json:"state"`
	Duration int64    `json:"duration"`
	Vertices []Vertex `json:"vertices"`
}

func (j *JobDetails) Terminal() bool {
	return j.State == StateFinished || j.State == StateFailed || j.State == StateCanceled
}

// restClient speaks the subset of the JobManager REST API the benchmark needs.
type restClient struct {
	base string
	http *http.Client
}

func newRESTClient(host string, port int) *restClient {
	return &restClient{
		base: fmt.Sprintf("http://%s:%d", host, port),
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *restClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, body)
	}
	if out == nil {
		return nil
	}
	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("decoding %s response failed: %w", path, err)
	}
	return nil
}

func (c *restClient) Jobs(ctx context.Context) ([]JobOverview, error) {
	var body struct {
		Jobs []JobOverview `json:"jobs"`
	}
	err := c.do(ctx, http.MethodGet, "/jobs/overview", &body)
	return body.Jobs, err
}

func (c *restClient) Job(ctx context.Context, id string) (*JobDetails, error) {
	job := &JobDetails{}
	err := c.do(ctx, http.MethodGet, "/jobs/"+id, job)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (c *restClient) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPatch, "/jobs/"+id+"?mode=cancel", nil)
}
