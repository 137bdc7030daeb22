// Package cluster talks to the batch API of the worker cluster: submitting
// aggregated watermarking jobs, listing and deleting the pods and jobs they
// spawn, and archiving pod logs.
package cluster

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/forensiq/forensiq/internal/blob"
	"github.com/forensiq/forensiq/internal/config"
	"github.com/forensiq/forensiq/pkg/models"
)

// ErrClusterAPI marks non-2xx responses from the cluster API.
var ErrClusterAPI = errors.New("cluster api error")

// Pod is the subset of pod metadata the orchestrator cares about.
type Pod struct {
	Name  string
	Phase string
}

// Job is a submitted batch job.
type Job struct {
	Name string
}

// PodLog pairs a pod with its captured log output.
type PodLog struct {
	PodName string `json:"PodName"`
	Log     string `json:"Log"`
}

// Client is the interface to the cluster batch API.
type Client interface {
	SubmitJob(ctx context.Context, jobName string, manifest *models.Manifest) error
	ListPods(ctx context.Context, jobID string) ([]Pod, error)
	ListJobs(ctx context.Context, jobID string) ([]Job, error)
	DeletePods(ctx context.Context, jobID, phase string) (int, error)
	DeleteJobs(ctx context.Context, jobID string) (int, error)
	JobLogs(ctx context.Context, jobID string) ([]PodLog, error)
}

// HTTPClient implements Client against the Kubernetes batch API. Pod logs are
// archived to the tmp area of blob storage before jobs are torn down.
type HTTPClient struct {
	baseURL   string
	token     string
	namespace string
	image     string
	client    *http.Client
	blob      blob.Client
	tmpBucket string
	logger    *slog.Logger
}

func NewHTTPClient(cfg config.ClusterConfig, blobClient blob.Client, tmpBucket string, logger *slog.Logger) *HTTPClient {
	httpClient := &http.Client{Timeout: 60 * time.Second}
	if cfg.Insecure {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &HTTPClient{
		baseURL:   strings.TrimRight(cfg.APIURL, "/"),
		token:     cfg.Token,
		namespace: cfg.Namespace,
		image:     cfg.JobImage,
		client:    httpClient,
		blob:      blobClient,
		tmpBucket: tmpBucket,
		logger:    logger,
	}
}

// SubmitJob posts one sub-manifest as a batch job. The manifest rides into
// the worker container base64-encoded in the JOB environment variable; the
// job and its pods carry the "jobid" label so later list and delete calls
// can find everything the parent job spawned.
func (c *HTTPClient) SubmitJob(ctx context.Context, jobName string, manifest *models.Manifest) error {
	payload, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	spec := jobSpec(jobName, c.namespace, manifest.JobID, c.image, base64.StdEncoding.EncodeToString(payload))
	body, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("marshal job spec: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/apis/batch/v1/namespaces/%s/jobs", c.namespace), bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (c *HTTPClient) ListPods(ctx context.Context, jobID string) ([]Pod, error) {
	path := fmt.Sprintf("/api/v1/namespaces/%s/pods?labelSelector=%s", c.namespace, labelSelector(jobID))
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var list podList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding pod list: %w", err)
	}
	pods := make([]Pod, 0, len(list.Items))
	for _, item := range list.Items {
		pods = append(pods, Pod{Name: item.Metadata.Name, Phase: item.Status.Phase})
	}
	return pods, nil
}

func (c *HTTPClient) ListJobs(ctx context.Context, jobID string) ([]Job, error) {
	path := fmt.Sprintf("/apis/batch/v1/namespaces/%s/jobs?labelSelector=%s", c.namespace, labelSelector(jobID))
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var list jobList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding job list: %w", err)
	}
	jobs := make([]Job, 0, len(list.Items))
	for _, item := range list.Items {
		jobs = append(jobs, Job{Name: item.Metadata.Name})
	}
	return jobs, nil
}

// DeletePods deletes the job's pods, restricted to the given phase when one
// is set (e.g. only Succeeded pods, keeping failed ones around for a look).
func (c *HTTPClient) DeletePods(ctx context.Context, jobID, phase string) (int, error) {
	pods, err := c.ListPods(ctx, jobID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, pod := range pods {
		if phase != "" && pod.Phase != phase {
			continue
		}
		if err := c.deleteResource(ctx, fmt.Sprintf("/api/v1/namespaces/%s/pods/%s", c.namespace, pod.Name)); err != nil {
			return deleted, fmt.Errorf("delete pod %s: %w", pod.Name, err)
		}
		deleted++
	}
	return deleted, nil
}

// DeleteJobs archives every pod's log to blob storage, then deletes the
// job's batch jobs and their pods. Archiving comes first: once the pods are
// gone the logs are gone with them.
func (c *HTTPClient) DeleteJobs(ctx context.Context, jobID string) (int, error) {
	logs, err := c.JobLogs(ctx, jobID)
	if err != nil {
		return 0, err
	}
	for _, pl := range logs {
		name := fmt.Sprintf("%s.%s.log", jobID, pl.PodName)
		if err := c.blob.Upload(ctx, c.tmpBucket, name, strings.NewReader(pl.Log), "text/plain"); err != nil {
			return 0, fmt.Errorf("archive pod log %s: %w", name, err)
		}
	}

	jobs, err := c.ListJobs(ctx, jobID)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, job := range jobs {
		if err := c.deleteResource(ctx, fmt.Sprintf("/apis/batch/v1/namespaces/%s/jobs/%s", c.namespace, job.Name)); err != nil {
			return deleted, fmt.Errorf("delete job %s: %w", job.Name, err)
		}
		deleted++
	}
	if _, err := c.DeletePods(ctx, jobID, ""); err != nil {
		return deleted, err
	}
	return deleted, nil
}

func (c *HTTPClient) JobLogs(ctx context.Context, jobID string) ([]PodLog, error) {
	pods, err := c.ListPods(ctx, jobID)
	if err != nil {
		return nil, err
	}

	logs := make([]PodLog, 0, len(pods))
	for _, pod := range pods {
		resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/namespaces/%s/pods/%s/log", c.namespace, pod.Name), nil)
		if err != nil {
			return nil, err
		}
		if err := checkStatus(resp); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("pod %s: %w", pod.Name, err)
		}
		text, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading pod log %s: %w", pod.Name, err)
		}
		logs = append(logs, PodLog{PodName: pod.Name, Log: string(text)})
	}
	return logs, nil
}

func (c *HTTPClient) deleteResource(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClusterAPI, err)
	}
	return resp, nil
}

func labelSelector(jobID string) string {
	return url.QueryEscape("jobid=jobid-" + jobID)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%w: status %d: %s", ErrClusterAPI, resp.StatusCode, strings.TrimSpace(string(text)))
}

// --- Kubernetes response types ---

type podList struct {
	Items []struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
		Status struct {
			Phase string `json:"phase"`
		} `json:"status"`
	} `json:"items"`
}

type jobList struct {
	Items []struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
	} `json:"items"`
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
