package workeragent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"gitlab.com/vidfleet.net/internal/domain"
	"gitlab.com/vidfleet.net/internal/mtls"
)

// CoordinatorClient talks to the coordinator over mutually-authenticated TLS
// with retries on transient failures.
type CoordinatorClient struct {
	baseURL    string
	workerID   string
	httpClient *http.Client
}

// NewCoordinatorClient builds the client from the agent's certificate
// material. Every request presents the worker's client certificate.
func NewCoordinatorClient(cfg *Config) (*CoordinatorClient, error) {
	tlsConfig, err := mtls.ClientTLSConfig(cfg.CertFile, cfg.KeyFile, cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to build client TLS config: %w", err)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil
	retryClient.HTTPClient.Transport = &http.Transport{TLSClientConfig: tlsConfig}

	return &CoordinatorClient{
		baseURL:    cfg.CoordinatorURL,
		workerID:   cfg.WorkerID,
		httpClient: retryClient.StandardClient(),
	}, nil
}

// StateError indicates the coordinator lost the worker's registration
type StateError struct {
	StatusCode int
}

func (e *StateError) Error() string {
	return fmt.Sprintf("coordinator state error: status %d", e.StatusCode)
}

func (c *CoordinatorClient) doRequest(ctx context.Context, method, path string, payload interface{}, response interface{}) error {
	url := fmt.Sprintf("%s%s", c.baseURL, path)

	var body io.Reader
	if payload != nil {
		jsonBytes, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// 404 means the coordinator no longer knows this worker; the agent must
	// re-register before anything else.
	if resp.StatusCode == http.StatusNotFound {
		return &StateError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("API returned error status: %d", resp.StatusCode)
	}

	if response != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

type registerPayload struct {
	Name               string              `json:"name"`
	Hostname           string              `json:"hostname"`
	Capabilities       domain.Capabilities `json:"capabilities"`
	MaxConcurrentTasks int                 `json:"max_concurrent_tasks"`
}

// Register declares the worker's capabilities to the coordinator
func (c *CoordinatorClient) Register(ctx context.Context, name string, capabilities domain.Capabilities, maxConcurrent int) error {
	hostname, _ := os.Hostname()
	payload := registerPayload{
		Name:               name,
		Hostname:           hostname,
		Capabilities:       capabilities,
		MaxConcurrentTasks: maxConcurrent,
	}
	return c.doRequest(ctx, "POST", "/api/workers/register", payload, nil)
}

type heartbeatPayload struct {
	CurrentLoad int     `json:"current_load"`
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage float64 `json:"memory_usage"`
}

// Heartbeat reports current load and host health
func (c *CoordinatorClient) Heartbeat(ctx context.Context, load int, cpu, mem float64) error {
	return c.doRequest(ctx, "POST", "/api/workers/heartbeat", heartbeatPayload{
		CurrentLoad: load,
		CPUUsage:    cpu,
		MemoryUsage: mem,
	}, nil)
}

// NextJob asks for the worker's next job, nil when the queue has nothing
func (c *CoordinatorClient) NextJob(ctx context.Context) (*domain.Job, error) {
	url := fmt.Sprintf("%s/api/jobs/next/%s", c.baseURL, c.workerID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusNotFound:
		return nil, &StateError{StatusCode: resp.StatusCode}
	case http.StatusOK:
		var job domain.Job
		if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
			return nil, fmt.Errorf("failed to decode job: %w", err)
		}
		return &job, nil
	default:
		return nil, fmt.Errorf("API returned error status: %d", resp.StatusCode)
	}
}

type statusPayload struct {
	Status       domain.JobStatus      `json:"status"`
	ErrorMessage *string               `json:"error_message,omitempty"`
	ResultData   *domain.JobResultData `json:"result_data,omitempty"`
}

// ReportStatus reports a job status transition with optional result payload
func (c *CoordinatorClient) ReportStatus(ctx context.Context, jobID string, status domain.JobStatus, errorMessage *string, result *domain.JobResultData) error {
	path := fmt.Sprintf("/api/jobs/%s/status", jobID)
	return c.doRequest(ctx, "PATCH", path, statusPayload{
		Status:       status,
		ErrorMessage: errorMessage,
		ResultData:   result,
	}, nil)
}

// FetchCredential requests a sealed platform credential. The response body
// is ciphertext; callers open it with the worker's private key.
func (c *CoordinatorClient) FetchCredential(ctx context.Context, platform, projectID string) ([]byte, error) {
	url := fmt.Sprintf("%s/api/platform-token/%s/%s", c.baseURL, platform, projectID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("platform %s not connected for project %s", platform, projectID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned error status: %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// DownloadVideo streams a source video into destPath
func (c *CoordinatorClient) DownloadVideo(ctx context.Context, videoID, destPath string) error {
	url := fmt.Sprintf("%s/api/videos/%s/download", c.baseURL, videoID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned error status: %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to write video file: %w", err)
	}
	return nil
}
