package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starfall-ai/starfall-backend/pkg/config"
	"github.com/starfall-ai/starfall-backend/pkg/errors"
)

const (
	createTaskPath = "/api/v1/jobs/createTask"
	queryTaskPath  = "/api/v1/jobs/queryTask"

	responseBodyReadLimit int64 = 4096
)

// HTTPClient talks to the generation provider's task API.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*HTTPClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewHTTPClient builds the provider client from configuration. The
// submit timeout bounds every outbound call.
func NewHTTPClient(cfg config.ProviderConfig, opts ...Option) (*HTTPClient, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("provider base URL is required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("provider API key is required")
	}

	timeout := cfg.SubmitTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	client := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// envelope is the provider's uniform response wrapper. Business errors
// arrive as a non-200 code in the body even when the HTTP status is 200.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Msg
}

// Submit creates a task upstream and returns its provider task id.
func (c *HTTPClient) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if c == nil {
		return nil, errors.New(errors.CodeDependency, "provider client not configured")
	}
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.New(errors.CodeValidation, "provider model is required")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "marshal create task request")
	}

	env, err := c.do(ctx, http.MethodPost, createTaskPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	var data struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, errors.Wrap(errors.CodeUpstreamTransient, err, "decode create task response")
	}
	if strings.TrimSpace(data.TaskID) == "" {
		return nil, errors.New(errors.CodeUpstreamTransient, "provider accepted task without a task id")
	}

	return &SubmitResult{ProviderTaskID: data.TaskID}, nil
}

// QueryTask fetches the current upstream state of a task.
func (c *HTTPClient) QueryTask(ctx context.Context, providerTaskID string) (*TaskStatus, error) {
	if c == nil {
		return nil, errors.New(errors.CodeDependency, "provider client not configured")
	}
	trimmed := strings.TrimSpace(providerTaskID)
	if trimmed == "" {
		return nil, errors.New(errors.CodeValidation, "provider task id is required")
	}

	path := fmt.Sprintf("%s?taskId=%s", queryTaskPath, url.QueryEscape(trimmed))
	env, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var data struct {
		TaskID     string `json:"taskId"`
		State      string `json:"state"`
		ResultJSON string `json:"resultJson"`
		FailMsg    string `json:"failMsg"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, errors.Wrap(errors.CodeUpstreamTransient, err, "decode query task response")
	}

	status := &TaskStatus{
		ProviderTaskID: data.TaskID,
		State:          TaskState(data.State),
		FailureMessage: data.FailMsg,
	}

	if status.State == TaskStateSuccess && data.ResultJSON != "" {
		var result struct {
			ResultURLs []string `json:"resultUrls"`
		}
		if err := json.Unmarshal([]byte(data.ResultJSON), &result); err != nil {
			return nil, errors.Wrap(errors.CodeUpstreamTransient, err, "decode task result payload")
		}
		status.ResultURLs = result.ResultURLs
	}

	return status, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader) (*envelope, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "build provider request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUpstreamTransient, err, "execute provider request")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return nil, errors.Wrap(errors.CodeUpstreamTransient, err, "read provider response")
	}

	var env envelope
	if decodeErr := json.Unmarshal(raw, &env); decodeErr != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, classifyUpstream(resp.StatusCode, fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
		}
		return nil, errors.Wrap(errors.CodeUpstreamTransient, decodeErr, "decode provider response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyUpstream(resp.StatusCode, fmt.Sprintf("status %d: %s", resp.StatusCode, env.text()))
	}
	// The body-level code mirrors an HTTP status for business errors.
	if env.Code != 0 && env.Code != http.StatusOK {
		return nil, classifyUpstream(env.Code, fmt.Sprintf("provider code %d: %s", env.Code, env.text()))
	}

	return &env, nil
}
