package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starfall-ai/starfall-backend/pkg/config"
	"github.com/starfall-ai/starfall-backend/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(config.ProviderConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
	})
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	return client
}

func TestSubmitReturnsTaskID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != createTaskPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header = %q", got)
		}
		var req SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "kling-2.6" {
			t.Errorf("model = %q", req.Model)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]string{"taskId": "task-abc"},
		})
	})

	result, err := client.Submit(context.Background(), SubmitRequest{
		Model: "kling-2.6",
		Input: map[string]any{"prompt": "a cat"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.ProviderTaskID != "task-abc" {
		t.Fatalf("task id = %q", result.ProviderTaskID)
	}
}

func TestSubmitTransientHTTPStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	})

	_, err := client.Submit(context.Background(), SubmitRequest{Model: "kling-2.6"})
	if !errors.HasCode(err, errors.CodeUpstreamTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if !Retryable(err) {
		t.Fatal("503 should be retryable")
	}
}

func TestSubmitTerminalBodyCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 400,
			"msg":  "unsupported parameter combination",
		})
	})

	_, err := client.Submit(context.Background(), SubmitRequest{Model: "kling-2.6"})
	if !errors.HasCode(err, errors.CodeUpstreamTerminal) {
		t.Fatalf("expected terminal error, got %v", err)
	}
	if Retryable(err) {
		t.Fatal("body code 400 should not be retryable")
	}
}

func TestSubmitTransientBodyCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 429,
			"msg":  "rate limited",
		})
	})

	_, err := client.Submit(context.Background(), SubmitRequest{Model: "kling-2.6"})
	if !errors.HasCode(err, errors.CodeUpstreamTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestSubmitMissingTaskID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]string{},
		})
	})

	_, err := client.Submit(context.Background(), SubmitRequest{Model: "kling-2.6"})
	if !errors.HasCode(err, errors.CodeUpstreamTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestQueryTaskParsesResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != queryTaskPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("taskId"); got != "task-abc" {
			t.Errorf("taskId = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]any{
				"taskId":     "task-abc",
				"state":      "success",
				"resultJson": `{"resultUrls":["https://cdn.example.com/a.mp4"]}`,
			},
		})
	})

	status, err := client.QueryTask(context.Background(), "task-abc")
	if err != nil {
		t.Fatalf("QueryTask: %v", err)
	}
	if status.State != TaskStateSuccess {
		t.Fatalf("state = %q", status.State)
	}
	if len(status.ResultURLs) != 1 || status.ResultURLs[0] != "https://cdn.example.com/a.mp4" {
		t.Fatalf("result urls = %v", status.ResultURLs)
	}
}

func TestQueryTaskFailedState(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]any{
				"taskId":  "task-abc",
				"state":   "fail",
				"failMsg": "content policy violation",
			},
		})
	})

	status, err := client.QueryTask(context.Background(), "task-abc")
	if err != nil {
		t.Fatalf("QueryTask: %v", err)
	}
	if status.State != TaskStateFail {
		t.Fatalf("state = %q", status.State)
	}
	if status.FailureMessage != "content policy violation" {
		t.Fatalf("failure message = %q", status.FailureMessage)
	}
	if !status.State.Terminal() {
		t.Fatal("fail state should be terminal")
	}
}
