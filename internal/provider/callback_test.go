package provider

import (
	"testing"
)

func TestParseCallbackWrappedData(t *testing.T) {
	raw := []byte(`{
		"code": 200,
		"msg": "success",
		"data": {
			"taskId": "task-abc",
			"state": "success",
			"resultJson": "{\"resultUrls\":[\"https://cdn.example.com/a.mp4\",\"https://cdn.example.com/b.mp4\"]}"
		}
	}`)

	status, err := ParseCallback(raw)
	if err != nil {
		t.Fatalf("ParseCallback: %v", err)
	}
	if status.ProviderTaskID != "task-abc" {
		t.Fatalf("task id = %q", status.ProviderTaskID)
	}
	if status.State != TaskStateSuccess {
		t.Fatalf("state = %q", status.State)
	}
	if len(status.ResultURLs) != 2 {
		t.Fatalf("result urls = %v", status.ResultURLs)
	}
}

func TestParseCallbackFlatPayload(t *testing.T) {
	raw := []byte(`{"taskId": "task-flat", "status": "failed", "failReason": "model overloaded"}`)

	status, err := ParseCallback(raw)
	if err != nil {
		t.Fatalf("ParseCallback: %v", err)
	}
	if status.ProviderTaskID != "task-flat" {
		t.Fatalf("task id = %q", status.ProviderTaskID)
	}
	if status.State != TaskStateFail {
		t.Fatalf("state = %q", status.State)
	}
	if status.FailureMessage != "model overloaded" {
		t.Fatalf("failure message = %q", status.FailureMessage)
	}
}

func TestParseCallbackResultObject(t *testing.T) {
	raw := []byte(`{"data": {"taskId": "task-obj", "state": "success", "resultJson": {"resultUrls": ["https://cdn.example.com/c.png"]}}}`)

	status, err := ParseCallback(raw)
	if err != nil {
		t.Fatalf("ParseCallback: %v", err)
	}
	if len(status.ResultURLs) != 1 || status.ResultURLs[0] != "https://cdn.example.com/c.png" {
		t.Fatalf("result urls = %v", status.ResultURLs)
	}
}

func TestParseCallbackPrefersExplicitURLs(t *testing.T) {
	raw := []byte(`{"taskId": "task-urls", "state": "success", "resultUrls": ["https://cdn.example.com/d.png"]}`)

	status, err := ParseCallback(raw)
	if err != nil {
		t.Fatalf("ParseCallback: %v", err)
	}
	if len(status.ResultURLs) != 1 {
		t.Fatalf("result urls = %v", status.ResultURLs)
	}
}

func TestParseCallbackRejectsMalformedBody(t *testing.T) {
	if _, err := ParseCallback([]byte(`{`)); err == nil {
		t.Fatal("expected error for malformed body")
	}
	if _, err := ParseCallback([]byte(`{"data": {"resultJson": "{broken"} , "state": "success"}`)); err == nil {
		t.Fatal("expected error for malformed result json")
	}
}

func TestParseCallbackUnknownState(t *testing.T) {
	status, err := ParseCallback([]byte(`{"taskId": "t", "state": "simmering"}`))
	if err != nil {
		t.Fatalf("ParseCallback: %v", err)
	}
	if status.State.Terminal() {
		t.Fatalf("unknown state classified terminal: %q", status.State)
	}
}
