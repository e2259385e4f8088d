package provider

import (
	"encoding/json"
	"strings"

	"github.com/starfall-ai/starfall-backend/pkg/errors"
)

// callbackData covers the field spellings the provider has used across
// payload revisions. Newer deliveries wrap these in a data object and
// encode the result as a JSON string; older ones send them flat.
type callbackData struct {
	TaskID     string          `json:"taskId"`
	State      string          `json:"state"`
	Status     string          `json:"status"`
	ResultJSON json.RawMessage `json:"resultJson"`
	ResultURLs []string        `json:"resultUrls"`
	FailMsg    string          `json:"failMsg"`
	FailReason string          `json:"failReason"`
}

// ParseCallback normalizes a webhook delivery into a TaskStatus.
func ParseCallback(raw []byte) (*TaskStatus, error) {
	var body struct {
		callbackData
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, errors.Wrap(errors.CodeValidation, err, "decode callback payload")
	}

	data := body.callbackData
	if len(body.Data) > 0 && string(body.Data) != "null" {
		if err := json.Unmarshal(body.Data, &data); err != nil {
			return nil, errors.Wrap(errors.CodeValidation, err, "decode callback data")
		}
	}

	status := &TaskStatus{
		ProviderTaskID: strings.TrimSpace(data.TaskID),
		State:          normalizeState(data.State, data.Status),
		FailureMessage: data.FailMsg,
	}
	if status.FailureMessage == "" {
		status.FailureMessage = data.FailReason
	}

	status.ResultURLs = data.ResultURLs
	if len(status.ResultURLs) == 0 {
		urls, err := parseResultJSON(data.ResultJSON)
		if err != nil {
			return nil, errors.Wrap(errors.CodeValidation, err, "decode callback result payload")
		}
		status.ResultURLs = urls
	}

	return status, nil
}

func normalizeState(values ...string) TaskState {
	for _, value := range values {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "pending":
			return TaskStatePending
		case "processing":
			return TaskStateProcessing
		case "success":
			return TaskStateSuccess
		case "fail", "failed":
			return TaskStateFail
		}
	}
	return TaskState("")
}

// parseResultJSON accepts the result either as an object or as a
// JSON-encoded string containing one.
func parseResultJSON(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	encoded := []byte(raw)
	if encoded[0] == '"' {
		var inner string
		if err := json.Unmarshal(encoded, &inner); err != nil {
			return nil, err
		}
		if strings.TrimSpace(inner) == "" {
			return nil, nil
		}
		encoded = []byte(inner)
	}

	var result struct {
		ResultURLs []string `json:"resultUrls"`
	}
	if err := json.Unmarshal(encoded, &result); err != nil {
		return nil, err
	}
	return result.ResultURLs, nil
}
