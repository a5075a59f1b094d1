package toolbox

import (
	"encoding/json"
	"fmt"

	"compliance-copilot/internal/chart"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error kinds produced by the dispatcher itself. Component-level kinds
// (no_data, missing_params, unknown_query, unknown_analysis, database_error)
// travel through unchanged.
const (
	ErrKindUnknownTool        = "unknown_tool"
	ErrKindExecutionException = "execution_exception"
)

// Result is the uniform envelope every tool invocation produces, exactly one
// per call. Errors are data here, never Go errors: the model reads the
// envelope and can retry with different arguments inside the same turn.
type Result struct {
	Status    string      `json:"status"`
	Data      interface{} `json:"data,omitempty"`
	Stats     interface{} `json:"stats,omitempty"`
	ChartSpec *chart.Spec `json:"chartSpec,omitempty"`
	ErrorKind string      `json:"errorKind,omitempty"`
	Message   string      `json:"message,omitempty"`
}

func Success(data interface{}) Result {
	return Result{Status: StatusSuccess, Data: data}
}

func Errorf(kind, format string, args ...interface{}) Result {
	return Result{Status: StatusError, ErrorKind: kind, Message: fmt.Sprintf(format, args...)}
}

// JSON serializes the envelope for embedding in a tool-role message.
func (r Result) JSON() string {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"status":"error","errorKind":%q,"message":"failed to serialize tool result"}`, ErrKindExecutionException)
	}
	return string(raw)
}

func (r Result) IsError() bool {
	return r.Status == StatusError
}
