// Package httpjob defines HttpJob, the record exchanged between Gate and
// Worker over the shared store (spec.md §3). Serialization is JSON with the
// body base64-encoded, the single discipline spec.md §9 asks implementations
// to settle on.
package httpjob

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusExpired    Status = "EXPIRED"
)

// HeaderJobDeadline carries the per-handler soft deadline (epoch ms) from
// Gate to Worker, per spec.md §5.
const HeaderJobDeadline = "X-Job-Deadline"

// HttpJob is the unit of work exchanged between Gate and Worker. Status
// transitions are monotonic: PENDING -> IN_PROGRESS -> (COMPLETED|FAILED),
// with EXPIRED reachable from any state when the dispatcher's deadline
// passes or its caller cancels. When the repository's TTL lapses the record
// is removed from the store; it is not marked EXPIRED.
type HttpJob struct {
	RequestID string `json:"request_id"`

	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Query   map[string]string `json:"query"`
	Headers map[string]string `json:"headers"`
	Body    []byte            `json:"-"`

	TargetWorker string `json:"target_worker"`
	Status       Status `json:"status"`

	ResponseStatus  int               `json:"response_status,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ResponseBody    []byte            `json:"-"`

	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// wireJob mirrors HttpJob but carries the body fields as base64 text, since
// encoding/json already base64-encodes []byte — this type exists so the
// *field name* on the wire (`body`/`response_body`) is explicit and stable
// regardless of Go's default behavior for byte slices.
type wireJob struct {
	RequestID       string            `json:"request_id"`
	Method          string            `json:"method"`
	Path            string            `json:"path"`
	Query           map[string]string `json:"query"`
	Headers         map[string]string `json:"headers"`
	Body            string            `json:"body"`
	TargetWorker    string            `json:"target_worker"`
	Status          Status            `json:"status"`
	ResponseStatus  int               `json:"response_status,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ResponseBody    string            `json:"response_body"`
	Error           string            `json:"error,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (j *HttpJob) MarshalJSON() ([]byte, error) {
	w := wireJob{
		RequestID:       j.RequestID,
		Method:          j.Method,
		Path:            j.Path,
		Query:           j.Query,
		Headers:         j.Headers,
		Body:            base64.StdEncoding.EncodeToString(j.Body),
		TargetWorker:    j.TargetWorker,
		Status:          j.Status,
		ResponseStatus:  j.ResponseStatus,
		ResponseHeaders: j.ResponseHeaders,
		ResponseBody:    base64.StdEncoding.EncodeToString(j.ResponseBody),
		Error:           j.Error,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
	return json.Marshal(w)
}

func (j *HttpJob) UnmarshalJSON(data []byte) error {
	var w wireJob
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	body, err := base64.StdEncoding.DecodeString(w.Body)
	if err != nil {
		return err
	}
	respBody, err := base64.StdEncoding.DecodeString(w.ResponseBody)
	if err != nil {
		return err
	}
	*j = HttpJob{
		RequestID:       w.RequestID,
		Method:          w.Method,
		Path:            w.Path,
		Query:           w.Query,
		Headers:         w.Headers,
		Body:            body,
		TargetWorker:    w.TargetWorker,
		Status:          w.Status,
		ResponseStatus:  w.ResponseStatus,
		ResponseHeaders: w.ResponseHeaders,
		ResponseBody:    respBody,
		Error:           w.Error,
		CreatedAt:       w.CreatedAt,
		UpdatedAt:       w.UpdatedAt,
	}
	return nil
}

// IsTerminal reports whether status can no longer transition (other than
// EXPIRED, which can always supersede a non-terminal status).
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired:
		return true
	default:
		return false
	}
}
