package handler

import "time"

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses Prometheus format).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
	Error  string `json:"error,omitempty"`
}

// SegmentStatus describes the active log segment.
type SegmentStatus struct {
	Sequence  uint64    `json:"sequence"`
	Bytes     int64     `json:"bytes"`
	Records   int       `json:"records"`
	CreatedAt time.Time `json:"created_at"`
}

// RecoveryStatus summarizes startup recovery.
type RecoveryStatus struct {
	Segments       int    `json:"segments"`
	Records        int    `json:"records"`
	Committed      int    `json:"committed"`
	Aborted        int    `json:"aborted"`
	Incomplete     int    `json:"incomplete"`
	Applied        int    `json:"applied"`
	AlreadyApplied int    `json:"already_applied"`
	Deferred       int    `json:"deferred"`
	Skipped        int    `json:"skipped"`
	TornTail       string `json:"torn_tail,omitempty"`
	DurationMS     int64  `json:"duration_ms"`
	Draining       bool   `json:"draining"`
}

// FileOpsStatus reports the file-movement service counters.
type FileOpsStatus struct {
	Requested int64 `json:"requested"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Pending   int64 `json:"pending"`
}

// WALStatusResponse is the response body for GET /v1/wal/status.
type WALStatusResponse struct {
	Healthy  bool           `json:"healthy"`
	Error    string         `json:"error,omitempty"`
	SyncMode string         `json:"sync_mode"`
	OpenTxns int            `json:"open_transactions"`
	Segment  SegmentStatus  `json:"segment"`
	Recovery RecoveryStatus `json:"recovery"`
	FileOps  FileOpsStatus  `json:"fileops"`
}

// CheckpointResponse is the response body for POST /v1/wal/checkpoint.
type CheckpointResponse struct {
	Removed    []uint64 `json:"removed"`
	BytesFreed int64    `json:"bytes_freed"`
	BlockedBy  string   `json:"blocked_by,omitempty"`
}
