package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: c.GetString("trace_id"),
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports the state of every readiness dependency.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NoticePayload is the forced-logout dialog content.
type NoticePayload struct {
	ReportedRights   []string  `json:"reported_rights"`
	StoreUnreachable bool      `json:"store_unreachable"`
	Reason           string    `json:"reason"`
	IssuedAt         time.Time `json:"issued_at"`
}

// TerminationPayload describes how the session ended.
type TerminationPayload struct {
	Cause        string    `json:"cause"`
	Reason       string    `json:"reason"`
	TerminatedAt time.Time `json:"terminated_at"`
}

// SessionStatusResponse is the guard state observed by the UI shell.
type SessionStatusResponse struct {
	SessionID           string              `json:"session_id"`
	State               string              `json:"state"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	Paused              bool                `json:"paused"`
	Notice              *NoticePayload      `json:"notice,omitempty"`
	Termination         *TerminationPayload `json:"termination,omitempty"`
	RedirectTo          string              `json:"redirect_to,omitempty"`
}

// LogoutRequest optionally carries a reason for a user-initiated logout.
type LogoutRequest struct {
	Reason string `json:"reason"`
}

// PermissionsResponse exposes the cached permission snapshot.
type PermissionsResponse struct {
	Rights    map[string]bool `json:"rights"`
	FetchedAt *time.Time      `json:"fetched_at,omitempty"`
}

// LoginReasonResponse carries the single-read logout reason.
type LoginReasonResponse struct {
	Reason string `json:"reason"`
}
